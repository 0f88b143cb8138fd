// Package notify provides the one-shot execution-notification collaborator
// spec.md §9 calls out as "a once-initialized process-wide optional
// collaborator" that "should surface [as] an explicitly-injected interface,
// not a hidden singleton". Notifier is that interface; SMTPNotifier is a
// minimal net/smtp implementation (no mailer/templating third-party
// dependency appears anywhere in the retrieval pack — see DESIGN.md).
package notify

import (
	"fmt"
	"net/smtp"
	"strings"

	"github.com/flashtri/arbengine/internal/dispatcher"
	"github.com/flashtri/arbengine/internal/types"
	"github.com/flashtri/arbengine/pkg/logger"
)

// Notifier is the injected interface callers depend on. A nil Notifier is
// never passed; call sites that want no notification use NoOp{}.
type Notifier interface {
	NotifyExecution(before, after []types.Balance, opp *types.Opportunity, result *dispatcher.Result) error
}

// NoOp discards notifications, for deployments with no SMTP configured.
type NoOp struct{}

// NotifyExecution implements Notifier by doing nothing.
func (NoOp) NotifyExecution([]types.Balance, []types.Balance, *types.Opportunity, *dispatcher.Result) error {
	return nil
}

// SMTPConfig configures the outbound relay used to send execution
// notifications.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	To       string
}

// SMTPNotifier sends one HTML email per execution, with before/after
// balance tables, matching the teacher's NotificationService.SendEmail
// shape (plain-auth net/smtp, From/To header composition).
type SMTPNotifier struct {
	cfg SMTPConfig
	log *logger.Logger
}

// NewSMTPNotifier builds an SMTPNotifier. A zero-value Host disables
// sending; callers should prefer NoOp{} in that case instead.
func NewSMTPNotifier(cfg SMTPConfig, log *logger.Logger) *SMTPNotifier {
	return &SMTPNotifier{cfg: cfg, log: log.Named("notify")}
}

// NotifyExecution sends the HTML notification and returns any send failure
// to the caller, which logs it — this runs off the hot path per spec.md
// §4.6's "spawn non-blocking balance-snapshot tasks ... these must not block
// the hot path", so callers run it in a goroutine.
func (n *SMTPNotifier) NotifyExecution(before, after []types.Balance, opp *types.Opportunity, result *dispatcher.Result) error {
	if n.cfg.Host == "" {
		return nil
	}

	subject := fmt.Sprintf("Arbitrage execution %s", opp.ID)
	if result != nil && result.Confirmed && !result.Reverted {
		subject = fmt.Sprintf("Arbitrage SUCCESS %s (profit %s)", opp.ID, formatProfit(result))
	} else if result != nil && result.Reverted {
		subject = fmt.Sprintf("Arbitrage REVERTED %s", opp.ID)
	}

	body := renderHTML(before, after, opp, result)
	message := fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\nMIME-Version: 1.0\r\nContent-Type: text/html; charset=\"UTF-8\"\r\n\r\n%s",
		n.cfg.From, n.cfg.To, subject, body)

	auth := smtp.PlainAuth("", n.cfg.Username, n.cfg.Password, n.cfg.Host)
	addr := fmt.Sprintf("%s:%d", n.cfg.Host, n.cfg.Port)
	if err := smtp.SendMail(addr, auth, n.cfg.From, []string{n.cfg.To}, []byte(message)); err != nil {
		return fmt.Errorf("notify: send mail: %w", err)
	}
	n.log.Info("execution notification sent", "opportunity_id", opp.ID, "to", n.cfg.To)
	return nil
}

func formatProfit(result *dispatcher.Result) string {
	if result.Profit == nil {
		return "unknown"
	}
	return result.Profit.String()
}

func renderHTML(before, after []types.Balance, opp *types.Opportunity, result *dispatcher.Result) string {
	var b strings.Builder
	b.WriteString("<html><body>")
	fmt.Fprintf(&b, "<h2>Opportunity %s (chain %d, block %d)</h2>", opp.ID, opp.ChainID, opp.BlockNumber)
	fmt.Fprintf(&b, "<p>Net profit USD: %s</p>", opp.NetProfitUSD.String())
	if result != nil {
		fmt.Fprintf(&b, "<p>Mode: %s, confirmed: %v, reverted: %v</p>", result.Mode, result.Confirmed, result.Reverted)
		for _, h := range result.TxHashes {
			fmt.Fprintf(&b, "<p>Tx: %s</p>", h.Hex())
		}
	}
	b.WriteString(balanceTable("Before", before))
	b.WriteString(balanceTable("After", after))
	b.WriteString("</body></html>")
	return b.String()
}

func balanceTable(title string, balances []types.Balance) string {
	var b strings.Builder
	fmt.Fprintf(&b, "<h3>%s</h3><table border=\"1\"><tr><th>Symbol</th><th>Amount</th><th>USD</th></tr>", title)
	for _, bal := range balances {
		fmt.Fprintf(&b, "<tr><td>%s</td><td>%s</td><td>%s</td></tr>", bal.Symbol, bal.Amount.String(), bal.USDValue.String())
	}
	b.WriteString("</table>")
	return b.String()
}
