// Package dbwriter implements the async persistence collaborator spec.md
// §6 names: a single consumer task draining an mpsc channel of
// SaveOpportunity/UpdateOpportunityStatus/SaveTradeRecord messages so
// handler hot paths never block on the database (spec.md §5's "Database
// writes: enqueued onto an unbounded (practically bounded) channel
// consumed by a single DbWriter task").
package dbwriter

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/flashtri/arbengine/internal/types"
	"github.com/flashtri/arbengine/pkg/logger"
)

// Status is an opportunity's lifecycle state once it leaves the Scanner.
type Status string

const (
	StatusDetected  Status = "detected"
	StatusExecuting Status = "executing"
	StatusConfirmed Status = "confirmed"
	StatusReverted  Status = "reverted"
	StatusExpired   Status = "expired"
)

// TradeRecord is one executed (or attempted) trade, persisted alongside
// its originating Opportunity.
type TradeRecord struct {
	OpportunityID string
	ChainID       uint64
	TxHash        string
	Mode          string
	Confirmed     bool
	Reverted      bool
	ProfitWei     string
	RevertReason  string
	RecordedAt    time.Time
}

// message is the internal sum type carried over the channel. Exactly one
// field is non-nil per message, matching the three variants spec.md §6
// lists for the DbWriter interface.
type message struct {
	saveOpportunity  *types.Opportunity
	updateStatus     *statusUpdate
	saveTradeRecord  *TradeRecord
}

type statusUpdate struct {
	id     string
	status Status
}

// Writer is the DbWriter collaborator: Enqueue satisfies
// scanner.OpportunitySink so a Scanner can hand it opportunities directly
// without knowing about SQL.
type Writer struct {
	db  *sqlx.DB
	log *logger.Logger
	ch  chan message
	cap int
}

// New builds a Writer with a channel buffer of bufSize messages. bufSize
// is "practically bounded" per spec.md §5 — large enough that messages are
// not dropped under normal load. Sends never block: once the buffer is
// full, further messages are dropped and logged.
func New(db *sqlx.DB, bufSize int, log *logger.Logger) *Writer {
	if bufSize <= 0 {
		bufSize = 4096
	}
	return &Writer{
		db:  db,
		log: log.Named("dbwriter"),
		ch:  make(chan message, bufSize),
		cap: bufSize,
	}
}

// Enqueue implements scanner.OpportunitySink. It never blocks the caller:
// when the buffer is full the opportunity is dropped and logged.
func (w *Writer) Enqueue(opp *types.Opportunity) {
	select {
	case w.ch <- message{saveOpportunity: opp}:
	default:
		w.log.Warn("opportunity channel full, dropping", "opportunity_id", opp.ID)
	}
}

// UpdateStatus queues a status transition for a previously saved
// opportunity.
func (w *Writer) UpdateStatus(id string, status Status) {
	select {
	case w.ch <- message{updateStatus: &statusUpdate{id: id, status: status}}:
	default:
		w.log.Warn("status update channel full, dropping", "opportunity_id", id)
	}
}

// SaveTradeRecord queues a trade record for persistence.
func (w *Writer) SaveTradeRecord(rec TradeRecord) {
	select {
	case w.ch <- message{saveTradeRecord: &rec}:
	default:
		w.log.Warn("trade record channel full, dropping", "opportunity_id", rec.OpportunityID)
	}
}

// Run drains the channel until ctx is cancelled (then flushes what is
// already buffered) or the channel is closed by the caller (via Close),
// matching the teacher's single-consumer
// background-task pattern.
func (w *Writer) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			w.drainRemaining()
			return
		case msg, ok := <-w.ch:
			if !ok {
				return
			}
			w.handle(ctx, msg)
		}
	}
}

// Close signals no further messages will be enqueued, allowing Run to
// exit once the buffer drains.
func (w *Writer) Close() {
	close(w.ch)
}

// drainRemaining flushes whatever is already buffered on shutdown,
// best-effort, within a short grace window.
func (w *Writer) drainRemaining() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for {
		select {
		case msg, ok := <-w.ch:
			if !ok {
				return
			}
			w.handle(ctx, msg)
		default:
			return
		}
	}
}

func (w *Writer) handle(ctx context.Context, msg message) {
	switch {
	case msg.saveOpportunity != nil:
		if err := w.saveOpportunity(ctx, msg.saveOpportunity); err != nil {
			w.log.Error("save opportunity failed", "error", err, "opportunity_id", msg.saveOpportunity.ID)
		}
	case msg.updateStatus != nil:
		if err := w.updateStatus(ctx, msg.updateStatus); err != nil {
			w.log.Error("update opportunity status failed", "error", err, "opportunity_id", msg.updateStatus.id)
		}
	case msg.saveTradeRecord != nil:
		if err := w.saveTradeRecord(ctx, msg.saveTradeRecord); err != nil {
			w.log.Error("save trade record failed", "error", err, "opportunity_id", msg.saveTradeRecord.OpportunityID)
		}
	}
}

func (w *Writer) saveOpportunity(ctx context.Context, opp *types.Opportunity) error {
	query := `
		INSERT INTO opportunities (
			id, chain_id, pool1, pool2, pool3, token_a, token_b, token_c,
			input_amount, expected_output, expected_profit_usd, gas_estimate,
			gas_cost_usd, net_profit_usd, profit_percentage, block_number,
			status, detected_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18
		)
		ON CONFLICT (id) DO NOTHING
	`
	_, err := w.db.ExecContext(ctx, query,
		opp.ID, opp.ChainID,
		opp.Path[0].PoolAddress.Hex(), opp.Path[1].PoolAddress.Hex(), opp.Path[2].PoolAddress.Hex(),
		opp.Path[0].TokenIn.Hex(), opp.Path[0].TokenOut.Hex(), opp.Path[1].TokenOut.Hex(),
		opp.InputAmount.String(), opp.ExpectedOutput.String(),
		opp.ExpectedProfitUSD.String(), opp.GasEstimate,
		opp.GasCostUSD.String(), opp.NetProfitUSD.String(), opp.ProfitPercentage.String(),
		opp.BlockNumber, string(StatusDetected), opp.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("dbwriter: insert opportunity: %w", err)
	}
	return nil
}

func (w *Writer) updateStatus(ctx context.Context, upd *statusUpdate) error {
	res, err := w.db.ExecContext(ctx,
		`UPDATE opportunities SET status = $1 WHERE id = $2`,
		string(upd.status), upd.id,
	)
	if err != nil {
		return fmt.Errorf("dbwriter: update status: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("dbwriter: update status: opportunity %s not found", upd.id)
	}
	return nil
}

func (w *Writer) saveTradeRecord(ctx context.Context, rec *TradeRecord) error {
	query := `
		INSERT INTO trade_records (
			opportunity_id, chain_id, tx_hash, mode, confirmed, reverted,
			profit_wei, revert_reason, recorded_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err := w.db.ExecContext(ctx, query,
		rec.OpportunityID, rec.ChainID, rec.TxHash, rec.Mode,
		rec.Confirmed, rec.Reverted, rec.ProfitWei, rec.RevertReason, rec.RecordedAt,
	)
	if err != nil {
		return fmt.Errorf("dbwriter: insert trade record: %w", err)
	}
	return nil
}

// RecentOpportunities returns up to limit most-recently-detected
// opportunities, for the /opportunities read-only control-surface route.
func (w *Writer) RecentOpportunities(ctx context.Context, limit int) ([]OpportunityRow, error) {
	var rows []OpportunityRow
	err := w.db.SelectContext(ctx, &rows, `
		SELECT id, chain_id, pool1, pool2, pool3, token_a, token_b, token_c,
			input_amount, expected_output, expected_profit_usd, gas_estimate,
			gas_cost_usd, net_profit_usd, profit_percentage, block_number,
			status, detected_at
		FROM opportunities
		ORDER BY detected_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("dbwriter: recent opportunities: %w", err)
	}
	return rows, nil
}

// OpportunityRow mirrors the opportunities table for read-back queries.
type OpportunityRow struct {
	ID                string    `db:"id"`
	ChainID           uint64    `db:"chain_id"`
	Pool1             string    `db:"pool1"`
	Pool2             string    `db:"pool2"`
	Pool3             string    `db:"pool3"`
	TokenA            string    `db:"token_a"`
	TokenB            string    `db:"token_b"`
	TokenC            string    `db:"token_c"`
	InputAmount       string    `db:"input_amount"`
	ExpectedOutput    string    `db:"expected_output"`
	ExpectedProfitUSD string    `db:"expected_profit_usd"`
	GasEstimate       uint64    `db:"gas_estimate"`
	GasCostUSD        string    `db:"gas_cost_usd"`
	NetProfitUSD      string    `db:"net_profit_usd"`
	ProfitPercentage  string    `db:"profit_percentage"`
	BlockNumber       uint64    `db:"block_number"`
	Status            string    `db:"status"`
	DetectedAt        time.Time `db:"detected_at"`
}
