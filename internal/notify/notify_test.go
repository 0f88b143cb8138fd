package notify

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flashtri/arbengine/internal/dispatcher"
	"github.com/flashtri/arbengine/internal/types"
	"github.com/flashtri/arbengine/pkg/logger"
)

func TestNoOp_NeverErrors(t *testing.T) {
	var n Notifier = NoOp{}
	err := n.NotifyExecution(nil, nil, &types.Opportunity{ID: "x"}, nil)
	require.NoError(t, err)
}

func TestSMTPNotifier_EmptyHostSkipsSend(t *testing.T) {
	n := NewSMTPNotifier(SMTPConfig{}, logger.Nop())
	err := n.NotifyExecution(nil, nil, &types.Opportunity{ID: "x", NetProfitUSD: decimal.NewFromInt(5)}, nil)
	require.NoError(t, err)
}

func TestRenderHTML_IncludesBalancesAndResult(t *testing.T) {
	opp := &types.Opportunity{ID: "opp-1", ChainID: 1, BlockNumber: 10, NetProfitUSD: decimal.NewFromFloat(12.5)}
	result := &dispatcher.Result{Mode: dispatcher.SendNormal, Confirmed: true}
	before := []types.Balance{{Symbol: "USDT", Amount: decimal.NewFromInt(100), USDValue: decimal.NewFromInt(100)}}
	after := []types.Balance{{Symbol: "USDT", Amount: decimal.NewFromInt(112), USDValue: decimal.NewFromInt(112)}}

	html := renderHTML(before, after, opp, result)
	assert.Contains(t, html, "opp-1")
	assert.Contains(t, html, "Before")
	assert.Contains(t, html, "After")
	assert.Contains(t, html, "USDT")
	assert.Contains(t, html, "112")
}

func TestFormatProfit_NilProfit(t *testing.T) {
	assert.Equal(t, "unknown", formatProfit(&dispatcher.Result{}))
}
