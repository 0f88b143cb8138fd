package quoter

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/flashtri/arbengine/internal/types"
)

// Client composes the local formula and the on-chain QuoterV2 call behind
// the notional-threshold policy spec.md §4.3 describes: swaps at or above
// SkipLocalThresholdUSD bypass local estimation entirely.
type Client struct {
	onChain               *OnChainClient
	SkipLocalThresholdUSD float64
}

// NewClient wraps an OnChainClient with the local-skip policy threshold.
func NewClient(onChain *OnChainClient, skipLocalThresholdUSD float64) *Client {
	return &Client{onChain: onChain, SkipLocalThresholdUSD: skipLocalThresholdUSD}
}

// Quote returns amount_out for one hop, choosing local or on-chain
// estimation per the configured notional threshold.
func (c *Client) Quote(ctx context.Context, state types.PoolState, tokenIn, tokenOut common.Address, amountIn *big.Int, zeroForOne bool, feePPM uint32, notionalUSD float64) (*big.Int, error) {
	if notionalUSD < c.SkipLocalThresholdUSD {
		if out, ok := LocalQuote(state.SqrtPriceX96, state.Liquidity, amountIn, zeroForOne, feePPM); ok {
			return out, nil
		}
		// local estimation failed (e.g. zero liquidity) — fall through to
		// on-chain rather than silently reporting no route.
	}
	res, err := c.onChain.QuoteExactInputSingle(ctx, tokenIn, tokenOut, amountIn, feePPM)
	if err != nil {
		return nil, err
	}
	return res.AmountOut, nil
}

// OnChainQuote exposes the raw on-chain call for callers (the evaluator's
// step D) that need the full gas_estimate/ticks_crossed detail, not just
// amount_out.
func (c *Client) OnChainQuote(ctx context.Context, tokenIn, tokenOut common.Address, amountIn *big.Int, feePPM uint32) (OnChainResult, error) {
	return c.onChain.QuoteExactInputSingle(ctx, tokenIn, tokenOut, amountIn, feePPM)
}
