package backtest

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/flashtri/arbengine/internal/types"
)

// q192 is 2^192, the Q96 fixed-point denominator squared (spec.md §4.3's
// sqrtPriceX96 convention, reused here for the backtest's own price math).
var q192 = new(big.Int).Lsh(big.NewInt(1), 192)

// TokenIndex resolves a token's static configuration for the backtest's
// price-chaining rule (spec.md §4.7's "Token price resolution").
type TokenIndex interface {
	TokenConfig(chainID uint64, addr common.Address) (types.TokenConfig, bool)
	IsStable(chainID uint64, addr common.Address) bool
	WETH(chainID uint64) (common.Address, bool)
}

// PoolIndex resolves every registered pool a token participates in, for
// the stablecoin/WETH pairing search.
type PoolIndex interface {
	PoolsForToken(chainID uint64, token common.Address) []types.Pool
}

// sqrtPriceToDecimalRatio converts a Q96 sqrtPriceX96 into the token1-per-
// token0 ratio, decimals-adjusted, per spec.md §4.7 step c's
// "sqrtPriceX96_to_price(decimals0, decimals1)".
func sqrtPriceToDecimalRatio(sqrtPriceX96 decimal.Decimal, decimals0, decimals1 uint8) decimal.Decimal {
	if sqrtPriceX96.IsZero() {
		return decimal.Zero
	}
	sqrtBig := sqrtPriceX96.BigInt()
	numerator := new(big.Int).Mul(sqrtBig, sqrtBig)
	rawRatio := decimal.NewFromBigInt(numerator, 0).Div(decimal.NewFromBigInt(q192, 0))
	scale := decimal.New(1, int32(decimals0)-int32(decimals1))
	return rawRatio.Mul(scale)
}

// resolveTokenPriceUSD implements spec.md §4.7's "Token price resolution":
// stablecoins are 1.0; otherwise find a pool pairing the token with a
// stablecoin present in this block's snapshots; failing that, chain
// through a WETH pairing. Returns (price, false) if unresolvable.
func resolveTokenPriceUSD(chainID uint64, token common.Address, blockPrices map[common.Address]PoolSnapshot, tokens TokenIndex, pools PoolIndex) (decimal.Decimal, bool) {
	if tokens.IsStable(chainID, token) {
		return decimal.NewFromInt(1), true
	}

	if price, ok := directStablePrice(chainID, token, blockPrices, tokens, pools); ok {
		return price, true
	}

	weth, ok := tokens.WETH(chainID)
	if !ok || weth == token {
		return decimal.Zero, false
	}
	tokenPerWETH, ok := pairRatio(chainID, token, weth, blockPrices, tokens, pools)
	if !ok {
		return decimal.Zero, false
	}
	wethPriceUSD, ok := directStablePrice(chainID, weth, blockPrices, tokens, pools)
	if !ok {
		return decimal.Zero, false
	}
	return tokenPerWETH.Mul(wethPriceUSD), true
}

// directStablePrice finds a pool pairing token with any stablecoin that
// has a block-level price snapshot, and returns the implied USD price.
func directStablePrice(chainID uint64, token common.Address, blockPrices map[common.Address]PoolSnapshot, tokens TokenIndex, pools PoolIndex) (decimal.Decimal, bool) {
	for _, pool := range pools.PoolsForToken(chainID, token) {
		other := pool.Token1
		if pool.Token0 != token {
			other = pool.Token0
		}
		if !tokens.IsStable(chainID, other) {
			continue
		}
		if ratio, ok := pairRatioFromPool(pool, token, blockPrices, tokens); ok {
			return ratio, true
		}
	}
	return decimal.Zero, false
}

// pairRatio returns the price of `token` denominated in `quote`, searching
// the registered pools for a direct pairing with a block snapshot.
func pairRatio(chainID uint64, token, quote common.Address, blockPrices map[common.Address]PoolSnapshot, tokens TokenIndex, pools PoolIndex) (decimal.Decimal, bool) {
	for _, pool := range pools.PoolsForToken(chainID, token) {
		other := pool.Token1
		if pool.Token0 != token {
			other = pool.Token0
		}
		if other != quote {
			continue
		}
		if ratio, ok := pairRatioFromPool(pool, token, blockPrices, tokens); ok {
			return ratio, true
		}
	}
	return decimal.Zero, false
}

func pairRatioFromPool(pool types.Pool, token common.Address, blockPrices map[common.Address]PoolSnapshot, tokens TokenIndex) (decimal.Decimal, bool) {
	snap, ok := blockPrices[pool.Address]
	if !ok {
		return decimal.Zero, false
	}
	t0, ok0 := tokens.TokenConfig(pool.ChainID, pool.Token0)
	t1, ok1 := tokens.TokenConfig(pool.ChainID, pool.Token1)
	if !ok0 || !ok1 {
		return decimal.Zero, false
	}
	ratio := sqrtPriceToDecimalRatio(snap.SqrtPriceX96, t0.Decimals, t1.Decimals) // token1 per token0
	if ratio.IsZero() {
		return decimal.Zero, false
	}
	if pool.Token0 == token {
		return ratio, true // price of token (=token0) in terms of token1
	}
	return decimal.NewFromInt(1).Div(ratio), true // price of token (=token1) in terms of token0
}
