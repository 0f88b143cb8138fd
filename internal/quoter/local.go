// Package quoter implements the two quoting modes spec.md §4.3 describes:
// a fast local single-tick estimate over cached pool state, and an on-chain
// QuoterV2 call for the authoritative, cross-tick-aware figure.
package quoter

import "math/big"

const (
	feeDenominatorPPM = 1_000_000
	// safetyDiscountNum/Den apply the 5% haircut spec.md §4.3 requires to
	// compensate for the local formula's inability to see tick crossings.
	safetyDiscountNum = 95
	safetyDiscountDen = 100
)

var q192 = new(big.Int).Lsh(big.NewInt(1), 192)

// LocalQuote computes the single-tick amount_out estimate from cached pool
// state, per spec.md §4.3's formula. Returns ok=false on zero liquidity,
// zero sqrt price, or any other condition that would otherwise need a
// divide-by-zero or produce a meaningless result.
func LocalQuote(sqrtPriceX96, liquidity, amountIn *big.Int, zeroForOne bool, feePPM uint32) (amountOut *big.Int, ok bool) {
	if sqrtPriceX96 == nil || sqrtPriceX96.Sign() <= 0 {
		return nil, false
	}
	if liquidity == nil || liquidity.Sign() <= 0 {
		return nil, false
	}
	if amountIn == nil || amountIn.Sign() <= 0 {
		return nil, false
	}
	if feePPM >= feeDenominatorPPM {
		return nil, false
	}

	netIn := new(big.Int).Mul(amountIn, big.NewInt(int64(feeDenominatorPPM-feePPM)))
	netIn.Quo(netIn, big.NewInt(feeDenominatorPPM))
	if netIn.Sign() <= 0 {
		return nil, false
	}

	sqrtPriceSq := new(big.Int).Mul(sqrtPriceX96, sqrtPriceX96)

	var raw *big.Int
	if zeroForOne {
		// out ≈ amount_in_net * sqrtP^2 / 2^192
		raw = new(big.Int).Mul(netIn, sqrtPriceSq)
		raw.Quo(raw, q192)
	} else {
		// out ≈ amount_in_net * 2^192 / sqrtP^2
		if sqrtPriceSq.Sign() == 0 {
			return nil, false
		}
		raw = new(big.Int).Mul(netIn, q192)
		raw.Quo(raw, sqrtPriceSq)
	}
	if raw.Sign() <= 0 {
		return nil, false
	}

	raw.Mul(raw, big.NewInt(safetyDiscountNum))
	raw.Quo(raw, big.NewInt(safetyDiscountDen))
	if raw.Sign() <= 0 {
		return nil, false
	}
	return raw, true
}
