package quoter

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalQuote_ZeroForOne(t *testing.T) {
	// sqrtPriceX96 = 2^96 represents price == 1.0
	sqrtPrice := new(big.Int).Lsh(big.NewInt(1), 96)
	liquidity := big.NewInt(1_000_000_000)
	amountIn := big.NewInt(1_000_000)

	out, ok := LocalQuote(sqrtPrice, liquidity, amountIn, true, 3000)
	require.True(t, ok)
	assert.True(t, out.Sign() > 0)
	// price 1.0 and 0.3% fee and 5% safety discount should land well under amountIn
	assert.True(t, out.Cmp(amountIn) < 0)
}

func TestLocalQuote_OneForZero_IsApproximateInverse(t *testing.T) {
	sqrtPrice := new(big.Int).Lsh(big.NewInt(1), 96)
	liquidity := big.NewInt(1_000_000_000)
	amountIn := big.NewInt(1_000_000)

	outZeroForOne, ok := LocalQuote(sqrtPrice, liquidity, amountIn, true, 0)
	require.True(t, ok)
	outOneForZero, ok := LocalQuote(sqrtPrice, liquidity, amountIn, false, 0)
	require.True(t, ok)

	// at price == 1.0 both directions should yield the same discounted amount
	assert.Equal(t, outZeroForOne, outOneForZero)
}

func TestLocalQuote_ZeroLiquidityFails(t *testing.T) {
	sqrtPrice := new(big.Int).Lsh(big.NewInt(1), 96)
	_, ok := LocalQuote(sqrtPrice, big.NewInt(0), big.NewInt(1000), true, 3000)
	assert.False(t, ok)
}

func TestLocalQuote_NilSqrtPriceFails(t *testing.T) {
	_, ok := LocalQuote(nil, big.NewInt(1), big.NewInt(1000), true, 3000)
	assert.False(t, ok)
}

func TestLocalQuote_FeeAtOrAboveDenominatorFails(t *testing.T) {
	sqrtPrice := new(big.Int).Lsh(big.NewInt(1), 96)
	_, ok := LocalQuote(sqrtPrice, big.NewInt(1_000_000), big.NewInt(1000), true, 1_000_000)
	assert.False(t, ok)
}

func TestLocalQuote_SafetyDiscountApplied(t *testing.T) {
	sqrtPrice := new(big.Int).Lsh(big.NewInt(1), 96)
	liquidity := big.NewInt(1_000_000_000)
	amountIn := big.NewInt(1_000_000)

	out, ok := LocalQuote(sqrtPrice, liquidity, amountIn, true, 0)
	require.True(t, ok)
	// with zero fee and price 1.0, undiscounted out would equal amountIn;
	// the 5% discount must bring it to exactly 95% of that.
	assert.Equal(t, big.NewInt(950_000), out)
}
