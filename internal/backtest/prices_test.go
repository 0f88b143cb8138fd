package backtest

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/flashtri/arbengine/internal/types"
)

var (
	usdc = common.HexToAddress("0x1000000000000000000000000000000000000a")
	weth = common.HexToAddress("0x2000000000000000000000000000000000000b")
	dai  = common.HexToAddress("0x3000000000000000000000000000000000000c")
	link = common.HexToAddress("0x4000000000000000000000000000000000000d")

	poolUSDCWETH = common.HexToAddress("0xaaaa000000000000000000000000000000000a")
	poolLINKWETH = common.HexToAddress("0xaaaa000000000000000000000000000000000b")
)

type fakeTokenIndex struct {
	configs map[common.Address]types.TokenConfig
	stable  map[common.Address]bool
	weth    common.Address
}

func newFakeTokenIndex() *fakeTokenIndex {
	return &fakeTokenIndex{
		configs: map[common.Address]types.TokenConfig{
			usdc: {Address: usdc, Symbol: "USDC", Decimals: 6, IsStable: true},
			weth: {Address: weth, Symbol: "WETH", Decimals: 18},
			dai:  {Address: dai, Symbol: "DAI", Decimals: 18, IsStable: true},
			link: {Address: link, Symbol: "LINK", Decimals: 18},
		},
		stable: map[common.Address]bool{usdc: true, dai: true},
		weth:   weth,
	}
}

func (f *fakeTokenIndex) TokenConfig(chainID uint64, addr common.Address) (types.TokenConfig, bool) {
	cfg, ok := f.configs[addr]
	return cfg, ok
}
func (f *fakeTokenIndex) IsStable(chainID uint64, addr common.Address) bool { return f.stable[addr] }
func (f *fakeTokenIndex) WETH(chainID uint64) (common.Address, bool)        { return f.weth, true }

type fakePoolIndex struct {
	byToken map[common.Address][]types.Pool
}

func newFakePoolIndex() *fakePoolIndex {
	pools := []types.Pool{
		{Address: poolUSDCWETH, Token0: usdc, Token1: weth, FeePPM: 500},
		{Address: poolLINKWETH, Token0: link, Token1: weth, FeePPM: 3000},
	}
	idx := &fakePoolIndex{byToken: make(map[common.Address][]types.Pool)}
	for _, p := range pools {
		idx.byToken[p.Token0] = append(idx.byToken[p.Token0], p)
		idx.byToken[p.Token1] = append(idx.byToken[p.Token1], p)
	}
	return idx
}

func (f *fakePoolIndex) PoolsForToken(chainID uint64, token common.Address) []types.Pool {
	return f.byToken[token]
}

// sqrtPriceForHumanRatio builds a sqrtPriceX96 whose decimals-adjusted
// token1-per-token0 ratio (as sqrtPriceToDecimalRatio computes it) equals
// humanRatio, given the pool's token decimals.
func sqrtPriceForHumanRatio(t *testing.T, humanRatio float64, decimals0, decimals1 uint8) decimal.Decimal {
	t.Helper()
	rawRatio := humanRatio * pow10(int(decimals1)-int(decimals0))
	r := new(big.Float).SetFloat64(rawRatio)
	sqrtRatio := new(big.Float).Sqrt(r)
	q96 := new(big.Float).SetInt(new(big.Int).Lsh(big.NewInt(1), 96))
	sqrtPrice := new(big.Float).Mul(sqrtRatio, q96)
	i, _ := sqrtPrice.Int(nil)
	return decimal.NewFromBigInt(i, 0)
}

func pow10(exp int) float64 {
	out := 1.0
	if exp >= 0 {
		for i := 0; i < exp; i++ {
			out *= 10
		}
		return out
	}
	for i := 0; i < -exp; i++ {
		out /= 10
	}
	return out
}

func TestSqrtPriceToDecimalRatio_OneToOne(t *testing.T) {
	sp := sqrtPriceForHumanRatio(t, 1.0, 18, 18)
	ratio := sqrtPriceToDecimalRatio(sp, 18, 18)
	assert.True(t, ratio.Sub(decimal.NewFromInt(1)).Abs().LessThan(decimal.NewFromFloat(0.0001)))
}

func TestSqrtPriceToDecimalRatio_Zero(t *testing.T) {
	assert.True(t, sqrtPriceToDecimalRatio(decimal.Zero, 18, 18).IsZero())
}

func TestResolveTokenPriceUSD_StablecoinIsOne(t *testing.T) {
	tokens := newFakeTokenIndex()
	pools := newFakePoolIndex()
	price, ok := resolveTokenPriceUSD(1, usdc, nil, tokens, pools)
	assert.True(t, ok)
	assert.True(t, price.Equal(decimal.NewFromInt(1)))
}

func TestResolveTokenPriceUSD_DirectStablePair(t *testing.T) {
	tokens := newFakeTokenIndex()
	pools := newFakePoolIndex()
	// 1 WETH = 2000 USDC -> WETH-per-USDC human ratio = 1/2000
	blockPrices := map[common.Address]PoolSnapshot{
		poolUSDCWETH: {SqrtPriceX96: sqrtPriceForHumanRatio(t, 1.0/2000.0, 6, 18)},
	}
	price, ok := resolveTokenPriceUSD(1, weth, blockPrices, tokens, pools)
	assert.True(t, ok)
	assert.True(t, price.Sub(decimal.NewFromInt(2000)).Abs().LessThan(decimal.NewFromFloat(1)))
}

func TestResolveTokenPriceUSD_ChainsThroughWETH(t *testing.T) {
	tokens := newFakeTokenIndex()
	pools := newFakePoolIndex()
	blockPrices := map[common.Address]PoolSnapshot{
		poolUSDCWETH: {SqrtPriceX96: sqrtPriceForHumanRatio(t, 1.0/2000.0, 6, 18)},  // 1 WETH = 2000 USDC
		poolLINKWETH: {SqrtPriceX96: sqrtPriceForHumanRatio(t, 1.0/200.0, 18, 18)}, // 1 WETH = 200 LINK
	}
	price, ok := resolveTokenPriceUSD(1, link, blockPrices, tokens, pools)
	assert.True(t, ok)
	// 1 LINK = 1/200 WETH = (1/200)*2000 = $10
	assert.True(t, price.Sub(decimal.NewFromInt(10)).Abs().LessThan(decimal.NewFromFloat(0.5)))
}

func TestResolveTokenPriceUSD_UnresolvableSkipped(t *testing.T) {
	tokens := newFakeTokenIndex()
	pools := newFakePoolIndex()
	stray := common.HexToAddress("0x9999000000000000000000000000000000000a")
	tokens.configs[stray] = types.TokenConfig{Address: stray, Decimals: 18}
	_, ok := resolveTokenPriceUSD(1, stray, nil, tokens, pools)
	assert.False(t, ok)
}
