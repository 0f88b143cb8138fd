package poolcache

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flashtri/arbengine/internal/types"
)

func TestApplySwapEvent(t *testing.T) {
	c := New()
	pool := common.HexToAddress("0x1")
	c.Register(types.Pool{Address: pool, Token0: common.HexToAddress("0x1"), Token1: common.HexToAddress("0x2")})

	c.ApplySwapEvent(types.SwapEvent{
		PoolAddress:  pool,
		BlockNumber:  100,
		SqrtPriceX96: big.NewInt(123456),
		HasSqrtPrice: true,
		Liquidity:    big.NewInt(999),
		HasLiquidity: true,
		Tick:         42,
		HasTick:      true,
	})

	state, ok := c.State(pool)
	require.True(t, ok)
	assert.Equal(t, uint64(100), state.LastRefreshedBlock)
	assert.Equal(t, big.NewInt(123456), state.SqrtPriceX96)
	assert.Equal(t, big.NewInt(999), state.Liquidity)
	assert.Equal(t, int32(42), state.Tick)
}

func TestApplySwapEvent_UnmonitoredPoolIgnored(t *testing.T) {
	c := New()
	c.ApplySwapEvent(types.SwapEvent{PoolAddress: common.HexToAddress("0xdead"), BlockNumber: 1})
	_, ok := c.State(common.HexToAddress("0xdead"))
	assert.False(t, ok)
}

func TestApplyRefresh_PerPoolFailureKeepsPriorState(t *testing.T) {
	c := New()
	pool := common.HexToAddress("0x1")
	c.Register(types.Pool{Address: pool})
	c.ApplySwapEvent(types.SwapEvent{
		PoolAddress: pool, BlockNumber: 50,
		SqrtPriceX96: big.NewInt(111), HasSqrtPrice: true,
	})

	c.ApplyRefresh(51, map[common.Address]RefreshedState{
		pool: {OK: false},
	})

	state, ok := c.State(pool)
	require.True(t, ok)
	assert.Equal(t, uint64(50), state.LastRefreshedBlock, "failed refresh must not bump last_refreshed_block")
	assert.Equal(t, big.NewInt(111), state.SqrtPriceX96)
}

func TestApplyRefresh_SuccessUpdatesState(t *testing.T) {
	c := New()
	pool := common.HexToAddress("0x1")
	c.Register(types.Pool{Address: pool})

	c.ApplyRefresh(200, map[common.Address]RefreshedState{
		pool: {OK: true, SqrtPriceX96: big.NewInt(777), Tick: 10, Liquidity: big.NewInt(55)},
	})

	state, ok := c.State(pool)
	require.True(t, ok)
	assert.Equal(t, uint64(200), state.LastRefreshedBlock)
	assert.Equal(t, big.NewInt(777), state.SqrtPriceX96)
	assert.True(t, state.HasTick)
	assert.Equal(t, int32(10), state.Tick)
}

func TestRegisterIdempotent(t *testing.T) {
	c := New()
	pool := common.HexToAddress("0x1")
	c.Register(types.Pool{Address: pool, FeePPM: 3000})
	c.ApplySwapEvent(types.SwapEvent{PoolAddress: pool, BlockNumber: 5, SqrtPriceX96: big.NewInt(1), HasSqrtPrice: true})
	c.Register(types.Pool{Address: pool, FeePPM: 3000})

	state, ok := c.State(pool)
	require.True(t, ok)
	assert.Equal(t, uint64(5), state.LastRefreshedBlock, "re-registering must not reset existing state")
}
