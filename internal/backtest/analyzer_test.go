package backtest

import (
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	poolUSDCLINK = common.HexToAddress("0xbbbb000000000000000000000000000000000a")
)

func fixedGasCost(gwei float64) decimal.Decimal {
	return decimal.NewFromFloat(1) // flat $1 gas cost, keeps the arithmetic legible
}

func TestAnalyzer_Run_ReplaysThreeHopPath(t *testing.T) {
	tokens := newFakeTokenIndex()

	cfg := Config{
		ChainID:            1,
		CapturePercentages: []uint8{100},
		GasCostUSDPerUnit:  fixedGasCost,
		FixedGasPriceGwei:  10,
	}
	analyzer := New(cfg, tokens, newFakePoolIndex())

	path := Path{
		PathName:    "usdc-weth-link",
		TriggerPool: poolUSDCWETH,
		Pool1:       poolUSDCWETH,
		Pool2:       poolLINKWETH,
		Pool3:       poolUSDCLINK,
		TokenA:      usdc,
		TokenB:      weth,
		TokenC:      link,
		Fee1PPM:     500,
		Fee2PPM:     3000,
		Fee3PPM:     500,
	}

	now := time.Unix(1700000000, 0)
	records := []SwapRecord{
		{
			ChainID:      1,
			BlockNumber:  100,
			PoolAddress:  poolUSDCWETH,
			Amount0:      decimal.NewFromInt(-1000),
			SqrtPriceX96: sqrtPriceForHumanRatio(t, 1.0/2000.0, 6, 18),
			USDVolume:    decimal.NewFromInt(5000),
			Timestamp:    now,
		},
		{
			ChainID:     1,
			BlockNumber: 100,
			PoolAddress: poolLINKWETH,
			// 1 WETH = 200 LINK -> LINK-per-WETH human ratio = 200
			SqrtPriceX96: sqrtPriceForHumanRatio(t, 200, 18, 18),
			USDVolume:    decimal.NewFromInt(500),
			Timestamp:    now,
		},
		{
			ChainID:     1,
			BlockNumber: 100,
			PoolAddress: poolUSDCLINK,
			// LINK at $10, USDC at $1 -> LINK-per-USDC human ratio = 0.1
			SqrtPriceX96: sqrtPriceForHumanRatio(t, 0.1, 6, 18),
			USDVolume:    decimal.NewFromInt(500),
			Timestamp:    now,
		},
	}

	stats := analyzer.Run(records, []Path{path})

	require.Equal(t, uint64(100), stats.StartBlock)
	require.Equal(t, uint64(100), stats.EndBlock)
	require.Equal(t, 1, stats.BlocksWithSwaps)
	require.Contains(t, stats.PathStats, "usdc-weth-link")

	ps := stats.PathStats["usdc-weth-link"]
	assert.Equal(t, 1, ps.Count)
	require.NotNil(t, ps.BestOpportunity)
	assert.Equal(t, uint8(100), ps.BestOpportunity.CapturePercent)
	assert.True(t, ps.BestOpportunity.InputUSD.Equal(decimal.NewFromInt(5000)))
}

func TestAnalyzer_Run_SkipsBelowMinTriggerVolume(t *testing.T) {
	tokens := newFakeTokenIndex()
	pools := newFakePoolIndex()
	cfg := Config{ChainID: 1}
	analyzer := New(cfg, tokens, pools)

	path := Path{
		PathName:    "tiny",
		TriggerPool: poolUSDCWETH,
		Pool1:       poolUSDCWETH,
		Pool2:       poolLINKWETH,
		Pool3:       poolUSDCLINK,
		TokenA:      usdc,
		TokenB:      weth,
		TokenC:      link,
	}
	records := []SwapRecord{
		{BlockNumber: 1, PoolAddress: poolUSDCWETH, USDVolume: decimal.NewFromInt(10), SqrtPriceX96: sqrtPriceForHumanRatio(t, 1.0/2000.0, 6, 18)},
	}

	stats := analyzer.Run(records, []Path{path})
	assert.Empty(t, stats.PathStats)
}

func TestAnalyzer_Run_NoPathsNoRecordsIsEmpty(t *testing.T) {
	tokens := newFakeTokenIndex()
	pools := newFakePoolIndex()
	analyzer := New(Config{ChainID: 1}, tokens, pools)
	stats := analyzer.Run(nil, nil)
	assert.Equal(t, 0, stats.BlocksWithSwaps)
	assert.True(t, stats.TotalVolumeUSD.IsZero())
}

func TestGroupByBlock_GroupsRecordsByBlockNumber(t *testing.T) {
	records := []SwapRecord{
		{BlockNumber: 1}, {BlockNumber: 2}, {BlockNumber: 1},
	}
	grouped := groupByBlock(records)
	assert.Len(t, grouped[1], 2)
	assert.Len(t, grouped[2], 1)
}

func TestBuildBlockVolumes_SumsPerPool(t *testing.T) {
	records := []SwapRecord{
		{PoolAddress: poolUSDCWETH, USDVolume: decimal.NewFromInt(100)},
		{PoolAddress: poolUSDCWETH, USDVolume: decimal.NewFromInt(50)},
	}
	volumes := buildBlockVolumes(records)
	assert.True(t, volumes[poolUSDCWETH].Equal(decimal.NewFromInt(150)))
}
