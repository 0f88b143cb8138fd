// Package backtest implements BacktestAnalyzer (spec.md §4.7): an offline
// replay of historical swap records into per-block price/volume snapshots,
// producing ranked ArbitrageOpportunity records and PathStatistics.
package backtest

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// SwapRecord is one persisted historical swap, the backtest's input unit
// (spec.md §4.7's "SwapRecord stream").
type SwapRecord struct {
	ChainID      uint64
	BlockNumber  uint64
	PoolAddress  common.Address
	Amount0      decimal.Decimal // signed: negative = token0 left the pool
	Amount1      decimal.Decimal // signed: negative = token1 left the pool
	SqrtPriceX96 decimal.Decimal
	Tick         int32
	Liquidity    decimal.Decimal
	USDVolume    decimal.Decimal
	Timestamp    time.Time
}

// PoolSnapshot is the last-observed-in-block state for one pool, built
// from the block's SwapRecords (spec.md §4.7 step 2).
type PoolSnapshot struct {
	SqrtPriceX96 decimal.Decimal
	Tick         int32
	Liquidity    decimal.Decimal
}

// StepBreakdown describes one hop of a replayed three-hop cycle, for the
// "per-step description" spec.md §4.7 step f names.
type StepBreakdown struct {
	PoolAddress common.Address
	TokenIn     common.Address
	TokenOut    common.Address
	FeePPM      uint32
	AmountIn    decimal.Decimal
	AmountOut   decimal.Decimal
	Description string
}

// ArbitrageOpportunity is one replayed, fully-costed candidate the
// backtest emits (spec.md §4.7 step f).
type ArbitrageOpportunity struct {
	PathName        string
	ChainID         uint64
	BlockNumber     uint64
	CapturePercent  uint8
	InputUSD        decimal.Decimal
	OutputUSD       decimal.Decimal
	GrossProfitUSD  decimal.Decimal
	GasCostUSD      decimal.Decimal
	FlashLoanFeeUSD decimal.Decimal
	NetProfitUSD    decimal.Decimal
	Steps           [3]StepBreakdown
	Timestamp       time.Time
}

// PathStatistics aggregates every opportunity replayed for one path name
// (spec.md §4.7's "Aggregation"). BestOpportunity is the
// original_source-sourced supplement tracking the single best replay
// alongside the scalar aggregates.
type PathStatistics struct {
	PathName        string
	Count           int
	ProfitableCount int
	SumProfitUSD    decimal.Decimal
	MaxProfitUSD    decimal.Decimal
	AvgProfitUSD    decimal.Decimal
	BestOpportunity *ArbitrageOpportunity
}

// BacktestStatistics is the final emitted summary (spec.md §4.7's
// "Aggregation").
type BacktestStatistics struct {
	StartBlock              uint64
	EndBlock                uint64
	BlocksWithSwaps         int
	TotalVolumeUSD          decimal.Decimal
	PathStats               map[string]*PathStatistics
	ProfitableOpportunities []ArbitrageOpportunity
}

// Config bundles a backtest run's tunables (spec.md §4.7's BacktestConfig).
type Config struct {
	ChainID            uint64
	CapturePercentages []uint8
	GasCostUSDPerUnit  func(gasPriceGwei float64) decimal.Decimal
	FixedGasPriceGwei  float64 // spec.md §4.7 step e: "fixed 10 Gwei model"
}

func (c *Config) setDefaults() {
	if c.FixedGasPriceGwei == 0 {
		c.FixedGasPriceGwei = 10
	}
	if len(c.CapturePercentages) == 0 {
		c.CapturePercentages = []uint8{10, 25, 50, 100}
	}
	if c.GasCostUSDPerUnit == nil {
		c.GasCostUSDPerUnit = func(gwei float64) decimal.Decimal {
			// 250,000 gas units at the given gas price, ETH at $3000, a
			// reasonable flat default when no priced model is supplied.
			return decimal.NewFromFloat(gwei).
				Mul(decimal.NewFromInt(250_000)).
				Mul(decimal.NewFromInt(3000)).
				Div(decimal.New(1, 9))
		}
	}
}

const (
	minTriggerVolumeUSD = 100
	minInputUSD         = 100
)
