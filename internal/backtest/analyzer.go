package backtest

import (
	"fmt"
	"sort"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// Analyzer replays a chronological SwapRecord stream into per-block price
// and volume snapshots and emits ranked ArbitrageOpportunity records
// (spec.md §4.7).
type Analyzer struct {
	cfg    Config
	tokens TokenIndex
	pools  PoolIndex
}

// New builds an Analyzer for one backtest run.
func New(cfg Config, tokens TokenIndex, pools PoolIndex) *Analyzer {
	cfg.setDefaults()
	return &Analyzer{cfg: cfg, tokens: tokens, pools: pools}
}

// Run executes the full per-block procedure (spec.md §4.7 steps 1-4) over
// every configured Path and returns the aggregated statistics.
func (a *Analyzer) Run(records []SwapRecord, paths []Path) *BacktestStatistics {
	byBlock := groupByBlock(records)
	blockNumbers := sortedBlockNumbers(byBlock)

	stats := &BacktestStatistics{
		PathStats:      make(map[string]*PathStatistics),
		TotalVolumeUSD: decimal.Zero,
	}
	if len(blockNumbers) > 0 {
		stats.StartBlock = blockNumbers[0]
		stats.EndBlock = blockNumbers[len(blockNumbers)-1]
	}

	for _, block := range blockNumbers {
		blockRecords := byBlock[block]
		stats.BlocksWithSwaps++

		blockPrices := buildBlockPrices(blockRecords)
		blockVolumes := buildBlockVolumes(blockRecords)
		for _, v := range blockVolumes {
			stats.TotalVolumeUSD = stats.TotalVolumeUSD.Add(v)
		}

		for _, path := range paths {
			triggerVolume, ok := blockVolumes[path.TriggerPool]
			if !ok || triggerVolume.LessThan(decimal.NewFromInt(minTriggerVolumeUSD)) {
				continue
			}
			opps := a.replayPath(path, block, triggerVolume, blockPrices, blockRecords)
			for _, opp := range opps {
				a.recordOpportunity(stats, opp)
			}
		}
	}

	sort.Slice(stats.ProfitableOpportunities, func(i, j int) bool {
		return stats.ProfitableOpportunities[i].NetProfitUSD.GreaterThan(stats.ProfitableOpportunities[j].NetProfitUSD)
	})
	return stats
}

// replayPath implements spec.md §4.7 step 4's per-PoolPath replay across
// every configured capture percentage.
func (a *Analyzer) replayPath(path Path, block uint64, triggerVolume decimal.Decimal, blockPrices map[common.Address]PoolSnapshot, blockRecords []SwapRecord) []ArbitrageOpportunity {
	priceA, okA := resolveTokenPriceUSD(a.cfg.ChainID, path.TokenA, blockPrices, a.tokens, a.pools)
	if !okA || priceA.IsZero() {
		return nil
	}

	var out []ArbitrageOpportunity
	for _, pct := range a.cfg.CapturePercentages {
		inputUSD := triggerVolume.Mul(decimal.NewFromInt(int64(pct))).Div(decimal.NewFromInt(100))
		if inputUSD.LessThan(decimal.NewFromInt(minInputUSD)) {
			continue
		}

		amountA := inputUSD.Div(priceA)

		step1, amountB, ok := replayHop(a.cfg.ChainID, path.Pool1, path.TokenA, path.TokenB, path.Fee1PPM, amountA, blockPrices, a.tokens)
		if !ok {
			continue
		}
		step2, amountC, ok := replayHop(a.cfg.ChainID, path.Pool2, path.TokenB, path.TokenC, path.Fee2PPM, amountB, blockPrices, a.tokens)
		if !ok {
			continue
		}
		step3, amountAOut, ok := replayHop(a.cfg.ChainID, path.Pool3, path.TokenC, path.TokenA, path.Fee3PPM, amountC, blockPrices, a.tokens)
		if !ok {
			continue
		}

		outputUSD := amountAOut.Mul(priceA)
		grossProfitUSD := outputUSD.Sub(inputUSD)
		gasCostUSD := a.cfg.GasCostUSDPerUnit(a.cfg.FixedGasPriceGwei)
		flashLoanFeeUSD := inputUSD.Mul(decimal.NewFromInt(int64(path.Fee1PPM))).Div(decimal.NewFromInt(1_000_000))
		netProfitUSD := grossProfitUSD.Sub(gasCostUSD).Sub(flashLoanFeeUSD)

		out = append(out, ArbitrageOpportunity{
			PathName:        path.PathName,
			ChainID:         a.cfg.ChainID,
			BlockNumber:     block,
			CapturePercent:  pct,
			InputUSD:        inputUSD,
			OutputUSD:       outputUSD,
			GrossProfitUSD:  grossProfitUSD,
			GasCostUSD:      gasCostUSD,
			FlashLoanFeeUSD: flashLoanFeeUSD,
			NetProfitUSD:    netProfitUSD,
			Steps:           [3]StepBreakdown{step1, step2, step3},
			Timestamp:       blockRecords[0].Timestamp,
		})
	}
	return out
}

// replayHop implements spec.md §4.7 step c's single-hop local replay
// formula against a block's price snapshot. Pool token order follows the
// Uniswap V3 convention (token0 is the lexicographically smaller
// address), since a backtest Path carries only the four token/pool
// addresses and not a resolved Pool record.
func replayHop(chainID uint64, pool common.Address, tokenIn, tokenOut common.Address, feePPM uint32, amountIn decimal.Decimal, blockPrices map[common.Address]PoolSnapshot, tokens TokenIndex) (StepBreakdown, decimal.Decimal, bool) {
	snap, ok := blockPrices[pool]
	if !ok {
		return StepBreakdown{}, decimal.Zero, false
	}
	tIn, okIn := tokens.TokenConfig(chainID, tokenIn)
	tOut, okOut := tokens.TokenConfig(chainID, tokenOut)
	if !okIn || !okOut {
		return StepBreakdown{}, decimal.Zero, false
	}

	zeroForOne := tokenIn.Big().Cmp(tokenOut.Big()) < 0
	var ratio decimal.Decimal
	if zeroForOne {
		ratio = sqrtPriceToDecimalRatio(snap.SqrtPriceX96, tIn.Decimals, tOut.Decimals) // token_out per token_in
	} else {
		inverse := sqrtPriceToDecimalRatio(snap.SqrtPriceX96, tOut.Decimals, tIn.Decimals)
		if inverse.IsZero() {
			return StepBreakdown{}, decimal.Zero, false
		}
		ratio = decimal.NewFromInt(1).Div(inverse)
	}
	if ratio.IsZero() {
		return StepBreakdown{}, decimal.Zero, false
	}
	feeFactor := decimal.NewFromInt(1).Sub(decimal.NewFromInt(int64(feePPM)).Div(decimal.NewFromInt(1_000_000)))

	amountOut := amountIn.Mul(ratio).Mul(feeFactor)

	step := StepBreakdown{
		PoolAddress: pool,
		TokenIn:     tokenIn,
		TokenOut:    tokenOut,
		FeePPM:      feePPM,
		AmountIn:    amountIn,
		AmountOut:   amountOut,
		Description: fmt.Sprintf("swap %s %s -> %s via pool %s (fee %d ppm)", amountIn.StringFixed(6), tokenIn.Hex(), tokenOut.Hex(), pool.Hex(), feePPM),
	}
	return step, amountOut, true
}

func (a *Analyzer) recordOpportunity(stats *BacktestStatistics, opp ArbitrageOpportunity) {
	ps, ok := stats.PathStats[opp.PathName]
	if !ok {
		ps = &PathStatistics{PathName: opp.PathName, SumProfitUSD: decimal.Zero, MaxProfitUSD: decimal.Zero}
		stats.PathStats[opp.PathName] = ps
	}
	ps.Count++
	ps.SumProfitUSD = ps.SumProfitUSD.Add(opp.NetProfitUSD)
	if opp.NetProfitUSD.GreaterThan(ps.MaxProfitUSD) {
		ps.MaxProfitUSD = opp.NetProfitUSD
	}
	if ps.BestOpportunity == nil || opp.NetProfitUSD.GreaterThan(ps.BestOpportunity.NetProfitUSD) {
		oppCopy := opp
		ps.BestOpportunity = &oppCopy
	}
	if opp.NetProfitUSD.GreaterThan(decimal.Zero) {
		ps.ProfitableCount++
		stats.ProfitableOpportunities = append(stats.ProfitableOpportunities, opp)
	}
	ps.AvgProfitUSD = ps.SumProfitUSD.Div(decimal.NewFromInt(int64(ps.Count)))
}

func groupByBlock(records []SwapRecord) map[uint64][]SwapRecord {
	out := make(map[uint64][]SwapRecord)
	for _, r := range records {
		out[r.BlockNumber] = append(out[r.BlockNumber], r)
	}
	return out
}

func sortedBlockNumbers(byBlock map[uint64][]SwapRecord) []uint64 {
	out := make([]uint64, 0, len(byBlock))
	for b := range byBlock {
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// buildBlockPrices keeps the last-observed-in-block snapshot per pool,
// per spec.md §4.7 step 2 (records arrive in chronological order within
// a block).
func buildBlockPrices(records []SwapRecord) map[common.Address]PoolSnapshot {
	out := make(map[common.Address]PoolSnapshot)
	for _, r := range records {
		out[r.PoolAddress] = PoolSnapshot{
			SqrtPriceX96: r.SqrtPriceX96,
			Tick:         r.Tick,
			Liquidity:    r.Liquidity,
		}
	}
	return out
}

// buildBlockVolumes sums USD volume per pool within the block (spec.md
// §4.7 step 3).
func buildBlockVolumes(records []SwapRecord) map[common.Address]decimal.Decimal {
	out := make(map[common.Address]decimal.Decimal)
	for _, r := range records {
		out[r.PoolAddress] = out[r.PoolAddress].Add(r.USDVolume)
	}
	return out
}
