package scanner

import (
	"context"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/flashtri/arbengine/internal/evaluator"
	"github.com/flashtri/arbengine/internal/metrics"
	"github.com/flashtri/arbengine/internal/types"
)

// handleNewBlock implements spec.md §4.5's NewBlockEvent handler. It runs
// synchronously on the Scanner's own goroutine — never spawned — so block
// bookkeeping is always serialized with respect to other block events.
func (s *Scanner) handleNewBlock(ctx context.Context, ev types.NewBlockEvent) {
	s.currentBlock.Store(ev.BlockNumber)
	metrics.Metrics.CurrentBlock.WithLabelValues(s.chainLabel).Set(float64(ev.BlockNumber))

	if ev.BaseFee != nil {
		s.mu.Lock()
		s.gasPriceCache = decimal.NewFromBigInt(ev.BaseFee, -9) // wei -> gwei
		gweiFloat, _ := s.gasPriceCache.Float64()
		s.mu.Unlock()
		metrics.Metrics.GasPriceGwei.WithLabelValues(s.chainLabel).Set(gweiFloat)
	}

	if s.refr != nil {
		if err := s.refr.Refresh(ctx, ev.BlockNumber); err != nil {
			s.log.Warn("pool refresh failed", "block", ev.BlockNumber, "error", err)
		}
	}

	s.sweepExpired()

	if ev.BlockNumber%s.cfg.RPCStatsEveryNBlocks == 0 {
		s.logRPCStats(ev.BlockNumber)
	}
}

// sweepExpired evicts processedTxHashes/executedPaths entries older than
// the configured dedup TTL (spec.md §4.5 step 4).
func (s *Scanner) sweepExpired() {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	for h, at := range s.processedTxHashes {
		if now.Sub(at) >= s.cfg.DedupTTL {
			delete(s.processedTxHashes, h)
		}
	}
	for sig, at := range s.executedPaths {
		if now.Sub(at) >= s.cfg.DedupTTL {
			delete(s.executedPaths, sig)
		}
	}
}

func (s *Scanner) logRPCStats(block uint64) {
	s.mu.Lock()
	pending := len(s.processedTxHashes)
	s.mu.Unlock()
	s.log.Info("rpc stats", "block", block, "monitored_pools", len(s.cache.MonitoredAddresses()), "tracked_tx_hashes", pending)
}

// handleSwapEvent implements spec.md §4.5's SwapEvent handler, minus the
// tx-hash dedupe and semaphore acquisition steps already performed by the
// caller (Run) before this handler is invoked.
func (s *Scanner) handleSwapEvent(ctx context.Context, ev types.SwapEvent) {
	pool, ok := s.cache.Pool(ev.PoolAddress)
	if !ok {
		return // not a monitored pool
	}
	s.cache.ApplySwapEvent(ev)

	notionalUSD := s.swapNotionalUSD(ev, pool)
	if notionalUSD < s.cfg.MinSwapValueUSD {
		return
	}

	paths := s.paths.PathsForPool(ev.ChainID, ev.PoolAddress)
	if len(paths) == 0 {
		if s.paths.HasPoolPathMappings(ev.ChainID) {
			return // mappings exist for this chain but none for this pool
		}
		paths = legacyPathsForPool(s.paths.LegacyTriangles(ev.ChainID), pool, ev.PoolAddress)
	}
	if len(paths) == 0 {
		return
	}

	gasPriceGwei := s.GasPriceGwei()

	var best *types.Opportunity
	for _, path := range paths {
		opp, err := s.eval.Evaluate(ctx, evaluator.Input{
			ChainID:         ev.ChainID,
			Path:            path,
			SwapNotionalUSD: notionalUSD,
			GasPriceGwei:    gasPriceGwei,
			BlockNumber:     ev.BlockNumber,
		})
		if err != nil {
			s.log.Debug("path evaluation failed", "path", path.PathName, "error", err)
			continue
		}
		if opp == nil {
			continue
		}
		if best == nil || opp.NetProfitUSD.GreaterThan(best.NetProfitUSD) {
			best = opp
		}
	}

	if best == nil {
		return
	}
	metrics.Metrics.OpportunitiesDetected.WithLabelValues(s.chainLabel).Inc()

	if s.sink != nil {
		s.sink.Enqueue(best)
	}
	if s.cfg.AutoExecute && s.disp != nil {
		metrics.Metrics.OpportunitiesExecuted.WithLabelValues(s.chainLabel).Inc()
		go func() {
			if _, err := s.disp.Dispatch(ctx, best, gasPriceGwei); err != nil {
				s.log.Warn("auto-execute dispatch failed", "opportunity_id", best.ID, "error", err)
			}
		}()
	}
}

// swapNotionalUSD estimates the USD notional of a swap from whichever side
// carries a known token price, per spec.md §4.5 step 5.
func (s *Scanner) swapNotionalUSD(ev types.SwapEvent, pool types.Pool) float64 {
	amount0 := firstNonNilPositive(ev.Amount0In, ev.Amount0Out)
	amount1 := firstNonNilPositive(ev.Amount1In, ev.Amount1Out)

	if amount0 != nil {
		if price, ok := s.prices.GetPriceByAddress(ev.ChainID, pool.Token0); ok {
			f, _ := decimal.NewFromBigInt(amount0, -int32(s.tokenDecimals(ev.ChainID, pool.Token0))).Mul(price).Float64()
			return f
		}
	}
	if amount1 != nil {
		if price, ok := s.prices.GetPriceByAddress(ev.ChainID, pool.Token1); ok {
			f, _ := decimal.NewFromBigInt(amount1, -int32(s.tokenDecimals(ev.ChainID, pool.Token1))).Mul(price).Float64()
			return f
		}
	}
	return 0
}

// tokenDecimals looks up a token's decimals, defaulting to 18 (the common
// case) when no TokenConfig is registered for it.
func (s *Scanner) tokenDecimals(chainID uint64, addr common.Address) uint8 {
	if tc, ok := s.tokens[types.TokenKey{ChainID: chainID, Address: addr}]; ok {
		return tc.Decimals
	}
	return 18
}

func firstNonNilPositive(candidates ...*big.Int) *big.Int {
	for _, c := range candidates {
		if c != nil && c.Sign() > 0 {
			return c
		}
	}
	return nil
}
