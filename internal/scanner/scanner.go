// Package scanner implements the per-chain event-driven orchestrator:
// ingest SwapEvent/NewBlockEvent, dedupe, evaluate paths, and emit
// opportunities (spec.md §4.5).
package scanner

import (
	"context"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/semaphore"

	"github.com/flashtri/arbengine/internal/dispatcher"
	"github.com/flashtri/arbengine/internal/evaluator"
	"github.com/flashtri/arbengine/internal/metrics"
	"github.com/flashtri/arbengine/internal/poolcache"
	"github.com/flashtri/arbengine/internal/priceservice"
	"github.com/flashtri/arbengine/internal/types"
	"github.com/flashtri/arbengine/pkg/logger"
)

// OpportunityEvaluator is the subset of *evaluator.Evaluator the Scanner
// depends on, narrowed to an interface for testability.
type OpportunityEvaluator interface {
	Evaluate(ctx context.Context, in evaluator.Input) (*types.Opportunity, error)
}

// PathIndex resolves which PoolPaths a swap on a given pool should
// trigger, with a legacy Triangle fallback when no PoolPath mappings are
// registered for the chain (spec.md §3/§4.5).
type PathIndex interface {
	PathsForPool(chainID uint64, poolAddress common.Address) []types.PoolPath
	HasPoolPathMappings(chainID uint64) bool
	LegacyTriangles(chainID uint64) []types.Triangle
}

// OpportunitySink receives opportunities the Scanner emits, for async
// persistence (spec.md §3's "persisted asynchronously").
type OpportunitySink interface {
	Enqueue(opp *types.Opportunity)
}

// ExecutionDispatcher is the subset of *dispatcher.Dispatcher the Scanner
// depends on when auto_execute is enabled.
type ExecutionDispatcher interface {
	Dispatch(ctx context.Context, opp *types.Opportunity, gasPriceGwei float64) (*dispatcher.Result, error)
}

// Config bundles a Scanner's tunables (spec.md §4.5 and §5).
type Config struct {
	ChainID               uint64
	MaxConcurrentHandlers int64
	FallbackScanInterval  time.Duration
	DedupTTL              time.Duration
	MinSwapValueUSD       float64
	AutoExecute           bool
	RPCStatsEveryNBlocks  uint64
}

func (c *Config) setDefaults() {
	if c.MaxConcurrentHandlers == 0 {
		c.MaxConcurrentHandlers = 5
	}
	if c.FallbackScanInterval == 0 {
		c.FallbackScanInterval = 5 * time.Second
	}
	if c.DedupTTL == 0 {
		c.DedupTTL = 60 * time.Second
	}
	if c.MinSwapValueUSD == 0 {
		c.MinSwapValueUSD = 1.0
	}
	if c.RPCStatsEveryNBlocks == 0 {
		c.RPCStatsEveryNBlocks = 5
	}
}

// PoolRefresher is the subset of *poolcache.Refresher the Scanner invokes
// once per new block.
type PoolRefresher interface {
	Refresh(ctx context.Context, block uint64) error
}

// Scanner is the per-chain orchestrator. One instance owns a PoolStateCache
// (shared with the Evaluator), its own dedup sets, and a gas price cache.
type Scanner struct {
	cfg    Config
	cache  *poolcache.Cache
	paths  PathIndex
	eval   OpportunityEvaluator
	prices priceservice.PriceService
	sink   OpportunitySink
	disp   ExecutionDispatcher
	refr   PoolRefresher
	tokens map[types.TokenKey]types.TokenConfig
	log    *logger.Logger

	chainLabel   string
	currentBlock atomic.Uint64

	sem *semaphore.Weighted

	mu                sync.Mutex
	processedTxHashes map[txHashKey]time.Time
	executedPaths     map[string]time.Time
	gasPriceCache     decimal.Decimal // gwei
}

type txHashKey = common.Hash

// New builds a Scanner for one chain.
func New(cfg Config, cache *poolcache.Cache, paths PathIndex, eval OpportunityEvaluator, prices priceservice.PriceService, tokens map[types.TokenKey]types.TokenConfig, sink OpportunitySink, disp ExecutionDispatcher, refr PoolRefresher, log *logger.Logger) *Scanner {
	cfg.setDefaults()
	return &Scanner{
		cfg:               cfg,
		cache:             cache,
		paths:             paths,
		eval:              eval,
		prices:            prices,
		tokens:            tokens,
		sink:              sink,
		disp:              disp,
		refr:              refr,
		chainLabel:        strconv.FormatUint(cfg.ChainID, 10),
		log:               log.Named("scanner").With("chain_id", cfg.ChainID),
		sem:               semaphore.NewWeighted(cfg.MaxConcurrentHandlers),
		processedTxHashes: make(map[txHashKey]time.Time),
		executedPaths:     make(map[string]time.Time),
	}
}

// Run is the Scanner's main loop: select over swapEvents, blockEvents, and
// a fallback tick, until ctx is cancelled (spec.md §4.5's cancellation
// semantics: stop accepting, drain pending handlers, return once drained).
func (s *Scanner) Run(ctx context.Context, swapEvents <-chan types.SwapEvent, blockEvents <-chan types.NewBlockEvent) {
	ticker := time.NewTicker(s.cfg.FallbackScanInterval)
	defer ticker.Stop()

	var wg sync.WaitGroup
	defer wg.Wait()

	for {
		select {
		case <-ctx.Done():
			s.log.Info("scanner shutting down, draining handlers")
			return

		case ev, ok := <-blockEvents:
			if !ok {
				return
			}
			s.handleNewBlock(ctx, ev)

		case ev, ok := <-swapEvents:
			if !ok {
				return
			}
			if s.markProcessed(ev.TxHash) {
				s.log.Debug("duplicate tx hash dropped", "tx_hash", ev.TxHash.Hex())
				continue
			}
			wg.Add(1)
			go func(ev types.SwapEvent) {
				defer wg.Done()
				if err := s.sem.Acquire(ctx, 1); err != nil {
					return // context cancelled while waiting for a permit
				}
				defer s.sem.Release(1)
				s.handleSwapEvent(ctx, ev)
			}(ev)

		case <-ticker.C:
			s.handleFallbackTick(ctx)
		}
	}
}

// handleFallbackTick re-triggers a pool refresh at a fixed cadence, a
// backstop for chains with sparse block events (spec.md §4.5's timed
// fallback tick).
func (s *Scanner) handleFallbackTick(ctx context.Context) {
	block := s.currentBlock.Load()
	if block == 0 || s.refr == nil {
		return
	}
	if err := s.refr.Refresh(ctx, block); err != nil {
		s.log.Warn("fallback refresh failed", "error", err)
	}
}

// GasPriceGwei returns the Scanner's currently cached gas price, for
// callers (e.g. the Dispatcher) that need the same value the Evaluator
// used.
func (s *Scanner) GasPriceGwei() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, _ := s.gasPriceCache.Float64()
	return f
}

// Stats is a point-in-time snapshot of a Scanner's counters, for the
// HTTP control surface's /stats route.
type Stats struct {
	ChainID              uint64
	CurrentBlock         uint64
	GasPriceGwei         float64
	ProcessedTxHashes    int
	ExecutedPathsTracked int
}

// Stats returns a snapshot of the Scanner's current counters.
func (s *Scanner) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	gas, _ := s.gasPriceCache.Float64()
	return Stats{
		ChainID:              s.cfg.ChainID,
		CurrentBlock:         s.currentBlock.Load(),
		GasPriceGwei:         gas,
		ProcessedTxHashes:    len(s.processedTxHashes),
		ExecutedPathsTracked: len(s.executedPaths),
	}
}

// markProcessed implements the tx-hash dedupe gate: returns true if the
// hash was already seen (and thus should be dropped), false and records
// it otherwise.
func (s *Scanner) markProcessed(txHash common.Hash) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, seen := s.processedTxHashes[txHash]; seen {
		metrics.Metrics.DuplicatesSkipped.WithLabelValues(s.chainLabel).Inc()
		return true
	}
	s.processedTxHashes[txHash] = time.Now()
	return false
}
