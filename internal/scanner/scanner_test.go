package scanner

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flashtri/arbengine/internal/evaluator"
	"github.com/flashtri/arbengine/internal/poolcache"
	"github.com/flashtri/arbengine/internal/types"
	"github.com/flashtri/arbengine/pkg/logger"
)

type fakePathIndex struct {
	pathsByPool map[common.Address][]types.PoolPath
	hasMappings bool
}

func (f *fakePathIndex) PathsForPool(chainID uint64, pool common.Address) []types.PoolPath {
	return f.pathsByPool[pool]
}
func (f *fakePathIndex) HasPoolPathMappings(chainID uint64) bool { return f.hasMappings }
func (f *fakePathIndex) LegacyTriangles(chainID uint64) []types.Triangle { return nil }

type fakeEvaluator struct {
	result *types.Opportunity
	err    error
	calls  int
}

func (f *fakeEvaluator) Evaluate(ctx context.Context, in evaluator.Input) (*types.Opportunity, error) {
	f.calls++
	return f.result, f.err
}

type fakePrices struct {
	byAddr map[common.Address]decimal.Decimal
}

func (f *fakePrices) GetPriceByAddress(chainID uint64, addr common.Address) (decimal.Decimal, bool) {
	p, ok := f.byAddr[addr]
	return p, ok
}
func (f *fakePrices) GetPriceBySymbol(symbol string) (decimal.Decimal, bool) { return decimal.Zero, false }
func (f *fakePrices) GetETHPrice() decimal.Decimal                          { return decimal.NewFromInt(3000) }
func (f *fakePrices) GetBNBPrice() decimal.Decimal                          { return decimal.NewFromInt(600) }

type fakeSink struct {
	enqueued []*types.Opportunity
}

func (f *fakeSink) Enqueue(opp *types.Opportunity) { f.enqueued = append(f.enqueued, opp) }

func newTestScanner(t *testing.T, pathIdx PathIndex, ev OpportunityEvaluator, prices *fakePrices, sink *fakeSink) *Scanner {
	t.Helper()
	cache := poolcache.New()
	tokenA := common.HexToAddress("0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa")
	tokenB := common.HexToAddress("0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb")
	pool := types.Pool{Address: common.HexToAddress("0xcccccccccccccccccccccccccccccccccccccccc"), Token0: tokenA, Token1: tokenB, ChainID: 1}
	cache.Register(pool)

	return New(Config{ChainID: 1}, cache, pathIdx, ev, prices, nil, sink, nil, nil, logger.Nop())
}

func TestMarkProcessed_DedupesTxHash(t *testing.T) {
	s := newTestScanner(t, &fakePathIndex{}, &fakeEvaluator{}, &fakePrices{byAddr: map[common.Address]decimal.Decimal{}}, &fakeSink{})
	h := common.HexToHash("0x01")
	assert.False(t, s.markProcessed(h))
	assert.True(t, s.markProcessed(h))
}

func TestHandleSwapEvent_UnmonitoredPoolIsNoop(t *testing.T) {
	ev := &fakeEvaluator{}
	s := newTestScanner(t, &fakePathIndex{}, ev, &fakePrices{byAddr: map[common.Address]decimal.Decimal{}}, &fakeSink{})
	s.handleSwapEvent(context.Background(), types.SwapEvent{PoolAddress: common.HexToAddress("0xdeadbeef")})
	assert.Equal(t, 0, ev.calls)
}

func TestHandleSwapEvent_BelowMinNotionalSkipsEvaluation(t *testing.T) {
	tokenA := common.HexToAddress("0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa")
	poolAddr := common.HexToAddress("0xcccccccccccccccccccccccccccccccccccccccc")
	ev := &fakeEvaluator{}
	prices := &fakePrices{byAddr: map[common.Address]decimal.Decimal{tokenA: decimal.NewFromInt(1)}}
	s := newTestScanner(t, &fakePathIndex{}, ev, prices, &fakeSink{})
	s.cfg.MinSwapValueUSD = 1000

	s.handleSwapEvent(context.Background(), types.SwapEvent{
		PoolAddress: poolAddr,
		Amount0In:   big.NewInt(1), // 1 wei @ $1, notional ~0
	})
	assert.Equal(t, 0, ev.calls)
}

func TestHandleSwapEvent_EmitsBestOpportunity(t *testing.T) {
	tokenA := common.HexToAddress("0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa")
	poolAddr := common.HexToAddress("0xcccccccccccccccccccccccccccccccccccccccc")
	opp := &types.Opportunity{ID: "opp-1", NetProfitUSD: decimal.NewFromInt(10)}
	ev := &fakeEvaluator{result: opp}
	prices := &fakePrices{byAddr: map[common.Address]decimal.Decimal{tokenA: decimal.NewFromInt(1)}}
	sink := &fakeSink{}
	path := types.PoolPath{
		PathName: "p1",
		TokenA:   tokenA,
		TokenB:   common.HexToAddress("0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb"),
		TokenC:   common.HexToAddress("0xdddddddddddddddddddddddddddddddddddddddd"),
	}
	pathIdx := &fakePathIndex{pathsByPool: map[common.Address][]types.PoolPath{poolAddr: {path}}, hasMappings: true}
	s := newTestScanner(t, pathIdx, ev, prices, sink)

	s.handleSwapEvent(context.Background(), types.SwapEvent{
		PoolAddress: poolAddr,
		Amount0In:   new(big.Int).Mul(big.NewInt(10_000), big.NewInt(1_000_000_000_000_000_000)), // 10000 tokens @ 18 decimals
	})

	require.Equal(t, 1, ev.calls)
	require.Len(t, sink.enqueued, 1)
	assert.Equal(t, "opp-1", sink.enqueued[0].ID)
}

func TestSweepExpired_EvictsOldEntries(t *testing.T) {
	s := newTestScanner(t, &fakePathIndex{}, &fakeEvaluator{}, &fakePrices{byAddr: map[common.Address]decimal.Decimal{}}, &fakeSink{})
	s.cfg.DedupTTL = 10 * time.Millisecond
	s.markProcessed(common.HexToHash("0x01"))
	time.Sleep(15 * time.Millisecond)
	s.sweepExpired()

	s.mu.Lock()
	_, stillThere := s.processedTxHashes[common.HexToHash("0x01")]
	s.mu.Unlock()
	assert.False(t, stillThere)
}
