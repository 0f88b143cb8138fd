// Package poolcache holds the Scanner's per-chain, rwlock-guarded
// Address->PoolState map and the batched Multicall3 refresher that keeps it
// fresh once per block.
package poolcache

import (
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/flashtri/arbengine/internal/types"
)

// Cache is an in-memory map of pool address to its latest known V3 state.
// Safe for concurrent use: a single block-refresh writer and many
// SwapEvent-apply writers/readers contend on a single RWMutex, matching the
// per-scanner single-writer-per-block-refresh model.
type Cache struct {
	mu     sync.RWMutex
	states map[common.Address]types.PoolState
	pools  map[common.Address]types.Pool
}

// New returns an empty Cache.
func New() *Cache {
	return &Cache{
		states: make(map[common.Address]types.PoolState),
		pools:  make(map[common.Address]types.Pool),
	}
}

// Register adds a pool to the monitored set with a zero-value state. Safe to
// call multiple times for the same address (idempotent).
func (c *Cache) Register(p types.Pool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pools[p.Address] = p
	if _, ok := c.states[p.Address]; !ok {
		c.states[p.Address] = types.PoolState{}
	}
}

// IsMonitored reports whether the given pool address has been registered.
func (c *Cache) IsMonitored(addr common.Address) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.pools[addr]
	return ok
}

// Pool returns the registered Pool for an address.
func (c *Cache) Pool(addr common.Address) (types.Pool, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	p, ok := c.pools[addr]
	return p, ok
}

// State returns a defensive copy of the current PoolState for an address.
func (c *Cache) State(addr common.Address) (types.PoolState, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	s, ok := c.states[addr]
	if !ok {
		return types.PoolState{}, false
	}
	return s.Clone(), true
}

// MonitoredAddresses returns a snapshot slice of every registered pool
// address, in map iteration order (the caller must not rely on ordering).
func (c *Cache) MonitoredAddresses() []common.Address {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]common.Address, 0, len(c.pools))
	for addr := range c.pools {
		out = append(out, addr)
	}
	return out
}

// ApplySwapEvent copies the V3 state fields carried on a SwapEvent into the
// pool's cached state in-place, per spec.md §4.2 item 1. It is a no-op if
// the pool is not monitored; otherwise it copies whichever V3 fields the
// event carries and always stamps the event's block number and the
// current wallclock.
func (c *Cache) ApplySwapEvent(ev types.SwapEvent) {
	c.mu.Lock()
	defer c.mu.Unlock()

	s, ok := c.states[ev.PoolAddress]
	if !ok {
		return
	}
	if ev.HasSqrtPrice && ev.SqrtPriceX96 != nil {
		s.SqrtPriceX96 = new(big.Int).Set(ev.SqrtPriceX96)
	}
	if ev.HasLiquidity && ev.Liquidity != nil {
		s.Liquidity = new(big.Int).Set(ev.Liquidity)
	}
	if ev.HasTick {
		s.Tick = ev.Tick
		s.HasTick = true
	}
	s.LastRefreshedBlock = ev.BlockNumber
	s.LastRefreshedWallclock = time.Now()
	c.states[ev.PoolAddress] = s
}

// ApplyRefresh installs freshly fetched per-pool state from a block-driven
// batch refresh. Pools absent from results (failed calls with
// allow_failure=true) keep their prior state untouched, per spec.md §4.2.
func (c *Cache) ApplyRefresh(block uint64, results map[common.Address]RefreshedState) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	for addr, r := range results {
		prev, ok := c.states[addr]
		if !ok {
			continue // not a registered pool; ignore defensively
		}
		if !r.OK {
			continue // per-pool failure: keep prior state
		}
		prev.SqrtPriceX96 = r.SqrtPriceX96
		prev.Liquidity = r.Liquidity
		prev.Tick = r.Tick
		prev.HasTick = true
		prev.LastRefreshedBlock = block
		prev.LastRefreshedWallclock = now
		c.states[addr] = prev
	}
}

// RefreshedState is one pool's decoded slot0+liquidity result from a
// Multicall3 batch, or a failure marker.
type RefreshedState struct {
	OK           bool
	SqrtPriceX96 *big.Int
	Tick         int32
	Liquidity    *big.Int
}
