package dispatcher

import (
	"errors"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Gate errors — typed per spec.md §4.6's "any failure aborts with a typed
// error" requirement.
var (
	ErrNotOwner      = errors.New("dispatcher: wallet is not the arbitrage contract owner")
	ErrPathLength    = errors.New("dispatcher: opportunity path must have exactly 3 hops")
	ErrDuplicatePath = errors.New("dispatcher: path signature already executed recently")
	ErrPoolBusy      = errors.New("dispatcher: one or more hop pools are already executing")
)

// executionState tracks the dedup and pool-lock sets spec.md §4.6 names:
// executed_opportunities and executing_pools.
type executionState struct {
	mu                 sync.Mutex
	executedSignatures map[string]time.Time
	executingPools     map[common.Address]struct{}
	dedupWindow        time.Duration
}

func newExecutionState(dedupWindow time.Duration) *executionState {
	return &executionState{
		executedSignatures: make(map[string]time.Time),
		executingPools:     make(map[common.Address]struct{}),
		dedupWindow:        dedupWindow,
	}
}

// checkDedup implements the dedup gate: if pathSignature was recorded
// within the dedup window, reject.
func (s *executionState) checkDedup(pathSignature string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if executedAt, ok := s.executedSignatures[pathSignature]; ok {
		if time.Since(executedAt) < s.dedupWindow {
			return ErrDuplicatePath
		}
	}
	return nil
}

// acquirePools implements the pool-lock gate: if any of the given pools is
// already executing, reject; otherwise atomically lock all three.
func (s *executionState) acquirePools(pools [3]common.Address) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range pools {
		if _, busy := s.executingPools[p]; busy {
			return ErrPoolBusy
		}
	}
	for _, p := range pools {
		s.executingPools[p] = struct{}{}
	}
	return nil
}

// releasePools removes the given pools from the executing set. Safe to
// call even if acquirePools was never called for them (idempotent).
func (s *executionState) releasePools(pools [3]common.Address) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range pools {
		delete(s.executingPools, p)
	}
}

// recordExecuted marks a path signature as executed, for future dedup
// checks.
func (s *executionState) recordExecuted(pathSignature string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.executedSignatures[pathSignature] = time.Now()
}

// sweepExpired evicts dedup entries older than the dedup window, mirroring
// the Scanner's periodic sweep of executed_opportunities (spec.md §4.5
// NewBlockEvent handler step 4).
func (s *executionState) sweepExpired() {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	for sig, at := range s.executedSignatures {
		if now.Sub(at) >= s.dedupWindow {
			delete(s.executedSignatures, sig)
		}
	}
}
