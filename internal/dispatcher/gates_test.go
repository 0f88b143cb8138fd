package dispatcher

import (
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckDedup_FreshSignatureAllowed(t *testing.T) {
	s := newExecutionState(30 * time.Second)
	assert.NoError(t, s.checkDedup("sig-1"))
}

func TestCheckDedup_RecentlyExecutedRejected(t *testing.T) {
	s := newExecutionState(30 * time.Second)
	s.recordExecuted("sig-1")
	assert.ErrorIs(t, s.checkDedup("sig-1"), ErrDuplicatePath)
}

func TestCheckDedup_ExpiredWindowAllowsAgain(t *testing.T) {
	s := newExecutionState(1 * time.Millisecond)
	s.recordExecuted("sig-1")
	time.Sleep(5 * time.Millisecond)
	assert.NoError(t, s.checkDedup("sig-1"))
}

func TestAcquirePools_DisjointSetsSucceed(t *testing.T) {
	s := newExecutionState(30 * time.Second)
	poolsA := [3]common.Address{common.HexToAddress("0x1"), common.HexToAddress("0x2"), common.HexToAddress("0x3")}
	poolsB := [3]common.Address{common.HexToAddress("0x4"), common.HexToAddress("0x5"), common.HexToAddress("0x6")}
	require.NoError(t, s.acquirePools(poolsA))
	require.NoError(t, s.acquirePools(poolsB))
}

func TestAcquirePools_OverlapRejected(t *testing.T) {
	s := newExecutionState(30 * time.Second)
	poolsA := [3]common.Address{common.HexToAddress("0x1"), common.HexToAddress("0x2"), common.HexToAddress("0x3")}
	poolsB := [3]common.Address{common.HexToAddress("0x3"), common.HexToAddress("0x4"), common.HexToAddress("0x5")}
	require.NoError(t, s.acquirePools(poolsA))
	assert.ErrorIs(t, s.acquirePools(poolsB), ErrPoolBusy)
}

func TestReleasePools_AllowsReacquisition(t *testing.T) {
	s := newExecutionState(30 * time.Second)
	pools := [3]common.Address{common.HexToAddress("0x1"), common.HexToAddress("0x2"), common.HexToAddress("0x3")}
	require.NoError(t, s.acquirePools(pools))
	s.releasePools(pools)
	assert.NoError(t, s.acquirePools(pools))
}

func TestSweepExpired_RemovesOldEntriesOnly(t *testing.T) {
	s := newExecutionState(10 * time.Millisecond)
	s.recordExecuted("old")
	time.Sleep(15 * time.Millisecond)
	s.recordExecuted("new")
	s.sweepExpired()

	s.mu.Lock()
	_, oldStillThere := s.executedSignatures["old"]
	_, newStillThere := s.executedSignatures["new"]
	s.mu.Unlock()

	assert.False(t, oldStillThere)
	assert.True(t, newStillThere)
}
