package backtest

import (
	"github.com/ethereum/go-ethereum/common"
)

// Path is a backtest-specific evaluation unit: unlike the live Scanner's
// types.PoolPath (which resolves concrete hop pools at evaluation time,
// spec.md §4.4 step B), a backtest replay works against the exact
// recorded pools, per spec.md §4.7 step c's "exact configured pools
// (pool1, pool2, pool3)".
type Path struct {
	PathName    string
	TriggerPool common.Address
	Pool1       common.Address
	Pool2       common.Address
	Pool3       common.Address
	TokenA      common.Address
	TokenB      common.Address
	TokenC      common.Address
	Fee1PPM     uint32
	Fee2PPM     uint32
	Fee3PPM     uint32
	Priority    int32
}
