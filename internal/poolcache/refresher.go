package poolcache

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"github.com/flashtri/arbengine/pkg/ethrpc"
	"github.com/flashtri/arbengine/pkg/logger"
)

// v3PoolABIJSON carries only the two read methods the refresher needs:
// slot0() and liquidity(). Loaded the same way uniswap_client.go loads its
// hand-written ABI fragments.
const v3PoolABIJSON = `[
  {"inputs":[],"name":"slot0","outputs":[
    {"internalType":"uint160","name":"sqrtPriceX96","type":"uint160"},
    {"internalType":"int24","name":"tick","type":"int24"},
    {"internalType":"uint16","name":"observationIndex","type":"uint16"},
    {"internalType":"uint16","name":"observationCardinality","type":"uint16"},
    {"internalType":"uint16","name":"observationCardinalityNext","type":"uint16"},
    {"internalType":"uint8","name":"feeProtocol","type":"uint8"},
    {"internalType":"bool","name":"unlocked","type":"bool"}
  ],"stateMutability":"view","type":"function"},
  {"inputs":[],"name":"liquidity","outputs":[
    {"internalType":"uint128","name":"","type":"uint128"}
  ],"stateMutability":"view","type":"function"}
]`

// Refresher issues exactly one Multicall3 aggregate3 call per block,
// covering slot0()+liquidity() for every monitored pool, per spec.md §4.2.
type Refresher struct {
	rpc   *ethrpc.Client
	cache *Cache
	log   *logger.Logger

	poolABI abi.ABI
}

// NewRefresher builds a Refresher bound to the given RPC client and cache.
func NewRefresher(rpc *ethrpc.Client, cache *Cache, log *logger.Logger) (*Refresher, error) {
	poolABI, err := abi.JSON(strings.NewReader(v3PoolABIJSON))
	if err != nil {
		return nil, fmt.Errorf("poolcache: parse pool abi: %w", err)
	}
	return &Refresher{rpc: rpc, cache: cache, log: log.Named("poolrefresher"), poolABI: poolABI}, nil
}

// Refresh issues the single batched Multicall3 call covering every
// monitored pool and applies results to the cache. If the Multicall itself
// errors, the refresh is skipped entirely (state ages, but is not
// invalidated) per spec.md §4.2's failure semantics.
func (r *Refresher) Refresh(ctx context.Context, block uint64) error {
	addrs := r.cache.MonitoredAddresses()
	if len(addrs) == 0 {
		return nil
	}

	slot0Data, err := r.poolABI.Pack("slot0")
	if err != nil {
		return fmt.Errorf("poolcache: pack slot0: %w", err)
	}
	liquidityData, err := r.poolABI.Pack("liquidity")
	if err != nil {
		return fmt.Errorf("poolcache: pack liquidity: %w", err)
	}

	calls := make([]ethrpc.Call3, 0, len(addrs)*2)
	for _, addr := range addrs {
		calls = append(calls,
			ethrpc.Call3{Target: addr, AllowFailure: true, CallData: slot0Data},
			ethrpc.Call3{Target: addr, AllowFailure: true, CallData: liquidityData},
		)
	}

	results, err := r.rpc.AggregateCall3(ctx, calls)
	if err != nil {
		r.log.Warn("multicall refresh failed, state aging", "block", block, "error", err)
		return nil
	}
	if len(results) != len(calls) {
		r.log.Warn("multicall returned unexpected result count", "want", len(calls), "got", len(results))
		return nil
	}

	parsed := make(map[common.Address]RefreshedState, len(addrs))
	for i, addr := range addrs {
		slot0Res := results[i*2]
		liqRes := results[i*2+1]

		state := RefreshedState{}
		if !slot0Res.Success || !liqRes.Success {
			r.log.Debug("per-pool refresh failed", "pool", addr.Hex())
			parsed[addr] = state
			continue
		}

		sqrtPriceX96, tick, ok := decodeSlot0(r.poolABI, slot0Res.ReturnData)
		if !ok {
			parsed[addr] = state
			continue
		}
		liquidity, ok := decodeLiquidity(r.poolABI, liqRes.ReturnData)
		if !ok {
			parsed[addr] = state
			continue
		}

		state.OK = true
		state.SqrtPriceX96 = sqrtPriceX96
		state.Tick = tick
		state.Liquidity = liquidity
		parsed[addr] = state
	}

	r.cache.ApplyRefresh(block, parsed)
	return nil
}

func decodeSlot0(poolABI abi.ABI, data []byte) (*big.Int, int32, bool) {
	vals, err := poolABI.Methods["slot0"].Outputs.Unpack(data)
	if err != nil || len(vals) < 2 {
		return nil, 0, false
	}
	sqrtPrice, ok := vals[0].(*big.Int)
	if !ok {
		return nil, 0, false
	}
	tickBig, ok := vals[1].(*big.Int)
	if !ok {
		return nil, 0, false
	}
	return sqrtPrice, int32(tickBig.Int64()), true
}

func decodeLiquidity(poolABI abi.ABI, data []byte) (*big.Int, bool) {
	vals, err := poolABI.Methods["liquidity"].Outputs.Unpack(data)
	if err != nil || len(vals) != 1 {
		return nil, false
	}
	liq, ok := vals[0].(*big.Int)
	return liq, ok
}
