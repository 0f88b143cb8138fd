// Package flashloan implements FlashPoolSelector (spec.md §4.6): picking a
// flash-loan source pool for a given borrow token, disjoint from the swap
// path the arbitrage itself uses.
package flashloan

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/sync/errgroup"

	"github.com/flashtri/arbengine/pkg/ethrpc"
	"github.com/flashtri/arbengine/pkg/logger"
)

// preferredFeeTiers is the chain-generic ordering spec.md §4.6 names:
// 100, 500, 2500/3000, 10000.
var preferredFeeTiers = []uint32{100, 500, 2500, 3000, 10000}

const factoryABIJSON = `[
  {"inputs":[
    {"internalType":"address","name":"tokenA","type":"address"},
    {"internalType":"address","name":"tokenB","type":"address"},
    {"internalType":"uint24","name":"fee","type":"uint24"}
  ],"name":"getPool","outputs":[{"internalType":"address","name":"pool","type":"address"}],
  "stateMutability":"view","type":"function"}
]`

const poolReadABIJSON = `[
  {"inputs":[],"name":"token0","outputs":[{"internalType":"address","name":"","type":"address"}],"stateMutability":"view","type":"function"},
  {"inputs":[],"name":"token1","outputs":[{"internalType":"address","name":"","type":"address"}],"stateMutability":"view","type":"function"},
  {"inputs":[],"name":"fee","outputs":[{"internalType":"uint24","name":"","type":"uint24"}],"stateMutability":"view","type":"function"},
  {"inputs":[],"name":"liquidity","outputs":[{"internalType":"uint128","name":"","type":"uint128"}],"stateMutability":"view","type":"function"}
]`

// PoolInfo is a candidate flash-loan source pool, resolved and ranked.
type PoolInfo struct {
	Address   common.Address
	Token0    common.Address
	Token1    common.Address
	FeePPM    uint32
	Liquidity *big.Int
}

// BorrowsFromToken0 reports whether the borrow token is this pool's
// token0, which governs the callback argument direction.
func (p PoolInfo) BorrowsFromToken0(borrowToken common.Address) bool {
	return borrowToken == p.Token0
}

// Selector resolves the best flash-loan pool for a borrow token, excluding
// the swap path's own pools.
type Selector struct {
	rpc         *ethrpc.Client
	factoryAddr common.Address
	log         *logger.Logger

	factoryABI abi.ABI
	poolABI    abi.ABI

	cacheMu  sync.RWMutex
	cache    map[cacheKey]PoolInfo
	cacheAge map[cacheKey]time.Time
	cacheTTL time.Duration
}

type cacheKey struct {
	token0, token1 common.Address
	fee            uint32
}

// NewSelector builds a Selector bound to a chain's V3 factory.
func NewSelector(rpc *ethrpc.Client, factoryAddr common.Address, log *logger.Logger) (*Selector, error) {
	factoryABI, err := abi.JSON(strings.NewReader(factoryABIJSON))
	if err != nil {
		return nil, fmt.Errorf("flashloan: parse factory abi: %w", err)
	}
	poolABI, err := abi.JSON(strings.NewReader(poolReadABIJSON))
	if err != nil {
		return nil, fmt.Errorf("flashloan: parse pool abi: %w", err)
	}
	return &Selector{
		rpc:         rpc,
		factoryAddr: factoryAddr,
		log:         log.Named("flashloan"),
		factoryABI:  factoryABI,
		poolABI:     poolABI,
		cache:       make(map[cacheKey]PoolInfo),
		cacheAge:    make(map[cacheKey]time.Time),
		cacheTTL:    60 * time.Second,
	}, nil
}

// Select resolves the best flash-loan pool for borrowToken, excluding the
// swap path's own pools, among the given candidate pair tokens (typically
// {token_b, token_c} from the triangle). Ranked by liquidity descending,
// then fee ascending, per spec.md §4.6.
func (s *Selector) Select(ctx context.Context, borrowToken common.Address, excluded map[common.Address]struct{}, candidateTokens []common.Address) (PoolInfo, error) {
	candidates, err := s.resolveCandidates(ctx, borrowToken, candidateTokens)
	if err != nil {
		return PoolInfo{}, err
	}
	return pickBest(candidates, excluded)
}

// SelectCached is the same resolution but consults a 60s-TTL cache keyed by
// (sorted token0, token1, fee) before issuing on-chain calls, per spec.md
// §4.6's "Optional cached variant".
func (s *Selector) SelectCached(ctx context.Context, borrowToken common.Address, excluded map[common.Address]struct{}, candidateTokens []common.Address) (PoolInfo, error) {
	candidates := make([]PoolInfo, 0, len(candidateTokens)*len(preferredFeeTiers))
	var toResolve []common.Address

	for _, pairToken := range candidateTokens {
		resolvedAny := false
		for _, fee := range preferredFeeTiers {
			key := sortedKey(borrowToken, pairToken, fee)
			s.cacheMu.RLock()
			info, ok := s.cache[key]
			age := s.cacheAge[key]
			s.cacheMu.RUnlock()
			if ok && time.Since(age) < s.cacheTTL {
				candidates = append(candidates, info)
				resolvedAny = true
			}
		}
		if !resolvedAny {
			toResolve = append(toResolve, pairToken)
		}
	}

	if len(toResolve) > 0 {
		fresh, err := s.resolveCandidates(ctx, borrowToken, toResolve)
		if err != nil {
			return PoolInfo{}, err
		}
		now := time.Now()
		s.cacheMu.Lock()
		for _, info := range fresh {
			key := sortedKey(info.Token0, info.Token1, info.FeePPM)
			s.cache[key] = info
			s.cacheAge[key] = now
		}
		s.cacheMu.Unlock()
		candidates = append(candidates, fresh...)
	}

	return pickBest(candidates, excluded)
}

func sortedKey(a, b common.Address, fee uint32) cacheKey {
	if strings.Compare(a.Hex(), b.Hex()) > 0 {
		a, b = b, a
	}
	return cacheKey{token0: a, token1: b, fee: fee}
}

// resolveCandidates issues getPool + a concurrent batch fetch of
// (token0,token1,fee,liquidity) for every (pairToken, feeTier) combination.
func (s *Selector) resolveCandidates(ctx context.Context, borrowToken common.Address, pairTokens []common.Address) ([]PoolInfo, error) {
	var mu sync.Mutex
	var results []PoolInfo

	g, gctx := errgroup.WithContext(ctx)
	for _, pairToken := range pairTokens {
		for _, fee := range preferredFeeTiers {
			pairToken, fee := pairToken, fee
			g.Go(func() error {
				poolAddr, err := s.getPool(gctx, borrowToken, pairToken, fee)
				if err != nil || poolAddr == (common.Address{}) {
					return nil // no pool at this fee tier: not an error
				}
				info, err := s.fetchPoolInfo(gctx, poolAddr)
				if err != nil {
					s.log.Debug("flashloan candidate pool info fetch failed", "pool", poolAddr.Hex(), "error", err)
					return nil
				}
				mu.Lock()
				results = append(results, info)
				mu.Unlock()
				return nil
			})
		}
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

func (s *Selector) getPool(ctx context.Context, a, b common.Address, fee uint32) (common.Address, error) {
	data, err := s.factoryABI.Pack("getPool", a, b, big.NewInt(int64(fee)))
	if err != nil {
		return common.Address{}, err
	}
	out, err := s.rpc.CallContract(ctx, ethereum.CallMsg{To: &s.factoryAddr, Data: data}, nil)
	if err != nil {
		return common.Address{}, err
	}
	vals, err := s.factoryABI.Methods["getPool"].Outputs.Unpack(out)
	if err != nil || len(vals) != 1 {
		return common.Address{}, fmt.Errorf("flashloan: unpack getPool result: %w", err)
	}
	addr, ok := vals[0].(common.Address)
	if !ok {
		return common.Address{}, fmt.Errorf("flashloan: unexpected getPool result shape")
	}
	return addr, nil
}

func (s *Selector) fetchPoolInfo(ctx context.Context, poolAddr common.Address) (PoolInfo, error) {
	token0Data, _ := s.poolABI.Pack("token0")
	token1Data, _ := s.poolABI.Pack("token1")
	feeData, _ := s.poolABI.Pack("fee")
	liquidityData, _ := s.poolABI.Pack("liquidity")

	calls := []ethrpc.Call3{
		{Target: poolAddr, AllowFailure: true, CallData: token0Data},
		{Target: poolAddr, AllowFailure: true, CallData: token1Data},
		{Target: poolAddr, AllowFailure: true, CallData: feeData},
		{Target: poolAddr, AllowFailure: true, CallData: liquidityData},
	}
	results, err := s.rpc.AggregateCall3(ctx, calls)
	if err != nil || len(results) != 4 {
		return PoolInfo{}, fmt.Errorf("flashloan: batch pool info fetch failed: %w", err)
	}
	for _, r := range results {
		if !r.Success {
			return PoolInfo{}, fmt.Errorf("flashloan: pool info call reverted")
		}
	}

	token0, err := unpackAddress(s.poolABI, "token0", results[0].ReturnData)
	if err != nil {
		return PoolInfo{}, err
	}
	token1, err := unpackAddress(s.poolABI, "token1", results[1].ReturnData)
	if err != nil {
		return PoolInfo{}, err
	}
	fee, err := unpackUint(s.poolABI, "fee", results[2].ReturnData)
	if err != nil {
		return PoolInfo{}, err
	}
	liquidity, err := unpackBig(s.poolABI, "liquidity", results[3].ReturnData)
	if err != nil {
		return PoolInfo{}, err
	}

	return PoolInfo{Address: poolAddr, Token0: token0, Token1: token1, FeePPM: uint32(fee), Liquidity: liquidity}, nil
}

func unpackAddress(a abi.ABI, method string, data []byte) (common.Address, error) {
	vals, err := a.Methods[method].Outputs.Unpack(data)
	if err != nil || len(vals) != 1 {
		return common.Address{}, fmt.Errorf("flashloan: unpack %s: %w", method, err)
	}
	addr, ok := vals[0].(common.Address)
	if !ok {
		return common.Address{}, fmt.Errorf("flashloan: %s result not an address", method)
	}
	return addr, nil
}

func unpackUint(a abi.ABI, method string, data []byte) (uint64, error) {
	vals, err := a.Methods[method].Outputs.Unpack(data)
	if err != nil || len(vals) != 1 {
		return 0, fmt.Errorf("flashloan: unpack %s: %w", method, err)
	}
	v, ok := vals[0].(*big.Int)
	if !ok {
		return 0, fmt.Errorf("flashloan: %s result not a uint", method)
	}
	return v.Uint64(), nil
}

func unpackBig(a abi.ABI, method string, data []byte) (*big.Int, error) {
	vals, err := a.Methods[method].Outputs.Unpack(data)
	if err != nil || len(vals) != 1 {
		return nil, fmt.Errorf("flashloan: unpack %s: %w", method, err)
	}
	v, ok := vals[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("flashloan: %s result not a uint", method)
	}
	return v, nil
}

// pickBest ranks candidates by liquidity descending, then fee ascending,
// skipping anything in excluded, per spec.md §4.6.
func pickBest(candidates []PoolInfo, excluded map[common.Address]struct{}) (PoolInfo, error) {
	var best PoolInfo
	found := false
	for _, c := range candidates {
		if _, isExcluded := excluded[c.Address]; isExcluded {
			continue
		}
		if c.Liquidity == nil || c.Liquidity.Sign() <= 0 {
			continue
		}
		if !found {
			best, found = c, true
			continue
		}
		switch c.Liquidity.Cmp(best.Liquidity) {
		case 1:
			best = c
		case 0:
			if c.FeePPM < best.FeePPM {
				best = c
			}
		}
	}
	if !found {
		return PoolInfo{}, fmt.Errorf("flashloan: no eligible flash-loan pool found")
	}
	return best, nil
}
