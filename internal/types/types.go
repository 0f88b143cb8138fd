// Package types holds the shared domain model for the triangular arbitrage
// engine: tokens, pools, swap events, and opportunities. Types here are pure
// data — no RPC calls, no locking — and are passed by value/address between
// the scanner, evaluator, and dispatcher packages.
package types

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// DexType identifies the AMM family a Pool belongs to.
type DexType int

const (
	DexUnknown DexType = iota
	DexV2Family
	DexV3Family
	DexV4
	DexCurve
)

func (d DexType) String() string {
	switch d {
	case DexV2Family:
		return "v2"
	case DexV3Family:
		return "v3"
	case DexV4:
		return "v4"
	case DexCurve:
		return "curve"
	default:
		return "unknown"
	}
}

// TokenConfig is an immutable per-(chain,address) token record.
type TokenConfig struct {
	ChainID            uint64
	Address            common.Address
	Symbol             string
	Decimals           uint8 // 0..30
	IsStable           bool
	PriceSymbol        string
	OptimalInputAmount *big.Int
}

// Key returns the (chain_id, address) identity of the token.
func (t TokenConfig) Key() TokenKey {
	return TokenKey{ChainID: t.ChainID, Address: t.Address}
}

// TokenKey is the composite identity of a TokenConfig.
type TokenKey struct {
	ChainID uint64
	Address common.Address
}

// Pool is an immutable registered liquidity pool.
type Pool struct {
	Address common.Address
	DexType DexType
	Token0  common.Address // Token0 < Token1 bytewise
	Token1  common.Address
	FeePPM  uint32
	ChainID uint64
}

// Validate checks the Pool.token0 < Pool.token1 invariant (spec.md §3).
func (p Pool) Validate() error {
	if bytesCompareAddress(p.Token0, p.Token1) >= 0 {
		return ErrPoolTokenOrder
	}
	return nil
}

func bytesCompareAddress(a, b common.Address) int {
	for i := range a {
		if a[i] != b[i] {
			if a[i] < b[i] {
				return -1
			}
			return 1
		}
	}
	return 0
}

// PoolState is the mutable, Scanner-owned V3 snapshot associated with a Pool.
// Fields are pointer-optional because a freshly registered pool may not yet
// have been refreshed.
type PoolState struct {
	SqrtPriceX96           *big.Int
	Liquidity              *big.Int // u128 range, stored widened
	Tick                   int32
	HasTick                bool
	LastRefreshedBlock     uint64
	LastRefreshedWallclock time.Time
}

// Clone returns a deep copy safe to hand to a reader outside the lock.
func (s PoolState) Clone() PoolState {
	out := s
	if s.SqrtPriceX96 != nil {
		out.SqrtPriceX96 = new(big.Int).Set(s.SqrtPriceX96)
	}
	if s.Liquidity != nil {
		out.Liquidity = new(big.Int).Set(s.Liquidity)
	}
	return out
}

// PoolPath is a pre-configured trigger-pool -> {A,B,C} evaluation unit.
type PoolPath struct {
	PathName    string
	TriggerPool common.Address
	TokenA      common.Address
	TokenB      common.Address
	TokenC      common.Address
	Priority    int32
}

// Validate enforces the pairwise-distinct-tokens invariant (spec.md §3).
func (p PoolPath) Validate() error {
	if p.TokenA == p.TokenB || p.TokenB == p.TokenC || p.TokenA == p.TokenC {
		return ErrTrianglePoolsNotDistinct
	}
	return nil
}

// Triangle is the legacy, orderless fallback used only when no PoolPath
// mappings are registered for a chain.
type Triangle struct {
	TokenA   common.Address
	TokenB   common.Address
	TokenC   common.Address
	Priority int32
}

// tokenSet returns the triangle's token set for unordered comparisons.
func (t Triangle) tokenSet() [3]common.Address {
	addrs := [3]common.Address{t.TokenA, t.TokenB, t.TokenC}
	// simple insertion sort, 3 elements
	for i := 1; i < 3; i++ {
		for j := i; j > 0 && bytesCompareAddress(addrs[j], addrs[j-1]) < 0; j-- {
			addrs[j], addrs[j-1] = addrs[j-1], addrs[j]
		}
	}
	return addrs
}

// MatchesUnordered reports whether the triangle contains exactly the same
// three token addresses as the given set, irrespective of order.
func (t Triangle) MatchesUnordered(a, b, c common.Address) bool {
	want := [3]common.Address{a, b, c}
	for i := 1; i < 3; i++ {
		for j := i; j > 0 && bytesCompareAddress(want[j], want[j-1]) < 0; j-- {
			want[j], want[j-1] = want[j-1], want[j]
		}
	}
	return t.tokenSet() == want
}

// SwapEvent is produced once per on-chain Swap log on a monitored pool.
type SwapEvent struct {
	ChainID         uint64
	BlockNumber     uint64
	BlockTimestamp  time.Time
	TxHash          common.Hash
	LogIndex        uint
	PoolAddress     common.Address
	Amount0In       *big.Int
	Amount1In       *big.Int
	Amount0Out      *big.Int
	Amount1Out      *big.Int
	SqrtPriceX96    *big.Int // optional, V3 pools only
	Liquidity       *big.Int // optional
	Tick            int32
	HasTick         bool
	HasSqrtPrice    bool
	HasLiquidity    bool
}

// NewBlockEvent signals a new head on a chain.
type NewBlockEvent struct {
	ChainID     uint64
	BlockNumber uint64
	BaseFee     *big.Int // optional
	Timestamp   time.Time
}

// SwapHop is one leg of an Opportunity's three-hop path.
type SwapHop struct {
	PoolAddress common.Address
	DexType     DexType
	TokenIn     common.Address
	TokenOut    common.Address
	FeePPM      uint32
}

// Opportunity is a detected triangular-arbitrage opportunity.
type Opportunity struct {
	ID                string
	ChainID           uint64
	Path              [3]SwapHop
	InputAmount       *big.Int
	ExpectedOutput    *big.Int
	ExpectedProfitUSD decimal.Decimal
	GasEstimate       uint64
	GasCostUSD        decimal.Decimal
	NetProfitUSD      decimal.Decimal
	ProfitPercentage  decimal.Decimal
	BlockNumber       uint64
	Timestamp         time.Time
}

// IsClosedCycle checks that hops[0].token_in == hops[2].token_out (spec.md §3).
func (o Opportunity) IsClosedCycle() bool {
	return o.Path[0].TokenIn == o.Path[2].TokenOut &&
		o.Path[0].TokenOut == o.Path[1].TokenIn &&
		o.Path[1].TokenOut == o.Path[2].TokenIn
}

// TotalFeePPM sums the three hops' fees.
func (o Opportunity) TotalFeePPM() uint64 {
	return uint64(o.Path[0].FeePPM) + uint64(o.Path[1].FeePPM) + uint64(o.Path[2].FeePPM)
}

// PathSignature derives the dedup key used by executed_opportunities
// (spec.md §4.6): chain_id:start_token:pool1:pool2:pool3:block_number.
func (o Opportunity) PathSignature() string {
	return PathSignature(o.ChainID, o.Path[0].TokenIn, o.Path[0].PoolAddress, o.Path[1].PoolAddress, o.Path[2].PoolAddress, o.BlockNumber)
}

// PathSignature is the free-function form, usable before an Opportunity is
// fully constructed (e.g. for a candidate path during dedup pre-checks).
func PathSignature(chainID uint64, startToken, pool1, pool2, pool3 common.Address, block uint64) string {
	return concatSig(chainID, startToken, pool1, pool2, pool3, block)
}

// ExecutedRecord marks a path signature as recently sent, for dedup.
type ExecutedRecord struct {
	PathSignature string
	ExecutedAt    time.Time
	BlockNumber   uint64
}

// Balance is a wallet balance snapshot used by the email notifier.
type Balance struct {
	Symbol       string
	TokenAddress common.Address
	Amount       decimal.Decimal
	USDValue     decimal.Decimal
}
