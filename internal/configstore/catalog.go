package configstore

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jmoiron/sqlx"

	"github.com/flashtri/arbengine/internal/types"
)

// Catalog is the SQL-backed ConfigStore collaborator spec.md §6 names:
// it reads the four catalog tables at startup and serves the Scanner's
// PathIndex interface (spec.md §4.5's pool_path_mappings / legacy
// triangle fallback).
type Catalog struct {
	db *sqlx.DB

	tokens      map[types.TokenKey]types.TokenConfig
	pools       map[common.Address]types.Pool
	pathsByPool map[catalogKey][]types.PoolPath
	hasMappings map[uint64]bool
	legacyTris  map[uint64][]types.Triangle

	wrappedNatives map[uint64]common.Address
}

type catalogKey struct {
	chainID uint64
	pool    common.Address
}

// NewCatalog builds an empty Catalog bound to db. Call Load before use.
func NewCatalog(db *sqlx.DB) *Catalog {
	return &Catalog{
		db:             db,
		tokens:         make(map[types.TokenKey]types.TokenConfig),
		pools:          make(map[common.Address]types.Pool),
		pathsByPool:    make(map[catalogKey][]types.PoolPath),
		hasMappings:    make(map[uint64]bool),
		legacyTris:     make(map[uint64][]types.Triangle),
		wrappedNatives: make(map[uint64]common.Address),
	}
}

// SetWrappedNatives records each chain's wrapped-native token address, read
// from the static ChainConfig, so Catalog can serve WETH for the backtest's
// TokenIndex (spec.md §4.7's price-resolution chain).
func (c *Catalog) SetWrappedNatives(byChain map[uint64]common.Address) {
	for chainID, addr := range byChain {
		c.wrappedNatives[chainID] = addr
	}
}

// tokenRow mirrors arbitrage_tokens (spec.md §6).
type tokenRow struct {
	ChainID            uint64 `db:"chain_id"`
	Address            string `db:"address"`
	Symbol             string `db:"symbol"`
	Decimals           uint8  `db:"decimals"`
	IsStable           bool   `db:"is_stable"`
	PriceSymbol        string `db:"price_symbol"`
	OptimalInputAmount string `db:"optimal_input_amount"`
	Enabled            bool   `db:"enabled"`
}

// triangleRow mirrors arbitrage_triangles.
type triangleRow struct {
	ChainID  uint64 `db:"chain_id"`
	Name     string `db:"name"`
	TokenA   string `db:"token_a"`
	TokenB   string `db:"token_b"`
	TokenC   string `db:"token_c"`
	Priority int32  `db:"priority"`
	Category string `db:"category"`
	Enabled  bool   `db:"enabled"`
}

// poolRow mirrors arbitrage_pools.
type poolRow struct {
	ChainID uint64 `db:"chain_id"`
	Address string `db:"address"`
	DexType string `db:"dex_type"`
	Token0  string `db:"token0"`
	Token1  string `db:"token1"`
	Fee     uint32 `db:"fee"`
	Enabled bool   `db:"enabled"`
}

// poolPathRow mirrors arbitrage_pool_paths.
type poolPathRow struct {
	ChainID      uint64 `db:"chain_id"`
	TriggerPool  string `db:"trigger_pool"`
	PathName     string `db:"path_name"`
	TriangleName string `db:"triangle_name"`
	TokenA       string `db:"token_a"`
	TokenB       string `db:"token_b"`
	TokenC       string `db:"token_c"`
	Priority     int32  `db:"priority"`
	Enabled      bool   `db:"enabled"`
}

// Load reads all four catalog tables, filtering to enabled rows, and
// populates the in-memory indexes the Scanner reads from. Safe to call
// again to pick up catalog changes (spec.md §6: "Loader populates
// scanner state before event ingestion begins ... and may re-read").
func (c *Catalog) Load(ctx context.Context) error {
	tokens, err := c.loadTokens(ctx)
	if err != nil {
		return err
	}
	pools, err := c.loadPools(ctx)
	if err != nil {
		return err
	}
	triangles, err := c.loadTriangles(ctx)
	if err != nil {
		return err
	}
	pathsByPool, hasMappings, err := c.loadPoolPaths(ctx)
	if err != nil {
		return err
	}

	c.tokens = tokens
	c.pools = pools
	c.legacyTris = triangles
	c.pathsByPool = pathsByPool
	c.hasMappings = hasMappings
	return nil
}

func (c *Catalog) loadTokens(ctx context.Context) (map[types.TokenKey]types.TokenConfig, error) {
	var rows []tokenRow
	err := c.db.SelectContext(ctx, &rows, `
		SELECT chain_id, address, symbol, decimals, is_stable, price_symbol, optimal_input_amount, enabled
		FROM arbitrage_tokens WHERE enabled = true
	`)
	if err != nil {
		return nil, fmt.Errorf("configstore: load arbitrage_tokens: %w", err)
	}
	out := make(map[types.TokenKey]types.TokenConfig, len(rows))
	for _, r := range rows {
		amt, ok := new(big.Int).SetString(r.OptimalInputAmount, 10)
		if !ok {
			amt = big.NewInt(0)
		}
		tc := types.TokenConfig{
			ChainID:            r.ChainID,
			Address:            common.HexToAddress(r.Address),
			Symbol:             r.Symbol,
			Decimals:           r.Decimals,
			IsStable:           r.IsStable,
			PriceSymbol:        r.PriceSymbol,
			OptimalInputAmount: amt,
		}
		out[tc.Key()] = tc
	}
	return out, nil
}

func (c *Catalog) loadPools(ctx context.Context) (map[common.Address]types.Pool, error) {
	var rows []poolRow
	err := c.db.SelectContext(ctx, &rows, `
		SELECT chain_id, address, dex_type, token0, token1, fee, enabled
		FROM arbitrage_pools WHERE enabled = true
	`)
	if err != nil {
		return nil, fmt.Errorf("configstore: load arbitrage_pools: %w", err)
	}
	out := make(map[common.Address]types.Pool, len(rows))
	for _, r := range rows {
		p := types.Pool{
			Address: common.HexToAddress(r.Address),
			DexType: parseDexType(r.DexType),
			Token0:  common.HexToAddress(r.Token0),
			Token1:  common.HexToAddress(r.Token1),
			FeePPM:  r.Fee,
			ChainID: r.ChainID,
		}
		out[p.Address] = p
	}
	return out, nil
}

func (c *Catalog) loadTriangles(ctx context.Context) (map[uint64][]types.Triangle, error) {
	var rows []triangleRow
	err := c.db.SelectContext(ctx, &rows, `
		SELECT chain_id, name, token_a, token_b, token_c, priority, category, enabled
		FROM arbitrage_triangles WHERE enabled = true
	`)
	if err != nil {
		return nil, fmt.Errorf("configstore: load arbitrage_triangles: %w", err)
	}
	out := make(map[uint64][]types.Triangle)
	for _, r := range rows {
		out[r.ChainID] = append(out[r.ChainID], types.Triangle{
			TokenA:   common.HexToAddress(r.TokenA),
			TokenB:   common.HexToAddress(r.TokenB),
			TokenC:   common.HexToAddress(r.TokenC),
			Priority: r.Priority,
		})
	}
	return out, nil
}

func (c *Catalog) loadPoolPaths(ctx context.Context) (map[catalogKey][]types.PoolPath, map[uint64]bool, error) {
	var rows []poolPathRow
	err := c.db.SelectContext(ctx, &rows, `
		SELECT chain_id, trigger_pool, path_name, triangle_name, token_a, token_b, token_c, priority, enabled
		FROM arbitrage_pool_paths WHERE enabled = true
		ORDER BY priority DESC
	`)
	if err != nil {
		return nil, nil, fmt.Errorf("configstore: load arbitrage_pool_paths: %w", err)
	}
	byPool := make(map[catalogKey][]types.PoolPath)
	hasMappings := make(map[uint64]bool)
	for _, r := range rows {
		key := catalogKey{chainID: r.ChainID, pool: common.HexToAddress(r.TriggerPool)}
		byPool[key] = append(byPool[key], types.PoolPath{
			PathName:    r.PathName,
			TriggerPool: common.HexToAddress(r.TriggerPool),
			TokenA:      common.HexToAddress(r.TokenA),
			TokenB:      common.HexToAddress(r.TokenB),
			TokenC:      common.HexToAddress(r.TokenC),
			Priority:    r.Priority,
		})
		hasMappings[r.ChainID] = true
	}
	return byPool, hasMappings, nil
}

// PathsForPool implements scanner.PathIndex.
func (c *Catalog) PathsForPool(chainID uint64, pool common.Address) []types.PoolPath {
	return c.pathsByPool[catalogKey{chainID: chainID, pool: pool}]
}

// HasPoolPathMappings implements scanner.PathIndex.
func (c *Catalog) HasPoolPathMappings(chainID uint64) bool {
	return c.hasMappings[chainID]
}

// LegacyTriangles implements scanner.PathIndex.
func (c *Catalog) LegacyTriangles(chainID uint64) []types.Triangle {
	return c.legacyTris[chainID]
}

// Tokens returns the loaded token catalog, keyed by (chain,address).
func (c *Catalog) Tokens() map[types.TokenKey]types.TokenConfig {
	return c.tokens
}

// Pools returns the loaded pool catalog, keyed by address.
func (c *Catalog) Pools() map[common.Address]types.Pool {
	return c.pools
}

// PoolsForChain returns every registered pool for one chain.
func (c *Catalog) PoolsForChain(chainID uint64) []types.Pool {
	var out []types.Pool
	for _, p := range c.pools {
		if p.ChainID == chainID {
			out = append(out, p)
		}
	}
	return out
}

// PoolsForPair returns every registered pool trading tokenA/tokenB on a
// chain, in either order, across all dex types and fees. Satisfies
// evaluator.PoolIndex (spec.md §4.4 step B's candidate pool selection).
func (c *Catalog) PoolsForPair(chainID uint64, tokenA, tokenB common.Address) []types.Pool {
	var out []types.Pool
	for _, p := range c.pools {
		if p.ChainID != chainID {
			continue
		}
		if (p.Token0 == tokenA && p.Token1 == tokenB) || (p.Token0 == tokenB && p.Token1 == tokenA) {
			out = append(out, p)
		}
	}
	return out
}

// PoolsForToken returns every registered pool on a chain with token as
// either side. Satisfies backtest.PoolIndex (spec.md §4.7's stablecoin/WETH
// pairing search).
func (c *Catalog) PoolsForToken(chainID uint64, token common.Address) []types.Pool {
	var out []types.Pool
	for _, p := range c.pools {
		if p.ChainID != chainID {
			continue
		}
		if p.Token0 == token || p.Token1 == token {
			out = append(out, p)
		}
	}
	return out
}

// TokenConfig looks up one token's static configuration. Satisfies
// backtest.TokenIndex.
func (c *Catalog) TokenConfig(chainID uint64, addr common.Address) (types.TokenConfig, bool) {
	tc, ok := c.tokens[types.TokenKey{ChainID: chainID, Address: addr}]
	return tc, ok
}

// IsStable reports whether a token is configured as a stablecoin. Satisfies
// backtest.TokenIndex.
func (c *Catalog) IsStable(chainID uint64, addr common.Address) bool {
	tc, ok := c.tokens[types.TokenKey{ChainID: chainID, Address: addr}]
	return ok && tc.IsStable
}

// WETH returns the chain's configured wrapped-native token address, as
// recorded by SetWrappedNatives. Satisfies backtest.TokenIndex.
func (c *Catalog) WETH(chainID uint64) (common.Address, bool) {
	addr, ok := c.wrappedNatives[chainID]
	return addr, ok
}

func parseDexType(s string) types.DexType {
	switch s {
	case "v2":
		return types.DexV2Family
	case "v3":
		return types.DexV3Family
	case "v4":
		return types.DexV4
	case "curve":
		return types.DexCurve
	default:
		return types.DexUnknown
	}
}
