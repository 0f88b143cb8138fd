// Command backtest replays a chain's recorded swap_records history through
// the offline BacktestAnalyzer (spec.md §4.7) and prints the resulting
// per-path statistics. No CLI framework third-party dependency appears in
// the teacher's go.mod, so flag from the standard library drives this
// tool's arguments, matching the teacher's own stdlib-flag-free but also
// cobra-free cmd/* tree.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"sort"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/shopspring/decimal"

	"github.com/flashtri/arbengine/internal/backtest"
	"github.com/flashtri/arbengine/internal/configstore"
	"github.com/flashtri/arbengine/pkg/logger"
)

func main() {
	var (
		configPath = flag.String("config", "", "path to the static YAML config (defaults to ./configs/config.yaml)")
		chainID    = flag.Uint64("chain-id", 1, "chain to replay")
		fromBlock  = flag.Uint64("from-block", 0, "inclusive start block")
		toBlock    = flag.Uint64("to-block", 0, "inclusive end block (0 = no upper bound)")
		gasPrice   = flag.Float64("gas-price-gwei", 10, "fixed gas price used for the replay's cost model")
	)
	flag.Parse()

	cfg, err := configstore.LoadAppConfig(*configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	lg, err := logger.New(logger.Config{Level: cfg.Logger.Level, JSONFormat: cfg.Logger.JSONFormat, Service: "backtest"})
	if err != nil {
		log.Fatalf("build logger: %v", err)
	}

	ctx := context.Background()
	db, err := sqlx.Connect("postgres", cfg.Database.DSN())
	if err != nil {
		lg.Error("connect postgres", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	catalog := configstore.NewCatalog(db)
	if err := catalog.Load(ctx); err != nil {
		lg.Error("load catalog", "error", err)
		os.Exit(1)
	}
	wrapped := make(map[uint64]common.Address, len(cfg.Chains))
	for _, chain := range cfg.Chains {
		if addr, ok := chain.WrappedNativeAddress(); ok {
			wrapped[chain.ChainID] = addr
		}
	}
	catalog.SetWrappedNatives(wrapped)

	paths, err := loadBacktestPaths(ctx, db, catalog, *chainID)
	if err != nil {
		lg.Error("resolve paths", "error", err)
		os.Exit(1)
	}
	if len(paths) == 0 {
		lg.Warn("no pool paths registered for chain, nothing to replay", "chain_id", *chainID)
	}

	records, err := loadSwapRecords(ctx, db, *chainID, *fromBlock, *toBlock)
	if err != nil {
		lg.Error("load swap records", "error", err)
		os.Exit(1)
	}
	lg.Info("loaded backtest inputs", "chain_id", *chainID, "paths", len(paths), "swap_records", len(records))

	analyzer := backtest.New(backtest.Config{
		ChainID:           *chainID,
		FixedGasPriceGwei: *gasPrice,
	}, catalog, catalog)

	stats := analyzer.Run(records, paths)
	printStats(stats)
}

// loadBacktestPaths turns each chain's arbitrage_pool_paths row (which
// stores only the trigger pool and the three token addresses, per spec.md
// §6) into a backtest.Path carrying concrete hop pools, by picking the
// lowest-fee registered pool for each consecutive token pair (spec.md §4.4
// step B's tie-break rule, reused here since the backtest has no on-chain
// quoter to disambiguate with).
func loadBacktestPaths(ctx context.Context, db *sqlx.DB, catalog *configstore.Catalog, chainID uint64) ([]backtest.Path, error) {
	var rows []poolPathRow
	err := db.SelectContext(ctx, &rows, `
		SELECT chain_id, trigger_pool, path_name, token_a, token_b, token_c, priority
		FROM arbitrage_pool_paths WHERE enabled = true AND chain_id = $1
		ORDER BY priority DESC
	`, chainID)
	if err != nil {
		return nil, fmt.Errorf("backtest: load arbitrage_pool_paths: %w", err)
	}

	out := make([]backtest.Path, 0, len(rows))
	for _, r := range rows {
		tokenA := common.HexToAddress(r.TokenA)
		tokenB := common.HexToAddress(r.TokenB)
		tokenC := common.HexToAddress(r.TokenC)

		pool1, fee1, ok := cheapestPool(catalog, chainID, tokenA, tokenB)
		if !ok {
			continue
		}
		pool2, fee2, ok := cheapestPool(catalog, chainID, tokenB, tokenC)
		if !ok {
			continue
		}
		pool3, fee3, ok := cheapestPool(catalog, chainID, tokenC, tokenA)
		if !ok {
			continue
		}

		out = append(out, backtest.Path{
			PathName:    r.PathName,
			TriggerPool: common.HexToAddress(r.TriggerPool),
			Pool1:       pool1,
			Pool2:       pool2,
			Pool3:       pool3,
			TokenA:      tokenA,
			TokenB:      tokenB,
			TokenC:      tokenC,
			Fee1PPM:     fee1,
			Fee2PPM:     fee2,
			Fee3PPM:     fee3,
			Priority:    r.Priority,
		})
	}
	return out, nil
}

func cheapestPool(catalog *configstore.Catalog, chainID uint64, tokenA, tokenB common.Address) (common.Address, uint32, bool) {
	candidates := catalog.PoolsForPair(chainID, tokenA, tokenB)
	if len(candidates) == 0 {
		return common.Address{}, 0, false
	}
	sort.Slice(candidates, func(i, j int) bool { return candidates[i].FeePPM < candidates[j].FeePPM })
	best := candidates[0]
	return best.Address, best.FeePPM, true
}

// poolPathRow is the subset of arbitrage_pool_paths columns this tool
// needs (a narrower projection than configstore's own internal row type).
type poolPathRow struct {
	ChainID     uint64 `db:"chain_id"`
	TriggerPool string `db:"trigger_pool"`
	PathName    string `db:"path_name"`
	TokenA      string `db:"token_a"`
	TokenB      string `db:"token_b"`
	TokenC      string `db:"token_c"`
	Priority    int32  `db:"priority"`
}

// swapRecordRow mirrors the swap_records table: every historical V3 Swap
// event, persisted with its raw decimal/address fields as text so no
// precision is lost across the SQL boundary.
type swapRecordRow struct {
	ChainID      uint64          `db:"chain_id"`
	BlockNumber  uint64          `db:"block_number"`
	PoolAddress  string          `db:"pool_address"`
	Amount0      decimal.Decimal `db:"amount0"`
	Amount1      decimal.Decimal `db:"amount1"`
	SqrtPriceX96 decimal.Decimal `db:"sqrt_price_x96"`
	Tick         int32           `db:"tick"`
	Liquidity    decimal.Decimal `db:"liquidity"`
	USDVolume    decimal.Decimal `db:"usd_volume"`
	Timestamp    time.Time       `db:"block_timestamp"`
}

func loadSwapRecords(ctx context.Context, db *sqlx.DB, chainID, fromBlock, toBlock uint64) ([]backtest.SwapRecord, error) {
	query := `
		SELECT chain_id, block_number, pool_address, amount0, amount1, sqrt_price_x96, tick, liquidity, usd_volume, block_timestamp
		FROM swap_records
		WHERE chain_id = $1 AND block_number >= $2
	`
	args := []interface{}{chainID, fromBlock}
	if toBlock > 0 {
		query += " AND block_number <= $3"
		args = append(args, toBlock)
	}
	query += " ORDER BY block_number ASC"

	var rows []swapRecordRow
	if err := db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("backtest: load swap_records: %w", err)
	}

	out := make([]backtest.SwapRecord, len(rows))
	for i, r := range rows {
		out[i] = backtest.SwapRecord{
			ChainID:      r.ChainID,
			BlockNumber:  r.BlockNumber,
			PoolAddress:  common.HexToAddress(r.PoolAddress),
			Amount0:      r.Amount0,
			Amount1:      r.Amount1,
			SqrtPriceX96: r.SqrtPriceX96,
			Tick:         r.Tick,
			Liquidity:    r.Liquidity,
			USDVolume:    r.USDVolume,
			Timestamp:    r.Timestamp,
		}
	}
	return out, nil
}

func printStats(stats *backtest.BacktestStatistics) {
	type pathSummary struct {
		PathName        string `json:"path_name"`
		Count           int    `json:"count"`
		ProfitableCount int    `json:"profitable_count"`
		SumProfitUSD    string `json:"sum_profit_usd"`
		MaxProfitUSD    string `json:"max_profit_usd"`
		AvgProfitUSD    string `json:"avg_profit_usd"`
	}
	out := struct {
		StartBlock      uint64        `json:"start_block"`
		EndBlock        uint64        `json:"end_block"`
		BlocksWithSwaps int           `json:"blocks_with_swaps"`
		TotalVolumeUSD  string        `json:"total_volume_usd"`
		Profitable      int           `json:"profitable_opportunities"`
		Paths           []pathSummary `json:"paths"`
	}{
		StartBlock:      stats.StartBlock,
		EndBlock:        stats.EndBlock,
		BlocksWithSwaps: stats.BlocksWithSwaps,
		TotalVolumeUSD:  stats.TotalVolumeUSD.String(),
		Profitable:      len(stats.ProfitableOpportunities),
	}
	for name, ps := range stats.PathStats {
		out.Paths = append(out.Paths, pathSummary{
			PathName:        name,
			Count:           ps.Count,
			ProfitableCount: ps.ProfitableCount,
			SumProfitUSD:    ps.SumProfitUSD.String(),
			MaxProfitUSD:    ps.MaxProfitUSD.String(),
			AvgProfitUSD:    ps.AvgProfitUSD.String(),
		})
	}
	sort.Slice(out.Paths, func(i, j int) bool { return out.Paths[i].PathName < out.Paths[j].PathName })

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(out)
}
