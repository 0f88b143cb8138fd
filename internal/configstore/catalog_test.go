package configstore

import (
	"context"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/ethereum/go-ethereum/common"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flashtri/arbengine/internal/types"
)

func newMockCatalog(t *testing.T) (*Catalog, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	return NewCatalog(sqlx.NewDb(db, "postgres")), mock
}

func TestCatalog_Load_PopulatesAllFourTables(t *testing.T) {
	c, mock := newMockCatalog(t)

	tokenCols := []string{"chain_id", "address", "symbol", "decimals", "is_stable", "price_symbol", "optimal_input_amount", "enabled"}
	mock.ExpectQuery("FROM arbitrage_tokens").WillReturnRows(
		sqlmock.NewRows(tokenCols).
			AddRow(1, "0x1", "USDT", 6, true, "USDTUSDT", "1000000", true).
			AddRow(1, "0x2", "WETH", 18, false, "ETHUSDT", "1000000000000000000", true),
	)

	poolCols := []string{"chain_id", "address", "dex_type", "token0", "token1", "fee", "enabled"}
	mock.ExpectQuery("FROM arbitrage_pools").WillReturnRows(
		sqlmock.NewRows(poolCols).AddRow(1, "0x1001", "v3", "0x1", "0x2", 3000, true),
	)

	triCols := []string{"chain_id", "name", "token_a", "token_b", "token_c", "priority", "category", "enabled"}
	mock.ExpectQuery("FROM arbitrage_triangles").WillReturnRows(
		sqlmock.NewRows(triCols).AddRow(1, "legacy-1", "0x1", "0x2", "0x3", 10, "stable", true),
	)

	pathCols := []string{"chain_id", "trigger_pool", "path_name", "triangle_name", "token_a", "token_b", "token_c", "priority", "enabled"}
	mock.ExpectQuery("FROM arbitrage_pool_paths").WillReturnRows(
		sqlmock.NewRows(pathCols).AddRow(1, "0x1001", "path-1", "", "0x1", "0x2", "0x3", 5, true),
	)

	require.NoError(t, c.Load(context.Background()))
	require.NoError(t, mock.ExpectationsWereMet())

	assert.Len(t, c.Tokens(), 2)
	assert.Len(t, c.Pools(), 1)
	assert.True(t, c.HasPoolPathMappings(1))
	assert.False(t, c.HasPoolPathMappings(2))

	paths := c.PathsForPool(1, common.HexToAddress("0x1001"))
	require.Len(t, paths, 1)
	assert.Equal(t, "path-1", paths[0].PathName)

	tris := c.LegacyTriangles(1)
	require.Len(t, tris, 1)
	assert.Equal(t, int32(10), tris[0].Priority)
}

func TestCatalog_Load_InvalidOptimalAmountFallsBackToZero(t *testing.T) {
	c, mock := newMockCatalog(t)
	tokenCols := []string{"chain_id", "address", "symbol", "decimals", "is_stable", "price_symbol", "optimal_input_amount", "enabled"}
	mock.ExpectQuery("FROM arbitrage_tokens").WillReturnRows(
		sqlmock.NewRows(tokenCols).AddRow(1, "0x1", "USDT", 6, true, "USDTUSDT", "not-a-number", true),
	)
	mock.ExpectQuery("FROM arbitrage_pools").WillReturnRows(sqlmock.NewRows([]string{"chain_id", "address", "dex_type", "token0", "token1", "fee", "enabled"}))
	mock.ExpectQuery("FROM arbitrage_triangles").WillReturnRows(sqlmock.NewRows([]string{"chain_id", "name", "token_a", "token_b", "token_c", "priority", "category", "enabled"}))
	mock.ExpectQuery("FROM arbitrage_pool_paths").WillReturnRows(sqlmock.NewRows([]string{"chain_id", "trigger_pool", "path_name", "triangle_name", "token_a", "token_b", "token_c", "priority", "enabled"}))

	require.NoError(t, c.Load(context.Background()))
	tok := c.Tokens()[types.TokenKey{ChainID: 1, Address: common.HexToAddress("0x1")}]
	assert.Equal(t, "0", tok.OptimalInputAmount.String())
}

func TestCatalog_PoolsForChain_FiltersByChainID(t *testing.T) {
	c, mock := newMockCatalog(t)
	mock.ExpectQuery("FROM arbitrage_tokens").WillReturnRows(sqlmock.NewRows([]string{"chain_id", "address", "symbol", "decimals", "is_stable", "price_symbol", "optimal_input_amount", "enabled"}))
	poolCols := []string{"chain_id", "address", "dex_type", "token0", "token1", "fee", "enabled"}
	mock.ExpectQuery("FROM arbitrage_pools").WillReturnRows(
		sqlmock.NewRows(poolCols).
			AddRow(1, "0x1001", "v3", "0x1", "0x2", 3000, true).
			AddRow(2, "0x1002", "v3", "0x1", "0x2", 500, true),
	)
	mock.ExpectQuery("FROM arbitrage_triangles").WillReturnRows(sqlmock.NewRows([]string{"chain_id", "name", "token_a", "token_b", "token_c", "priority", "category", "enabled"}))
	mock.ExpectQuery("FROM arbitrage_pool_paths").WillReturnRows(sqlmock.NewRows([]string{"chain_id", "trigger_pool", "path_name", "triangle_name", "token_a", "token_b", "token_c", "priority", "enabled"}))

	require.NoError(t, c.Load(context.Background()))
	chain1Pools := c.PoolsForChain(1)
	require.Len(t, chain1Pools, 1)
	assert.Equal(t, common.HexToAddress("0x1001"), chain1Pools[0].Address)
}

func TestCatalog_PoolsForPairAndToken(t *testing.T) {
	c, mock := newMockCatalog(t)
	mock.ExpectQuery("FROM arbitrage_tokens").WillReturnRows(sqlmock.NewRows([]string{"chain_id", "address", "symbol", "decimals", "is_stable", "price_symbol", "optimal_input_amount", "enabled"}))
	poolCols := []string{"chain_id", "address", "dex_type", "token0", "token1", "fee", "enabled"}
	mock.ExpectQuery("FROM arbitrage_pools").WillReturnRows(
		sqlmock.NewRows(poolCols).
			AddRow(1, "0x1001", "v3", "0xa", "0xb", 3000, true).
			AddRow(1, "0x1002", "v3", "0xb", "0xc", 500, true),
	)
	mock.ExpectQuery("FROM arbitrage_triangles").WillReturnRows(sqlmock.NewRows([]string{"chain_id", "name", "token_a", "token_b", "token_c", "priority", "category", "enabled"}))
	mock.ExpectQuery("FROM arbitrage_pool_paths").WillReturnRows(sqlmock.NewRows([]string{"chain_id", "trigger_pool", "path_name", "triangle_name", "token_a", "token_b", "token_c", "priority", "enabled"}))

	require.NoError(t, c.Load(context.Background()))

	pair := c.PoolsForPair(1, common.HexToAddress("0xb"), common.HexToAddress("0xa"))
	require.Len(t, pair, 1)
	assert.Equal(t, common.HexToAddress("0x1001"), pair[0].Address)

	forToken := c.PoolsForToken(1, common.HexToAddress("0xb"))
	assert.Len(t, forToken, 2)

	assert.Empty(t, c.PoolsForPair(2, common.HexToAddress("0xa"), common.HexToAddress("0xb")))
}

func TestCatalog_WETHAndIsStable(t *testing.T) {
	c, mock := newMockCatalog(t)
	mock.ExpectQuery("FROM arbitrage_tokens").WillReturnRows(
		sqlmock.NewRows([]string{"chain_id", "address", "symbol", "decimals", "is_stable", "price_symbol", "optimal_input_amount", "enabled"}).
			AddRow(1, "0xdd", "USDT", 6, true, "USDTUSDT", "0", true),
	)
	mock.ExpectQuery("FROM arbitrage_pools").WillReturnRows(sqlmock.NewRows([]string{"chain_id", "address", "dex_type", "token0", "token1", "fee", "enabled"}))
	mock.ExpectQuery("FROM arbitrage_triangles").WillReturnRows(sqlmock.NewRows([]string{"chain_id", "name", "token_a", "token_b", "token_c", "priority", "category", "enabled"}))
	mock.ExpectQuery("FROM arbitrage_pool_paths").WillReturnRows(sqlmock.NewRows([]string{"chain_id", "trigger_pool", "path_name", "triangle_name", "token_a", "token_b", "token_c", "priority", "enabled"}))
	require.NoError(t, c.Load(context.Background()))

	c.SetWrappedNatives(map[uint64]common.Address{1: common.HexToAddress("0xee")})

	weth, ok := c.WETH(1)
	require.True(t, ok)
	assert.Equal(t, common.HexToAddress("0xee"), weth)

	_, ok = c.WETH(2)
	assert.False(t, ok)

	assert.True(t, c.IsStable(1, common.HexToAddress("0xdd")))
	assert.False(t, c.IsStable(1, common.HexToAddress("0xee")))
}
