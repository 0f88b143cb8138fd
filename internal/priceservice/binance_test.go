package priceservice

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flashtri/arbengine/internal/types"
	"github.com/flashtri/arbengine/pkg/logger"
)

func TestBinancePoller_StableSymbolShortcut(t *testing.T) {
	p := NewBinancePoller(time.Minute, nil, logger.Nop())
	price, ok := p.GetPriceBySymbol("USDT")
	require.True(t, ok)
	assert.True(t, price.Equal(decimal.NewFromInt(1)))
}

func TestBinancePoller_UnknownAddressNotFound(t *testing.T) {
	p := NewBinancePoller(time.Minute, map[types.TokenKey]string{}, logger.Nop())
	_, ok := p.GetPriceByAddress(1, common.HexToAddress("0xdead"))
	assert.False(t, ok)
}

func TestBinancePoller_PollOnceUpdatesCache(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(binanceTickerResp{Symbol: "WETHUSDT", Price: "3000.50"})
	}))
	defer srv.Close()

	p := NewBinancePoller(time.Minute, nil, logger.Nop())
	p.baseURL = srv.URL

	p.pollOnce(context.Background(), []string{"WETHUSDT"})

	price, ok := p.GetPriceBySymbol("WETHUSDT")
	require.True(t, ok)
	assert.True(t, price.Equal(decimal.RequireFromString("3000.50")))
}

func TestBinancePoller_AddressResolvesViaTokenSymbolMap(t *testing.T) {
	weth := common.HexToAddress("0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(binanceTickerResp{Symbol: "WETHUSDT", Price: "3100.00"})
	}))
	defer srv.Close()

	p := NewBinancePoller(time.Minute, map[types.TokenKey]string{
		{ChainID: 1, Address: weth}: "WETHUSDT",
	}, logger.Nop())
	p.baseURL = srv.URL
	p.pollOnce(context.Background(), []string{"WETHUSDT"})

	price, ok := p.GetPriceByAddress(1, weth)
	require.True(t, ok)
	assert.True(t, price.Equal(decimal.RequireFromString("3100.00")))
}
