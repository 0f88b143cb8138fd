package priceservice

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/flashtri/arbengine/internal/types"
	"github.com/flashtri/arbengine/pkg/logger"
)

// BinancePoller polls Binance's public ticker REST endpoint on an interval
// and caches the last-seen price per symbol, in the same
// mutex-guarded-map-plus-background-goroutine shape
// arbitrage_detector.go uses for its opportunity cache.
type BinancePoller struct {
	httpClient *http.Client
	baseURL    string
	interval   time.Duration
	log        *logger.Logger

	mu            sync.RWMutex
	pricesBySym   map[string]decimal.Decimal
	tokenSymbols  map[types.TokenKey]string // chain_id/address -> symbol, from ConfigStore
	stablePrice   decimal.Decimal
}

// NewBinancePoller builds a poller. tokenSymbols maps a (chain,address)
// key to the PriceSymbol configured for that token (spec.md §3 TokenConfig).
// The Binance ticker symbols to track (e.g. "ETHUSDT", "BNBUSDT") are
// passed to Run.
func NewBinancePoller(interval time.Duration, tokenSymbols map[types.TokenKey]string, log *logger.Logger) *BinancePoller {
	return &BinancePoller{
		httpClient:   &http.Client{Timeout: 10 * time.Second},
		baseURL:      "https://api.binance.com/api/v3/ticker/price",
		interval:     interval,
		log:          log.Named("priceservice"),
		pricesBySym:  make(map[string]decimal.Decimal),
		tokenSymbols: tokenSymbols,
		stablePrice:  decimal.NewFromInt(1),
	}
}

// Run polls until ctx is cancelled. Intended to be launched as a background
// goroutine from the process's main entrypoint.
func (p *BinancePoller) Run(ctx context.Context, symbols []string) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.pollOnce(ctx, symbols)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.pollOnce(ctx, symbols)
		}
	}
}

type binanceTickerResp struct {
	Symbol string `json:"symbol"`
	Price  string `json:"price"`
}

func (p *BinancePoller) pollOnce(ctx context.Context, symbols []string) {
	for _, sym := range symbols {
		price, err := p.fetchOne(ctx, sym)
		if err != nil {
			p.log.Warn("binance ticker fetch failed", "symbol", sym, "error", err)
			continue
		}
		p.mu.Lock()
		p.pricesBySym[sym] = price
		p.mu.Unlock()
	}
}

func (p *BinancePoller) fetchOne(ctx context.Context, symbol string) (decimal.Decimal, error) {
	url := fmt.Sprintf("%s?symbol=%s", p.baseURL, symbol)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return decimal.Zero, err
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return decimal.Zero, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return decimal.Zero, fmt.Errorf("priceservice: binance returned status %d", resp.StatusCode)
	}

	var out binanceTickerResp
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return decimal.Zero, fmt.Errorf("priceservice: decode binance response: %w", err)
	}

	price, err := decimal.NewFromString(out.Price)
	if err != nil {
		return decimal.Zero, fmt.Errorf("priceservice: parse price %q: %w", out.Price, err)
	}
	return price, nil
}

// GetPriceByAddress resolves via the token's configured PriceSymbol.
func (p *BinancePoller) GetPriceByAddress(chainID uint64, addr common.Address) (decimal.Decimal, bool) {
	p.mu.RLock()
	symbol, known := p.tokenSymbols[types.TokenKey{ChainID: chainID, Address: addr}]
	p.mu.RUnlock()
	if !known {
		return decimal.Zero, false
	}
	return p.GetPriceBySymbol(symbol)
}

// GetPriceBySymbol returns the cached price for a Binance ticker symbol,
// treating stablecoin symbols ("USDT", "USDC", "DAI", "BUSD", "") as pegged
// to 1.0.
func (p *BinancePoller) GetPriceBySymbol(symbol string) (decimal.Decimal, bool) {
	if isStableSymbol(symbol) {
		return p.stablePrice, true
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	price, ok := p.pricesBySym[symbol]
	return price, ok
}

// GetETHPrice returns the cached ETHUSDT price, or zero if not yet polled.
func (p *BinancePoller) GetETHPrice() decimal.Decimal {
	price, _ := p.GetPriceBySymbol("ETHUSDT")
	return price
}

// GetBNBPrice returns the cached BNBUSDT price, or zero if not yet polled.
func (p *BinancePoller) GetBNBPrice() decimal.Decimal {
	price, _ := p.GetPriceBySymbol("BNBUSDT")
	return price
}

func isStableSymbol(symbol string) bool {
	switch symbol {
	case "USDT", "USDC", "DAI", "BUSD", "":
		return true
	default:
		return false
	}
}
