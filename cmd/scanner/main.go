// Command scanner is the long-running arbitrage engine process: it loads
// the static and catalog configuration, wires one Scanner per configured
// chain, and serves the HTTP control surface until a shutdown signal
// arrives.
package main

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"log"
	"math/big"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/shopspring/decimal"

	"github.com/flashtri/arbengine/internal/api"
	"github.com/flashtri/arbengine/internal/configstore"
	"github.com/flashtri/arbengine/internal/dbwriter"
	"github.com/flashtri/arbengine/internal/dispatcher"
	"github.com/flashtri/arbengine/internal/evaluator"
	"github.com/flashtri/arbengine/internal/feed"
	"github.com/flashtri/arbengine/internal/flashloan"
	"github.com/flashtri/arbengine/internal/metrics"
	"github.com/flashtri/arbengine/internal/notify"
	"github.com/flashtri/arbengine/internal/poolcache"
	"github.com/flashtri/arbengine/internal/priceservice"
	"github.com/flashtri/arbengine/internal/quoter"
	"github.com/flashtri/arbengine/internal/relay"
	"github.com/flashtri/arbengine/internal/scanner"
	"github.com/flashtri/arbengine/internal/types"
	"github.com/flashtri/arbengine/pkg/ethrpc"
	"github.com/flashtri/arbengine/pkg/logger"
)

// chainRuntime bundles the per-chain collaborators a single scanner loop
// needs, so shutdown can walk them in construction order.
type chainRuntime struct {
	chainID uint64
	rpc     *ethrpc.Client
	feed    *feed.Subscriber
	scanner *scanner.Scanner
	cache   *poolcache.Cache

	blockEvents chan types.NewBlockEvent
	swapEvents  chan types.SwapEvent
}

// engine is the process-level orchestrator, following the same
// initialize/start/waitForShutdown/shutdown struct shape the monorepo's
// cmd/fintech-api uses.
type engine struct {
	cfg     *configstore.AppConfig
	log     *logger.Logger
	db      *sqlx.DB
	catalog *configstore.Catalog
	prices  *priceservice.BinancePoller
	writer  *dbwriter.Writer
	notify  notify.Notifier
	api     *api.Server

	chains map[uint64]*chainRuntime
}

func main() {
	configPath := os.Getenv("ARBENGINE_CONFIG")

	cfg, err := configstore.LoadAppConfig(configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	lg, err := logger.New(logger.Config{Level: cfg.Logger.Level, JSONFormat: cfg.Logger.JSONFormat, Service: cfg.Service.Name})
	if err != nil {
		log.Fatalf("build logger: %v", err)
	}

	e := &engine{cfg: cfg, log: lg, chains: make(map[uint64]*chainRuntime)}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := e.initialize(ctx); err != nil {
		lg.Error("initialize engine", "error", err)
		os.Exit(1)
	}
	if err := e.start(ctx); err != nil {
		lg.Error("start engine", "error", err)
		os.Exit(1)
	}

	e.waitForShutdown()
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	if err := e.shutdown(shutdownCtx); err != nil {
		lg.Error("shutdown", "error", err)
	}
	lg.Info("scanner stopped")
}

func (e *engine) initialize(ctx context.Context) error {
	e.log.Info("initializing scanner engine")

	if err := e.initDatabase(); err != nil {
		return fmt.Errorf("init database: %w", err)
	}
	if err := e.initCatalog(ctx); err != nil {
		return fmt.Errorf("init catalog: %w", err)
	}
	e.initPriceService()
	e.writer = dbwriter.New(e.db, 4096, e.log)
	e.notify = e.initNotifier()
	if err := e.initChains(ctx); err != nil {
		return fmt.Errorf("init chains: %w", err)
	}
	e.initAPIServer()

	e.log.Info("scanner engine initialized")
	return nil
}

func (e *engine) initDatabase() error {
	db, err := sqlx.Connect("postgres", e.cfg.Database.DSN())
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	db.SetMaxOpenConns(e.cfg.Database.MaxOpenConns)
	db.SetMaxIdleConns(e.cfg.Database.MaxIdleConns)
	db.SetConnMaxLifetime(e.cfg.Database.ConnMaxLifetime)
	if err := db.Ping(); err != nil {
		return fmt.Errorf("ping postgres: %w", err)
	}
	e.db = db
	return nil
}

func (e *engine) initCatalog(ctx context.Context) error {
	catalog := configstore.NewCatalog(e.db)
	if err := catalog.Load(ctx); err != nil {
		return err
	}
	wrapped := make(map[uint64]common.Address, len(e.cfg.Chains))
	for _, chain := range e.cfg.Chains {
		if addr, ok := chain.WrappedNativeAddress(); ok {
			wrapped[chain.ChainID] = addr
		}
	}
	catalog.SetWrappedNatives(wrapped)
	e.catalog = catalog
	return nil
}

func (e *engine) initPriceService() {
	symbols := make(map[types.TokenKey]string, len(e.catalog.Tokens()))
	for key, tok := range e.catalog.Tokens() {
		if tok.PriceSymbol != "" {
			symbols[key] = tok.PriceSymbol
		}
	}
	e.prices = priceservice.NewBinancePoller(30*time.Second, symbols, e.log)
}

func (e *engine) initNotifier() notify.Notifier {
	if e.cfg.SMTP.Host == "" {
		return notify.NoOp{}
	}
	return notify.NewSMTPNotifier(notify.SMTPConfig{
		Host:     e.cfg.SMTP.Host,
		Port:     e.cfg.SMTP.Port,
		Username: e.cfg.SMTP.Username,
		Password: e.cfg.SMTP.Password,
		From:     e.cfg.SMTP.From,
		To:       e.cfg.SMTP.To,
	}, e.log)
}

// initChains builds one full collaborator graph per configured chain:
// RPC client, pool cache + refresher, quoter, evaluator, flash-loan
// selector, relay client, dispatcher, swap feed, and the Scanner itself.
func (e *engine) initChains(ctx context.Context) error {
	walletKey, err := loadWalletKey()
	if err != nil {
		e.log.Warn("no wallet key configured, auto_execute will be disabled", "error", err)
	}

	for name, chainCfg := range e.cfg.Chains {
		rt, err := e.buildChainRuntime(ctx, name, chainCfg, walletKey)
		if err != nil {
			return fmt.Errorf("chain %s: %w", name, err)
		}
		e.chains[chainCfg.ChainID] = rt
	}
	return nil
}

func (e *engine) buildChainRuntime(ctx context.Context, name string, chainCfg configstore.ChainConfig, walletKey *ecdsa.PrivateKey) (*chainRuntime, error) {
	rpc, err := ethrpc.New(ctx, chainCfg.ChainID, chainCfg.RPCURL, e.log)
	if err != nil {
		return nil, fmt.Errorf("ethrpc client: %w", err)
	}
	rpc.SetRecorder(metrics.NewRPCRecorder(chainCfg.ChainID))

	cache := poolcache.New()
	for _, pool := range e.catalog.PoolsForChain(chainCfg.ChainID) {
		cache.Register(pool)
	}

	refresher, err := poolcache.NewRefresher(rpc, cache, e.log)
	if err != nil {
		return nil, fmt.Errorf("pool refresher: %w", err)
	}

	onChainQuoter, err := quoter.NewOnChainClient(rpc, common.HexToAddress(chainCfg.QuoterV2), e.log)
	if err != nil {
		return nil, fmt.Errorf("onchain quoter: %w", err)
	}
	quoteClient := quoter.NewClient(onChainQuoter, e.cfg.Scanner.MinSwapValueUSD*10)

	eval := evaluator.New(cache, e.catalog, quoteClient, e.prices, e.catalog.Tokens(), evaluator.Config{}, e.log)

	flashSelector, err := flashloan.NewSelector(rpc, common.HexToAddress(chainCfg.FlashLoanPool), e.log)
	if err != nil {
		return nil, fmt.Errorf("flashloan selector: %w", err)
	}

	var relayClient *relay.Client
	if e.cfg.Relay.URL != "" && walletKey != nil {
		relayClient = relay.NewClient(e.cfg.Relay.URL, walletKey, e.log)
	}

	var disp scanner.ExecutionDispatcher
	if e.cfg.Scanner.AutoExecute && walletKey != nil {
		d := dispatcher.New(rpc, relayClient, flashSelector, e.prices, e.catalog.Tokens(), dispatcher.Config{
			Mode:               parseDispatcherMode(e.cfg.Dispatcher.Mode),
			ChainID:            new(big.Int).SetUint64(chainCfg.ChainID),
			WalletKey:          walletKey,
			ArbitrageContract:  common.HexToAddress(chainCfg.ArbitrageAddr),
			GasPriceMultiplier: decimal.NewFromFloat(e.cfg.Dispatcher.GasPriceMultiplier),
			MaxGasPriceGwei:    decimal.NewFromFloat(e.cfg.Dispatcher.MaxGasPriceGwei),
			MaxBlockRetries:    e.cfg.Dispatcher.MaxBlockRetries,
		}, e.log)
		disp = &notifyingDispatcher{inner: d, notify: e.notify, log: e.log}
	}

	sc := scanner.New(scanner.Config{
		ChainID:               chainCfg.ChainID,
		MaxConcurrentHandlers: e.cfg.Scanner.MaxConcurrentHandlers,
		FallbackScanInterval:  e.cfg.Scanner.FallbackScanInterval,
		DedupTTL:              e.cfg.Scanner.DedupTTL,
		MinSwapValueUSD:       e.cfg.Scanner.MinSwapValueUSD,
		AutoExecute:           e.cfg.Scanner.AutoExecute,
	}, cache, e.catalog, eval, e.prices, e.catalog.Tokens(), e.writer, disp, refresher, e.log)

	wsURL := chainCfg.WSURL
	if wsURL == "" {
		wsURL = chainCfg.RPCURL
	}
	sub, err := feed.Dial(ctx, chainCfg.ChainID, wsURL, e.log)
	if err != nil {
		return nil, fmt.Errorf("feed dial: %w", err)
	}

	return &chainRuntime{
		chainID:     chainCfg.ChainID,
		rpc:         rpc,
		feed:        sub,
		scanner:     sc,
		cache:       cache,
		blockEvents: make(chan types.NewBlockEvent, 16),
		swapEvents:  make(chan types.SwapEvent, 256),
	}, nil
}

func (e *engine) initAPIServer() {
	scanners := make(map[uint64]api.ScannerStats, len(e.chains))
	for chainID, rt := range e.chains {
		scanners[chainID] = rt.scanner
	}
	e.api = api.New(api.Config{
		Addr:     fmt.Sprintf(":%d", e.cfg.Service.HTTPPort),
		ReadyFn:  func() bool { return true },
		Scanners: scanners,
		RecentFn: e.recentOpportunities,
		Release:  e.cfg.Service.Environment == "production",
	}, e.log)
}

func (e *engine) recentOpportunities(ctx context.Context, limit int) ([]api.OpportunitySnapshot, error) {
	rows, err := e.writer.RecentOpportunities(ctx, limit)
	if err != nil {
		return nil, err
	}
	out := make([]api.OpportunitySnapshot, len(rows))
	for i, r := range rows {
		out[i] = api.OpportunitySnapshot{
			ID:                r.ID,
			ChainID:           r.ChainID,
			NetProfitUSD:      r.NetProfitUSD,
			ExpectedProfitUSD: r.ExpectedProfitUSD,
			BlockNumber:       r.BlockNumber,
			Status:            r.Status,
			DetectedAt:        r.DetectedAt.Format(time.RFC3339),
		}
	}
	return out, nil
}

func (e *engine) start(ctx context.Context) error {
	go e.prices.Run(ctx, priceSymbols(e.catalog.Tokens()))
	go e.writer.Run(ctx)

	for _, rt := range e.chains {
		rt := rt
		pools := make([]common.Address, 0, len(e.catalog.PoolsForChain(rt.chainID)))
		for _, p := range e.catalog.PoolsForChain(rt.chainID) {
			pools = append(pools, p.Address)
		}
		go rt.feed.Run(ctx, pools, rt.blockEvents, rt.swapEvents)
		go rt.scanner.Run(ctx, rt.swapEvents, rt.blockEvents)
	}

	go func() {
		if err := e.api.Start(); err != nil {
			e.log.Error("api server stopped", "error", err)
		}
	}()

	e.log.Info("scanner engine started", "chains", len(e.chains))
	return nil
}

func (e *engine) waitForShutdown() {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	e.log.Info("received shutdown signal", "signal", sig.String())
}

func (e *engine) shutdown(ctx context.Context) error {
	if e.api != nil {
		if err := e.api.Shutdown(ctx); err != nil {
			e.log.Error("api shutdown", "error", err)
		}
	}
	for _, rt := range e.chains {
		rt.feed.Close()
	}
	if e.writer != nil {
		e.writer.Close()
	}
	if e.db != nil {
		return e.db.Close()
	}
	return nil
}

// notifyingDispatcher wraps a *dispatcher.Dispatcher so every completed
// Dispatch also fires an execution notification, off the hot path per
// spec.md §4.6's "these must not block the hot path".
type notifyingDispatcher struct {
	inner  *dispatcher.Dispatcher
	notify notify.Notifier
	log    *logger.Logger
}

func (d *notifyingDispatcher) Dispatch(ctx context.Context, opp *types.Opportunity, gasPriceGwei float64) (*dispatcher.Result, error) {
	result, err := d.inner.Dispatch(ctx, opp, gasPriceGwei)
	if result != nil {
		go func() {
			if notifyErr := d.notify.NotifyExecution(nil, nil, opp, result); notifyErr != nil {
				d.log.Warn("execution notification failed", "opportunity_id", opp.ID, "error", notifyErr)
			}
		}()
	}
	return result, err
}

func priceSymbols(tokens map[types.TokenKey]types.TokenConfig) []string {
	seen := make(map[string]bool, len(tokens))
	var out []string
	for _, tok := range tokens {
		if tok.PriceSymbol == "" || seen[tok.PriceSymbol] {
			continue
		}
		seen[tok.PriceSymbol] = true
		out = append(out, tok.PriceSymbol)
	}
	return out
}

// parseDispatcherMode maps the configured send-mode string to a
// dispatcher.SendMode, defaulting to SendNormal for unset or unrecognized
// values so a typo in configuration never silently enables Flashbots.
func parseDispatcherMode(mode string) dispatcher.SendMode {
	switch strings.ToLower(mode) {
	case "flashbots":
		return dispatcher.SendFlashbots
	case "both":
		return dispatcher.SendBoth
	default:
		return dispatcher.SendNormal
	}
}

// loadWalletKey reads the hot wallet's signing key from the environment.
// A nil, non-error-wrapped key is returned when unset: auto-execution and
// Flashbots relaying both stay disabled, but scanning/evaluation continue.
func loadWalletKey() (*ecdsa.PrivateKey, error) {
	hexKey := os.Getenv("ARBENGINE_WALLET_KEY")
	if hexKey == "" {
		return nil, fmt.Errorf("ARBENGINE_WALLET_KEY not set")
	}
	key, err := crypto.HexToECDSA(hexKey)
	if err != nil {
		return nil, fmt.Errorf("parse wallet key: %w", err)
	}
	return key, nil
}
