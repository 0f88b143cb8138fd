// Package api implements the HTTP control surface spec.md §6 names as
// out of scope for behavior design but real at the interface: a health
// endpoint, a Prometheus metrics endpoint, a read-only list of the most
// recently persisted opportunities, and per-chain scanner counters.
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/flashtri/arbengine/internal/scanner"
	"github.com/flashtri/arbengine/pkg/logger"
)

// ScannerStats is the subset of *scanner.Scanner the /stats route reads.
type ScannerStats interface {
	Stats() scanner.Stats
}

// Server is the HTTP control surface: health, readiness, Prometheus
// metrics, and two read-only operational routes, built on gin-gonic/gin
// matching every cmd/*/main.go entrypoint in the teacher monorepo.
type Server struct {
	router *gin.Engine
	http   *http.Server
	log    *logger.Logger

	readyFn   func() bool
	scanners  map[uint64]ScannerStats
	recentFn  func(ctx context.Context, limit int) ([]OpportunitySnapshot, error)
}

// OpportunitySnapshot is the JSON shape returned by /opportunities.
type OpportunitySnapshot struct {
	ID                string `json:"id"`
	ChainID           uint64 `json:"chain_id"`
	NetProfitUSD      string `json:"net_profit_usd"`
	ExpectedProfitUSD string `json:"expected_profit_usd"`
	BlockNumber       uint64 `json:"block_number"`
	Status            string `json:"status"`
	DetectedAt        string `json:"detected_at"`
}

// Config bundles the Server's dependencies.
type Config struct {
	Addr     string
	ReadyFn  func() bool
	Scanners map[uint64]ScannerStats
	RecentFn func(ctx context.Context, limit int) ([]OpportunitySnapshot, error)
	Release  bool
}

// New builds a Server. Routes are registered but the server is not yet
// listening; call Start.
func New(cfg Config, log *logger.Logger) *Server {
	if cfg.Release {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())

	s := &Server{
		router:   router,
		log:      log.Named("api"),
		readyFn:  cfg.ReadyFn,
		scanners: cfg.Scanners,
		recentFn: cfg.RecentFn,
	}
	s.registerRoutes()

	s.http = &http.Server{
		Addr:         cfg.Addr,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

func (s *Server) registerRoutes() {
	s.router.GET("/healthz", s.handleHealthz)
	s.router.GET("/readyz", s.handleReadyz)
	s.router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	s.router.GET("/stats", s.handleStats)
	s.router.GET("/opportunities", s.handleOpportunities)
}

func (s *Server) handleHealthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) handleReadyz(c *gin.Context) {
	if s.readyFn != nil && !s.readyFn() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not_ready"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}

func (s *Server) handleStats(c *gin.Context) {
	out := make(map[string]scanner.Stats, len(s.scanners))
	for chainID, sc := range s.scanners {
		out[fmt.Sprintf("%d", chainID)] = sc.Stats()
	}
	c.JSON(http.StatusOK, out)
}

func (s *Server) handleOpportunities(c *gin.Context) {
	if s.recentFn == nil {
		c.JSON(http.StatusOK, []OpportunitySnapshot{})
		return
	}
	limit := 50
	rows, err := s.recentFn(c.Request.Context(), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, rows)
}

// Start begins listening. Intended to run in its own goroutine; Start
// returns nil on a clean shutdown triggered via Shutdown.
func (s *Server) Start() error {
	s.log.Info("http control surface listening", "addr", s.http.Addr)
	if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("api: listen and serve: %w", err)
	}
	return nil
}

// Shutdown gracefully stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}
