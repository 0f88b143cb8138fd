package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flashtri/arbengine/internal/scanner"
	"github.com/flashtri/arbengine/pkg/logger"
)

type fakeScannerStats struct{ stats scanner.Stats }

func (f fakeScannerStats) Stats() scanner.Stats { return f.stats }

func newTestServer(ready bool) *Server {
	return New(Config{
		Addr:    ":0",
		ReadyFn: func() bool { return ready },
		Scanners: map[uint64]ScannerStats{
			1: fakeScannerStats{stats: scanner.Stats{ChainID: 1, CurrentBlock: 100}},
		},
		RecentFn: func(ctx context.Context, limit int) ([]OpportunitySnapshot, error) {
			return []OpportunitySnapshot{{ID: "opp-1", ChainID: 1, Status: "detected"}}, nil
		},
	}, logger.Nop())
}

func TestHealthz(t *testing.T) {
	s := newTestServer(true)
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestReadyz_NotReady(t *testing.T) {
	s := newTestServer(false)
	req := httptest.NewRequest(http.MethodGet, "/readyz", nil)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestReadyz_Ready(t *testing.T) {
	s := newTestServer(true)
	req := httptest.NewRequest(http.MethodGet, "/readyz", nil)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestStats_ReturnsPerChainSnapshot(t *testing.T) {
	s := newTestServer(true)
	req := httptest.NewRequest(http.MethodGet, "/stats", nil)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var out map[string]scanner.Stats
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	require.Contains(t, out, "1")
	assert.Equal(t, uint64(100), out["1"].CurrentBlock)
}

func TestOpportunities_ReturnsSnapshot(t *testing.T) {
	s := newTestServer(true)
	req := httptest.NewRequest(http.MethodGet, "/opportunities", nil)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var rows []OpportunitySnapshot
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &rows))
	require.Len(t, rows, 1)
	assert.Equal(t, "opp-1", rows[0].ID)
}

func TestOpportunities_NilRecentFnReturnsEmpty(t *testing.T) {
	s := New(Config{Addr: ":0"}, logger.Nop())
	req := httptest.NewRequest(http.MethodGet, "/opportunities", nil)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "[]", rec.Body.String())
}

func TestMetrics_ServedByPromHandler(t *testing.T) {
	s := newTestServer(true)
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}
