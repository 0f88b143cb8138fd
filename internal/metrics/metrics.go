// Package metrics holds the Prometheus collectors shared across chains and
// packages: the Scanner's detection/dedup counters, the Dispatcher's send
// modes and outcomes, and the ethrpc Client's per-method call counts. A
// single package (rather than one collector set per consumer) keeps
// /metrics registration centralized while letting scanner, dispatcher, and
// pkg/ethrpc each increment it without importing one another.
package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus collectors the Scanner's detection/dedup
// path, the Dispatcher's send modes, and the ethrpc Client's call counters
// update.
var Metrics = struct {
	OpportunitiesDetected *prometheus.CounterVec
	OpportunitiesExecuted *prometheus.CounterVec
	DuplicatesSkipped     *prometheus.CounterVec
	RPCCallsTotal         *prometheus.CounterVec
	RPCCallErrorsTotal    *prometheus.CounterVec
	SendModeTotal         *prometheus.CounterVec
	DispatchOutcomeTotal  *prometheus.CounterVec
	CurrentBlock          *prometheus.GaugeVec
	GasPriceGwei          *prometheus.GaugeVec
}{
	OpportunitiesDetected: promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "arbengine_opportunities_detected_total",
		Help: "Total opportunities emitted by a chain's Scanner.",
	}, []string{"chain_id"}),
	OpportunitiesExecuted: promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "arbengine_opportunities_executed_total",
		Help: "Total opportunities handed to the Dispatcher.",
	}, []string{"chain_id"}),
	DuplicatesSkipped: promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "arbengine_duplicates_skipped_total",
		Help: "Total SwapEvents dropped by the tx-hash dedup gate.",
	}, []string{"chain_id"}),
	RPCCallsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "arbengine_rpc_calls_total",
		Help: "Total RPC calls issued, by method.",
	}, []string{"chain_id", "method"}),
	RPCCallErrorsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "arbengine_rpc_call_errors_total",
		Help: "Total RPC call errors, by method.",
	}, []string{"chain_id", "method"}),
	SendModeTotal: promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "arbengine_send_mode_total",
		Help: "Total dispatcher sends, by mode.",
	}, []string{"chain_id", "mode"}),
	DispatchOutcomeTotal: promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "arbengine_dispatch_outcome_total",
		Help: "Total dispatch outcomes, by result (confirmed/reverted/timeout, or a Flashbots bundle outcome).",
	}, []string{"chain_id", "outcome"}),
	CurrentBlock: promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "arbengine_current_block",
		Help: "Most recently observed block number, per chain.",
	}, []string{"chain_id"}),
	GasPriceGwei: promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "arbengine_gas_price_gwei",
		Help: "Cached gas price in Gwei, per chain.",
	}, []string{"chain_id"}),
}

// RPCRecorder implements pkg/ethrpc's RPCRecorder interface, tagging every
// call with the owning chain so the ethrpc package itself never needs to
// import internal/metrics.
type RPCRecorder struct {
	chainLabel string
}

// NewRPCRecorder builds a recorder scoped to one chain.
func NewRPCRecorder(chainID uint64) *RPCRecorder {
	return &RPCRecorder{chainLabel: strconv.FormatUint(chainID, 10)}
}

// RecordRPCCall increments the call counter for method, and the error
// counter alongside it when err is non-nil.
func (r *RPCRecorder) RecordRPCCall(method string, err error) {
	Metrics.RPCCallsTotal.WithLabelValues(r.chainLabel, method).Inc()
	if err != nil {
		Metrics.RPCCallErrorsTotal.WithLabelValues(r.chainLabel, method).Inc()
	}
}
