// Package metrics provides Prometheus instrumentation for the pool engine.
package metrics

import (
	"bufio"
	"errors"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shopspring/decimal"

	"github.com/lbp/pool-engine/internal/model"
)

var (
	// DepositsTotal counts accepted deposits, partitioned by pool variant.
	DepositsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "lbp_deposits_total",
		Help: "Total number of accepted deposits",
	}, []string{"variant"})

	// PenaltyWithdrawalsTotal counts early withdrawals that paid a penalty.
	PenaltyWithdrawalsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "lbp_penalty_withdrawals_total",
		Help: "Total number of withdrawals with penalty",
	}, []string{"variant"})

	// BatchEntriesTotal counts depositors migrated by transfer batches.
	BatchEntriesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "lbp_batch_entries_total",
		Help: "Depositors processed by transfer batches",
	})

	// LpSharesMinted tracks LP shares received from the AMM per pool.
	LpSharesMinted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "lbp_lp_shares_minted_total",
		Help: "Cumulative LP shares minted into pools",
	}, []string{"pool_id"})

	// ClaimsTotal counts successful claims by kind (lp, leftover, reward).
	ClaimsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "lbp_claims_total",
		Help: "Total number of successful claims",
	}, []string{"kind"})

	// EmergencyActionsTotal counts admin emergency calls by action.
	EmergencyActionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "lbp_emergency_actions_total",
		Help: "Emergency stop, resume and rescue calls",
	}, []string{"action"})

	// PoolPhase exposes the current phase of each pool.
	PoolPhase = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "lbp_pool_phase",
		Help: "Current phase of a pool (0 created .. 4 emergency stopped)",
	}, []string{"pool_id"})

	// ActivePools tracks the number of pools hosted by the daemon.
	ActivePools = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "lbp_active_pools",
		Help: "Number of pools registered with the factory",
	})

	// WebSocketClients tracks connected WebSocket clients.
	WebSocketClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "lbp_websocket_clients",
		Help: "Number of connected WebSocket clients",
	})

	// HTTPRequestsTotal counts HTTP requests by method, path, and status.
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "lbp_http_requests_total",
		Help: "Total HTTP requests",
	}, []string{"method", "path", "status"})

	// HTTPRequestDuration tracks request duration by method and path.
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "lbp_http_request_duration_seconds",
		Help:    "HTTP request duration in seconds",
		Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
	}, []string{"method", "path"})
)

// ObservePhase records the phase of a pool.
func ObservePhase(poolID string, phase model.Phase) {
	PoolPhase.WithLabelValues(poolID).Set(float64(phase))
}

// AddShares records LP shares minted into a pool.
func AddShares(poolID string, shares decimal.Decimal) {
	if shares.IsPositive() {
		LpSharesMinted.WithLabelValues(poolID).Add(shares.InexactFloat64())
	}
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Middleware returns an HTTP middleware that records request metrics.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &statusWriter{ResponseWriter: w, status: 200}
		next.ServeHTTP(wrapped, r)
		duration := time.Since(start).Seconds()

		// Use the route pattern for path label to avoid high cardinality.
		path := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				path = pattern
			}
		}
		HTTPRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(wrapped.status)).Inc()
		HTTPRequestDuration.WithLabelValues(r.Method, path).Observe(duration)
	})
}

// statusWriter wraps http.ResponseWriter to capture the status code.
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

// Hijack lets the WebSocket upgrade pass through the middleware.
func (w *statusWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("metrics: response writer does not support hijacking")
	}
	w.status = http.StatusSwitchingProtocols
	return h.Hijack()
}
