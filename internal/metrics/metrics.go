// Package metrics provides Prometheus instrumentation for the game engine.
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
)

var (
	// ActionsTotal counts signed actions by kind and outcome ("ok" or an
	// error kind).
	ActionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "flarepoly_actions_total",
		Help: "Total number of player actions processed",
	}, []string{"action", "result"})

	// ActionLatency covers authentication, apply, and persistence.
	ActionLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "flarepoly_action_latency_seconds",
		Help:    "Action processing latency in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"action"})

	// AuthFailures counts rejected proofs by reason.
	AuthFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "flarepoly_auth_failures_total",
		Help: "Proofs rejected by the authenticator",
	}, []string{"reason"})

	// SettlementsTotal counts verification attempts by outcome.
	SettlementsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "flarepoly_settlements_total",
		Help: "On-chain settlement verifications",
	}, []string{"result"})

	// SettlementLatency tracks payment-rail verification time.
	SettlementLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "flarepoly_settlement_latency_seconds",
		Help:    "Transfer verification latency in seconds",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 15},
	})

	// Eliminations counts bankrupt players.
	Eliminations = promauto.NewCounter(prometheus.CounterOpts{
		Name: "flarepoly_eliminations_total",
		Help: "Players eliminated for insolvency",
	})

	// GamesStarted counts resets.
	GamesStarted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "flarepoly_games_started_total",
		Help: "Games created by reset or first start",
	})

	// StateVersion is the version of the last committed state.
	StateVersion = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "flarepoly_state_version",
		Help: "Version of the last committed game state",
	})

	// EngineHalted is 1 once a persistence failure has stopped the engine.
	EngineHalted = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "flarepoly_engine_halted",
		Help: "1 if the engine stopped after a persistence failure",
	})

	// WebSocketClients tracks connected WebSocket clients.
	WebSocketClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "flarepoly_websocket_clients",
		Help: "Number of connected WebSocket clients",
	})

	// RateLimited counts requests rejected by the per-client limiter.
	RateLimited = promauto.NewCounter(prometheus.CounterOpts{
		Name: "flarepoly_rate_limited_total",
		Help: "Requests rejected by the rate limiter",
	})

	// HTTPRequestsTotal counts HTTP requests by method, path, and status.
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "flarepoly_http_requests_total",
		Help: "Total HTTP requests",
	}, []string{"method", "path", "status"})

	// HTTPRequestDuration tracks request duration by method and path.
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "flarepoly_http_request_duration_seconds",
		Help:    "HTTP request duration in seconds",
		Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
	}, []string{"method", "path"})
)

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

		// Route pattern, not the raw path, keeps offer ids out of labels.
		path := r.URL.Path
		if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
			path = rc.RoutePattern()
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

// Hijack lets WebSocket upgrades pass through the middleware.
func (w *statusWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("metrics: response writer does not support hijacking")
	}
	w.status = http.StatusSwitchingProtocols
	return h.Hijack()
}
