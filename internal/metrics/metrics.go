// Package metrics provides Prometheus instrumentation for the decision engine.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// TradesTotal counts executed paper trades by action and approval tier.
	TradesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "polydesk_trades_total",
		Help: "Paper trades executed",
	}, []string{"action", "tier"})

	// TradeRejections counts trades rejected by the validator, by reason.
	TradeRejections = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "polydesk_trade_rejections_total",
		Help: "Trades rejected by the risk validator",
	}, []string{"reason"})

	// ApprovalsRequested counts trades deferred to human approval.
	ApprovalsRequested = promauto.NewCounter(prometheus.CounterOpts{
		Name: "polydesk_approvals_requested_total",
		Help: "Trades deferred to human approval",
	})

	// RealizedPnL tracks cumulative realized P&L of the paper portfolio.
	RealizedPnL = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "polydesk_realized_pnl_usd",
		Help: "Cumulative realized P&L in USD",
	})

	// OpenPositions tracks the number of open positions.
	OpenPositions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "polydesk_open_positions",
		Help: "Number of open paper positions",
	})

	// HypothesisTransitions counts lifecycle transitions.
	HypothesisTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "polydesk_hypothesis_transitions_total",
		Help: "Hypothesis status transitions",
	}, []string{"from", "to"})

	// SignalsEmitted counts orchestrator signals by action.
	SignalsEmitted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "polydesk_signals_total",
		Help: "Priority signals emitted by the orchestrator",
	}, []string{"action"})

	// Dispatches counts scheduler dispatches by action and outcome.
	Dispatches = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "polydesk_dispatches_total",
		Help: "Tasks dispatched to the reasoning agent",
	}, []string{"action", "outcome"})

	// ToolCalls counts tool invocations by tool and error kind ("" when ok).
	ToolCalls = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "polydesk_tool_calls_total",
		Help: "Tool invocations",
	}, []string{"tool", "error"})

	// HTTPRequestsTotal counts HTTP requests by method, route, and status.
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "polydesk_http_requests_total",
		Help: "Total HTTP requests",
	}, []string{"method", "path", "status"})

	// HTTPRequestDuration tracks request duration by method and route.
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "polydesk_http_request_duration_seconds",
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
		wrapped := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(wrapped, r)
		duration := time.Since(start).Seconds()

		// El patrón de ruta de chi evita un label por cada nombre de tool.
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
