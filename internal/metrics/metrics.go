// Package metrics provides Prometheus instrumentation for the trading
// service.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// TradesTotal counts filled trades, partitioned by side and by how
	// the fill happened ("market" or "sweep").
	TradesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "velasa_trades_total",
		Help: "Total number of trades filled",
	}, []string{"side", "source"})

	// TradeRejections counts rejected trade requests by reason.
	TradeRejections = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "velasa_trade_rejections_total",
		Help: "Trade requests rejected at admission",
	}, []string{"reason"})

	// OrdersQueued counts conditional orders accepted into the book.
	OrdersQueued = promauto.NewCounter(prometheus.CounterOpts{
		Name: "velasa_orders_queued_total",
		Help: "Conditional orders admitted to the pending book",
	})

	// OrdersExpired counts pending orders purged by the sweeper.
	OrdersExpired = promauto.NewCounter(prometheus.CounterOpts{
		Name: "velasa_orders_expired_total",
		Help: "Pending orders purged after expiry",
	})

	// OrdersDropped counts pending orders dropped because they no
	// longer passed admission at fill time.
	OrdersDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "velasa_orders_dropped_total",
		Help: "Pending orders dropped at re-admission",
	})

	// OracleFailures counts degraded market data calls by operation.
	OracleFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "velasa_oracle_failures_total",
		Help: "Market data calls that failed or timed out",
	}, []string{"op"})

	// TradeLatency tracks end-to-end trade execution latency.
	TradeLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "velasa_trade_latency_seconds",
		Help:    "Trade execution latency in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"side"})

	// WebSocketClients tracks connected WebSocket clients.
	WebSocketClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "velasa_websocket_clients",
		Help: "Number of connected WebSocket clients",
	})

	// HTTPRequestsTotal counts HTTP requests by method, path, and status.
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "velasa_http_requests_total",
		Help: "Total HTTP requests",
	}, []string{"method", "path", "status"})

	// HTTPRequestDuration tracks request duration by method and path.
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "velasa_http_request_duration_seconds",
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

		// Use the raw path for the label; the API surface is small
		// enough that cardinality is not a concern.
		path := r.URL.Path
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
