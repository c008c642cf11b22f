// Package metrics provides Prometheus instrumentation for the trade engine.
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
	// SettlementsTotal counts settlement attempts by terminal outcome
	// (settled, rejected, failed).
	SettlementsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "commodex_settlements_total",
		Help: "Total number of settlement attempts",
	}, []string{"outcome"})

	// SettlementLatency tracks end-to-end settlement duration.
	SettlementLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "commodex_settlement_latency_seconds",
		Help:    "Settlement execution latency in seconds",
		Buckets: prometheus.DefBuckets,
	})

	// InventoryRejections counts buys refused for insufficient stock.
	InventoryRejections = promauto.NewCounter(prometheus.CounterOpts{
		Name: "commodex_inventory_rejections_total",
		Help: "Settlements rejected for insufficient inventory",
	})

	// CommoditiesListed counts catalog creations.
	CommoditiesListed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "commodex_commodities_listed_total",
		Help: "Total commodities created in the catalog",
	})

	// TradedVolume accumulates settled quantity per commodity.
	TradedVolume = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "commodex_traded_volume_total",
		Help: "Cumulative settled trade volume in units",
	}, []string{"commodity"})

	// WebSocketClients tracks connected WebSocket clients.
	WebSocketClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "commodex_websocket_clients",
		Help: "Number of connected WebSocket clients",
	})

	// HTTPRequestsTotal counts HTTP requests by method, path, and status.
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "commodex_http_requests_total",
		Help: "Total HTTP requests",
	}, []string{"method", "path", "status"})

	// HTTPRequestDuration tracks request duration by method and path.
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "commodex_http_request_duration_seconds",
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

		// Use the raw path for the label; route cardinality is small here.
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
