package api

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the Prometheus collectors for the API server.
type Metrics struct {
	registry *prometheus.Registry

	HTTPRequestsTotal *prometheus.CounterVec
	RunsSubmitted     prometheus.Counter
	RunsCompleted     prometheus.Counter
	RunsFailed        prometheus.Counter
	RunDuration       prometheus.Histogram
	ConnectedClients  prometheus.GaugeFunc
}

// NewMetrics creates and registers the server collectors. Each server
// gets its own registry so tests can build servers independently.
func NewMetrics(hub *Hub) *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		HTTPRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "portfolio",
			Subsystem: "api",
			Name:      "http_requests_total",
			Help:      "Total HTTP requests by route and status",
		}, []string{"route", "status"}),
		RunsSubmitted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "portfolio",
			Subsystem: "backtest",
			Name:      "runs_submitted_total",
			Help:      "Total backtest runs accepted",
		}),
		RunsCompleted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "portfolio",
			Subsystem: "backtest",
			Name:      "runs_completed_total",
			Help:      "Total backtest runs completed successfully",
		}),
		RunsFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "portfolio",
			Subsystem: "backtest",
			Name:      "runs_failed_total",
			Help:      "Total backtest runs that ended in an error",
		}),
		RunDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "portfolio",
			Subsystem: "backtest",
			Name:      "run_duration_seconds",
			Help:      "Wall clock duration of backtest runs",
			Buckets:   prometheus.DefBuckets,
		}),
		ConnectedClients: prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: "portfolio",
			Subsystem: "api",
			Name:      "websocket_clients",
			Help:      "Currently connected WebSocket clients",
		}, func() float64 {
			return float64(hub.ClientCount())
		}),
	}

	registry.MustRegister(
		m.HTTPRequestsTotal,
		m.RunsSubmitted,
		m.RunsCompleted,
		m.RunsFailed,
		m.RunDuration,
		m.ConnectedClients,
	)
	return m
}

// Handler exposes the registry in Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
