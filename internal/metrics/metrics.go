package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "browserchat",
			Subsystem: "api",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	CompletionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "browserchat",
			Subsystem: "adapter",
			Name:      "completions_total",
			Help:      "Completions by group and outcome",
		},
		[]string{"group", "outcome"},
	)

	CompletionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "browserchat",
			Subsystem: "adapter",
			Name:      "completion_duration_seconds",
			Help:      "Time spent driving the remote UI for one completion",
			Buckets:   []float64{1, 2, 5, 10, 20, 30, 45, 60, 90},
		},
		[]string{"group"},
	)

	CatalogRefreshesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "browserchat",
			Subsystem: "catalog",
			Name:      "refreshes_total",
			Help:      "Catalog refreshes by result",
		},
		[]string{"result"},
	)

	CatalogModels = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "browserchat",
			Subsystem: "catalog",
			Name:      "models",
			Help:      "Models in the published catalog snapshot",
		},
	)

	OpenSessions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "browserchat",
			Subsystem: "session",
			Name:      "open",
			Help:      "Browser pages currently open",
		},
	)
)

// ObserveCompletion records the outcome and latency of one completion
func ObserveCompletion(group, outcome string, started time.Time) {
	CompletionsTotal.WithLabelValues(group, outcome).Inc()
	CompletionDuration.WithLabelValues(group).Observe(time.Since(started).Seconds())
}

// Handler serves the default registry
func Handler() http.Handler {
	return promhttp.Handler()
}
