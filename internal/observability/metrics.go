package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// MetricsCollector holds all Prometheus metrics for skillrouter.
// Uses a custom registry so nothing leaks into the global one.
type MetricsCollector struct {
	Registry *prometheus.Registry

	// Routing metrics.
	RouteRequestsTotal  *prometheus.CounterVec
	RouteDuration       *prometheus.HistogramVec
	TopRecommendations  *prometheus.CounterVec
	TopConfidence       prometheus.Histogram
	TopUncertainty      prometheus.Histogram
	RecommendationCount prometheus.Histogram

	// Catalog metrics.
	CatalogSkills       prometheus.Gauge
	CatalogLoadErrors   prometheus.Gauge
	CatalogReloadsTotal prometheus.Counter
	CatalogHealthy      prometheus.Gauge

	// Decision log metrics.
	DecisionsRecordedTotal *prometheus.CounterVec

	// HTTP gateway metrics.
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// System metrics.
	ActiveRequests prometheus.Gauge
}

var scoreBuckets = []float64{0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8, 0.9, 1}

// NewMetricsCollector creates a MetricsCollector with all metrics registered
// on a custom prometheus.Registry.
func NewMetricsCollector() *MetricsCollector {
	reg := prometheus.NewRegistry()

	m := &MetricsCollector{
		Registry: reg,

		RouteRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "skillrouter",
			Subsystem: "route",
			Name:      "requests_total",
			Help:      "Total routing requests by surface and outcome.",
		}, []string{"surface", "outcome"}),

		RouteDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "skillrouter",
			Subsystem: "route",
			Name:      "duration_seconds",
			Help:      "Routing latency in seconds, catalog lookup included.",
			Buckets:   []float64{0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.5},
		}, []string{"surface"}),

		TopRecommendations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "skillrouter",
			Subsystem: "route",
			Name:      "top_recommendations_total",
			Help:      "Skills returned in first position, by gate result.",
		}, []string{"skill", "passes_threshold"}),

		TopConfidence: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "skillrouter",
			Subsystem: "route",
			Name:      "top_confidence",
			Help:      "Confidence of the first recommendation.",
			Buckets:   scoreBuckets,
		}),

		TopUncertainty: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "skillrouter",
			Subsystem: "route",
			Name:      "top_uncertainty",
			Help:      "Uncertainty of the first recommendation.",
			Buckets:   scoreBuckets,
		}),

		RecommendationCount: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "skillrouter",
			Subsystem: "route",
			Name:      "recommendations",
			Help:      "Number of recommendations returned per request.",
			Buckets:   []float64{0, 1, 2, 3, 5, 8, 13, 21},
		}),

		CatalogSkills: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "skillrouter",
			Subsystem: "catalog",
			Name:      "skills",
			Help:      "Skills in the current catalog snapshot.",
		}),

		CatalogLoadErrors: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "skillrouter",
			Subsystem: "catalog",
			Name:      "load_errors",
			Help:      "Skill files skipped in the current catalog snapshot.",
		}),

		CatalogReloadsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "skillrouter",
			Subsystem: "catalog",
			Name:      "reloads_total",
			Help:      "Total catalog reloads.",
		}),

		CatalogHealthy: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "skillrouter",
			Subsystem: "catalog",
			Name:      "healthy",
			Help:      "1 when the last scheduled health probe found skills, else 0.",
		}),

		DecisionsRecordedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "skillrouter",
			Subsystem: "decisions",
			Name:      "recorded_total",
			Help:      "Routing decisions written to the decision log.",
		}, []string{"status"}),

		HTTPRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "skillrouter",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests.",
		}, []string{"method", "path", "status_code"}),

		HTTPRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "skillrouter",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "path"}),

		ActiveRequests: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "skillrouter",
			Name:      "active_requests",
			Help:      "Number of currently active requests.",
		}),
	}

	reg.MustRegister(
		m.RouteRequestsTotal,
		m.RouteDuration,
		m.TopRecommendations,
		m.TopConfidence,
		m.TopUncertainty,
		m.RecommendationCount,
		m.CatalogSkills,
		m.CatalogLoadErrors,
		m.CatalogReloadsTotal,
		m.CatalogHealthy,
		m.DecisionsRecordedTotal,
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.ActiveRequests,
	)

	return m
}

// RecordCatalogReload updates the catalog gauges after a snapshot swap.
func (m *MetricsCollector) RecordCatalogReload(skills, loadErrors int) {
	if m == nil {
		return
	}
	m.CatalogReloadsTotal.Inc()
	m.CatalogSkills.Set(float64(skills))
	m.CatalogLoadErrors.Set(float64(loadErrors))
}

// RecordCatalogHealth sets the healthy gauge from a probe result.
func (m *MetricsCollector) RecordCatalogHealth(ok bool) {
	if m == nil {
		return
	}
	if ok {
		m.CatalogHealthy.Set(1)
	} else {
		m.CatalogHealthy.Set(0)
	}
}

// RecordDecision counts a decision log write.
func (m *MetricsCollector) RecordDecision(err error) {
	if m == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	m.DecisionsRecordedTotal.WithLabelValues(status).Inc()
}
