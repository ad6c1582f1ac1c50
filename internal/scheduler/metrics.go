package scheduler

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds Prometheus metrics for the scheduler, labelled by job.
type Metrics struct {
	JobsFired     *prometheus.CounterVec
	JobsSucceeded *prometheus.CounterVec
	JobsFailed    *prometheus.CounterVec
	JobsMissed    *prometheus.CounterVec
	JobDuration   *prometheus.HistogramVec
	TickDuration  prometheus.Histogram
}

// NewMetrics creates and registers scheduler metrics.
// Returns nil if reg is nil.
func NewMetrics(reg *prometheus.Registry) *Metrics {
	if reg == nil {
		return nil
	}

	job := []string{"job"}
	m := &Metrics{
		JobsFired: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "skillrouter",
			Subsystem: "scheduler",
			Name:      "jobs_fired_total",
			Help:      "Total scheduled job runs started.",
		}, job),
		JobsSucceeded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "skillrouter",
			Subsystem: "scheduler",
			Name:      "jobs_succeeded_total",
			Help:      "Total scheduled job runs that returned no error.",
		}, job),
		JobsFailed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "skillrouter",
			Subsystem: "scheduler",
			Name:      "jobs_failed_total",
			Help:      "Total scheduled job runs that returned an error.",
		}, job),
		JobsMissed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "skillrouter",
			Subsystem: "scheduler",
			Name:      "jobs_missed_total",
			Help:      "Firings skipped because the previous run was still in progress.",
		}, job),
		JobDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "skillrouter",
			Subsystem: "scheduler",
			Name:      "job_duration_seconds",
			Help:      "Scheduled job run duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		}, job),
		TickDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "skillrouter",
			Subsystem: "scheduler",
			Name:      "tick_duration_seconds",
			Help:      "Time spent dispatching due jobs.",
			Buckets:   []float64{0.0001, 0.001, 0.01, 0.1},
		}),
	}

	reg.MustRegister(
		m.JobsFired,
		m.JobsSucceeded,
		m.JobsFailed,
		m.JobsMissed,
		m.JobDuration,
		m.TickDuration,
	)
	return m
}
