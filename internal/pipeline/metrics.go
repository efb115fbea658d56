package pipeline

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Run outcomes recorded by Metrics.
const (
	OutcomeOK         = "ok"
	OutcomeEmpty      = "empty"
	OutcomeFetchError = "fetch_error"
	OutcomePanic      = "panic"
)

// Metrics holds the pipeline's Prometheus collectors.
type Metrics struct {
	runs         *prometheus.CounterVec
	duration     prometheus.Histogram
	cacheLookups *prometheus.CounterVec
}

// NewMetrics creates the collectors and registers them with reg. A nil reg
// leaves them unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cohortwatch_pipeline_runs_total",
			Help: "Analytics pipeline runs by outcome.",
		}, []string{"outcome"}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "cohortwatch_pipeline_duration_seconds",
			Help:    "Time spent running the analytics engines.",
			Buckets: prometheus.ExponentialBuckets(0.001, 4, 8),
		}),
		cacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cohortwatch_cache_lookups_total",
			Help: "Result cache lookups by result.",
		}, []string{"result"}),
	}
	if reg != nil {
		reg.MustRegister(m.runs, m.duration, m.cacheLookups)
	}
	return m
}

func (m *Metrics) observeRun(outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.runs.WithLabelValues(outcome).Inc()
	m.duration.Observe(elapsed.Seconds())
}

func (m *Metrics) observeLookup(hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.cacheLookups.WithLabelValues(result).Inc()
}
