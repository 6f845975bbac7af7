// Package metrics provides Prometheus instrumentation for engined.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for engined.
type Metrics struct {
	JobSeconds prometheus.Histogram
	JobsTotal  *prometheus.CounterVec
}

// New creates and registers all Prometheus metrics.
func New(engine string) *Metrics {
	labels := prometheus.Labels{"engine": engine}

	return &Metrics{
		JobSeconds: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:        "hyperprophet_engined_job_seconds",
			Help:        "Time spent computing one forecast job",
			ConstLabels: labels,
			Buckets:     prometheus.DefBuckets,
		}),

		JobsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name:        "hyperprophet_engined_jobs_total",
			Help:        "Total forecast jobs by outcome",
			ConstLabels: labels,
		}, []string{"outcome"}),
	}
}

// RecordJob records one completed job.
func (m *Metrics) RecordJob(outcome string, seconds float64) {
	m.JobsTotal.WithLabelValues(outcome).Inc()
	m.JobSeconds.Observe(seconds)
}
