// Package metrics provides Prometheus instrumentation for forecastd.
//
// Metrics exposed:
//   - hyperprophet_source_collect_seconds: Histogram of source collection duration
//   - hyperprophet_batch_fit_seconds: Histogram of batch fit duration
//   - hyperprophet_batch_predict_seconds: Histogram of batch predict duration
//   - hyperprophet_batch_keys: Gauge of keys in the last batch
//   - hyperprophet_batch_failed_keys: Gauge of failed keys in the last batch
//   - hyperprophet_snapshot_age_seconds: Gauge of the stored snapshot's age
//   - hyperprophet_errors_total: Counter of errors by component and reason
//
// All metrics carry the dataset label. They are exposed at /metrics for
// Prometheus scraping.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for forecastd.
type Metrics struct {
	SourceCollectSeconds prometheus.Histogram
	BatchFitSeconds      prometheus.Histogram
	BatchPredictSeconds  prometheus.Histogram
	BatchKeys            prometheus.Gauge
	BatchFailedKeys      prometheus.Gauge
	SnapshotAgeSeconds   prometheus.Gauge
	ErrorsTotal          *prometheus.CounterVec
}

// New creates and registers all Prometheus metrics for one dataset.
func New(dataset string) *Metrics {
	labels := prometheus.Labels{"dataset": dataset}

	return &Metrics{
		SourceCollectSeconds: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:        "hyperprophet_source_collect_seconds",
			Help:        "Time spent collecting observations from the data source",
			ConstLabels: labels,
			Buckets:     prometheus.DefBuckets,
		}),

		BatchFitSeconds: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:        "hyperprophet_batch_fit_seconds",
			Help:        "Time spent fitting all keys of a batch",
			ConstLabels: labels,
			Buckets:     prometheus.DefBuckets,
		}),

		BatchPredictSeconds: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:        "hyperprophet_batch_predict_seconds",
			Help:        "Time spent predicting all keys of a batch",
			ConstLabels: labels,
			Buckets:     prometheus.DefBuckets,
		}),

		BatchKeys: promauto.NewGauge(prometheus.GaugeOpts{
			Name:        "hyperprophet_batch_keys",
			Help:        "Number of keys in the last forecast batch",
			ConstLabels: labels,
		}),

		BatchFailedKeys: promauto.NewGauge(prometheus.GaugeOpts{
			Name:        "hyperprophet_batch_failed_keys",
			Help:        "Number of failed keys in the last forecast batch",
			ConstLabels: labels,
		}),

		SnapshotAgeSeconds: promauto.NewGauge(prometheus.GaugeOpts{
			Name:        "hyperprophet_snapshot_age_seconds",
			Help:        "Age of the current forecast snapshot in seconds",
			ConstLabels: labels,
		}),

		ErrorsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name:        "hyperprophet_errors_total",
			Help:        "Total number of errors by component and reason",
			ConstLabels: labels,
		}, []string{"component", "reason"}),
	}
}

// RecordCollect records the time spent collecting from the source.
func (m *Metrics) RecordCollect(seconds float64) {
	m.SourceCollectSeconds.Observe(seconds)
}

// RecordFit records the time spent fitting a batch.
func (m *Metrics) RecordFit(seconds float64) {
	m.BatchFitSeconds.Observe(seconds)
}

// RecordPredict records the time spent predicting a batch.
func (m *Metrics) RecordPredict(seconds float64) {
	m.BatchPredictSeconds.Observe(seconds)
}

// SetBatchKeys records the key counts of the last batch.
func (m *Metrics) SetBatchKeys(total, failed int) {
	m.BatchKeys.Set(float64(total))
	m.BatchFailedKeys.Set(float64(failed))
}

// SetSnapshotAge sets the current snapshot age.
func (m *Metrics) SetSnapshotAge(seconds float64) {
	m.SnapshotAgeSeconds.Set(seconds)
}

// RecordError increments the error counter.
func (m *Metrics) RecordError(component, reason string) {
	m.ErrorsTotal.WithLabelValues(component, reason).Inc()
}
