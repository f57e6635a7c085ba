package metrics

import (
	"time"

	"mercator-hq/exporter/pkg/config"

	"github.com/prometheus/client_golang/prometheus"
)

// BatchMetrics tracks batch export throughput.
//
// Metrics:
//   - mercator_export_batches_total: Batches by job and status
//   - mercator_export_batch_duration_seconds: Batch duration histogram
//   - mercator_export_records_processed_total: Raw records read, by kind
//   - mercator_export_records_exported_total: Exported records, by shape
//   - mercator_export_record_failures_total: Failed raw records, by error kind
//   - mercator_export_record_warnings_total: Non-fatal problems, by error kind
type BatchMetrics struct {
	batchesTotal   *prometheus.CounterVec
	batchDuration  *prometheus.HistogramVec
	processedTotal *prometheus.CounterVec
	exportedTotal  *prometheus.CounterVec
	failuresTotal  *prometheus.CounterVec
	warningsTotal  *prometheus.CounterVec
}

// NewBatchMetrics creates and registers batch metrics with the provided registry.
func NewBatchMetrics(cfg *config.MetricsConfig, registry *prometheus.Registry) *BatchMetrics {
	bm := &BatchMetrics{
		batchesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "batches_total",
				Help:      "Total number of export batches run",
			},
			[]string{"job", "status"},
		),

		batchDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "batch_duration_seconds",
				Help:      "Duration of export batches in seconds",
				Buckets:   cfg.BatchDurationBuckets,
			},
			[]string{"job"},
		),

		processedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "records_processed_total",
				Help:      "Total number of raw records read for export",
			},
			[]string{"kind"},
		),

		exportedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "records_exported_total",
				Help:      "Total number of exported records written",
			},
			[]string{"shape"},
		),

		failuresTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "record_failures_total",
				Help:      "Total number of raw records that failed to export",
			},
			[]string{"error_kind"},
		),

		warningsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "record_warnings_total",
				Help:      "Total number of non-fatal export problems",
			},
			[]string{"error_kind"},
		),
	}

	// Register all metrics
	registry.MustRegister(
		bm.batchesTotal,
		bm.batchDuration,
		bm.processedTotal,
		bm.exportedTotal,
		bm.failuresTotal,
		bm.warningsTotal,
	)

	return bm
}

// RecordBatch records a finished batch.
func (bm *BatchMetrics) RecordBatch(job, status string, duration time.Duration) {
	bm.batchesTotal.WithLabelValues(job, status).Inc()
	bm.batchDuration.WithLabelValues(job).Observe(duration.Seconds())
}

// RecordProcessed counts a raw record read from the source.
func (bm *BatchMetrics) RecordProcessed(kind string) {
	bm.processedTotal.WithLabelValues(kind).Inc()
}

// RecordExported counts an exported record.
func (bm *BatchMetrics) RecordExported(shape string) {
	bm.exportedTotal.WithLabelValues(shape).Inc()
}

// RecordFailure counts a failed raw record.
func (bm *BatchMetrics) RecordFailure(errorKind string) {
	bm.failuresTotal.WithLabelValues(errorKind).Inc()
}

// RecordWarning counts a non-fatal problem.
func (bm *BatchMetrics) RecordWarning(errorKind string) {
	bm.warningsTotal.WithLabelValues(errorKind).Inc()
}
