package metrics

import (
	"time"

	"mercator-hq/exporter/pkg/config"

	"github.com/prometheus/client_golang/prometheus"
)

// StoreMetrics tracks the raw record store and the processes that feed and
// trim it.
//
// Metrics:
//   - mercator_export_store_records: Current number of raw records
//   - mercator_export_store_queries_total: Queries by status
//   - mercator_export_store_query_duration_seconds: Query latency
//   - mercator_export_retention_pruned_total: Records removed by retention
//   - mercator_export_spool_files_total: Spool files by outcome
type StoreMetrics struct {
	records       prometheus.Gauge
	queriesTotal  *prometheus.CounterVec
	queryDuration prometheus.Histogram
	prunedTotal   prometheus.Counter
	spoolFiles    *prometheus.CounterVec
}

// NewStoreMetrics creates and registers store metrics with the provided registry.
func NewStoreMetrics(cfg *config.MetricsConfig, registry *prometheus.Registry) *StoreMetrics {
	sm := &StoreMetrics{
		records: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "store_records",
				Help:      "Current number of raw records in the store",
			},
		),

		queriesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "store_queries_total",
				Help:      "Total number of raw record store queries",
			},
			[]string{"status"},
		),

		queryDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "store_query_duration_seconds",
				Help:      "Duration of raw record store queries in seconds",
				Buckets:   prometheus.DefBuckets,
			},
		),

		prunedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "retention_pruned_total",
				Help:      "Total number of raw records removed by retention",
			},
		),

		spoolFiles: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "spool_files_total",
				Help:      "Total number of spool files processed",
			},
			[]string{"status"},
		),
	}

	registry.MustRegister(
		sm.records,
		sm.queriesTotal,
		sm.queryDuration,
		sm.prunedTotal,
		sm.spoolFiles,
	)

	return sm
}

// UpdateRecords sets the current store size.
func (sm *StoreMetrics) UpdateRecords(n int64) {
	sm.records.Set(float64(n))
}

// RecordQuery records a query.
func (sm *StoreMetrics) RecordQuery(status string, duration time.Duration) {
	sm.queriesTotal.WithLabelValues(status).Inc()
	sm.queryDuration.Observe(duration.Seconds())
}

// RecordPruned counts pruned records.
func (sm *StoreMetrics) RecordPruned(n int64) {
	sm.prunedTotal.Add(float64(n))
}

// RecordSpoolFile counts a spool file.
func (sm *StoreMetrics) RecordSpoolFile(status string) {
	sm.spoolFiles.WithLabelValues(status).Inc()
}
