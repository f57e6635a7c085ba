package metrics

import (
	"time"

	"mercator-hq/exporter/pkg/config"

	"github.com/prometheus/client_golang/prometheus"
)

// SinkMetrics tracks delivery to output sinks.
//
// Metrics:
//   - mercator_export_sink_writes_total: Write attempts by sink and status
//   - mercator_export_sink_write_duration_seconds: Write latency by sink
type SinkMetrics struct {
	writesTotal   *prometheus.CounterVec
	writeDuration *prometheus.HistogramVec
}

// NewSinkMetrics creates and registers sink metrics with the provided registry.
func NewSinkMetrics(cfg *config.MetricsConfig, registry *prometheus.Registry) *SinkMetrics {
	sm := &SinkMetrics{
		writesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "sink_writes_total",
				Help:      "Total number of sink write attempts",
			},
			[]string{"sink", "status"},
		),

		writeDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "sink_write_duration_seconds",
				Help:      "Latency of sink writes in seconds",
				Buckets:   prometheus.ExponentialBuckets(0.0001, 4, 8), // 100µs to ~1.6s
			},
			[]string{"sink"},
		),
	}

	registry.MustRegister(sm.writesTotal, sm.writeDuration)

	return sm
}

// RecordWrite records one write attempt.
func (sm *SinkMetrics) RecordWrite(sink, status string, duration time.Duration) {
	sm.writesTotal.WithLabelValues(sink, status).Inc()
	sm.writeDuration.WithLabelValues(sink).Observe(duration.Seconds())
}
