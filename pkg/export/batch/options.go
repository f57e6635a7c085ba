package batch

import (
	"log/slog"
	"time"

	"mercator-hq/exporter/pkg/telemetry/metrics"

	"go.opentelemetry.io/otel/trace"
)

// Option configures an Exporter.
type Option func(*Exporter)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Exporter) {
		e.logger = logger
	}
}

// WithMetrics records batch and record counters on c.
func WithMetrics(c *metrics.Collector) Option {
	return func(e *Exporter) {
		e.metrics = c
	}
}

// WithTracer sets the tracer for batch and record spans.
func WithTracer(t trace.Tracer) Option {
	return func(e *Exporter) {
		e.tracer = t
	}
}

// WithClock sets the clock used for report timestamps.
func WithClock(now func() time.Time) Option {
	return func(e *Exporter) {
		e.now = now
	}
}

// WithProgress calls fn after each record with the number of records done
// so far in the batch. fn is called from worker goroutines.
func WithProgress(fn func(done int64)) Option {
	return func(e *Exporter) {
		e.progress = fn
	}
}
