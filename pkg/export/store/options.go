package store

import (
	"log/slog"
	"time"

	"mercator-hq/exporter/pkg/telemetry/metrics"
)

type options struct {
	metrics *metrics.Collector
	now     func() time.Time
	logger  *slog.Logger
}

// Option configures a store.
type Option func(*options)

// WithMetrics records query latency and store size on c.
func WithMetrics(c *metrics.Collector) Option {
	return func(o *options) {
		o.metrics = c
	}
}

// WithClock sets the clock used for stored_at.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		o.now = now
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

func buildOptions(component string, opts []Option) options {
	o := options{
		now:    time.Now,
		logger: slog.Default().With("component", component),
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}
