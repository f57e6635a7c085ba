package sink

import (
	"context"
	"log/slog"
	"time"

	"mercator-hq/exporter/pkg/export"
	"mercator-hq/exporter/pkg/telemetry/metrics"
	"mercator-hq/exporter/pkg/telemetry/tracing"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

type options struct {
	metrics *metrics.Collector
	tracer  trace.Tracer
	logger  *slog.Logger
}

// Option configures sinks built by Open.
type Option func(*options)

// WithMetrics records write counts and latency on c.
func WithMetrics(c *metrics.Collector) Option {
	return func(o *options) {
		o.metrics = c
	}
}

// WithTracer sets the tracer used for write spans.
func WithTracer(t trace.Tracer) Option {
	return func(o *options) {
		o.tracer = t
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

func buildOptions(opts []Option) options {
	o := options{
		tracer: otel.Tracer("mercator-export/sink"),
		logger: slog.Default().With("component", "export.sink"),
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Named is a sink with a configured name, instrumented with metrics and
// tracing.
type Named struct {
	name string
	typ  string
	next export.Sink
	opts options
}

// Instrument wraps s under name.
func Instrument(name, typ string, s export.Sink, opts ...Option) *Named {
	return &Named{name: name, typ: typ, next: s, opts: buildOptions(opts)}
}

// Name returns the configured sink name.
func (n *Named) Name() string { return n.name }

// Type returns the sink type.
func (n *Named) Type() string { return n.typ }

// Unwrap returns the wrapped sink.
func (n *Named) Unwrap() export.Sink { return n.next }

// Write delivers the record to the wrapped sink.
func (n *Named) Write(ctx context.Context, shape string, record export.Record) error {
	ctx, span := n.opts.tracer.Start(ctx, "export.sink.write",
		trace.WithAttributes(
			attribute.String("sink.name", n.name),
			attribute.String("sink.type", n.typ),
			attribute.String("export.shape", shape),
		),
	)
	defer span.End()

	start := time.Now()
	err := n.next.Write(ctx, shape, record)

	status := metrics.StatusSuccess
	if err != nil {
		status = metrics.StatusError
		tracing.SetError(span, err)
	}
	n.opts.metrics.RecordSinkWrite(n.name, status, time.Since(start))
	return err
}

// Ping checks the wrapped sink when it supports health checks.
func (n *Named) Ping(ctx context.Context) error {
	if p, ok := n.next.(interface{ Ping(context.Context) error }); ok {
		return p.Ping(ctx)
	}
	return nil
}

// Close closes the wrapped sink.
func (n *Named) Close() error {
	err := n.next.Close()
	if err != nil {
		n.opts.logger.Error("sink close failed", "sink", n.name, "error", err)
	} else {
		n.opts.logger.Debug("sink closed", "sink", n.name)
	}
	return err
}
