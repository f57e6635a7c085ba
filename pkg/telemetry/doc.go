// Package telemetry groups the observability packages of Mercator Export.
//
// # Components
//
//   - logging: slog logger with context fields and secret redaction
//   - metrics: Prometheus collector for batches, sinks and the record store
//   - tracing: OpenTelemetry tracer provider and span helpers
//   - health: liveness and readiness endpoints for `mercator-export run`
//
// # Usage
//
//	cfg := config.MustGetConfig()
//
//	logger, err := logging.New(logging.FromConfig(cfg.Telemetry.Logging, os.Stderr))
//	logger.SetDefault()
//
//	collector := metrics.NewCollector(&cfg.Telemetry.Metrics, nil)
//
//	tracer, err := tracing.New(&cfg.Telemetry.Tracing, version)
//	defer tracer.Shutdown(context.Background())
//
//	checker := health.New(cfg.Telemetry.Health.CheckTimeout)
//
// The metrics and health handlers share one HTTP listener on
// telemetry.metrics.listen_address.
package telemetry
