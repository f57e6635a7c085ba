// Package tracing provides OpenTelemetry distributed tracing for Mercator Export.
//
// # Overview
//
// New builds an OTLP/gRPC tracer provider from the telemetry.tracing section
// and installs it globally. Export packages obtain tracers through
// otel.Tracer, so they stay traced without holding a *Tracer.
//
// # Spans
//
// A batch produces this hierarchy:
//
//	export.batch                 batch_id, workers, processed/exported/failed
//	├── export.record            record_id, kind, error_kind on failure
//	│   └── export.follow        one per resolved reference
//	└── export.sink.write        sink
//
// # Sampling Strategies
//
// Three sampling strategies are supported:
//   - always: Sample all traces
//   - never: Sample no traces
//   - ratio: Sample a fraction of traces by trace ID
//
// Each is wrapped in a parent-based sampler, so a job span that was sampled
// keeps all its batch spans.
//
// # Propagation
//
// InjectToMap stamps W3C traceparent headers onto messages published by the
// AMQP sink. Consumers continue the trace by extracting those headers with
// Propagator and a propagation.MapCarrier.
//
// # Testing
//
// Install accepts any provider; tests pass one backed by a tracetest
// SpanRecorder and assert on the recorded spans.
package tracing
