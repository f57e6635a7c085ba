package tracing

import (
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Attribute keys used on export spans.
const (
	AttrBatchID   = "mercator.export.batch_id"
	AttrJob       = "mercator.export.job"
	AttrWorkers   = "mercator.export.workers"
	AttrRecordID  = "mercator.export.record_id"
	AttrKind      = "mercator.export.kind"
	AttrShape     = "mercator.export.shape"
	AttrSink      = "mercator.export.sink"
	AttrProcessed = "mercator.export.processed"
	AttrExported  = "mercator.export.exported"
	AttrFailed    = "mercator.export.failed"
	AttrErrorKind = "mercator.export.error_kind"

	AttrErrorMessage = "error.message"
)

// SetBatchAttributes tags a batch span.
func SetBatchAttributes(span trace.Span, batchID string, workers int) {
	span.SetAttributes(
		attribute.String(AttrBatchID, batchID),
		attribute.Int(AttrWorkers, workers),
	)
}

// SetBatchResult records the batch counters on its span.
func SetBatchResult(span trace.Span, processed, exported, failed int) {
	span.SetAttributes(
		attribute.Int(AttrProcessed, processed),
		attribute.Int(AttrExported, exported),
		attribute.Int(AttrFailed, failed),
	)
}

// SetRecordAttributes tags a per-record span.
func SetRecordAttributes(span trace.Span, recordID, kind string) {
	span.SetAttributes(
		attribute.String(AttrRecordID, recordID),
		attribute.String(AttrKind, kind),
	)
}

// SetErrorKind records the report classification of a failure.
func SetErrorKind(span trace.Span, kind string) {
	span.SetAttributes(attribute.String(AttrErrorKind, kind))
}
