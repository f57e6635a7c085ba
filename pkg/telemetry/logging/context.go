package logging

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel/trace"
)

// Context keys for common log fields.
type contextKey string

const (
	// BatchIDKey is the context key for export batch IDs.
	BatchIDKey contextKey = "batch_id"

	// RecordIDKey is the context key for raw record IDs.
	RecordIDKey contextKey = "record_id"

	// KindKey is the context key for raw record kinds.
	KindKey contextKey = "kind"

	// JobKey is the context key for scheduled job names.
	JobKey contextKey = "job"
)

// contextKeys is the order fields are emitted in.
var contextKeys = []contextKey{BatchIDKey, JobKey, RecordIDKey, KindKey}

// WithBatchID adds a batch ID to the context.
func WithBatchID(ctx context.Context, batchID string) context.Context {
	return context.WithValue(ctx, BatchIDKey, batchID)
}

// GetBatchID retrieves the batch ID from the context.
func GetBatchID(ctx context.Context) string {
	return getString(ctx, BatchIDKey)
}

// WithRecord adds a record ID and kind to the context.
func WithRecord(ctx context.Context, recordID, kind string) context.Context {
	ctx = context.WithValue(ctx, RecordIDKey, recordID)
	return context.WithValue(ctx, KindKey, kind)
}

// GetRecordID retrieves the record ID from the context.
func GetRecordID(ctx context.Context) string {
	return getString(ctx, RecordIDKey)
}

// WithJob adds a job name to the context.
func WithJob(ctx context.Context, job string) context.Context {
	return context.WithValue(ctx, JobKey, job)
}

// GetJob retrieves the job name from the context.
func GetJob(ctx context.Context) string {
	return getString(ctx, JobKey)
}

func getString(ctx context.Context, key contextKey) string {
	if ctx == nil {
		return ""
	}
	s, _ := ctx.Value(key).(string)
	return s
}

// contextAttrs extracts the export fields and the active span identifiers.
func contextAttrs(ctx context.Context) []slog.Attr {
	if ctx == nil {
		return nil
	}

	var attrs []slog.Attr
	for _, key := range contextKeys {
		if v := getString(ctx, key); v != "" {
			attrs = append(attrs, slog.String(string(key), v))
		}
	}

	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		attrs = append(attrs,
			slog.String("trace_id", sc.TraceID().String()),
			slog.String("span_id", sc.SpanID().String()),
		)
	}
	return attrs
}
