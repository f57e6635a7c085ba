package batch

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"mercator-hq/exporter/pkg/config"
	"mercator-hq/exporter/pkg/export"
	"mercator-hq/exporter/pkg/export/mapper"
	"mercator-hq/exporter/pkg/export/schema"
	"mercator-hq/exporter/pkg/export/shapes"
	"mercator-hq/exporter/pkg/export/sink"
	"mercator-hq/exporter/pkg/export/store"
	"mercator-hq/exporter/pkg/telemetry/metrics"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func fileRecord(id string, ts int64) export.RawRecord {
	return export.RawRecord{
		ID:        id,
		Kind:      export.KindStatEntry,
		SourceURN: "aff4:/C.1/flows/F:" + id,
		Timestamp: export.Timestamp(ts),
		Client:    export.ClientSnapshot{URN: "C.1", Hostname: "web-01", OS: "Linux"},
		Attributes: map[string]any{
			"path":        "/etc/" + id,
			"st_size":     1024,
			"hash_sha256": "abc123",
		},
	}
}

func newExporter(t *testing.T, s export.Sink, opts ...Option) *Exporter {
	t.Helper()
	m := mapper.New(shapes.MustRegistry())
	return New(m, s, Config{Workers: 4, Options: export.DefaultOptions()}, opts...)
}

func TestRun_SkipsBadRecordsAndContinues(t *testing.T) {
	out := &sink.Collect{}
	e := newExporter(t, out)

	records := []export.RawRecord{
		fileRecord("a", 3),
		{ID: "widget", Kind: "FooBarWidget"},
		fileRecord("b", 1),
		{ID: "neg", Kind: export.KindStatEntry, Attributes: map[string]any{"st_size": -1}},
		fileRecord("c", 2),
	}

	report, err := e.ExportRecords(context.Background(), records)
	require.NoError(t, err)

	assert.Equal(t, 5, report.Processed)
	assert.Equal(t, 3, report.Exported)
	assert.Equal(t, 2, report.Failed)
	assert.Equal(t, 3, out.Len())
	assert.Equal(t, map[string]int{"ExportedFile": 3}, report.Shapes)
	assert.Equal(t, 1, report.ErrorKinds[export.ErrorKindSchemaMismatch])
	assert.Equal(t, 1, report.ErrorKinds[export.ErrorKindFieldCoercion])
	assert.False(t, report.OK())
	assert.NotEmpty(t, report.BatchID)

	require.Len(t, report.Entries, 2)
	assert.Equal(t, "neg", report.Entries[0].RecordID, "entries are sorted by record id")
	assert.Equal(t, "widget", report.Entries[1].RecordID)
	assert.Equal(t, "FooBarWidget", report.Entries[1].Kind)
	assert.Equal(t, export.ErrorKindSchemaMismatch, report.Entries[1].ErrorKind)

	err = report.Err()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "2 of 5 records failed")
}

func TestRun_AllGood(t *testing.T) {
	e := newExporter(t, &sink.Collect{})

	report, err := e.ExportRecords(context.Background(), []export.RawRecord{fileRecord("a", 1)})
	require.NoError(t, err)
	assert.True(t, report.OK())
	assert.NoError(t, report.Err())
	assert.Empty(t, report.Entries)
	assert.False(t, report.Finished.Before(report.Started))
}

type failingSink struct{}

func (failingSink) Write(_ context.Context, shape string, _ export.Record) error {
	return export.NewSinkError("test", shape, errors.New("disk full"))
}

func (failingSink) Close() error { return nil }

func TestRun_SinkFailureIsReported(t *testing.T) {
	e := newExporter(t, failingSink{})

	report, err := e.ExportRecords(context.Background(), []export.RawRecord{fileRecord("a", 1), fileRecord("b", 2)})
	require.NoError(t, err)
	assert.Equal(t, 2, report.Failed)
	assert.Zero(t, report.Exported)
	assert.Equal(t, 2, report.ErrorKinds[export.ErrorKindSink])
	assert.Contains(t, report.Entries[0].Message, "disk full")
}

type panickingSink struct{}

func (panickingSink) Write(context.Context, string, export.Record) error { panic("boom") }
func (panickingSink) Close() error { return nil }

func TestRun_PanicIsRecovered(t *testing.T) {
	e := newExporter(t, panickingSink{})

	report, err := e.ExportRecords(context.Background(), []export.RawRecord{fileRecord("a", 1)})
	require.NoError(t, err)
	require.Len(t, report.Entries, 1)
	assert.Equal(t, export.ErrorKindInternal, report.Entries[0].ErrorKind)
	assert.Contains(t, report.Entries[0].Message, "panic: boom")
}

type missingResolver struct{}

func (missingResolver) Resolve(context.Context, string) (*export.RawRecord, error) {
	return nil, export.ErrNotFound
}

func TestRun_FollowFailureIsAWarning(t *testing.T) {
	out := &sink.Collect{}
	m := mapper.New(shapes.MustRegistry(), mapper.WithResolver(missingResolver{}))
	opts := export.DefaultOptions()
	opts.FollowURNs = true
	e := New(m, out, Config{Workers: 2, Options: opts})

	ref := export.RawRecord{
		ID:         "ref",
		Kind:       export.KindURN,
		Attributes: map[string]any{mapper.URNAttribute: "aff4:/gone"},
	}
	report, err := e.ExportRecords(context.Background(), []export.RawRecord{ref, fileRecord("a", 1)})
	require.NoError(t, err)

	assert.Equal(t, 0, report.Failed)
	assert.Equal(t, 1, report.Warnings)
	assert.Equal(t, 1, report.Exported)
	assert.True(t, report.OK())
	require.Len(t, report.Entries, 1)
	assert.True(t, report.Entries[0].Warning)
	assert.Equal(t, export.ErrorKindReferenceResolution, report.Entries[0].ErrorKind)
}

func TestRun_ContextCancelled(t *testing.T) {
	e := newExporter(t, &sink.Collect{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	never := make(chan export.RawRecord)
	report, err := e.Run(ctx, never)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, report)
	assert.Zero(t, report.Processed)
}

func TestRun_ManyRecordsConcurrently(t *testing.T) {
	out := &sink.Collect{}
	e := newExporter(t, out)

	records := make([]export.RawRecord, 200)
	for i := range records {
		records[i] = fileRecord(fmt.Sprintf("r%03d", i), int64(i))
	}
	report, err := e.ExportRecords(context.Background(), records)
	require.NoError(t, err)
	assert.Equal(t, 200, report.Exported)

	items := out.Items()
	outputs := make([]mapper.Output, len(items))
	for i, it := range items {
		outputs[i] = mapper.Output{Shape: it.Shape, Record: it.Record}
	}
	SortByOriginalTimestamp(outputs)
	for i := 1; i < len(outputs); i++ {
		prev := outputs[i-1].Record.ExportMetadata().OriginalTimestamp
		cur := outputs[i].Record.ExportMetadata().OriginalTimestamp
		assert.LessOrEqual(t, prev, cur)
	}
}

func TestRun_Progress(t *testing.T) {
	var calls, highest atomic.Int64
	e := newExporter(t, &sink.Collect{}, WithProgress(func(done int64) {
		calls.Add(1)
		for {
			cur := highest.Load()
			if done <= cur || highest.CompareAndSwap(cur, done) {
				return
			}
		}
	}))

	records := []export.RawRecord{fileRecord("a", 1), {ID: "bad", Kind: "Nope"}, fileRecord("b", 2)}
	_, err := e.ExportRecords(context.Background(), records)
	require.NoError(t, err)

	assert.Equal(t, int64(3), calls.Load(), "failed records count as done")
	assert.Equal(t, int64(3), highest.Load())
}

func TestExport_FromStore(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore(store.DefaultLimits)
	for _, id := range []string{"a", "b", "c"} {
		rec := fileRecord(id, 1)
		require.NoError(t, st.Put(ctx, &rec))
	}

	out := &sink.Collect{}
	report, err := newExporter(t, out).Export(ctx, store.Source(st, &store.Query{}))
	require.NoError(t, err)
	assert.Equal(t, 3, report.Exported)
	assert.Equal(t, 3, out.Len())
}

func TestExport_SQLiteSinkAcrossBatches(t *testing.T) {
	path := filepath.Join(t.TempDir(), "export.db")
	out, err := sink.NewSQLiteSink(path, shapes.MustRegistry())
	require.NoError(t, err)
	e := newExporter(t, out)

	for _, ids := range [][]string{{"a", "b", "c"}, {"d", "e", "f"}} {
		st := store.NewMemoryStore(store.DefaultLimits)
		for _, id := range ids {
			rec := fileRecord(id, 1)
			require.NoError(t, st.Put(context.Background(), &rec))
		}
		report, err := e.Export(context.Background(), store.Source(st, &store.Query{}))
		require.NoError(t, err)
		assert.Equal(t, 3, report.Exported)
		assert.Zero(t, report.Failed, "entries: %+v", report.Entries)
	}
	require.NoError(t, out.Close())

	db, err := sql.Open("sqlite", path)
	require.NoError(t, err)
	defer db.Close()

	var n int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM "ExportedFile"`).Scan(&n))
	assert.Equal(t, 6, n)
}

type brokenSource struct{}

func (brokenSource) Records(context.Context) (<-chan export.RawRecord, <-chan error) {
	out := make(chan export.RawRecord, 1)
	errs := make(chan error, 1)
	out <- fileRecord("a", 1)
	close(out)
	errs <- errors.New("connection reset")
	close(errs)
	return out, errs
}

func TestExport_SourceError(t *testing.T) {
	report, err := newExporter(t, &sink.Collect{}).Export(context.Background(), brokenSource{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection reset")
	assert.Equal(t, 1, report.Exported, "records read before the error are exported")
}

func TestRun_Spans(t *testing.T) {
	rec := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec))

	e := newExporter(t, &sink.Collect{}, WithTracer(tp.Tracer("test")))
	_, err := e.ExportRecords(context.Background(), []export.RawRecord{fileRecord("a", 1), fileRecord("b", 2)})
	require.NoError(t, err)

	names := map[string]int{}
	for _, s := range rec.Ended() {
		names[s.Name()]++
	}
	assert.Equal(t, 1, names["export.batch"])
	assert.Equal(t, 2, names["export.record"])
}

func TestRun_Metrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	collector := metrics.NewCollector(&config.MetricsConfig{Enabled: true}, reg)

	e := newExporter(t, &sink.Collect{}, WithMetrics(collector))
	_, err := e.ExportRecords(context.Background(), []export.RawRecord{
		fileRecord("a", 1),
		{ID: "w", Kind: "FooBarWidget"},
	})
	require.NoError(t, err)

	n, err := testutil.GatherAndCount(reg,
		"mercator_export_records_exported_total",
		"mercator_export_record_failures_total",
		"mercator_export_batches_total",
	)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestSortRecords(t *testing.T) {
	mk := func(ts int64, urn string) export.Record {
		return &shapes.ExportedString{Metadata: export.ExportedMetadata{
			OriginalTimestamp: export.Timestamp(ts),
			SourceURN:         urn,
		}}
	}
	recs := []export.Record{mk(3, "a"), mk(1, "b"), mk(1, "a"), mk(2, "z")}
	SortRecords(recs)

	var got []string
	for _, r := range recs {
		md := r.ExportMetadata()
		got = append(got, fmt.Sprintf("%d/%s", md.OriginalTimestamp, md.SourceURN))
	}
	assert.Equal(t, []string{"1/a", "1/b", "2/z", "3/a"}, got)
}

func TestReport_SortEntries(t *testing.T) {
	r := &Report{Entries: []Entry{
		{RecordID: "b"},
		{RecordID: "a", Warning: true},
		{RecordID: "a"},
	}}
	r.SortEntries()
	assert.Equal(t, "a", r.Entries[0].RecordID)
	assert.False(t, r.Entries[0].Warning)
	assert.True(t, r.Entries[1].Warning)
	assert.Equal(t, "b", r.Entries[2].RecordID)
}

func TestJobQuery(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	q := JobQuery(config.JobConfig{
		Name:      "hourly",
		Kinds:     []string{"Process"},
		ClientURN: "C.1",
		Window:    time.Hour,
	}, now)

	assert.Equal(t, []export.Kind{export.KindProcess}, q.Kinds)
	assert.Equal(t, "C.1", q.ClientURN)
	require.NotNil(t, q.Since)
	assert.Equal(t, now.Add(-time.Hour), *q.Since)
	assert.Equal(t, now, *q.Until)
	require.NoError(t, store.Validate(q))

	q = JobQuery(config.JobConfig{Name: "all"}, now)
	assert.Nil(t, q.Since)
}

// leakyNote marshals a property its shape does not declare.
type leakyNote struct {
	Metadata export.ExportedMetadata `json:"metadata"`
	Text     export.Opt[string]      `json:"text,omitzero"`
}

func (n leakyNote) ExportMetadata() export.ExportedMetadata { return n.Metadata }

func (n leakyNote) MarshalJSON() ([]byte, error) {
	type plain leakyNote
	return json.Marshal(struct {
		plain
		Debug string `json:"debug"`
	}{plain(n), "internal"})
}

func TestRun_ValidateRejectsRecordsOutsideShape(t *testing.T) {
	reg := schema.NewRegistry()
	require.NoError(t, reg.Register("Note", leakyNote{}, 1))
	raw := export.RawRecord{
		ID:         "n1",
		Kind:       "Note",
		Timestamp:  1,
		Client:     export.ClientSnapshot{URN: "C.1"},
		Attributes: map[string]any{"text": "hello"},
	}

	tests := []struct {
		name     string
		validate bool
		exported int
		failed   int
	}{
		{"validation off", false, 1, 0},
		{"validation on", true, 0, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := &sink.Collect{}
			e := New(mapper.New(reg), out, Config{Workers: 1, Options: export.DefaultOptions(), Validate: tt.validate})

			report, err := e.ExportRecords(context.Background(), []export.RawRecord{raw})
			require.NoError(t, err)
			assert.Equal(t, tt.exported, report.Exported)
			assert.Equal(t, tt.exported, out.Len())
			assert.Equal(t, tt.failed, report.Failed)
			if tt.failed > 0 {
				require.Len(t, report.Entries, 1)
				assert.Equal(t, export.ErrorKindSchemaMismatch, report.Entries[0].ErrorKind)
				assert.Contains(t, report.Entries[0].Message, "debug")
			}
		})
	}
}

func TestRun_ValidateAcceptsMappedShapes(t *testing.T) {
	out := &sink.Collect{}
	m := mapper.New(shapes.MustRegistry())
	e := New(m, out, Config{Workers: 2, Options: export.DefaultOptions(), Validate: true})

	report, err := e.ExportRecords(context.Background(), []export.RawRecord{fileRecord("a", 1), fileRecord("b", 2)})
	require.NoError(t, err)
	assert.Equal(t, 2, report.Exported)
	assert.True(t, report.OK())
}

func TestTally_FailureAfterPartialWrite(t *testing.T) {
	tl := newTally("b1", "", time.Unix(0, 0))
	raw := fileRecord("ref", 1)

	tl.processed()
	tl.exported("ExportedFile")
	tl.failed(&raw, export.NewSinkError("jsonl", "ExportedFile", errors.New("disk full")), 1)

	report := tl.finish(time.Unix(1, 0))
	assert.Equal(t, 1, report.Exported)
	assert.Equal(t, 1, report.Failed)
	require.Len(t, report.Entries, 1)
	assert.Equal(t, 1, report.Entries[0].Written)
	assert.Equal(t, export.ErrorKindSink, report.Entries[0].ErrorKind)
}
