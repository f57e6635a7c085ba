package batch

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"mercator-hq/exporter/pkg/export"
	"mercator-hq/exporter/pkg/export/mapper"
	"mercator-hq/exporter/pkg/telemetry/logging"
	"mercator-hq/exporter/pkg/telemetry/metrics"
	"mercator-hq/exporter/pkg/telemetry/tracing"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

// AdhocJob labels batch metrics for batches that do not belong to a
// scheduled job.
const AdhocJob = "adhoc"

// Config contains configuration for a batch exporter.
type Config struct {
	// Workers is the number of records mapped concurrently.
	// Default: runtime.NumCPU()
	Workers int

	// Options are passed to the mapper for every record.
	Options export.Options

	// Job names the scheduled job the batch belongs to, if any.
	Job string

	// Validate checks every mapped record against its shape's JSON Schema.
	// A record with any invalid output is skipped before anything is written.
	Validate bool
}

// Exporter maps raw records in parallel and writes the results to a sink.
type Exporter struct {
	mapper  *mapper.Mapper
	sink    export.Sink
	config  Config
	logger  *slog.Logger
	metrics *metrics.Collector
	tracer  trace.Tracer
	now     func() time.Time

	progress func(done int64)
}

// New creates an exporter. The exporter does not own the sink; the caller
// closes it after the last batch.
func New(m *mapper.Mapper, sink export.Sink, cfg Config, opts ...Option) *Exporter {
	if cfg.Workers <= 0 {
		cfg.Workers = runtime.NumCPU()
	}
	e := &Exporter{
		mapper: m,
		sink:   sink,
		config: cfg,
		logger: slog.Default().With("component", "export.batch"),
		tracer: otel.Tracer("mercator-export/batch"),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Export runs a batch over everything src yields. A source error ends the
// batch early and is returned with the partial report.
func (e *Exporter) Export(ctx context.Context, src export.Source) (*Report, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	records, errs := src.Records(ctx)
	report, err := e.Run(ctx, records)
	if err != nil {
		return report, err
	}
	if srcErr := <-errs; srcErr != nil {
		return report, fmt.Errorf("batch %s: reading source: %w", report.BatchID, srcErr)
	}
	return report, nil
}

// ExportRecords runs a batch over an in-memory slice.
func (e *Exporter) ExportRecords(ctx context.Context, records []export.RawRecord) (*Report, error) {
	ch := make(chan export.RawRecord)
	go func() {
		defer close(ch)
		for _, r := range records {
			select {
			case ch <- r:
			case <-ctx.Done():
				return
			}
		}
	}()
	return e.Run(ctx, ch)
}

// Run maps every record received from records until the channel closes.
// Records are processed by a pool of workers with no ordering between
// them. Per-record failures never stop the batch: they are counted and
// listed in the report. Run returns an error only when ctx ends first.
func (e *Exporter) Run(ctx context.Context, records <-chan export.RawRecord) (*Report, error) {
	batchID := uuid.New().String()
	ctx = logging.WithBatchID(ctx, batchID)
	if e.config.Job != "" {
		ctx = logging.WithJob(ctx, e.config.Job)
	}

	ctx, span := e.tracer.Start(ctx, "export.batch")
	defer span.End()
	tracing.SetBatchAttributes(span, batchID, e.config.Workers)

	started := e.now()
	t := newTally(batchID, e.config.Job, started)

	e.logger.InfoContext(ctx, "batch started", "workers", e.config.Workers)

	var (
		wg   sync.WaitGroup
		done atomic.Int64
	)
	for i := 0; i < e.config.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			e.worker(ctx, records, t, &done)
		}()
	}
	wg.Wait()

	report := t.finish(e.now())
	tracing.SetBatchResult(span, report.Processed, report.Exported, report.Failed)

	err := ctx.Err()
	status := metrics.StatusSuccess
	if err != nil {
		status = metrics.StatusError
		tracing.SetError(span, err)
		err = fmt.Errorf("batch %s interrupted after %d records: %w", batchID, report.Processed, err)
	}
	job := e.config.Job
	if job == "" {
		job = AdhocJob
	}
	e.metrics.RecordBatch(job, status, report.Duration())

	e.logger.InfoContext(ctx, "batch finished",
		"processed", report.Processed,
		"exported", report.Exported,
		"failed", report.Failed,
		"warnings", report.Warnings,
		"duration", report.Duration(),
	)
	return report, err
}

func (e *Exporter) worker(ctx context.Context, records <-chan export.RawRecord, t *tally, done *atomic.Int64) {
	for {
		select {
		case <-ctx.Done():
			return
		case raw, ok := <-records:
			if !ok {
				return
			}
			e.process(ctx, &raw, t)
			if n := done.Add(1); e.progress != nil {
				e.progress(n)
			}
		}
	}
}

// process exports one record. A panic while mapping or writing is
// recovered and reported as an internal error for that record.
func (e *Exporter) process(ctx context.Context, raw *export.RawRecord, t *tally) {
	ctx = logging.WithRecord(ctx, raw.ID, string(raw.Kind))
	ctx, span := e.tracer.Start(ctx, "export.record")
	defer span.End()
	tracing.SetRecordAttributes(span, raw.ID, string(raw.Kind))

	t.processed()
	e.metrics.RecordProcessed(string(raw.Kind))

	written := 0
	fail := func(err error) {
		kind := export.ErrorKind(err)
		t.failed(raw, err, written)
		e.metrics.RecordFailure(kind)
		tracing.SetErrorKind(span, kind)
		tracing.SetError(span, err)
		e.logger.WarnContext(ctx, "record skipped", "error_kind", kind, "error", err)
	}

	defer func() {
		if r := recover(); r != nil {
			e.logger.ErrorContext(ctx, "panic while exporting record", "panic", r, "stack", string(debug.Stack()))
			fail(fmt.Errorf("panic: %v", r))
		}
	}()

	res, err := e.mapper.Map(ctx, raw, e.config.Options)
	if err != nil {
		fail(err)
		return
	}

	for _, w := range res.Warnings {
		kind := export.ErrorKind(w)
		t.warned(raw, w)
		e.metrics.RecordWarning(kind)
		e.logger.WarnContext(ctx, "record exported with warning", "error_kind", kind, "error", w)
	}

	if e.config.Validate {
		if err := e.validate(res); err != nil {
			fail(err)
			return
		}
	}

	for _, out := range res.Records {
		if err := e.sink.Write(ctx, out.Shape, out.Record); err != nil {
			if written > 0 {
				err = fmt.Errorf("%d of %d outputs written: %w", written, len(res.Records), err)
			}
			fail(err)
			return
		}
		written++
		t.exported(out.Shape)
		e.metrics.RecordExported(out.Shape)
	}
}

func (e *Exporter) validate(res *mapper.Result) error {
	for _, out := range res.Records {
		shape, ok := e.mapper.Registry().ShapeByName(out.Shape)
		if !ok {
			return export.NewSinkError("validate", out.Shape, fmt.Errorf("unknown shape"))
		}
		if err := shape.Validate(out.Record); err != nil {
			return err
		}
	}
	return nil
}
