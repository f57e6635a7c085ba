package spool

import (
	"context"
	"log/slog"

	"mercator-hq/exporter/pkg/export"
	"mercator-hq/exporter/pkg/export/batch"
	"mercator-hq/exporter/pkg/export/store"
)

// ExportHandler exports each spool file with exp. When st is not nil the
// raw records are also written to the store as they stream past, so later
// jobs and reference lookups can see them.
//
// Records that fail to export are listed in the batch report and do not
// fail the file. A malformed file or a store error does.
func ExportHandler(exp *batch.Exporter, st store.Store) Handler {
	logger := slog.Default().With("component", "export.spool")
	return func(ctx context.Context, path string) error {
		var src export.Source = store.FileSource{Path: path}
		if st != nil {
			src = &teeSource{src: src, store: st}
		}

		report, err := exp.Export(ctx, src)
		if err != nil {
			return err
		}
		logger.InfoContext(ctx, "spool batch finished",
			"path", path,
			"batch_id", report.BatchID,
			"exported", report.Exported,
			"failed", report.Failed,
		)
		return nil
	}
}

// teeSource stores every record before passing it on.
type teeSource struct {
	src   export.Source
	store store.Store
}

func (t *teeSource) Records(ctx context.Context) (<-chan export.RawRecord, <-chan error) {
	in, inErr := t.src.Records(ctx)
	out := make(chan export.RawRecord)
	errCh := make(chan error, 1)

	go func() {
		defer close(errCh)
		defer close(out)

		for rec := range in {
			if err := t.store.Put(ctx, &rec); err != nil {
				errCh <- err
				// Drain so the upstream reader can finish.
				for range in {
				}
				return
			}
			select {
			case out <- rec:
			case <-ctx.Done():
				for range in {
				}
				errCh <- ctx.Err()
				return
			}
		}
		if err := <-inErr; err != nil {
			errCh <- err
		}
	}()

	return out, errCh
}
