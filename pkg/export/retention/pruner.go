package retention

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"slices"
	"time"

	"mercator-hq/exporter/pkg/config"
	"mercator-hq/exporter/pkg/export"
	"mercator-hq/exporter/pkg/export/sink"
	"mercator-hq/exporter/pkg/export/store"
	"mercator-hq/exporter/pkg/telemetry/metrics"
)

// idPage is the page size used when selecting records to prune by count.
const idPage = 1000

// DefaultConfig returns the default retention configuration.
func DefaultConfig() *config.RetentionConfig {
	return &config.RetentionConfig{
		Days:          config.DefaultRetentionDays,
		PruneSchedule: config.DefaultRetentionSchedule,
		ArchivePath:   config.DefaultRetentionArchivePath,
	}
}

// Pruner enforces retention on the raw record store.
type Pruner struct {
	store   store.Store
	config  *config.RetentionConfig
	logger  *slog.Logger
	metrics *metrics.Collector
	now     func() time.Time
}

// Option configures a Pruner.
type Option func(*Pruner)

// WithMetrics records pruned counts and the store size on c.
func WithMetrics(c *metrics.Collector) Option {
	return func(p *Pruner) {
		p.metrics = c
	}
}

// WithClock sets the clock the retention cutoff is computed from.
func WithClock(now func() time.Time) Option {
	return func(p *Pruner) {
		p.now = now
	}
}

// NewPruner creates a pruner for st. A nil cfg uses DefaultConfig.
func NewPruner(st store.Store, cfg *config.RetentionConfig, opts ...Option) *Pruner {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	p := &Pruner{
		store:  st,
		config: cfg,
		logger: slog.Default().With("component", "export.retention"),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Prune deletes raw records older than the retention period, then the
// oldest records beyond MaxRecords. Either phase is skipped when its limit
// is zero. It returns the number of records deleted.
func (p *Pruner) Prune(ctx context.Context) (int64, error) {
	var total int64

	if p.config.Days > 0 {
		deleted, err := p.pruneByAge(ctx)
		total += deleted
		if err != nil {
			return total, fmt.Errorf("prune by age failed: %w", err)
		}
		p.logger.Info("pruned records by age",
			"deleted_count", deleted,
			"retention_days", p.config.Days,
		)
	}

	if p.config.MaxRecords > 0 {
		deleted, err := p.pruneByCount(ctx)
		total += deleted
		if err != nil {
			return total, fmt.Errorf("prune by count failed: %w", err)
		}
		if deleted > 0 {
			p.logger.Info("pruned records by count",
				"deleted_count", deleted,
				"max_records", p.config.MaxRecords,
			)
		}
	}

	p.metrics.RecordPruned(total)
	if n, err := p.store.Count(ctx, &store.Query{}); err == nil {
		p.metrics.UpdateStoreRecords(n)
	}

	if total == 0 {
		p.logger.Debug("no records pruned",
			"retention_days", p.config.Days,
			"max_records", p.config.MaxRecords,
		)
	}
	return total, nil
}

// Cutoff returns the timestamp before which records are pruned by age.
func (p *Pruner) Cutoff() time.Time {
	return p.now().AddDate(0, 0, -p.config.Days)
}

func (p *Pruner) pruneByAge(ctx context.Context) (int64, error) {
	cutoff := p.Cutoff()
	q := &store.Query{Until: &cutoff}

	p.logger.Debug("pruning by age", "cutoff_time", cutoff)

	if p.config.ArchiveBeforeDelete {
		if _, err := p.archive(ctx, "age", q); err != nil {
			return 0, err
		}
	}
	return p.store.Delete(ctx, q)
}

// pruneByCount deletes the oldest records beyond MaxRecords. Victims are
// chosen by ID so records sharing a timestamp are not over-deleted.
func (p *Pruner) pruneByCount(ctx context.Context) (int64, error) {
	count, err := p.store.Count(ctx, &store.Query{})
	if err != nil {
		return 0, fmt.Errorf("failed to count records: %w", err)
	}
	if count <= p.config.MaxRecords {
		p.logger.Debug("record count within limit", "current", count, "max", p.config.MaxRecords)
		return 0, nil
	}

	excess := count - p.config.MaxRecords
	p.logger.Info("record count exceeds limit, pruning oldest",
		"current_count", count,
		"max_records", p.config.MaxRecords,
		"to_delete", excess,
	)

	ids, err := p.oldestIDs(ctx, excess)
	if err != nil {
		return 0, fmt.Errorf("failed to query oldest records: %w", err)
	}
	if len(ids) == 0 {
		return 0, nil
	}

	if p.config.ArchiveBeforeDelete {
		if _, err := p.archive(ctx, "count", &store.Query{IDs: ids}); err != nil {
			return 0, err
		}
	}

	var deleted int64
	for chunk := range slices.Chunk(ids, idPage) {
		n, err := p.store.Delete(ctx, &store.Query{IDs: chunk})
		deleted += n
		if err != nil {
			return deleted, err
		}
	}
	return deleted, nil
}

// oldestIDs pages through the store oldest first and returns up to n IDs.
func (p *Pruner) oldestIDs(ctx context.Context, n int64) ([]string, error) {
	ids := make([]string, 0, min(n, int64(idPage)))
	for offset := 0; int64(len(ids)) < n; offset += idPage {
		page, err := p.store.Query(ctx, &store.Query{
			OrderBy:   store.OrderByTimestamp,
			SortOrder: "asc",
			Limit:     int(min(n-int64(len(ids)), int64(idPage))),
			Offset:    offset,
		})
		if err != nil {
			return nil, err
		}
		for _, rec := range page {
			ids = append(ids, rec.ID)
		}
		if len(page) < idPage {
			break
		}
	}
	return ids, nil
}

// archive writes the records matching q to a compressed JSONL file in the
// archive directory and returns how many were written.
func (p *Pruner) archive(ctx context.Context, reason string, q *store.Query) (int, error) {
	n, err := p.store.Count(ctx, q)
	if err != nil {
		return 0, fmt.Errorf("failed to count records for archiving: %w", err)
	}
	if n == 0 {
		p.logger.Debug("no records to archive")
		return 0, nil
	}

	name := fmt.Sprintf("raw-records-%s-%s.jsonl.lz4", reason, p.now().UTC().Format("20060102-150405"))
	path := filepath.Join(p.config.ArchivePath, name)

	w, err := sink.OpenFile(path)
	if err != nil {
		return 0, fmt.Errorf("failed to create archive file: %w", err)
	}

	records, errs, err := p.store.QueryStream(ctx, q)
	if err != nil {
		w.Close()
		return 0, fmt.Errorf("failed to query records for archiving: %w", err)
	}

	written := 0
	var writeErr error
	for rec := range records {
		if writeErr != nil {
			continue
		}
		if writeErr = store.WriteJSONL(w, &rec); writeErr == nil {
			written++
		}
	}
	if err := errors.Join(writeErr, <-errs, w.Close()); err != nil {
		return written, export.NewStorageError("archive", "write", err)
	}

	p.logger.Info("raw records archived",
		"archive_file", path,
		"record_count", written,
	)
	return written, nil
}
