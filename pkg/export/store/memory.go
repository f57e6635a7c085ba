package store

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sort"
	"sync"
	"time"

	"mercator-hq/exporter/pkg/export"
	"mercator-hq/exporter/pkg/telemetry/metrics"
)

type memoryEntry struct {
	record   export.RawRecord
	storedAt int64
}

// MemoryStore implements Store in memory. It backs tests, the CLI's
// file-input mode and the "memory" backend.
type MemoryStore struct {
	records map[string]memoryEntry
	mu      sync.RWMutex
	limits  Limits

	metrics *metrics.Collector
	now     func() time.Time
	logger  *slog.Logger
}

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore(limits Limits, opts ...Option) *MemoryStore {
	o := buildOptions("export.store.memory", opts)
	return &MemoryStore{
		records: make(map[string]memoryEntry),
		limits:  limits.normalized(),
		metrics: o.metrics,
		now:     o.now,
		logger:  o.logger,
	}
}

// Put stores copies of records.
func (s *MemoryStore) Put(ctx context.Context, records ...*export.RawRecord) error {
	for _, rec := range records {
		if err := prepareRecord(rec); err != nil {
			return export.NewStorageError("memory", "put", err)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	storedAt := s.now().UnixMicro()
	for _, rec := range records {
		s.records[rec.ID] = memoryEntry{record: *rec, storedAt: storedAt}
	}
	return nil
}

// Get returns the record with the given ID.
func (s *MemoryStore) Get(ctx context.Context, id string) (*export.RawRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.records[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", export.ErrNotFound, id)
	}
	rec := e.record
	return &rec, nil
}

// Resolve matches a record ID first, then the newest record with that
// source URN.
func (s *MemoryStore) Resolve(ctx context.Context, urn string) (*export.RawRecord, error) {
	if rec, err := s.Get(ctx, urn); err == nil {
		return rec, nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var best *export.RawRecord
	for _, e := range s.records {
		if e.record.SourceURN != urn {
			continue
		}
		if best == nil || e.record.Timestamp > best.Timestamp {
			rec := e.record
			best = &rec
		}
	}
	if best == nil {
		return nil, fmt.Errorf("%w: %s", export.ErrNotFound, urn)
	}
	return best, nil
}

// Query retrieves records matching the query filters.
func (s *MemoryStore) Query(ctx context.Context, q *Query) ([]*export.RawRecord, error) {
	start := time.Now()
	records, err := s.query(q, true)
	status := metrics.StatusSuccess
	if err != nil {
		status = metrics.StatusError
	}
	s.metrics.RecordStoreQuery(status, time.Since(start))
	return records, err
}

func (s *MemoryStore) query(q *Query, paginate bool) ([]*export.RawRecord, error) {
	cp := Query{}
	if q != nil {
		cp = *q
	}
	if err := s.limits.Validate(&cp); err != nil {
		return nil, err
	}
	limit := cp.Limit
	s.limits.ApplyDefaults(&cp)
	if !paginate {
		cp.Limit = limit
	}

	entries := s.match(&cp)
	sortEntries(entries, &cp)

	start := min(cp.Offset, len(entries))
	entries = entries[start:]
	if cp.Limit > 0 && len(entries) > cp.Limit {
		entries = entries[:cp.Limit]
	}

	results := make([]*export.RawRecord, len(entries))
	for i, e := range entries {
		rec := e.record
		results[i] = &rec
	}
	return results, nil
}

// QueryStream streams a snapshot of the matching records.
func (s *MemoryStore) QueryStream(ctx context.Context, q *Query) (<-chan export.RawRecord, <-chan error, error) {
	records, err := s.query(q, false)
	if err != nil {
		return nil, nil, err
	}

	recordsCh := make(chan export.RawRecord, 100)
	errCh := make(chan error, 1)

	go func() {
		defer close(recordsCh)
		defer close(errCh)

		for _, rec := range records {
			select {
			case <-ctx.Done():
				errCh <- ctx.Err()
				return
			case recordsCh <- *rec:
			}
		}
	}()

	return recordsCh, errCh, nil
}

// Count returns the number of records matching the query filters.
func (s *MemoryStore) Count(ctx context.Context, q *Query) (int64, error) {
	if q == nil {
		q = &Query{}
	}
	count := int64(len(s.match(q)))
	if isUnfiltered(q) {
		s.metrics.UpdateStoreRecords(count)
	}
	return count, nil
}

// Delete removes records matching the query filters.
func (s *MemoryStore) Delete(ctx context.Context, q *Query) (int64, error) {
	if q == nil {
		q = &Query{}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var count int64
	for id, e := range s.records {
		if matches(e, q) {
			delete(s.records, id)
			count++
		}
	}
	return count, nil
}

// Ping always succeeds.
func (s *MemoryStore) Ping(ctx context.Context) error {
	return nil
}

// Close releases nothing; the records stay readable.
func (s *MemoryStore) Close() error {
	return nil
}

func (s *MemoryStore) match(q *Query) []memoryEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []memoryEntry
	for _, e := range s.records {
		if matches(e, q) {
			out = append(out, e)
		}
	}
	return out
}

func matches(e memoryEntry, q *Query) bool {
	rec := &e.record
	if len(q.IDs) > 0 && !slices.Contains(q.IDs, rec.ID) {
		return false
	}
	if len(q.Kinds) > 0 && !slices.Contains(q.Kinds, rec.Kind) {
		return false
	}
	if q.ClientURN != "" && rec.Client.URN != q.ClientURN {
		return false
	}
	if q.SourceURN != "" && rec.SourceURN != q.SourceURN {
		return false
	}
	if q.Since != nil && int64(rec.Timestamp) < q.Since.UnixMicro() {
		return false
	}
	if q.Until != nil && int64(rec.Timestamp) >= q.Until.UnixMicro() {
		return false
	}
	if q.StoredBefore != nil && e.storedAt >= q.StoredBefore.UnixMicro() {
		return false
	}
	return true
}

func isUnfiltered(q *Query) bool {
	return len(q.IDs) == 0 && len(q.Kinds) == 0 && q.ClientURN == "" && q.SourceURN == "" &&
		q.Since == nil && q.Until == nil && q.StoredBefore == nil
}

func sortEntries(entries []memoryEntry, q *Query) {
	key := func(e memoryEntry) int64 {
		if q.OrderBy == OrderByStoredAt {
			return e.storedAt
		}
		return int64(e.record.Timestamp)
	}
	desc := q.SortOrder == "desc"

	sort.Slice(entries, func(i, j int) bool {
		ki, kj := key(entries[i]), key(entries[j])
		if ki == kj {
			if desc {
				return entries[i].record.ID > entries[j].record.ID
			}
			return entries[i].record.ID < entries[j].record.ID
		}
		if desc {
			return ki > kj
		}
		return ki < kj
	})
}
