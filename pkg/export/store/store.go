package store

import (
	"context"
	"fmt"
	"time"

	"mercator-hq/exporter/pkg/config"
	"mercator-hq/exporter/pkg/export"
)

// Store is a raw record store. It feeds batch exports and resolves
// references when follow_urns is set.
type Store interface {
	export.Resolver

	// Put inserts or replaces records. Records without an ID are assigned
	// one.
	Put(ctx context.Context, records ...*export.RawRecord) error

	// Get returns the record with the given ID, or an error wrapping
	// export.ErrNotFound.
	Get(ctx context.Context, id string) (*export.RawRecord, error)

	// Query returns records matching q, applying default limits.
	Query(ctx context.Context, q *Query) ([]*export.RawRecord, error)

	// QueryStream streams records matching q. A zero limit streams every
	// match. Both channels are closed when the stream ends.
	QueryStream(ctx context.Context, q *Query) (<-chan export.RawRecord, <-chan error, error)

	// Count returns the number of records matching q's filters.
	Count(ctx context.Context, q *Query) (int64, error)

	// Delete removes records matching q's filters and returns how many were
	// removed. Limit and offset are ignored.
	Delete(ctx context.Context, q *Query) (int64, error)

	// Ping checks that the backend is reachable.
	Ping(ctx context.Context) error

	Close() error
}

// Query filters raw records. The zero value matches everything.
type Query struct {
	// IDs restricts the result to these record IDs.
	IDs []string

	// Kinds restricts the result to these raw record kinds.
	Kinds []export.Kind

	// ClientURN restricts the result to one client.
	ClientURN string

	// SourceURN restricts the result to one source.
	SourceURN string

	// Since and Until bound the record timestamp: Since <= ts < Until.
	Since *time.Time
	Until *time.Time

	// StoredBefore matches records written to the store before this time.
	StoredBefore *time.Time

	Limit  int
	Offset int

	// OrderBy is "timestamp" (default) or "stored_at".
	OrderBy string

	// SortOrder is "asc" (default, oldest first) or "desc".
	SortOrder string
}

// Open creates the store configured by cfg.
func Open(cfg *config.StoreConfig, opts ...Option) (Store, error) {
	limits := Limits{
		Default: cfg.Query.DefaultLimit,
		Max:     cfg.Query.MaxLimit,
		Timeout: cfg.Query.Timeout,
	}

	switch cfg.Backend {
	case "sqlite", "":
		return NewSQLiteStore(&cfg.SQLite, limits, opts...)
	case "memory":
		return NewMemoryStore(limits, opts...), nil
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Backend)
	}
}

// Source adapts a store query to export.Source.
func Source(s Store, q *Query) export.Source {
	return &querySource{store: s, query: q}
}

type querySource struct {
	store Store
	query *Query
}

func (qs *querySource) Records(ctx context.Context) (<-chan export.RawRecord, <-chan error) {
	records, errs, err := qs.store.QueryStream(ctx, qs.query)
	if err == nil {
		return records, errs
	}

	out := make(chan export.RawRecord)
	errCh := make(chan error, 1)
	errCh <- err
	close(out)
	close(errCh)
	return out, errCh
}
