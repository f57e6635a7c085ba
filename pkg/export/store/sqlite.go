package store

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"mercator-hq/exporter/pkg/config"
	"mercator-hq/exporter/pkg/export"
	"mercator-hq/exporter/pkg/telemetry/metrics"
)

const backendSQLite = "sqlite"

const selectColumns = "id, kind, source_urn, timestamp, client, attributes"

// SQLiteStore implements Store on a SQLite database. The schema is managed
// by embedded migrations applied on open.
type SQLiteStore struct {
	db            *sql.DB
	config        *config.SQLiteConfig
	limits        Limits
	schemaVersion uint

	metrics *metrics.Collector
	now     func() time.Time
	logger  *slog.Logger
}

// NewSQLiteStore opens (creating if needed) the database at cfg.Path and
// migrates it to the current schema.
func NewSQLiteStore(cfg *config.SQLiteConfig, limits Limits, opts ...Option) (*SQLiteStore, error) {
	o := buildOptions("export.store.sqlite", opts)

	dsn := fmt.Sprintf("file:%s?_busy_timeout=%d&_journal_mode=WAL", cfg.Path, cfg.BusyTimeout.Milliseconds())
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, export.NewStorageError(backendSQLite, "open", err)
	}

	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, export.NewStorageError(backendSQLite, "open", err)
	}

	version, err := migrateUp(db)
	if err != nil {
		db.Close()
		return nil, export.NewStorageError(backendSQLite, "migrate", err)
	}

	s := &SQLiteStore{
		db:            db,
		config:        cfg,
		limits:        limits.normalized(),
		schemaVersion: version,
		metrics:       o.metrics,
		now:           o.now,
		logger:        o.logger,
	}

	s.logger.Info("SQLite record store opened",
		"path", cfg.Path,
		"schema_version", version,
		"max_open_conns", cfg.MaxOpenConns,
	)

	return s, nil
}

// SchemaVersion returns the migration version of the open database.
func (s *SQLiteStore) SchemaVersion() uint {
	return s.schemaVersion
}

// Put inserts or replaces records in a single transaction.
func (s *SQLiteStore) Put(ctx context.Context, records ...*export.RawRecord) error {
	if len(records) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return export.NewStorageError(backendSQLite, "put", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO raw_records (id, kind, source_urn, client_urn, timestamp, client, attributes, stored_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			kind = excluded.kind,
			source_urn = excluded.source_urn,
			client_urn = excluded.client_urn,
			timestamp = excluded.timestamp,
			client = excluded.client,
			attributes = excluded.attributes,
			stored_at = excluded.stored_at
	`)
	if err != nil {
		return export.NewStorageError(backendSQLite, "put", err)
	}
	defer stmt.Close()

	storedAt := s.now().UnixMicro()
	for _, rec := range records {
		if err := prepareRecord(rec); err != nil {
			return export.NewStorageError(backendSQLite, "put", err)
		}

		client, err := json.Marshal(rec.Client)
		if err != nil {
			return export.NewStorageError(backendSQLite, "put", fmt.Errorf("record %s: client: %w", rec.ID, err))
		}
		attrs, err := json.Marshal(rec.Attributes)
		if err != nil {
			return export.NewStorageError(backendSQLite, "put", fmt.Errorf("record %s: attributes: %w", rec.ID, err))
		}

		if _, err := stmt.ExecContext(ctx,
			rec.ID, string(rec.Kind), nullString(rec.SourceURN), nullString(rec.Client.URN),
			int64(rec.Timestamp), string(client), string(attrs), storedAt,
		); err != nil {
			return export.NewStorageError(backendSQLite, "put", fmt.Errorf("record %s: %w", rec.ID, err))
		}
	}

	if err := tx.Commit(); err != nil {
		return export.NewStorageError(backendSQLite, "put", err)
	}

	s.logger.Debug("raw records stored", "count", len(records))
	return nil
}

// Get returns the record with the given ID.
func (s *SQLiteStore) Get(ctx context.Context, id string) (*export.RawRecord, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+selectColumns+" FROM raw_records WHERE id = ?", id)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", export.ErrNotFound, id)
	}
	if err != nil {
		return nil, export.NewStorageError(backendSQLite, "get", err)
	}
	return rec, nil
}

// Resolve returns the record a reference points at. The locator matches a
// record ID first, then the newest record with that source URN.
func (s *SQLiteStore) Resolve(ctx context.Context, urn string) (*export.RawRecord, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+selectColumns+` FROM raw_records
		WHERE id = ? OR source_urn = ?
		ORDER BY CASE WHEN id = ? THEN 0 ELSE 1 END, timestamp DESC
		LIMIT 1
	`, urn, urn, urn)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", export.ErrNotFound, urn)
	}
	if err != nil {
		return nil, export.NewStorageError(backendSQLite, "resolve", err)
	}
	return rec, nil
}

// Query retrieves records matching the query filters.
func (s *SQLiteStore) Query(ctx context.Context, q *Query) ([]*export.RawRecord, error) {
	start := time.Now()
	records, err := s.query(ctx, q)
	s.recordQuery(start, err)
	return records, err
}

func (s *SQLiteStore) query(ctx context.Context, q *Query) ([]*export.RawRecord, error) {
	q = s.prepare(q)
	if err := s.limits.Validate(q); err != nil {
		return nil, err
	}
	s.limits.ApplyDefaults(q)

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	sqlQuery, args := buildSelect(q, true)
	rows, err := s.db.QueryContext(ctx, sqlQuery, args...)
	if err != nil {
		return nil, export.NewStorageError(backendSQLite, "query", err)
	}
	defer rows.Close()

	var records []*export.RawRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, export.NewStorageError(backendSQLite, "scan", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, export.NewStorageError(backendSQLite, "query", err)
	}

	return records, nil
}

// QueryStream returns a channel of records for memory-efficient streaming.
// The channels will be closed when the query completes or errors.
func (s *SQLiteStore) QueryStream(ctx context.Context, q *Query) (<-chan export.RawRecord, <-chan error, error) {
	q = s.prepare(q)
	if err := s.limits.Validate(q); err != nil {
		return nil, nil, err
	}
	// Streams are unbounded unless the query sets a limit.
	limit := q.Limit
	s.limits.ApplyDefaults(q)
	q.Limit = limit

	recordsCh := make(chan export.RawRecord, 100)
	errCh := make(chan error, 1)

	sqlQuery, args := buildSelect(q, limit > 0)

	go func() {
		defer close(recordsCh)
		defer close(errCh)

		rows, err := s.db.QueryContext(ctx, sqlQuery, args...)
		if err != nil {
			errCh <- export.NewStorageError(backendSQLite, "query_stream", err)
			return
		}
		defer rows.Close()

		for rows.Next() {
			rec, err := scanRecord(rows)
			if err != nil {
				errCh <- export.NewStorageError(backendSQLite, "scan", err)
				return
			}

			select {
			case <-ctx.Done():
				errCh <- ctx.Err()
				return
			case recordsCh <- *rec:
			}
		}

		if err := rows.Err(); err != nil {
			errCh <- export.NewStorageError(backendSQLite, "query_stream", err)
		}
	}()

	return recordsCh, errCh, nil
}

// Count returns the number of records matching the query filters.
func (s *SQLiteStore) Count(ctx context.Context, q *Query) (int64, error) {
	if q == nil {
		q = &Query{}
	}
	where, args := buildWhere(q)

	var count int64
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM raw_records"+where, args...).Scan(&count); err != nil {
		return 0, export.NewStorageError(backendSQLite, "count", err)
	}

	if where == "" {
		s.metrics.UpdateStoreRecords(count)
	}
	return count, nil
}

// Delete removes records matching the query filters.
func (s *SQLiteStore) Delete(ctx context.Context, q *Query) (int64, error) {
	if q == nil {
		q = &Query{}
	}
	where, args := buildWhere(q)

	result, err := s.db.ExecContext(ctx, "DELETE FROM raw_records"+where, args...)
	if err != nil {
		return 0, export.NewStorageError(backendSQLite, "delete", err)
	}
	count, err := result.RowsAffected()
	if err != nil {
		return 0, export.NewStorageError(backendSQLite, "delete", err)
	}

	s.logger.Debug("raw records deleted", "count", count)
	return count, nil
}

// Ping checks the database connection.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return export.NewStorageError(backendSQLite, "ping", err)
	}
	return nil
}

// Close releases the database connection.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return export.NewStorageError(backendSQLite, "close", err)
	}
	s.logger.Info("SQLite record store closed")
	return nil
}

func (s *SQLiteStore) prepare(q *Query) *Query {
	cp := Query{}
	if q != nil {
		cp = *q
	}
	return &cp
}

func (s *SQLiteStore) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.limits.Timeout > 0 {
		return context.WithTimeout(ctx, s.limits.Timeout)
	}
	return context.WithCancel(ctx)
}

func (s *SQLiteStore) recordQuery(start time.Time, err error) {
	status := metrics.StatusSuccess
	if err != nil {
		status = metrics.StatusError
	}
	s.metrics.RecordStoreQuery(status, time.Since(start))
}

// buildWhere builds the WHERE clause (with leading " WHERE ", or empty) and
// its arguments.
func buildWhere(q *Query) (string, []any) {
	var conditions []string
	var args []any

	if len(q.IDs) > 0 {
		conditions = append(conditions, "id IN ("+placeholders(len(q.IDs))+")")
		for _, id := range q.IDs {
			args = append(args, id)
		}
	}
	if len(q.Kinds) > 0 {
		conditions = append(conditions, "kind IN ("+placeholders(len(q.Kinds))+")")
		for _, k := range q.Kinds {
			args = append(args, string(k))
		}
	}
	if q.ClientURN != "" {
		conditions = append(conditions, "client_urn = ?")
		args = append(args, q.ClientURN)
	}
	if q.SourceURN != "" {
		conditions = append(conditions, "source_urn = ?")
		args = append(args, q.SourceURN)
	}
	if q.Since != nil {
		conditions = append(conditions, "timestamp >= ?")
		args = append(args, q.Since.UnixMicro())
	}
	if q.Until != nil {
		conditions = append(conditions, "timestamp < ?")
		args = append(args, q.Until.UnixMicro())
	}
	if q.StoredBefore != nil {
		conditions = append(conditions, "stored_at < ?")
		args = append(args, q.StoredBefore.UnixMicro())
	}

	if len(conditions) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(conditions, " AND "), args
}

// buildSelect builds a full SELECT for q. Sort field and order come from
// validated values only.
func buildSelect(q *Query, paginate bool) (string, []any) {
	where, args := buildWhere(q)

	orderBy := OrderByTimestamp
	if q.OrderBy == OrderByStoredAt {
		orderBy = OrderByStoredAt
	}
	order := "ASC"
	if q.SortOrder == "desc" {
		order = "DESC"
	}

	var sb strings.Builder
	sb.WriteString("SELECT " + selectColumns + " FROM raw_records")
	sb.WriteString(where)
	fmt.Fprintf(&sb, " ORDER BY %s %s, id %s", orderBy, order, order)
	if paginate {
		fmt.Fprintf(&sb, " LIMIT %d", q.Limit)
		if q.Offset > 0 {
			fmt.Fprintf(&sb, " OFFSET %d", q.Offset)
		}
	}
	return sb.String(), args
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*export.RawRecord, error) {
	var (
		rec       export.RawRecord
		kind      string
		sourceURN sql.NullString
		ts        int64
		client    string
		attrs     string
	)
	if err := row.Scan(&rec.ID, &kind, &sourceURN, &ts, &client, &attrs); err != nil {
		return nil, err
	}

	rec.Kind = export.Kind(kind)
	rec.SourceURN = sourceURN.String
	rec.Timestamp = export.Timestamp(ts)

	if err := json.Unmarshal([]byte(client), &rec.Client); err != nil {
		return nil, fmt.Errorf("record %s: client: %w", rec.ID, err)
	}

	dec := json.NewDecoder(bytes.NewReader([]byte(attrs)))
	dec.UseNumber()
	if err := dec.Decode(&rec.Attributes); err != nil {
		return nil, fmt.Errorf("record %s: attributes: %w", rec.ID, err)
	}

	return &rec, nil
}

// prepareRecord assigns an ID and checks the fields every stored record needs.
func prepareRecord(rec *export.RawRecord) error {
	if rec == nil {
		return errors.New("nil record")
	}
	if rec.Kind == "" {
		return fmt.Errorf("record %q has no kind", rec.ID)
	}
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	return nil
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
