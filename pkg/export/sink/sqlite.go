package sink

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"sync"

	"mercator-hq/exporter/pkg/export"
	"mercator-hq/exporter/pkg/export/schema"

	_ "modernc.org/sqlite"
)

// sqliteCommitEvery bounds the rows held in one transaction.
const sqliteCommitEvery = 500

type sqliteTable struct {
	insert *sql.Stmt
}

// SQLiteSink writes each shape into its own table of a SQLite database. The
// table is named after the shape and has one column per flattened field.
// Columns missing from an existing table are added, so a database can
// collect exports across shape versions.
type SQLiteSink struct {
	mu       sync.Mutex
	db       *sql.DB
	registry *schema.Registry
	tables   map[string]*sqliteTable
	tx       *sql.Tx
	pending  int
	closed   bool
}

// NewSQLiteSink opens (or creates) the database at path.
func NewSQLiteSink(path string, registry *schema.Registry) (*SQLiteSink, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, export.NewSinkError("sqlite", "", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, export.NewSinkError("sqlite", "", err)
	}
	// One writer; the transaction below is bound to this connection.
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{"PRAGMA journal_mode=WAL", "PRAGMA synchronous=NORMAL"} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, export.NewSinkError("sqlite", "", err)
		}
	}

	return &SQLiteSink{
		db:       db,
		registry: registry,
		tables:   make(map[string]*sqliteTable),
	}, nil
}

// Write inserts one row into the shape's table.
func (s *SQLiteSink) Write(ctx context.Context, shape string, record export.Record) error {
	sh, ok := s.registry.ShapeByName(shape)
	if !ok {
		return export.NewSinkError("sqlite", shape, fmt.Errorf("unknown shape"))
	}
	values, err := sh.Flatten(record)
	if err != nil {
		return export.NewSinkError("sqlite", shape, err)
	}
	for i, v := range values {
		values[i] = sqliteValue(v)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return export.NewSinkError("sqlite", shape, errClosed)
	}

	table, err := s.table(ctx, sh)
	if err != nil {
		return export.NewSinkError("sqlite", shape, err)
	}

	if s.tx == nil {
		// The transaction spans many writes, possibly from several batches,
		// so it must not be rolled back when one caller's ctx ends.
		if s.tx, err = s.db.BeginTx(context.WithoutCancel(ctx), nil); err != nil {
			return export.NewSinkError("sqlite", shape, err)
		}
	}
	if _, err := s.tx.StmtContext(ctx, table.insert).ExecContext(ctx, values...); err != nil {
		if errors.Is(err, sql.ErrTxDone) {
			s.discard()
		}
		return export.NewSinkError("sqlite", shape, err)
	}

	s.pending++
	if s.pending >= sqliteCommitEvery {
		if err := s.commit(); err != nil {
			return export.NewSinkError("sqlite", shape, err)
		}
	}
	return nil
}

func (s *SQLiteSink) commit() error {
	if s.tx == nil {
		return nil
	}
	err := s.tx.Commit()
	s.tx = nil
	s.pending = 0
	return err
}

// discard drops a transaction that database/sql already ended, so the next
// write starts a fresh one.
func (s *SQLiteSink) discard() {
	if s.tx != nil {
		_ = s.tx.Rollback()
	}
	s.tx = nil
	s.pending = 0
}

// table creates or migrates the shape's table and prepares its insert.
// DDL runs outside the row transaction.
func (s *SQLiteSink) table(ctx context.Context, sh *schema.Shape) (*sqliteTable, error) {
	if t, ok := s.tables[sh.Name]; ok {
		return t, nil
	}
	if err := s.commit(); err != nil {
		return nil, err
	}

	columns := sh.Columns()
	types := columnTypes(sh)

	defs := make([]string, len(columns))
	for i, col := range columns {
		defs[i] = strings.TrimSpace(quoteIdent(col) + " " + types[i])
	}
	create := fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)", quoteIdent(sh.Name), strings.Join(defs, ", "))
	if _, err := s.db.ExecContext(ctx, create); err != nil {
		return nil, fmt.Errorf("create table: %w", err)
	}

	existing, err := s.existingColumns(ctx, sh.Name)
	if err != nil {
		return nil, err
	}
	for i, col := range columns {
		if existing[col] {
			continue
		}
		alter := strings.TrimSpace(fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s", quoteIdent(sh.Name), quoteIdent(col), types[i]))
		if _, err := s.db.ExecContext(ctx, alter); err != nil {
			return nil, fmt.Errorf("add column %s: %w", col, err)
		}
	}

	quoted := make([]string, len(columns))
	for i, col := range columns {
		quoted[i] = quoteIdent(col)
	}
	insert := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		quoteIdent(sh.Name),
		strings.Join(quoted, ", "),
		strings.TrimSuffix(strings.Repeat("?, ", len(columns)), ", "),
	)
	stmt, err := s.db.PrepareContext(ctx, insert)
	if err != nil {
		return nil, fmt.Errorf("prepare insert: %w", err)
	}

	t := &sqliteTable{insert: stmt}
	s.tables[sh.Name] = t
	return t, nil
}

func (s *SQLiteSink) existingColumns(ctx context.Context, table string) (map[string]bool, error) {
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf("PRAGMA table_info(%s)", quoteIdent(table)))
	if err != nil {
		return nil, fmt.Errorf("table info: %w", err)
	}
	defer rows.Close()

	cols := make(map[string]bool)
	for rows.Next() {
		var (
			cid     int
			name    string
			typ     string
			notNull int
			dflt    sql.NullString
			pk      int
		)
		if err := rows.Scan(&cid, &name, &typ, &notNull, &dflt, &pk); err != nil {
			return nil, fmt.Errorf("table info: %w", err)
		}
		cols[name] = true
	}
	return cols, rows.Err()
}

// Ping checks the database connection. An open row transaction holds the
// only connection and counts as healthy.
func (s *SQLiteSink) Ping(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errClosed
	}
	if s.tx != nil {
		return nil
	}
	return s.db.PingContext(ctx)
}

// Close commits pending rows and closes the database.
func (s *SQLiteSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true

	errs := []error{s.commit()}
	for _, t := range s.tables {
		errs = append(errs, t.insert.Close())
	}
	errs = append(errs, s.db.Close())
	if err := errors.Join(errs...); err != nil {
		return export.NewSinkError("sqlite", "", err)
	}
	return nil
}

// columnTypes maps each column of sh to a SQLite type affinity. Columns
// without a known field, such as metadata, are TEXT.
func columnTypes(sh *schema.Shape) []string {
	columns := sh.Columns()
	types := make([]string, len(columns))
	for i, col := range columns {
		types[i] = "TEXT"
		if f, ok := lookupColumn(sh, col); ok {
			types[i] = affinity(f.Type)
		}
	}
	return types
}

func lookupColumn(sh *schema.Shape, col string) (schema.Field, bool) {
	if f, ok := sh.Field(col); ok {
		return f, true
	}
	for _, f := range sh.Fields {
		if f.Nested == nil {
			continue
		}
		if rest, ok := strings.CutPrefix(col, f.Name+"."); ok {
			return lookupColumn(f.Nested, rest)
		}
	}
	return schema.Field{}, false
}

func affinity(t schema.FieldType) string {
	switch t {
	case schema.TypeInt, schema.TypeBool, schema.TypeTimestamp:
		return "INTEGER"
	case schema.TypeUint:
		// No affinity: values above MaxInt64 arrive as text and must not be
		// coerced to REAL.
		return ""
	case schema.TypeFloat:
		return "REAL"
	case schema.TypeBytes:
		return "BLOB"
	}
	return "TEXT"
}

// sqliteValue converts a flattened value into a driver value. Unsigned
// values that do not fit an int64 are stored as decimal text.
func sqliteValue(v any) any {
	if v == nil {
		return nil
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		u := rv.Uint()
		if u > math.MaxInt64 {
			return fmt.Sprint(u)
		}
		return int64(u)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int()
	case reflect.String:
		return rv.String()
	case reflect.Bool:
		return rv.Bool()
	}
	return v
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
