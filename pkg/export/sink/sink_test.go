package sink

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/csv"
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"mercator-hq/exporter/pkg/config"
	"mercator-hq/exporter/pkg/export"
	"mercator-hq/exporter/pkg/export/shapes"

	"github.com/pierrec/lz4/v4"
	amqp "github.com/rabbitmq/amqp091-go"
)

func stringRecord(urn, data string) shapes.ExportedString {
	return shapes.ExportedString{
		Metadata: export.ExportedMetadata{ClientURN: urn, Timestamp: 42},
		Data:     export.Some(data),
	}
}

type nopCloser struct{ *bytes.Buffer }

func (nopCloser) Close() error { return nil }

func TestJSONSink_Array(t *testing.T) {
	buf := &bytes.Buffer{}
	s := NewJSONSink(nopCloser{buf}, false)
	ctx := context.Background()

	for _, d := range []string{"a", "b"} {
		if err := s.Write(ctx, "ExportedString", stringRecord("C.1", d)); err != nil {
			t.Fatalf("Write() error = %v", err)
		}
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	var got []struct {
		Shape  string          `json:"shape"`
		Record json.RawMessage `json:"record"`
	}
	if err := json.Unmarshal(buf.Bytes(), &got); err != nil {
		t.Fatalf("output is not a JSON array: %v\n%s", err, buf.String())
	}
	if len(got) != 2 {
		t.Fatalf("got %d elements, want 2", len(got))
	}
	if got[0].Shape != "ExportedString" {
		t.Errorf("shape = %q", got[0].Shape)
	}
	if !strings.Contains(string(got[1].Record), `"data":"b"`) {
		t.Errorf("record = %s", got[1].Record)
	}
}

func TestJSONSink_EmptyAndPretty(t *testing.T) {
	buf := &bytes.Buffer{}
	s := NewJSONSink(nopCloser{buf}, true)
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}
	if got := strings.TrimSpace(buf.String()); got != "[]" {
		t.Errorf("empty sink wrote %q, want []", got)
	}

	buf.Reset()
	s = NewJSONSink(nopCloser{buf}, true)
	s.Write(context.Background(), "ExportedString", stringRecord("C.1", "x"))
	s.Close()

	var v []any
	if err := json.Unmarshal(buf.Bytes(), &v); err != nil {
		t.Fatalf("pretty output invalid: %v\n%s", err, buf.String())
	}
	if !strings.Contains(buf.String(), "\n  ") {
		t.Error("pretty output is not indented")
	}
}

func TestJSONSink_WriteAfterClose(t *testing.T) {
	s := NewJSONSink(nopCloser{&bytes.Buffer{}}, false)
	s.Close()

	err := s.Write(context.Background(), "ExportedString", stringRecord("C.1", "x"))
	var se *export.SinkError
	if !errors.As(err, &se) {
		t.Fatalf("error = %v, want SinkError", err)
	}
	if export.ErrorKind(err) != export.ErrorKindSink {
		t.Errorf("ErrorKind = %q", export.ErrorKind(err))
	}
}

func TestJSONLSink_CompressedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "export.jsonl.lz4")

	w, err := OpenFile(path)
	if err != nil {
		t.Fatal(err)
	}
	s := NewJSONLSink(w)
	for _, d := range []string{"one", "two", "three"} {
		if err := s.Write(context.Background(), "ExportedString", stringRecord("C.1", d)); err != nil {
			t.Fatal(err)
		}
	}
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	data, err := io.ReadAll(lz4.NewReader(f))
	if err != nil {
		t.Fatalf("decompress: %v", err)
	}

	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 3 {
		t.Fatalf("got %d lines, want 3", len(lines))
	}
	var env struct {
		Shape string `json:"shape"`
	}
	if err := json.Unmarshal([]byte(lines[2]), &env); err != nil || env.Shape != "ExportedString" {
		t.Errorf("line 3 = %s (err %v)", lines[2], err)
	}
}

func TestCSVSink_PerShapeFiles(t *testing.T) {
	dir := t.TempDir()
	s := NewCSVSink(dir, shapes.MustRegistry())
	ctx := context.Background()

	if err := s.Write(ctx, "ExportedString", stringRecord("C.1", "hello")); err != nil {
		t.Fatal(err)
	}
	blob := shapes.ExportedBytes{
		Metadata: export.ExportedMetadata{ClientURN: "C.2"},
		Data:     export.Some([]byte{0x01, 0x02}),
	}
	if err := s.Write(ctx, "ExportedBytes", blob); err != nil {
		t.Fatal(err)
	}
	if err := s.Write(ctx, "NoSuchShape", blob); err == nil {
		t.Error("expected error for unknown shape")
	}
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}

	rows := readCSV(t, filepath.Join(dir, "ExportedString.csv"))
	if len(rows) != 2 {
		t.Fatalf("got %d rows, want header + 1", len(rows))
	}
	row := zip(rows[0], rows[1])
	if row["metadata.client_urn"] != "C.1" || row["data"] != "hello" {
		t.Errorf("row = %v", row)
	}
	if row["metadata.timestamp"] != "42" {
		t.Errorf("timestamp = %q", row["metadata.timestamp"])
	}
	if row["metadata.hostname"] != "" {
		t.Errorf("absent hostname = %q, want empty", row["metadata.hostname"])
	}

	rows = readCSV(t, filepath.Join(dir, "ExportedBytes.csv"))
	row = zip(rows[0], rows[1])
	if row["data"] != "AQI=" {
		t.Errorf("bytes cell = %q, want base64", row["data"])
	}
	if row["length"] != "" {
		t.Errorf("absent length = %q", row["length"])
	}
}

func TestFormatValue(t *testing.T) {
	type level string
	tests := []struct {
		in   any
		want string
	}{
		{nil, ""},
		{"s", "s"},
		{true, "true"},
		{int64(-3), "-3"},
		{uint64(18446744073709551615), "18446744073709551615"},
		{1.5, "1.5"},
		{level("high"), "high"},
		{[]byte("hi"), "aGk="},
	}
	for _, tt := range tests {
		if got := formatValue(tt.in); got != tt.want {
			t.Errorf("formatValue(%#v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestSQLiteSink_TablesPerShape(t *testing.T) {
	path := filepath.Join(t.TempDir(), "export.db")
	s, err := NewSQLiteSink(path, shapes.MustRegistry())
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()

	if err := s.Ping(ctx); err != nil {
		t.Fatalf("Ping() error = %v", err)
	}
	for _, d := range []string{"a", "b"} {
		if err := s.Write(ctx, "ExportedString", stringRecord("C.1", d)); err != nil {
			t.Fatal(err)
		}
	}
	big := shapes.ExportedBytes{
		Metadata: export.ExportedMetadata{ClientURN: "C.1"},
		Length:   export.Some(uint64(1) << 63),
	}
	if err := s.Write(ctx, "ExportedBytes", big); err != nil {
		t.Fatal(err)
	}
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	var n int
	if err := db.QueryRow(`SELECT COUNT(*) FROM "ExportedString" WHERE "data" IN ('a', 'b')`).Scan(&n); err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Errorf("ExportedString rows = %d, want 2", n)
	}

	var length string
	if err := db.QueryRow(`SELECT CAST("length" AS TEXT) FROM "ExportedBytes"`).Scan(&length); err != nil {
		t.Fatal(err)
	}
	if length != "9223372036854775808" {
		t.Errorf("length = %q", length)
	}
}

func TestSQLiteSink_RowsOutliveWriteContext(t *testing.T) {
	path := filepath.Join(t.TempDir(), "export.db")
	s, err := NewSQLiteSink(path, shapes.MustRegistry())
	if err != nil {
		t.Fatal(err)
	}

	first, cancel := context.WithCancel(context.Background())
	if err := s.Write(first, "ExportedString", stringRecord("C.1", "a")); err != nil {
		t.Fatal(err)
	}
	cancel()

	if err := s.Write(context.Background(), "ExportedString", stringRecord("C.1", "b")); err != nil {
		t.Fatalf("Write() after cancelled context error = %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	var n int
	if err := db.QueryRow(`SELECT COUNT(*) FROM "ExportedString"`).Scan(&n); err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Errorf("ExportedString rows = %d, want 2", n)
	}
}

func TestSQLiteSink_AddsMissingColumns(t *testing.T) {
	path := filepath.Join(t.TempDir(), "export.db")

	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := db.Exec(`CREATE TABLE "ExportedString" ("metadata.client_urn" TEXT)`); err != nil {
		t.Fatal(err)
	}
	db.Close()

	s, err := NewSQLiteSink(path, shapes.MustRegistry())
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Write(context.Background(), "ExportedString", stringRecord("C.9", "late")); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}

	db, _ = sql.Open("sqlite", path)
	defer db.Close()
	var data string
	if err := db.QueryRow(`SELECT "data" FROM "ExportedString" WHERE "metadata.client_urn" = 'C.9'`).Scan(&data); err != nil {
		t.Fatal(err)
	}
	if data != "late" {
		t.Errorf("data = %q", data)
	}
}

type fakeChannel struct {
	published []amqp.Publishing
	keys      []string
	exchange  string
	err       error
	closed    bool
}

func (f *fakeChannel) PublishWithContext(_ context.Context, exchange, key string, _, _ bool, msg amqp.Publishing) error {
	if f.err != nil {
		return f.err
	}
	f.exchange = exchange
	f.keys = append(f.keys, key)
	f.published = append(f.published, msg)
	return nil
}

func (f *fakeChannel) Close() error {
	f.closed = true
	return nil
}

func TestAMQPSink_Publish(t *testing.T) {
	ch := &fakeChannel{}
	s := NewAMQPSink(ch, "mercator.export", time.Second)

	if err := s.Write(context.Background(), "ExportedString", stringRecord("C.1", "x")); err != nil {
		t.Fatal(err)
	}
	if len(ch.published) != 1 {
		t.Fatalf("published %d messages", len(ch.published))
	}
	msg := ch.published[0]
	if ch.exchange != "mercator.export" || ch.keys[0] != "ExportedString" {
		t.Errorf("exchange/key = %q/%q", ch.exchange, ch.keys[0])
	}
	if msg.ContentType != "application/json" || msg.DeliveryMode != amqp.Persistent {
		t.Errorf("content type %q, delivery mode %d", msg.ContentType, msg.DeliveryMode)
	}
	if msg.Headers["shape"] != "ExportedString" {
		t.Errorf("shape header = %v", msg.Headers["shape"])
	}
	if !bytes.Contains(msg.Body, []byte(`"client_urn":"C.1"`)) {
		t.Errorf("body = %s", msg.Body)
	}

	if err := s.Close(); err != nil || !ch.closed {
		t.Errorf("Close() = %v, closed = %v", err, ch.closed)
	}
	if err := s.Write(context.Background(), "ExportedString", stringRecord("C.1", "x")); err == nil {
		t.Error("Write after Close should fail")
	}
}

func TestAMQPSink_PublishError(t *testing.T) {
	ch := &fakeChannel{err: amqp.ErrClosed}
	s := NewAMQPSink(ch, "x", 0)

	err := s.Write(context.Background(), "ExportedString", stringRecord("C.1", "x"))
	if !errors.Is(err, amqp.ErrClosed) {
		t.Errorf("error = %v, want wrapped ErrClosed", err)
	}
}

type failingSink struct{ closed bool }

func (f *failingSink) Write(context.Context, string, export.Record) error {
	return errors.New("boom")
}

func (f *failingSink) Close() error {
	f.closed = true
	return nil
}

func TestMulti_DeliversPastFailures(t *testing.T) {
	bad := &failingSink{}
	good := &Collect{}
	m := Multi{bad, good}

	err := m.Write(context.Background(), "ExportedString", stringRecord("C.1", "x"))
	if err == nil {
		t.Fatal("expected joined error")
	}
	if good.Len() != 1 {
		t.Errorf("healthy sink got %d records", good.Len())
	}
	m.Close()
	if !bad.closed {
		t.Error("failing sink not closed")
	}
}

func TestOpen_FromConfig(t *testing.T) {
	dir := t.TempDir()
	cfg := &config.Config{Sinks: []config.SinkConfig{
		{Name: "archive", Type: config.SinkJSONL, Path: filepath.Join(dir, "a.jsonl")},
		{Name: "table", Type: config.SinkCSV, Path: filepath.Join(dir, "csv")},
		{Name: "bogus", Type: "parquet"},
	}}
	reg := shapes.MustRegistry()

	m, err := OpenAll(cfg, []string{"archive", "table"}, reg)
	if err != nil {
		t.Fatal(err)
	}
	if len(m) != 2 || m[0].(*Named).Name() != "archive" {
		t.Fatalf("OpenAll() = %v", m)
	}
	if err := m.Write(context.Background(), "ExportedString", stringRecord("C.1", "x")); err != nil {
		t.Fatal(err)
	}
	if err := m.Close(); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(filepath.Join(dir, "csv", "ExportedString.csv")); err != nil {
		t.Errorf("csv file missing: %v", err)
	}

	if _, err := OpenAll(cfg, []string{"archive", "missing"}, reg); err == nil {
		t.Error("expected error for unknown sink name")
	}
	if _, err := OpenAll(cfg, []string{"bogus"}, reg); err == nil {
		t.Error("expected error for unknown sink type")
	}
}

func readCSV(t *testing.T, path string) [][]string {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatal(err)
	}
	return rows
}

func zip(header, row []string) map[string]string {
	m := make(map[string]string, len(header))
	for i, h := range header {
		m[h] = row[i]
	}
	return m
}
