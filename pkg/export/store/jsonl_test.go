package store

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pierrec/lz4/v4"

	"mercator-hq/exporter/pkg/export"
)

const sampleJSONL = `{"id":"r1","kind":"StatEntry","timestamp":1700000000000000,"client":{"urn":"aff4:/C.1","hostname":"web-01"},"attributes":{"pathspec":{"path":"/etc/passwd"},"st_size":1024,"st_ino":18446744073709551615}}

{"kind":"Process","timestamp":1700000000000001,"client":{"urn":"aff4:/C.1"},"attributes":{"pid":1}}
`

func TestReadJSONL(t *testing.T) {
	records, err := ReadJSONL(strings.NewReader(sampleJSONL))
	if err != nil {
		t.Fatalf("ReadJSONL() error = %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("got %d records, want 2 (blank line skipped)", len(records))
	}

	first := records[0]
	if first.ID != "r1" || first.Kind != export.KindStatEntry || first.Client.Hostname != "web-01" {
		t.Errorf("first record = %+v", first)
	}
	ino, ok := first.Attributes["st_ino"].(json.Number)
	if !ok || ino.String() != "18446744073709551615" {
		t.Errorf("st_ino = %#v, want json.Number", first.Attributes["st_ino"])
	}
	if records[1].ID == "" {
		t.Error("record without id was not assigned one")
	}
}

func TestReadJSONL_NoTrailingNewline(t *testing.T) {
	records, err := ReadJSONL(strings.NewReader(`{"id":"x","kind":"Process"}`))
	if err != nil || len(records) != 1 {
		t.Fatalf("ReadJSONL() = %d records, %v", len(records), err)
	}
}

func TestReadJSONL_Errors(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		wantLine int
	}{
		{"malformed json", "{\"id\":\"a\",\"kind\":\"Process\"}\n{not json}\n", 2},
		{"missing kind", "{\"id\":\"a\"}\n", 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ReadJSONL(strings.NewReader(tt.input))
			var lineErr *LineError
			if !errors.As(err, &lineErr) {
				t.Fatalf("error = %v, want LineError", err)
			}
			if lineErr.Line != tt.wantLine {
				t.Errorf("Line = %d, want %d", lineErr.Line, tt.wantLine)
			}
		})
	}
}

func TestWriteJSONL_RoundTrip(t *testing.T) {
	var sb strings.Builder
	recs := []*export.RawRecord{
		rawRecord("a", export.KindStatEntry, 0),
		rawRecord("b", export.KindProcess, 0),
	}
	if err := WriteJSONL(&sb, recs...); err != nil {
		t.Fatal(err)
	}

	got, err := ReadJSONL(strings.NewReader(sb.String()))
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got[0].ID != "a" || got[1].SourceURN != recs[1].SourceURN {
		t.Errorf("round trip = %+v", got)
	}
}

func TestOpenJSONL_LZ4(t *testing.T) {
	path := filepath.Join(t.TempDir(), "records.jsonl.lz4")
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	zw := lz4.NewWriter(f)
	if _, err := zw.Write([]byte(sampleJSONL)); err != nil {
		t.Fatal(err)
	}
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}
	f.Close()

	rc, err := OpenJSONL(path)
	if err != nil {
		t.Fatal(err)
	}
	defer rc.Close()

	records, err := ReadJSONL(rc)
	if err != nil {
		t.Fatalf("ReadJSONL(lz4) error = %v", err)
	}
	if len(records) != 2 {
		t.Errorf("got %d records from lz4 file, want 2", len(records))
	}
}

func TestFileSource(t *testing.T) {
	dir := t.TempDir()
	good := filepath.Join(dir, "good.jsonl")
	if err := os.WriteFile(good, []byte(sampleJSONL), 0o600); err != nil {
		t.Fatal(err)
	}

	records, errs := FileSource{Path: good}.Records(context.Background())
	var n int
	for range records {
		n++
	}
	if err := <-errs; err != nil {
		t.Fatalf("FileSource error = %v", err)
	}
	if n != 2 {
		t.Errorf("FileSource produced %d records, want 2", n)
	}

	records, errs = FileSource{Path: filepath.Join(dir, "missing.jsonl")}.Records(context.Background())
	for range records {
	}
	if err := <-errs; !errors.Is(err, os.ErrNotExist) {
		t.Errorf("missing file error = %v, want ErrNotExist", err)
	}
}
