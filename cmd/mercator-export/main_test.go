package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/fatih/color"

	"mercator-hq/exporter/pkg/cli"
	"mercator-hq/exporter/pkg/config"
	"mercator-hq/exporter/pkg/export"
	"mercator-hq/exporter/pkg/export/store"
)

func init() {
	color.NoColor = true
}

func writeRecords(t *testing.T, path string, records ...*export.RawRecord) {
	t.Helper()
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := store.WriteJSONL(f, records...); err != nil {
		t.Fatal(err)
	}
	if err := f.Close(); err != nil {
		t.Fatal(err)
	}
}

func stringRecord(id, data string) *export.RawRecord {
	return &export.RawRecord{
		ID:         id,
		Kind:       export.KindString,
		Timestamp:  export.Timestamp(1700000000000000),
		Client:     export.ClientSnapshot{URN: "C.1000000000000000", Hostname: "web-01"},
		Attributes: map[string]any{"data": data},
	}
}

func TestExportCommand(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "in.jsonl")
	out := filepath.Join(dir, "out", "export.jsonl")
	writeRecords(t, in,
		stringRecord("r1", "hello"),
		&export.RawRecord{ID: "r2", Kind: "Widget"},
		stringRecord("r3", "world"),
	)

	buf := &bytes.Buffer{}
	rootCmd.SetOut(buf)
	rootCmd.SetErr(&bytes.Buffer{})
	rootCmd.SetArgs([]string{"export", "--input", in, "--out", out, "--quiet", "-o", "text"})
	defer rootCmd.SetArgs(nil)

	err := rootCmd.Execute()
	if code := cli.ExitCode(err); code != cli.ExitPartial {
		t.Fatalf("exit code = %d (err %v), want %d", code, err, cli.ExitPartial)
	}

	report := buf.String()
	if !strings.Contains(report, "2 of 3 records exported, 1 skipped") {
		t.Errorf("report missing summary:\n%s", report)
	}
	if !strings.Contains(report, "skipped r2 [Widget]") {
		t.Errorf("report missing skipped record:\n%s", report)
	}

	f, err := os.Open(out)
	if err != nil {
		t.Fatalf("output not written: %v", err)
	}
	defer f.Close()

	var data []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var env struct {
			Shape  string `json:"shape"`
			Record struct {
				Data string `json:"data"`
			} `json:"record"`
		}
		if err := json.Unmarshal(sc.Bytes(), &env); err != nil {
			t.Fatalf("bad output line %q: %v", sc.Text(), err)
		}
		if env.Shape != "ExportedString" {
			t.Errorf("shape = %q", env.Shape)
		}
		data = append(data, env.Record.Data)
	}
	slices.Sort(data)
	if !slices.Equal(data, []string{"hello", "world"}) {
		t.Errorf("exported data = %v", data)
	}
}

func TestSchemaListCommand(t *testing.T) {
	buf := &bytes.Buffer{}
	rootCmd.SetOut(buf)
	rootCmd.SetArgs([]string{"schema", "list", "-o", "json"})
	defer rootCmd.SetArgs(nil)

	if err := rootCmd.Execute(); err != nil {
		t.Fatalf("Execute() error = %v", err)
	}

	var entries []kindEntry
	if err := json.Unmarshal(buf.Bytes(), &entries); err != nil {
		t.Fatalf("invalid JSON: %v\n%s", err, buf.String())
	}
	var found bool
	for _, e := range entries {
		if e.Kind == string(export.KindProcess) {
			found = e.Shape == "ExportedProcess" && e.Version >= 1 && e.Columns > 0
		}
	}
	if !found {
		t.Errorf("Process -> ExportedProcess missing from %+v", entries)
	}
}

func TestFieldTable(t *testing.T) {
	shape, err := lookupShape("Process")
	if err != nil {
		t.Fatalf("lookupShape() error = %v", err)
	}

	entries := fieldTable{shape}.entries()
	cols := map[string]fieldEntry{}
	for _, e := range entries {
		cols[e.Column] = e
	}
	if e, ok := cols["pid"]; !ok || e.Type != "uint" {
		t.Errorf("pid column = %+v", e)
	}
	if e := cols["cmdline"]; !slices.Contains(e.Flags, "joined") {
		t.Errorf("cmdline flags = %v, want joined", e.Flags)
	}
	if !strings.HasPrefix(entries[0].Column, "metadata.") {
		t.Errorf("first column = %q, want metadata first", entries[0].Column)
	}

	if _, err := lookupShape("NoSuchShape"); err == nil {
		t.Error("lookupShape() should fail for unknown shapes")
	}
}

func TestParseTimeRange(t *testing.T) {
	tests := []struct {
		in        string
		wantSince bool
		wantUntil bool
		wantErr   bool
	}{
		{in: ""},
		{in: "2026-01-01T00:00:00Z/2026-01-02T00:00:00Z", wantSince: true, wantUntil: true},
		{in: "2026-01-01T00:00:00Z/", wantSince: true},
		{in: "/2026-01-02T00:00:00Z", wantUntil: true},
		{in: "2026-01-01", wantErr: true},
		{in: "yesterday/today", wantErr: true},
		{in: "2026-01-02T00:00:00Z/2026-01-01T00:00:00Z", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			since, until, err := parseTimeRange(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("parseTimeRange() error = %v, wantErr %v", err, tt.wantErr)
			}
			if (since != nil) != tt.wantSince || (until != nil) != tt.wantUntil {
				t.Errorf("since = %v, until = %v", since, until)
			}
		})
	}
}

func TestSinkTypeFor(t *testing.T) {
	tests := map[string]string{
		"out.json":          config.SinkJSON,
		"out.jsonl":         config.SinkJSONL,
		"out.jsonl.lz4":     config.SinkJSONL,
		"out.ndjson":        config.SinkJSONL,
		"rows.db":           config.SinkSQLite,
		"export/csv":        config.SinkCSV,
		"something.unknown": config.SinkJSONL,
	}
	for path, want := range tests {
		if got := sinkTypeFor(path); got != want {
			t.Errorf("sinkTypeFor(%q) = %q, want %q", path, got, want)
		}
	}
}

func TestFileSources(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "a.jsonl")
	b := filepath.Join(dir, "b.jsonl")
	writeRecords(t, a, stringRecord("a1", "x"), stringRecord("a2", "y"))
	writeRecords(t, b, stringRecord("b1", "z"))

	records, errs := fileSources{a, b}.Records(context.Background())
	var ids []string
	for r := range records {
		ids = append(ids, r.ID)
	}
	if err := <-errs; err != nil {
		t.Fatalf("source error = %v", err)
	}
	if !slices.Equal(ids, []string{"a1", "a2", "b1"}) {
		t.Errorf("ids = %v, want files read in order", ids)
	}

	records, errs = fileSources{a, filepath.Join(dir, "missing.jsonl")}.Records(context.Background())
	n := 0
	for range records {
		n++
	}
	if err := <-errs; err == nil {
		t.Error("missing file should end the source with an error")
	}
	if n != 2 {
		t.Errorf("records before the error = %d, want 2", n)
	}
}

func TestPrintConfigSummary(t *testing.T) {
	cfg := config.NewDefault()
	cfg.Sinks = []config.SinkConfig{{Name: "archive", Type: config.SinkJSONL, Path: "out/a.jsonl"}}
	cfg.Jobs = []config.JobConfig{{Name: "hourly", Schedule: "@hourly", Window: time.Hour, Sinks: []string{"archive"}}}

	buf := &bytes.Buffer{}
	printConfigSummary(buf, cfg, time.Date(2026, 1, 1, 10, 30, 0, 0, time.UTC))

	out := buf.String()
	for _, want := range []string{"archive", "out/a.jsonl", "hourly", "2026-01-01T11:00:00Z"} {
		if !strings.Contains(out, want) {
			t.Errorf("summary missing %q:\n%s", want, out)
		}
	}
}

func TestVersionCommand(t *testing.T) {
	origVersion, origCommit := Version, GitCommit
	Version, GitCommit = "0.1.0-test", "abc123"
	defer func() { Version, GitCommit = origVersion, origCommit }()

	buf := &bytes.Buffer{}
	rootCmd.SetOut(buf)
	rootCmd.SetArgs([]string{"version", "-o", "json"})
	defer rootCmd.SetArgs(nil)

	if err := rootCmd.Execute(); err != nil {
		t.Fatalf("Execute() error = %v", err)
	}

	var info struct {
		Version string `json:"version"`
		Commit  string `json:"commit"`
	}
	if err := json.Unmarshal(buf.Bytes(), &info); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if info.Version != "0.1.0-test" || info.Commit != "abc123" {
		t.Errorf("version info = %+v", info)
	}
}
