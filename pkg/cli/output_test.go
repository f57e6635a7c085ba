package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"testing"

	"github.com/jedib0t/go-pretty/v6/table"
)

type shapeList []string

func (s shapeList) Header() table.Row { return table.Row{"Shape"} }

func (s shapeList) Rows() []table.Row {
	rows := make([]table.Row, len(s))
	for i, name := range s {
		rows[i] = table.Row{name}
	}
	return rows
}

func TestTextFormatter(t *testing.T) {
	formatter := &TextFormatter{}

	output, err := formatter.Format("test message")
	if err != nil {
		t.Fatalf("Format() error = %v", err)
	}
	if string(output) != "test message\n" {
		t.Errorf("Format() = %q, want %q", string(output), "test message\n")
	}

	buf := &bytes.Buffer{}
	if err := formatter.FormatTo(buf, 42); err != nil {
		t.Fatalf("FormatTo() error = %v", err)
	}
	if buf.String() != "42\n" {
		t.Errorf("FormatTo() = %q", buf.String())
	}
}

func TestJSONFormatter(t *testing.T) {
	tests := []struct {
		name   string
		data   any
		indent bool
	}{
		{name: "simple string", data: "test"},
		{name: "map with indent", data: map[string]string{"key": "value"}, indent: true},
		{
			name: "struct",
			data: struct {
				Name  string `json:"name"`
				Value int    `json:"value"`
			}{Name: "test", Value: 42},
			indent: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			formatter := &JSONFormatter{Indent: tt.indent}
			output, err := formatter.Format(tt.data)
			if err != nil {
				t.Fatalf("Format() error = %v", err)
			}

			var result any
			if err := json.Unmarshal(output, &result); err != nil {
				t.Errorf("Format() produced invalid JSON: %v", err)
			}
		})
	}
}

func TestJSONFormatterWriter(t *testing.T) {
	formatter := &JSONFormatter{Indent: true}
	buf := &bytes.Buffer{}

	if err := formatter.FormatTo(buf, map[string]string{"test": "value"}); err != nil {
		t.Fatalf("FormatTo() error = %v", err)
	}

	var result map[string]string
	if err := json.Unmarshal(buf.Bytes(), &result); err != nil {
		t.Fatalf("FormatTo() produced invalid JSON: %v", err)
	}
	if result["test"] != "value" {
		t.Errorf("FormatTo() = %v", result)
	}
}

func TestTableFormatter(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &TableFormatter{Footer: true}

	if err := formatter.FormatTo(buf, shapeList{"ExportedFile", "ExportedProcess"}); err != nil {
		t.Fatalf("FormatTo() error = %v", err)
	}

	out := buf.String()
	for _, want := range []string{"SHAPE", "ExportedFile", "ExportedProcess", "TOTAL: 2"} {
		if !strings.Contains(out, want) {
			t.Errorf("table output missing %q:\n%s", want, out)
		}
	}
}

func TestTableFormatter_NonTabularFallsBackToText(t *testing.T) {
	out, err := (&TableFormatter{}).Format("plain")
	if err != nil {
		t.Fatalf("Format() error = %v", err)
	}
	if string(out) != "plain\n" {
		t.Errorf("Format() = %q", out)
	}
}

func TestNewFormatter(t *testing.T) {
	tests := []struct {
		format OutputFormat
		want   string
	}{
		{format: FormatText, want: "*cli.TextFormatter"},
		{format: FormatJSON, want: "*cli.JSONFormatter"},
		{format: FormatTable, want: "*cli.TableFormatter"},
		{format: "unknown", want: "*cli.TextFormatter"},
	}

	for _, tt := range tests {
		t.Run(string(tt.format), func(t *testing.T) {
			if got := fmt.Sprintf("%T", NewFormatter(tt.format)); got != tt.want {
				t.Errorf("NewFormatter(%q) type = %v, want %v", tt.format, got, tt.want)
			}
		})
	}
}

func TestParseFormat(t *testing.T) {
	tests := []struct {
		in      string
		want    OutputFormat
		wantErr bool
	}{
		{in: "", want: FormatText},
		{in: "json", want: FormatJSON},
		{in: "TABLE", want: FormatTable},
		{in: "csv", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseFormat(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseFormat(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseFormat(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}
