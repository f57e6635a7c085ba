package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
)

// OutputFormat represents the output format for command results.
type OutputFormat string

const (
	// FormatText is plain text output (default).
	FormatText OutputFormat = "text"
	// FormatJSON is JSON output.
	FormatJSON OutputFormat = "json"
	// FormatTable renders Tabular data as a table; other data falls back to text.
	FormatTable OutputFormat = "table"
)

// ParseFormat validates a --output flag value.
func ParseFormat(s string) (OutputFormat, error) {
	switch f := OutputFormat(strings.ToLower(s)); f {
	case FormatText, FormatJSON, FormatTable:
		return f, nil
	case "":
		return FormatText, nil
	default:
		return "", fmt.Errorf("unknown output format %q (want text, json or table)", s)
	}
}

// Formatter formats command output.
type Formatter interface {
	Format(data any) ([]byte, error)
	FormatTo(w io.Writer, data any) error
}

// Tabular is implemented by results that can render as a table.
type Tabular interface {
	Header() table.Row
	Rows() []table.Row
}

// TextFormatter formats output as plain text.
type TextFormatter struct{}

// Format converts data to text format.
func (f *TextFormatter) Format(data any) ([]byte, error) {
	return []byte(fmt.Sprintf("%v\n", data)), nil
}

// FormatTo writes data to writer in text format.
func (f *TextFormatter) FormatTo(w io.Writer, data any) error {
	_, err := fmt.Fprintf(w, "%v\n", data)
	return err
}

// JSONFormatter formats output as JSON.
type JSONFormatter struct {
	Indent bool
}

// Format converts data to JSON format.
func (f *JSONFormatter) Format(data any) ([]byte, error) {
	if f.Indent {
		return json.MarshalIndent(data, "", "  ")
	}
	return json.Marshal(data)
}

// FormatTo writes data to writer in JSON format.
func (f *JSONFormatter) FormatTo(w io.Writer, data any) error {
	encoder := json.NewEncoder(w)
	if f.Indent {
		encoder.SetIndent("", "  ")
	}
	return encoder.Encode(data)
}

// TableFormatter renders Tabular data with go-pretty.
type TableFormatter struct {
	// Footer adds a row count below the table.
	Footer bool
}

// Format renders data as a table.
func (f *TableFormatter) Format(data any) ([]byte, error) {
	var sb strings.Builder
	if err := f.FormatTo(&sb, data); err != nil {
		return nil, err
	}
	return []byte(sb.String()), nil
}

// FormatTo writes data to w as a table.
func (f *TableFormatter) FormatTo(w io.Writer, data any) error {
	tab, ok := data.(Tabular)
	if !ok {
		return (&TextFormatter{}).FormatTo(w, data)
	}

	rows := tab.Rows()
	tw := NewTable()
	tw.AppendHeader(tab.Header())
	tw.AppendRows(rows)
	if f.Footer {
		tw.AppendFooter(table.Row{fmt.Sprintf("Total: %d", len(rows))})
	}
	_, err := fmt.Fprintln(w, tw.Render())
	return err
}

// NewTable returns a borderless go-pretty table writer in the CLI style.
func NewTable() table.Writer {
	tw := table.NewWriter()
	tw.SetStyle(table.StyleLight)
	tw.Style().Options.DrawBorder = false
	tw.Style().Options.SeparateColumns = false
	tw.Style().Options.SeparateRows = false
	return tw
}

// NewFormatter creates a new formatter for the specified format.
func NewFormatter(format OutputFormat) Formatter {
	switch format {
	case FormatJSON:
		return &JSONFormatter{Indent: true}
	case FormatTable:
		return &TableFormatter{Footer: true}
	default:
		return &TextFormatter{}
	}
}
