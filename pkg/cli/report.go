package cli

import (
	"fmt"
	"io"
	"slices"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/jedib0t/go-pretty/v6/table"

	"mercator-hq/exporter/pkg/export/batch"
)

// maxListedEntries caps the per-record lines PrintReport shows.
const maxListedEntries = 20

var (
	okColor   = color.New(color.FgGreen)
	warnColor = color.New(color.FgYellow)
	errColor  = color.New(color.FgRed)
)

// ShapeCounts lists exported records per shape, largest first.
type ShapeCounts map[string]int

// Header implements Tabular.
func (s ShapeCounts) Header() table.Row { return table.Row{"Shape", "Records"} }

// Rows implements Tabular.
func (s ShapeCounts) Rows() []table.Row {
	names := make([]string, 0, len(s))
	for name := range s {
		names = append(names, name)
	}
	slices.SortFunc(names, func(a, b string) int {
		if s[a] != s[b] {
			return s[b] - s[a]
		}
		if a < b {
			return -1
		}
		if a > b {
			return 1
		}
		return 0
	})

	rows := make([]table.Row, len(names))
	for i, name := range names {
		rows[i] = table.Row{name, humanize.Comma(int64(s[name]))}
	}
	return rows
}

// PrintReport writes a human-readable batch summary: a colored status line,
// a table of exported shapes, and the skipped records. With verbose unset
// at most maxListedEntries records are listed.
func PrintReport(w io.Writer, r *batch.Report, verbose bool) {
	switch {
	case r.Failed > 0:
		errColor.Fprintf(w, "✗ %s of %s records exported, %s skipped",
			humanize.Comma(int64(r.Exported)), humanize.Comma(int64(r.Processed)), humanize.Comma(int64(r.Failed)))
	case r.Warnings > 0:
		warnColor.Fprintf(w, "⚠ %s records exported with %s warnings",
			humanize.Comma(int64(r.Exported)), humanize.Comma(int64(r.Warnings)))
	default:
		okColor.Fprintf(w, "✓ %s records exported", humanize.Comma(int64(r.Exported)))
	}
	fmt.Fprintf(w, " in %s (%s)\n", r.Duration().Round(time.Millisecond), rate(r))

	if len(r.Shapes) > 0 {
		tw := NewTable()
		tw.AppendHeader(ShapeCounts(r.Shapes).Header())
		tw.AppendRows(ShapeCounts(r.Shapes).Rows())
		fmt.Fprintln(w, tw.Render())
	}

	if len(r.Entries) == 0 {
		return
	}
	r.SortEntries()
	entries := r.Entries
	if !verbose && len(entries) > maxListedEntries {
		entries = entries[:maxListedEntries]
	}
	fmt.Fprintln(w)
	for _, e := range entries {
		c, mark := errColor, "skipped"
		switch {
		case e.Warning:
			c, mark = warnColor, "warning"
		case e.Written > 0:
			mark = "partial"
		}
		c.Fprintf(w, "  %s %s", mark, e.RecordID)
		fmt.Fprintf(w, " [%s] %s: %s\n", e.Kind, e.ErrorKind, e.Message)
	}
	if hidden := len(r.Entries) - len(entries); hidden > 0 {
		fmt.Fprintf(w, "  ... and %s more (use --verbose to list all)\n", humanize.Comma(int64(hidden)))
	}
}

func rate(r *batch.Report) string {
	secs := r.Duration().Seconds()
	if secs <= 0 {
		return "- records/s"
	}
	return humanize.CommafWithDigits(float64(r.Processed)/secs, 1) + " records/s"
}
