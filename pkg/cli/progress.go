package cli

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
)

// ProgressReporter reports progress for long-running operations.
type ProgressReporter interface {
	Start(total int64)
	Update(current int64)
	Finish()
	Error(err error)
}

// renderInterval limits how often Update redraws the line.
const renderInterval = 100 * time.Millisecond

// SimpleProgress draws a single-line progress bar. With an unknown total it
// shows a running count instead of a bar.
type SimpleProgress struct {
	mu       sync.Mutex
	total    int64
	current  int64
	started  time.Time
	rendered time.Time
	writer   io.Writer
}

// NewProgressReporter creates a new progress reporter that writes to w.
// If w is nil, it defaults to os.Stderr so progress never mixes with
// command output.
func NewProgressReporter(w io.Writer) ProgressReporter {
	if w == nil {
		w = os.Stderr
	}
	return &SimpleProgress{
		writer: w,
	}
}

// Start resets the reporter. A total of zero means unknown.
func (p *SimpleProgress) Start(total int64) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.total = total
	p.current = 0
	p.started = time.Now()

	p.render()
}

// Update records progress. Updates that go backwards are ignored, so
// concurrent workers can report without coordinating.
func (p *SimpleProgress) Update(current int64) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if current <= p.current {
		return
	}
	p.current = current
	if time.Since(p.rendered) >= renderInterval {
		p.render()
	}
}

// Finish draws the final state and ends the line.
func (p *SimpleProgress) Finish() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.total > 0 {
		p.current = p.total
	}
	p.render()
	fmt.Fprintln(p.writer)
}

// Error reports an error during progress.
func (p *SimpleProgress) Error(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	fmt.Fprintf(p.writer, "\n✗ Error: %v\n", err)
}

func (p *SimpleProgress) render() {
	p.rendered = time.Now()

	rate := 0.0
	if elapsed := time.Since(p.started).Seconds(); elapsed > 0 {
		rate = float64(p.current) / elapsed
	}

	if p.total <= 0 {
		fmt.Fprintf(p.writer, "\rExported: %s records (%s records/s)",
			humanize.Comma(p.current), humanize.CommafWithDigits(rate, 1))
		return
	}

	percent := float64(p.current) / float64(p.total) * 100
	barWidth := 40
	filled := min(int(float64(barWidth)*percent/100), barWidth)

	bar := strings.Repeat("█", filled) + strings.Repeat("░", barWidth-filled)

	fmt.Fprintf(p.writer, "\rProgress: [%s] %.1f%% (%s/%s) %s records/s",
		bar, percent, humanize.Comma(p.current), humanize.Comma(p.total), humanize.CommafWithDigits(rate, 1))
}
