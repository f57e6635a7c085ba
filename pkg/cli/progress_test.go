package cli

import (
	"bytes"
	"fmt"
	"strings"
	"sync"
	"testing"
)

func TestSimpleProgressBasic(t *testing.T) {
	buf := &bytes.Buffer{}
	progress := NewProgressReporter(buf)

	progress.Start(2000)
	progress.Update(1000)
	progress.Finish()

	output := buf.String()
	if !strings.Contains(output, "Progress:") {
		t.Error("Expected progress output to contain 'Progress:'")
	}
	if !strings.Contains(output, "(2,000/2,000)") {
		t.Errorf("Expected finished count with separators, got %q", output)
	}
	if !strings.HasSuffix(output, "\n") {
		t.Error("Finish() should end the line")
	}
}

func TestSimpleProgressUnknownTotal(t *testing.T) {
	buf := &bytes.Buffer{}
	progress := NewProgressReporter(buf).(*SimpleProgress)

	progress.Start(0)
	progress.Update(1234)
	progress.Finish()

	if !strings.Contains(buf.String(), "Exported: 1,234 records") {
		t.Errorf("unexpected output %q", buf.String())
	}
}

func TestSimpleProgressIgnoresRegression(t *testing.T) {
	progress := NewProgressReporter(&bytes.Buffer{}).(*SimpleProgress)

	progress.Start(10)
	progress.Update(7)
	progress.Update(3)

	if progress.current != 7 {
		t.Errorf("current = %d, want 7", progress.current)
	}
}

func TestSimpleProgressError(t *testing.T) {
	buf := &bytes.Buffer{}
	progress := NewProgressReporter(buf)

	progress.Start(100)
	progress.Error(fmt.Errorf("test error"))

	output := buf.String()
	if !strings.Contains(output, "Error:") || !strings.Contains(output, "test error") {
		t.Errorf("Expected error output, got %q", output)
	}
}

func TestSimpleProgressConcurrent(t *testing.T) {
	buf := &bytes.Buffer{}
	progress := NewProgressReporter(buf)

	progress.Start(1000)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(start int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				progress.Update(int64(start*100 + j))
			}
		}(i)
	}
	wg.Wait()

	progress.Finish()

	if buf.Len() == 0 {
		t.Error("Expected some progress output")
	}
}

func TestNewProgressReporterNilWriter(t *testing.T) {
	if progress := NewProgressReporter(nil); progress == nil {
		t.Error("NewProgressReporter(nil) should not return nil")
	}
}
