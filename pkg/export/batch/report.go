package batch

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"mercator-hq/exporter/pkg/export"
)

// Entry describes one record that was skipped or exported with a warning.
type Entry struct {
	RecordID  string `json:"record_id"`
	Kind      string `json:"kind,omitempty"`
	ErrorKind string `json:"error_kind"`
	Message   string `json:"message"`
	Warning   bool   `json:"warning,omitempty"`
	// Written counts the record's outputs that reached the sink before the
	// failure. It is non-zero only for partly exported follow_urns results.
	Written int `json:"written,omitempty"`
}

// Report summarizes one batch run. A batch with skipped records is still a
// completed batch; the entries say which records were skipped and why.
type Report struct {
	BatchID  string    `json:"batch_id"`
	Job      string    `json:"job,omitempty"`
	Started  time.Time `json:"started"`
	Finished time.Time `json:"finished"`

	// Processed counts raw records taken from the input.
	Processed int `json:"processed"`
	// Exported counts exported records delivered to the sink. Following
	// references can make it larger than Processed.
	Exported int `json:"exported"`
	// Failed counts raw records whose export did not complete because of an
	// error. Outputs written before the error are counted in Exported and in
	// the record's Entry.Written.
	Failed   int `json:"failed"`
	Warnings int `json:"warnings"`

	Shapes     map[string]int `json:"shapes"`
	ErrorKinds map[string]int `json:"error_kinds,omitempty"`
	Entries    []Entry        `json:"entries,omitempty"`
}

// Duration returns how long the batch ran.
func (r *Report) Duration() time.Duration {
	return r.Finished.Sub(r.Started)
}

// OK reports whether every record was exported.
func (r *Report) OK() bool {
	return r.Failed == 0
}

// Err returns an error summarizing the failed records, or nil.
func (r *Report) Err() error {
	if r.OK() {
		return nil
	}
	var errs []error
	for _, e := range r.Entries {
		if !e.Warning {
			errs = append(errs, fmt.Errorf("record %s: %s: %s", e.RecordID, e.ErrorKind, e.Message))
		}
	}
	return fmt.Errorf("batch %s: %d of %d records failed: %w", r.BatchID, r.Failed, r.Processed, errors.Join(errs...))
}

// SortEntries orders entries by record ID, errors before warnings.
func (r *Report) SortEntries() {
	sort.SliceStable(r.Entries, func(i, j int) bool {
		a, b := r.Entries[i], r.Entries[j]
		if a.RecordID != b.RecordID {
			return a.RecordID < b.RecordID
		}
		return !a.Warning && b.Warning
	})
}

// tally accumulates a report from concurrent workers.
type tally struct {
	mu     sync.Mutex
	report *Report
}

func newTally(batchID, job string, started time.Time) *tally {
	return &tally{report: &Report{
		BatchID:    batchID,
		Job:        job,
		Started:    started,
		Shapes:     make(map[string]int),
		ErrorKinds: make(map[string]int),
	}}
}

func (t *tally) processed() {
	t.mu.Lock()
	t.report.Processed++
	t.mu.Unlock()
}

func (t *tally) exported(shape string) {
	t.mu.Lock()
	t.report.Exported++
	t.report.Shapes[shape]++
	t.mu.Unlock()
}

func (t *tally) failed(raw *export.RawRecord, err error, written int) {
	kind := export.ErrorKind(err)
	t.mu.Lock()
	defer t.mu.Unlock()
	t.report.Failed++
	t.report.ErrorKinds[kind]++
	t.report.Entries = append(t.report.Entries, Entry{
		RecordID:  raw.ID,
		Kind:      string(raw.Kind),
		ErrorKind: kind,
		Message:   err.Error(),
		Written:   written,
	})
}

func (t *tally) warned(raw *export.RawRecord, err error) {
	kind := export.ErrorKind(err)
	t.mu.Lock()
	defer t.mu.Unlock()
	t.report.Warnings++
	t.report.ErrorKinds[kind]++
	t.report.Entries = append(t.report.Entries, Entry{
		RecordID:  raw.ID,
		Kind:      string(raw.Kind),
		ErrorKind: kind,
		Message:   err.Error(),
		Warning:   true,
	})
}

func (t *tally) finish(at time.Time) *Report {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.report.Finished = at
	t.report.SortEntries()
	return t.report
}
