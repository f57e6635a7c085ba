package spool

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"mercator-hq/exporter/pkg/config"
	"mercator-hq/exporter/pkg/telemetry/metrics"

	"github.com/fsnotify/fsnotify"
)

// Subdirectories processed files are moved to.
const (
	DoneDir   = "done"
	FailedDir = "failed"
)

// Extensions lists the file suffixes the watcher picks up.
var Extensions = []string{".jsonl", ".jsonl.lz4"}

// Handler processes one spool file. Returning an error moves the file to
// the failed directory.
type Handler func(ctx context.Context, path string) error

// Watcher watches a drop directory for raw record files. Each file is
// handled once it has been quiet for the debounce interval, then moved to
// done/ or failed/.
type Watcher struct {
	dir      string
	debounce time.Duration
	handle   Handler
	watcher  *fsnotify.Watcher
	logger   *slog.Logger
	metrics  *metrics.Collector

	mu      sync.Mutex
	timers  map[string]*time.Timer
	running bool
	closing bool
	stopCh  chan struct{}
	doneCh  chan struct{}

	// procMu serializes handling so files are exported one at a time.
	procMu sync.Mutex
	wg     sync.WaitGroup
}

// Option configures a Watcher.
type Option func(*Watcher)

// WithMetrics counts processed files on c.
func WithMetrics(c *metrics.Collector) Option {
	return func(w *Watcher) {
		w.metrics = c
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(w *Watcher) {
		w.logger = logger
	}
}

// New creates a watcher for cfg.Dir, creating the directory and its done/
// and failed/ subdirectories.
func New(cfg config.SpoolConfig, handle Handler, opts ...Option) (*Watcher, error) {
	if cfg.Dir == "" {
		return nil, errors.New("spool directory is required")
	}
	if handle == nil {
		return nil, errors.New("spool handler is required")
	}
	for _, d := range []string{cfg.Dir, filepath.Join(cfg.Dir, DoneDir), filepath.Join(cfg.Dir, FailedDir)} {
		if err := os.MkdirAll(d, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create spool directory: %w", err)
		}
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}

	debounce := cfg.Debounce
	if debounce <= 0 {
		debounce = config.DefaultSpoolDebounce
	}

	w := &Watcher{
		dir:      cfg.Dir,
		debounce: debounce,
		handle:   handle,
		watcher:  fsw,
		logger:   slog.Default().With("component", "export.spool"),
		timers:   make(map[string]*time.Timer),
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w, nil
}

// Scan handles every spool file already in the directory, oldest name
// first, and returns how many were handled.
func (w *Watcher) Scan(ctx context.Context) (int, error) {
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		return 0, fmt.Errorf("failed to read spool directory: %w", err)
	}

	var names []string
	for _, e := range entries {
		if !e.IsDir() && isSpoolFile(e.Name()) {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	for _, name := range names {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		w.process(ctx, filepath.Join(w.dir, name))
	}
	return len(names), nil
}

// Watch handles files already present, then watches for new ones until ctx
// is cancelled or Stop is called.
func (w *Watcher) Watch(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return errors.New("spool watcher already running")
	}
	w.running = true
	w.mu.Unlock()

	defer func() {
		w.cancelTimers()
		w.wg.Wait()
		w.mu.Lock()
		w.running = false
		w.mu.Unlock()
		close(w.doneCh)
	}()

	if err := w.watcher.Add(w.dir); err != nil {
		return fmt.Errorf("failed to watch spool directory: %w", err)
	}

	if n, err := w.Scan(ctx); err != nil {
		return err
	} else if n > 0 {
		w.logger.Info("processed existing spool files", "count", n)
	}

	w.logger.Info("spool watcher started",
		"dir", w.dir,
		"debounce_ms", w.debounce.Milliseconds(),
	)

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("spool watcher stopped (context cancelled)")
			return nil

		case <-w.stopCh:
			w.logger.Info("spool watcher stopped")
			return nil

		case event, ok := <-w.watcher.Events:
			if !ok {
				return errors.New("watcher events channel closed")
			}
			if !w.shouldProcessEvent(event) {
				continue
			}
			w.logger.Debug("spool event", "path", event.Name, "op", event.Op.String())
			w.schedule(ctx, event.Name)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return errors.New("watcher errors channel closed")
			}
			w.logger.Error("spool watcher error", "error", err)
		}
	}
}

// schedule (re)starts the quiet timer for path.
func (w *Watcher) schedule(ctx context.Context, path string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if t, ok := w.timers[path]; ok {
		t.Stop()
	}
	w.timers[path] = time.AfterFunc(w.debounce, func() {
		w.mu.Lock()
		delete(w.timers, path)
		if w.closing {
			w.mu.Unlock()
			return
		}
		w.wg.Add(1)
		w.mu.Unlock()

		defer w.wg.Done()
		w.process(ctx, path)
	})
}

func (w *Watcher) cancelTimers() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.closing = true
	for path, t := range w.timers {
		t.Stop()
		delete(w.timers, path)
	}
}

// process handles one file and moves it out of the spool.
func (w *Watcher) process(ctx context.Context, path string) {
	w.procMu.Lock()
	defer w.procMu.Unlock()

	// A file can be handled by Scan and then reported by a late event.
	if _, err := os.Stat(path); err != nil {
		return
	}

	start := time.Now()
	err := w.handle(ctx, path)
	if err != nil && ctx.Err() != nil {
		// Interrupted; the file stays for the next run.
		w.logger.Warn("spool file interrupted", "path", path, "error", err)
		return
	}

	dest, status := DoneDir, metrics.StatusSuccess
	if err != nil {
		dest, status = FailedDir, metrics.StatusError
		w.logger.Error("spool file failed", "path", path, "error", err)
		w.writeErrorNote(path, err)
	} else {
		w.logger.Info("spool file processed", "path", path, "duration", time.Since(start))
	}
	w.metrics.RecordSpoolFile(status)

	target := filepath.Join(w.dir, dest, filepath.Base(path))
	if err := os.Rename(path, target); err != nil {
		w.logger.Error("failed to move spool file", "path", path, "target", target, "error", err)
	}
}

// writeErrorNote leaves the failure reason next to the failed file.
func (w *Watcher) writeErrorNote(path string, cause error) {
	note := filepath.Join(w.dir, FailedDir, filepath.Base(path)+".error")
	if err := os.WriteFile(note, []byte(cause.Error()+"\n"), 0o644); err != nil {
		w.logger.Warn("failed to write error note", "path", note, "error", err)
	}
}

// Stop stops the watcher and waits for in-flight files.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	running := w.running
	w.mu.Unlock()

	if running {
		close(w.stopCh)
		<-w.doneCh
	}

	if err := w.watcher.Close(); err != nil {
		return fmt.Errorf("failed to close watcher: %w", err)
	}
	return nil
}

func (w *Watcher) shouldProcessEvent(event fsnotify.Event) bool {
	if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
		return false
	}
	// Only files directly in the spool directory.
	if filepath.Dir(event.Name) != filepath.Clean(w.dir) {
		return false
	}
	return isSpoolFile(filepath.Base(event.Name))
}

func isSpoolFile(name string) bool {
	if strings.HasPrefix(name, ".") {
		return false
	}
	for _, ext := range Extensions {
		if strings.HasSuffix(name, ext) {
			return true
		}
	}
	return false
}
