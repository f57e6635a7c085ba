package batch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"mercator-hq/exporter/pkg/telemetry/logging"

	"github.com/robfig/cron/v3"
)

// Job is a named batch run on a cron schedule.
type Job struct {
	Name     string
	Schedule string
	Run      func(ctx context.Context) (*Report, error)
}

// Scheduler runs export jobs on their cron schedules. A job that is still
// running when its next tick arrives skips that tick.
type Scheduler struct {
	cron    *cron.Cron
	mu      sync.Mutex
	logger  *slog.Logger
	jobs    map[string]Job
	entries map[string]cron.EntryID
	last    map[string]*Report
	running bool
}

// NewScheduler creates an empty scheduler.
func NewScheduler() *Scheduler {
	return &Scheduler{
		cron:    cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
		logger:  slog.Default().With("component", "export.scheduler"),
		jobs:    make(map[string]Job),
		entries: make(map[string]cron.EntryID),
		last:    make(map[string]*Report),
	}
}

// Add registers a job. The schedule uses the standard five field cron
// syntax or a descriptor such as "@hourly".
//
// Jobs must be added before Start.
func (s *Scheduler) Add(job Job) error {
	if job.Name == "" {
		return errors.New("job name is required")
	}
	if job.Run == nil {
		return fmt.Errorf("job %q: run function is required", job.Name)
	}
	if _, err := cron.ParseStandard(job.Schedule); err != nil {
		return fmt.Errorf("job %q: invalid cron schedule %q: %w", job.Name, job.Schedule, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return fmt.Errorf("job %q: scheduler already started", job.Name)
	}
	if _, ok := s.jobs[job.Name]; ok {
		return fmt.Errorf("job %q: already registered", job.Name)
	}
	s.jobs[job.Name] = job
	return nil
}

// Start schedules every registered job. Jobs run with ctx, and the
// scheduler stops when ctx is cancelled.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return nil
	}
	if len(s.jobs) == 0 {
		s.logger.Info("no export jobs configured, skipping scheduler")
		return nil
	}

	for name, job := range s.jobs {
		id, err := s.cron.AddFunc(job.Schedule, func() {
			s.run(ctx, job)
		})
		if err != nil {
			return fmt.Errorf("failed to schedule job %q: %w", name, err)
		}
		s.entries[name] = id
	}

	s.cron.Start()
	s.running = true
	s.logger.Info("export scheduler started", "jobs", len(s.jobs))

	go func() {
		<-ctx.Done()
		s.Stop()
	}()
	return nil
}

// RunNow runs the named job immediately, outside its schedule.
func (s *Scheduler) RunNow(ctx context.Context, name string) (*Report, error) {
	s.mu.Lock()
	job, ok := s.jobs[name]
	s.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("unknown job %q", name)
	}
	return s.run(ctx, job)
}

func (s *Scheduler) run(ctx context.Context, job Job) (*Report, error) {
	ctx = logging.WithJob(ctx, job.Name)
	s.logger.InfoContext(ctx, "starting scheduled export")

	report, err := job.Run(ctx)
	if report != nil {
		s.mu.Lock()
		s.last[job.Name] = report
		s.mu.Unlock()
	}
	if err != nil {
		s.logger.ErrorContext(ctx, "scheduled export failed", "error", err)
		return report, err
	}

	if report != nil {
		s.logger.InfoContext(ctx, "scheduled export completed",
			"batch_id", report.BatchID,
			"exported", report.Exported,
			"failed", report.Failed,
		)
	}
	return report, nil
}

// Stop stops the scheduler and waits for running jobs to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.mu.Unlock()

	// Running jobs record their report under mu, so wait unlocked.
	<-s.cron.Stop().Done()
	s.logger.Info("export scheduler stopped")
}

// IsRunning reports whether the scheduler has been started and not stopped.
func (s *Scheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// NextRun returns the next scheduled run of the named job, or nil when the
// job is unknown or the scheduler is not running.
func (s *Scheduler) NextRun(name string) *time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.entries[name]
	if !ok || !s.running {
		return nil
	}
	next := s.cron.Entry(id).Next
	return &next
}

// LastReport returns the report of the job's most recent run.
func (s *Scheduler) LastReport(name string) (*Report, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.last[name]
	return r, ok
}
