package retention

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// Run describes one completed pruning pass.
type Run struct {
	Started time.Time
	Deleted int64
	Err     error
}

// Scheduler runs a Pruner on the cron schedule in its configuration.
type Scheduler struct {
	pruner *Pruner
	cron   *cron.Cron
	logger *slog.Logger

	mu      sync.Mutex
	running bool
	last    *Run
}

// NewScheduler creates a retention scheduler for pruner. Overlapping runs
// are skipped.
func NewScheduler(pruner *Pruner) *Scheduler {
	return &Scheduler{
		pruner: pruner,
		cron:   cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
		logger: slog.Default().With("component", "export.retention.scheduler"),
	}
}

// Start schedules pruning with the configured cron expression, for example
// "0 3 * * *" for daily at 3 AM. An empty schedule disables the scheduler.
// The scheduler stops when ctx is cancelled.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	schedule := s.pruner.config.PruneSchedule
	if schedule == "" {
		s.logger.Info("prune schedule not configured, skipping scheduler")
		return nil
	}
	if s.running {
		return fmt.Errorf("retention scheduler already running")
	}

	if _, err := cron.ParseStandard(schedule); err != nil {
		return fmt.Errorf("invalid cron schedule %q: %w", schedule, err)
	}
	if _, err := s.cron.AddFunc(schedule, func() { s.RunNow(ctx) }); err != nil {
		return fmt.Errorf("failed to schedule pruning: %w", err)
	}

	s.cron.Start()
	s.running = true

	s.logger.Info("retention scheduler started",
		"schedule", schedule,
		"retention_days", s.pruner.config.Days,
		"max_records", s.pruner.config.MaxRecords,
	)

	go func() {
		<-ctx.Done()
		s.Stop()
	}()
	return nil
}

// RunNow performs one pruning pass immediately and records its outcome.
func (s *Scheduler) RunNow(ctx context.Context) Run {
	run := Run{Started: time.Now()}
	s.logger.Info("starting scheduled pruning")

	run.Deleted, run.Err = s.pruner.Prune(ctx)
	switch {
	case run.Err != nil:
		s.logger.Error("scheduled pruning failed", "error", run.Err)
	case run.Deleted > 0:
		s.logger.Info("scheduled pruning completed", "deleted_count", run.Deleted)
	default:
		s.logger.Debug("scheduled pruning completed, no records deleted")
	}

	s.mu.Lock()
	s.last = &run
	s.mu.Unlock()
	return run
}

// Stop stops the scheduler and waits for a running pass to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.mu.Unlock()

	<-s.cron.Stop().Done()
	s.logger.Info("retention scheduler stopped")
}

// IsRunning returns true if the scheduler is running.
func (s *Scheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// NextRun returns the next scheduled pruning time, or nil when nothing is
// scheduled.
func (s *Scheduler) NextRun() *time.Time {
	entries := s.cron.Entries()
	if len(entries) == 0 || entries[0].Next.IsZero() {
		return nil
	}
	next := entries[0].Next
	return &next
}

// LastRun returns the most recent pruning pass, or nil before the first.
func (s *Scheduler) LastRun() *Run {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.last == nil {
		return nil
	}
	r := *s.last
	return &r
}
