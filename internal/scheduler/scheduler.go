package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/go-co-op/gocron"
)

// Mode is fixed when the Scheduler is created.
type Mode int

const (
	OneShot Mode = iota
	Recurring
)

func (m Mode) String() string {
	if m == Recurring {
		return "recurring"
	}
	return "one-shot"
}

// Job is one import run.
type Job func(ctx context.Context)

// Scheduler runs a job once, or on a cron expression until stopped.
// Recurring runs are allowed to overlap.
type Scheduler struct {
	cron   string
	job    Job
	logger *slog.Logger

	mu     sync.Mutex
	sched  *gocron.Scheduler
	cancel context.CancelFunc
}

// New creates a Scheduler. An empty cron expression selects one-shot mode.
// Five-field expressions are standard cron; six fields add a leading seconds field.
func New(cron string, job Job, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		cron:   strings.TrimSpace(cron),
		job:    job,
		logger: logger,
	}
}

func (s *Scheduler) Mode() Mode {
	if s.cron == "" {
		return OneShot
	}
	return Recurring
}

// Start runs the job synchronously in one-shot mode. In recurring mode it
// registers the job and returns immediately; an invalid expression is an error.
func (s *Scheduler) Start(ctx context.Context) error {
	if s.Mode() == OneShot {
		s.logger.Info("running one-shot import")
		s.job(ctx)
		s.logger.Info("one-shot import complete")
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sched != nil {
		return errors.New("scheduler already started")
	}

	runCtx, cancel := context.WithCancel(ctx)
	sched := gocron.NewScheduler(time.Local)

	var builder *gocron.Scheduler
	if len(strings.Fields(s.cron)) == 6 {
		builder = sched.CronWithSeconds(s.cron)
	} else {
		builder = sched.Cron(s.cron)
	}
	job, err := builder.Do(func() {
		s.job(runCtx)
	})
	if err != nil {
		cancel()
		return fmt.Errorf("schedule %q: %w", s.cron, err)
	}

	sched.StartAsync()
	s.sched = sched
	s.cancel = cancel

	s.logger.Info("import scheduled", "cron", s.cron, "next_run", job.NextRun())
	return nil
}

// Stop cancels the context handed to running jobs, then stops the underlying
// scheduler so no further runs start.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sched == nil {
		return
	}
	s.cancel()
	s.sched.Stop()
	s.sched = nil
	s.logger.Info("scheduler stopped")
}
