// Package scheduler runs periodic recap jobs: cron-scheduled summaries
// of a configured session, posted back through a messaging channel.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
)

// Job is one scheduled recap definition.
type Job struct {
	// ID is the internal job identifier.
	ID string

	// Schedule is the cron expression (supports @daily etc.).
	Schedule string

	// Session is the session id to summarize.
	Session string

	// Window is the look-back window in seconds.
	Window int64

	// Channel and ChatID address the delivery target.
	Channel string
	ChatID  string
}

// RecapFunc produces a summary for the job's session and window.
type RecapFunc func(ctx context.Context, job *Job) (string, error)

// DeliverFunc posts a finished recap to the job's target chat.
type DeliverFunc func(ctx context.Context, job *Job, text string) error

// Scheduler drives periodic recaps with cron.
type Scheduler struct {
	cron    *cron.Cron
	recap   RecapFunc
	deliver DeliverFunc
	logger  *slog.Logger
	ctx     context.Context
}

// New creates a scheduler. recap and deliver must be non-nil.
func New(recap RecapFunc, deliver DeliverFunc, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		cron:    cron.New(),
		recap:   recap,
		deliver: deliver,
		logger:  logger.With("component", "scheduler"),
	}
}

// Add registers a recap job. A zero window defaults to 24 hours.
func (s *Scheduler) Add(job Job) (*Job, error) {
	if job.Session == "" {
		return nil, fmt.Errorf("scheduled recap needs a session")
	}
	if job.Window <= 0 {
		job.Window = 24 * 60 * 60
	}
	job.ID = uuid.NewString()

	registered := job
	if _, err := s.cron.AddFunc(job.Schedule, func() { s.run(&registered) }); err != nil {
		return nil, fmt.Errorf("invalid schedule %q: %w", job.Schedule, err)
	}

	s.logger.Info("recap job registered",
		"job_id", job.ID,
		"schedule", job.Schedule,
		"session", job.Session,
	)
	return &registered, nil
}

// AddMaintenance registers a housekeeping function on a cron spec.
func (s *Scheduler) AddMaintenance(spec string, fn func()) error {
	if _, err := s.cron.AddFunc(spec, fn); err != nil {
		return fmt.Errorf("invalid maintenance schedule %q: %w", spec, err)
	}
	return nil
}

// Start begins executing jobs.
func (s *Scheduler) Start(ctx context.Context) {
	s.ctx = ctx
	s.cron.Start()
	s.logger.Info("scheduler started", "entries", len(s.cron.Entries()))
}

// Stop halts the scheduler and waits for running jobs.
func (s *Scheduler) Stop() {
	stopCtx := s.cron.Stop()
	select {
	case <-stopCtx.Done():
	case <-time.After(30 * time.Second):
		s.logger.Warn("scheduler stop timed out")
	}
}

// run executes one recap job.
func (s *Scheduler) run(job *Job) {
	start := time.Now()
	logger := s.logger.With("job_id", job.ID, "session", job.Session)

	text, err := s.recap(s.ctx, job)
	if err != nil {
		logger.Error("scheduled recap failed", "error", err)
		return
	}

	if err := s.deliver(s.ctx, job, text); err != nil {
		logger.Error("scheduled recap delivery failed", "error", err)
		return
	}

	logger.Info("scheduled recap delivered",
		"duration_ms", time.Since(start).Milliseconds())
}
