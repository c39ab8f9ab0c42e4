// Package scheduler is the Scheduler (E2): a thin robfig/cron wrapper that
// dispatches the Decision Engine and Maintenance Loop on independent
// intervals.
package scheduler

import (
	"context"
	"log/slog"

	"github.com/robfig/cron/v3"
)

// Job is a named, independently scheduled unit of work.
type Job interface {
	Run(ctx context.Context) error
	Name() string
}

// Scheduler manages the background decision and maintenance passes.
type Scheduler struct {
	cron *cron.Cron
	log  *slog.Logger
	ctx  context.Context
}

// New creates a Scheduler. ctx is the daemon's root context, passed to
// every job invocation so a shutdown cancels in-flight passes.
func New(ctx context.Context, log *slog.Logger) *Scheduler {
	return &Scheduler{
		cron: cron.New(cron.WithSeconds()),
		log:  log,
		ctx:  ctx,
	}
}

// Start begins dispatching registered jobs.
func (s *Scheduler) Start() {
	s.cron.Start()
	s.log.Info("scheduler started")
}

// Stop waits for in-flight job invocations to finish and halts dispatch.
func (s *Scheduler) Stop() {
	stopCtx := s.cron.Stop()
	<-stopCtx.Done()
	s.log.Info("scheduler stopped")
}

// AddJob registers job on a standard five-field-plus-seconds cron
// schedule (e.g. "0 */5 * * * *" for every five minutes, "@every 30s").
func (s *Scheduler) AddJob(schedule string, job Job) error {
	_, err := s.cron.AddFunc(schedule, func() {
		s.log.Debug("running scheduled job", "job", job.Name())
		if err := job.Run(s.ctx); err != nil {
			s.log.Error("scheduled job failed", "job", job.Name(), "error", err)
			return
		}
		s.log.Debug("scheduled job completed", "job", job.Name())
	})
	if err != nil {
		return err
	}
	s.log.Info("job registered", "schedule", schedule, "job", job.Name())
	return nil
}

// RunNow executes job immediately, outside its schedule — used by the
// CLI's single-pass "analyze"/"maintain" subcommands.
func (s *Scheduler) RunNow(job Job) error {
	s.log.Info("running job immediately", "job", job.Name())
	return job.Run(s.ctx)
}
