// Package scheduler triggers periodic backlog drains with robfig/cron.
package scheduler

import (
	"context"
	"fmt"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Job is the work run on every tick.
type Job func(ctx context.Context)

// Scheduler wraps robfig/cron for a single recurring job.
type Scheduler struct {
	cron   *cron.Cron
	spec   string
	job    Job
	logger *zap.Logger
}

// New creates a Scheduler running job on spec, e.g. "@every 1m".
// Overlapping ticks are skipped while a previous run is still in progress.
func New(spec string, job Job, logger *zap.Logger) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	cl := cronLogger{logger: logger.Sugar()}
	return &Scheduler{
		cron:   cron.New(cron.WithLogger(cl), cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl))),
		spec:   spec,
		job:    job,
		logger: logger,
	}
}

// Start registers the job, starts the scheduler and runs the job once
// immediately in the background.
func (s *Scheduler) Start(ctx context.Context) error {
	if s.job == nil {
		return fmt.Errorf("scheduler job is nil")
	}
	if _, err := s.cron.AddFunc(s.spec, func() { s.job(ctx) }); err != nil {
		return fmt.Errorf("cron.AddFunc: %w", err)
	}
	s.cron.Start()
	s.logger.Info("scheduler started", zap.String("spec", s.spec))

	go s.job(ctx)
	return nil
}

// Stop halts the scheduler and waits for a running job to return.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	s.logger.Info("scheduler stopped")
}

// cronLogger adapts zap to cron.Logger.
type cronLogger struct {
	logger *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Errorw(msg, append(keysAndValues, "error", err)...)
}
