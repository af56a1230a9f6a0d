// Package scheduler fires job runs on fixed intervals using robfig/cron.
//
// Each tick hands the job to the Runner on the cron goroutine, so the cron
// timer loop never waits for a job. Overlap handling lives in the Runner.
package scheduler

import (
	"context"
	"fmt"

	"github.com/cateringhub/backoffice/internal/logging"
	"github.com/cateringhub/backoffice/internal/server/jobs"
	"github.com/robfig/cron/v3"
)

// Runner executes one job run and reports its result.
type Runner interface {
	Run(ctx context.Context, kind jobs.Kind) jobs.Result
}

type Scheduler struct {
	defs   []jobs.Definition
	runner Runner
	log    logging.Logger
	cron   *cron.Cron
}

func New(defs []jobs.Definition, runner Runner, log logging.Logger) *Scheduler {
	return &Scheduler{
		defs:   defs,
		runner: runner,
		log:    log.With("module", "scheduler"),
	}
}

// Start registers one @every entry per definition and starts the cron loop.
// Runs use ctx, so cancelling it aborts in-flight jobs.
func (s *Scheduler) Start(ctx context.Context) error {
	if s.cron != nil {
		return fmt.Errorf("scheduler already started")
	}

	adapter := cronLogger{ctx: ctx, log: s.log}
	c := cron.New(
		cron.WithLogger(adapter),
		cron.WithChain(cron.Recover(adapter)),
	)

	for _, def := range s.defs {
		if def.Interval <= 0 {
			s.log.Info(ctx, "Job not scheduled", "kind", def.Kind)
			continue
		}
		kind := def.Kind
		c.Schedule(cron.Every(def.Interval), cron.FuncJob(func() {
			s.tick(ctx, kind)
		}))
		s.log.Info(ctx, "Job scheduled", "kind", kind, "every", def.Interval)
	}

	s.cron = c
	c.Start()
	return nil
}

func (s *Scheduler) tick(ctx context.Context, kind jobs.Kind) {
	if ctx.Err() != nil {
		return
	}
	res := s.runner.Run(ctx, kind)
	if res.Status == jobs.StatusSkipped {
		s.log.Debug(ctx, "Tick skipped", "kind", kind, "reason", res.Reason)
	}
}

// Trigger runs kind immediately outside the cron schedule.
func (s *Scheduler) Trigger(ctx context.Context, kind jobs.Kind) jobs.Result {
	return s.runner.Run(ctx, kind)
}

// Stop halts the cron loop and waits for running ticks or ctx, whichever
// comes first.
func (s *Scheduler) Stop(ctx context.Context) {
	if s.cron == nil {
		return
	}
	done := s.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
		s.log.Warn(ctx, "Scheduler stop timed out with jobs still running")
	}
	s.cron = nil
}

// cronLogger adapts logging.Logger to cron.Logger.
type cronLogger struct {
	ctx context.Context
	log logging.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.log.Debug(l.ctx, msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.log.Error(l.ctx, msg, append(keysAndValues, "error", err)...)
}
