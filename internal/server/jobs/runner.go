package jobs

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/cateringhub/backoffice/internal/common"
	"github.com/cateringhub/backoffice/internal/logging"
	"github.com/google/uuid"
)

// Sink receives every finished run. Sink errors are logged, never returned
// to the caller of Run.
type Sink interface {
	Record(ctx context.Context, res Result) error
}

// Runner executes jobs with a per-kind concurrency guard and timeout.
//
// A kind that is still running when triggered again is not queued: the new
// trigger returns immediately with StatusSkipped. A run that timed out but
// left its task running keeps the kind busy until the task returns.
type Runner struct {
	defs    map[Kind]Definition
	running map[Kind]*atomic.Bool
	exec    Executor
	execCtx ExecContext
	sinks   []Sink
	log     logging.Logger
	now     func() time.Time
}

func NewRunner(defs []Definition, exec Executor, execCtx ExecContext, log logging.Logger, sinks ...Sink) *Runner {
	r := &Runner{
		defs:    make(map[Kind]Definition, len(defs)),
		running: make(map[Kind]*atomic.Bool, len(defs)),
		exec:    exec,
		execCtx: execCtx,
		sinks:   sinks,
		log:     log.With("module", "jobs", "exec_context", string(execCtx)),
		now:     time.Now,
	}
	for _, d := range defs {
		r.defs[d.Kind] = d
		r.running[d.Kind] = &atomic.Bool{}
	}
	return r
}

// Definition returns the schedule entry for kind.
func (r *Runner) Definition(kind Kind) (Definition, bool) {
	d, ok := r.defs[kind]
	return d, ok
}

// Run executes kind once and returns its result. It never panics and never
// returns an error: failures are reported in the Result.
func (r *Runner) Run(ctx context.Context, kind Kind) Result {
	res := Result{
		RunID:       uuid.NewString(),
		Kind:        kind,
		ExecContext: r.execCtx,
		Started:     r.now(),
	}
	log := r.log.With("kind", string(kind), "run_id", res.RunID)

	def, ok := r.defs[kind]
	if !ok {
		return r.finish(ctx, log, res, Outcome{}, fmt.Errorf("%w: %q", common.ErrUnknownJob, kind))
	}

	guard := r.running[kind]
	if !guard.CompareAndSwap(false, true) {
		res.Status = StatusSkipped
		res.Reason = common.ErrJobAlreadyRunning.Error()
		res.Err = common.ErrJobAlreadyRunning
		res.Finished = r.now()
		log.Warn(ctx, "job trigger dropped, previous run still in progress")
		r.record(ctx, log, res)
		return res
	}
	var pending <-chan struct{}
	defer func() { release(guard, pending) }()

	log.Info(ctx, "job started", "timeout", def.Timeout.String())

	runCtx, cancel := context.WithTimeout(ctx, def.Timeout)
	defer cancel()

	out, err := r.exec.Execute(runCtx, kind)
	if out.pending != nil {
		pending = out.pending
		log.Warn(ctx, "job abandoned after timeout, kind stays busy until it returns")
	}
	if errors.Is(err, common.ErrJobTimeout) {
		err = fmt.Errorf("%w after %s", err, def.Timeout)
	}
	return r.finish(ctx, log, res, out, err)
}

// release frees a kind's guard once nothing of its run is executing.
func release(guard *atomic.Bool, pending <-chan struct{}) {
	if pending == nil {
		guard.Store(false)
		return
	}
	go func() {
		<-pending
		guard.Store(false)
	}()
}

// Running reports whether a run of kind is in progress.
func (r *Runner) Running(kind Kind) bool {
	g, ok := r.running[kind]
	return ok && g.Load()
}

func (r *Runner) finish(ctx context.Context, log logging.Logger, res Result, out Outcome, err error) Result {
	res.Finished = r.now()
	res.Count = out.Count
	res.Steps = out.Steps
	res.Output = out.Output

	if err != nil {
		res.Status = StatusFailed
		res.Reason = err.Error()
		res.Err = err
		log.Error(ctx, "job failed", "error", err, "duration", res.Duration().String(), "output", res.Output)
	} else {
		res.Status = StatusSucceeded
		log.Info(ctx, "job succeeded", "count", res.Count, "duration", res.Duration().String())
	}

	r.record(ctx, log, res)
	return res
}

func (r *Runner) record(ctx context.Context, log logging.Logger, res Result) {
	// detached from the run's cancellation, with its own deadline
	sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()

	for _, s := range r.sinks {
		if err := s.Record(sctx, res); err != nil {
			log.Warn(ctx, "job result sink failed", "sink", fmt.Sprintf("%T", s), "error", err)
		}
	}
}
