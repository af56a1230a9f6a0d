package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/cateringhub/backoffice/internal/common"
)

// Task is the body of a job.
type Task func(ctx context.Context) (Outcome, error)

// Step is one named task in an ordered batch.
type Step struct {
	Name string
	Run  Task
}

// TokenCleaner removes expired refresh tokens.
type TokenCleaner interface {
	CleanupExpired(ctx context.Context, asOf time.Time) (int64, error)
}

// OccurrenceGenerator materializes recurring event occurrences.
type OccurrenceGenerator interface {
	GenerateOccurrences(ctx context.Context, now time.Time) (int, error)
}

// Tasks maps job kinds to their in-process implementations.
type Tasks struct {
	tokens TokenCleaner
	events OccurrenceGenerator
	now    func() time.Time
}

func NewTasks(tokens TokenCleaner, events OccurrenceGenerator) *Tasks {
	return &Tasks{tokens: tokens, events: events, now: time.Now}
}

// For returns the task for kind.
func (t *Tasks) For(kind Kind) (Task, error) {
	switch kind {
	case KindCleanupTokens:
		return t.cleanupTokens, nil
	case KindCronEvents:
		return t.generateEvents, nil
	case KindCronGeneric:
		return func(ctx context.Context) (Outcome, error) {
			return RunSteps(ctx, []Step{
				{Name: string(KindCleanupTokens), Run: t.cleanupTokens},
				{Name: string(KindCronEvents), Run: t.generateEvents},
			})
		}, nil
	default:
		return nil, fmt.Errorf("%w: %q", common.ErrUnknownJob, kind)
	}
}

func (t *Tasks) cleanupTokens(ctx context.Context) (Outcome, error) {
	n, err := t.tokens.CleanupExpired(ctx, t.now())
	return Outcome{Count: n}, err
}

func (t *Tasks) generateEvents(ctx context.Context) (Outcome, error) {
	n, err := t.events.GenerateOccurrences(ctx, t.now())
	return Outcome{Count: int64(n)}, err
}

// RunSteps runs steps in order and stops at the first failure. The outcome
// lists every step: those that ran with their status, the rest as skipped.
// Count is the sum over succeeded steps.
func RunSteps(ctx context.Context, steps []Step) (Outcome, error) {
	out := Outcome{Steps: make([]StepResult, 0, len(steps))}
	var failed error

	for _, step := range steps {
		if failed != nil {
			out.Steps = append(out.Steps, StepResult{Name: step.Name, Status: StatusSkipped, Reason: "previous step failed"})
			continue
		}
		if err := ctx.Err(); err != nil {
			failed = fmt.Errorf("step %s: %w", step.Name, err)
			out.Steps = append(out.Steps, StepResult{Name: step.Name, Status: StatusFailed, Reason: err.Error()})
			continue
		}

		start := time.Now()
		res, err := step.Run(ctx)
		sr := StepResult{Name: step.Name, Count: res.Count, Duration: time.Since(start)}
		if err != nil {
			sr.Status = StatusFailed
			sr.Reason = err.Error()
			failed = fmt.Errorf("step %s: %w", step.Name, err)
		} else {
			sr.Status = StatusSucceeded
			out.Count += res.Count
		}
		out.Steps = append(out.Steps, sr)
	}
	return out, failed
}
