// Package jobs runs the back-office maintenance jobs: refresh token cleanup,
// recurring event generation, and the cron batch that chains them. A Runner
// guarantees at most one run per job kind at a time, bounds each run with a
// timeout, and reports results to sinks.
package jobs

import (
	"fmt"
	"time"

	"github.com/cateringhub/backoffice/internal/common"
	"github.com/cateringhub/backoffice/internal/server/config"
)

// Kind names a job.
type Kind string

const (
	KindCleanupTokens Kind = "cleanup-tokens"
	KindCronEvents    Kind = "cron-events"
	KindCronGeneric   Kind = "cron-generic"
)

// Kinds lists every job kind in schedule order.
var Kinds = []Kind{KindCleanupTokens, KindCronGeneric, KindCronEvents}

// Command returns the CLI command that runs the job.
func (k Kind) Command() string {
	switch k {
	case KindCronGeneric:
		return "cron-job"
	case KindCronEvents:
		return "cron-job-events"
	default:
		return string(k)
	}
}

// ParseKind accepts a kind or its CLI command name.
func ParseKind(s string) (Kind, error) {
	for _, k := range Kinds {
		if s == string(k) || s == k.Command() {
			return k, nil
		}
	}
	return "", fmt.Errorf("%w: %q", common.ErrUnknownJob, s)
}

// Definition is a statically scheduled job.
type Definition struct {
	Kind     Kind
	Interval time.Duration
	Timeout  time.Duration
}

// Definitions builds the job schedule from configuration.
func Definitions(cfg *config.Config) []Definition {
	return []Definition{
		{Kind: KindCleanupTokens, Interval: cfg.CleanupInterval, Timeout: cfg.CleanupTimeout},
		{Kind: KindCronGeneric, Interval: cfg.CronInterval, Timeout: cfg.CronTimeout},
		{Kind: KindCronEvents, Interval: cfg.EventsInterval, Timeout: cfg.EventsTimeout},
	}
}

// ExecContext tells a run whether it was started by the scheduler or by
// an operator. It only affects logging and reporting.
type ExecContext string

const (
	ExecInteractive ExecContext = "interactive"
	ExecScheduled   ExecContext = "scheduled"
)

// Status is the terminal state of a run.
type Status string

const (
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
	StatusSkipped   Status = "skipped"
)

// StepResult reports one step of a multi-step job.
type StepResult struct {
	Name     string        `json:"name"`
	Status   Status        `json:"status"`
	Reason   string        `json:"reason,omitempty"`
	Count    int64         `json:"count"`
	Duration time.Duration `json:"duration_ns"`
}

// Outcome is what an executor hands back for a finished run.
type Outcome struct {
	Count  int64        `json:"count"`
	Steps  []StepResult `json:"steps,omitempty"`
	Output string       `json:"-"`

	// pending is closed when work abandoned by Execute has stopped.
	pending <-chan struct{}
}

// Result is the report of one run.
type Result struct {
	RunID       string       `json:"run_id"`
	Kind        Kind         `json:"kind"`
	ExecContext ExecContext  `json:"exec_context"`
	Status      Status       `json:"status"`
	Reason      string       `json:"reason,omitempty"`
	Started     time.Time    `json:"started"`
	Finished    time.Time    `json:"finished"`
	Count       int64        `json:"count"`
	Steps       []StepResult `json:"steps,omitempty"`
	Output      string       `json:"output,omitempty"`

	// Err is the failure cause for errors.Is checks. Not serialized.
	Err error `json:"-"`
}

// Duration is the wall-clock time of the run.
func (r Result) Duration() time.Duration {
	return r.Finished.Sub(r.Started)
}

// StatusLine is the one-line summary printed by the job commands.
func (r Result) StatusLine() string {
	switch r.Status {
	case StatusSucceeded:
		return fmt.Sprintf("%s: %s (count=%d, took %s)", r.Kind.Command(), r.Status, r.Count, r.Duration().Round(time.Millisecond))
	default:
		return fmt.Sprintf("%s: %s: %s", r.Kind.Command(), r.Status, r.Reason)
	}
}
