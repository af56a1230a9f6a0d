package jobs

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"runtime/debug"
	"strings"
	"time"

	"github.com/cateringhub/backoffice/internal/common"
)

// Executor runs one job to completion or until ctx is done. The context
// carries the run's deadline; exceeding it yields common.ErrJobTimeout.
type Executor interface {
	Execute(ctx context.Context, kind Kind) (Outcome, error)
}

// InProcessExecutor runs tasks on a goroutine in the current process.
// On timeout Execute returns at once with its context cancelled. A task that
// ignores cancellation keeps running; the returned Outcome then carries a
// channel that is closed when it finally returns.
type InProcessExecutor struct {
	tasks *Tasks
}

func NewInProcessExecutor(tasks *Tasks) *InProcessExecutor {
	return &InProcessExecutor{tasks: tasks}
}

type taskResult struct {
	out Outcome
	err error
}

func (e *InProcessExecutor) Execute(ctx context.Context, kind Kind) (Outcome, error) {
	task, err := e.tasks.For(kind)
	if err != nil {
		return Outcome{}, err
	}

	done := make(chan taskResult, 1)
	exited := make(chan struct{})
	go func() {
		defer close(exited)
		defer func() {
			if p := recover(); p != nil {
				done <- taskResult{err: fmt.Errorf("%w: %v\n%s", common.ErrJobPanicked, p, debug.Stack())}
			}
		}()
		out, err := task(ctx)
		done <- taskResult{out: out, err: err}
	}()

	select {
	case res := <-done:
		if res.err != nil && errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return res.out, fmt.Errorf("%w: %w", common.ErrJobTimeout, res.err)
		}
		return res.out, res.err
	case <-ctx.Done():
		return Outcome{pending: exited}, contextError(ctx)
	}
}

// SubprocessExecutor runs each job as a child process of the backoffice
// binary: `<binary> <args...> <command> --scheduled`. The child gets no
// stdin; stdout and stderr are captured. On timeout the child is killed.
type SubprocessExecutor struct {
	binary    string
	args      []string
	env       []string
	waitDelay time.Duration
}

// SubprocessOption customizes a SubprocessExecutor.
type SubprocessOption func(*SubprocessExecutor)

// WithBinary replaces the executable, which defaults to the running binary.
func WithBinary(path string, args ...string) SubprocessOption {
	return func(e *SubprocessExecutor) {
		e.binary = path
		e.args = args
	}
}

// WithArgs appends global arguments, such as --config, passed before the
// job command.
func WithArgs(args ...string) SubprocessOption {
	return func(e *SubprocessExecutor) { e.args = append(e.args, args...) }
}

// WithEnv adds environment variables to the child.
func WithEnv(env ...string) SubprocessOption {
	return func(e *SubprocessExecutor) { e.env = append(e.env, env...) }
}

// WithWaitDelay bounds how long to wait for output pipes after the child
// is killed.
func WithWaitDelay(d time.Duration) SubprocessOption {
	return func(e *SubprocessExecutor) { e.waitDelay = d }
}

func NewSubprocessExecutor(opts ...SubprocessOption) (*SubprocessExecutor, error) {
	e := &SubprocessExecutor{waitDelay: 5 * time.Second}
	for _, o := range opts {
		o(e)
	}
	if e.binary == "" {
		self, err := os.Executable()
		if err != nil {
			return nil, fmt.Errorf("locate executable: %w", err)
		}
		e.binary = self
	}
	return e, nil
}

func (e *SubprocessExecutor) Execute(ctx context.Context, kind Kind) (Outcome, error) {
	if _, err := ParseKind(string(kind)); err != nil {
		return Outcome{}, err
	}

	args := append(append([]string{}, e.args...), kind.Command(), "--scheduled")
	cmd := exec.CommandContext(ctx, e.binary, args...)
	cmd.Stdin = nil
	cmd.Env = append(os.Environ(), e.env...)
	cmd.WaitDelay = e.waitDelay

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	runErr := cmd.Run()

	out := Outcome{Output: combineOutput(stdout.String(), stderr.String())}
	if report, ok := DecodeReport(stdout.Bytes()); ok {
		out.Count = report.Count
		out.Steps = report.Steps
	}

	if ctx.Err() != nil {
		return out, contextError(ctx)
	}
	if runErr != nil {
		var exitErr *exec.ExitError
		if errors.As(runErr, &exitErr) {
			return out, fmt.Errorf("%w: exit code %d: %s", common.ErrJobNonZeroExit, exitErr.ExitCode(), lastLine(stderr.String()))
		}
		return out, fmt.Errorf("start %s: %w", e.binary, runErr)
	}
	return out, nil
}

// DecodeReport finds the last stdout line that is a JSON Result.
func DecodeReport(stdout []byte) (Result, bool) {
	var (
		found Result
		ok    bool
	)
	sc := bufio.NewScanner(bytes.NewReader(stdout))
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for sc.Scan() {
		line := bytes.TrimSpace(sc.Bytes())
		if len(line) == 0 || line[0] != '{' {
			continue
		}
		var r Result
		if err := json.Unmarshal(line, &r); err == nil && r.Kind != "" {
			found, ok = r, true
		}
	}
	return found, ok
}

func contextError(ctx context.Context) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return common.ErrJobTimeout
	}
	return ctx.Err()
}

func combineOutput(stdout, stderr string) string {
	switch {
	case stderr == "":
		return stdout
	case stdout == "":
		return stderr
	default:
		return stdout + "\n--- stderr ---\n" + stderr
	}
}

func lastLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.LastIndexByte(s, '\n'); i >= 0 {
		return s[i+1:]
	}
	return s
}
