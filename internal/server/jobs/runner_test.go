package jobs

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cateringhub/backoffice/internal/common"
	"github.com/cateringhub/backoffice/internal/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// funcExecutor adapts a function to Executor.
type funcExecutor func(ctx context.Context, kind Kind) (Outcome, error)

func (f funcExecutor) Execute(ctx context.Context, kind Kind) (Outcome, error) { return f(ctx, kind) }

type recordingSink struct {
	mu      sync.Mutex
	results []Result
	err     error
}

func (s *recordingSink) Record(_ context.Context, res Result) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.results = append(s.results, res)
	return s.err
}

func (s *recordingSink) all() []Result {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Result(nil), s.results...)
}

var testDefs = []Definition{
	{Kind: KindCleanupTokens, Interval: time.Minute, Timeout: time.Second},
	{Kind: KindCronEvents, Interval: time.Minute, Timeout: 50 * time.Millisecond},
}

func TestRunner_Success(t *testing.T) {
	sink := &recordingSink{}
	r := NewRunner(testDefs, funcExecutor(func(context.Context, Kind) (Outcome, error) {
		return Outcome{Count: 3, Output: "ok"}, nil
	}), ExecScheduled, logging.Nop(), sink)

	res := r.Run(context.Background(), KindCleanupTokens)

	assert.Equal(t, StatusSucceeded, res.Status)
	assert.Equal(t, int64(3), res.Count)
	assert.Equal(t, ExecScheduled, res.ExecContext)
	assert.NotEmpty(t, res.RunID)
	assert.False(t, res.Finished.Before(res.Started))
	assert.NoError(t, res.Err)
	require.Len(t, sink.all(), 1)
	assert.False(t, r.Running(KindCleanupTokens))
}

func TestRunner_FailureIsReportedNotReturned(t *testing.T) {
	sink := &recordingSink{err: errors.New("sink down")}
	r := NewRunner(testDefs, funcExecutor(func(context.Context, Kind) (Outcome, error) {
		return Outcome{Output: "stderr text"}, errors.New("db down")
	}), ExecInteractive, logging.Nop(), sink)

	res := r.Run(context.Background(), KindCleanupTokens)

	assert.Equal(t, StatusFailed, res.Status)
	assert.Equal(t, "db down", res.Reason)
	assert.Equal(t, "stderr text", res.Output)
	assert.Len(t, sink.all(), 1)
}

func TestRunner_DropsOverlappingTrigger(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{})
	var once sync.Once
	r := NewRunner(testDefs, funcExecutor(func(ctx context.Context, kind Kind) (Outcome, error) {
		once.Do(func() { close(started) })
		<-release
		return Outcome{Count: 1}, nil
	}), ExecScheduled, logging.Nop())

	first := make(chan Result, 1)
	go func() { first <- r.Run(context.Background(), KindCleanupTokens) }()
	<-started
	assert.True(t, r.Running(KindCleanupTokens))

	second := r.Run(context.Background(), KindCleanupTokens)
	assert.Equal(t, StatusSkipped, second.Status)
	assert.ErrorIs(t, second.Err, common.ErrJobAlreadyRunning)

	close(release)
	assert.Equal(t, StatusSucceeded, (<-first).Status)

	third := r.Run(context.Background(), KindCleanupTokens)
	assert.Equal(t, StatusSucceeded, third.Status, "guard released after the run")
}

func TestRunner_KindsAreIndependent(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{})
	r := NewRunner(testDefs, funcExecutor(func(ctx context.Context, kind Kind) (Outcome, error) {
		if kind == KindCleanupTokens {
			close(started)
			<-release
		}
		return Outcome{}, nil
	}), ExecScheduled, logging.Nop())

	done := make(chan Result, 1)
	go func() { done <- r.Run(context.Background(), KindCleanupTokens) }()
	<-started

	assert.Equal(t, StatusSucceeded, r.Run(context.Background(), KindCronEvents).Status)
	close(release)
	<-done
}

func TestRunner_Timeout(t *testing.T) {
	r := NewRunner(testDefs, funcExecutor(func(ctx context.Context, kind Kind) (Outcome, error) {
		<-ctx.Done()
		return Outcome{}, common.ErrJobTimeout
	}), ExecScheduled, logging.Nop())

	res := r.Run(context.Background(), KindCronEvents)

	assert.Equal(t, StatusFailed, res.Status)
	assert.ErrorIs(t, res.Err, common.ErrJobTimeout)
	assert.Contains(t, res.Reason, "after 50ms")
	assert.False(t, r.Running(KindCronEvents))
}

func TestRunner_InProcessTimeoutEndToEnd(t *testing.T) {
	cleaner := &fakeCleaner{block: make(chan struct{})}
	defer close(cleaner.block)
	defs := []Definition{{Kind: KindCleanupTokens, Timeout: 30 * time.Millisecond}}
	r := NewRunner(defs, NewInProcessExecutor(NewTasks(cleaner, &fakeGenerator{})), ExecScheduled, logging.Nop())

	res := r.Run(context.Background(), KindCleanupTokens)
	assert.Equal(t, StatusFailed, res.Status)
	assert.ErrorIs(t, res.Err, common.ErrJobTimeout)
}

// stubbornCleaner ignores cancellation until release is closed.
type stubbornCleaner struct {
	release chan struct{}
	active  atomic.Int32
	peak    atomic.Int32
}

func (c *stubbornCleaner) CleanupExpired(context.Context, time.Time) (int64, error) {
	n := c.active.Add(1)
	defer c.active.Add(-1)
	for {
		p := c.peak.Load()
		if n <= p || c.peak.CompareAndSwap(p, n) {
			break
		}
	}
	<-c.release
	return 1, nil
}

func TestRunner_AbandonedRunKeepsKindBusy(t *testing.T) {
	cleaner := &stubbornCleaner{release: make(chan struct{})}
	defs := []Definition{{Kind: KindCleanupTokens, Timeout: 30 * time.Millisecond}}
	r := NewRunner(defs, NewInProcessExecutor(NewTasks(cleaner, &fakeGenerator{})), ExecScheduled, logging.Nop())

	first := r.Run(context.Background(), KindCleanupTokens)
	assert.Equal(t, StatusFailed, first.Status)
	assert.ErrorIs(t, first.Err, common.ErrJobTimeout)
	assert.True(t, r.Running(KindCleanupTokens))

	second := r.Run(context.Background(), KindCleanupTokens)
	assert.Equal(t, StatusSkipped, second.Status)
	assert.ErrorIs(t, second.Err, common.ErrJobAlreadyRunning)

	close(cleaner.release)
	require.Eventually(t, func() bool { return !r.Running(KindCleanupTokens) }, 2*time.Second, 5*time.Millisecond)

	third := r.Run(context.Background(), KindCleanupTokens)
	assert.Equal(t, StatusSucceeded, third.Status)
	assert.Equal(t, int32(1), cleaner.peak.Load())
}

func TestRunner_UnknownKind(t *testing.T) {
	r := NewRunner(testDefs, funcExecutor(func(context.Context, Kind) (Outcome, error) {
		t.Fatal("executor must not be called")
		return Outcome{}, nil
	}), ExecInteractive, logging.Nop())

	res := r.Run(context.Background(), KindCronGeneric)
	assert.Equal(t, StatusFailed, res.Status)
	assert.ErrorIs(t, res.Err, common.ErrUnknownJob)
}

func TestDefinitions(t *testing.T) {
	r := NewRunner(testDefs, nil, ExecInteractive, logging.Nop())
	d, ok := r.Definition(KindCronEvents)
	require.True(t, ok)
	assert.Equal(t, 50*time.Millisecond, d.Timeout)
}
