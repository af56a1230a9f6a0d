package jobs

import (
	"context"
	"errors"
	"os/exec"
	"testing"
	"time"

	"github.com/cateringhub/backoffice/internal/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInProcessExecutor_Success(t *testing.T) {
	e := NewInProcessExecutor(NewTasks(&fakeCleaner{removed: 7}, &fakeGenerator{}))

	out, err := e.Execute(context.Background(), KindCleanupTokens)
	require.NoError(t, err)
	assert.Equal(t, int64(7), out.Count)
}

func TestInProcessExecutor_TaskError(t *testing.T) {
	e := NewInProcessExecutor(NewTasks(&fakeCleaner{err: errors.New("db down")}, &fakeGenerator{}))

	_, err := e.Execute(context.Background(), KindCleanupTokens)
	assert.EqualError(t, err, "db down")
}

func TestInProcessExecutor_Timeout(t *testing.T) {
	cleaner := &fakeCleaner{block: make(chan struct{})}
	defer close(cleaner.block)
	e := NewInProcessExecutor(NewTasks(cleaner, &fakeGenerator{}))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := e.Execute(ctx, KindCleanupTokens)
	assert.ErrorIs(t, err, common.ErrJobTimeout)
	assert.Less(t, time.Since(start), 2*time.Second)
}

type panickingGenerator struct{}

func (panickingGenerator) GenerateOccurrences(context.Context, time.Time) (int, error) {
	panic("nil map")
}

func TestInProcessExecutor_RecoversPanic(t *testing.T) {
	e := NewInProcessExecutor(NewTasks(&fakeCleaner{}, panickingGenerator{}))

	_, err := e.Execute(context.Background(), KindCronEvents)
	assert.ErrorIs(t, err, common.ErrJobPanicked)
	assert.ErrorContains(t, err, "nil map")
}

func TestInProcessExecutor_UnknownKind(t *testing.T) {
	e := NewInProcessExecutor(NewTasks(&fakeCleaner{}, &fakeGenerator{}))

	_, err := e.Execute(context.Background(), "reindex")
	assert.ErrorIs(t, err, common.ErrUnknownJob)
}

// shExecutor runs script with sh; the job command and --scheduled arrive
// as $1 and $2.
func shExecutor(t *testing.T, script string) *SubprocessExecutor {
	t.Helper()
	sh, err := exec.LookPath("sh")
	if err != nil {
		t.Skip("sh not available")
	}
	e, err := NewSubprocessExecutor(WithBinary(sh, "-c", script, "sh"), WithWaitDelay(200*time.Millisecond))
	require.NoError(t, err)
	return e
}

func TestSubprocessExecutor_PassesCommandAndDecodesReport(t *testing.T) {
	e := shExecutor(t, `[ "$1" = "cron-job" ] && [ "$2" = "--scheduled" ] || exit 9
echo "starting"
echo '{"kind":"cron-generic","status":"succeeded","count":5,"steps":[{"name":"cleanup-tokens","status":"succeeded","count":5}]}'`)

	out, err := e.Execute(context.Background(), KindCronGeneric)
	require.NoError(t, err)
	assert.Equal(t, int64(5), out.Count)
	require.Len(t, out.Steps, 1)
	assert.Contains(t, out.Output, "starting")
}

func TestSubprocessExecutor_NonZeroExit(t *testing.T) {
	e := shExecutor(t, `echo "partial" ; echo "connection refused" >&2 ; exit 1`)

	out, err := e.Execute(context.Background(), KindCleanupTokens)
	assert.ErrorIs(t, err, common.ErrJobNonZeroExit)
	assert.ErrorContains(t, err, "exit code 1")
	assert.ErrorContains(t, err, "connection refused")
	assert.Contains(t, out.Output, "partial")
	assert.Contains(t, out.Output, "connection refused")
}

func TestSubprocessExecutor_TimeoutKillsChild(t *testing.T) {
	e := shExecutor(t, `exec sleep 30`)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := e.Execute(ctx, KindCronEvents)
	assert.ErrorIs(t, err, common.ErrJobTimeout)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestSubprocessExecutor_MissingBinary(t *testing.T) {
	e, err := NewSubprocessExecutor(WithBinary("/nonexistent/backoffice"))
	require.NoError(t, err)

	_, err = e.Execute(context.Background(), KindCleanupTokens)
	require.Error(t, err)
	assert.NotErrorIs(t, err, common.ErrJobNonZeroExit)
}

func TestSubprocessExecutor_DefaultsToSelf(t *testing.T) {
	e, err := NewSubprocessExecutor(WithArgs("--config", "/etc/backoffice.yaml"))
	require.NoError(t, err)
	assert.NotEmpty(t, e.binary)
	assert.Equal(t, []string{"--config", "/etc/backoffice.yaml"}, e.args)
}

func TestDecodeReport(t *testing.T) {
	_, ok := DecodeReport([]byte("no json here\n{not json}\n"))
	assert.False(t, ok)

	r, ok := DecodeReport([]byte(`{"kind":"cleanup-tokens","count":1}` + "\n" + `{"kind":"cleanup-tokens","count":2}` + "\n"))
	require.True(t, ok)
	assert.Equal(t, int64(2), r.Count)
}
