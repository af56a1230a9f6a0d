package server

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/cateringhub/backoffice/internal/logging"
	"github.com/cateringhub/backoffice/internal/server/config"
	"github.com/cateringhub/backoffice/internal/server/jobs"
	"github.com/cateringhub/backoffice/internal/server/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func memoryConfig() *config.Config {
	var c config.Config
	c.LoadDefaults()
	c.Store = config.StoreMemory
	c.SecretKey = "test-secret"
	c.HTTPAddr = "127.0.0.1:0"
	c.GRPCAddr = "127.0.0.1:0"
	return &c
}

func newMemoryApp(t *testing.T, c *config.Config) *App {
	t.Helper()
	app, err := NewApp(context.Background(), c, logging.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = app.Close() })
	return app
}

func TestNewApp_PostgresUnavailable(t *testing.T) {
	orig := openPostgres
	t.Cleanup(func() { openPostgres = orig })
	openPostgres = func(context.Context, string) (*sql.DB, error) {
		return nil, errors.New("connection refused")
	}

	var c config.Config
	c.LoadDefaults()
	_, err := NewApp(context.Background(), &c, logging.Nop())
	assert.ErrorContains(t, err, "db init error")
}

func TestApp_CreateUserAndDisable(t *testing.T) {
	app := newMemoryApp(t, memoryConfig())
	ctx := context.Background()

	u, err := app.CreateUser(ctx, "admin@example.com", "correct horse", []string{models.RoleAdmin})
	require.NoError(t, err)
	assert.Contains(t, u.Roles(), models.RoleAdmin)

	require.NoError(t, app.SetUserDisabled(ctx, "admin@example.com", true))
	_, err = app.Users().Login(ctx, "admin@example.com", "correct horse")
	assert.Error(t, err)

	assert.NoError(t, app.Migrate(ctx), "memory store needs no migrations")
}

func TestApp_RunJob(t *testing.T) {
	app := newMemoryApp(t, memoryConfig())

	for _, kind := range jobs.Kinds {
		res := app.RunJob(context.Background(), kind, jobs.ExecInteractive)
		assert.Equal(t, jobs.StatusSucceeded, res.Status, "%s: %s", kind, res.Reason)
		assert.Equal(t, jobs.ExecInteractive, res.ExecContext)
	}
}

func TestApp_RunJobArchivesInteractiveRuns(t *testing.T) {
	c := memoryConfig()
	c.ReportsDir = t.TempDir()
	app := newMemoryApp(t, c)

	res := app.RunJob(context.Background(), jobs.KindCleanupTokens, jobs.ExecInteractive)
	require.Equal(t, jobs.StatusSucceeded, res.Status)

	day := res.Started.UTC().Format("2006/01/02")
	_, err := os.Stat(filepath.Join(c.ReportsDir, "job-reports", "cleanup-tokens", filepath.FromSlash(day), res.RunID+".json"))
	assert.NoError(t, err)

	res = app.RunJob(context.Background(), jobs.KindCleanupTokens, jobs.ExecScheduled)
	require.Equal(t, jobs.StatusSucceeded, res.Status)
	_, err = os.Stat(filepath.Join(c.ReportsDir, "job-reports", "cleanup-tokens", filepath.FromSlash(day), res.RunID+".json"))
	assert.True(t, os.IsNotExist(err), "scheduled child runs are archived by their parent")
}

func TestApp_SinksSkipUnavailableNATS(t *testing.T) {
	c := memoryConfig()
	c.NATSURL = "nats://127.0.0.1:1"
	app := newMemoryApp(t, c)

	sinks := app.sinks(context.Background())
	assert.Len(t, sinks, 1, "only metrics remain")
}

func TestApp_Executor(t *testing.T) {
	c := memoryConfig()
	app := newMemoryApp(t, c)

	exec, err := app.executor()
	require.NoError(t, err)
	assert.IsType(t, &jobs.InProcessExecutor{}, exec)

	c.Store = config.StorePostgres
	c.JobsMode = config.JobsModeSubprocess
	app.args = []string{"--config", "/etc/backoffice.yaml", "--http-addr", ":1", "serve"}
	exec, err = app.executor()
	require.NoError(t, err)
	assert.IsType(t, &jobs.SubprocessExecutor{}, exec)
}

func TestApp_ChildConfigKeepsCredentialsOffArgv(t *testing.T) {
	c := memoryConfig()
	c.SecretKey = "hmac-secret-value"
	c.DatabaseDSN = "postgres://app:pw@db/backoffice"
	app := newMemoryApp(t, c)
	app.args = []string{
		"--config", "/etc/backoffice.yaml",
		"--secret-key", "hmac-secret-value",
		"-d", "postgres://app:pw@db/backoffice",
		"--log-level=debug", "serve",
	}

	args, env := app.childConfig()

	assert.Equal(t, []string{"--config", "/etc/backoffice.yaml", "--log-level=debug"}, args)
	for _, a := range args {
		assert.NotContains(t, a, "hmac-secret-value")
		assert.NotContains(t, a, "pw@db")
	}
	assert.Contains(t, env, "BACKOFFICE_SECRET_KEY=hmac-secret-value")
	assert.Contains(t, env, "BACKOFFICE_DATABASE_DSN=postgres://app:pw@db/backoffice")
}

func TestApp_RunStopsOnCancel(t *testing.T) {
	c := memoryConfig()
	c.CleanupInterval = time.Second
	app := newMemoryApp(t, c)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- app.Run(ctx) }()

	time.Sleep(200 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("app did not stop after cancel")
	}
}

func TestApp_RunFailsOnBadAddress(t *testing.T) {
	c := memoryConfig()
	c.HTTPAddr = "127.0.0.1:99999"
	app := newMemoryApp(t, c)

	err := app.Run(context.Background())
	assert.ErrorContains(t, err, "http server")
}
