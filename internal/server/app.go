// Package server wires the back office together: storage, services, the
// HTTP API, the gRPC health service and the job scheduler.
package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/cateringhub/backoffice/internal/dbx"
	"github.com/cateringhub/backoffice/internal/flagx"
	"github.com/cateringhub/backoffice/internal/logging"
	"github.com/cateringhub/backoffice/internal/server/auth"
	"github.com/cateringhub/backoffice/internal/server/config"
	"github.com/cateringhub/backoffice/internal/server/httpapi"
	"github.com/cateringhub/backoffice/internal/server/jobs"
	"github.com/cateringhub/backoffice/internal/server/metrics"
	"github.com/cateringhub/backoffice/internal/server/models"
	"github.com/cateringhub/backoffice/internal/server/notify"
	"github.com/cateringhub/backoffice/internal/server/reports"
	"github.com/cateringhub/backoffice/internal/server/repositories/repomanager"
	"github.com/cateringhub/backoffice/internal/server/scheduler"
	"github.com/cateringhub/backoffice/internal/server/services"
	"github.com/nats-io/nats.go"

	gs "github.com/cateringhub/backoffice/internal/server/grpc"
)

const stopTimeout = 15 * time.Second

type App struct {
	config      *config.Config
	logger      logging.Logger
	db          *sql.DB
	tx          dbx.Transactor
	repomanager repomanager.RepositoryManager
	metrics     *metrics.Metrics

	tokenService *services.RefreshTokenService
	userService  *services.UserService
	eventService *services.EventService
	codec        *auth.Codec

	nats *nats.Conn

	// args is the raw command line, used to forward flags to job subprocesses.
	args []string
}

// openPostgres is a seam for tests.
var openPostgres = func(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

func NewApp(ctx context.Context, c *config.Config, logger logging.Logger) (*App, error) {
	app := &App{config: c, logger: logger, metrics: metrics.New(), args: os.Args[1:]}

	switch c.Store {
	case config.StoreMemory:
		app.tx = dbx.NopTransactor{}
		app.repomanager = repomanager.NewMemoryRepositoryManager()
		logger.Warn(ctx, "Using in-memory store, data is lost on exit")
	default:
		db, err := openPostgres(ctx, c.DatabaseDSN)
		if err != nil {
			return nil, fmt.Errorf("db init error: %w", err)
		}
		app.db = db
		app.tx = dbx.NewSQLTransactor(db, nil)
		app.repomanager = repomanager.NewPostgresRepositoryManager()
	}

	app.codec = auth.NewCodec([]byte(c.SecretKey))
	app.tokenService = services.NewRefreshTokenService(app.tx, app.repomanager, app.codec, c, logger)
	app.userService = services.NewUserService(app.tx, app.repomanager, app.codec, app.tokenService,
		services.LogMailer{Log: logger.With("module", "mailer")}, c, logger)
	app.eventService = services.NewEventService(app.tx, app.repomanager, c, logger)

	return app, nil
}

// Users returns the account service.
func (app *App) Users() *services.UserService { return app.userService }

// Events returns the recurring event service.
func (app *App) Events() *services.EventService { return app.eventService }

// Migrate applies the embedded schema migrations.
func (app *App) Migrate(ctx context.Context) error {
	if app.db == nil {
		return nil
	}
	if err := app.repomanager.RunMigrations(ctx, app.db); err != nil {
		return fmt.Errorf("migration error: %w", err)
	}
	return nil
}

// CreateUser registers an account, typically the first administrator.
func (app *App) CreateUser(ctx context.Context, email, password string, roles []string) (*models.User, error) {
	return app.userService.Register(ctx, email, password, roles)
}

// SetUserDisabled enables or disables an account.
func (app *App) SetUserDisabled(ctx context.Context, email string, disabled bool) error {
	return app.userService.SetDisabled(ctx, email, disabled)
}

// Close releases the database and broker connections.
func (app *App) Close() error {
	var errs []error
	if app.nats != nil {
		if err := app.nats.Drain(); err != nil {
			errs = append(errs, fmt.Errorf("drain nats: %w", err))
		}
	}
	if app.db != nil {
		if err := app.db.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close db: %w", err))
		}
	}
	return errors.Join(errs...)
}

// sinks builds the optional reporting sinks. A sink that cannot be set up is
// logged and left out.
func (app *App) sinks(ctx context.Context) []jobs.Sink {
	c := app.config
	out := []jobs.Sink{app.metrics}

	if c.ReportsDir != "" {
		dir, err := reports.NewDirArchive(c.ReportsDir)
		if err != nil {
			app.logger.Error(ctx, "Job report directory unavailable", "dir", c.ReportsDir, "error", err)
		} else {
			out = append(out, dir)
		}
	}

	if c.S3Bucket != "" {
		client, err := reports.NewS3Client(ctx, reports.S3Settings{
			Region:       c.S3Region,
			AccessKey:    c.S3RootUser,
			SecretKey:    c.S3RootPassword,
			BaseEndpoint: c.S3BaseEndpoint,
		})
		if err != nil {
			app.logger.Error(ctx, "S3 report archive unavailable", "bucket", c.S3Bucket, "error", err)
		} else {
			out = append(out, reports.NewS3Archive(client, c.S3Bucket))
		}
	}

	if c.NATSURL != "" {
		if app.nats == nil {
			nc, err := notify.Connect(c.NATSURL, app.logger)
			if err != nil {
				app.logger.Error(ctx, "NATS unavailable, job events disabled", "error", err)
			} else {
				app.nats = nc
			}
		}
		if app.nats != nil {
			out = append(out, notify.NewJobEvents(app.nats))
		}
	}

	return out
}

// forwardedFlags are the value flags a job subprocess inherits from the
// parent's command line. The environment is inherited as a whole.
var forwardedFlags = []string{
	"c", "config", "store",
	"access-token-ttl", "refresh-token-ttl", "max-refresh-tokens",
	"log-level", "reports-dir", "nats-url",
}

// childConfig returns the arguments and extra environment of a job
// subprocess. Credentials go through the environment so they never appear
// on the child's command line.
func (app *App) childConfig() (args, env []string) {
	args = flagx.FilterArgs(app.args, forwardedFlags)
	if app.config.DatabaseDSN != "" {
		env = append(env, config.EnvPrefix+"DATABASE_DSN="+app.config.DatabaseDSN)
	}
	if app.config.SecretKey != "" {
		env = append(env, config.EnvPrefix+"SECRET_KEY="+app.config.SecretKey)
	}
	return args, env
}

// executor picks the job executor from the jobs mode.
func (app *App) executor() (jobs.Executor, error) {
	if app.config.JobsMode != config.JobsModeSubprocess {
		return jobs.NewInProcessExecutor(app.tasks()), nil
	}

	args, env := app.childConfig()
	return jobs.NewSubprocessExecutor(jobs.WithArgs(args...), jobs.WithEnv(env...))
}

func (app *App) tasks() *jobs.Tasks {
	return jobs.NewTasks(app.tokenService, app.eventService)
}

// RunJob executes kind once in this process. Interactive runs report to the
// configured sinks; scheduled runs are reported by the parent that spawned
// them.
func (app *App) RunJob(ctx context.Context, kind jobs.Kind, execCtx jobs.ExecContext) jobs.Result {
	var sinks []jobs.Sink
	if execCtx == jobs.ExecInteractive {
		sinks = app.sinks(ctx)
	}
	runner := jobs.NewRunner(jobs.Definitions(app.config), jobs.NewInProcessExecutor(app.tasks()), execCtx, app.logger, sinks...)
	return runner.Run(ctx, kind)
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	// Channel to catch OS signals.
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

type runnable interface {
	Run(ctx context.Context) error
}

func (app *App) start(ctx context.Context, cancelFunc context.CancelFunc, name string, s runnable) error {
	if err := s.Run(ctx); err != nil {
		app.logger.Error(ctx, "Server failed", "server", name, "error", err)
		cancelFunc()
		return fmt.Errorf("%s server: %w", name, err)
	}
	return nil
}

// Run serves HTTP and gRPC and runs the scheduler until ctx is cancelled or
// the process receives SIGINT, SIGTERM or SIGQUIT.
func (app *App) Run(ctx context.Context) error {

	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "Starting app...", "store", app.config.Store, "jobs_mode", app.config.JobsMode)

	app.initSignalHandler(cancelFunc)

	if err := app.Migrate(ctx); err != nil {
		return err
	}

	grpcServer := gs.NewGRPCServer(app.config.GRPCAddr, app.logger)

	exec, err := app.executor()
	if err != nil {
		return err
	}
	runner := jobs.NewRunner(jobs.Definitions(app.config), exec, jobs.ExecScheduled, app.logger,
		append(app.sinks(ctx), grpcServer)...)

	sched := scheduler.New(jobs.Definitions(app.config), runner, app.logger)
	if app.config.SchedulerEnabled {
		if err := sched.Start(ctx); err != nil {
			return err
		}
	} else {
		app.logger.Info(ctx, "Scheduler disabled")
	}

	authn := httpapi.NewAuthenticator(app.codec, app.tokenService, app.userService, app.metrics, app.logger)
	handler := httpapi.NewHandler(app.userService, app.tokenService, app.config.CookieSecure, app.logger)
	httpServer := httpapi.NewServer(app.config.HTTPAddr, httpapi.NewRouter(handler, authn, app.metrics.Handler(), app.logger), app.logger)

	var wg sync.WaitGroup
	errs := make([]error, 2)

	wg.Add(2)
	go func() {
		defer wg.Done()
		errs[0] = app.start(ctx, cancelFunc, "http", httpServer)
	}()
	go func() {
		defer wg.Done()
		errs[1] = app.start(ctx, cancelFunc, "grpc", grpcServer)
	}()

	wg.Wait()

	stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), stopTimeout)
	defer cancel()
	sched.Stop(stopCtx)

	app.logger.Info(ctx, "App stopped")
	return errors.Join(errs...)
}
