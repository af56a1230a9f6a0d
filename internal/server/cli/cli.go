// Package cli implements the backoffice command line: the API server, the
// maintenance job commands and account administration.
package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/cateringhub/backoffice/internal/buildinfo"
	"github.com/cateringhub/backoffice/internal/logging"
	"github.com/cateringhub/backoffice/internal/server"
	"github.com/cateringhub/backoffice/internal/server/config"
	"github.com/cateringhub/backoffice/internal/server/jobs"
	"github.com/cateringhub/backoffice/internal/server/models"
	"github.com/spf13/cobra"
)

// ErrJobFailed is returned by job commands whose run did not succeed. The
// status line has already been printed when it is returned.
var ErrJobFailed = errors.New("job failed")

// Backend is what the commands drive. *server.App implements it.
type Backend interface {
	Run(ctx context.Context) error
	RunJob(ctx context.Context, kind jobs.Kind, execCtx jobs.ExecContext) jobs.Result
	Migrate(ctx context.Context) error
	CreateUser(ctx context.Context, email, password string, roles []string) (*models.User, error)
	SetUserDisabled(ctx context.Context, email string, disabled bool) error
	Close() error
}

// newBackend is a seam for tests.
var newBackend = func(ctx context.Context, cfg *config.Config, log logging.Logger) (Backend, error) {
	return server.NewApp(ctx, cfg, log)
}

// IO bundles the standard streams so tests can capture them.
type IO struct {
	In     io.Reader
	Out    io.Writer
	ErrOut io.Writer
}

// NewRootCommand builds the command tree.
func NewRootCommand(streams IO) *cobra.Command {
	root := &cobra.Command{
		Use:           "backoffice",
		Short:         "Catering back office: authentication API and maintenance jobs",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetIn(streams.In)
	root.SetOut(streams.Out)
	root.SetErr(streams.ErrOut)

	config.RegisterFlags(root.PersistentFlags())

	root.AddCommand(
		serveCommand(streams),
		migrateCommand(streams),
		createUserCommand(streams),
		disableUserCommand(streams),
		versionCommand(streams),
	)
	for _, k := range jobs.Kinds {
		root.AddCommand(jobCommand(streams, k))
	}

	return root
}

// Execute runs the CLI and returns the process exit code.
func Execute(ctx context.Context, args []string, streams IO) int {
	root := NewRootCommand(streams)
	root.SetArgs(args)

	if err := root.ExecuteContext(ctx); err != nil {
		if !errors.Is(err, ErrJobFailed) {
			fmt.Fprintf(streams.ErrOut, "Error: %v\n", err)
		}
		return 1
	}
	return 0
}

// session loads configuration from the command's flags and opens a backend.
// Logs go to logOut; serve passes stdout, the other commands stderr so that
// job reports own stdout.
func session(cmd *cobra.Command, logOut io.Writer, format string) (*config.Config, logging.Logger, Backend, error) {
	cfg, err := config.Load(cmd.Flags())
	if err != nil {
		return nil, nil, nil, err
	}
	if format == "" {
		format = cfg.LogFormat
	}
	log := logging.New(logOut, format, cfg.LogLevel)

	b, err := newBackend(cmd.Context(), cfg, log)
	if err != nil {
		return nil, nil, nil, err
	}
	return cfg, log, b, nil
}

func serveCommand(streams IO) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API and gRPC health service and run scheduled jobs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, _, b, err := session(cmd, streams.Out, "")
			if err != nil {
				return err
			}
			defer b.Close()
			return b.Run(cmd.Context())
		},
	}
}

func migrateCommand(streams IO) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database schema migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, _, b, err := session(cmd, streams.ErrOut, "text")
			if err != nil {
				return err
			}
			defer b.Close()
			if err := b.Migrate(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(streams.Out, "migrations applied")
			return nil
		},
	}
}

// jobCommand runs one job kind and prints its status line. With --scheduled
// the line is the JSON result, which the subprocess executor reads back.
func jobCommand(streams IO, kind jobs.Kind) *cobra.Command {
	var scheduled bool

	cmd := &cobra.Command{
		Use:   kind.Command(),
		Short: fmt.Sprintf("Run the %s job once", kind),
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, log, b, err := session(cmd, streams.ErrOut, "text")
			if err != nil {
				return err
			}
			defer b.Close()

			execCtx := jobs.ExecInteractive
			if scheduled {
				execCtx = jobs.ExecScheduled
			}
			res := b.RunJob(cmd.Context(), kind, execCtx)

			if scheduled {
				line, err := json.Marshal(res)
				if err != nil {
					log.Error(cmd.Context(), "encode job result", "error", err)
					return ErrJobFailed
				}
				fmt.Fprintln(streams.Out, string(line))
			} else {
				fmt.Fprintln(streams.Out, res.StatusLine())
				for _, s := range res.Steps {
					fmt.Fprintf(streams.Out, "  %s: %s (count=%d)%s\n", s.Name, s.Status, s.Count, reasonSuffix(s.Reason))
				}
			}

			if res.Status != jobs.StatusSucceeded {
				return ErrJobFailed
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&scheduled, "scheduled", false, "run as a scheduled job and print the result as JSON")
	return cmd
}

func reasonSuffix(reason string) string {
	if reason == "" {
		return ""
	}
	return ": " + reason
}

func versionCommand(streams IO) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(*cobra.Command, []string) {
			fmt.Fprintln(streams.Out, buildinfo.String())
		},
	}
}
