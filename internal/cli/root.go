// Package cli implements the proxyctl operator command line. Every command
// runs the same orchestration services as the API against the local store.
package cli

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/edvin/proxyctl/internal/command"
	"github.com/edvin/proxyctl/internal/config"
	"github.com/edvin/proxyctl/internal/core"
	"github.com/edvin/proxyctl/internal/db"
	"github.com/edvin/proxyctl/internal/logging"
)

// Version is set via ldflags during build.
var Version = "dev"

// Options customise how commands reach the outside world.
type Options struct {
	// Runner executes certbot and nginx. Nil means os/exec.
	Runner command.Runner
	Out    io.Writer
	Err    io.Writer
}

// app is the state shared by every subcommand once the root has set up.
type app struct {
	opts   Options
	output string

	cfg      *config.Config
	logger   zerolog.Logger
	db       *sql.DB
	services *core.Services
}

// NewRootCommand builds the proxyctl command tree.
func NewRootCommand(opts Options) *cobra.Command {
	if opts.Out == nil {
		opts.Out = os.Stdout
	}
	if opts.Err == nil {
		opts.Err = os.Stderr
	}
	a := &app{opts: opts}

	root := &cobra.Command{
		Use:           "proxyctl",
		Short:         "Manage reverse-proxy domains and their TLS certificates",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Name() == "help" || cmd.Name() == cobra.ShellCompRequestCmd {
				return nil
			}
			switch a.output {
			case "text", "json", "yaml":
			default:
				return fmt.Errorf("unknown output format %q (want text, json or yaml)", a.output)
			}
			return a.setup(cmd.Context())
		},
		PersistentPostRunE: func(*cobra.Command, []string) error {
			if a.db != nil {
				return a.db.Close()
			}
			return nil
		},
	}
	root.SetOut(opts.Out)
	root.SetErr(opts.Err)
	root.PersistentFlags().StringVarP(&a.output, "output", "o", "text", "Output format: text, json or yaml")

	root.AddCommand(
		newMigrateCommand(a),
		newUserCommand(a),
		newDomainCommand(a),
		newCertCommand(a),
		newNginxCommand(a),
		newReconcileCommand(a),
	)
	return root
}

// Execute runs the CLI with process defaults and exits non-zero on error.
func Execute() {
	root := NewRootCommand(Options{})
	if err := root.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// setup loads config, opens and migrates the store and wires the services.
func (a *app) setup(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	a.cfg = cfg

	// Operators read results on stdout; logs go to stderr.
	a.logger = logging.NewLogger(cfg).Output(a.opts.Err)

	a.db, err = db.Open(ctx, cfg.DatabaseDriver, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	if err := db.RunMigrations(a.db, cfg.DatabaseDriver); err != nil {
		return err
	}

	runner := a.opts.Runner
	if runner == nil {
		runner = command.NewExecRunner(a.logger)
	}
	deps, err := core.DepsFromConfig(cfg, a.logger, runner)
	if err != nil {
		return err
	}
	a.services = core.NewServices(a.db, deps)
	return nil
}

// ctx attaches the CLI logger so transcript lines reach it at debug level.
func (a *app) ctx(cmd *cobra.Command) context.Context {
	return a.logger.WithContext(cmd.Context())
}
