// Command leadctl ingests, exports and templates lead files against the
// configured lead store without going through the HTTP API.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/JonMunkholm/leadintake/internal/config"
	"github.com/JonMunkholm/leadintake/internal/core"
	"github.com/JonMunkholm/leadintake/internal/logging"
	"github.com/JonMunkholm/leadintake/internal/store"
)

const (
	exitOK      = 0
	exitFailure = 1
	exitUsage   = 2
)

// app holds what every subcommand needs once config is loaded.
type app struct {
	cfg        *config.Config
	closeStore func()
	store      store.Store
	service    *core.Service
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	root := newRootCmd()
	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		stop()
		os.Exit(exitCode(err))
	}
}

func newRootCmd() *cobra.Command {
	a := &app{}
	var envFile string

	root := &cobra.Command{
		Use:           "leadctl",
		Short:         "Manage accept-lead files and the lead store",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup(cmd.Context(), envFile)
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if a.closeStore != nil {
				a.closeStore()
			}
		},
	}
	root.PersistentFlags().StringVar(&envFile, "env-file", ".env", "Env file to load if present")

	root.AddCommand(
		newIngestCmd(a),
		newExportCmd(a),
		newTemplateCmd(a),
		newMigrateCmd(a),
	)
	return root
}

// setup loads config, sends logs to stderr and opens the store.
func (a *app) setup(ctx context.Context, envFile string) error {
	lookup := config.Lookup(os.LookupEnv)
	if envFile != "" {
		l, err := config.FileLookup(envFile)
		if err != nil {
			return withCode(exitUsage, err)
		}
		lookup = l
	}

	cfg, err := config.LoadFrom(lookup)
	if err != nil {
		return withCode(exitUsage, err)
	}
	a.cfg = cfg
	logging.Setup(os.Stderr, cfg.Logging.Level, cfg.Logging.Format)

	s, closeStore, err := store.Open(ctx, cfg)
	if err != nil {
		return err
	}
	a.store = s
	a.closeStore = closeStore
	a.service = core.NewService(s, nil, cfg)
	return nil
}

// codedError carries the process exit code for an error.
type codedError struct {
	code int
	err  error
}

func (e *codedError) Error() string { return e.err.Error() }
func (e *codedError) Unwrap() error { return e.err }

func withCode(code int, err error) error {
	return &codedError{code: code, err: err}
}

func exitCode(err error) int {
	var ce *codedError
	if errors.As(err, &ce) {
		return ce.code
	}
	return exitFailure
}
