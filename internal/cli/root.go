// Package cli wires the chessarchive commands.
package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/freeeve/chessarchive/internal/config"
	"github.com/freeeve/chessarchive/internal/dataset"
	"github.com/freeeve/chessarchive/internal/logx"
)

// app is the state shared by every command of one invocation.
type app struct {
	cfgPath  string
	dataDir  string
	remote   string
	logLevel string

	cfg    *config.Config
	layout dataset.Layout
	log    zerolog.Logger
}

// NewRootCommand builds the chessarchive command tree.
func NewRootCommand() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:           "chessarchive",
		Short:         "Chunked, deduplicated chess game archive",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup(cmd)
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&a.cfgPath, "config", config.DefaultPath, "path to YAML config")
	flags.StringVar(&a.dataDir, "data-dir", "", "dataset root (overrides config)")
	flags.StringVar(&a.remote, "remote", "", "remote store URL (overrides config)")
	flags.StringVar(&a.logLevel, "log-level", "", "log level (overrides config)")

	root.AddCommand(
		a.fetchCmd(),
		a.importCmd(),
		a.rebuildCmd(),
		a.backupCmd(),
		a.syncCmd(),
		a.repairCmd(),
		a.statusCmd(),
		a.serveCmd(),
	)
	return root
}

// Execute runs the command tree with ctx and returns the first error.
func Execute(ctx context.Context, args []string) error {
	root := NewRootCommand()
	root.SetArgs(args)
	return root.ExecuteContext(ctx)
}

func (a *app) setup(cmd *cobra.Command) error {
	cfg, err := config.Load(a.cfgPath, cmd.Flags().Changed("config"))
	if err != nil {
		return err
	}
	if a.dataDir != "" {
		cfg.DataDir = a.dataDir
	}
	if a.remote != "" {
		cfg.Remote = a.remote
	}
	if a.logLevel != "" {
		cfg.LogLevel = a.logLevel
	}
	a.cfg = cfg
	a.layout = dataset.NewLayout(cfg.DataDir)

	runID := uuid.New()
	if v7, err := uuid.NewV7(); err == nil {
		runID = v7
	}
	a.log = logx.New(cmd.ErrOrStderr(), cfg.LogLevel).With().
		Str("run", runID.String()).
		Str("cmd", cmd.Name()).
		Logger()
	return nil
}

// locked runs fn while holding the dataset lock.
func (a *app) locked(fn func() error) error {
	if err := a.layout.Ensure(); err != nil {
		return fmt.Errorf("prepare %s: %w", a.layout.Root, err)
	}
	lock, err := dataset.AcquireLock(a.layout)
	if err != nil {
		return err
	}
	defer func() {
		if err := lock.Release(); err != nil {
			a.log.Warn().Err(err).Str("lock", lock.Path()).Msg("release lock")
		}
	}()
	return fn()
}

// Main is the process entry point. It returns the exit code.
func Main(ctx context.Context) int {
	if err := Execute(ctx, os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		return 1
	}
	return 0
}
