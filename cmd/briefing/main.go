package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/dusk-indust/briefing/internal/config"
	"github.com/dusk-indust/briefing/internal/logging"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// version is set by goreleaser at build time.
var version = "dev"

// app carries the state shared by every subcommand once the root command's
// PersistentPreRunE has run.
type app struct {
	configDir string
	logLevel  string

	cfg    *config.Config
	logger *zap.Logger
}

func newRootCmd() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:   "briefing",
		Short: "Staged intelligence aggregation: discover, analyze, aggregate, report",
		Long: `briefing discovers entities related to a query, analyzes each one
concurrently through a remote collaborator, aggregates the outcomes under a
strict or lenient policy and, on request, synthesizes a final report.`,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: a.setup,
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if a.logger != nil {
				_ = a.logger.Sync()
			}
		},
	}
	root.PersistentFlags().StringVar(&a.configDir, "config-dir", ".", "directory containing briefing.yml")
	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "log level override (debug, info, warn, error)")

	root.AddCommand(
		newRunCmd(a),
		newServeCmd(a),
		newServeMCPCmd(a),
		newCollaboratorCmd(a),
		newVersionCmd(),
	)
	return root
}

// setup loads configuration and builds the logger.
func (a *app) setup(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(a.configDir)
	if err != nil {
		return err
	}
	if err := cfg.ApplyEnv(os.Getenv); err != nil {
		return err
	}
	if a.logLevel != "" {
		cfg.Logging.Level = a.logLevel
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	logger, err := logging.New(cfg.Logging)
	if err != nil {
		return err
	}
	a.cfg, a.logger = cfg, logger
	return nil
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		// Skips config loading.
		PersistentPreRunE: func(*cobra.Command, []string) error { return nil },
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version)
		},
	}
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
