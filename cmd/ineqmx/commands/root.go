// Package commands provides the CLI commands for ineqmx.
package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"ineqmx/internal/config"
	"ineqmx/internal/infrastructure"
)

var (
	cfgFile string
	verbose bool

	// populated by the root PersistentPreRunE
	cfg    *config.Config
	paths  *config.Paths
	logger *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "ineqmx",
	Short: "Income inequality tables from Mexican household surveys",
	Long: `ineqmx downloads INEGI survey archives (ENIGH, ENCO, census, shapefiles),
cleans them into tidy tables and computes weighted Gini coefficients and
income deciles at national, state and municipal level.

Examples:
  ineqmx run --offline
  ineqmx download --enigh-years 2022
  ineqmx gini 2022 --level state --output resultados.csv
  ineqmx serve`,
	SilenceUsage:      true,
	PersistentPreRunE: setup,
}

// Execute runs the CLI
func Execute() error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	// one ID per invocation so the log lines of a CLI run can be grouped
	return rootCmd.ExecuteContext(infrastructure.EnsureTraceID(ctx))
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./ineqmx.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	rootCmd.AddCommand(versionCmd)
}

func setup(cmd *cobra.Command, args []string) error {
	if cfgFile != "" {
		if err := os.Setenv(config.EnvPrefix+"_CONFIG", cfgFile); err != nil {
			return err
		}
	}
	loaded, err := config.Load()
	if err != nil {
		return err
	}
	if verbose {
		loaded.Logging.Level = "debug"
	}

	l, err := infrastructure.InitializeLogger(loaded.Logging)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	p, err := loaded.ResolvePaths()
	if err != nil {
		return err
	}
	if err := p.EnsureDirectories(); err != nil {
		return err
	}

	cfg, paths, logger = loaded, p, l
	return nil
}
