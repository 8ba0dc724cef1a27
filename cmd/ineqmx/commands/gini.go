package commands

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"ineqmx/internal/app"
	"ineqmx/internal/dataset"
	"ineqmx/internal/exporter"
	"ineqmx/internal/services"
)

var (
	giniLevel  string
	giniOutput string
)

var giniCmd = &cobra.Command{
	Use:   "gini <year>",
	Short: "Print the Gini and decile table of a processed ENIGH year",
	Long: `Compute the weighted Gini coefficient and income deciles of one ENIGH year
from its tidy table and print them as CSV. Run "ineqmx process" first.

Examples:
  ineqmx gini 2022
  ineqmx gini 2020 --level municipal --output mun_2020.csv`,
	Args: cobra.ExactArgs(1),
	RunE: runGini,
}

func init() {
	giniCmd.Flags().StringVarP(&giniLevel, "level", "l", "national", "aggregation level: national, state, municipal")
	giniCmd.Flags().StringVarP(&giniOutput, "output", "o", "", "write the CSV to this file instead of stdout")
	rootCmd.AddCommand(giniCmd)
}

func runGini(cmd *cobra.Command, args []string) error {
	year, err := strconv.Atoi(args[0])
	if err != nil {
		return fmt.Errorf("invalid year %q", args[0])
	}
	level, err := dataset.ParseLevel(giniLevel)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	pipeline, err := app.NewPipeline(ctx, cfg, paths, nil, nil, logger)
	if err != nil {
		return err
	}
	defer pipeline.Close()

	svc := services.NewInequalityService(pipeline.Enigh, cfg.Pipeline, 0, nil, logger)
	report, err := svc.Results(ctx, year, level)
	if err != nil {
		return err
	}

	table := exporter.NewInequalityExporter(paths, exporter.FromPipelineConfig(cfg.Pipeline)...).
		Table(report.Results, level)

	var w io.Writer = cmd.OutOrStdout()
	if giniOutput != "" {
		f, err := os.Create(giniOutput)
		if err != nil {
			return err
		}
		defer f.Close()
		w = f
	}
	if err := table.Write(w); err != nil {
		return err
	}
	logger.InfoContext(ctx, "inequality table computed",
		slog.Int("year", year),
		slog.String("level", string(level)),
		slog.Int("groups", report.Groups))
	return nil
}
