package commands

import (
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"ineqmx/internal/app"
	"ineqmx/internal/operations"
)

// stepFlags are shared by every command that runs pipeline steps
type stepFlags struct {
	enighYears []int
	encoYears  []int
	levels     []string
	offline    bool
}

func (f *stepFlags) register(cmd *cobra.Command) {
	cmd.Flags().IntSliceVar(&f.enighYears, "enigh-years", nil, "ENIGH survey years (default from config)")
	cmd.Flags().IntSliceVar(&f.encoYears, "enco-years", nil, "ENCO survey years (default from config)")
	cmd.Flags().StringSliceVar(&f.levels, "levels", nil, "aggregation levels: national, state, municipal")
}

// request builds the operation request for steps. No steps means the full pipeline.
func (f *stepFlags) request(steps ...string) operations.OperationRequest {
	mode := operations.ModeFull
	if f.offline {
		mode = operations.ModeOffline
	}
	return operations.OperationRequest{
		Mode:       mode,
		Steps:      steps,
		EnighYears: f.enighYears,
		EncoYears:  f.encoYears,
		Levels:     f.levels,
	}
}

func newStepCommand(use, short, long string, steps ...string) *cobra.Command {
	flags := &stepFlags{}
	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		Long:  long,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSteps(cmd, flags.request(steps...))
		},
	}
	flags.register(cmd)
	if len(steps) == 0 {
		cmd.Flags().BoolVar(&flags.offline, "offline", false, "skip the download step and use the archives already on disk")
	}
	return cmd
}

var (
	runCmd = newStepCommand("run", "Run the whole pipeline",
		`Download the survey archives, clean them, compute the inequality tables
and export them. Use --offline to work from archives already downloaded.`)

	downloadCmd = newStepCommand("download", "Download and extract the catalogued INEGI archives",
		"Fetch every catalogued archive for the requested years into data/raw.",
		operations.StageIDDownload)

	processCmd = newStepCommand("process", "Clean the raw ENIGH, ENCO and census tables",
		"Turn the raw survey tables into tidy CSV files under data/interim and data/processed.",
		operations.StageIDEnigh, operations.StageIDEnco, operations.StageIDCenso)

	exportCmd = newStepCommand("export", "Compute and export the inequality tables",
		"Compute Gini and deciles from the tidy ENIGH tables and write resultados_*.csv to data/external.",
		operations.StageIDInequality, operations.StageIDExport)

	indicatorsCmd = newStepCommand("indicators", "Download INEGI indicator series",
		"Query the INEGI indicators API for the national total and every state. Requires indicators.token.",
		operations.StageIDIndicators)
)

func init() {
	rootCmd.AddCommand(runCmd, downloadCmd, processCmd, exportCmd, indicatorsCmd)
}

func runSteps(cmd *cobra.Command, req operations.OperationRequest) error {
	ctx := cmd.Context()
	pipeline, err := app.NewPipeline(ctx, cfg, paths, nil, nil, logger)
	if err != nil {
		return err
	}
	defer pipeline.Close()

	resp, err := pipeline.Run(ctx, req)
	if resp != nil {
		printSummary(cmd.OutOrStdout(), resp)
	}
	return err
}

func printSummary(w io.Writer, resp *operations.OperationResponse) {
	ids := make([]string, 0, len(resp.Steps))
	for id := range resp.Steps {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	fmt.Fprintf(w, "operation %s: %s (%s)\n", resp.ID, resp.Status, resp.Duration.Round(time.Millisecond))
	for _, id := range ids {
		step := resp.Steps[id]
		line := fmt.Sprintf("  %-12s %-10s", id, step.Status)
		if step.Message != "" {
			line += " " + step.Message
		}
		if step.Error != nil {
			line += " error: " + step.Error.Error()
		}
		fmt.Fprintln(w, line)
	}
	if resp.Error != "" {
		fmt.Fprintf(w, "error: %s\n", resp.Error)
	}
}
