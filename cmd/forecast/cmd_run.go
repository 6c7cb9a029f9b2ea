package main

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"salesforecast/internal/pipeline"
)

type runOptions struct {
	input     string
	modelsDir string
	noReports bool
	asJSON    bool
}

func newRunCmd(root *rootOptions) *cobra.Command {
	opts := &runOptions{}
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the full pipeline and save the model bundle",
		Long: `run loads the configured input, cleans and encodes it, engineers features,
trains every enabled model, compares them on the hold-out split and writes
the model bundle plus charts and CSV reports.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPipeline(cmd, root, opts)
		},
	}
	cmd.Flags().StringVarP(&opts.input, "input", "i", "", "Input CSV or XLSX (overrides pipeline.input_file)")
	cmd.Flags().StringVar(&opts.modelsDir, "models-dir", "", "Bundle directory (overrides paths.models_dir)")
	cmd.Flags().BoolVar(&opts.noReports, "no-reports", false, "Skip charts and CSV reports")
	cmd.Flags().BoolVar(&opts.asJSON, "json", false, "Print the run result as JSON")
	return cmd
}

func runPipeline(cmd *cobra.Command, root *rootOptions, opts *runOptions) error {
	cfg, err := root.loadConfig()
	if err != nil {
		return err
	}
	if opts.input != "" {
		cfg.Pipeline.InputFile = opts.input
	}
	if opts.modelsDir != "" {
		cfg.Paths.ModelsDir = opts.modelsDir
	}
	if err := cfg.Paths.EnsureDirectories(); err != nil {
		return err
	}

	logger := root.log()
	runnerOpts := []pipeline.Option{pipeline.WithObserver(pipeline.LogObserver(logger))}
	if opts.noReports {
		runnerOpts = append(runnerOpts, pipeline.WithoutReports())
	}

	res, err := pipeline.NewRunner(logger, runnerOpts...).Run(commandContext(cmd), cfg)
	if err != nil {
		return err
	}
	if opts.asJSON {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	}
	return printRunSummary(cmd.OutOrStdout(), res)
}

func printRunSummary(out io.Writer, res *pipeline.Result) error {
	fmt.Fprintf(out, "Run %s finished in %s\n", res.RunID, res.Duration.Round(time.Millisecond))
	fmt.Fprintf(out, "Rows: %d train, %d test, %d dropped; %d features\n\n",
		res.TrainRows, res.TestRows, res.DroppedRows, len(res.FeatureNames))

	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "RANK\tMODEL\tRMSE\tMAE\tR2\tMAPE")
	for _, r := range res.Comparison {
		mape := "n/a"
		if r.MAPEDefined {
			mape = fmt.Sprintf("%.2f%%", r.MAPE)
		}
		fmt.Fprintf(w, "%d\t%s\t%.4f\t%.4f\t%.4f\t%s\n", r.Rank, r.Model, r.RMSE, r.MAE, r.R2, mape)
	}
	if err := w.Flush(); err != nil {
		return err
	}

	fmt.Fprintf(out, "\nBest model: %s\n", res.Best)
	for _, s := range res.Skipped {
		fmt.Fprintf(out, "Skipped: %s\n", s)
	}
	fmt.Fprintf(out, "Bundle: %s\n", res.BundleDir)
	if len(res.Reports) > 0 {
		fmt.Fprintf(out, "Reports: %d files\n", len(res.Reports))
	}
	return nil
}
