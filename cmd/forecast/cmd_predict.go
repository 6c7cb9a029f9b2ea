package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"salesforecast/internal/dataset"
	"salesforecast/internal/pipeline"
)

type predictOptions struct {
	modelsDir string
	modelName string
	output    string
}

func newPredictCmd(root *rootOptions) *cobra.Command {
	opts := &predictOptions{}
	cmd := &cobra.Command{
		Use:   "predict <input.csv>",
		Short: "Score a dataset with a saved model bundle",
		Long: `predict replays the saved cleaning, feature and preprocessing steps on the
input and appends one prediction column per model. Rows whose features stay
incomplete (for example the first rows of a lag window) are left out.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPredict(cmd, root, opts, args[0])
		},
	}
	cmd.Flags().StringVar(&opts.modelsDir, "models-dir", "", "Bundle directory (defaults to paths.models_dir)")
	cmd.Flags().StringVarP(&opts.modelName, "model", "m", "", "Score with this model only")
	cmd.Flags().StringVarP(&opts.output, "output", "o", "", "Destination CSV (stdout when empty)")
	return cmd
}

func runPredict(cmd *cobra.Command, root *rootOptions, opts *predictOptions, input string) error {
	ctx := commandContext(cmd)
	logger := root.log()

	dir := opts.modelsDir
	if dir == "" {
		cfg, err := root.loadConfig()
		if err != nil {
			return err
		}
		dir = cfg.Paths.ModelsDir
	}
	bundle, err := pipeline.LoadBundle(ctx, dir, logger)
	if err != nil {
		return err
	}

	p := bundle.Manifest.Pipeline
	load := dataset.LoadOptions{DateLayouts: p.DateLayouts, Logger: logger}
	if p.DateColumn != "" {
		load.DateColumns = []string{p.DateColumn}
	}
	ds, err := dataset.Load(ctx, input, load)
	if err != nil {
		return err
	}

	scored, err := bundle.Score(ctx, ds, opts.modelName, logger)
	if err != nil {
		return err
	}
	out, err := withPredictions(ds, scored)
	if err != nil {
		return err
	}

	if opts.output == "" {
		return out.WriteCSV(cmd.OutOrStdout())
	}
	if err := dataset.SaveCSV(out, opts.output); err != nil {
		return err
	}
	fmt.Fprintf(cmd.ErrOrStderr(), "Scored %d of %d rows with %s, written to %s\n",
		len(scored.Rows), ds.NumRows(), strings.Join(scored.Models, ", "), opts.output)
	return nil
}

// withPredictions keeps the scored input rows and appends a
// predicted_<model> column per model.
func withPredictions(ds *dataset.Dataset, scored *pipeline.Scored) (*dataset.Dataset, error) {
	cols := make([]dataset.Column, 0, len(scored.Models))
	for _, name := range scored.Models {
		cols = append(cols, dataset.NewNumeric(predictionColumn(name), scored.Predictions[name]))
	}
	return ds.Take(scored.Rows).WithColumns(cols...)
}

func predictionColumn(model string) string {
	return "predicted_" + strings.ReplaceAll(strings.ToLower(model), " ", "_")
}

