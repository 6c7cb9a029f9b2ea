package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"salesforecast/internal/dataset"
)

type generateOptions struct {
	output string
	days   int
	seed   uint64
	start  string
}

func newGenerateCmd(root *rootOptions) *cobra.Command {
	opts := &generateOptions{}
	def := dataset.DefaultSampleConfig()

	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Write a synthetic daily sales CSV",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGenerate(cmd, root, opts)
		},
	}
	cmd.Flags().StringVarP(&opts.output, "output", "o", "sales_data.csv", "Destination CSV file")
	cmd.Flags().IntVar(&opts.days, "days", def.Days, "Number of daily rows")
	cmd.Flags().Uint64Var(&opts.seed, "seed", def.Seed, "Random seed")
	cmd.Flags().StringVar(&opts.start, "start", def.Start.Format(time.DateOnly), "First date (YYYY-MM-DD)")
	return cmd
}

func runGenerate(cmd *cobra.Command, root *rootOptions, opts *generateOptions) error {
	start, err := time.Parse(time.DateOnly, opts.start)
	if err != nil {
		return fmt.Errorf("invalid --start %q: %w", opts.start, err)
	}
	if opts.days < 1 {
		return fmt.Errorf("--days must be at least 1, got %d", opts.days)
	}

	ds := dataset.GenerateSample(dataset.SampleConfig{Start: start, Days: opts.days, Seed: opts.seed})
	if err := dataset.SaveCSV(ds, opts.output); err != nil {
		return err
	}
	root.log().InfoContext(commandContext(cmd), "sample written",
		"path", opts.output, "rows", ds.NumRows())
	fmt.Fprintf(cmd.OutOrStdout(), "Wrote %d rows to %s\n", ds.NumRows(), opts.output)
	return nil
}
