package main

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"salesforecast/internal/dataset"
	"salesforecast/internal/files"
)

type infoOptions struct {
	dateColumn string
	latest     bool
	asJSON     bool
}

func newInfoCmd(root *rootOptions) *cobra.Command {
	opts := &infoOptions{}
	cmd := &cobra.Command{
		Use:   "info [file]",
		Short: "Describe a CSV or XLSX dataset",
		Long: `info prints row and column counts, missing values and per-column statistics.
Without a file argument the configured pipeline input is described.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInfo(cmd, root, opts, args)
		},
	}
	cmd.Flags().StringVar(&opts.dateColumn, "date-column", "", "Column to parse as dates (defaults to the configured date column)")
	cmd.Flags().BoolVar(&opts.latest, "latest", false, "Describe the newest dataset in the data directory")
	cmd.Flags().BoolVar(&opts.asJSON, "json", false, "Print the report as JSON")
	return cmd
}

func runInfo(cmd *cobra.Command, root *rootOptions, opts *infoOptions, args []string) error {
	cfg, err := root.loadConfig()
	if err != nil {
		return err
	}
	path := cfg.Paths.InputPath(cfg.Pipeline.InputFile)
	switch {
	case len(args) == 1:
		path = args[0]
	case opts.latest:
		found, err := files.NewDiscovery(cfg.Paths.DataDir).FindDatasets("")
		if err != nil {
			return err
		}
		latest, ok := files.Latest(found)
		if !ok {
			return fmt.Errorf("no datasets in %s", cfg.Paths.DataDir)
		}
		path = latest.Path
	}
	dateColumn := opts.dateColumn
	if dateColumn == "" {
		dateColumn = cfg.Pipeline.DateColumn
	}

	load := dataset.LoadOptions{DateLayouts: cfg.Pipeline.DateLayouts, Logger: root.log()}
	if dateColumn != "" {
		load.DateColumns = []string{dateColumn}
	}
	ds, err := dataset.Load(commandContext(cmd), path, load)
	if err != nil {
		return err
	}

	info := dataset.Describe(ds)
	if opts.asJSON {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(info)
	}
	return printInfo(cmd.OutOrStdout(), path, info)
}

func printInfo(out io.Writer, path string, info dataset.Info) error {
	fmt.Fprintf(out, "%s: %d rows x %d columns (%d numeric, %d categorical, %d temporal)\n",
		path, info.Rows, info.Columns, info.Numeric, info.Categorical, info.Temporal)
	fmt.Fprintf(out, "Missing values: %d, approx. memory: %d bytes\n\n", info.Missing, info.MemoryBytes)

	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "COLUMN\tKIND\tMISSING\tUNIQUE\tMEAN\tSTD\tMIN\tMAX")
	for _, f := range info.Fields {
		if f.Kind == "numeric" {
			fmt.Fprintf(w, "%s\t%s\t%d (%.1f%%)\t%d\t%.2f\t%.2f\t%.2f\t%.2f\n",
				f.Name, f.Kind, f.Missing, f.MissingPct, f.Unique, f.Mean, f.Std, f.Min, f.Max)
			continue
		}
		fmt.Fprintf(w, "%s\t%s\t%d (%.1f%%)\t%d\t-\t-\t-\t-\n",
			f.Name, f.Kind, f.Missing, f.MissingPct, f.Unique)
	}
	return w.Flush()
}
