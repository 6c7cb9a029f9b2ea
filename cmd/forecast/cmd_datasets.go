package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"salesforecast/internal/files"
)

func newDatasetsCmd(root *rootOptions) *cobra.Command {
	var pattern string
	cmd := &cobra.Command{
		Use:   "datasets [dir]",
		Short: "List CSV and XLSX files in the data directory",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := root.loadConfig()
			if err != nil {
				return err
			}
			discovery := files.NewDiscovery(cfg.Paths.DataDir)
			dir := ""
			if len(args) == 1 {
				dir = args[0]
			}

			var found []files.FileInfo
			if pattern != "" {
				found, err = discovery.FindFilesByPattern(dir, pattern)
			} else {
				found, err = discovery.FindDatasets(dir)
			}
			if err != nil {
				return err
			}
			if len(found) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No datasets found")
				return nil
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "NAME\tFORMAT\tSIZE\tMODIFIED")
			for _, f := range found {
				fmt.Fprintf(w, "%s\t%s\t%d\t%s\n", f.Name, f.Format, f.Size, f.ModTime.Format(time.DateTime))
			}
			return w.Flush()
		},
	}
	cmd.Flags().StringVar(&pattern, "pattern", "", "Only list names matching this glob")
	return cmd
}
