package report

import (
	"fmt"
	"io"
	"sort"
	"text/tabwriter"

	"salesforecast/internal/dataset"
	"salesforecast/internal/features"
	"salesforecast/internal/model"
	"salesforecast/internal/preprocess"
)

const rule = "============================================================"

func header(w io.Writer, title string) {
	fmt.Fprintf(w, "%s\n%s\n%s\n", rule, title, rule)
}

func table(w io.Writer) *tabwriter.Writer {
	return tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
}

// WriteDatasetInfo prints the ingestion report.
func WriteDatasetInfo(w io.Writer, info dataset.Info) error {
	header(w, "DATASET INFORMATION")
	fmt.Fprintf(w, "Rows: %d\nColumns: %d\n", info.Rows, info.Columns)
	fmt.Fprintf(w, "Numeric: %d  Categorical: %d  Temporal: %d\n", info.Numeric, info.Categorical, info.Temporal)
	fmt.Fprintf(w, "Missing cells: %d\nMemory: %s\n\n", info.Missing, formatBytes(info.MemoryBytes))

	tw := table(w)
	fmt.Fprintln(tw, "column\tkind\tmissing\tmissing %\tunique\tmean\tstd\tmin\tmax")
	for _, f := range info.Fields {
		if f.Kind == dataset.Numeric.String() {
			fmt.Fprintf(tw, "%s\t%s\t%d\t%.2f\t%d\t%.4g\t%.4g\t%.4g\t%.4g\n",
				f.Name, f.Kind, f.Missing, f.MissingPct, f.Unique, f.Mean, f.Std, f.Min, f.Max)
			continue
		}
		fmt.Fprintf(tw, "%s\t%s\t%d\t%.2f\t%d\t-\t-\t-\t-\n",
			f.Name, f.Kind, f.Missing, f.MissingPct, f.Unique)
	}
	return tw.Flush()
}

// WritePreprocessingSummary prints the before and after comparison and, when
// present, the outlier counts.
func WritePreprocessingSummary(w io.Writer, s preprocess.Summary, outliers *preprocess.OutlierReport) error {
	header(w, "PREPROCESSING SUMMARY")
	tw := table(w)
	fmt.Fprintln(tw, "\tbefore\tafter")
	fmt.Fprintf(tw, "rows\t%d\t%d\n", s.RowsBefore, s.RowsAfter)
	fmt.Fprintf(tw, "columns\t%d\t%d\n", s.ColumnsBefore, s.ColumnsAfter)
	fmt.Fprintf(tw, "missing\t%d\t%d\n", s.MissingBefore, s.MissingAfter)
	fmt.Fprintf(tw, "memory\t%s\t%s\n", formatBytes(s.MemoryBefore), formatBytes(s.MemoryAfter))
	if err := tw.Flush(); err != nil {
		return err
	}
	if outliers == nil {
		return nil
	}

	fmt.Fprintf(w, "\nOutliers (%s, threshold %g): %d\n", outliers.Method, outliers.Threshold, outliers.Total())
	tw = table(w)
	for _, c := range outliers.Columns {
		fmt.Fprintf(tw, "%s\t%d\t[%.4g, %.4g]\n", c.Column, c.Count, c.Lower, c.Upper)
	}
	for _, name := range outliers.Skipped {
		fmt.Fprintf(tw, "%s\tskipped\t\n", name)
	}
	return tw.Flush()
}

// WriteFeatureSummary prints created features grouped by family.
func WriteFeatureSummary(w io.Writer, s features.Summary) error {
	header(w, "FEATURE ENGINEERING SUMMARY")
	fmt.Fprintf(w, "Total features created: %d\n\n", s.Total)

	families := make([]string, 0, len(s.ByFamily))
	for f := range s.ByFamily {
		families = append(families, string(f))
	}
	sort.Strings(families)
	tw := table(w)
	for _, f := range families {
		fmt.Fprintf(tw, "%s\t%d\n", f, s.ByFamily[features.Family(f)])
	}
	return tw.Flush()
}

// WriteComparison prints the ranked model table and names the best model.
func WriteComparison(w io.Writer, rows []model.Ranking) error {
	header(w, "MODEL COMPARISON")
	tw := table(w)
	fmt.Fprintln(tw, "rank\tmodel\tRMSE\tMAE\tR2\tMAPE")
	for _, r := range rows {
		mape := "n/a"
		if r.MAPEDefined {
			mape = fmt.Sprintf("%.2f%%", r.MAPE)
		}
		fmt.Fprintf(tw, "%d\t%s\t%.4f\t%.4f\t%.4f\t%s\n", r.Rank, r.Model, r.RMSE, r.MAE, r.R2, mape)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	if len(rows) > 0 {
		fmt.Fprintf(w, "\nBest model: %s (R2 = %.4f)\n", rows[0].Model, rows[0].R2)
	}
	return nil
}

// WriteImportance prints a feature importance ranking.
func WriteImportance(w io.Writer, modelName string, imp []model.Importance) error {
	header(w, "FEATURE IMPORTANCE: "+modelName)
	if len(imp) == 0 {
		_, err := fmt.Fprintln(w, "no feature importances available")
		return err
	}
	tw := table(w)
	for i, f := range imp {
		fmt.Fprintf(tw, "%d\t%s\t%.4f\n", i+1, f.Feature, f.Importance)
	}
	return tw.Flush()
}

func formatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for v := n / unit; v >= unit; v /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.2f %cB", float64(n)/float64(div), "KMGT"[exp])
}
