package pipeline

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"

	"salesforecast/internal/dataset"
	apperrors "salesforecast/internal/errors"
	"salesforecast/internal/report"
)

// writeReports renders the text summary, CSV tables, workbook and charts.
// A chart that cannot be drawn for this data is logged and skipped.
func (x *run) writeReports(ctx context.Context) error {
	dir := x.cfg.Paths.ReportsDir
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return apperrors.NewStorageError("create reports directory", err)
	}

	var buf bytes.Buffer
	sections := []func() error{
		func() error { return report.WriteDatasetInfo(&buf, x.res.Info) },
		func() error { return report.WritePreprocessingSummary(&buf, x.res.Preprocessing, x.res.Outliers) },
		func() error { return report.WriteFeatureSummary(&buf, x.res.Features) },
		func() error { return report.WriteComparison(&buf, x.res.Comparison) },
	}
	for _, m := range x.models {
		sections = append(sections, func() error { return report.WriteImportance(&buf, m.Name, x.res.Importances[m.Name]) })
	}
	for _, write := range sections {
		if err := write(); err != nil {
			return err
		}
		buf.WriteString("\n")
	}
	summary := x.reportPath("summary.txt")
	if err := os.WriteFile(summary, buf.Bytes(), 0o644); err != nil {
		return apperrors.NewStorageError("write summary", err)
	}
	x.res.Reports = append(x.res.Reports, summary)

	csv := report.NewCSVWriter(dir)
	if err := csv.WriteComparison("comparison.csv", x.res.Comparison); err != nil {
		return err
	}
	x.res.Reports = append(x.res.Reports, x.reportPath("comparison.csv"))

	sets := make([]report.PredictionSet, 0, len(x.models))
	for _, m := range x.models {
		sets = append(sets, report.PredictionSet{Model: m.Name, Actual: x.split.YTest, Predicted: x.preds[m.Name]})
		if imp := x.res.Importances[m.Name]; len(imp) > 0 {
			name := "importance_" + m.Kind.String() + ".csv"
			if err := csv.WriteImportance(name, imp); err != nil {
				return err
			}
			x.res.Reports = append(x.res.Reports, x.reportPath(name))
		}
	}
	if err := csv.WritePredictions("predictions.csv", sets); err != nil {
		return err
	}
	workbook := x.reportPath("report.xlsx")
	if err := report.ExportWorkbook(workbook, x.res.Comparison, x.res.Importances, sets); err != nil {
		return err
	}
	x.res.Reports = append(x.res.Reports, x.reportPath("predictions.csv"), workbook)

	for file, draw := range x.charts() {
		path := x.reportPath(file)
		if err := draw(path); err != nil {
			x.logger.WarnContext(ctx, "chart skipped", slog.String("chart", file), slog.String("error", err.Error()))
			continue
		}
		x.res.Reports = append(x.res.Reports, path)
	}
	return nil
}

func (x *run) charts() map[string]func(path string) error {
	p := x.cfg.Pipeline
	target, _ := x.raw.Floats(p.TargetColumn)
	charts := map[string]func(string) error{
		"target_distribution.png": func(path string) error {
			return report.PlotDistribution(path, p.TargetColumn, target)
		},
		"correlation.png": func(path string) error {
			return report.PlotCorrelation(path, x.ds)
		},
		"model_comparison.png": func(path string) error {
			return report.PlotModelComparison(path, x.res.Comparison)
		},
	}
	if x.res.Info.Missing > 0 {
		charts["missing_values.png"] = func(path string) error {
			return report.PlotMissingValues(path, x.res.Info)
		}
	}
	if c, err := x.raw.Column(p.DateColumn); err == nil && c.Kind() == dataset.Temporal {
		charts["timeseries.png"] = func(path string) error {
			return report.PlotTimeSeries(path, fmt.Sprintf("%s over time", p.TargetColumn), c.Times(), target)
		}
	}
	for _, m := range x.models {
		kind := m.Kind.String()
		charts["predictions_"+kind+".png"] = func(path string) error {
			return report.PlotPredictions(path, m.Name, x.split.YTest, x.preds[m.Name])
		}
		charts["residuals_"+kind+".png"] = func(path string) error {
			return report.PlotResiduals(path, m.Name, x.split.YTest, x.preds[m.Name])
		}
		if imp := x.res.Importances[m.Name]; len(imp) > 0 {
			charts["importance_"+kind+".png"] = func(path string) error {
				return report.PlotFeatureImportance(path, m.Name, imp)
			}
		}
	}
	return charts
}
