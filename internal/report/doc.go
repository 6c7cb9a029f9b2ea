// Package report renders pipeline results for people: plain text summaries,
// PNG charts, CSV tables and an Excel workbook.
//
// Text writers take an io.Writer and never touch the filesystem. Chart and
// file writers create parent directories as needed.
//
// Example usage:
//
//	w := report.NewCSVWriter(cfg.Paths.ReportsDir)
//	err := w.WriteComparison("comparison.csv", trainer.CompareModels())
//
//	err = report.PlotPredictions(filepath.Join(dir, "predictions.png"), "Random Forest", yTest, pred)
package report
