package report

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/xuri/excelize/v2"

	apperrors "salesforecast/internal/errors"
	"salesforecast/internal/model"
)

// Sheet names of the exported workbook.
const (
	SheetComparison  = "Comparison"
	SheetImportance  = "Importance"
	SheetPredictions = "Predictions"
)

// PredictionSet holds one model's hold-out predictions.
type PredictionSet struct {
	Model     string
	Actual    []float64
	Predicted []float64
}

// ExportWorkbook writes the comparison table, per-model importances and
// hold-out predictions to an .xlsx file. Importances are listed by model
// name in sorted order.
func ExportWorkbook(path string, comparison []model.Ranking, importances map[string][]model.Importance, predictions []PredictionSet) error {
	for _, s := range predictions {
		if len(s.Actual) != len(s.Predicted) {
			return apperrors.ShapeMismatch("model %q has %d actual values and %d predictions", s.Model, len(s.Actual), len(s.Predicted))
		}
	}

	f := excelize.NewFile()
	defer f.Close()

	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return err
	}
	if err := f.SetSheetName("Sheet1", SheetComparison); err != nil {
		return err
	}
	for _, name := range []string{SheetImportance, SheetPredictions} {
		if _, err := f.NewSheet(name); err != nil {
			return err
		}
	}

	rows := [][]any{{"Rank", "Model", "RMSE", "MAE", "R2", "MAPE", "MAPE excluded"}}
	for _, r := range comparison {
		var mape any = "n/a"
		if r.MAPEDefined {
			mape = r.MAPE
		}
		rows = append(rows, []any{r.Rank, r.Model, r.RMSE, r.MAE, r.R2, mape, r.MAPEExcluded})
	}
	if err := writeRows(f, SheetComparison, rows, bold); err != nil {
		return err
	}

	models := make([]string, 0, len(importances))
	for m := range importances {
		models = append(models, m)
	}
	sort.Strings(models)
	rows = [][]any{{"Model", "Feature", "Importance"}}
	for _, m := range models {
		for _, imp := range importances[m] {
			rows = append(rows, []any{m, imp.Feature, imp.Importance})
		}
	}
	if err := writeRows(f, SheetImportance, rows, bold); err != nil {
		return err
	}

	head := []any{"Actual"}
	for _, s := range predictions {
		head = append(head, s.Model)
	}
	rows = [][]any{head}
	if len(predictions) > 0 {
		for i, actual := range predictions[0].Actual {
			row := []any{actual}
			for _, s := range predictions {
				row = append(row, s.Predicted[i])
			}
			rows = append(rows, row)
		}
	}
	if err := writeRows(f, SheetPredictions, rows, bold); err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return apperrors.NewStorageError("create workbook directory", err)
	}
	if err := f.SaveAs(path); err != nil {
		return apperrors.NewStorageError(fmt.Sprintf("save workbook %s", path), err)
	}
	return nil
}

func writeRows(f *excelize.File, sheet string, rows [][]any, headerStyle int) error {
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return err
		}
	}
	if len(rows) == 0 {
		return nil
	}
	last, err := excelize.CoordinatesToCellName(len(rows[0]), 1)
	if err != nil {
		return err
	}
	if err := f.SetCellStyle(sheet, "A1", last, headerStyle); err != nil {
		return err
	}
	lastCol, _ := excelize.ColumnNumberToName(len(rows[0]))
	return f.SetColWidth(sheet, "A", lastCol, 16)
}
