package report

import (
	"bytes"
	"encoding/csv"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"salesforecast/internal/dataset"
	apperrors "salesforecast/internal/errors"
	"salesforecast/internal/features"
	"salesforecast/internal/model"
	"salesforecast/internal/preprocess"
)

func rankings() []model.Ranking {
	return []model.Ranking{
		{Rank: 1, Evaluation: model.Evaluation{Model: "Random Forest", RMSE: 10, MAE: 8, R2: 0.91, MAPE: 4.5, MAPEDefined: true}},
		{Rank: 2, Evaluation: model.Evaluation{Model: "Linear Regression", RMSE: 20, MAE: 15, R2: 0.7, MAPEExcluded: 3}},
	}
}

func importances() []model.Importance {
	return []model.Importance{{Feature: "price", Importance: 0.7}, {Feature: "quantity", Importance: 0.3}}
}

func assertFile(t *testing.T, path string) {
	t.Helper()
	st, err := os.Stat(path)
	require.NoError(t, err)
	assert.Positive(t, st.Size())
}

func TestWriteDatasetInfo(t *testing.T) {
	ds := dataset.MustNew(
		dataset.NewNumeric("sales", []float64{1, 2, math.NaN()}),
		dataset.NewCategorical("region", []string{"N", "S", "N"}),
	)
	var buf bytes.Buffer
	require.NoError(t, WriteDatasetInfo(&buf, dataset.Describe(ds)))
	out := buf.String()
	assert.Contains(t, out, "DATASET INFORMATION")
	assert.Contains(t, out, "Rows: 3")
	assert.Contains(t, out, "Missing cells: 1")
	assert.Contains(t, out, "region")
}

func TestWritePreprocessingSummary(t *testing.T) {
	var buf bytes.Buffer
	s := preprocess.Summary{RowsBefore: 10, RowsAfter: 8, MissingBefore: 4, MemoryBefore: 2048}
	outliers := &preprocess.OutlierReport{
		Method:    "iqr",
		Threshold: 1.5,
		Columns:   []preprocess.ColumnOutliers{{Column: "sales", Count: 2, Lower: -1, Upper: 7}},
		Skipped:   []string{"flat"},
	}
	require.NoError(t, WritePreprocessingSummary(&buf, s, outliers))
	out := buf.String()
	assert.Contains(t, out, "2.00 KB")
	assert.Contains(t, out, "Outliers (iqr, threshold 1.5): 2")
	assert.Contains(t, out, "flat")

	buf.Reset()
	require.NoError(t, WritePreprocessingSummary(&buf, s, nil))
	assert.NotContains(t, buf.String(), "Outliers")
}

func TestWriteFeatureSummary(t *testing.T) {
	var buf bytes.Buffer
	s := features.Summary{Total: 3, ByFamily: map[features.Family]int{features.FamilyLag: 2, features.FamilyDate: 1}}
	require.NoError(t, WriteFeatureSummary(&buf, s))
	out := buf.String()
	assert.Contains(t, out, "Total features created: 3")
	assert.Less(t, strings.Index(out, "date"), strings.Index(out, "lag"), "families sorted")
}

func TestWriteComparison(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteComparison(&buf, rankings()))
	out := buf.String()
	assert.Contains(t, out, "4.50%")
	assert.Contains(t, out, "n/a")
	assert.Contains(t, out, "Best model: Random Forest (R2 = 0.9100)")
}

func TestWriteImportance(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteImportance(&buf, "Random Forest", importances()))
	assert.Contains(t, buf.String(), "price")

	buf.Reset()
	require.NoError(t, WriteImportance(&buf, "Linear Regression", nil))
	assert.Contains(t, buf.String(), "no feature importances")
}

func TestCSVWriter(t *testing.T) {
	dir := t.TempDir()
	w := NewCSVWriter(dir)

	require.NoError(t, w.WriteComparison("comparison.csv", rankings()))
	data, err := os.ReadFile(filepath.Join(dir, "comparison.csv"))
	require.NoError(t, err)
	require.True(t, bytes.HasPrefix(data, []byte{0xEF, 0xBB, 0xBF}))
	records, err := csv.NewReader(bytes.NewReader(data[3:])).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, []string{"1", "Random Forest", "10.0000", "8.0000", "0.9100", "4.5000", "0"}, records[1])
	assert.Equal(t, "", records[2][5], "undefined mape left blank")

	require.NoError(t, w.WritePredictions("sub/predictions.csv", []PredictionSet{
		{Model: "a", Actual: []float64{1, 2}, Predicted: []float64{1.5, 2.5}},
	}))
	assertFile(t, filepath.Join(dir, "sub", "predictions.csv"))

	sw, err := w.CreateStreamWriter("stream.csv", []string{"x"})
	require.NoError(t, err)
	require.NoError(t, sw.WriteRecord([]string{"1"}))
	require.NoError(t, sw.Close())

	require.NoError(t, w.WriteCSV("stream.csv", WriteOptions{Records: [][]string{{"2"}}, Append: true}))
	data, err = os.ReadFile(filepath.Join(dir, "stream.csv"))
	require.NoError(t, err)
	assert.Equal(t, "x\n1\n2\n", string(data[3:]))
}

func TestCorrelationMatrix(t *testing.T) {
	ds := dataset.MustNew(
		dataset.NewNumeric("a", []float64{1, 2, 3, 4}),
		dataset.NewNumeric("b", []float64{2, 4, 6, 8}),
		dataset.NewNumeric("c", []float64{4, 3, 2, 1}),
		dataset.NewNumeric("flat", []float64{5, 5, 5, 5}),
		dataset.NewCategorical("region", []string{"N", "S", "N", "S"}),
	)
	names, corr := CorrelationMatrix(ds)
	assert.Equal(t, []string{"a", "b", "c", "flat"}, names)
	assert.InDelta(t, 1, corr.At(0, 1), 1e-12)
	assert.InDelta(t, -1, corr.At(0, 2), 1e-12)
	assert.Equal(t, 0.0, corr.At(0, 3))
	assert.Equal(t, 1.0, corr.At(3, 3))
}

func TestCharts(t *testing.T) {
	dir := t.TempDir()
	sample := dataset.GenerateSample(dataset.SampleConfig{
		Start: time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC), Days: 60, Seed: 7,
		Products: []string{"A"}, Regions: []string{"N"},
	})
	sales, err := sample.Floats("Sales")
	require.NoError(t, err)
	dates, err := sample.Column("Date")
	require.NoError(t, err)
	actual := []float64{1, 2, 3, 4}
	pred := []float64{1.1, 1.9, 3.2, 3.8}

	tests := []struct {
		name string
		plot func(path string) error
	}{
		{"distribution", func(p string) error { return PlotDistribution(p, "Sales", sales) }},
		{"correlation", func(p string) error { return PlotCorrelation(p, sample) }},
		{"timeseries", func(p string) error { return PlotTimeSeries(p, "Sales", dates.Times(), sales) }},
		{"predictions", func(p string) error { return PlotPredictions(p, "m", actual, pred) }},
		{"residuals", func(p string) error { return PlotResiduals(p, "m", actual, pred) }},
		{"comparison", func(p string) error { return PlotModelComparison(p, rankings()) }},
		{"importance", func(p string) error { return PlotFeatureImportance(p, "m", importances()) }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(dir, "charts", tt.name+".png")
			require.NoError(t, tt.plot(path))
			assertFile(t, path)
		})
	}
}

func TestCharts_InvalidInput(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "x.png")

	assert.ErrorIs(t, PlotPredictions(path, "m", []float64{1}, []float64{1, 2}), apperrors.ErrShapeMismatch)
	assert.ErrorIs(t, PlotResiduals(path, "m", nil, nil), apperrors.ErrInvalidParameter)
	assert.ErrorIs(t, PlotDistribution(path, "s", []float64{math.NaN()}), apperrors.ErrInvalidParameter)
	assert.ErrorIs(t, PlotFeatureImportance(path, "m", nil), apperrors.ErrInvalidParameter)
	assert.ErrorIs(t, PlotModelComparison(path, nil), apperrors.ErrInvalidParameter)
	assert.ErrorIs(t, PlotMissingValues(path, dataset.Info{}), apperrors.ErrInvalidParameter)
	assert.ErrorIs(t, PlotCorrelation(path, dataset.MustNew(dataset.NewNumeric("a", []float64{1}))), apperrors.ErrInvalidParameter)
	_, err := os.Stat(path)
	assert.True(t, os.IsNotExist(err))
}

func TestExportWorkbook(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "report.xlsx")
	err := ExportWorkbook(path, rankings(),
		map[string][]model.Importance{"Random Forest": importances(), "Gradient Boosting": importances()[:1]},
		[]PredictionSet{
			{Model: "Random Forest", Actual: []float64{1, 2}, Predicted: []float64{1.5, 2.5}},
			{Model: "Linear Regression", Actual: []float64{1, 2}, Predicted: []float64{0.5, 1.5}},
		})
	require.NoError(t, err)

	f, err := excelize.OpenFile(path)
	require.NoError(t, err)
	defer f.Close()
	assert.Equal(t, []string{SheetComparison, SheetImportance, SheetPredictions}, f.GetSheetList())

	rows, err := f.GetRows(SheetComparison)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, "Random Forest", rows[1][1])
	assert.Equal(t, "n/a", rows[2][5])

	rows, err = f.GetRows(SheetImportance)
	require.NoError(t, err)
	require.Len(t, rows, 4)
	assert.Equal(t, "Gradient Boosting", rows[1][0], "models sorted by name")

	rows, err = f.GetRows(SheetPredictions)
	require.NoError(t, err)
	assert.Equal(t, []string{"Actual", "Random Forest", "Linear Regression"}, rows[0])
	assert.Equal(t, []string{"2", "2.5", "1.5"}, rows[2])

	err = ExportWorkbook(path, nil, nil, []PredictionSet{{Model: "x", Actual: []float64{1}}})
	assert.ErrorIs(t, err, apperrors.ErrShapeMismatch)
}
