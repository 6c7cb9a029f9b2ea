package report

import (
	"fmt"
	"image/color"
	"math"
	"os"
	"path/filepath"
	"time"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/palette/moreland"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
	"gonum.org/v1/plot/vg/vgimg"

	"salesforecast/internal/dataset"
	apperrors "salesforecast/internal/errors"
	"salesforecast/internal/model"
)

const (
	chartWidth  = 8 * vg.Inch
	chartHeight = 5 * vg.Inch
	histBins    = 30
)

var (
	barColor  = color.RGBA{R: 70, G: 130, B: 180, A: 255}
	lineColor = color.RGBA{R: 200, G: 40, B: 40, A: 255}
)

func save(p *plot.Plot, path string, w, h vg.Length) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return apperrors.NewStorageError("create chart directory", err)
	}
	if err := p.Save(w, h, path); err != nil {
		return apperrors.NewStorageError(fmt.Sprintf("save chart %s", path), err)
	}
	return nil
}

// savePanels lays plots out side by side in one PNG.
func savePanels(path string, w, h vg.Length, panels ...*plot.Plot) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return apperrors.NewStorageError("create chart directory", err)
	}
	img := vgimg.New(w, h)
	dc := draw.New(img)
	tiles := draw.Tiles{Rows: 1, Cols: len(panels), PadX: 6 * vg.Millimeter, PadY: 4 * vg.Millimeter}
	canvases := plot.Align([][]*plot.Plot{panels}, tiles, dc)
	for i, p := range panels {
		p.Draw(canvases[0][i])
	}

	f, err := os.Create(path)
	if err != nil {
		return apperrors.NewStorageError(fmt.Sprintf("create chart %s", path), err)
	}
	if _, err := (vgimg.PngCanvas{Canvas: img}).WriteTo(f); err != nil {
		f.Close()
		return apperrors.NewStorageError(fmt.Sprintf("write chart %s", path), err)
	}
	return f.Close()
}

func checkPairs(actual, predicted []float64) error {
	if len(actual) != len(predicted) {
		return apperrors.ShapeMismatch("%d actual values but %d predictions", len(actual), len(predicted))
	}
	if len(actual) == 0 {
		return apperrors.InvalidParameter("nothing to plot")
	}
	return nil
}

// PlotDistribution draws a histogram and a box plot of the observed values.
func PlotDistribution(path, column string, values []float64) error {
	obs := dataset.Observed(values)
	if len(obs) == 0 {
		return apperrors.InvalidParameter("column %q has no observed values", column)
	}

	hp := plot.New()
	hp.Title.Text = "Histogram of " + column
	hp.X.Label.Text = column
	hp.Y.Label.Text = "count"
	hist, err := plotter.NewHist(plotter.Values(obs), histBins)
	if err != nil {
		return err
	}
	hist.FillColor = barColor
	hp.Add(hist)

	bp := plot.New()
	bp.Title.Text = "Boxplot of " + column
	box, err := plotter.NewBoxPlot(vg.Points(40), 0, plotter.Values(obs))
	if err != nil {
		return err
	}
	bp.Add(box)
	bp.NominalX(column)

	return savePanels(path, 2*chartWidth, chartHeight, hp, bp)
}

// CorrelationMatrix computes pairwise Pearson correlations of the numeric
// columns, each pair over the rows where both values are observed. Pairs
// without variance get 0.
func CorrelationMatrix(ds *dataset.Dataset) ([]string, *mat.SymDense) {
	names := ds.NumericNames()
	cols := make([][]float64, len(names))
	for i, n := range names {
		cols[i], _ = ds.Floats(n)
	}
	corr := mat.NewSymDense(len(names), nil)
	for i := range names {
		corr.SetSym(i, i, 1)
		for j := i + 1; j < len(names); j++ {
			var a, b []float64
			for r := range cols[i] {
				if !math.IsNaN(cols[i][r]) && !math.IsNaN(cols[j][r]) {
					a = append(a, cols[i][r])
					b = append(b, cols[j][r])
				}
			}
			c := 0.0
			if len(a) > 1 {
				c = stat.Correlation(a, b, nil)
			}
			if math.IsNaN(c) {
				c = 0
			}
			corr.SetSym(i, j, c)
		}
	}
	return names, corr
}

type corrGrid struct{ m *mat.SymDense }

func (g corrGrid) Dims() (c, r int)   { n := g.m.SymmetricDim(); return n, n }
func (g corrGrid) Z(c, r int) float64 { return g.m.At(r, c) }
func (g corrGrid) X(c int) float64    { return float64(c) }
func (g corrGrid) Y(r int) float64    { return float64(r) }

// PlotCorrelation draws a heat map of CorrelationMatrix.
func PlotCorrelation(path string, ds *dataset.Dataset) error {
	names, corr := CorrelationMatrix(ds)
	if len(names) < 2 {
		return apperrors.InvalidParameter("correlation needs at least two numeric columns, got %d", len(names))
	}
	cm := moreland.SmoothBlueRed()
	cm.SetMin(-1)
	cm.SetMax(1)
	hm := plotter.NewHeatMap(corrGrid{corr}, cm.Palette(255))
	hm.Min, hm.Max = -1, 1

	p := plot.New()
	p.Title.Text = "Correlation Matrix"
	p.Add(hm)
	p.NominalX(names...)
	p.NominalY(names...)
	p.X.Tick.Label.Rotation = math.Pi / 4
	p.X.Tick.Label.XAlign = draw.XRight

	side := vg.Length(max(6, len(names)/2)) * vg.Inch
	return save(p, path, side, side)
}

// PlotTimeSeries draws values against dates. Rows with a missing date or
// value are skipped.
func PlotTimeSeries(path, title string, dates []time.Time, values []float64) error {
	if len(dates) != len(values) {
		return apperrors.ShapeMismatch("%d dates but %d values", len(dates), len(values))
	}
	pts := make(plotter.XYs, 0, len(dates))
	for i, d := range dates {
		if d.IsZero() || math.IsNaN(values[i]) {
			continue
		}
		pts = append(pts, plotter.XY{X: float64(d.Unix()), Y: values[i]})
	}
	if len(pts) == 0 {
		return apperrors.InvalidParameter("no observed points to plot")
	}

	p := plot.New()
	p.Title.Text = title
	p.X.Tick.Marker = plot.TimeTicks{Format: "2006-01-02"}
	p.Add(plotter.NewGrid())
	line, err := plotter.NewLine(pts)
	if err != nil {
		return err
	}
	line.Color = barColor
	p.Add(line)
	return save(p, path, 2*chartWidth, chartHeight)
}

// PlotPredictions draws predicted against actual values with the identity line.
func PlotPredictions(path, modelName string, actual, predicted []float64) error {
	if err := checkPairs(actual, predicted); err != nil {
		return err
	}
	pts := make(plotter.XYs, len(actual))
	for i := range actual {
		pts[i] = plotter.XY{X: actual[i], Y: predicted[i]}
	}

	p := plot.New()
	p.Title.Text = "Predicted vs Actual: " + modelName
	p.X.Label.Text = "actual"
	p.Y.Label.Text = "predicted"
	sc, err := plotter.NewScatter(pts)
	if err != nil {
		return err
	}
	sc.GlyphStyle.Color = barColor
	identity := plotter.NewFunction(func(x float64) float64 { return x })
	identity.Color = lineColor
	identity.Dashes = []vg.Length{vg.Points(4), vg.Points(4)}
	p.Add(sc, identity)
	return save(p, path, chartWidth, chartWidth)
}

// PlotResiduals draws actual minus predicted against predicted.
func PlotResiduals(path, modelName string, actual, predicted []float64) error {
	if err := checkPairs(actual, predicted); err != nil {
		return err
	}
	pts := make(plotter.XYs, len(actual))
	for i := range actual {
		pts[i] = plotter.XY{X: predicted[i], Y: actual[i] - predicted[i]}
	}

	p := plot.New()
	p.Title.Text = "Residuals: " + modelName
	p.X.Label.Text = "predicted"
	p.Y.Label.Text = "residual"
	sc, err := plotter.NewScatter(pts)
	if err != nil {
		return err
	}
	sc.GlyphStyle.Color = barColor
	zero := plotter.NewFunction(func(float64) float64 { return 0 })
	zero.Color = lineColor
	p.Add(sc, zero)
	return save(p, path, chartWidth, chartHeight)
}

// PlotModelComparison draws one bar panel per metric.
func PlotModelComparison(path string, rows []model.Ranking) error {
	if len(rows) == 0 {
		return apperrors.InvalidParameter("no evaluated models to compare")
	}
	names := make([]string, len(rows))
	metrics := map[string]plotter.Values{}
	order := []string{"RMSE", "MAE", "R2"}
	for i, r := range rows {
		names[i] = r.Model
		metrics["RMSE"] = append(metrics["RMSE"], r.RMSE)
		metrics["MAE"] = append(metrics["MAE"], r.MAE)
		metrics["R2"] = append(metrics["R2"], r.R2)
	}

	panels := make([]*plot.Plot, 0, len(order))
	for _, m := range order {
		p := plot.New()
		p.Title.Text = "Comparison: " + m
		bars, err := plotter.NewBarChart(metrics[m], vg.Points(30))
		if err != nil {
			return err
		}
		bars.Color = barColor
		p.Add(bars)
		p.NominalX(names...)
		panels = append(panels, p)
	}
	return savePanels(path, 2*chartWidth, chartHeight, panels...)
}

// PlotFeatureImportance draws a horizontal bar per feature, largest on top.
func PlotFeatureImportance(path, modelName string, imp []model.Importance) error {
	if len(imp) == 0 {
		return apperrors.InvalidParameter("model %q has no feature importances", modelName)
	}
	n := len(imp)
	vals := make(plotter.Values, n)
	names := make([]string, n)
	for i, f := range imp {
		vals[n-1-i] = f.Importance
		names[n-1-i] = f.Feature
	}

	p := plot.New()
	p.Title.Text = fmt.Sprintf("Top %d Features: %s", n, modelName)
	bars, err := plotter.NewBarChart(vals, vg.Points(12))
	if err != nil {
		return err
	}
	bars.Horizontal = true
	bars.Color = barColor
	p.Add(bars)
	p.NominalY(names...)
	return save(p, path, chartWidth, vg.Length(max(4, n/3))*vg.Inch)
}

// PlotMissingValues draws the missing percentage of each column that has
// missing values.
func PlotMissingValues(path string, info dataset.Info) error {
	var vals plotter.Values
	var names []string
	for _, f := range info.Fields {
		if f.Missing > 0 {
			vals = append(vals, f.MissingPct)
			names = append(names, f.Name)
		}
	}
	if len(vals) == 0 {
		return apperrors.InvalidParameter("dataset has no missing values")
	}

	p := plot.New()
	p.Title.Text = "Missing Values by Column"
	p.Y.Label.Text = "% missing"
	bars, err := plotter.NewBarChart(vals, vg.Points(20))
	if err != nil {
		return err
	}
	bars.Color = lineColor
	p.Add(bars)
	p.NominalX(names...)
	return save(p, path, chartWidth, chartHeight)
}
