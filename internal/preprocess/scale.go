package preprocess

import (
	"context"
	"log/slog"
	"math"
	"slices"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"salesforecast/internal/dataset"
	apperrors "salesforecast/internal/errors"
)

// Scaler holds per-column parameters: x' = (x - Center) / Scale.
// Standard scaling uses the mean and population standard deviation, min-max
// scaling uses the minimum and range. A zero spread is stored as Scale 1.
type Scaler struct {
	Method  ScalingMethod `json:"method"`
	Columns []string      `json:"columns"`
	Center  []float64     `json:"center"`
	Scale   []float64     `json:"scale"`
	// Degenerate lists columns whose spread was zero when fitted.
	Degenerate []string `json:"degenerate,omitempty"`
}

// FitScaler computes scaling parameters from ds, ignoring missing values.
func FitScaler(ds *dataset.Dataset, columns []string, method ScalingMethod) (*Scaler, error) {
	if method != ScalingStandard && method != ScalingMinMax {
		return nil, unsupported("scaling method", method)
	}
	if len(columns) == 0 {
		columns = ds.NumericNames()
	}

	s := &Scaler{
		Method:  method,
		Columns: slices.Clone(columns),
		Center:  make([]float64, len(columns)),
		Scale:   make([]float64, len(columns)),
	}
	for j, name := range columns {
		vals, err := ds.Floats(name)
		if err != nil {
			return nil, err
		}
		obs := dataset.Observed(vals)
		if len(obs) == 0 {
			return nil, apperrors.NumericDegeneracy("column %q has no observed values to scale", name)
		}

		var center, spread float64
		switch method {
		case ScalingStandard:
			center = stat.Mean(obs, nil)
			_, variance := stat.PopMeanVariance(obs, nil)
			spread = math.Sqrt(variance)
		case ScalingMinMax:
			center = floats.Min(obs)
			spread = floats.Max(obs) - center
		}
		if spread == 0 || math.IsNaN(spread) {
			spread = 1
			s.Degenerate = append(s.Degenerate, name)
		}
		s.Center[j], s.Scale[j] = center, spread
	}
	return s, nil
}

// Transform scales the fitted columns of ds. Other columns pass through.
func (s *Scaler) Transform(ds *dataset.Dataset) (*dataset.Dataset, error) {
	return s.apply(ds, func(v, center, scale float64) float64 { return (v - center) / scale })
}

// InverseTransform undoes Transform.
func (s *Scaler) InverseTransform(ds *dataset.Dataset) (*dataset.Dataset, error) {
	return s.apply(ds, func(v, center, scale float64) float64 { return v*scale + center })
}

// TransformValue scales a single value of the named column.
func (s *Scaler) TransformValue(column string, v float64) (float64, bool) {
	j := slices.Index(s.Columns, column)
	if j < 0 {
		return v, false
	}
	return (v - s.Center[j]) / s.Scale[j], true
}

func (s *Scaler) apply(ds *dataset.Dataset, f func(v, center, scale float64) float64) (*dataset.Dataset, error) {
	cols := make([]dataset.Column, 0, len(s.Columns))
	for j, name := range s.Columns {
		vals, err := ds.Floats(name)
		if err != nil {
			return nil, err
		}
		for i, v := range vals {
			vals[i] = f(v, s.Center[j], s.Scale[j])
		}
		cols = append(cols, dataset.NewNumeric(name, vals))
	}
	return ds.WithColumns(cols...)
}

// ScaleFeatures fits a scaler on ds, retains it and returns ds transformed.
// Columns with zero spread are centred (standard) or zeroed (min-max) and
// reported as a warning.
func (p *Preprocessor) ScaleFeatures(ctx context.Context, ds *dataset.Dataset, columns []string, method ScalingMethod) (*dataset.Dataset, error) {
	s, err := FitScaler(ds, columns, method)
	if err != nil {
		return nil, err
	}
	for _, name := range s.Degenerate {
		p.logger.WarnContext(ctx, "zero spread column, divisor set to 1",
			slog.String("column", name),
			slog.String("method", method.String()))
	}

	out, err := s.Transform(ds)
	if err != nil {
		return nil, err
	}
	p.scaler = s
	p.logger.InfoContext(ctx, "features scaled",
		slog.String("method", method.String()),
		slog.Int("columns", len(s.Columns)))
	return out, nil
}
