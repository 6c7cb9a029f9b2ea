package features

import (
	"context"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"salesforecast/internal/dataset"
	apperrors "salesforecast/internal/errors"
)

// CreateLagFeatures adds <col>_lag_<k>, the value k rows earlier. The first k
// rows are missing. Rows are used in their current order, so callers sort
// chronologically first.
func (e *Engineer) CreateLagFeatures(ctx context.Context, ds *dataset.Dataset, col string, lags []int) (*dataset.Dataset, error) {
	vals, err := numericColumn(ds, col)
	if err != nil {
		return nil, err
	}
	cols := make([]dataset.Column, 0, len(lags))
	for _, k := range lags {
		if k < 1 {
			return nil, apperrors.InvalidParameter("lag must be at least 1, got %d", k)
		}
		shifted := make([]float64, len(vals))
		for i := range shifted {
			if i < k {
				shifted[i] = math.NaN()
			} else {
				shifted[i] = vals[i-k]
			}
		}
		cols = append(cols, dataset.NewNumeric(fmt.Sprintf("%s_lag_%d", col, k), shifted))
	}
	return e.add(ctx, ds, FamilyLag, cols...)
}

// CreateRollingFeatures adds <col>_rolling_{mean,std,max,min}_<w> over the
// trailing w rows including the current one. The first w-1 rows, and any row
// whose window holds a missing value, are missing. std is the sample
// standard deviation, so it is missing for w = 1.
func (e *Engineer) CreateRollingFeatures(ctx context.Context, ds *dataset.Dataset, col string, windows []int) (*dataset.Dataset, error) {
	vals, err := numericColumn(ds, col)
	if err != nil {
		return nil, err
	}
	cols := make([]dataset.Column, 0, 4*len(windows))
	for _, w := range windows {
		if w < 1 {
			return nil, apperrors.InvalidParameter("rolling window must be at least 1, got %d", w)
		}
		n := len(vals)
		means, stds, maxs, mins := nanSlice(n), nanSlice(n), nanSlice(n), nanSlice(n)
		for i := w - 1; i < n; i++ {
			win := vals[i-w+1 : i+1]
			if floats.HasNaN(win) {
				continue
			}
			means[i] = stat.Mean(win, nil)
			if w > 1 {
				stds[i] = stat.StdDev(win, nil)
			}
			maxs[i] = floats.Max(win)
			mins[i] = floats.Min(win)
		}
		prefix := fmt.Sprintf("%s_rolling_", col)
		cols = append(cols,
			dataset.NewNumeric(fmt.Sprintf("%smean_%d", prefix, w), means),
			dataset.NewNumeric(fmt.Sprintf("%sstd_%d", prefix, w), stds),
			dataset.NewNumeric(fmt.Sprintf("%smax_%d", prefix, w), maxs),
			dataset.NewNumeric(fmt.Sprintf("%smin_%d", prefix, w), mins),
		)
	}
	return e.add(ctx, ds, FamilyRolling, cols...)
}

func nanSlice(n int) []float64 {
	s := make([]float64, n)
	for i := range s {
		s[i] = math.NaN()
	}
	return s
}
