package features

import (
	"context"
	"fmt"
	"math"
	"slices"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/floats"

	"salesforecast/internal/dataset"
	apperrors "salesforecast/internal/errors"
)

// Binning describes a discretisation. Edges, when set, take precedence over
// Bins and must be strictly increasing. Labels, when set, name each interval.
type Binning struct {
	Bins   int
	Edges  []float64
	Labels []string
}

// CreateBinningFeatures adds the categorical column <col>_binned. Intervals
// are right-closed. Equal-width edges span the observed range with the lowest
// edge lowered by 0.1% of the range so the minimum falls in the first bin.
// Values outside the edges, and missing values, are missing. A replaying
// Engineer ignores b and uses the edges and labels fitted for col.
func (e *Engineer) CreateBinningFeatures(ctx context.Context, ds *dataset.Dataset, col string, b Binning) (*dataset.Dataset, error) {
	vals, err := numericColumn(ds, col)
	if err != nil {
		return nil, err
	}

	var fit BinState
	if e.fitted != nil {
		if fit, err = e.fitted.bins(col); err != nil {
			return nil, err
		}
	} else if fit, err = fitBins(col, vals, b); err != nil {
		return nil, err
	}

	edges, labels := fit.Edges, fit.Labels
	nBins := len(edges) - 1
	out := make([]string, len(vals))
	for i, v := range vals {
		if math.IsNaN(v) || v <= edges[0] || v > edges[nBins] {
			continue
		}
		// First edge >= v closes the bin on the right.
		k, _ := slices.BinarySearch(edges, v)
		out[i] = labels[k-1]
	}

	res, err := e.add(ctx, ds, FamilyBinning, dataset.NewCategorical(col+"_binned", out))
	if err != nil {
		return nil, err
	}
	if e.fitted == nil {
		e.state.putBins(fit)
	}
	return res, nil
}

func fitBins(col string, vals []float64, b Binning) (BinState, error) {
	edges := slices.Clone(b.Edges)
	if len(edges) == 0 {
		var err error
		if edges, err = equalWidthEdges(vals, b.Bins); err != nil {
			return BinState{}, err
		}
	} else if len(edges) < 2 {
		return BinState{}, apperrors.InvalidParameter("binning needs at least two edges, got %d", len(edges))
	}
	for i := 1; i < len(edges); i++ {
		if edges[i] <= edges[i-1] {
			return BinState{}, apperrors.InvalidParameter("bin edges must increase strictly")
		}
	}

	nBins := len(edges) - 1
	labels := slices.Clone(b.Labels)
	if len(labels) == 0 {
		labels = intervalLabels(edges)
	} else if len(labels) != nBins {
		return BinState{}, apperrors.InvalidParameter("got %d labels for %d bins", len(labels), nBins)
	}
	return BinState{Column: col, Edges: edges, Labels: labels}, nil
}

func equalWidthEdges(vals []float64, bins int) ([]float64, error) {
	if bins < 1 {
		return nil, apperrors.InvalidParameter("bins must be at least 1, got %d", bins)
	}
	obs := dataset.Observed(vals)
	if len(obs) == 0 {
		return nil, apperrors.NumericDegeneracy("cannot bin a column without observed values")
	}
	lo, hi := floats.Min(obs), floats.Max(obs)
	if lo == hi {
		adj := 0.001 * math.Abs(lo)
		if adj == 0 {
			adj = 0.001
		}
		lo, hi = lo-adj, hi+adj
		return floats.Span(make([]float64, bins+1), lo, hi), nil
	}
	edges := floats.Span(make([]float64, bins+1), lo, hi)
	edges[0] -= (hi - lo) * 0.001
	return edges, nil
}

func intervalLabels(edges []float64) []string {
	labels := make([]string, len(edges)-1)
	for i := range labels {
		labels[i] = fmt.Sprintf("(%s, %s]", trimFloat(edges[i]), trimFloat(edges[i+1]))
	}
	return labels
}

func trimFloat(v float64) string {
	s := strconv.FormatFloat(v, 'f', 3, 64)
	s = strings.TrimRight(s, "0")
	return strings.TrimSuffix(s, ".")
}
