package model

import (
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/mat"

	"salesforecast/internal/dataset"
	apperrors "salesforecast/internal/errors"
)

// Split is a seeded train/test partition of a modelling table.
type Split struct {
	Target   string
	Features []string

	XTrain *mat.Dense
	XTest  *mat.Dense
	YTrain []float64
	YTest  []float64

	// TrainRows and TestRows index into the source dataset.
	TrainRows []int
	TestRows  []int
}

// Train returns the training rows of the source dataset restricted to the
// feature columns.
func (s *Split) Train(ds *dataset.Dataset) (*dataset.Dataset, error) {
	return ds.Take(s.TrainRows).Select(s.Features...)
}

// Test returns the test rows of the source dataset restricted to the
// feature columns.
func (s *Split) Test(ds *dataset.Dataset) (*dataset.Dataset, error) {
	return ds.Take(s.TestRows).Select(s.Features...)
}

// PrepareData separates target from features and partitions the rows. Every
// other column becomes a feature, so all of them must be numeric and free of
// missing values. The test set holds ceil(testSize*n) rows chosen by a
// permutation seeded with seed.
func PrepareData(ds *dataset.Dataset, target string, testSize float64, seed int64) (*Split, error) {
	tcol, err := ds.Column(target)
	if err != nil {
		return nil, err
	}
	if tcol.Kind() != dataset.Numeric {
		return nil, apperrors.InvalidParameter("target column %q is %s, want numeric", target, tcol.Kind())
	}
	if testSize <= 0 || testSize >= 1 {
		return nil, apperrors.InvalidParameter("test size must be in (0, 1), got %g", testSize)
	}

	var features, bad []string
	for _, c := range ds.Columns() {
		if c.Name() == target {
			continue
		}
		features = append(features, c.Name())
		if c.Kind() != dataset.Numeric {
			bad = append(bad, c.Name())
		}
	}
	if len(features) == 0 {
		return nil, apperrors.InvalidParameter("no feature columns besides target %q", target)
	}
	if len(bad) > 0 {
		return nil, apperrors.InvalidParameter("feature columns must be numeric, got non-numeric %v", bad)
	}
	for _, c := range ds.Columns() {
		if c.MissingCount() > 0 {
			bad = append(bad, c.Name())
		}
	}
	if len(bad) > 0 {
		return nil, apperrors.InvalidParameter("columns contain missing values: %v", bad)
	}

	n := ds.NumRows()
	nTest := int(math.Ceil(testSize * float64(n)))
	if n < 2 || nTest >= n {
		return nil, apperrors.InvalidParameter("%d rows cannot be split with test size %g", n, testSize)
	}

	perm := rand.New(rand.NewPCG(uint64(seed), 0)).Perm(n)
	testRows := perm[:nTest]
	trainRows := perm[nTest:]

	s := &Split{
		Target:    target,
		Features:  features,
		TrainRows: trainRows,
		TestRows:  testRows,
	}
	if s.XTrain, err = ds.Take(trainRows).Matrix(features); err != nil {
		return nil, err
	}
	if s.XTest, err = ds.Take(testRows).Matrix(features); err != nil {
		return nil, err
	}
	y := tcol.Floats()
	s.YTrain = pick(y, trainRows)
	s.YTest = pick(y, testRows)
	return s, nil
}

func pick(xs []float64, rows []int) []float64 {
	out := make([]float64, len(rows))
	for i, r := range rows {
		out[i] = xs[r]
	}
	return out
}
