package model

import (
	"context"
	"encoding/gob"
	"errors"
	"io"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"salesforecast/internal/dataset"
	apperrors "salesforecast/internal/errors"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// linearData is sales = 2*price + 10 over n rows.
func linearData(n int) *dataset.Dataset {
	price := make([]float64, n)
	sales := make([]float64, n)
	for i := range price {
		price[i] = float64(i + 1)
		sales[i] = 2*price[i] + 10
	}
	return dataset.MustNew(
		dataset.NewNumeric("price", price),
		dataset.NewNumeric("sales", sales),
	)
}

// twoFeatureData has a target driven by x1 only; x2 is the block index and
// carries no signal.
func twoFeatureData(n int) (*mat.Dense, []float64) {
	X := mat.NewDense(n, 2, nil)
	y := make([]float64, n)
	for i := 0; i < n; i++ {
		x1 := float64(i % 20)
		X.Set(i, 0, x1)
		X.Set(i, 1, float64((i/20)%3))
		y[i] = 10 * x1
	}
	return X, y
}

func TestKind(t *testing.T) {
	tests := []struct {
		in   string
		want Kind
	}{
		{"linear_regression", LinearRegression},
		{"Random Forest", RandomForest},
		{" gradient_boosting ", GradientBoosting},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			k, err := ParseKind(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, k)
		})
	}
	_, err := ParseKind("xgboost")
	assert.ErrorIs(t, err, apperrors.ErrInvalidParameter)
	assert.Equal(t, "Linear Regression", LinearRegression.DisplayName())
}

func TestPrepareData(t *testing.T) {
	ds := linearData(10)

	s, err := PrepareData(ds, "sales", 0.25, 42)
	require.NoError(t, err)
	assert.Equal(t, []string{"price"}, s.Features)
	assert.Len(t, s.TestRows, 3, "ceil(0.25*10)")
	assert.Len(t, s.TrainRows, 7)
	r, c := s.XTrain.Dims()
	assert.Equal(t, 7, r)
	assert.Equal(t, 1, c)
	for i, row := range s.TestRows {
		assert.Equal(t, 2*float64(row+1)+10, s.YTest[i])
		assert.Equal(t, float64(row+1), s.XTest.At(i, 0))
	}

	again, err := PrepareData(ds, "sales", 0.25, 42)
	require.NoError(t, err)
	assert.Equal(t, s.TestRows, again.TestRows, "same seed gives same split")

	train, err := s.Train(ds)
	require.NoError(t, err)
	assert.Equal(t, []string{"price"}, train.Names())
}

func TestPrepareData_Invalid(t *testing.T) {
	nan := math.NaN()
	tests := []struct {
		name     string
		ds       *dataset.Dataset
		target   string
		testSize float64
		want     error
	}{
		{"missing target", linearData(5), "revenue", 0.2, apperrors.ErrMissingInput},
		{"test size zero", linearData(5), "sales", 0, apperrors.ErrInvalidParameter},
		{"test size one", linearData(5), "sales", 1, apperrors.ErrInvalidParameter},
		{"no train rows", linearData(2), "sales", 0.9, apperrors.ErrInvalidParameter},
		{"categorical feature", dataset.MustNew(
			dataset.NewNumeric("sales", []float64{1, 2, 3}),
			dataset.NewCategorical("region", []string{"N", "S", "N"}),
		), "sales", 0.3, apperrors.ErrInvalidParameter},
		{"missing values", dataset.MustNew(
			dataset.NewNumeric("sales", []float64{1, 2, 3}),
			dataset.NewNumeric("price", []float64{1, nan, 3}),
		), "sales", 0.3, apperrors.ErrInvalidParameter},
		{"categorical target", dataset.MustNew(
			dataset.NewCategorical("sales", []string{"a", "b"}),
			dataset.NewNumeric("price", []float64{1, 2}),
		), "sales", 0.5, apperrors.ErrInvalidParameter},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := PrepareData(tt.ds, tt.target, tt.testSize, 1)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestLinearRegression_ExactFit(t *testing.T) {
	ctx := context.Background()
	ds := linearData(50)
	s, err := PrepareData(ds, "sales", 0.2, 42)
	require.NoError(t, err)

	tr := NewTrainer(testLogger())
	m, err := tr.TrainLinearRegression(ctx, s.XTrain, s.YTrain, s.Features, "")
	require.NoError(t, err)
	assert.Equal(t, "Linear Regression", m.Name)

	lr := m.Estimator.(*LinearRegressor)
	assert.InDelta(t, 2, lr.Coef[0], 1e-9)
	assert.InDelta(t, 10, lr.Intercept, 1e-9)

	ev, err := tr.EvaluateModel(ctx, m, s.XTest, s.YTest)
	require.NoError(t, err)
	assert.InDelta(t, 1, ev.R2, 1e-9)
	assert.InDelta(t, 0, ev.RMSE, 1e-9)
	assert.True(t, ev.MAPEDefined)
}

func TestLinearRegression_Collinear(t *testing.T) {
	X := mat.NewDense(4, 2, []float64{1, 2, 2, 4, 3, 6, 4, 8})
	y := []float64{3, 5, 7, 9}
	lr := &LinearRegressor{}
	require.NoError(t, lr.Fit(context.Background(), X, y))
	assert.Equal(t, 1, lr.Rank)

	pred, err := lr.Predict(X)
	require.NoError(t, err)
	for i := range y {
		assert.InDelta(t, y[i], pred[i], 1e-9)
	}
}

func TestRegressionTree_StepFunction(t *testing.T) {
	X := mat.NewDense(6, 1, []float64{1, 2, 3, 10, 11, 12})
	y := []float64{5, 5, 5, 20, 20, 20}
	tree := NewRegressionTree(WithMaxDepth(3))
	require.NoError(t, tree.Fit(context.Background(), X, y))

	assert.Equal(t, 1, tree.Depth())
	assert.InDelta(t, 6.5, tree.Nodes[0].Threshold, 1e-12)
	pred, err := tree.Predict(mat.NewDense(2, 1, []float64{0, 100}))
	require.NoError(t, err)
	assert.Equal(t, []float64{5, 20}, pred)
	assert.Equal(t, []float64{1}, tree.FeatureImportances())
}

func TestRegressionTree_MinSamplesLeaf(t *testing.T) {
	X := mat.NewDense(4, 1, []float64{1, 2, 3, 4})
	y := []float64{0, 0, 0, 100}
	tree := NewRegressionTree(WithMinSamplesLeaf(2))
	require.NoError(t, tree.Fit(context.Background(), X, y))
	for _, n := range tree.Nodes {
		if n.Leaf {
			assert.GreaterOrEqual(t, n.Samples, 2)
		}
	}
}

func TestForest_DeterministicAcrossWorkers(t *testing.T) {
	ctx := context.Background()
	X, y := twoFeatureData(80)

	fit := func(workers int) []float64 {
		p := DefaultRandomForestParams()
		p.Trees = 20
		p.Workers = workers
		f := NewForest(p)
		require.NoError(t, f.Fit(ctx, X, y))
		pred, err := f.Predict(X)
		require.NoError(t, err)
		return pred
	}
	assert.Equal(t, fit(1), fit(4))
}

func TestForest_InvalidParams(t *testing.T) {
	X, y := twoFeatureData(10)
	err := NewForest(RandomForestParams{Trees: 0}).Fit(context.Background(), X, y)
	assert.ErrorIs(t, err, apperrors.ErrInvalidParameter)
}

func TestForest_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	X, y := twoFeatureData(10)
	err := NewForest(DefaultRandomForestParams()).Fit(ctx, X, y)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestBooster_BeatsMean(t *testing.T) {
	ctx := context.Background()
	X, y := twoFeatureData(60)
	p := DefaultBoostingParams()
	p.Trees = 50
	p.MaxDepth = 3
	b := NewBooster(p)
	require.NoError(t, b.Fit(ctx, X, y))

	pred, err := b.Predict(X)
	require.NoError(t, err)
	ev, err := Score(y, pred)
	require.NoError(t, err)
	assert.Greater(t, ev.R2, 0.95)

	p.Subsample = 0.5
	sub := NewBooster(p)
	require.NoError(t, sub.Fit(ctx, X, y))
	again := NewBooster(p)
	require.NoError(t, again.Fit(ctx, X, y))
	p1, _ := sub.Predict(X)
	p2, _ := again.Predict(X)
	assert.Equal(t, p1, p2, "seeded subsampling is reproducible")
}

func TestBooster_InvalidParams(t *testing.T) {
	X, y := twoFeatureData(10)
	tests := []struct {
		name string
		mut  func(*BoostingParams)
	}{
		{"learning rate", func(p *BoostingParams) { p.LearningRate = 0 }},
		{"subsample", func(p *BoostingParams) { p.Subsample = 1.5 }},
		{"trees", func(p *BoostingParams) { p.Trees = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := DefaultBoostingParams()
			tt.mut(&p)
			assert.ErrorIs(t, NewBooster(p).Fit(context.Background(), X, y), apperrors.ErrInvalidParameter)
		})
	}
}

func TestScore(t *testing.T) {
	t.Run("mape skips zero truth", func(t *testing.T) {
		ev, err := Score([]float64{0, 10, 20}, []float64{1, 11, 18})
		require.NoError(t, err)
		assert.Equal(t, 1, ev.MAPEExcluded)
		assert.True(t, ev.MAPEDefined)
		assert.InDelta(t, 10, ev.MAPE, 1e-9)
		assert.InDelta(t, 4.0/3, ev.MAE, 1e-9)
		assert.InDelta(t, math.Sqrt(2), ev.RMSE, 1e-9)
	})
	t.Run("all zero truth", func(t *testing.T) {
		ev, err := Score([]float64{0, 0}, []float64{1, 1})
		require.NoError(t, err)
		assert.False(t, ev.MAPEDefined)
		assert.Equal(t, 0.0, ev.MAPE)
		assert.True(t, ev.ConstantTarget)
		assert.Equal(t, 0.0, ev.R2)
	})
	t.Run("constant target perfect fit", func(t *testing.T) {
		ev, err := Score([]float64{5, 5, 5}, []float64{5, 5, 5})
		require.NoError(t, err)
		assert.Equal(t, 1.0, ev.R2)
	})
	t.Run("length mismatch", func(t *testing.T) {
		_, err := Score([]float64{1}, []float64{1, 2})
		assert.ErrorIs(t, err, apperrors.ErrShapeMismatch)
	})
	t.Run("empty", func(t *testing.T) {
		_, err := Score(nil, nil)
		assert.ErrorIs(t, err, apperrors.ErrInvalidParameter)
	})
}

func TestCompareModels(t *testing.T) {
	ctx := context.Background()
	X, y := twoFeatureData(40)
	features := []string{"x1", "x2"}
	tr := NewTrainer(testLogger())

	noisy := make([]float64, len(y))
	for i := range y {
		noisy[i] = y[len(y)-1-i]
	}
	weak, err := tr.TrainLinearRegression(ctx, X, noisy, features, "weak")
	require.NoError(t, err)
	first, err := tr.TrainLinearRegression(ctx, X, y, features, "first")
	require.NoError(t, err)
	second, err := tr.TrainLinearRegression(ctx, X, y, features, "second")
	require.NoError(t, err)
	for _, m := range []*Model{weak, first, second} {
		_, err := tr.EvaluateModel(ctx, m, X, y)
		require.NoError(t, err)
	}

	rows := tr.CompareModels()
	require.Len(t, rows, 3)
	assert.Equal(t, "first", rows[0].Model, "strictly higher r2 wins and ties keep insertion order")
	assert.Equal(t, "second", rows[1].Model)
	assert.Equal(t, "weak", rows[2].Model)
	assert.Equal(t, []int{1, 2, 3}, []int{rows[0].Rank, rows[1].Rank, rows[2].Rank})
	assert.Less(t, rows[2].R2, rows[0].R2)

	best, bestEval, err := tr.Best()
	require.NoError(t, err)
	assert.Equal(t, "first", best.Name)
	assert.Equal(t, rows[0].Evaluation, bestEval)
}

func TestBest_NothingCompared(t *testing.T) {
	_, _, err := NewTrainer(testLogger()).Best()
	assert.ErrorIs(t, err, apperrors.ErrMissingInput)
}

func TestTrainer_Unavailable(t *testing.T) {
	X, y := twoFeatureData(20)
	tr := NewTrainer(testLogger(), WithDisabled(GradientBoosting))
	assert.False(t, tr.Capabilities().Available(GradientBoosting))
	assert.Equal(t, []Kind{LinearRegression, RandomForest}, tr.Capabilities().Kinds())

	m, err := tr.TrainGradientBoosting(context.Background(), X, y, []string{"a", "b"}, "", DefaultBoostingParams())
	assert.Nil(t, m)
	assert.ErrorIs(t, err, apperrors.ErrUnavailable)
	var ue *UnavailableError
	require.True(t, errors.As(err, &ue))
	assert.Equal(t, GradientBoosting, ue.Kind)
	assert.Empty(t, tr.Models())
}

func TestTrainer_FeatureNameMismatch(t *testing.T) {
	X, y := twoFeatureData(20)
	_, err := NewTrainer(testLogger()).TrainLinearRegression(context.Background(), X, y, []string{"only"}, "")
	assert.ErrorIs(t, err, apperrors.ErrShapeMismatch)
}

func TestFeatureImportance(t *testing.T) {
	ctx := context.Background()
	X, y := twoFeatureData(60)
	features := []string{"x1", "x2"}
	tr := NewTrainer(testLogger())

	p := DefaultRandomForestParams()
	p.Trees = 10
	_, err := tr.TrainRandomForest(ctx, X, y, features, "rf", p)
	require.NoError(t, err)
	imp, err := tr.FeatureImportance("rf", nil, 1)
	require.NoError(t, err)
	require.Len(t, imp, 1)
	assert.Equal(t, "x1", imp[0].Feature)

	all, err := tr.FeatureImportance("rf", features, 0)
	require.NoError(t, err)
	sum := 0.0
	for _, i := range all {
		sum += i.Importance
	}
	assert.InDelta(t, 1, sum, 1e-9)

	_, err = tr.TrainLinearRegression(ctx, X, y, features, "lr")
	require.NoError(t, err)
	none, err := tr.FeatureImportance("lr", nil, 5)
	require.NoError(t, err)
	assert.Empty(t, none)

	_, err = tr.FeatureImportance("missing", nil, 5)
	assert.ErrorIs(t, err, apperrors.ErrMissingInput)
	_, err = tr.FeatureImportance("rf", []string{"x1"}, 5)
	assert.ErrorIs(t, err, apperrors.ErrShapeMismatch)
}

func TestModel_PredictRequiresTrainingColumns(t *testing.T) {
	ctx := context.Background()
	ds := dataset.MustNew(
		dataset.NewNumeric("a", []float64{1, 2, 3, 4}),
		dataset.NewNumeric("b", []float64{4, 1, 3, 2}),
		dataset.NewNumeric("y", []float64{5, 3, 6, 6}),
	)
	X, err := ds.Matrix([]string{"a", "b"})
	require.NoError(t, err)
	m, err := NewTrainer(testLogger()).TrainLinearRegression(ctx, X, ds.Columns()[2].Floats(), []string{"a", "b"}, "")
	require.NoError(t, err)

	ok, err := ds.Select("a", "b")
	require.NoError(t, err)
	_, err = m.Predict(ok)
	require.NoError(t, err)

	swapped, err := ds.Select("b", "a")
	require.NoError(t, err)
	_, err = m.Predict(swapped)
	assert.ErrorIs(t, err, apperrors.ErrShapeMismatch)

	_, err = m.PredictMatrix(mat.NewDense(1, 3, nil))
	assert.ErrorIs(t, err, apperrors.ErrShapeMismatch)
}

func TestPersistence_RoundTrip(t *testing.T) {
	ctx := context.Background()
	X, y := twoFeatureData(40)
	features := []string{"x1", "x2"}
	tr := NewTrainer(testLogger())

	rf := DefaultRandomForestParams()
	rf.Trees = 5
	gb := DefaultBoostingParams()
	gb.Trees = 5
	_, err := tr.TrainLinearRegression(ctx, X, y, features, "")
	require.NoError(t, err)
	_, err = tr.TrainRandomForest(ctx, X, y, features, "", rf)
	require.NoError(t, err)
	_, err = tr.TrainGradientBoosting(ctx, X, y, features, "", gb)
	require.NoError(t, err)

	dir := t.TempDir()
	for _, m := range tr.Models() {
		t.Run(m.Kind.String(), func(t *testing.T) {
			path := filepath.Join(dir, "nested", m.Kind.String()+".gob")
			require.NoError(t, tr.SaveModel(ctx, m.Name, path))

			loaded, err := NewTrainer(testLogger()).LoadModel(ctx, path, "", m.Kind)
			require.NoError(t, err)
			assert.Equal(t, m.Name, loaded.Name)
			assert.Equal(t, features, loaded.Features)

			want, err := m.PredictMatrix(X)
			require.NoError(t, err)
			got, err := loaded.PredictMatrix(X)
			require.NoError(t, err)
			assert.Equal(t, want, got)

			_, err = Load(path, (m.Kind+1)%3)
			assert.ErrorIs(t, err, apperrors.ErrInvalidParameter)
		})
	}
}

func TestPersistence_Errors(t *testing.T) {
	dir := t.TempDir()
	_, err := Load(filepath.Join(dir, "absent.gob"), LinearRegression)
	assert.ErrorIs(t, err, apperrors.ErrMissingInput)

	_, err = NewTrainer(testLogger()).LoadModel(context.Background(), filepath.Join(dir, "absent.gob"), "x", LinearRegression)
	assert.ErrorIs(t, err, apperrors.ErrMissingInput)

	path := filepath.Join(dir, "tampered.gob")
	f, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, gob.NewEncoder(f).Encode(&envelope{
		Version: envelopeVersion,
		Kind:    LinearRegression,
		Name:    "lr",
		Payload: []byte("not the checksummed bytes"),
	}))
	require.NoError(t, f.Close())
	_, err = Load(path, LinearRegression)
	assert.ErrorIs(t, err, apperrors.ErrParsing)

	err = NewTrainer(testLogger()).SaveModel(context.Background(), "nope", filepath.Join(dir, "x.gob"))
	assert.ErrorIs(t, err, apperrors.ErrMissingInput)
}
