package services

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"salesforecast/internal/config"
	"salesforecast/internal/dataset"
	apperrors "salesforecast/internal/errors"
	"salesforecast/internal/infrastructure"
	"salesforecast/internal/model"
	"salesforecast/internal/pipeline"
	"salesforecast/internal/preprocess"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// linearBundle fits sales = 2*price + 3*quantity + 10 on standardised
// features, so predictions on raw inputs are exact.
func linearBundle(t *testing.T) *pipeline.Bundle {
	t.Helper()
	ctx := context.Background()
	var price, qty, sales []float64
	for i := 0; i < 30; i++ {
		p, q := float64(i%10+1), float64(i%7+1)
		price, qty = append(price, p), append(qty, q)
		sales = append(sales, 2*p+3*q+10)
	}
	ds := dataset.MustNew(
		dataset.NewNumeric("Price", price),
		dataset.NewNumeric("Quantity", qty),
	)
	features := []string{"Price", "Quantity"}

	pre := preprocess.New(testLogger())
	scaled, err := pre.ScaleFeatures(ctx, ds, features, preprocess.ScalingStandard)
	require.NoError(t, err)
	X, err := scaled.Matrix(features)
	require.NoError(t, err)

	tr := model.NewTrainer(testLogger())
	m, err := tr.TrainLinearRegression(ctx, X, sales, features, "")
	require.NoError(t, err)

	return &pipeline.Bundle{
		Manifest: pipeline.Manifest{
			RunID:    "run-1",
			Target:   "Sales",
			Features: features,
			Best:     m.Name,
		},
		Preprocessor: pre,
		Models:       []*model.Model{m},
	}
}

func TestPredictionService_Baseline(t *testing.T) {
	svc := NewPredictionServiceFromBundle(nil, infrastructure.NoopBusinessMetrics(), testLogger())
	assert.False(t, svc.Loaded())
	assert.False(t, svc.Models().Loaded)

	tests := []struct {
		name     string
		features map[string]float64
		want     float64
	}{
		{"defaults", map[string]float64{}, 115},
		{"lower case keys", map[string]float64{"price": 20, "quantity": 3}, 69},
		{"title case keys", map[string]float64{"Price": 10.5, "Quantity": 2}, 24.15},
		{"fractional quantity truncates", map[string]float64{"price": 10, "quantity": 2.9}, 23},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := svc.Predict(context.Background(), tt.features, "")
			require.NoError(t, err)
			assert.True(t, res.Simulated)
			require.Len(t, res.Predictions, 1)
			assert.Equal(t, BaselineModel, res.Predictions[0].Model)
			assert.InDelta(t, tt.want, res.Predictions[0].Value, 1e-9)
		})
	}
}

func TestPredictionService_WithBundle(t *testing.T) {
	svc := NewPredictionServiceFromBundle(linearBundle(t), nil, testLogger())
	require.True(t, svc.Loaded())

	res, err := svc.Predict(context.Background(), map[string]float64{"Price": 5, "Quantity": 2}, "")
	require.NoError(t, err)
	assert.False(t, res.Simulated)
	assert.Equal(t, "run-1", res.RunID)
	require.Len(t, res.Predictions, 1)
	assert.Equal(t, "linear_regression", res.Predictions[0].Kind)
	assert.InDelta(t, 26, res.Predictions[0].Value, 1e-6)

	info := svc.Models()
	assert.True(t, info.Loaded)
	assert.Equal(t, []string{"Price", "Quantity"}, info.Features)
}

func TestPredictionService_Errors(t *testing.T) {
	svc := NewPredictionServiceFromBundle(linearBundle(t), nil, testLogger())

	tests := []struct {
		name     string
		features map[string]float64
		model    string
		want     error
	}{
		{"missing feature", map[string]float64{"Price": 5}, "", apperrors.ErrShapeMismatch},
		{"unexpected feature", map[string]float64{"Price": 5, "Quantity": 1, "Region": 2}, "", apperrors.ErrShapeMismatch},
		{"unknown model", map[string]float64{"Price": 5, "Quantity": 1}, "Neural Net", apperrors.ErrMissingInput},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Predict(context.Background(), tt.features, tt.model)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestNewPredictionService_FromDirectory(t *testing.T) {
	ctx := context.Background()

	empty, err := NewPredictionService(ctx, t.TempDir(), nil, testLogger())
	require.NoError(t, err)
	assert.False(t, empty.Loaded())

	dir := filepath.Join(t.TempDir(), "models")
	require.NoError(t, pipeline.SaveBundle(ctx, dir, linearBundle(t)))
	svc, err := NewPredictionService(ctx, dir, nil, testLogger())
	require.NoError(t, err)
	require.True(t, svc.Loaded())

	res, err := svc.Predict(ctx, map[string]float64{"Price": 1, "Quantity": 1}, "Linear Regression")
	require.NoError(t, err)
	assert.InDelta(t, 15, res.Predictions[0].Value, 1e-6)
}

func salesData() *dataset.Dataset {
	return dataset.MustNew(
		dataset.NewCategorical("Category", []string{"Furniture", "Technology", "Furniture", "Office", ""}),
		dataset.NewCategorical("Region", []string{"South", "West", "West", "East", "East"}),
		dataset.NewNumeric("Sales", []float64{100, 300, 200, 50, 7}),
	)
}

func TestDataService_Stats(t *testing.T) {
	svc := NewDataServiceFromDataset(salesData(), "memory", DataOptions{}, testLogger())
	st, err := svc.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 5, st.TotalRecords)
	assert.InDelta(t, 131.4, st.MeanSales, 1e-9)
	assert.Equal(t, 300.0, st.MaxSales)
	assert.Equal(t, 7.0, st.MinSales)
	assert.Equal(t, 657.0, st.TotalSales)
	assert.Equal(t, 100.0, st.MedianSales)

	_, err = NewDataServiceFromDataset(salesData(), "memory", DataOptions{SalesColumn: "Revenue"}, testLogger()).
		Stats(context.Background())
	assert.ErrorIs(t, err, apperrors.ErrMissingInput)
}

func TestDataService_Records(t *testing.T) {
	svc := NewDataServiceFromDataset(salesData(), "memory", DataOptions{}, testLogger())

	page, err := svc.Records(context.Background(), 2)
	require.NoError(t, err)
	assert.Equal(t, 5, page.TotalRecords)
	assert.Equal(t, []string{"Category", "Region", "Sales"}, page.Columns)
	require.Len(t, page.Data, 2)
	assert.Equal(t, "Technology", page.Data[1]["Category"])
	assert.Equal(t, 300.0, page.Data[1]["Sales"])

	page, err = svc.Records(context.Background(), MaxDataLimit)
	require.NoError(t, err)
	assert.Len(t, page.Data, 5)
	assert.Nil(t, page.Data[4]["Category"])

	for _, limit := range []int{0, -1, MaxDataLimit + 1} {
		_, err := svc.Records(context.Background(), limit)
		assert.ErrorIs(t, err, apperrors.ErrInvalidParameter, "limit %d", limit)
	}
}

func TestDataService_Categories(t *testing.T) {
	tests := []struct {
		name   string
		opts   DataOptions
		column string
		groups map[string]CategoryStats
	}{
		{
			name:   "detects category column",
			column: "Category",
			groups: map[string]CategoryStats{
				"Furniture":  {Sum: 300, Mean: 150, Count: 2},
				"Technology": {Sum: 300, Mean: 300, Count: 1},
				"Office":     {Sum: 50, Mean: 50, Count: 1},
			},
		},
		{
			name:   "configured column",
			opts:   DataOptions{CategoryColumn: "Region"},
			column: "Region",
			groups: map[string]CategoryStats{
				"South": {Sum: 100, Mean: 100, Count: 1},
				"West":  {Sum: 500, Mean: 250, Count: 2},
				"East":  {Sum: 57, Mean: 28.5, Count: 2},
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := NewDataServiceFromDataset(salesData(), "memory", tt.opts, testLogger())
			got, err := svc.Categories(context.Background())
			require.NoError(t, err)
			assert.Equal(t, tt.column, got.Column)
			assert.Equal(t, tt.groups, got.Categories)
		})
	}

	_, err := NewDataServiceFromDataset(salesData(), "memory", DataOptions{CategoryColumn: "Sales"}, testLogger()).
		Categories(context.Background())
	assert.ErrorIs(t, err, apperrors.ErrInvalidParameter)
}

func TestNewDataService_FallsBackToSample(t *testing.T) {
	ctx := context.Background()
	svc, err := NewDataService(ctx, filepath.Join(t.TempDir(), "absent.csv"), DataOptions{}, testLogger())
	require.NoError(t, err)
	assert.Equal(t, "sample", svc.Source())

	st, err := svc.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, sampleDays, st.TotalRecords)

	path := filepath.Join(t.TempDir(), "sales.csv")
	require.NoError(t, dataset.SaveCSV(salesData(), path))
	svc, err = NewDataService(ctx, path, DataOptions{}, testLogger())
	require.NoError(t, err)
	assert.Equal(t, path, svc.Source())
}

type fakeHub int

func (f fakeHub) ClientCount() int { return int(f) }

func TestHealthService(t *testing.T) {
	dir := t.TempDir()
	predictor := NewPredictionServiceFromBundle(nil, nil, testLogger())
	hs := NewHealthService("1.2.3", "2026-01-01", config.PathsConfig{DataDir: dir}, predictor, fakeHub(2), testLogger())

	h := hs.HealthCheck(context.Background())
	assert.Equal(t, "healthy", h.Status)
	assert.Equal(t, "1.2.3", h.Version)
	assert.Equal(t, ServiceName, h.Service)

	r := hs.ReadinessCheck(context.Background())
	assert.Equal(t, "ready", r.Status)
	assert.Equal(t, "degraded", r.Services["models"].Status)
	assert.Equal(t, "2 clients connected", r.Services["websocket"].Message)

	hs = NewHealthService("1.2.3", "", config.PathsConfig{DataDir: filepath.Join(dir, "nope")}, nil, nil, testLogger())
	assert.Equal(t, "not_ready", hs.ReadinessCheck(context.Background()).Status)

	v := hs.Version()
	assert.Equal(t, "1.2.3", v.Version)
	assert.NotEmpty(t, v.GoVersion)
	assert.WithinDuration(t, time.Now(), v.StartTime, time.Minute)
	assert.Equal(t, 0, hs.WebSocketClients())
}

// blockingRunner holds each run until release is closed.
type blockingRunner struct {
	release chan struct{}
	err     error
	dir     string
	ids     chan string
}

func (b *blockingRunner) RunWithID(ctx context.Context, id string, _ *config.Config) (*pipeline.Result, error) {
	b.ids <- id
	select {
	case <-b.release:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	if b.err != nil {
		return nil, b.err
	}
	return &pipeline.Result{RunID: id, BundleDir: b.dir}, nil
}

func TestPipelineService_Lifecycle(t *testing.T) {
	ctx := context.Background()
	dir := filepath.Join(t.TempDir(), "models")
	require.NoError(t, pipeline.SaveBundle(ctx, dir, linearBundle(t)))

	predictor := NewPredictionServiceFromBundle(nil, nil, testLogger())
	runner := &blockingRunner{release: make(chan struct{}), dir: dir, ids: make(chan string, 1)}
	svc := NewPipelineService(runner, config.Default(), predictor, testLogger())
	assert.Equal(t, RunIdle, svc.Status().State)

	st, err := svc.Start(ctx)
	require.NoError(t, err)
	assert.Equal(t, RunRunning, st.State)
	assert.Equal(t, st.RunID, <-runner.ids)

	_, err = svc.Start(ctx)
	assert.ErrorIs(t, err, apperrors.ErrUnavailable)

	close(runner.release)
	svc.Wait()
	st = svc.Status()
	assert.Equal(t, RunSucceeded, st.State)
	require.NotNil(t, st.FinishedAt)
	assert.True(t, predictor.Loaded())
	assert.Equal(t, "run-1", predictor.Models().RunID)
}

func TestPipelineService_FailureAndShutdown(t *testing.T) {
	ctx := context.Background()
	runner := &blockingRunner{release: make(chan struct{}), err: apperrors.MissingInput("no input"), ids: make(chan string, 1)}
	svc := NewPipelineService(runner, config.Default(), nil, testLogger())

	_, err := svc.Start(ctx)
	require.NoError(t, err)
	<-runner.ids
	close(runner.release)
	svc.Wait()
	assert.Equal(t, RunFailed, svc.Status().State)
	assert.Contains(t, svc.Status().Error, "no input")

	// A run in flight is cancelled by Shutdown; afterwards Start refuses.
	runner = &blockingRunner{release: make(chan struct{}), ids: make(chan string, 1)}
	svc = NewPipelineService(runner, config.Default(), nil, testLogger())
	_, err = svc.Start(ctx)
	require.NoError(t, err)
	<-runner.ids

	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	require.NoError(t, svc.Shutdown(shutdownCtx))
	assert.Equal(t, RunFailed, svc.Status().State)

	_, err = svc.Start(ctx)
	assert.ErrorIs(t, err, apperrors.ErrUnavailable)
}
