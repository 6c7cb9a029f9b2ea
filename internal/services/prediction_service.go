package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"slices"
	"sort"
	"sync/atomic"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"gonum.org/v1/gonum/mat"

	apperrors "salesforecast/internal/errors"
	"salesforecast/internal/infrastructure"
	"salesforecast/internal/model"
	"salesforecast/internal/pipeline"
)

// BaselineModel names the prediction returned when no bundle is loaded.
const BaselineModel = "baseline"

// baselineMargin is the markup the simulated baseline applies to
// price times quantity.
const baselineMargin = 1.15

// Prediction is one model's output for a feature vector.
type Prediction struct {
	Model string  `json:"model"`
	Kind  string  `json:"kind,omitempty"`
	Value float64 `json:"prediction"`
}

// PredictionResult is the response of Predict.
type PredictionResult struct {
	Predictions []Prediction `json:"predictions"`
	Best        string       `json:"best,omitempty"`
	RunID       string       `json:"run_id,omitempty"`
	Simulated   bool         `json:"simulated"`
	Note        string       `json:"note,omitempty"`
}

// ModelsInfo describes the loaded bundle.
type ModelsInfo struct {
	Loaded     bool            `json:"loaded"`
	RunID      string          `json:"run_id,omitempty"`
	Target     string          `json:"target,omitempty"`
	Features   []string        `json:"features,omitempty"`
	Best       string          `json:"best,omitempty"`
	Comparison []model.Ranking `json:"comparison,omitempty"`
}

// PredictionService scores single feature vectors. The bundle is swapped
// atomically by Reload and never mutated in place, so the service is safe
// for concurrent use.
type PredictionService struct {
	bundle  atomic.Pointer[pipeline.Bundle]
	metrics *infrastructure.BusinessMetrics
	logger  *slog.Logger
}

// NewPredictionService loads the bundle in dir. A directory without a
// manifest is not an error: the service then serves the simulated baseline.
func NewPredictionService(ctx context.Context, dir string, metrics *infrastructure.BusinessMetrics, logger *slog.Logger) (*PredictionService, error) {
	if logger == nil {
		logger = slog.Default()
	}
	b, err := pipeline.LoadBundle(ctx, dir, logger)
	switch {
	case errors.Is(err, apperrors.ErrMissingInput):
		logger.WarnContext(ctx, "no model bundle found, serving simulated predictions",
			slog.String("dir", dir))
		b = nil
	case err != nil:
		return nil, err
	}
	return NewPredictionServiceFromBundle(b, metrics, logger), nil
}

// NewPredictionServiceFromBundle wraps an already loaded bundle. A nil bundle
// selects the simulated baseline.
func NewPredictionServiceFromBundle(b *pipeline.Bundle, metrics *infrastructure.BusinessMetrics, logger *slog.Logger) *PredictionService {
	if logger == nil {
		logger = slog.Default()
	}
	s := &PredictionService{
		metrics: metrics,
		logger:  logger.With(slog.String("component", "prediction_service")),
	}
	s.bundle.Store(b)
	return s
}

// Reload replaces the served bundle with the one in dir. On error the
// current bundle stays in place.
func (s *PredictionService) Reload(ctx context.Context, dir string) error {
	b, err := pipeline.LoadBundle(ctx, dir, s.logger)
	if err != nil {
		return fmt.Errorf("reload bundle: %w", err)
	}
	s.bundle.Store(b)
	s.logger.InfoContext(ctx, "model bundle reloaded",
		slog.String("dir", dir),
		slog.String("run_id", b.Manifest.RunID),
		slog.String("best", b.Manifest.Best))
	return nil
}

// Loaded reports whether trained models are available.
func (s *PredictionService) Loaded() bool { return s.bundle.Load() != nil }

// Models describes the loaded bundle.
func (s *PredictionService) Models() ModelsInfo {
	b := s.bundle.Load()
	if b == nil {
		return ModelsInfo{}
	}
	m := b.Manifest
	return ModelsInfo{
		Loaded:     true,
		RunID:      m.RunID,
		Target:     m.Target,
		Features:   slices.Clone(m.Features),
		Best:       m.Best,
		Comparison: slices.Clone(m.Comparison),
	}
}

// Predict scores one feature vector with the named model, or with every
// model when modelName is empty. Every trained feature must be supplied and
// no others; raw values are scaled with the bundle's fitted scaler.
func (s *PredictionService) Predict(ctx context.Context, features map[string]float64, modelName string) (*PredictionResult, error) {
	for name, v := range features {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, apperrors.InvalidParameter("feature %q is not a finite number", name)
		}
	}
	b := s.bundle.Load()
	if b == nil {
		return s.baseline(ctx, features), nil
	}

	man := b.Manifest
	var missing, unexpected []string
	for _, f := range man.Features {
		if _, ok := features[f]; !ok {
			missing = append(missing, f)
		}
	}
	for name := range features {
		if !slices.Contains(man.Features, name) {
			unexpected = append(unexpected, name)
		}
	}
	if len(missing) > 0 || len(unexpected) > 0 {
		sort.Strings(unexpected)
		return nil, apperrors.ShapeMismatch("features differ from training: missing %v, unexpected %v", missing, unexpected).
			WithContext("missing", missing).
			WithContext("unexpected", unexpected)
	}

	row := make([]float64, len(man.Features))
	scaler := b.Preprocessor.Scaler()
	for j, f := range man.Features {
		row[j] = features[f]
		if scaler != nil {
			row[j], _ = scaler.TransformValue(f, row[j])
		}
	}
	X := mat.NewDense(1, len(row), row)

	models := b.Models
	if modelName != "" {
		m, err := b.Model(modelName)
		if err != nil {
			return nil, err
		}
		models = []*model.Model{m}
	}

	res := &PredictionResult{Best: man.Best, RunID: man.RunID}
	for _, m := range models {
		out, err := m.PredictMatrix(X)
		if err != nil {
			return nil, err
		}
		res.Predictions = append(res.Predictions, Prediction{Model: m.Name, Kind: m.Kind.String(), Value: out[0]})
		s.record(ctx, m.Name)
	}
	s.logger.DebugContext(ctx, "prediction served",
		slog.Int("models", len(res.Predictions)),
		slog.String("run_id", man.RunID))
	return res, nil
}

// baseline is price · quantity · 1.15 rounded to cents. Price defaults to
// 100 and quantity to 1; quantity is truncated to a whole number.
func (s *PredictionService) baseline(ctx context.Context, features map[string]float64) *PredictionResult {
	price := lookup(features, 100, "price", "Price")
	quantity := math.Trunc(lookup(features, 1, "quantity", "Quantity"))
	value := math.Round(price*quantity*baselineMargin*100) / 100
	s.record(ctx, BaselineModel)
	return &PredictionResult{
		Predictions: []Prediction{{Model: BaselineModel, Value: value}},
		Simulated:   true,
		Note:        "simulated prediction; run the pipeline to train models",
	}
}

func (s *PredictionService) record(ctx context.Context, name string) {
	if s.metrics == nil || s.metrics.PredictionsTotal == nil {
		return
	}
	s.metrics.PredictionsTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("model", name)))
}

func lookup(m map[string]float64, def float64, keys ...string) float64 {
	for _, k := range keys {
		if v, ok := m[k]; ok {
			return v
		}
	}
	return def
}
