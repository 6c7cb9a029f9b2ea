package model

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"sync"
	"time"

	"gonum.org/v1/gonum/mat"

	apperrors "salesforecast/internal/errors"
)

// UnavailableError reports an estimator family that cannot be trained in
// this process. It matches apperrors.ErrUnavailable.
type UnavailableError struct {
	Kind   Kind
	Reason string
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("%s is unavailable: %s", e.Kind.DisplayName(), e.Reason)
}

func (e *UnavailableError) Unwrap() error { return apperrors.ErrUnavailable }

// Capabilities records which estimator families may be trained.
type Capabilities struct {
	disabled map[Kind]string
}

// Available reports whether k can be trained.
func (c Capabilities) Available(k Kind) bool {
	_, off := c.disabled[k]
	return k.valid() && !off
}

// Check returns an *UnavailableError when k cannot be trained.
func (c Capabilities) Check(k Kind) error {
	if !k.valid() {
		return apperrors.InvalidParameter("unknown model kind %d", int(k))
	}
	if reason, off := c.disabled[k]; off {
		return &UnavailableError{Kind: k, Reason: reason}
	}
	return nil
}

// Kinds lists the available families in training order.
func (c Capabilities) Kinds() []Kind {
	var out []Kind
	for _, k := range Kinds() {
		if c.Available(k) {
			out = append(out, k)
		}
	}
	return out
}

// Importance pairs a feature with its importance score.
type Importance struct {
	Feature    string  `json:"feature"`
	Importance float64 `json:"importance"`
}

// Ranking is one row of the model comparison table.
type Ranking struct {
	Rank int `json:"rank"`
	Evaluation
}

// Trainer fits, evaluates and ranks models. Models and evaluations are kept
// by name in insertion order.
type Trainer struct {
	logger *slog.Logger
	caps   Capabilities

	mu        sync.RWMutex
	models    map[string]*Model
	order     []string
	evals     map[string]Evaluation
	evalOrder []string
	best      string
}

// TrainerOption configures a Trainer.
type TrainerOption func(*Trainer)

// WithDisabled marks estimator families as unavailable.
func WithDisabled(kinds ...Kind) TrainerOption {
	return func(t *Trainer) {
		for _, k := range kinds {
			t.caps.disabled[k] = "disabled by configuration"
		}
	}
}

func NewTrainer(logger *slog.Logger, opts ...TrainerOption) *Trainer {
	if logger == nil {
		logger = slog.Default()
	}
	t := &Trainer{
		logger: logger.With(slog.String("component", "trainer")),
		caps:   Capabilities{disabled: make(map[Kind]string)},
		models: make(map[string]*Model),
		evals:  make(map[string]Evaluation),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

func (t *Trainer) Capabilities() Capabilities { return t.caps }

func (t *Trainer) TrainLinearRegression(ctx context.Context, X mat.Matrix, y []float64, features []string, name string) (*Model, error) {
	return t.Train(ctx, &LinearRegressor{}, X, y, features, name)
}

func (t *Trainer) TrainRandomForest(ctx context.Context, X mat.Matrix, y []float64, features []string, name string, p RandomForestParams) (*Model, error) {
	return t.Train(ctx, NewForest(p), X, y, features, name)
}

func (t *Trainer) TrainGradientBoosting(ctx context.Context, X mat.Matrix, y []float64, features []string, name string, p BoostingParams) (*Model, error) {
	return t.Train(ctx, NewBooster(p), X, y, features, name)
}

// Train fits est and registers the result under name, or under the kind's
// display name when name is empty. A model of the same name is replaced.
func (t *Trainer) Train(ctx context.Context, est Regressor, X mat.Matrix, y []float64, features []string, name string) (*Model, error) {
	kind := est.Kind()
	if name == "" {
		name = kind.DisplayName()
	}
	if err := t.caps.Check(kind); err != nil {
		t.logger.WarnContext(ctx, "skipping model",
			slog.String("model", name),
			slog.String("error", err.Error()))
		return nil, err
	}
	if _, c := X.Dims(); c != len(features) {
		return nil, apperrors.ShapeMismatch("%d feature names for a matrix with %d columns", len(features), c)
	}

	start := time.Now()
	if err := est.Fit(ctx, X, y); err != nil {
		return nil, fmt.Errorf("train %s: %w", name, err)
	}
	rows, _ := X.Dims()
	t.logger.InfoContext(ctx, "model trained",
		slog.String("model", name),
		slog.String("kind", kind.String()),
		slog.Int("rows", rows),
		slog.Int("features", len(features)),
		slog.Duration("duration", time.Since(start)))

	m := &Model{Name: name, Kind: kind, Features: append([]string(nil), features...), Estimator: est}
	t.register(m)
	return m, nil
}

func (t *Trainer) register(m *Model) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.models[m.Name]; !ok {
		t.order = append(t.order, m.Name)
	}
	t.models[m.Name] = m
}

// Model returns a registered model.
func (t *Trainer) Model(name string) (*Model, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	m, ok := t.models[name]
	if !ok {
		return nil, apperrors.MissingInput("model %q not found", name)
	}
	return m, nil
}

// Models returns the registered models in insertion order.
func (t *Trainer) Models() []*Model {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]*Model, len(t.order))
	for i, n := range t.order {
		out[i] = t.models[n]
	}
	return out
}

// EvaluateModel scores m on hold-out data and stores the result under the
// model's name.
func (t *Trainer) EvaluateModel(ctx context.Context, m *Model, X mat.Matrix, y []float64) (Evaluation, error) {
	pred, err := m.PredictMatrix(X)
	if err != nil {
		return Evaluation{}, err
	}
	ev, err := Score(y, pred)
	if err != nil {
		return Evaluation{}, fmt.Errorf("evaluate %s: %w", m.Name, err)
	}
	ev.Model = m.Name

	attrs := []any{
		slog.String("model", m.Name),
		slog.Float64("rmse", ev.RMSE),
		slog.Float64("mae", ev.MAE),
		slog.Float64("r2", ev.R2),
	}
	if ev.MAPEDefined {
		attrs = append(attrs, slog.Float64("mape", ev.MAPE))
	}
	if ev.MAPEExcluded > 0 {
		attrs = append(attrs, slog.Int("mape_excluded", ev.MAPEExcluded))
	}
	t.logger.InfoContext(ctx, "model evaluated", attrs...)
	if ev.ConstantTarget {
		t.logger.WarnContext(ctx, "test target is constant, r2 reported as 0 or 1",
			slog.String("model", m.Name))
	}

	t.mu.Lock()
	if _, ok := t.evals[m.Name]; !ok {
		t.evalOrder = append(t.evalOrder, m.Name)
	}
	t.evals[m.Name] = ev
	t.mu.Unlock()
	return ev, nil
}

// Evaluation returns the stored evaluation of a model.
func (t *Trainer) Evaluation(name string) (Evaluation, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	ev, ok := t.evals[name]
	return ev, ok
}

// CompareModels ranks evaluated models by descending R². Ties keep
// evaluation order and NaN ranks last. The first row becomes Best.
func (t *Trainer) CompareModels() []Ranking {
	t.mu.Lock()
	defer t.mu.Unlock()
	rows := make([]Ranking, len(t.evalOrder))
	for i, n := range t.evalOrder {
		rows[i] = Ranking{Evaluation: t.evals[n]}
	}
	sort.SliceStable(rows, func(i, j int) bool {
		a, b := rows[i].R2, rows[j].R2
		if math.IsNaN(b) {
			return !math.IsNaN(a)
		}
		return a > b
	})
	for i := range rows {
		rows[i].Rank = i + 1
	}
	t.best = ""
	if len(rows) > 0 {
		t.best = rows[0].Model
	}
	return rows
}

// Best returns the top model of the last comparison.
func (t *Trainer) Best() (*Model, Evaluation, error) {
	t.mu.RLock()
	best := t.best
	t.mu.RUnlock()
	if best == "" {
		return nil, Evaluation{}, apperrors.MissingInput("no models have been compared")
	}
	m, err := t.Model(best)
	if err != nil {
		return nil, Evaluation{}, err
	}
	ev, _ := t.Evaluation(best)
	return m, ev, nil
}

// FeatureImportance returns the topN most important features of a model in
// descending order. features defaults to the model's training columns. A
// model without native importances yields an empty result.
func (t *Trainer) FeatureImportance(name string, features []string, topN int) ([]Importance, error) {
	m, err := t.Model(name)
	if err != nil {
		return nil, err
	}
	imp, ok := m.Estimator.(Importancer)
	if !ok {
		return []Importance{}, nil
	}
	if features == nil {
		features = m.Features
	}
	scores := imp.FeatureImportances()
	if len(scores) != len(features) {
		return nil, apperrors.ShapeMismatch("%d feature names for %d importances", len(features), len(scores))
	}
	out := make([]Importance, len(scores))
	for i, s := range scores {
		out[i] = Importance{Feature: features[i], Importance: s}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Importance > out[j].Importance })
	if topN > 0 && topN < len(out) {
		out = out[:topN]
	}
	return out, nil
}
