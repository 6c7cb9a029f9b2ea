// Package pipeline runs the forecasting workflow end to end: ingestion,
// cleaning, feature engineering, training, evaluation, persistence and
// reporting.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"slices"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"salesforecast/internal/config"
	"salesforecast/internal/dataset"
	apperrors "salesforecast/internal/errors"
	"salesforecast/internal/features"
	"salesforecast/internal/infrastructure"
	"salesforecast/internal/model"
	"salesforecast/internal/preprocess"
)

// Result summarises a completed run.
type Result struct {
	RunID         string                        `json:"run_id"`
	Info          dataset.Info                  `json:"info"`
	Preprocessing preprocess.Summary            `json:"preprocessing"`
	Outliers      *preprocess.OutlierReport     `json:"outliers,omitempty"`
	Features      features.Summary              `json:"features"`
	FeatureNames  []string                      `json:"feature_names"`
	TrainRows     int                           `json:"train_rows"`
	TestRows      int                           `json:"test_rows"`
	DroppedRows   int                           `json:"dropped_rows"`
	Comparison    []model.Ranking               `json:"comparison"`
	Best          string                        `json:"best"`
	Importances   map[string][]model.Importance `json:"importances"`
	Skipped       []string                      `json:"skipped,omitempty"`
	BundleDir     string                        `json:"bundle_dir"`
	Reports       []string                      `json:"reports,omitempty"`
	Duration      time.Duration                 `json:"duration"`
}

// Runner executes pipeline runs. A Runner holds no per-run state and may be
// reused.
type Runner struct {
	logger    *slog.Logger
	tracer    trace.Tracer
	metrics   *infrastructure.BusinessMetrics
	observers []Observer
	reports   bool
}

// Option configures a Runner.
type Option func(*Runner)

// WithObserver adds an event observer.
func WithObserver(o Observer) Option {
	return func(r *Runner) { r.observers = append(r.observers, o) }
}

func WithTracer(t trace.Tracer) Option {
	return func(r *Runner) { r.tracer = t }
}

func WithMetrics(m *infrastructure.BusinessMetrics) Option {
	return func(r *Runner) { r.metrics = m }
}

// WithoutReports skips chart and file report generation.
func WithoutReports() Option {
	return func(r *Runner) { r.reports = false }
}

func NewRunner(logger *slog.Logger, opts ...Option) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Runner{
		logger:  logger.With(slog.String("component", "pipeline")),
		tracer:  otel.Tracer("salesforecast/pipeline"),
		reports: true,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// run carries the state of one execution.
type run struct {
	*Runner
	id  string
	cfg *config.Config
	set settings
	res *Result

	pre    *preprocess.Preprocessor
	eng    *features.Engineer
	tr     *model.Trainer
	raw    *dataset.Dataset
	ds     *dataset.Dataset
	split  *model.Split
	models []*model.Model
	preds  map[string][]float64
}

// Run executes the full pipeline described by cfg under a fresh run ID.
func (r *Runner) Run(ctx context.Context, cfg *config.Config) (*Result, error) {
	return r.RunWithID(ctx, uuid.NewString(), cfg)
}

// RunWithID is Run with a caller-chosen run ID, for callers that hand the ID
// out before the run finishes.
func (r *Runner) RunWithID(ctx context.Context, id string, cfg *config.Config) (*Result, error) {
	start := time.Now()
	set, err := parseSettings(cfg.Pipeline)
	if err != nil {
		return nil, err
	}

	ctx, span := r.tracer.Start(ctx, "pipeline.run", trace.WithAttributes(
		attribute.String("run_id", id),
		attribute.String("input", cfg.Pipeline.InputFile)))
	defer span.End()
	ctx = infrastructure.EnsureTraceID(ctx)

	x := &run{
		Runner: r,
		id:     id,
		cfg:    cfg,
		set:    set,
		res:    &Result{RunID: id, Importances: map[string][]model.Importance{}},
		pre:    preprocess.New(r.logger),
		eng:    features.New(r.logger, features.WithDateLayouts(set.dateLayout...)),
		tr:     model.NewTrainer(r.logger, model.WithDisabled(set.disabled...)),
		preds:  map[string][]float64{},
	}
	r.logger.InfoContext(ctx, "pipeline started", slog.String("run_id", id))

	err = x.execute(ctx)
	if r.metrics != nil {
		status := "success"
		if err != nil {
			status = "failure"
		}
		r.metrics.PipelineRunsTotal.Add(ctx, 1, metricAttrs(status))
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		r.logger.ErrorContext(ctx, "pipeline failed", slog.String("run_id", id), slog.String("error", err.Error()))
		return nil, err
	}

	x.res.Duration = time.Since(start)
	r.logger.InfoContext(ctx, "pipeline completed",
		slog.String("run_id", id),
		slog.String("best", x.res.Best),
		slog.Duration("duration", x.res.Duration))
	return x.res, nil
}

func (x *run) execute(ctx context.Context) error {
	p := x.cfg.Pipeline
	steps := []struct {
		name string
		fn   func(context.Context) error
	}{
		{"load", x.load},
		{"describe", x.describe},
		{"missing_values", x.missing},
		{"duplicates", x.duplicates},
		{"outliers", x.outliers},
	}
	for _, s := range steps {
		if err := x.stage(ctx, s.name, s.fn); err != nil {
			return err
		}
	}
	for _, fs := range featureSteps(p, x.set) {
		if err := x.stage(ctx, fs.name, func(ctx context.Context) error {
			out, err := fs.run(ctx, x.eng, x.ds)
			if err != nil {
				return err
			}
			x.ds = out
			return nil
		}); err != nil {
			return err
		}
	}
	steps = []struct {
		name string
		fn   func(context.Context) error
	}{
		{"encoding", x.encode},
		{"cleanup", x.cleanup},
		{"split", x.splitData},
		{"scaling", x.scaleData},
		{"training", x.train},
		{"evaluation", x.evaluate},
		{"comparison", x.compare},
		{"importance", x.importance},
		{"bundle", x.saveBundle},
	}
	if x.reports {
		steps = append(steps, struct {
			name string
			fn   func(context.Context) error
		}{"reports", x.writeReports})
	}
	for _, s := range steps {
		if err := x.stage(ctx, s.name, s.fn); err != nil {
			return err
		}
	}
	return nil
}

// stage runs fn inside a span and reports it to observers and metrics.
// stageSkipped ends a stage with StatusSkipped instead of StatusCompleted.
type stageSkipped struct{ reason string }

func (s *stageSkipped) Error() string { return "skipped: " + s.reason }

func skip(reason string) error { return &stageSkipped{reason: reason} }

func (x *run) stage(ctx context.Context, name string, fn func(context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	ctx, span := x.tracer.Start(ctx, "pipeline."+name)
	defer span.End()

	x.emit(ctx, name, StatusStarted, "")
	start := time.Now()
	err := fn(ctx)
	var skipped *stageSkipped
	if errors.As(err, &skipped) {
		x.metrics.RecordStage(ctx, name, time.Since(start), nil)
		span.SetAttributes(attribute.Bool("pipeline.skipped", true))
		x.emit(ctx, name, StatusSkipped, skipped.reason)
		return nil
	}
	x.metrics.RecordStage(ctx, name, time.Since(start), err)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		x.emit(ctx, name, StatusFailed, err.Error())
		return fmt.Errorf("%s: %w", name, err)
	}
	x.emit(ctx, name, StatusCompleted, "")
	return nil
}

func (x *run) emit(ctx context.Context, stage string, status Status, msg string) {
	e := Event{RunID: x.id, Stage: stage, Status: status, Message: msg, Time: time.Now().UTC()}
	for _, o := range x.observers {
		o.Notify(ctx, e)
	}
}

func (x *run) load(ctx context.Context) error {
	p := x.cfg.Pipeline
	opts := dataset.LoadOptions{DateLayouts: x.set.dateLayout, Logger: x.logger}
	if p.DateColumn != "" {
		opts.DateColumns = []string{p.DateColumn}
	}
	ds, err := dataset.Load(ctx, x.cfg.Paths.InputPath(p.InputFile), opts)
	if err != nil {
		return err
	}
	if _, err := ds.Column(p.TargetColumn); err != nil {
		return err
	}
	x.raw, x.ds = ds, ds
	return nil
}

func (x *run) describe(ctx context.Context) error {
	x.res.Info = dataset.Describe(x.ds)
	x.logger.InfoContext(ctx, "dataset described",
		slog.Int("rows", x.res.Info.Rows),
		slog.Int("columns", x.res.Info.Columns),
		slog.Int("missing", x.res.Info.Missing),
		slog.Int64("memory_bytes", x.res.Info.MemoryBytes))
	return nil
}

func (x *run) missing(ctx context.Context) error {
	out, err := x.pre.HandleMissingValues(ctx, x.ds, x.set.missing)
	if err != nil {
		return err
	}
	x.ds = out
	return nil
}

func (x *run) duplicates(ctx context.Context) error {
	x.ds = x.pre.RemoveDuplicates(ctx, x.ds)
	return nil
}

func (x *run) outliers(ctx context.Context) error {
	if !x.set.outliers {
		return skip("no outlier method configured")
	}
	p := x.cfg.Pipeline
	out, rep, err := x.pre.HandleOutliers(ctx, x.ds, p.OutlierColumns, x.set.outlier, p.OutlierThreshold)
	if err != nil {
		return err
	}
	x.ds = out
	x.res.Outliers = &rep
	return nil
}

func (x *run) encode(ctx context.Context) error {
	cats := x.ds.CategoricalNames()
	var cols []string
	for _, c := range cats {
		if !slices.Contains(x.cfg.Pipeline.DropColumns, c) {
			cols = append(cols, c)
		}
	}
	if len(cols) == 0 {
		return nil
	}
	out, err := x.pre.EncodeCategorical(ctx, x.ds, cols, x.set.encoding)
	if err != nil {
		return err
	}
	x.ds = out
	return nil
}

// cleanup builds the modelling table and drops rows left incomplete by lag
// and rolling windows.
func (x *run) cleanup(ctx context.Context) error {
	table, dropped := modellingTable(x.ds, x.cfg.Pipeline)
	before := table.NumRows()
	table = table.Filter(func(i int) bool { return !table.RowHasMissing(i) })
	x.res.DroppedRows = before - table.NumRows()
	x.res.Features = x.eng.Summary()
	x.res.Preprocessing = preprocess.Summarize(x.raw, table)
	x.logger.InfoContext(ctx, "modelling table ready",
		slog.Int("rows", table.NumRows()),
		slog.Int("columns", table.NumCols()),
		slog.Int("dropped_rows", x.res.DroppedRows),
		slog.Any("dropped_columns", dropped))
	if table.NumRows() == 0 {
		return apperrors.InvalidParameter("no complete rows left after feature engineering")
	}
	x.ds = table
	return nil
}

func (x *run) splitData(ctx context.Context) error {
	p := x.cfg.Pipeline
	s, err := model.PrepareData(x.ds, p.TargetColumn, p.TestSize, p.RandomState)
	if err != nil {
		return err
	}
	x.split = s
	x.res.FeatureNames = s.Features
	x.res.TrainRows = len(s.TrainRows)
	x.res.TestRows = len(s.TestRows)
	x.logger.InfoContext(ctx, "data split",
		slog.Int("train", x.res.TrainRows),
		slog.Int("test", x.res.TestRows),
		slog.Int("features", len(s.Features)))
	return nil
}

// scaleData fits the scaler on the training rows only and applies it to
// both partitions.
func (x *run) scaleData(ctx context.Context) error {
	if !x.set.scale {
		return skip("no scaling configured")
	}
	train, err := x.split.Train(x.ds)
	if err != nil {
		return err
	}
	test, err := x.split.Test(x.ds)
	if err != nil {
		return err
	}
	scaledTrain, err := x.pre.ScaleFeatures(ctx, train, x.split.Features, x.set.scaling)
	if err != nil {
		return err
	}
	scaledTest, err := x.pre.Scaler().Transform(test)
	if err != nil {
		return err
	}
	if x.split.XTrain, err = scaledTrain.Matrix(x.split.Features); err != nil {
		return err
	}
	x.split.XTest, err = scaledTest.Matrix(x.split.Features)
	return err
}

func (x *run) train(ctx context.Context) error {
	s := x.split
	for _, kind := range model.Kinds() {
		var (
			m   *model.Model
			err error
		)
		switch kind {
		case model.LinearRegression:
			m, err = x.tr.TrainLinearRegression(ctx, s.XTrain, s.YTrain, s.Features, "")
		case model.RandomForest:
			m, err = x.tr.TrainRandomForest(ctx, s.XTrain, s.YTrain, s.Features, "", x.set.rfParams)
		case model.GradientBoosting:
			m, err = x.tr.TrainGradientBoosting(ctx, s.XTrain, s.YTrain, s.Features, "", x.set.gbParams)
		}
		if errors.Is(err, apperrors.ErrUnavailable) {
			x.res.Skipped = append(x.res.Skipped, kind.DisplayName())
			x.emit(ctx, "training", StatusSkipped, err.Error())
			continue
		}
		if err != nil {
			return err
		}
		x.models = append(x.models, m)
	}
	if len(x.models) == 0 {
		return apperrors.Unavailable("every estimator is disabled")
	}
	return nil
}

func (x *run) evaluate(ctx context.Context) error {
	for _, m := range x.models {
		start := time.Now()
		ev, err := x.tr.EvaluateModel(ctx, m, x.split.XTest, x.split.YTest)
		if err != nil {
			return err
		}
		x.metrics.RecordTraining(ctx, m.Name, time.Since(start), ev.R2)
		pred, err := m.PredictMatrix(x.split.XTest)
		if err != nil {
			return err
		}
		x.preds[m.Name] = pred
	}
	return nil
}

func (x *run) compare(ctx context.Context) error {
	x.res.Comparison = x.tr.CompareModels()
	best, ev, err := x.tr.Best()
	if err != nil {
		return err
	}
	x.res.Best = best.Name
	x.logger.InfoContext(ctx, "best model selected",
		slog.String("model", best.Name),
		slog.Float64("r2", ev.R2))
	return nil
}

func (x *run) importance(ctx context.Context) error {
	for _, m := range x.models {
		imp, err := x.tr.FeatureImportance(m.Name, nil, x.cfg.Pipeline.TopFeatures)
		if err != nil {
			return err
		}
		if len(imp) > 0 {
			x.res.Importances[m.Name] = imp
		}
	}
	return nil
}

func (x *run) saveBundle(ctx context.Context) error {
	dir := x.cfg.Paths.ModelsDir
	b := &Bundle{
		Manifest: Manifest{
			RunID:      x.id,
			CreatedAt:  time.Now().UTC(),
			Target:     x.cfg.Pipeline.TargetColumn,
			Features:   x.split.Features,
			Best:       x.res.Best,
			Comparison: x.res.Comparison,
			Pipeline:   x.cfg.Pipeline,
		},
		Preprocessor: x.pre,
		Features:     x.eng.State(),
		Models:       x.models,
	}
	if err := SaveBundle(ctx, dir, b); err != nil {
		return err
	}
	x.res.BundleDir = dir
	x.logger.InfoContext(ctx, "bundle saved", slog.String("dir", dir), slog.Int("models", len(x.models)))
	return nil
}

func (x *run) reportPath(name string) string {
	return filepath.Join(x.cfg.Paths.ReportsDir, name)
}

func metricAttrs(status string) metric.AddOption {
	return metric.WithAttributes(attribute.String("status", status))
}
