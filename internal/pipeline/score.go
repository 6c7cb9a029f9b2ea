package pipeline

import (
	"context"
	"log/slog"

	"salesforecast/internal/dataset"
	apperrors "salesforecast/internal/errors"
	"salesforecast/internal/features"
)

// Scored holds batch predictions. Rows indexes the scored rows of the input;
// rows whose features stayed incomplete are left out.
type Scored struct {
	Rows        []int                `json:"rows"`
	Models      []string             `json:"models"`
	Predictions map[string][]float64 `json:"predictions"`
}

// Score replays the run's fitted imputation, feature engineering and
// preprocessing on ds and predicts with the named model, or every model
// when name is empty. Nothing is refitted on ds: bins, group aggregates and
// fill values come from the bundle, so a row scores the same in any batch
// that carries its lag and rolling history. Rows are never deduplicated or
// clipped.
func (b *Bundle) Score(ctx context.Context, ds *dataset.Dataset, name string, logger *slog.Logger) (*Scored, error) {
	if logger == nil {
		logger = slog.Default()
	}
	p := b.Manifest.Pipeline
	set, err := parseSettings(p)
	if err != nil {
		return nil, err
	}

	out, err := b.Preprocessor.ReplayMissing(ctx, ds)
	if err != nil {
		return nil, err
	}
	eng := features.New(logger,
		features.WithDateLayouts(set.dateLayout...),
		features.WithFitted(b.Features))
	for _, step := range featureSteps(p, set) {
		if out, err = step.run(ctx, eng, out); err != nil {
			return nil, err
		}
	}
	for _, enc := range b.Preprocessor.Encoders() {
		if out, err = enc.Transform(out); err != nil {
			return nil, err
		}
	}

	var absent []string
	for _, f := range b.Manifest.Features {
		if !out.HasColumn(f) {
			absent = append(absent, f)
		}
	}
	if len(absent) > 0 {
		return nil, apperrors.ShapeMismatch("input lacks trained features %v", absent)
	}
	if s := b.Preprocessor.Scaler(); s != nil {
		if out, err = s.Transform(out); err != nil {
			return nil, err
		}
	}
	table, err := out.Select(b.Manifest.Features...)
	if err != nil {
		return nil, err
	}

	rows := make([]int, 0, table.NumRows())
	for i := 0; i < table.NumRows(); i++ {
		if !table.RowHasMissing(i) {
			rows = append(rows, i)
		}
	}
	if len(rows) == 0 {
		return nil, apperrors.InvalidParameter("no rows with complete features to score")
	}
	table = table.Take(rows)

	models := b.Models
	if name != "" {
		m, err := b.Model(name)
		if err != nil {
			return nil, err
		}
		models = models[:0:0]
		models = append(models, m)
	}

	res := &Scored{Rows: rows, Predictions: make(map[string][]float64, len(models))}
	for _, m := range models {
		pred, err := m.Predict(table)
		if err != nil {
			return nil, err
		}
		res.Models = append(res.Models, m.Name)
		res.Predictions[m.Name] = pred
	}
	logger.InfoContext(ctx, "batch scored",
		slog.Int("rows", len(rows)),
		slog.Int("skipped_rows", ds.NumRows()-len(rows)),
		slog.Int("models", len(models)))
	return res, nil
}
