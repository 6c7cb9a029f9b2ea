package preprocess

import (
	"context"
	"log/slog"
	"math"
	"slices"
	"time"

	"salesforecast/internal/dataset"
	apperrors "salesforecast/internal/errors"
)

// FillValue is the imputation value fitted for one column. Exactly one of
// Number, Text and Time is set, matching the column kind.
type FillValue struct {
	Column string     `json:"column"`
	Number *float64   `json:"number,omitempty"`
	Text   *string    `json:"text,omitempty"`
	Time   *time.Time `json:"time,omitempty"`
}

// Fills returns the imputation values fitted by the last HandleMissingValues
// call with an imputing strategy.
func (p *Preprocessor) Fills() []FillValue { return slices.Clone(p.fills) }

// HandleMissingValues imputes or drops missing values. Every strategy except
// MissingDrop preserves the row count. Imputing strategies fit a value for
// every column they cover, gaps or not, so ReplayMissing can fill new data
// the same way. A column without any observed value cannot be imputed and is
// left untouched.
func (p *Preprocessor) HandleMissingValues(ctx context.Context, ds *dataset.Dataset, strategy MissingStrategy) (*dataset.Dataset, error) {
	switch strategy {
	case MissingDrop:
		p.fills = nil
	case MissingAuto, MissingMean, MissingMedian, MissingMode:
		p.fills = nil
		for _, c := range ds.Columns() {
			if fv, ok := fitFill(c, strategy); ok {
				p.fills = append(p.fills, fv)
			} else if c.MissingCount() > 0 && !skipsKind(strategy, c.Kind()) {
				p.logger.WarnContext(ctx, "column has no observed values, left unfilled",
					slog.String("column", c.Name()))
			}
		}
	default:
		return nil, unsupported("missing value strategy", strategy)
	}

	before := ds.TotalMissing()
	if before == 0 {
		p.logger.InfoContext(ctx, "no missing values")
		return ds, nil
	}
	p.logMissing(ctx, ds)

	var out *dataset.Dataset
	if strategy == MissingDrop {
		out = ds.Filter(func(i int) bool { return !ds.RowHasMissing(i) })
		p.logger.InfoContext(ctx, "dropped rows with missing values",
			slog.Int("rows_removed", ds.NumRows()-out.NumRows()))
	} else {
		var err error
		if out, err = applyFills(ds, p.fills); err != nil {
			return nil, err
		}
	}

	p.logger.InfoContext(ctx, "missing values handled",
		slog.String("strategy", strategy.String()),
		slog.Int("missing_before", before),
		slog.Int("missing_after", out.TotalMissing()),
		slog.Int("rows", out.NumRows()))
	return out, nil
}

// ReplayMissing fills gaps in ds with the fitted values without refitting.
// Columns absent from ds are skipped, and columns without a fitted value keep
// their gaps.
func (p *Preprocessor) ReplayMissing(ctx context.Context, ds *dataset.Dataset) (*dataset.Dataset, error) {
	out, err := applyFills(ds, p.fills)
	if err != nil {
		return nil, err
	}
	p.logger.DebugContext(ctx, "replayed missing value fills",
		slog.Int("fills", len(p.fills)),
		slog.Int("missing_before", ds.TotalMissing()),
		slog.Int("missing_after", out.TotalMissing()))
	return out, nil
}

func applyFills(ds *dataset.Dataset, fills []FillValue) (*dataset.Dataset, error) {
	byName := make(map[string]FillValue, len(fills))
	for _, fv := range fills {
		byName[fv.Column] = fv
	}
	cols := ds.Columns()
	for i, c := range cols {
		fv, ok := byName[c.Name()]
		if !ok || c.MissingCount() == 0 {
			continue
		}
		filled, err := fv.apply(c)
		if err != nil {
			return nil, err
		}
		cols[i] = filled
	}
	return dataset.New(cols...)
}

// skipsKind reports whether strategy leaves columns of kind k alone.
func skipsKind(strategy MissingStrategy, k dataset.Kind) bool {
	return k != dataset.Numeric && (strategy == MissingMean || strategy == MissingMedian)
}

// fitFill computes the value strategy imputes into c. ok is false when the
// strategy does not cover the column kind or nothing is observed.
func fitFill(c dataset.Column, strategy MissingStrategy) (FillValue, bool) {
	if skipsKind(strategy, c.Kind()) {
		return FillValue{}, false
	}
	fv := FillValue{Column: c.Name()}
	switch c.Kind() {
	case dataset.Numeric:
		obs := observed(c)
		if len(obs) == 0 {
			return FillValue{}, false
		}
		var v float64
		switch strategy {
		case MissingMean:
			v = mean(obs)
		case MissingMode:
			v = modeFloat(obs)
		default:
			v = median(obs)
		}
		fv.Number = &v
	case dataset.Categorical:
		v, ok := modeString(c.Texts())
		if !ok {
			return FillValue{}, false
		}
		fv.Text = &v
	default:
		v, ok := modeTime(c.Times())
		if !ok {
			return FillValue{}, false
		}
		fv.Time = &v
	}
	return fv, true
}

// apply returns c with its gaps replaced by the fitted value.
func (fv FillValue) apply(c dataset.Column) (dataset.Column, error) {
	switch {
	case c.Kind() == dataset.Numeric && fv.Number != nil:
		vals := c.Floats()
		for i := range vals {
			if math.IsNaN(vals[i]) {
				vals[i] = *fv.Number
			}
		}
		return dataset.NewNumeric(c.Name(), vals), nil
	case c.Kind() == dataset.Categorical && fv.Text != nil:
		vals := c.Texts()
		for i := range vals {
			if vals[i] == "" {
				vals[i] = *fv.Text
			}
		}
		return dataset.NewCategorical(c.Name(), vals), nil
	case c.Kind() == dataset.Temporal && fv.Time != nil:
		vals := c.Times()
		for i := range vals {
			if vals[i].IsZero() {
				vals[i] = *fv.Time
			}
		}
		return dataset.NewTemporal(c.Name(), vals), nil
	default:
		return dataset.Column{}, apperrors.InvalidParameter("fill value for %q does not match its %s column", fv.Column, c.Kind())
	}
}

func (p *Preprocessor) logMissing(ctx context.Context, ds *dataset.Dataset) {
	rows := float64(ds.NumRows())
	for _, c := range ds.Columns() {
		n := c.MissingCount()
		if n == 0 {
			continue
		}
		p.logger.InfoContext(ctx, "missing values found",
			slog.String("column", c.Name()),
			slog.Int("count", n),
			slog.Float64("percent", 100*float64(n)/rows))
	}
}
