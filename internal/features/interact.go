package features

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"slices"

	"salesforecast/internal/dataset"
)

// CreateInteractionFeatures adds <a>_x_<b> for every unordered pair of
// columns, and <a>_div_<b> when b contains no zero.
func (e *Engineer) CreateInteractionFeatures(ctx context.Context, ds *dataset.Dataset, columns []string) (*dataset.Dataset, error) {
	vals := make([][]float64, len(columns))
	for i, c := range columns {
		v, err := numericColumn(ds, c)
		if err != nil {
			return nil, err
		}
		vals[i] = v
	}

	var cols []dataset.Column
	for i := 0; i < len(columns); i++ {
		for j := i + 1; j < len(columns); j++ {
			a, b := vals[i], vals[j]
			prod := make([]float64, len(a))
			for r := range prod {
				prod[r] = a[r] * b[r]
			}
			cols = append(cols, dataset.NewNumeric(fmt.Sprintf("%s_x_%s", columns[i], columns[j]), prod))

			if slices.Contains(b, 0) {
				e.logger.WarnContext(ctx, "denominator contains zero, ratio skipped",
					slog.String("numerator", columns[i]),
					slog.String("denominator", columns[j]))
				continue
			}
			ratio := make([]float64, len(a))
			for r := range ratio {
				ratio[r] = a[r] / b[r]
			}
			cols = append(cols, dataset.NewNumeric(fmt.Sprintf("%s_div_%s", columns[i], columns[j]), ratio))
		}
	}
	return e.add(ctx, ds, FamilyInteraction, cols...)
}

// CreatePolynomialFeatures adds <col>_pow_<d> for d in 2..degree. A degree
// below 2 creates nothing.
func (e *Engineer) CreatePolynomialFeatures(ctx context.Context, ds *dataset.Dataset, columns []string, degree int) (*dataset.Dataset, error) {
	var cols []dataset.Column
	for _, c := range columns {
		v, err := numericColumn(ds, c)
		if err != nil {
			return nil, err
		}
		for d := 2; d <= degree; d++ {
			p := make([]float64, len(v))
			for i, x := range v {
				p[i] = math.Pow(x, float64(d))
			}
			cols = append(cols, dataset.NewNumeric(fmt.Sprintf("%s_pow_%d", c, d), p))
		}
	}
	return e.add(ctx, ds, FamilyPolynomial, cols...)
}
