// Package model trains, evaluates, ranks and persists the regression
// estimators used to forecast sales.
package model

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"gonum.org/v1/gonum/mat"

	"salesforecast/internal/dataset"
	apperrors "salesforecast/internal/errors"
)

// Kind identifies an estimator family.
type Kind int

const (
	LinearRegression Kind = iota
	RandomForest
	GradientBoosting
)

var kindNames = []string{"linear_regression", "random_forest", "gradient_boosting"}
var kindDisplay = []string{"Linear Regression", "Random Forest", "Gradient Boosting"}

// Kinds lists every estimator family in training order.
func Kinds() []Kind { return []Kind{LinearRegression, RandomForest, GradientBoosting} }

func (k Kind) valid() bool { return k >= LinearRegression && k <= GradientBoosting }

func (k Kind) String() string {
	if !k.valid() {
		return fmt.Sprintf("kind(%d)", int(k))
	}
	return kindNames[k]
}

// DisplayName is the default model name for the kind.
func (k Kind) DisplayName() string {
	if !k.valid() {
		return k.String()
	}
	return kindDisplay[k]
}

// ParseKind accepts the identifier or the display name.
func ParseKind(s string) (Kind, error) {
	key := strings.ToLower(strings.TrimSpace(s))
	for i := range kindNames {
		if key == kindNames[i] || key == strings.ToLower(kindDisplay[i]) {
			return Kind(i), nil
		}
	}
	return 0, apperrors.InvalidParameter("unknown model kind %q", s)
}

func (k Kind) MarshalText() ([]byte, error) { return []byte(k.String()), nil }

func (k *Kind) UnmarshalText(b []byte) (err error) {
	*k, err = ParseKind(string(b))
	return err
}

// Regressor is a fittable estimator of a numeric target.
type Regressor interface {
	Kind() Kind
	Fit(ctx context.Context, X mat.Matrix, y []float64) error
	Predict(X mat.Matrix) ([]float64, error)
}

// Importancer is implemented by estimators with native feature importances.
// Importances are aligned with the training columns and sum to 1, or are all
// zero when no split was made.
type Importancer interface {
	FeatureImportances() []float64
}

// Model binds a fitted estimator to the feature columns it was trained on.
type Model struct {
	Name      string
	Kind      Kind
	Features  []string
	Estimator Regressor
}

// Predict scores ds, which must present exactly the training columns in the
// training order.
func (m *Model) Predict(ds *dataset.Dataset) ([]float64, error) {
	if names := ds.Names(); !slices.Equal(names, m.Features) {
		return nil, apperrors.ShapeMismatch("model %q expects columns %v, got %v", m.Name, m.Features, names)
	}
	X, err := ds.Matrix(m.Features)
	if err != nil {
		return nil, err
	}
	return m.Estimator.Predict(X)
}

// PredictMatrix scores a matrix whose columns follow Features.
func (m *Model) PredictMatrix(X mat.Matrix) ([]float64, error) {
	if _, c := X.Dims(); c != len(m.Features) {
		return nil, apperrors.ShapeMismatch("model %q expects %d features, got %d", m.Name, len(m.Features), c)
	}
	return m.Estimator.Predict(X)
}

func checkFitInput(X mat.Matrix, y []float64) (int, int, error) {
	r, c := X.Dims()
	if r == 0 || c == 0 {
		return 0, 0, apperrors.InvalidParameter("empty training matrix")
	}
	if len(y) != r {
		return 0, 0, apperrors.ShapeMismatch("X has %d rows but y has %d values", r, len(y))
	}
	return r, c, nil
}

func checkPredictInput(X mat.Matrix, features int) (int, error) {
	r, c := X.Dims()
	if features == 0 {
		return 0, apperrors.InvalidParameter("estimator is not fitted")
	}
	if c != features {
		return 0, apperrors.ShapeMismatch("estimator was fitted on %d features, got %d", features, c)
	}
	return r, nil
}

// columns copies X into one slice per column.
func columns(X mat.Matrix) [][]float64 {
	_, c := X.Dims()
	cols := make([][]float64, c)
	for j := range cols {
		cols[j] = mat.Col(nil, j, X)
	}
	return cols
}
