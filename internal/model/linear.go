package model

import (
	"context"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	apperrors "salesforecast/internal/errors"
)

// rankTol drops singular values below this fraction of the largest.
const rankTol = 1e-10

// LinearRegressor is ordinary least squares with an intercept. Coefficients
// are the minimum-norm solution, so collinear features do not fail the fit.
type LinearRegressor struct {
	Coef      []float64
	Intercept float64
	// Rank is the effective rank of the centred design matrix.
	Rank int
}

func (l *LinearRegressor) Kind() Kind { return LinearRegression }

// Fit solves the centred least squares problem with an SVD and recovers the
// intercept from the column means.
func (l *LinearRegressor) Fit(ctx context.Context, X mat.Matrix, y []float64) error {
	r, c, err := checkFitInput(X, y)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	means := make([]float64, c)
	xc := mat.NewDense(r, c, nil)
	for j := 0; j < c; j++ {
		col := mat.Col(nil, j, X)
		means[j] = stat.Mean(col, nil)
		floats.AddConst(-means[j], col)
		xc.SetCol(j, col)
	}
	yMean := stat.Mean(y, nil)
	yc := make([]float64, r)
	for i, v := range y {
		yc[i] = v - yMean
	}

	var svd mat.SVD
	if ok := svd.Factorize(xc, mat.SVDThin); !ok {
		return apperrors.NumericDegeneracy("singular value decomposition did not converge")
	}
	rank := svd.Rank(rankTol)

	coef := make([]float64, c)
	if rank > 0 {
		var sol mat.VecDense
		svd.SolveVecTo(&sol, mat.NewVecDense(r, yc), rank)
		for j := range coef {
			coef[j] = sol.AtVec(j)
		}
	}

	l.Coef = coef
	l.Intercept = yMean - floats.Dot(means, coef)
	l.Rank = rank
	return nil
}

func (l *LinearRegressor) Predict(X mat.Matrix) ([]float64, error) {
	r, err := checkPredictInput(X, len(l.Coef))
	if err != nil {
		return nil, err
	}
	out := make([]float64, r)
	row := make([]float64, len(l.Coef))
	for i := range out {
		mat.Row(row, i, X)
		out[i] = l.Intercept + floats.Dot(row, l.Coef)
	}
	return out, nil
}
