package model

import (
	"math"

	"gonum.org/v1/gonum/stat"

	apperrors "salesforecast/internal/errors"
)

// Evaluation holds the hold-out metrics of one model. MAPE is a percentage
// over the rows whose true value is non-zero; when every true value is zero
// MAPEDefined is false and MAPE is 0.
type Evaluation struct {
	Model        string  `json:"model"`
	RMSE         float64 `json:"rmse"`
	MAE          float64 `json:"mae"`
	R2           float64 `json:"r2"`
	MAPE         float64 `json:"mape"`
	MAPEDefined  bool    `json:"mape_defined"`
	MAPEExcluded int     `json:"mape_excluded"`
	// ConstantTarget marks an R² computed against a target with no variance.
	ConstantTarget bool `json:"constant_target,omitempty"`
	Samples        int  `json:"samples"`
}

// Score computes the regression metrics of predictions against truth.
func Score(yTrue, yPred []float64) (Evaluation, error) {
	if len(yTrue) != len(yPred) {
		return Evaluation{}, apperrors.ShapeMismatch("%d true values but %d predictions", len(yTrue), len(yPred))
	}
	if len(yTrue) == 0 {
		return Evaluation{}, apperrors.InvalidParameter("cannot score an empty sample")
	}

	var sse, sae, ape float64
	used := 0
	for i, y := range yTrue {
		d := y - yPred[i]
		sse += d * d
		sae += math.Abs(d)
		if y == 0 {
			continue
		}
		ape += math.Abs(d / y)
		used++
	}
	n := float64(len(yTrue))
	ev := Evaluation{
		RMSE:         math.Sqrt(sse / n),
		MAE:          sae / n,
		MAPEExcluded: len(yTrue) - used,
		Samples:      len(yTrue),
	}
	if used > 0 {
		ev.MAPE = ape / float64(used) * 100
		ev.MAPEDefined = true
	}

	if stat.Variance(yTrue, nil) == 0 || len(yTrue) == 1 {
		ev.ConstantTarget = true
		if sse == 0 {
			ev.R2 = 1
		}
		return ev, nil
	}
	ev.R2 = stat.RSquaredFrom(yPred, yTrue, nil)
	return ev, nil
}
