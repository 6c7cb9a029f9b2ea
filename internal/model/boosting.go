package model

import (
	"context"
	"math"
	"math/rand/v2"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	apperrors "salesforecast/internal/errors"
)

// BoostingParams are the hyper-parameters of gradient boosting.
type BoostingParams struct {
	Trees          int
	LearningRate   float64
	MaxDepth       int
	MinSamplesLeaf int
	// Subsample is the fraction of rows drawn without replacement per round.
	Subsample float64
	Seed      uint64
}

func DefaultBoostingParams() BoostingParams {
	return BoostingParams{Trees: 100, LearningRate: 0.1, MaxDepth: 6, MinSamplesLeaf: 1, Subsample: 1, Seed: 42}
}

func (p BoostingParams) validate() error {
	switch {
	case p.Trees < 1:
		return apperrors.InvalidParameter("gradient boosting needs at least one tree, got %d", p.Trees)
	case p.LearningRate <= 0 || p.LearningRate > 1:
		return apperrors.InvalidParameter("learning rate must be in (0, 1], got %g", p.LearningRate)
	case p.Subsample <= 0 || p.Subsample > 1:
		return apperrors.InvalidParameter("subsample must be in (0, 1], got %g", p.Subsample)
	case p.MaxDepth < 0 || p.MinSamplesLeaf < 0:
		return apperrors.InvalidParameter("gradient boosting parameters must not be negative")
	}
	return nil
}

// Booster fits trees to the residuals of the running prediction under
// squared loss, starting from the target mean.
type Booster struct {
	Params    BoostingParams
	Init      float64
	Trees     []*RegressionTree
	NFeatures int
}

func NewBooster(p BoostingParams) *Booster { return &Booster{Params: p} }

func (b *Booster) Kind() Kind { return GradientBoosting }

func (b *Booster) Fit(ctx context.Context, X mat.Matrix, y []float64) error {
	r, c, err := checkFitInput(X, y)
	if err != nil {
		return err
	}
	if err := b.Params.validate(); err != nil {
		return err
	}
	cols := columns(X)
	rng := rand.New(rand.NewPCG(b.Params.Seed, 0))

	init := stat.Mean(y, nil)
	pred := make([]float64, r)
	for i := range pred {
		pred[i] = init
	}
	resid := make([]float64, r)
	all := make([]int, r)
	for i := range all {
		all[i] = i
	}
	take := max(1, int(math.Ceil(b.Params.Subsample*float64(r))))

	trees := make([]*RegressionTree, 0, b.Params.Trees)
	row := make([]float64, c)
	for m := 0; m < b.Params.Trees; m++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		floats.SubTo(resid, y, pred)

		rows := all
		if take < r {
			rows = rng.Perm(r)[:take]
			sort.Ints(rows)
		}
		tree := NewRegressionTree(
			WithMaxDepth(b.Params.MaxDepth),
			WithMinSamplesLeaf(b.Params.MinSamplesLeaf),
		)
		tree.fit(cols, resid, rows, rng)
		trees = append(trees, tree)

		for i := range pred {
			for j := range row {
				row[j] = cols[j][i]
			}
			pred[i] += b.Params.LearningRate * tree.predictRow(row)
		}
	}

	b.Init = init
	b.Trees = trees
	b.NFeatures = c
	return nil
}

func (b *Booster) Predict(X mat.Matrix) ([]float64, error) {
	r, err := checkPredictInput(X, b.NFeatures)
	if err != nil {
		return nil, err
	}
	out := make([]float64, r)
	row := make([]float64, b.NFeatures)
	for i := range out {
		mat.Row(row, i, X)
		out[i] = b.Init
		for _, t := range b.Trees {
			out[i] += b.Params.LearningRate * t.predictRow(row)
		}
	}
	return out, nil
}

func (b *Booster) FeatureImportances() []float64 {
	return meanImportances(b.Trees, b.NFeatures)
}
