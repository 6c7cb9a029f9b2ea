package model

import (
	"context"
	"math/rand/v2"
	"runtime"

	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	apperrors "salesforecast/internal/errors"
)

// RandomForestParams are the hyper-parameters of a random forest.
type RandomForestParams struct {
	Trees          int
	MaxDepth       int // 0 means unlimited
	MinSamplesLeaf int
	MaxFeatures    int // 0 means all features
	Workers        int // 0 means GOMAXPROCS
	Seed           uint64
}

func DefaultRandomForestParams() RandomForestParams {
	return RandomForestParams{Trees: 100, MinSamplesLeaf: 1, Seed: 42}
}

func (p RandomForestParams) validate() error {
	if p.Trees < 1 {
		return apperrors.InvalidParameter("random forest needs at least one tree, got %d", p.Trees)
	}
	if p.MaxDepth < 0 || p.MinSamplesLeaf < 0 || p.MaxFeatures < 0 || p.Workers < 0 {
		return apperrors.InvalidParameter("random forest parameters must not be negative")
	}
	return nil
}

// Forest averages bootstrap-trained regression trees. Tree i draws its
// bootstrap sample from an RNG seeded with Seed+i, so the fitted forest does
// not depend on the number of workers.
type Forest struct {
	Params    RandomForestParams
	Trees     []*RegressionTree
	NFeatures int
}

func NewForest(p RandomForestParams) *Forest { return &Forest{Params: p} }

func (f *Forest) Kind() Kind { return RandomForest }

func (f *Forest) Fit(ctx context.Context, X mat.Matrix, y []float64) error {
	r, c, err := checkFitInput(X, y)
	if err != nil {
		return err
	}
	if err := f.Params.validate(); err != nil {
		return err
	}
	cols := columns(X)
	trees := make([]*RegressionTree, f.Params.Trees)

	workers := f.Params.Workers
	if workers == 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for idx := range trees {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			seed := f.Params.Seed + uint64(idx)
			rng := rand.New(rand.NewPCG(seed, 0))
			rows := make([]int, r)
			for i := range rows {
				rows[i] = rng.IntN(r)
			}
			tree := NewRegressionTree(
				WithMaxDepth(f.Params.MaxDepth),
				WithMinSamplesLeaf(f.Params.MinSamplesLeaf),
				WithMaxFeatures(f.Params.MaxFeatures),
				WithSeed(seed),
			)
			tree.fit(cols, y, rows, rng)
			trees[idx] = tree
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	f.Trees = trees
	f.NFeatures = c
	return nil
}

func (f *Forest) Predict(X mat.Matrix) ([]float64, error) {
	r, err := checkPredictInput(X, f.NFeatures)
	if err != nil {
		return nil, err
	}
	out := make([]float64, r)
	row := make([]float64, f.NFeatures)
	for i := range out {
		mat.Row(row, i, X)
		for _, t := range f.Trees {
			out[i] += t.predictRow(row)
		}
		out[i] /= float64(len(f.Trees))
	}
	return out, nil
}

// FeatureImportances is the mean of the per-tree importances, renormalised.
func (f *Forest) FeatureImportances() []float64 {
	return meanImportances(f.Trees, f.NFeatures)
}

func meanImportances(trees []*RegressionTree, n int) []float64 {
	out := make([]float64, n)
	for _, t := range trees {
		floats.Add(out, t.Importances)
	}
	if total := floats.Sum(out); total > 0 {
		floats.Scale(1/total, out)
	}
	return out
}
