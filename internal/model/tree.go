package model

import (
	"context"
	"math/rand/v2"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// minGain is the smallest squared error reduction accepted for a split.
const minGain = 1e-12

// Node is one entry of a fitted tree. Children are indices into Nodes.
type Node struct {
	Leaf      bool
	Feature   int
	Threshold float64
	Left      int
	Right     int
	Value     float64
	Samples   int
}

// RegressionTree is a CART tree minimising squared error. Rows with
// x[Feature] <= Threshold go left.
type RegressionTree struct {
	MaxDepth        int // 0 means unlimited
	MinSamplesSplit int
	MinSamplesLeaf  int
	MaxFeatures     int // 0 means all features
	Seed            uint64

	Nodes       []Node
	Importances []float64
	NFeatures   int
}

// TreeOption configures a RegressionTree.
type TreeOption func(*RegressionTree)

func WithMaxDepth(depth int) TreeOption {
	return func(t *RegressionTree) { t.MaxDepth = depth }
}

func WithMinSamplesSplit(n int) TreeOption {
	return func(t *RegressionTree) { t.MinSamplesSplit = n }
}

func WithMinSamplesLeaf(n int) TreeOption {
	return func(t *RegressionTree) { t.MinSamplesLeaf = n }
}

// WithMaxFeatures limits the features considered at each split to a random
// subset of size n.
func WithMaxFeatures(n int) TreeOption {
	return func(t *RegressionTree) { t.MaxFeatures = n }
}

func WithSeed(seed uint64) TreeOption {
	return func(t *RegressionTree) { t.Seed = seed }
}

func NewRegressionTree(opts ...TreeOption) *RegressionTree {
	t := &RegressionTree{MinSamplesSplit: 2, MinSamplesLeaf: 1}
	for _, opt := range opts {
		opt(t)
	}
	t.MinSamplesSplit = max(t.MinSamplesSplit, 2)
	t.MinSamplesLeaf = max(t.MinSamplesLeaf, 1)
	return t
}

func (t *RegressionTree) Fit(ctx context.Context, X mat.Matrix, y []float64) error {
	r, _, err := checkFitInput(X, y)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	rows := make([]int, r)
	for i := range rows {
		rows[i] = i
	}
	t.fit(columns(X), y, rows, rand.New(rand.NewPCG(t.Seed, 0)))
	return nil
}

// fit grows the tree on the given rows. Rows may repeat (bootstrap).
func (t *RegressionTree) fit(cols [][]float64, y []float64, rows []int, rng *rand.Rand) {
	b := &treeBuilder{
		tree:       t,
		cols:       cols,
		y:          y,
		rng:        rng,
		importance: make([]float64, len(cols)),
	}
	t.Nodes = t.Nodes[:0]
	t.NFeatures = len(cols)
	b.build(rows, 0)
	if total := floats.Sum(b.importance); total > 0 {
		floats.Scale(1/total, b.importance)
	}
	t.Importances = b.importance
}

func (t *RegressionTree) Predict(X mat.Matrix) ([]float64, error) {
	r, err := checkPredictInput(X, t.NFeatures)
	if err != nil {
		return nil, err
	}
	out := make([]float64, r)
	row := make([]float64, t.NFeatures)
	for i := range out {
		mat.Row(row, i, X)
		out[i] = t.predictRow(row)
	}
	return out, nil
}

func (t *RegressionTree) predictRow(row []float64) float64 {
	n := 0
	for !t.Nodes[n].Leaf {
		if row[t.Nodes[n].Feature] <= t.Nodes[n].Threshold {
			n = t.Nodes[n].Left
		} else {
			n = t.Nodes[n].Right
		}
	}
	return t.Nodes[n].Value
}

func (t *RegressionTree) FeatureImportances() []float64 {
	return append([]float64(nil), t.Importances...)
}

// Depth is the length of the longest root to leaf path.
func (t *RegressionTree) Depth() int {
	if len(t.Nodes) == 0 {
		return 0
	}
	var walk func(n int) int
	walk = func(n int) int {
		if t.Nodes[n].Leaf {
			return 0
		}
		return 1 + max(walk(t.Nodes[n].Left), walk(t.Nodes[n].Right))
	}
	return walk(0)
}

type treeBuilder struct {
	tree       *RegressionTree
	cols       [][]float64
	y          []float64
	rng        *rand.Rand
	importance []float64
}

type split struct {
	feature   int
	threshold float64
	gain      float64
}

func (b *treeBuilder) build(rows []int, depth int) int {
	t := b.tree
	sum, sq := 0.0, 0.0
	for _, r := range rows {
		sum += b.y[r]
		sq += b.y[r] * b.y[r]
	}
	n := float64(len(rows))
	sse := sq - sum*sum/n

	idx := len(t.Nodes)
	t.Nodes = append(t.Nodes, Node{Leaf: true, Value: sum / n, Samples: len(rows)})

	if (t.MaxDepth > 0 && depth >= t.MaxDepth) ||
		len(rows) < t.MinSamplesSplit ||
		len(rows) < 2*t.MinSamplesLeaf ||
		sse <= minGain {
		return idx
	}

	best, ok := b.bestSplit(rows, sum, sq, sse)
	if !ok {
		return idx
	}

	left := make([]int, 0, len(rows))
	right := make([]int, 0, len(rows))
	col := b.cols[best.feature]
	for _, r := range rows {
		if col[r] <= best.threshold {
			left = append(left, r)
		} else {
			right = append(right, r)
		}
	}
	b.importance[best.feature] += best.gain

	l := b.build(left, depth+1)
	rr := b.build(right, depth+1)
	node := &t.Nodes[idx]
	node.Leaf = false
	node.Feature = best.feature
	node.Threshold = best.threshold
	node.Left = l
	node.Right = rr
	return idx
}

func (b *treeBuilder) candidates() []int {
	p := len(b.cols)
	if m := b.tree.MaxFeatures; m > 0 && m < p {
		feats := b.rng.Perm(p)[:m]
		sort.Ints(feats)
		return feats
	}
	feats := make([]int, p)
	for i := range feats {
		feats[i] = i
	}
	return feats
}

// bestSplit scans every candidate feature with running sums. The first
// feature reaching the highest gain wins.
func (b *treeBuilder) bestSplit(rows []int, sumT, sqT, sse float64) (split, bool) {
	minLeaf := b.tree.MinSamplesLeaf
	n := len(rows)
	order := make([]int, n)
	best := split{gain: minGain}
	found := false

	for _, f := range b.candidates() {
		col := b.cols[f]
		copy(order, rows)
		sort.Slice(order, func(i, j int) bool { return col[order[i]] < col[order[j]] })

		sumL, sqL := 0.0, 0.0
		for i := 0; i < n-1; i++ {
			v := b.y[order[i]]
			sumL += v
			sqL += v * v
			nL := i + 1
			nR := n - nL
			lo, hi := col[order[i]], col[order[i+1]]
			if lo == hi || nL < minLeaf || nR < minLeaf {
				continue
			}
			sumR := sumT - sumL
			sseL := sqL - sumL*sumL/float64(nL)
			sseR := (sqT - sqL) - sumR*sumR/float64(nR)
			gain := sse - sseL - sseR
			if gain > best.gain {
				thr := lo + (hi-lo)/2
				if thr >= hi {
					thr = lo
				}
				best = split{feature: f, threshold: thr, gain: gain}
				found = true
			}
		}
	}
	return best, found
}
