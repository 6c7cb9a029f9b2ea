package features

import (
	"maps"
	"math"
	"slices"

	apperrors "salesforecast/internal/errors"
)

// State is what a feature run learned from its input: bin edges and group
// aggregate tables. An Engineer built WithFitted replays it on new rows
// instead of refitting, so a scoring batch gets the training-time columns.
type State struct {
	Bins       []BinState       `json:"bins,omitempty"`
	Aggregates []AggregateState `json:"aggregates,omitempty"`
}

// BinState is the fitted discretisation of one column.
type BinState struct {
	Column string    `json:"column"`
	Edges  []float64 `json:"edges"`
	Labels []string  `json:"labels"`
}

// AggregateState maps group keys to one aggregate. A key whose aggregate was
// missing is absent, and so is a key never seen while fitting; both replay as
// a missing value.
type AggregateState struct {
	Group  string             `json:"group"`
	Agg    string             `json:"agg"`
	Func   AggFunc            `json:"func"`
	Values map[string]float64 `json:"values"`
}

// WithFitted makes the Engineer replay st. Binning and aggregation then fail
// with InvalidParameter for a column the state does not cover.
func WithFitted(st State) Option {
	return func(e *Engineer) {
		st = st.clone()
		e.fitted = &st
	}
}

// State returns the fitted state of every binning and aggregation run so far.
func (e *Engineer) State() State { return e.state.clone() }

func (s State) clone() State {
	out := State{}
	for _, b := range s.Bins {
		out.Bins = append(out.Bins, BinState{
			Column: b.Column,
			Edges:  slices.Clone(b.Edges),
			Labels: slices.Clone(b.Labels),
		})
	}
	for _, a := range s.Aggregates {
		a.Values = maps.Clone(a.Values)
		out.Aggregates = append(out.Aggregates, a)
	}
	return out
}

func (s *State) bins(col string) (BinState, error) {
	for _, b := range s.Bins {
		if b.Column != col {
			continue
		}
		if len(b.Edges) < 2 || len(b.Labels) != len(b.Edges)-1 {
			return BinState{}, apperrors.InvalidParameter("fitted bins for %q have %d edges and %d labels", col, len(b.Edges), len(b.Labels))
		}
		return b, nil
	}
	return BinState{}, apperrors.InvalidParameter("no fitted bins for column %q", col)
}

func (s *State) aggregate(group, agg string, f AggFunc) (AggregateState, error) {
	for _, a := range s.Aggregates {
		if a.Group == group && a.Agg == agg && a.Func == f {
			return a, nil
		}
	}
	return AggregateState{}, apperrors.InvalidParameter("no fitted %s of %q by %q", f, agg, group)
}

func (s *State) putBins(b BinState) {
	for i := range s.Bins {
		if s.Bins[i].Column == b.Column {
			s.Bins[i] = b
			return
		}
	}
	s.Bins = append(s.Bins, b)
}

func (s *State) putAggregate(group, agg string, f AggFunc, table map[string]float64) {
	a := AggregateState{Group: group, Agg: agg, Func: f, Values: make(map[string]float64, len(table))}
	// JSON has no NaN; absence means missing.
	for k, v := range table {
		if !math.IsNaN(v) {
			a.Values[k] = v
		}
	}
	for i := range s.Aggregates {
		x := s.Aggregates[i]
		if x.Group == group && x.Agg == agg && x.Func == f {
			s.Aggregates[i] = a
			return
		}
	}
	s.Aggregates = append(s.Aggregates, a)
}
