package features

import (
	"context"
	"fmt"
	"math"
	"slices"
	"strings"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"salesforecast/internal/dataset"
	apperrors "salesforecast/internal/errors"
)

// AggFunc is a group aggregate broadcast back onto rows.
type AggFunc int

const (
	AggMean AggFunc = iota
	AggSum
	AggCount
	AggMin
	AggMax
	AggMedian
	AggStd
)

var aggNames = []string{"mean", "sum", "count", "min", "max", "median", "std"}

func (f AggFunc) String() string {
	if f < 0 || int(f) >= len(aggNames) {
		return fmt.Sprintf("agg(%d)", int(f))
	}
	return aggNames[f]
}

// ParseAggFunc maps a name to an aggregate.
func ParseAggFunc(name string) (AggFunc, error) {
	i := slices.Index(aggNames, strings.ToLower(strings.TrimSpace(name)))
	if i < 0 {
		return 0, apperrors.InvalidParameter("unsupported aggregation function %q", name)
	}
	return AggFunc(i), nil
}

// ParseAggFuncs parses every name, failing on the first unknown one.
func ParseAggFuncs(names []string) ([]AggFunc, error) {
	out := make([]AggFunc, 0, len(names))
	for _, n := range names {
		f, err := ParseAggFunc(n)
		if err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, nil
}

func (f AggFunc) MarshalText() ([]byte, error) {
	if f < AggMean || f > AggStd {
		return nil, apperrors.InvalidParameter("unsupported aggregation function %s", f)
	}
	return []byte(f.String()), nil
}

func (f *AggFunc) UnmarshalText(b []byte) error {
	v, err := ParseAggFunc(string(b))
	if err != nil {
		return err
	}
	*f = v
	return nil
}

// apply aggregates the observed values of one group. count may be zero.
func (f AggFunc) apply(vals []float64) float64 {
	if f == AggCount {
		return float64(len(vals))
	}
	if len(vals) == 0 {
		return math.NaN()
	}
	switch f {
	case AggMean:
		return stat.Mean(vals, nil)
	case AggSum:
		return floats.Sum(vals)
	case AggMin:
		return floats.Min(vals)
	case AggMax:
		return floats.Max(vals)
	case AggMedian:
		s := slices.Clone(vals)
		slices.Sort(s)
		mid := len(s) / 2
		if len(s)%2 == 1 {
			return s[mid]
		}
		return (s[mid-1] + s[mid]) / 2
	case AggStd:
		if len(vals) < 2 {
			return math.NaN()
		}
		return stat.StdDev(vals, nil)
	default:
		return math.NaN()
	}
}

// CreateAggregationFeatures adds <group>_<agg>_<func> holding, for each row,
// the aggregate of agg over all rows sharing the row's group key. Rows with a
// missing key get a missing value; missing agg values are ignored. A replaying
// Engineer looks keys up in the fitted tables instead, and a key absent from
// them is missing.
func (e *Engineer) CreateAggregationFeatures(ctx context.Context, ds *dataset.Dataset, group, agg string, funcs []AggFunc) (*dataset.Dataset, error) {
	keys, err := ds.Column(group)
	if err != nil {
		return nil, err
	}
	vals, err := numericColumn(ds, agg)
	if err != nil {
		return nil, err
	}

	var members map[string][]float64
	if e.fitted == nil {
		members = groupMembers(keys, vals)
	}

	cols := make([]dataset.Column, 0, len(funcs))
	tables := make([]map[string]float64, 0, len(funcs))
	for _, f := range funcs {
		if f < AggMean || f > AggStd {
			return nil, apperrors.InvalidParameter("unsupported aggregation function %s", f)
		}
		var table map[string]float64
		if e.fitted != nil {
			st, err := e.fitted.aggregate(group, agg, f)
			if err != nil {
				return nil, err
			}
			table = st.Values
		} else {
			table = make(map[string]float64, len(members))
			for k, m := range members {
				table[k] = f.apply(m)
			}
		}
		out := make([]float64, len(vals))
		for i := range out {
			out[i] = math.NaN()
			if keys.IsMissing(i) {
				continue
			}
			if v, ok := table[keys.Format(i)]; ok {
				out[i] = v
			}
		}
		cols = append(cols, dataset.NewNumeric(fmt.Sprintf("%s_%s_%s", group, agg, f), out))
		tables = append(tables, table)
	}

	out, err := e.add(ctx, ds, FamilyAggregation, cols...)
	if err != nil {
		return nil, err
	}
	if e.fitted == nil {
		for i, f := range funcs {
			e.state.putAggregate(group, agg, f, tables[i])
		}
	}
	return out, nil
}

// groupMembers collects the observed values per non-missing key. A key with
// no observed values still gets an entry so count reports zero for it.
func groupMembers(keys dataset.Column, vals []float64) map[string][]float64 {
	members := make(map[string][]float64)
	for i := range vals {
		if keys.IsMissing(i) {
			continue
		}
		k := keys.Format(i)
		if _, ok := members[k]; !ok {
			members[k] = nil
		}
		if !math.IsNaN(vals[i]) {
			members[k] = append(members[k], vals[i])
		}
	}
	return members
}
