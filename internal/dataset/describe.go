package dataset

import (
	"math"
	"slices"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Approximate in-memory sizes used by the memory estimate.
const (
	stringHeaderBytes = 16
	timeBytes         = 24
)

// FieldInfo summarises one column.
type FieldInfo struct {
	Name       string  `json:"name"`
	Kind       string  `json:"kind"`
	Missing    int     `json:"missing"`
	MissingPct float64 `json:"missing_pct"`
	Unique     int     `json:"unique"`

	// Numeric columns with at least one observed value only.
	Mean float64 `json:"mean,omitempty"`
	Std  float64 `json:"std,omitempty"`
	Min  float64 `json:"min,omitempty"`
	Max  float64 `json:"max,omitempty"`
}

// Info is the ingestion report of a dataset.
type Info struct {
	Rows        int         `json:"rows"`
	Columns     int         `json:"columns"`
	Numeric     int         `json:"numeric"`
	Categorical int         `json:"categorical"`
	Temporal    int         `json:"temporal"`
	Missing     int         `json:"missing"`
	MemoryBytes int64       `json:"memory_bytes"`
	Fields      []FieldInfo `json:"fields"`
}

// Describe computes per-column statistics.
func Describe(d *Dataset) Info {
	info := Info{Rows: d.NumRows(), Columns: d.NumCols()}
	for _, c := range d.cols {
		f := FieldInfo{
			Name:    c.name,
			Kind:    c.kind.String(),
			Missing: c.MissingCount(),
		}
		if info.Rows > 0 {
			f.MissingPct = 100 * float64(f.Missing) / float64(info.Rows)
		}
		info.Missing += f.Missing

		switch c.kind {
		case Numeric:
			info.Numeric++
			info.MemoryBytes += int64(len(c.nums)) * 8
			obs := Observed(c.nums)
			f.Unique = countUnique(obs)
			if len(obs) == 0 {
				break
			}
			f.Mean = stat.Mean(obs, nil)
			if len(obs) > 1 {
				f.Std = stat.StdDev(obs, nil)
			}
			f.Min = floats.Min(obs)
			f.Max = floats.Max(obs)
		case Categorical:
			info.Categorical++
			seen := make(map[string]struct{})
			for _, s := range c.strs {
				info.MemoryBytes += int64(len(s)) + stringHeaderBytes
				if s != "" {
					seen[s] = struct{}{}
				}
			}
			f.Unique = len(seen)
		case Temporal:
			info.Temporal++
			info.MemoryBytes += int64(len(c.times)) * timeBytes
			seen := make(map[int64]struct{})
			for i, t := range c.times {
				if !c.IsMissing(i) {
					seen[t.UnixNano()] = struct{}{}
				}
			}
			f.Unique = len(seen)
		}
		info.Fields = append(info.Fields, f)
	}
	return info
}

// Observed returns the non-NaN values of xs.
func Observed(xs []float64) []float64 {
	out := make([]float64, 0, len(xs))
	for _, v := range xs {
		if !math.IsNaN(v) {
			out = append(out, v)
		}
	}
	return out
}

func countUnique(xs []float64) int {
	s := slices.Clone(xs)
	slices.Sort(s)
	return len(slices.Compact(s))
}
