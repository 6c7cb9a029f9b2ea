package dataset

import (
	"fmt"
	"math"
	"time"
)

// Kind is the semantic type of a column.
type Kind int

const (
	Numeric Kind = iota
	Categorical
	Temporal
)

func (k Kind) String() string {
	switch k {
	case Numeric:
		return "numeric"
	case Categorical:
		return "categorical"
	case Temporal:
		return "temporal"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Column is an immutable named sequence of values of one Kind.
// Missing values are NaN for numeric columns, "" for categorical columns
// and the zero time for temporal columns.
type Column struct {
	name  string
	kind  Kind
	nums  []float64
	strs  []string
	times []time.Time
}

// NewNumeric copies values into a numeric column.
func NewNumeric(name string, values []float64) Column {
	return Column{name: name, kind: Numeric, nums: append([]float64(nil), values...)}
}

// NewCategorical copies values into a categorical column.
func NewCategorical(name string, values []string) Column {
	return Column{name: name, kind: Categorical, strs: append([]string(nil), values...)}
}

// NewTemporal copies values into a temporal column.
func NewTemporal(name string, values []time.Time) Column {
	return Column{name: name, kind: Temporal, times: append([]time.Time(nil), values...)}
}

func (c Column) Name() string { return c.name }
func (c Column) Kind() Kind   { return c.kind }

// Len returns the number of rows.
func (c Column) Len() int {
	switch c.kind {
	case Numeric:
		return len(c.nums)
	case Categorical:
		return len(c.strs)
	default:
		return len(c.times)
	}
}

// Renamed returns the same values under a new name.
func (c Column) Renamed(name string) Column {
	c.name = name
	return c
}

// Floats returns a copy of the numeric values; nil for other kinds.
func (c Column) Floats() []float64 {
	if c.kind != Numeric {
		return nil
	}
	return append([]float64(nil), c.nums...)
}

// Texts returns a copy of the categorical values; nil for other kinds.
func (c Column) Texts() []string {
	if c.kind != Categorical {
		return nil
	}
	return append([]string(nil), c.strs...)
}

// Times returns a copy of the temporal values; nil for other kinds.
func (c Column) Times() []time.Time {
	if c.kind != Temporal {
		return nil
	}
	return append([]time.Time(nil), c.times...)
}

func (c Column) Float(i int) float64  { return c.nums[i] }
func (c Column) Text(i int) string    { return c.strs[i] }
func (c Column) Time(i int) time.Time { return c.times[i] }

// IsMissing reports whether row i holds the missing marker.
func (c Column) IsMissing(i int) bool {
	switch c.kind {
	case Numeric:
		return math.IsNaN(c.nums[i])
	case Categorical:
		return c.strs[i] == ""
	default:
		return c.times[i].IsZero()
	}
}

// MissingCount returns the number of missing rows.
func (c Column) MissingCount() int {
	n := 0
	for i := 0; i < c.Len(); i++ {
		if c.IsMissing(i) {
			n++
		}
	}
	return n
}

// Format renders row i as text. Missing values render as "".
func (c Column) Format(i int) string {
	if c.IsMissing(i) {
		return ""
	}
	switch c.kind {
	case Numeric:
		return formatFloat(c.nums[i])
	case Categorical:
		return c.strs[i]
	default:
		return formatTime(c.times[i])
	}
}

// take builds a column from the given row indices.
func (c Column) take(rows []int) Column {
	out := Column{name: c.name, kind: c.kind}
	switch c.kind {
	case Numeric:
		out.nums = make([]float64, len(rows))
		for i, r := range rows {
			out.nums[i] = c.nums[r]
		}
	case Categorical:
		out.strs = make([]string, len(rows))
		for i, r := range rows {
			out.strs[i] = c.strs[r]
		}
	default:
		out.times = make([]time.Time, len(rows))
		for i, r := range rows {
			out.times[i] = c.times[r]
		}
	}
	return out
}

func (c Column) equal(o Column) bool {
	if c.name != o.name || c.kind != o.kind || c.Len() != o.Len() {
		return false
	}
	for i := 0; i < c.Len(); i++ {
		switch c.kind {
		case Numeric:
			a, b := c.nums[i], o.nums[i]
			if a != b && !(math.IsNaN(a) && math.IsNaN(b)) {
				return false
			}
		case Categorical:
			if c.strs[i] != o.strs[i] {
				return false
			}
		default:
			if !c.times[i].Equal(o.times[i]) {
				return false
			}
		}
	}
	return true
}
