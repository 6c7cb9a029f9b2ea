// Package dataset implements the in-memory table every pipeline stage works
// on. A Dataset is never modified after construction; operations that change
// it return a new Dataset sharing the untouched columns.
package dataset

import (
	"math"
	"slices"

	"gonum.org/v1/gonum/mat"

	apperrors "salesforecast/internal/errors"
)

// Dataset is an ordered set of equal-length, uniquely named columns.
type Dataset struct {
	cols  []Column
	index map[string]int
}

// New validates and assembles columns into a Dataset.
func New(cols ...Column) (*Dataset, error) {
	ds := &Dataset{
		cols:  make([]Column, len(cols)),
		index: make(map[string]int, len(cols)),
	}
	for i, c := range cols {
		if c.name == "" {
			return nil, apperrors.InvalidParameter("column %d has no name", i)
		}
		if _, dup := ds.index[c.name]; dup {
			return nil, apperrors.InvalidParameter("duplicate column name %q", c.name)
		}
		if i > 0 && c.Len() != cols[0].Len() {
			return nil, apperrors.ShapeMismatch("column %q has %d rows, expected %d", c.name, c.Len(), cols[0].Len())
		}
		ds.cols[i] = c
		ds.index[c.name] = i
	}
	return ds, nil
}

// MustNew is like New but panics on error. Intended for tests and literals.
func MustNew(cols ...Column) *Dataset {
	ds, err := New(cols...)
	if err != nil {
		panic(err)
	}
	return ds
}

func (d *Dataset) NumRows() int {
	if len(d.cols) == 0 {
		return 0
	}
	return d.cols[0].Len()
}

func (d *Dataset) NumCols() int { return len(d.cols) }

// Names returns column names in order.
func (d *Dataset) Names() []string {
	names := make([]string, len(d.cols))
	for i, c := range d.cols {
		names[i] = c.name
	}
	return names
}

// Columns returns the columns in order.
func (d *Dataset) Columns() []Column {
	return slices.Clone(d.cols)
}

func (d *Dataset) HasColumn(name string) bool {
	_, ok := d.index[name]
	return ok
}

// Column looks up a column by name.
func (d *Dataset) Column(name string) (Column, error) {
	i, ok := d.index[name]
	if !ok {
		return Column{}, apperrors.MissingInput("column %q not found", name)
	}
	return d.cols[i], nil
}

// Floats returns the values of a numeric column.
func (d *Dataset) Floats(name string) ([]float64, error) {
	c, err := d.Column(name)
	if err != nil {
		return nil, err
	}
	if c.kind != Numeric {
		return nil, apperrors.InvalidParameter("column %q is %s, not numeric", name, c.kind)
	}
	return c.Floats(), nil
}

// WithColumn appends c, or replaces the column of the same name in place.
func (d *Dataset) WithColumn(c Column) (*Dataset, error) {
	cols := slices.Clone(d.cols)
	if i, ok := d.index[c.name]; ok {
		cols[i] = c
	} else {
		cols = append(cols, c)
	}
	return New(cols...)
}

// Append adds new columns at the end. A name already present is an
// InvalidParameter error; use WithColumn to replace a column.
func (d *Dataset) Append(cs ...Column) (*Dataset, error) {
	return New(append(slices.Clone(d.cols), cs...)...)
}

// WithColumns applies WithColumn for each column in order.
func (d *Dataset) WithColumns(cs ...Column) (*Dataset, error) {
	out := d
	for _, c := range cs {
		var err error
		if out, err = out.WithColumn(c); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// Drop removes the named columns. Unknown names are ignored.
func (d *Dataset) Drop(names ...string) *Dataset {
	cols := make([]Column, 0, len(d.cols))
	for _, c := range d.cols {
		if !slices.Contains(names, c.name) {
			cols = append(cols, c)
		}
	}
	return MustNew(cols...)
}

// Select returns the named columns in the given order.
func (d *Dataset) Select(names ...string) (*Dataset, error) {
	cols := make([]Column, 0, len(names))
	for _, n := range names {
		c, err := d.Column(n)
		if err != nil {
			return nil, err
		}
		cols = append(cols, c)
	}
	return New(cols...)
}

// Take returns the given rows in the given order.
func (d *Dataset) Take(rows []int) *Dataset {
	cols := make([]Column, len(d.cols))
	for i, c := range d.cols {
		cols[i] = c.take(rows)
	}
	return MustNew(cols...)
}

// Head returns the first n rows.
func (d *Dataset) Head(n int) *Dataset {
	n = min(max(n, 0), d.NumRows())
	rows := make([]int, n)
	for i := range rows {
		rows[i] = i
	}
	return d.Take(rows)
}

// Filter keeps rows for which keep returns true.
func (d *Dataset) Filter(keep func(row int) bool) *Dataset {
	rows := make([]int, 0, d.NumRows())
	for i := 0; i < d.NumRows(); i++ {
		if keep(i) {
			rows = append(rows, i)
		}
	}
	return d.Take(rows)
}

// MissingCounts maps each column to its number of missing rows.
func (d *Dataset) MissingCounts() map[string]int {
	out := make(map[string]int, len(d.cols))
	for _, c := range d.cols {
		out[c.name] = c.MissingCount()
	}
	return out
}

// TotalMissing counts missing cells across all columns.
func (d *Dataset) TotalMissing() int {
	n := 0
	for _, c := range d.cols {
		n += c.MissingCount()
	}
	return n
}

// RowHasMissing reports whether any column is missing at row i.
func (d *Dataset) RowHasMissing(i int) bool {
	for _, c := range d.cols {
		if c.IsMissing(i) {
			return true
		}
	}
	return false
}

func (d *Dataset) namesOf(k Kind) []string {
	var names []string
	for _, c := range d.cols {
		if c.kind == k {
			names = append(names, c.name)
		}
	}
	return names
}

func (d *Dataset) NumericNames() []string     { return d.namesOf(Numeric) }
func (d *Dataset) CategoricalNames() []string { return d.namesOf(Categorical) }
func (d *Dataset) TemporalNames() []string    { return d.namesOf(Temporal) }

// Matrix builds a row-major matrix from numeric columns, in the given order.
func (d *Dataset) Matrix(names []string) (*mat.Dense, error) {
	if len(names) == 0 || d.NumRows() == 0 {
		return nil, apperrors.InvalidParameter("cannot build a matrix with %d rows and %d columns", d.NumRows(), len(names))
	}
	rows := d.NumRows()
	data := make([]float64, rows*len(names))
	for j, n := range names {
		c, err := d.Column(n)
		if err != nil {
			return nil, err
		}
		if c.kind != Numeric {
			return nil, apperrors.InvalidParameter("column %q is %s, not numeric", n, c.kind)
		}
		for i, v := range c.nums {
			data[i*len(names)+j] = v
		}
	}
	return mat.NewDense(rows, len(names), data), nil
}

// Equal compares names, kinds and values. NaN equals NaN.
func (d *Dataset) Equal(o *Dataset) bool {
	if d.NumCols() != o.NumCols() || d.NumRows() != o.NumRows() {
		return false
	}
	for i := range d.cols {
		if !d.cols[i].equal(o.cols[i]) {
			return false
		}
	}
	return true
}

// RowKey renders row i as a single comparable string.
func (d *Dataset) RowKey(i int) string {
	b := make([]byte, 0, 16*len(d.cols))
	for _, c := range d.cols {
		switch {
		case c.kind == Numeric && math.IsNaN(c.nums[i]):
			b = append(b, "\x00nan"...)
		case c.IsMissing(i):
			b = append(b, "\x00na"...)
		default:
			b = append(b, c.Format(i)...)
		}
		b = append(b, '\x1f')
	}
	return string(b)
}
