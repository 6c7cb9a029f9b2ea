package preprocess

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"slices"

	"salesforecast/internal/dataset"
	apperrors "salesforecast/internal/errors"
)

// Encoder is a fitted categorical encoding for one column.
type Encoder interface {
	Column() string
	Method() EncodingMethod
	// Transform applies the fitted mapping to the column of the same name.
	Transform(ds *dataset.Dataset) (*dataset.Dataset, error)
}

// LabelEncoder maps sorted categories to 0..n-1. Missing values map to NaN.
type LabelEncoder struct {
	Name    string   `json:"column"`
	Classes []string `json:"classes"`
	index   map[string]int
}

// NewLabelEncoder builds an encoder from a class list.
func NewLabelEncoder(column string, classes []string) *LabelEncoder {
	e := &LabelEncoder{Name: column, Classes: slices.Clone(classes)}
	e.index = make(map[string]int, len(classes))
	for i, c := range classes {
		e.index[c] = i
	}
	return e
}

func (e *LabelEncoder) Column() string         { return e.Name }
func (e *LabelEncoder) Method() EncodingMethod { return EncodingLabel }

// Transform replaces the column with its codes. Unseen categories are an error.
func (e *LabelEncoder) Transform(ds *dataset.Dataset) (*dataset.Dataset, error) {
	c, err := categoricalColumn(ds, e.Name)
	if err != nil {
		return nil, err
	}
	index := e.index
	if index == nil {
		index = NewLabelEncoder(e.Name, e.Classes).index
	}
	codes := make([]float64, c.Len())
	for i := range codes {
		v := c.Text(i)
		if v == "" {
			codes[i] = math.NaN()
			continue
		}
		code, ok := index[v]
		if !ok {
			return nil, apperrors.InvalidParameter("column %q: unseen category %q", e.Name, v)
		}
		codes[i] = float64(code)
	}
	return ds.WithColumn(dataset.NewNumeric(e.Name, codes))
}

// Decode maps codes back to categories; out-of-range codes decode to "".
func (e *LabelEncoder) Decode(codes []float64) []string {
	out := make([]string, len(codes))
	for i, v := range codes {
		k := int(v)
		if !math.IsNaN(v) && k >= 0 && k < len(e.Classes) && float64(k) == v {
			out[i] = e.Classes[k]
		}
	}
	return out
}

// OneHotEncoder replaces a column with 0/1 indicator columns named
// "<column>_<category>", one per category except the first in sort order.
type OneHotEncoder struct {
	Name       string   `json:"column"`
	Categories []string `json:"categories"`
}

func (e *OneHotEncoder) Column() string         { return e.Name }
func (e *OneHotEncoder) Method() EncodingMethod { return EncodingOneHot }

// OutputNames lists the indicator columns in emission order.
func (e *OneHotEncoder) OutputNames() []string {
	if len(e.Categories) < 2 {
		return nil
	}
	names := make([]string, 0, len(e.Categories)-1)
	for _, cat := range e.Categories[1:] {
		names = append(names, e.Name+"_"+cat)
	}
	return names
}

// Transform drops the source column and appends the indicators. A value
// outside the fitted categories, or missing, yields all zeros. An indicator
// name that already exists in ds is an error.
func (e *OneHotEncoder) Transform(ds *dataset.Dataset) (*dataset.Dataset, error) {
	c, err := categoricalColumn(ds, e.Name)
	if err != nil {
		return nil, err
	}
	out := ds.Drop(e.Name)
	if len(e.Categories) < 2 {
		return out, nil
	}
	cols := make([]dataset.Column, 0, len(e.Categories)-1)
	for _, cat := range e.Categories[1:] {
		ind := make([]float64, c.Len())
		for i := range ind {
			if c.Text(i) == cat {
				ind[i] = 1
			}
		}
		cols = append(cols, dataset.NewNumeric(e.Name+"_"+cat, ind))
	}
	return out.Append(cols...)
}

// EncodeCategorical fits and applies an encoder per column, all categorical
// columns when columns is empty. Fitted encoders are retained for Transform.
func (p *Preprocessor) EncodeCategorical(ctx context.Context, ds *dataset.Dataset, columns []string, method EncodingMethod) (*dataset.Dataset, error) {
	if method != EncodingLabel && method != EncodingOneHot {
		return nil, unsupported("encoding method", method)
	}
	if len(columns) == 0 {
		columns = ds.CategoricalNames()
	}

	out := ds
	fitted := make([]Encoder, 0, len(columns))
	for _, name := range columns {
		c, err := categoricalColumn(ds, name)
		if err != nil {
			return nil, err
		}
		cats := categories(c)

		var enc Encoder
		switch method {
		case EncodingLabel:
			enc = NewLabelEncoder(name, cats)
		case EncodingOneHot:
			enc = &OneHotEncoder{Name: name, Categories: cats}
		}
		if out, err = enc.Transform(out); err != nil {
			return nil, fmt.Errorf("encode %s: %w", name, err)
		}
		fitted = append(fitted, enc)

		p.logger.InfoContext(ctx, "column encoded",
			slog.String("column", name),
			slog.String("method", method.String()),
			slog.Int("categories", len(cats)))
	}

	p.encoders = append(p.encoders, fitted...)
	return out, nil
}

func categoricalColumn(ds *dataset.Dataset, name string) (dataset.Column, error) {
	c, err := ds.Column(name)
	if err != nil {
		return c, err
	}
	if c.Kind() != dataset.Categorical {
		return c, apperrors.InvalidParameter("column %q is %s, not categorical", name, c.Kind())
	}
	return c, nil
}

// categories returns the sorted distinct non-missing values.
func categories(c dataset.Column) []string {
	vals := c.Texts()
	vals = slices.DeleteFunc(vals, func(s string) bool { return s == "" })
	slices.Sort(vals)
	return slices.Compact(vals)
}
