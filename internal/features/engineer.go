// Package features derives new columns from a dataset: calendar parts, lags,
// rolling windows, group aggregations, interactions, powers and bins. Every
// operation returns a new dataset and never removes existing columns.
package features

import (
	"context"
	"fmt"
	"log/slog"
	"slices"

	"salesforecast/internal/dataset"
	apperrors "salesforecast/internal/errors"
)

// Family groups created features for reporting.
type Family string

const (
	FamilyDate        Family = "date"
	FamilyLag         Family = "lag"
	FamilyRolling     Family = "rolling"
	FamilyAggregation Family = "aggregation"
	FamilyInteraction Family = "interaction"
	FamilyPolynomial  Family = "polynomial"
	FamilyBinning     Family = "binning"
)

// Feature is one entry of the session registry.
type Feature struct {
	Name   string `json:"name"`
	Family Family `json:"family"`
}

// Engineer creates features and records their names for the session.
// The registry is informational only.
type Engineer struct {
	logger  *slog.Logger
	layouts []string
	created []Feature
	state   State
	fitted  *State
}

// Option configures an Engineer.
type Option func(*Engineer)

// WithDateLayouts sets the layouts tried when parsing text dates.
func WithDateLayouts(layouts ...string) Option {
	return func(e *Engineer) {
		if len(layouts) > 0 {
			e.layouts = slices.Clone(layouts)
		}
	}
}

// New returns an Engineer logging to logger, or slog.Default when nil.
func New(logger *slog.Logger, opts ...Option) *Engineer {
	if logger == nil {
		logger = slog.Default()
	}
	e := &Engineer{
		logger:  logger.With(slog.String("component", "features")),
		layouts: dataset.DefaultDateLayouts,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Created returns the names of every feature created in this session, in order.
func (e *Engineer) Created() []string {
	names := make([]string, len(e.created))
	for i, f := range e.created {
		names[i] = f.Name
	}
	return names
}

// Reset clears the registry and the fitted state recorded so far.
func (e *Engineer) Reset() {
	e.created = nil
	e.state = State{}
}

// Summary counts created features per family.
type Summary struct {
	Total    int            `json:"total"`
	Features []Feature      `json:"features"`
	ByFamily map[Family]int `json:"by_family"`
}

// Summary reports the session registry.
func (e *Engineer) Summary() Summary {
	s := Summary{
		Total:    len(e.created),
		Features: slices.Clone(e.created),
		ByFamily: make(map[Family]int),
	}
	for _, f := range e.created {
		s.ByFamily[f.Family]++
	}
	return s
}

// add appends cols to ds and records them under family. A generated name
// that collides with an existing column is an error.
func (e *Engineer) add(ctx context.Context, ds *dataset.Dataset, family Family, cols ...dataset.Column) (*dataset.Dataset, error) {
	out, err := ds.Append(cols...)
	if err != nil {
		return nil, fmt.Errorf("%s features: %w", family, err)
	}
	for _, c := range cols {
		e.created = append(e.created, Feature{Name: c.Name(), Family: family})
	}
	e.logger.InfoContext(ctx, "features created",
		slog.String("family", string(family)),
		slog.Int("count", len(cols)))
	return out, nil
}

func numericColumn(ds *dataset.Dataset, name string) ([]float64, error) {
	c, err := ds.Column(name)
	if err != nil {
		return nil, err
	}
	if c.Kind() != dataset.Numeric {
		return nil, apperrors.InvalidParameter("column %q is %s, not numeric", name, c.Kind())
	}
	return c.Floats(), nil
}
