package services

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"strings"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"salesforecast/internal/dataset"
	apperrors "salesforecast/internal/errors"
)

// Limits for Records.
const (
	DefaultDataLimit = 50
	MaxDataLimit     = 1000
)

// sampleDays sizes the synthetic dataset served when no input file exists.
const sampleDays = 100

// DataOptions selects the columns the data endpoints summarise.
type DataOptions struct {
	SalesColumn    string
	CategoryColumn string
	DateColumns    []string
	DateLayouts    []string
}

// SalesStats summarises the sales column.
type SalesStats struct {
	TotalRecords int     `json:"total_records"`
	MeanSales    float64 `json:"mean_sales"`
	MaxSales     float64 `json:"max_sales"`
	MinSales     float64 `json:"min_sales"`
	TotalSales   float64 `json:"total_sales"`
	MedianSales  float64 `json:"median_sales"`
}

// DataPage is the head of the dataset as JSON-friendly records.
type DataPage struct {
	Data         []map[string]any `json:"data"`
	Columns      []string         `json:"columns"`
	TotalRecords int              `json:"total_records"`
}

// CategoryStats aggregates sales for one category value.
type CategoryStats struct {
	Sum   float64 `json:"sum"`
	Mean  float64 `json:"mean"`
	Count int     `json:"count"`
}

// CategoryBreakdown is the per-category aggregate of the sales column.
type CategoryBreakdown struct {
	Categories map[string]CategoryStats `json:"categories"`
	Column     string                   `json:"category_column"`
}

// DataService answers dashboard queries over one dataset held in memory.
type DataService struct {
	ds     *dataset.Dataset
	opts   DataOptions
	source string
	logger *slog.Logger
}

// NewDataService loads path. A missing file falls back to a generated
// sample so the dashboard still has something to show.
func NewDataService(ctx context.Context, path string, opts DataOptions, logger *slog.Logger) (*DataService, error) {
	if logger == nil {
		logger = slog.Default()
	}
	ds, err := dataset.Load(ctx, path, dataset.LoadOptions{
		DateColumns: opts.DateColumns,
		DateLayouts: opts.DateLayouts,
		Logger:      logger,
	})
	source := path
	switch {
	case errors.Is(err, apperrors.ErrMissingInput):
		logger.WarnContext(ctx, "sales data not found, serving generated sample",
			slog.String("path", path))
		cfg := dataset.DefaultSampleConfig()
		cfg.Days = sampleDays
		ds, source = dataset.GenerateSample(cfg), "sample"
	case err != nil:
		return nil, err
	}
	return NewDataServiceFromDataset(ds, source, opts, logger), nil
}

// NewDataServiceFromDataset serves an already loaded dataset.
func NewDataServiceFromDataset(ds *dataset.Dataset, source string, opts DataOptions, logger *slog.Logger) *DataService {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With(slog.String("component", "data_service"))
	logger.Info("DataService initialized",
		slog.String("source", source),
		slog.Int("rows", ds.NumRows()),
		slog.Int("columns", ds.NumCols()))
	return &DataService{ds: ds, opts: opts, source: source, logger: logger}
}

// Source is the file the data came from, or "sample".
func (s *DataService) Source() string { return s.source }

// Stats summarises the sales column. Missing values are ignored.
func (s *DataService) Stats(ctx context.Context) (*SalesStats, error) {
	col, err := s.salesColumn()
	if err != nil {
		return nil, err
	}
	xs := dataset.Observed(col.Floats())
	st := &SalesStats{TotalRecords: s.ds.NumRows()}
	if len(xs) == 0 {
		return st, nil
	}
	st.MeanSales = stat.Mean(xs, nil)
	st.MaxSales = floats.Max(xs)
	st.MinSales = floats.Min(xs)
	st.TotalSales = floats.Sum(xs)
	st.MedianSales = median(xs)

	s.logger.DebugContext(ctx, "stats computed",
		slog.String("column", col.Name()),
		slog.Int("observed", len(xs)))
	return st, nil
}

// Records returns the first limit rows. A limit outside (0, MaxDataLimit]
// is an invalid parameter.
func (s *DataService) Records(ctx context.Context, limit int) (*DataPage, error) {
	if limit <= 0 || limit > MaxDataLimit {
		return nil, apperrors.InvalidParameter("limit must be between 1 and %d, got %d", MaxDataLimit, limit)
	}
	head := s.ds.Head(limit)
	cols := head.Columns()
	page := &DataPage{
		Data:         make([]map[string]any, head.NumRows()),
		Columns:      s.ds.Names(),
		TotalRecords: s.ds.NumRows(),
	}
	for i := range page.Data {
		rec := make(map[string]any, len(cols))
		for _, c := range cols {
			rec[c.Name()] = cellValue(c, i)
		}
		page.Data[i] = rec
	}
	return page, nil
}

// Categories aggregates sales by the category column. When none is
// configured, a column named category (any case) or else the first
// categorical column is used.
func (s *DataService) Categories(ctx context.Context) (*CategoryBreakdown, error) {
	sales, err := s.salesColumn()
	if err != nil {
		return nil, err
	}
	name := s.categoryColumn()
	if name == "" {
		return nil, apperrors.MissingInput("dataset has no categorical column").
			WithContext("columns", s.ds.Names())
	}
	cat, err := s.ds.Column(name)
	if err != nil {
		return nil, err
	}
	if cat.Kind() != dataset.Categorical {
		return nil, apperrors.InvalidParameter("category column %q is %s, not categorical", name, cat.Kind())
	}

	out := &CategoryBreakdown{Categories: map[string]CategoryStats{}, Column: name}
	for i := 0; i < s.ds.NumRows(); i++ {
		if cat.IsMissing(i) || sales.IsMissing(i) {
			continue
		}
		cs := out.Categories[cat.Text(i)]
		cs.Sum += sales.Float(i)
		cs.Count++
		out.Categories[cat.Text(i)] = cs
	}
	for k, cs := range out.Categories {
		cs.Mean = cs.Sum / float64(cs.Count)
		out.Categories[k] = cs
	}
	s.logger.DebugContext(ctx, "categories computed",
		slog.String("column", name),
		slog.Int("groups", len(out.Categories)))
	return out, nil
}

// salesColumn resolves the configured sales column, accepting "Sales" or
// "sales" when none is set.
func (s *DataService) salesColumn() (dataset.Column, error) {
	candidates := []string{"Sales", "sales"}
	if s.opts.SalesColumn != "" {
		candidates = []string{s.opts.SalesColumn}
	}
	for _, name := range candidates {
		if !s.ds.HasColumn(name) {
			continue
		}
		c, err := s.ds.Column(name)
		if err != nil {
			return dataset.Column{}, err
		}
		if c.Kind() != dataset.Numeric {
			return dataset.Column{}, apperrors.InvalidParameter("sales column %q is %s, not numeric", name, c.Kind())
		}
		return c, nil
	}
	return dataset.Column{}, apperrors.MissingInput("sales column not found").
		WithContext("columns", s.ds.Names())
}

func (s *DataService) categoryColumn() string {
	if s.opts.CategoryColumn != "" {
		return s.opts.CategoryColumn
	}
	cats := s.ds.CategoricalNames()
	if i := slices.IndexFunc(cats, func(n string) bool { return strings.EqualFold(n, "category") }); i >= 0 {
		return cats[i]
	}
	if len(cats) > 0 {
		return cats[0]
	}
	return ""
}

// cellValue converts one cell for JSON. Missing cells become null.
func cellValue(c dataset.Column, i int) any {
	if c.IsMissing(i) {
		return nil
	}
	if c.Kind() == dataset.Numeric {
		return c.Float(i)
	}
	return c.Format(i)
}

// median averages the two middle values of an even-length sample.
func median(xs []float64) float64 {
	sorted := slices.Clone(xs)
	slices.Sort(sorted)
	n := len(sorted)
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}
