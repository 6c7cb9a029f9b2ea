package dataset

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"
	"github.com/xuri/excelize/v2"

	apperrors "salesforecast/internal/errors"
)

// nanValues are the cell contents treated as missing on ingestion.
var nanValues = []string{"", "NA", "N/A", "NaN", "nan", "null", "NULL"}

// LoadOptions controls ingestion.
type LoadOptions struct {
	// DateColumns are parsed as temporal columns.
	DateColumns []string
	// DateLayouts override DefaultDateLayouts.
	DateLayouts []string
	// Sheet selects an .xlsx sheet; the first sheet is used when empty.
	Sheet  string
	Logger *slog.Logger
}

// Load reads a .csv or .xlsx file with a header row.
func Load(ctx context.Context, path string, opts LoadOptions) (*Dataset, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With(slog.String("component", "dataset"))

	if _, err := os.Stat(path); err != nil {
		return nil, apperrors.NewAppError(apperrors.ErrTypeMissingInput, fmt.Sprintf("input file %s", path), err)
	}

	var (
		ds  *Dataset
		err error
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx", ".xlsm":
		ds, err = loadXLSX(path, opts)
	default:
		var f *os.File
		f, err = os.Open(path)
		if err != nil {
			return nil, apperrors.NewStorageError("open "+path, err)
		}
		defer f.Close()
		ds, err = ReadCSV(f, opts)
	}
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", path, err)
	}

	logger.InfoContext(ctx, "dataset loaded",
		slog.String("path", path),
		slog.Int("rows", ds.NumRows()),
		slog.Int("columns", ds.NumCols()))
	return ds, nil
}

// ReadCSV parses comma-separated text with a header row.
func ReadCSV(r io.Reader, opts LoadOptions) (*Dataset, error) {
	df := dataframe.ReadCSV(r, gotaOptions(opts)...)
	if df.Err != nil {
		return nil, apperrors.NewParsingError("read csv", df.Err)
	}
	return FromDataFrame(df, opts)
}

func loadXLSX(path string, opts LoadOptions) (*Dataset, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, apperrors.NewStorageError("open workbook", err)
	}
	defer f.Close()

	sheet := opts.Sheet
	if sheet == "" {
		sheet = f.GetSheetName(0)
	}
	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, apperrors.NewParsingError("read sheet "+sheet, err)
	}
	if len(rows) == 0 {
		return nil, apperrors.MissingInput("sheet %q is empty", sheet)
	}

	// excelize trims trailing empty cells; pad every row to the header width.
	width := len(rows[0])
	records := make([][]string, len(rows))
	for i, row := range rows {
		rec := make([]string, width)
		copy(rec, row)
		records[i] = rec
	}

	df := dataframe.LoadRecords(records, gotaOptions(opts)...)
	if df.Err != nil {
		return nil, apperrors.NewParsingError("read sheet "+sheet, df.Err)
	}
	return FromDataFrame(df, opts)
}

func gotaOptions(opts LoadOptions) []dataframe.LoadOption {
	types := make(map[string]series.Type, len(opts.DateColumns))
	for _, c := range opts.DateColumns {
		types[c] = series.String
	}
	return []dataframe.LoadOption{
		dataframe.HasHeader(true),
		dataframe.DetectTypes(true),
		dataframe.NaNValues(nanValues),
		dataframe.WithTypes(types),
	}
}

// FromDataFrame converts a gota frame. Int, float and bool series become
// numeric, string series categorical, and DateColumns temporal.
func FromDataFrame(df dataframe.DataFrame, opts LoadOptions) (*Dataset, error) {
	cols := make([]Column, 0, df.Ncol())
	for _, name := range df.Names() {
		s := df.Col(name)
		nan := s.IsNaN()

		if slices.Contains(opts.DateColumns, name) {
			col, err := parseTemporal(name, s.Records(), nan, opts.DateLayouts)
			if err != nil {
				return nil, err
			}
			cols = append(cols, col)
			continue
		}

		switch s.Type() {
		case series.Int, series.Float, series.Bool:
			vals := s.Float()
			for i := range vals {
				if nan[i] {
					vals[i] = math.NaN()
				}
			}
			cols = append(cols, Column{name: name, kind: Numeric, nums: vals})
		default:
			vals := s.Records()
			for i := range vals {
				if nan[i] {
					vals[i] = ""
				}
			}
			cols = append(cols, Column{name: name, kind: Categorical, strs: vals})
		}
	}
	return New(cols...)
}

func parseTemporal(name string, raw []string, nan []bool, layouts []string) (Column, error) {
	times := make([]time.Time, len(raw))
	for i, v := range raw {
		if nan[i] {
			continue
		}
		t, ok := ParseTime(v, layouts)
		if !ok {
			return Column{}, apperrors.InvalidParameter("column %q row %d: %q is not a date", name, i, v)
		}
		times[i] = t
	}
	return Column{name: name, kind: Temporal, times: times}, nil
}
