package dataset

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"

	apperrors "salesforecast/internal/errors"
)

// ToDataFrame converts the dataset into a gota frame of string series, so
// numbers keep their shortest round-trip form when written.
func (d *Dataset) ToDataFrame() dataframe.DataFrame {
	ss := make([]series.Series, len(d.cols))
	for j, c := range d.cols {
		vals := make([]string, c.Len())
		for i := range vals {
			vals[i] = c.Format(i)
		}
		ss[j] = series.New(vals, series.String, c.name)
	}
	return dataframe.New(ss...)
}

// WriteCSV writes a header row followed by one record per row.
func (d *Dataset) WriteCSV(w io.Writer) error {
	if d.NumCols() == 0 {
		return apperrors.InvalidParameter("cannot write a dataset without columns")
	}
	return d.ToDataFrame().WriteCSV(w)
}

// SaveCSV writes the dataset to path, creating parent directories.
func SaveCSV(d *Dataset, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return apperrors.NewStorageError("create directory", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return apperrors.NewStorageError("create "+path, err)
	}
	if err := d.WriteCSV(f); err != nil {
		f.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	return f.Close()
}
