package features

import (
	"context"
	"math"
	"time"

	"salesforecast/internal/dataset"
	apperrors "salesforecast/internal/errors"
)

// CreateDateFeatures converts col to a temporal column (parsing text values)
// and adds <col>_year, _month, _day, _dayofweek (Monday=0), _quarter,
// _weekofyear (ISO), _is_weekend, _is_month_start and _is_month_end.
// Missing dates yield missing features; an unparseable value is an error.
func (e *Engineer) CreateDateFeatures(ctx context.Context, ds *dataset.Dataset, col string) (*dataset.Dataset, error) {
	times, err := e.toTimes(ds, col)
	if err != nil {
		return nil, err
	}

	n := len(times)
	names := []string{"year", "month", "day", "dayofweek", "quarter", "weekofyear", "is_weekend", "is_month_start", "is_month_end"}
	vals := make([][]float64, len(names))
	for j := range vals {
		vals[j] = make([]float64, n)
	}

	for i, t := range times {
		if t.IsZero() {
			for j := range vals {
				vals[j][i] = math.NaN()
			}
			continue
		}
		dow := (int(t.Weekday()) + 6) % 7
		_, week := t.ISOWeek()
		vals[0][i] = float64(t.Year())
		vals[1][i] = float64(t.Month())
		vals[2][i] = float64(t.Day())
		vals[3][i] = float64(dow)
		vals[4][i] = float64((int(t.Month())-1)/3 + 1)
		vals[5][i] = float64(week)
		vals[6][i] = boolFloat(dow >= 5)
		vals[7][i] = boolFloat(t.Day() == 1)
		vals[8][i] = boolFloat(t.AddDate(0, 0, 1).Day() == 1)
	}

	cols := make([]dataset.Column, 0, len(names)+1)
	cols = append(cols, dataset.NewTemporal(col, times))
	for j, suffix := range names {
		cols = append(cols, dataset.NewNumeric(col+"_"+suffix, vals[j]))
	}

	out, err := ds.WithColumn(cols[0])
	if err != nil {
		return nil, err
	}
	return e.add(ctx, out, FamilyDate, cols[1:]...)
}

func (e *Engineer) toTimes(ds *dataset.Dataset, col string) ([]time.Time, error) {
	c, err := ds.Column(col)
	if err != nil {
		return nil, err
	}
	switch c.Kind() {
	case dataset.Temporal:
		return c.Times(), nil
	case dataset.Categorical:
		times := make([]time.Time, c.Len())
		for i := range times {
			if c.IsMissing(i) {
				continue
			}
			t, ok := dataset.ParseTime(c.Text(i), e.layouts)
			if !ok {
				return nil, apperrors.InvalidParameter("column %q row %d: %q is not a date", col, i, c.Text(i))
			}
			times[i] = t
		}
		return times, nil
	default:
		return nil, apperrors.InvalidParameter("column %q is %s and cannot be read as dates", col, c.Kind())
	}
}

func boolFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
