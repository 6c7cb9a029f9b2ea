package preprocess

import (
	"context"
	"log/slog"
	"math"
	"slices"

	"gonum.org/v1/gonum/stat"

	"salesforecast/internal/dataset"
	apperrors "salesforecast/internal/errors"
)

// ColumnOutliers describes the outliers found in one column.
type ColumnOutliers struct {
	Column string  `json:"column"`
	Count  int     `json:"count"`
	Lower  float64 `json:"lower"`
	Upper  float64 `json:"upper"`
	// Rows lists flagged row indices.
	Rows    []int `json:"rows,omitempty"`
	Clipped bool  `json:"clipped"`
}

// OutlierReport collects per-column results in processing order.
type OutlierReport struct {
	Method    string           `json:"method"`
	Threshold float64          `json:"threshold"`
	Columns   []ColumnOutliers `json:"columns"`
	// Skipped names columns that could not be analysed.
	Skipped []string `json:"skipped,omitempty"`
}

// Total returns the number of flagged values across columns.
func (r OutlierReport) Total() int {
	n := 0
	for _, c := range r.Columns {
		n += c.Count
	}
	return n
}

// HandleOutliers detects outliers in the given numeric columns, all numeric
// columns when columns is empty. OutlierIQR clips values to the fences and
// never removes rows; OutlierZScore only reports.
func (p *Preprocessor) HandleOutliers(ctx context.Context, ds *dataset.Dataset, columns []string, method OutlierMethod, threshold float64) (*dataset.Dataset, OutlierReport, error) {
	report := OutlierReport{Method: method.String(), Threshold: threshold}
	if method != OutlierIQR && method != OutlierZScore {
		return nil, report, unsupported("outlier method", method)
	}
	if threshold <= 0 || math.IsNaN(threshold) {
		return nil, report, apperrors.InvalidParameter("outlier threshold must be positive, got %v", threshold)
	}
	if len(columns) == 0 {
		columns = ds.NumericNames()
	}

	out := ds
	for _, name := range columns {
		c, err := ds.Column(name)
		if err != nil {
			return nil, report, err
		}
		if c.Kind() != dataset.Numeric {
			return nil, report, apperrors.InvalidParameter("outlier column %q is %s", name, c.Kind())
		}

		obs := observed(c)
		if len(obs) < 2 {
			report.Skipped = append(report.Skipped, name)
			continue
		}

		var res ColumnOutliers
		switch method {
		case OutlierIQR:
			res = iqrOutliers(c, obs, threshold)
		case OutlierZScore:
			var ok bool
			if res, ok = zscoreOutliers(c, obs, threshold); !ok {
				p.logger.WarnContext(ctx, "zero standard deviation, column skipped",
					slog.String("column", name))
				report.Skipped = append(report.Skipped, name)
				continue
			}
		}

		if res.Count > 0 {
			p.logger.InfoContext(ctx, "outliers detected",
				slog.String("column", name),
				slog.Int("count", res.Count),
				slog.Float64("lower", res.Lower),
				slog.Float64("upper", res.Upper))
		}
		if res.Clipped && res.Count > 0 {
			vals := c.Floats()
			for i, v := range vals {
				if !math.IsNaN(v) {
					vals[i] = math.Min(math.Max(v, res.Lower), res.Upper)
				}
			}
			if out, err = out.WithColumn(dataset.NewNumeric(name, vals)); err != nil {
				return nil, report, err
			}
		}
		report.Columns = append(report.Columns, res)
	}

	p.logger.InfoContext(ctx, "outlier handling complete",
		slog.String("method", method.String()),
		slog.Int("total", report.Total()))
	return out, report, nil
}

func iqrOutliers(c dataset.Column, obs []float64, k float64) ColumnOutliers {
	sorted := slices.Clone(obs)
	slices.Sort(sorted)
	q1, q3 := quantile(sorted, 0.25), quantile(sorted, 0.75)
	iqr := q3 - q1
	res := ColumnOutliers{
		Column:  c.Name(),
		Lower:   q1 - k*iqr,
		Upper:   q3 + k*iqr,
		Clipped: true,
	}
	for i := 0; i < c.Len(); i++ {
		v := c.Float(i)
		if v < res.Lower || v > res.Upper {
			res.Rows = append(res.Rows, i)
		}
	}
	res.Count = len(res.Rows)
	return res
}

// zscoreOutliers uses the sample standard deviation. ok is false when it is zero.
func zscoreOutliers(c dataset.Column, obs []float64, k float64) (ColumnOutliers, bool) {
	mu, sd := stat.MeanStdDev(obs, nil)
	if sd == 0 || math.IsNaN(sd) {
		return ColumnOutliers{}, false
	}
	res := ColumnOutliers{
		Column: c.Name(),
		Lower:  mu - k*sd,
		Upper:  mu + k*sd,
	}
	for i := 0; i < c.Len(); i++ {
		v := c.Float(i)
		if math.Abs((v-mu)/sd) > k {
			res.Rows = append(res.Rows, i)
		}
	}
	res.Count = len(res.Rows)
	return res, true
}
