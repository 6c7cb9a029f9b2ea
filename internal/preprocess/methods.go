package preprocess

import (
	"strings"

	apperrors "salesforecast/internal/errors"
)

// MissingStrategy selects how HandleMissingValues fills gaps.
type MissingStrategy int

const (
	// MissingAuto fills numeric columns with the median and other columns with the mode.
	MissingAuto MissingStrategy = iota
	// MissingDrop removes every row with a missing value in any column.
	MissingDrop
	// MissingMean fills numeric columns with the mean.
	MissingMean
	// MissingMedian fills numeric columns with the median.
	MissingMedian
	// MissingMode fills every column with its most frequent value.
	MissingMode
)

var missingNames = map[MissingStrategy]string{
	MissingAuto:   "auto",
	MissingDrop:   "drop",
	MissingMean:   "mean",
	MissingMedian: "median",
	MissingMode:   "mode",
}

func (s MissingStrategy) String() string { return missingNames[s] }

// ParseMissingStrategy maps a name to a strategy.
func ParseMissingStrategy(name string) (MissingStrategy, error) {
	return parseEnum(missingNames, "missing value strategy", name)
}

// OutlierMethod selects how HandleOutliers treats extreme values.
type OutlierMethod int

const (
	// OutlierIQR clips values to [Q1-k*IQR, Q3+k*IQR].
	OutlierIQR OutlierMethod = iota
	// OutlierZScore flags values with |z| > k without changing them.
	OutlierZScore
)

var outlierNames = map[OutlierMethod]string{
	OutlierIQR:    "iqr",
	OutlierZScore: "zscore",
}

func (m OutlierMethod) String() string { return outlierNames[m] }

func ParseOutlierMethod(name string) (OutlierMethod, error) {
	return parseEnum(outlierNames, "outlier method", name)
}

// EncodingMethod selects categorical encoding.
type EncodingMethod int

const (
	EncodingLabel EncodingMethod = iota
	EncodingOneHot
)

var encodingNames = map[EncodingMethod]string{
	EncodingLabel:  "label",
	EncodingOneHot: "onehot",
}

func (m EncodingMethod) String() string { return encodingNames[m] }

func ParseEncodingMethod(name string) (EncodingMethod, error) {
	return parseEnum(encodingNames, "encoding method", name)
}

// ScalingMethod selects numeric scaling.
type ScalingMethod int

const (
	// ScalingStandard centres on the mean and divides by the population standard deviation.
	ScalingStandard ScalingMethod = iota
	// ScalingMinMax maps [min, max] onto [0, 1].
	ScalingMinMax
)

var scalingNames = map[ScalingMethod]string{
	ScalingStandard: "standard",
	ScalingMinMax:   "minmax",
}

func (m ScalingMethod) String() string { return scalingNames[m] }

func ParseScalingMethod(name string) (ScalingMethod, error) {
	return parseEnum(scalingNames, "scaling method", name)
}

func parseEnum[T comparable](names map[T]string, what, name string) (T, error) {
	key := strings.ToLower(strings.TrimSpace(name))
	for v, n := range names {
		if n == key {
			return v, nil
		}
	}
	var zero T
	return zero, apperrors.InvalidParameter("unsupported %s %q", what, name)
}

func (s MissingStrategy) MarshalText() ([]byte, error) { return []byte(s.String()), nil }
func (m OutlierMethod) MarshalText() ([]byte, error)   { return []byte(m.String()), nil }
func (m EncodingMethod) MarshalText() ([]byte, error)  { return []byte(m.String()), nil }
func (m ScalingMethod) MarshalText() ([]byte, error)   { return []byte(m.String()), nil }

func (s *MissingStrategy) UnmarshalText(b []byte) (err error) {
	*s, err = ParseMissingStrategy(string(b))
	return err
}

func (m *OutlierMethod) UnmarshalText(b []byte) (err error) {
	*m, err = ParseOutlierMethod(string(b))
	return err
}

func (m *EncodingMethod) UnmarshalText(b []byte) (err error) {
	*m, err = ParseEncodingMethod(string(b))
	return err
}

func (m *ScalingMethod) UnmarshalText(b []byte) (err error) {
	*m, err = ParseScalingMethod(string(b))
	return err
}
