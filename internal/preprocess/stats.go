package preprocess

import (
	"math"
	"slices"
	"time"

	"gonum.org/v1/gonum/stat"

	"salesforecast/internal/dataset"
)

// quantile interpolates linearly between closest ranks, q in [0, 1].
// sorted must be ascending and non-empty.
func quantile(sorted []float64, q float64) float64 {
	pos := q * float64(len(sorted)-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	if lo == hi {
		return sorted[lo]
	}
	return sorted[lo] + (pos-float64(lo))*(sorted[hi]-sorted[lo])
}

func median(xs []float64) float64 {
	s := slices.Clone(xs)
	slices.Sort(s)
	return quantile(s, 0.5)
}

func mean(xs []float64) float64 { return stat.Mean(xs, nil) }

// modeFloat returns the most frequent value, the smallest on ties.
func modeFloat(xs []float64) float64 {
	counts := make(map[float64]int, len(xs))
	for _, v := range xs {
		counts[v]++
	}
	best, bestN := math.NaN(), 0
	for v, n := range counts {
		if n > bestN || (n == bestN && v < best) {
			best, bestN = v, n
		}
	}
	return best
}

// modeString returns the most frequent non-empty value, the smallest on ties.
func modeString(xs []string) (string, bool) {
	counts := make(map[string]int, len(xs))
	for _, v := range xs {
		if v != "" {
			counts[v]++
		}
	}
	best, bestN := "", 0
	for v, n := range counts {
		if n > bestN || (n == bestN && v < best) {
			best, bestN = v, n
		}
	}
	return best, bestN > 0
}

// modeTime returns the most frequent non-zero instant, the earliest on ties.
// The first occurrence of the winning instant is returned with its location.
func modeTime(xs []time.Time) (time.Time, bool) {
	type instant struct {
		sec  int64
		nsec int
	}
	type tally struct {
		first time.Time
		n     int
	}
	counts := make(map[instant]*tally, len(xs))
	for _, t := range xs {
		if t.IsZero() {
			continue
		}
		k := instant{t.Unix(), t.Nanosecond()}
		if c, ok := counts[k]; ok {
			c.n++
		} else {
			counts[k] = &tally{first: t, n: 1}
		}
	}
	var best *tally
	for _, c := range counts {
		if best == nil || c.n > best.n || (c.n == best.n && c.first.Before(best.first)) {
			best = c
		}
	}
	if best == nil {
		return time.Time{}, false
	}
	return best.first, true
}

func observed(c dataset.Column) []float64 { return dataset.Observed(c.Floats()) }
