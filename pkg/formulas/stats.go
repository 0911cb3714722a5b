package formulas

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Statistics describes the defined values of a derived series
type Statistics struct {
	Count         int     `json:"count"`
	Min           float64 `json:"min"`
	Max           float64 `json:"max"`
	Mean          float64 `json:"mean"`
	Median        float64 `json:"median"`
	StdDev        float64 `json:"std"`
	Variance      float64 `json:"variance"`
	First         float64 `json:"first_value"`
	Last          float64 `json:"last_value"`
	Change        float64 `json:"change"`
	ChangePercent float64 `json:"change_percent"`
	PositiveCount int     `json:"positive_count"`
	NegativeCount int     `json:"negative_count"`
	ZeroCount     int     `json:"zero_count"`
}

// DropNaN returns the defined values of a series, preserving order
func DropNaN(values []float64) []float64 {
	out := make([]float64, 0, len(values))
	for _, v := range values {
		if !math.IsNaN(v) {
			out = append(out, v)
		}
	}
	return out
}

// Describe computes descriptive statistics over the non-NaN values.
// Returns nil when no value is defined.
//
// Standard deviation and variance are population measures. ChangePercent is zero
// when the first value is zero.
func Describe(values []float64) *Statistics {
	clean := DropNaN(values)
	if len(clean) == 0 {
		return nil
	}

	mean, variance := stat.PopMeanVariance(clean, nil)
	first, last := clean[0], clean[len(clean)-1]

	s := &Statistics{
		Count:    len(clean),
		Min:      floats.Min(clean),
		Max:      floats.Max(clean),
		Mean:     mean,
		Median:   Median(clean),
		StdDev:   math.Sqrt(variance),
		Variance: variance,
		First:    first,
		Last:     last,
		Change:   last - first,
	}
	if first != 0 {
		s.ChangePercent = (last - first) / first * 100
	}

	for _, v := range clean {
		switch {
		case v > 0:
			s.PositiveCount++
		case v < 0:
			s.NegativeCount++
		default:
			s.ZeroCount++
		}
	}

	return s
}

// Median returns the middle value, averaging the two central values for even counts.
// NaN for an empty slice.
func Median(values []float64) float64 {
	if len(values) == 0 {
		return math.NaN()
	}
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	mid := len(sorted) / 2
	if len(sorted)%2 == 1 {
		return sorted[mid]
	}
	return (sorted[mid-1] + sorted[mid]) / 2
}
