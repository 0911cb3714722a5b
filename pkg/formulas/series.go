// Package formulas provides the numeric series transformations behind composite expressions.
//
// Every function returns a new slice with the same length as its input. Undefined positions
// are NaN; a NaN input never aborts a computation.
package formulas

import (
	"math"

	"github.com/markcheno/go-talib"
)

// windowFunc computes a trailing-window indicator over a NaN-free slice whose length is at
// least period. Positions before period-1 are ignored by the caller.
type windowFunc func(in []float64, period int) []float64

// indicator pairs a go-talib window function with its value for a one-point window,
// which go-talib does not produce for every function.
type indicator struct {
	window windowFunc
	single func(x float64) float64
}

func same(x float64) float64 { return x }

func zero(float64) float64 { return 0 }

// SMA returns the simple moving average over a trailing window of period points.
// The first period-1 points, and any window containing NaN, are NaN.
func SMA(values []float64, period int) []float64 {
	return rolling(values, period, indicator{window: talib.Sma, single: same})
}

// RollingMax returns the highest value over a trailing window of period points
func RollingMax(values []float64, period int) []float64 {
	return rolling(values, period, indicator{window: talib.Max, single: same})
}

// RollingMin returns the lowest value over a trailing window of period points
func RollingMin(values []float64, period int) []float64 {
	return rolling(values, period, indicator{window: talib.Min, single: same})
}

// RollingStdDev returns the population standard deviation over a trailing window
func RollingStdDev(values []float64, period int) []float64 {
	return rolling(values, period, indicator{
		window: func(in []float64, p int) []float64 { return talib.StdDev(in, p, 1.0) },
		single: zero,
	})
}

// EMA returns the exponential moving average seeded with the first defined input.
//
//	ema[0] = x[0]
//	ema[i] = alpha*x[i] + (1-alpha)*ema[i-1], alpha = 2/(period+1)
//
// A NaN input yields NaN at that index and the previous average carries forward.
// Leading NaNs stay NaN until the first defined value seeds the average.
func EMA(values []float64, period int) []float64 {
	out := nanSlice(len(values))
	if period < 1 {
		return out
	}

	alpha := 2.0 / (float64(period) + 1.0)
	seeded := false
	var prev float64
	for i, x := range values {
		if math.IsNaN(x) {
			continue
		}
		if !seeded {
			prev = x
			seeded = true
		} else {
			prev = alpha*x + (1-alpha)*prev
		}
		out[i] = prev
	}
	return out
}

// rolling splits values into maximal NaN-free runs and applies fn to each run.
// go-talib assumes clean input, so windows that would straddle a NaN stay undefined.
func rolling(values []float64, period int, ind indicator) []float64 {
	out := nanSlice(len(values))
	if period < 1 {
		return out
	}

	start := -1
	flush := func(end int) {
		if start < 0 {
			return
		}
		run := values[start:end]
		if len(run) >= period {
			if period == 1 {
				for j, v := range run {
					out[start+j] = ind.single(v)
				}
			} else {
				computed := ind.window(run, period)
				for j := period - 1; j < len(run); j++ {
					out[start+j] = computed[j]
				}
			}
		}
		start = -1
	}

	for i, v := range values {
		if math.IsNaN(v) {
			flush(i)
			continue
		}
		if start < 0 {
			start = i
		}
	}
	flush(len(values))

	return out
}

// Log returns the natural logarithm; non-positive inputs are NaN
func Log(values []float64) []float64 {
	return mapValues(values, func(x float64) float64 {
		if x <= 0 {
			return math.NaN()
		}
		return math.Log(x)
	})
}

// Sqrt returns the square root; negative inputs are NaN
func Sqrt(values []float64) []float64 {
	return mapValues(values, func(x float64) float64 {
		if x < 0 {
			return math.NaN()
		}
		return math.Sqrt(x)
	})
}

// Abs returns absolute values
func Abs(values []float64) []float64 {
	return mapValues(values, math.Abs)
}

// Sin returns the sine of each value (radians)
func Sin(values []float64) []float64 {
	return mapValues(values, math.Sin)
}

// Cos returns the cosine of each value (radians)
func Cos(values []float64) []float64 {
	return mapValues(values, math.Cos)
}

// Tan returns the tangent of each value (radians)
func Tan(values []float64) []float64 {
	return mapValues(values, math.Tan)
}

// Pow raises each value to the matching exponent. Non-finite results are NaN.
func Pow(values, exponents []float64) []float64 {
	out := nanSlice(len(values))
	for i, x := range values {
		if i >= len(exponents) {
			break
		}
		out[i] = Finite(math.Pow(x, exponents[i]))
	}
	return out
}

// Finite maps infinities to NaN so that overflow is reported as an undefined point
func Finite(x float64) float64 {
	if math.IsInf(x, 0) {
		return math.NaN()
	}
	return x
}

func mapValues(values []float64, fn func(float64) float64) []float64 {
	out := make([]float64, len(values))
	for i, x := range values {
		if math.IsNaN(x) {
			out[i] = math.NaN()
			continue
		}
		out[i] = Finite(fn(x))
	}
	return out
}

func nanSlice(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = math.NaN()
	}
	return out
}
