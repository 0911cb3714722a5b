package expression

import (
	"math"
	"sort"
	"strings"

	"github.com/aristath/sentinel-composite/pkg/formulas"
)

// Function is one entry of the function table
type Function struct {
	Name  string
	Arity int
	// Windowed functions take a positive integer literal period as second argument
	Windowed bool
	// Series applies the function over full series. period is 0 for non-windowed functions.
	Series func(args [][]float64, period int) []float64
	// Scalar applies the function to single values; nil for windowed functions
	Scalar func(args []float64) (float64, error)
}

func windowed(name string, fn func([]float64, int) []float64) *Function {
	return &Function{
		Name:     name,
		Arity:    2,
		Windowed: true,
		Series:   func(args [][]float64, period int) []float64 { return fn(args[0], period) },
	}
}

func unary(name string, series func([]float64) []float64, scalar func(float64) (float64, error)) *Function {
	return &Function{
		Name:   name,
		Arity:  1,
		Series: func(args [][]float64, _ int) []float64 { return series(args[0]) },
		Scalar: func(args []float64) (float64, error) { return scalar(args[0]) },
	}
}

func finiteScalar(fn func(float64) float64) func(float64) (float64, error) {
	return func(x float64) (float64, error) {
		v := fn(x)
		if math.IsInf(v, 0) {
			return math.NaN(), ErrNonFinite
		}
		return v, nil
	}
}

var functionTable = map[string]*Function{
	"SMA":   windowed("SMA", formulas.SMA),
	"EMA":   windowed("EMA", formulas.EMA),
	"MAX":   windowed("MAX", formulas.RollingMax),
	"MIN":   windowed("MIN", formulas.RollingMin),
	"STDEV": windowed("STDEV", formulas.RollingStdDev),

	"LOG": unary("LOG", formulas.Log, func(x float64) (float64, error) {
		if x <= 0 {
			return math.NaN(), ErrDomain
		}
		return math.Log(x), nil
	}),
	"SQRT": unary("SQRT", formulas.Sqrt, func(x float64) (float64, error) {
		if x < 0 {
			return math.NaN(), ErrDomain
		}
		return math.Sqrt(x), nil
	}),
	"ABS": unary("ABS", formulas.Abs, finiteScalar(math.Abs)),
	"SIN": unary("SIN", formulas.Sin, finiteScalar(math.Sin)),
	"COS": unary("COS", formulas.Cos, finiteScalar(math.Cos)),
	"TAN": unary("TAN", formulas.Tan, finiteScalar(math.Tan)),

	"POW": {
		Name:   "POW",
		Arity:  2,
		Series: func(args [][]float64, _ int) []float64 { return formulas.Pow(args[0], args[1]) },
		Scalar: func(args []float64) (float64, error) {
			v := math.Pow(args[0], args[1])
			switch {
			case math.IsNaN(v):
				return math.NaN(), ErrDomain
			case math.IsInf(v, 0):
				return math.NaN(), ErrNonFinite
			}
			return v, nil
		},
	},
}

// LookupFunction finds a function by name. Only the upper case spelling is
// a recognized function.
func LookupFunction(name string) (*Function, bool) {
	fn, ok := functionTable[name]
	return fn, ok
}

// IsFunction reports whether name is in the function table
func IsFunction(name string) bool {
	_, ok := LookupFunction(name)
	return ok
}

// isFunctionName reports whether name matches a function in any case.
// Such names are never variables.
func isFunctionName(name string) bool {
	_, ok := functionTable[strings.ToUpper(name)]
	return ok
}

// FunctionNames returns the sorted names of all functions
func FunctionNames() []string {
	names := make([]string, 0, len(functionTable))
	for name := range functionTable {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
