// Package alignment fetches per-symbol OHLCV history and aligns several symbols
// onto one shared, trading-day timestamp axis.
package alignment

import (
	"fmt"
	"strings"
	"time"
)

// FillMethod selects how a symbol without a native bar at a timestamp gets a value
type FillMethod string

const (
	// FillForward uses the latest bar at or before the timestamp
	FillForward FillMethod = "forward_fill"
	// FillBackward uses the earliest bar at or after the timestamp
	FillBackward FillMethod = "backward_fill"
	// FillInterpolate blends the nearest bars on both sides by elapsed time
	FillInterpolate FillMethod = "interpolate"
)

// ParseFillMethod validates a fill method name; empty means forward fill
func ParseFillMethod(s string) (FillMethod, error) {
	switch FillMethod(strings.ToLower(strings.TrimSpace(s))) {
	case "", FillForward:
		return FillForward, nil
	case FillBackward:
		return FillBackward, nil
	case FillInterpolate:
		return FillInterpolate, nil
	}
	return "", fmt.Errorf("unknown fill method %q", s)
}

// Quality labels for coverage
const (
	QualityGood = "Good"
	QualityFair = "Fair"
	QualityPoor = "Poor"
)

// SymbolQuality is the coverage summary of one symbol
type SymbolQuality struct {
	Symbol       string  `json:"symbol"`
	Coverage     float64 `json:"coverage_pct"`
	Quality      string  `json:"quality"`
	DataPoints   int     `json:"data_points"`
	ExpectedDays int     `json:"expected_days"`
	Gaps         int     `json:"gaps"`
	MissingDays  int     `json:"missing_days"`
}

// QualityReport aggregates coverage across symbols
type QualityReport struct {
	Market          string          `json:"market"`
	StartDate       time.Time       `json:"start_date"`
	EndDate         time.Time       `json:"end_date"`
	Symbols         []SymbolQuality `json:"symbols"`
	AverageCoverage float64         `json:"average_coverage_pct"`
	TotalGaps       int             `json:"total_gaps"`
}

// qualityLabel maps a coverage percentage to a label
func qualityLabel(coverage float64) string {
	switch {
	case coverage > 95:
		return QualityGood
	case coverage >= 80:
		return QualityFair
	default:
		return QualityPoor
	}
}
