package domain

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// DateLayout is the wire format for calendar dates
const DateLayout = "2006-01-02"

// NormalizeDate strips the clock and location from t, keeping its calendar date.
// All dates inside the engine are UTC midnights so that equality and map keys work.
func NormalizeDate(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// ParseDate parses a YYYY-MM-DD calendar date
func ParseDate(s string) (time.Time, error) {
	t, err := time.Parse(DateLayout, strings.TrimSpace(s))
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: %w", s, err)
	}
	return t, nil
}

// PriceType selects which OHLC field feeds an expression variable
type PriceType string

const (
	PriceClose PriceType = "close"
	PriceOpen  PriceType = "open"
	PriceHigh  PriceType = "high"
	PriceLow   PriceType = "low"
)

// ParsePriceType validates a price type name; empty means close.
func ParsePriceType(s string) (PriceType, error) {
	switch PriceType(strings.ToLower(strings.TrimSpace(s))) {
	case "", PriceClose:
		return PriceClose, nil
	case PriceOpen:
		return PriceOpen, nil
	case PriceHigh:
		return PriceHigh, nil
	case PriceLow:
		return PriceLow, nil
	}
	return "", fmt.Errorf("unknown price type %q", s)
}

// OHLCVPoint is one bar for one symbol
type OHLCVPoint struct {
	Timestamp time.Time `json:"timestamp" msgpack:"timestamp"`
	Open      float64   `json:"open" msgpack:"open"`
	High      float64   `json:"high" msgpack:"high"`
	Low       float64   `json:"low" msgpack:"low"`
	Close     float64   `json:"close" msgpack:"close"`
	Volume    int64     `json:"volume" msgpack:"volume"`
}

// Price returns the field selected by pt (close for unknown values)
func (p OHLCVPoint) Price(pt PriceType) float64 {
	switch pt {
	case PriceOpen:
		return p.Open
	case PriceHigh:
		return p.High
	case PriceLow:
		return p.Low
	default:
		return p.Close
	}
}

// AlignedPoint is one row of a multi-symbol aligned series.
// A symbol missing from Values had no usable data at Timestamp under the fill policy.
type AlignedPoint struct {
	Timestamp    time.Time             `json:"timestamp" msgpack:"timestamp"`
	Values       map[string]OHLCVPoint `json:"values" msgpack:"values"`
	IsTradingDay bool                  `json:"is_trading_day" msgpack:"is_trading_day"`
}

// GapType classifies a data gap
type GapType string

const (
	// GapMissingData is the only gap kind detected today
	GapMissingData GapType = "missing_data"
	// GapHoliday is reserved for distinguishing market closures
	GapHoliday GapType = "holiday"
)

// DataGap is a maximal run of expected trading days without data for one symbol
type DataGap struct {
	Symbol       string    `json:"symbol"`
	StartDate    time.Time `json:"start_date"`
	EndDate      time.Time `json:"end_date"`
	DurationDays int       `json:"duration_days"`
	GapType      GapType   `json:"gap_type"`
}

// SymbolDataSource supplies raw OHLCV history.
// An empty slice signals "no data"; errors are reserved for I/O failures.
type SymbolDataSource interface {
	GetOHLCVData(ctx context.Context, symbol string, start, end time.Time) ([]OHLCVPoint, error)
}
