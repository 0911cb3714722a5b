// Package calendar decides which calendar dates are trading days per market.
package calendar

import "time"

// Built-in market codes
const (
	MarketTSE    = "TSE"
	MarketNYSE   = "NYSE"
	MarketGlobal = "GLOBAL"
)

// Market describes the weekend and holiday rules of one market
type Market struct {
	Code     string
	Name     string
	Weekend  []time.Weekday
	Holidays HolidayRuleSet
}

// HolidayRuleSet defines the holidays of a market. All rules are static.
type HolidayRuleSet struct {
	// Specific dates (one-off closures)
	Dates []time.Time
	// Same month/day every year
	FixedDateHolidays []FixedDateHoliday
	// Nth weekday of a month
	RuleBasedHolidays []RuleBasedHoliday
	// Days relative to Gregorian Easter Sunday
	EasterOffsets []int
}

// FixedDateHoliday represents a holiday on a fixed date
type FixedDateHoliday struct {
	Month int // 1-12
	Day   int // 1-31
	// If true, Saturday holidays move to Friday and Sunday holidays to Monday
	ObserveOnWeekday bool
}

// RuleBasedHoliday represents a holiday calculated by rule
type RuleBasedHoliday struct {
	Month   int
	Weekday time.Weekday
	N       int // Nth occurrence (1 = first, -1 = last)
}

func (m *Market) isWeekend(day time.Weekday) bool {
	for _, w := range m.Weekend {
		if w == day {
			return true
		}
	}
	return false
}
