package calendar

import "time"

// DefaultMarkets returns the built-in market definitions
func DefaultMarkets() []Market {
	return []Market{
		{
			Code:    MarketTSE,
			Name:    "Tehran Stock Exchange",
			Weekend: []time.Weekday{time.Thursday, time.Friday},
		},
		{
			Code:    MarketNYSE,
			Name:    "New York Stock Exchange",
			Weekend: []time.Weekday{time.Saturday, time.Sunday},
			Holidays: HolidayRuleSet{
				FixedDateHolidays: []FixedDateHoliday{
					{Month: 1, Day: 1, ObserveOnWeekday: true},   // New Year's Day
					{Month: 6, Day: 19, ObserveOnWeekday: true},  // Juneteenth
					{Month: 7, Day: 4, ObserveOnWeekday: true},   // Independence Day
					{Month: 12, Day: 25, ObserveOnWeekday: true}, // Christmas
				},
				RuleBasedHolidays: []RuleBasedHoliday{
					{Month: 1, Weekday: time.Monday, N: 3},    // Martin Luther King Jr. Day
					{Month: 2, Weekday: time.Monday, N: 3},    // Presidents' Day
					{Month: 5, Weekday: time.Monday, N: -1},   // Memorial Day
					{Month: 9, Weekday: time.Monday, N: 1},    // Labor Day
					{Month: 11, Weekday: time.Thursday, N: 4}, // Thanksgiving
				},
				EasterOffsets: []int{-2}, // Good Friday
			},
		},
		{
			Code:    MarketGlobal,
			Name:    "Global",
			Weekend: []time.Weekday{time.Saturday, time.Sunday},
		},
	}
}
