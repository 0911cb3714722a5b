package calendar

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleCalendar = `
markets:
  - code: tse
    name: Tehran Stock Exchange
    weekend: [thursday, fri]
    holidays:
      dates: ["2024-03-20", "2024-04-01"]
      fixed:
        - {month: 2, day: 11}
  - code: LSE
    weekend: [saturday, sunday]
    holidays:
      rules:
        - {month: 5, weekday: monday, n: 1}
      easter_offsets: [-2, 1]
`

func TestParseMarkets(t *testing.T) {
	markets, err := ParseMarkets([]byte(sampleCalendar))
	require.NoError(t, err)
	require.Len(t, markets, 2)

	tse := markets[0]
	assert.Equal(t, "TSE", tse.Code)
	assert.Equal(t, []time.Weekday{time.Thursday, time.Friday}, tse.Weekend)
	assert.Len(t, tse.Holidays.Dates, 2)
	assert.Equal(t, []FixedDateHoliday{{Month: 2, Day: 11}}, tse.Holidays.FixedDateHolidays)

	lse := markets[1]
	assert.Equal(t, []RuleBasedHoliday{{Month: 5, Weekday: time.Monday, N: 1}}, lse.Holidays.RuleBasedHolidays)
	assert.Equal(t, []int{-2, 1}, lse.Holidays.EasterOffsets)

	cal := newTestCalendar(markets...)
	assert.False(t, cal.IsTradingDay(date(2024, 3, 20), MarketTSE))
	assert.False(t, cal.IsTradingDay(date(2024, 2, 11), MarketTSE))
	assert.False(t, cal.IsTradingDay(date(2024, 4, 1), "LSE"), "Easter Monday")
	assert.False(t, cal.IsTradingDay(date(2024, 5, 6), "LSE"), "Early May bank holiday")
	assert.True(t, cal.IsTradingDay(date(2024, 5, 7), "LSE"))
}

func TestParseMarkets_Errors(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"missing code", "markets:\n  - name: x\n"},
		{"bad weekday", "markets:\n  - code: X\n    weekend: [caturday]\n"},
		{"bad date", "markets:\n  - code: X\n    holidays:\n      dates: [\"2024-13-01\"]\n"},
		{"bad fixed", "markets:\n  - code: X\n    holidays:\n      fixed: [{month: 13, day: 1}]\n"},
		{"bad rule", "markets:\n  - code: X\n    holidays:\n      rules: [{month: 1, weekday: monday, n: 0}]\n"},
		{"not yaml", "markets: [unclosed"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseMarkets([]byte(tt.yaml))
			assert.Error(t, err)
		})
	}
}

func TestLoadMarkets(t *testing.T) {
	path := filepath.Join(t.TempDir(), "calendar.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleCalendar), 0644))

	markets, err := LoadMarkets(path)
	require.NoError(t, err)
	assert.Len(t, markets, 2)

	_, err = LoadMarkets(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
