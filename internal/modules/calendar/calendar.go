package calendar

import (
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/aristath/sentinel-composite/internal/domain"
	"github.com/rs/zerolog"
)

// Calendar answers trading-day questions for a set of markets.
// Unknown and empty market codes fall back to GLOBAL.
type Calendar struct {
	markets map[string]*Market

	mu           sync.Mutex
	holidayCache map[string]map[int]map[time.Time]bool // market -> year -> holidays

	log zerolog.Logger
}

// New creates a calendar with the built-in markets, overridden or extended by extra
func New(log zerolog.Logger, extra ...Market) *Calendar {
	c := &Calendar{
		markets:      make(map[string]*Market),
		holidayCache: make(map[string]map[int]map[time.Time]bool),
		log:          log.With().Str("service", "calendar").Logger(),
	}
	for _, m := range DefaultMarkets() {
		c.register(m)
	}
	for _, m := range extra {
		c.register(m)
	}
	return c
}

func (c *Calendar) register(m Market) {
	m.Code = strings.ToUpper(strings.TrimSpace(m.Code))
	if m.Code == "" {
		return
	}
	c.markets[m.Code] = &m
	c.log.Debug().Str("market", m.Code).Int("weekend_days", len(m.Weekend)).Msg("Market registered")
}

// Markets returns the registered market codes
func (c *Calendar) Markets() []string {
	codes := make([]string, 0, len(c.markets))
	for code := range c.markets {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	return codes
}

// HasMarket reports whether code names a registered market
func (c *Calendar) HasMarket(code string) bool {
	_, ok := c.markets[strings.ToUpper(strings.TrimSpace(code))]
	return ok
}

func (c *Calendar) market(code string) *Market {
	if m, ok := c.markets[strings.ToUpper(strings.TrimSpace(code))]; ok {
		return m
	}
	return c.markets[MarketGlobal]
}

// IsTradingDay reports whether date is neither a weekend day nor a holiday of market
func (c *Calendar) IsTradingDay(date time.Time, market string) bool {
	m := c.market(market)
	day := normalize(date)
	if m.isWeekend(day.Weekday()) {
		return false
	}
	return !c.isHoliday(m, day)
}

// GetTradingDaysBetween returns the trading days in [start, end], ascending
func (c *Calendar) GetTradingDaysBetween(start, end time.Time, market string) []time.Time {
	start, end = normalize(start), normalize(end)
	if end.Before(start) {
		return []time.Time{}
	}

	days := make([]time.Time, 0, int(end.Sub(start).Hours()/24)+1)
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		if c.IsTradingDay(d, market) {
			days = append(days, d)
		}
	}
	return days
}

// GetNextTradingDay returns the first trading day strictly after date.
// A market that never trades yields the zero time.
func (c *Calendar) GetNextTradingDay(date time.Time, market string) time.Time {
	m := c.market(market)
	if len(m.Weekend) >= 7 {
		return time.Time{}
	}
	d := normalize(date).AddDate(0, 0, 1)
	// Bounded so a holiday table covering every weekday cannot loop forever
	for i := 0; i < 3660; i++ {
		if c.IsTradingDay(d, m.Code) {
			return d
		}
		d = d.AddDate(0, 0, 1)
	}
	return time.Time{}
}

func (c *Calendar) isHoliday(m *Market, day time.Time) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	byYear, ok := c.holidayCache[m.Code]
	if !ok {
		byYear = make(map[int]map[time.Time]bool)
		c.holidayCache[m.Code] = byYear
	}
	holidays, ok := byYear[day.Year()]
	if !ok {
		holidays = holidaysForYear(m.Holidays, day.Year())
		byYear[day.Year()] = holidays
	}
	return holidays[day]
}

func normalize(t time.Time) time.Time {
	return domain.NormalizeDate(t)
}
