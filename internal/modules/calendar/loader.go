package calendar

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/aristath/sentinel-composite/internal/domain"
	"gopkg.in/yaml.v3"
)

// calendarFile is the YAML layout of a market definitions file:
//
//	markets:
//	  - code: TSE
//	    name: Tehran Stock Exchange
//	    weekend: [thursday, friday]
//	    holidays:
//	      dates: ["2024-03-20"]
//	      fixed: [{month: 3, day: 21}]
//	      rules: [{month: 1, weekday: monday, n: 3}]
//	      easter_offsets: [-2]
type calendarFile struct {
	Markets []marketFile `yaml:"markets"`
}

type marketFile struct {
	Code     string   `yaml:"code"`
	Name     string   `yaml:"name"`
	Weekend  []string `yaml:"weekend"`
	Holidays struct {
		Dates []string `yaml:"dates"`
		Fixed []struct {
			Month   int  `yaml:"month"`
			Day     int  `yaml:"day"`
			Observe bool `yaml:"observe"`
		} `yaml:"fixed"`
		Rules []struct {
			Month   int    `yaml:"month"`
			Weekday string `yaml:"weekday"`
			N       int    `yaml:"n"`
		} `yaml:"rules"`
		EasterOffsets []int `yaml:"easter_offsets"`
	} `yaml:"holidays"`
}

// LoadMarkets reads market definitions from a YAML file
func LoadMarkets(path string) ([]Market, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read calendar file: %w", err)
	}
	return ParseMarkets(data)
}

// ParseMarkets decodes market definitions from YAML
func ParseMarkets(data []byte) ([]Market, error) {
	var file calendarFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse calendar file: %w", err)
	}

	markets := make([]Market, 0, len(file.Markets))
	for i, mf := range file.Markets {
		if strings.TrimSpace(mf.Code) == "" {
			return nil, fmt.Errorf("market %d: code is required", i)
		}

		m := Market{Code: strings.ToUpper(mf.Code), Name: mf.Name}

		for _, w := range mf.Weekend {
			day, err := parseWeekday(w)
			if err != nil {
				return nil, fmt.Errorf("market %s: %w", m.Code, err)
			}
			m.Weekend = append(m.Weekend, day)
		}

		for _, s := range mf.Holidays.Dates {
			d, err := domain.ParseDate(s)
			if err != nil {
				return nil, fmt.Errorf("market %s: holiday %q: %w", m.Code, s, err)
			}
			m.Holidays.Dates = append(m.Holidays.Dates, d)
		}

		for _, f := range mf.Holidays.Fixed {
			if f.Month < 1 || f.Month > 12 || f.Day < 1 || f.Day > 31 {
				return nil, fmt.Errorf("market %s: invalid fixed holiday %d/%d", m.Code, f.Month, f.Day)
			}
			m.Holidays.FixedDateHolidays = append(m.Holidays.FixedDateHolidays,
				FixedDateHoliday{Month: f.Month, Day: f.Day, ObserveOnWeekday: f.Observe})
		}

		for _, r := range mf.Holidays.Rules {
			day, err := parseWeekday(r.Weekday)
			if err != nil {
				return nil, fmt.Errorf("market %s: %w", m.Code, err)
			}
			if r.Month < 1 || r.Month > 12 || r.N == 0 || r.N < -1 || r.N > 5 {
				return nil, fmt.Errorf("market %s: invalid holiday rule month=%d n=%d", m.Code, r.Month, r.N)
			}
			m.Holidays.RuleBasedHolidays = append(m.Holidays.RuleBasedHolidays,
				RuleBasedHoliday{Month: r.Month, Weekday: day, N: r.N})
		}

		m.Holidays.EasterOffsets = append(m.Holidays.EasterOffsets, mf.Holidays.EasterOffsets...)
		markets = append(markets, m)
	}

	return markets, nil
}

func parseWeekday(s string) (time.Weekday, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	for d := time.Sunday; d <= time.Saturday; d++ {
		full := strings.ToLower(d.String())
		if name == full || name == full[:3] {
			return d, nil
		}
	}
	return 0, fmt.Errorf("unknown weekday %q", s)
}
