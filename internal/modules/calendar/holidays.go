package calendar

import "time"

// holidaysForYear expands the rule set into concrete dates for one year
func holidaysForYear(rules HolidayRuleSet, year int) map[time.Time]bool {
	days := make(map[time.Time]bool)

	for _, d := range rules.Dates {
		if d.Year() == year {
			days[normalize(d)] = true
		}
	}

	for _, h := range rules.FixedDateHolidays {
		date := time.Date(year, time.Month(h.Month), h.Day, 0, 0, 0, 0, time.UTC)
		if h.ObserveOnWeekday {
			date = observeOnWeekday(date)
		}
		days[date] = true
	}

	for _, h := range rules.RuleBasedHolidays {
		if h.N == -1 {
			days[findLastWeekday(year, h.Month, h.Weekday)] = true
		} else {
			days[findNthWeekday(year, h.Month, h.Weekday, h.N)] = true
		}
	}

	if len(rules.EasterOffsets) > 0 {
		easter := calculateEaster(year)
		for _, offset := range rules.EasterOffsets {
			days[easter.AddDate(0, 0, offset)] = true
		}
	}

	return days
}

// calculateEaster returns Gregorian Easter Sunday (anonymous computus)
func calculateEaster(year int) time.Time {
	a := year % 19
	b := year / 100
	c := year % 100
	d := b / 4
	e := b % 4
	f := (b + 8) / 25
	g := (b - f + 1) / 3
	h := (19*a + b - d - g + 15) % 30
	i := c / 4
	k := c % 4
	l := (32 + 2*e + 2*i - h - k) % 7
	m := (a + 11*h + 22*l) / 451

	month := (h + l - 7*m + 114) / 31
	day := ((h + l - 7*m + 114) % 31) + 1

	return time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
}

// findNthWeekday finds the nth occurrence of a weekday in a given month/year
func findNthWeekday(year, month int, weekday time.Weekday, n int) time.Time {
	date := time.Date(year, time.Month(month), 1, 0, 0, 0, 0, time.UTC)
	daysToAdd := int(weekday - date.Weekday())
	if daysToAdd < 0 {
		daysToAdd += 7
	}
	return date.AddDate(0, 0, daysToAdd+(n-1)*7)
}

// findLastWeekday finds the last occurrence of a weekday in a given month/year
func findLastWeekday(year, month int, weekday time.Weekday) time.Time {
	date := time.Date(year, time.Month(month+1), 0, 0, 0, 0, 0, time.UTC)
	daysToSubtract := int(date.Weekday() - weekday)
	if daysToSubtract < 0 {
		daysToSubtract += 7
	}
	return date.AddDate(0, 0, -daysToSubtract)
}

// observeOnWeekday moves Saturday to Friday and Sunday to Monday
func observeOnWeekday(date time.Time) time.Time {
	switch date.Weekday() {
	case time.Saturday:
		return date.AddDate(0, 0, -1)
	case time.Sunday:
		return date.AddDate(0, 0, 1)
	default:
		return date
	}
}
