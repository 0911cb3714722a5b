package testing

import (
	"time"

	"github.com/aristath/sentinel-composite/internal/domain"
)

// Date returns the UTC midnight of y-m-d
func Date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// DailyBars returns one flat bar per calendar day starting at start, one per close
func DailyBars(start time.Time, closes ...float64) []domain.OHLCVPoint {
	points := make([]domain.OHLCVPoint, len(closes))
	for i, c := range closes {
		points[i] = domain.OHLCVPoint{
			Timestamp: start.AddDate(0, 0, i),
			Open:      c,
			High:      c,
			Low:       c,
			Close:     c,
			Volume:    100,
		}
	}
	return points
}
