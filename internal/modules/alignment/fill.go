package alignment

import (
	"math"
	"sort"
	"time"

	"github.com/aristath/sentinel-composite/internal/domain"
)

// series is one symbol's bars, sorted by date with one bar per date
type series []domain.OHLCVPoint

// newSeries normalizes timestamps, sorts by date and keeps the last bar of duplicate dates
func newSeries(points []domain.OHLCVPoint) series {
	s := make(series, 0, len(points))
	for _, p := range points {
		p.Timestamp = domain.NormalizeDate(p.Timestamp)
		s = append(s, p)
	}
	sort.SliceStable(s, func(i, j int) bool { return s[i].Timestamp.Before(s[j].Timestamp) })

	out := s[:0]
	for _, p := range s {
		if n := len(out); n > 0 && out[n-1].Timestamp.Equal(p.Timestamp) {
			out[n-1] = p
			continue
		}
		out = append(out, p)
	}
	return out
}

// search returns the index of the first bar at or after t
func (s series) search(t time.Time) int {
	return sort.Search(len(s), func(i int) bool { return !s[i].Timestamp.Before(t) })
}

// resolve returns the value of the series at t under method
func (s series) resolve(t time.Time, method FillMethod) (domain.OHLCVPoint, bool) {
	if len(s) == 0 {
		return domain.OHLCVPoint{}, false
	}

	i := s.search(t)
	exact := i < len(s) && s[i].Timestamp.Equal(t)

	switch method {
	case FillForward:
		if exact {
			return s[i], true
		}
		if i == 0 {
			return domain.OHLCVPoint{}, false
		}
		return s[i-1], true

	case FillBackward:
		if i == len(s) {
			return domain.OHLCVPoint{}, false
		}
		return s[i], true

	case FillInterpolate:
		if exact {
			return s[i], true
		}
		if i == 0 || i == len(s) {
			return domain.OHLCVPoint{}, false
		}
		return interpolate(s[i-1], s[i], t), true
	}

	return domain.OHLCVPoint{}, false
}

// interpolate blends before and after linearly by elapsed time at t
func interpolate(before, after domain.OHLCVPoint, t time.Time) domain.OHLCVPoint {
	span := after.Timestamp.Sub(before.Timestamp).Seconds()
	w := t.Sub(before.Timestamp).Seconds() / span

	lerp := func(a, b float64) float64 { return a + (b-a)*w }

	return domain.OHLCVPoint{
		Timestamp: t,
		Open:      lerp(before.Open, after.Open),
		High:      lerp(before.High, after.High),
		Low:       lerp(before.Low, after.Low),
		Close:     lerp(before.Close, after.Close),
		Volume:    int64(math.Round(lerp(float64(before.Volume), float64(after.Volume)))),
	}
}

// dates returns the set of dates the series has bars for
func (s series) dates() map[time.Time]bool {
	set := make(map[time.Time]bool, len(s))
	for _, p := range s {
		set[p.Timestamp] = true
	}
	return set
}
