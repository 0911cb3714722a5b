package alignment

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/aristath/sentinel-composite/internal/cache"
	"github.com/aristath/sentinel-composite/internal/domain"
	"github.com/aristath/sentinel-composite/internal/metrics"
	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/stat"
)

const cachePrefix = "align:"

// TradingCalendar is the subset of the calendar the alignment needs
type TradingCalendar interface {
	IsTradingDay(date time.Time, market string) bool
	GetTradingDaysBetween(start, end time.Time, market string) []time.Time
}

// Service aligns symbol histories onto shared trading-day timestamps
type Service struct {
	source   domain.SymbolDataSource
	calendar TradingCalendar
	cache    cache.Store
	cacheTTL time.Duration // 0 keeps entries until ClearCache
	metrics  *metrics.Metrics
	log      zerolog.Logger
}

// NewService creates a new alignment service
func NewService(
	source domain.SymbolDataSource,
	calendar TradingCalendar,
	store cache.Store,
	cacheTTL time.Duration,
	log zerolog.Logger,
) *Service {
	return &Service{
		source:   source,
		calendar: calendar,
		cache:    store,
		cacheTTL: cacheTTL,
		log:      log.With().Str("service", "alignment").Logger(),
	}
}

// SetMetrics attaches Prometheus instruments
func (s *Service) SetMetrics(m *metrics.Metrics) {
	s.metrics = m
}

// alignKey identifies one alignment request
type alignKey struct {
	Symbols []string
	Start   time.Time
	End     time.Time
	Fill    FillMethod
	Market  string
}

func (k alignKey) String() string {
	raw := fmt.Sprintf("%s|%s|%s|%s|%s",
		strings.Join(k.Symbols, ","),
		k.Start.Format(domain.DateLayout),
		k.End.Format(domain.DateLayout),
		k.Fill,
		k.Market,
	)
	sum := sha256.Sum256([]byte(raw))
	return cachePrefix + hex.EncodeToString(sum[:16])
}

// AlignMultipleSymbols returns one row per trading day on which any symbol has a bar,
// each row holding the fill-resolved bar of every symbol that could be resolved.
// Symbols whose fetch fails are logged and dropped. Errors are returned only for
// invalid arguments and caller cancellation.
func (s *Service) AlignMultipleSymbols(
	ctx context.Context,
	symbols []string,
	start, end time.Time,
	fillMethod FillMethod,
	market string,
) (points []domain.AlignedPoint, err error) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error().Interface("panic", r).Strs("symbols", symbols).Msg("Alignment panicked")
			points, err = nil, fmt.Errorf("alignment failed: %v", r)
		}
	}()

	fill, err := ParseFillMethod(string(fillMethod))
	if err != nil {
		return nil, err
	}
	start, end = domain.NormalizeDate(start), domain.NormalizeDate(end)
	if end.Before(start) {
		return nil, fmt.Errorf("end date %s is before start date %s",
			end.Format(domain.DateLayout), start.Format(domain.DateLayout))
	}

	symbols = distinctSorted(symbols)
	if len(symbols) == 0 {
		return []domain.AlignedPoint{}, nil
	}

	key := alignKey{
		Symbols: symbols,
		Start:   start,
		End:     end,
		Fill:    fill,
		Market:  strings.ToUpper(strings.TrimSpace(market)),
	}.String()

	if s.cache != nil {
		var cached []domain.AlignedPoint
		found, cacheErr := s.cache.Get(ctx, key, &cached)
		if cacheErr != nil {
			s.log.Warn().Err(cacheErr).Msg("Alignment cache read failed")
		}
		if found {
			s.metrics.CacheHit(metrics.CacheAlignment)
			return restoreUTC(cached), nil
		}
		s.metrics.CacheMiss(metrics.CacheAlignment)
	}

	data, err := s.fetchAll(ctx, symbols, start, end)
	if err != nil {
		return nil, err
	}

	points = s.align(data, symbols, fill, market)
	s.metrics.ObserveAlignment(len(points))

	s.log.Debug().
		Strs("symbols", symbols).
		Str("fill_method", string(fill)).
		Str("market", market).
		Int("points", len(points)).
		Msg("Aligned symbols")

	if s.cache != nil {
		if cacheErr := s.cache.Set(ctx, key, points, s.cacheTTL); cacheErr != nil {
			s.log.Warn().Err(cacheErr).Msg("Alignment cache write failed")
		}
	}

	return points, nil
}

func (s *Service) align(data map[string]series, symbols []string, fill FillMethod, market string) []domain.AlignedPoint {
	candidates := make(map[time.Time]bool)
	for _, sr := range data {
		for _, p := range sr {
			if s.calendar.IsTradingDay(p.Timestamp, market) {
				candidates[p.Timestamp] = true
			}
		}
	}

	timestamps := make([]time.Time, 0, len(candidates))
	for t := range candidates {
		timestamps = append(timestamps, t)
	}
	sort.Slice(timestamps, func(i, j int) bool { return timestamps[i].Before(timestamps[j]) })

	points := make([]domain.AlignedPoint, 0, len(timestamps))
	for _, t := range timestamps {
		values := make(map[string]domain.OHLCVPoint, len(symbols))
		for _, symbol := range symbols {
			sr, ok := data[symbol]
			if !ok {
				continue
			}
			if v, ok := sr.resolve(t, fill); ok {
				values[symbol] = v
			}
		}
		if len(values) == 0 {
			continue
		}
		points = append(points, domain.AlignedPoint{
			Timestamp:    t,
			Values:       values,
			IsTradingDay: true,
		})
	}
	return points
}

// fetchAll loads every symbol's history. Failed symbols are absent from the result.
func (s *Service) fetchAll(ctx context.Context, symbols []string, start, end time.Time) (map[string]series, error) {
	data := make(map[string]series, len(symbols))
	for _, symbol := range symbols {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		raw, err := s.source.GetOHLCVData(ctx, symbol, start, end)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			s.metrics.SymbolFetchFailed()
			s.log.Warn().Err(err).Str("symbol", symbol).Msg("Failed to fetch symbol data, dropping symbol")
			continue
		}

		inRange := make([]domain.OHLCVPoint, 0, len(raw))
		for _, p := range raw {
			d := domain.NormalizeDate(p.Timestamp)
			if d.Before(start) || d.After(end) {
				continue
			}
			inRange = append(inRange, p)
		}
		data[symbol] = newSeries(inRange)
	}
	return data, nil
}

// DetectDataGaps reports, per symbol, the maximal runs of expected trading days without data.
// A symbol with no data in range (or whose fetch fails) gets one gap over the whole range.
func (s *Service) DetectDataGaps(ctx context.Context, symbols []string, start, end time.Time, market string) []domain.DataGap {
	start, end = domain.NormalizeDate(start), domain.NormalizeDate(end)
	if end.Before(start) {
		return []domain.DataGap{}
	}

	symbols = distinctSorted(symbols)
	data, err := s.fetchAll(ctx, symbols, start, end)
	if err != nil {
		s.log.Warn().Err(err).Msg("Gap detection aborted")
		return []domain.DataGap{}
	}

	expected := s.calendar.GetTradingDaysBetween(start, end, market)
	gaps := make([]domain.DataGap, 0)
	for _, symbol := range symbols {
		gaps = append(gaps, symbolGaps(symbol, data[symbol], expected, start, end)...)
	}
	return gaps
}

func symbolGaps(symbol string, sr series, expected []time.Time, start, end time.Time) []domain.DataGap {
	if len(sr) == 0 {
		return []domain.DataGap{{
			Symbol:       symbol,
			StartDate:    start,
			EndDate:      end,
			DurationDays: daysBetween(start, end) + 1,
			GapType:      domain.GapMissingData,
		}}
	}

	have := sr.dates()
	var missing []time.Time
	for _, d := range expected {
		if !have[d] {
			missing = append(missing, d)
		}
	}

	gaps := make([]domain.DataGap, 0)
	for i := 0; i < len(missing); {
		j := i
		for j+1 < len(missing) && daysBetween(missing[j], missing[j+1]) == 1 {
			j++
		}
		gaps = append(gaps, domain.DataGap{
			Symbol:       symbol,
			StartDate:    missing[i],
			EndDate:      missing[j],
			DurationDays: j - i + 1,
			GapType:      domain.GapMissingData,
		})
		i = j + 1
	}
	return gaps
}

// GetDataQualityReport computes per-symbol coverage of expected trading days
func (s *Service) GetDataQualityReport(ctx context.Context, symbols []string, start, end time.Time, market string) QualityReport {
	start, end = domain.NormalizeDate(start), domain.NormalizeDate(end)
	report := QualityReport{
		Market:    strings.ToUpper(strings.TrimSpace(market)),
		StartDate: start,
		EndDate:   end,
		Symbols:   []SymbolQuality{},
	}
	if end.Before(start) {
		return report
	}

	symbols = distinctSorted(symbols)
	data, err := s.fetchAll(ctx, symbols, start, end)
	if err != nil {
		s.log.Warn().Err(err).Msg("Quality report aborted")
		return report
	}

	expected := s.calendar.GetTradingDaysBetween(start, end, market)
	coverages := make([]float64, 0, len(symbols))

	for _, symbol := range symbols {
		sr := data[symbol]
		gaps := symbolGaps(symbol, sr, expected, start, end)

		q := SymbolQuality{
			Symbol:       symbol,
			DataPoints:   len(sr),
			ExpectedDays: len(expected),
			Gaps:         len(gaps),
		}
		for _, g := range gaps {
			q.MissingDays += g.DurationDays
		}
		if len(expected) > 0 {
			q.Coverage = float64(len(sr)) / float64(len(expected)) * 100
		}
		q.Quality = qualityLabel(q.Coverage)

		report.Symbols = append(report.Symbols, q)
		report.TotalGaps += q.Gaps
		coverages = append(coverages, q.Coverage)
	}

	if len(coverages) > 0 {
		report.AverageCoverage = stat.Mean(coverages, nil)
	}
	return report
}

// ClearCache drops every cached alignment
func (s *Service) ClearCache(ctx context.Context) error {
	if s.cache == nil {
		return nil
	}
	if err := s.cache.DeleteByPrefix(ctx, cachePrefix); err != nil {
		return fmt.Errorf("failed to clear alignment cache: %w", err)
	}
	s.log.Debug().Msg("Alignment cache cleared")
	return nil
}

// restoreUTC puts decoded timestamps back into UTC so cached rows compare equal to fresh ones
func restoreUTC(points []domain.AlignedPoint) []domain.AlignedPoint {
	for i := range points {
		points[i].Timestamp = points[i].Timestamp.UTC()
		for sym, v := range points[i].Values {
			v.Timestamp = v.Timestamp.UTC()
			points[i].Values[sym] = v
		}
	}
	return points
}

func distinctSorted(symbols []string) []string {
	seen := make(map[string]bool, len(symbols))
	out := make([]string, 0, len(symbols))
	for _, sym := range symbols {
		sym = strings.TrimSpace(sym)
		if sym == "" || seen[sym] {
			continue
		}
		seen[sym] = true
		out = append(out, sym)
	}
	sort.Strings(out)
	return out
}

func daysBetween(a, b time.Time) int {
	return int(b.Sub(a).Hours() / 24)
}
