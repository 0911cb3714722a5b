// Package composite manages user-defined composite charts: named expressions over
// market symbols that are validated, computed over a trailing window, cached and
// recomputed when market data changes.
package composite

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/aristath/sentinel-composite/internal/cache"
	"github.com/aristath/sentinel-composite/internal/domain"
	"github.com/aristath/sentinel-composite/internal/events"
	"github.com/aristath/sentinel-composite/internal/metrics"
	"github.com/aristath/sentinel-composite/internal/modules/expression"
	"github.com/aristath/sentinel-composite/pkg/formulas"
	"github.com/rs/zerolog"
)

const (
	moduleName  = "composite"
	idPrefix    = "composite_"
	cachePrefix = "chart:"
)

// Evaluator computes expressions over aligned market data
type Evaluator interface {
	Evaluate(
		ctx context.Context,
		expr string,
		variables map[string]domain.ExpressionVariable,
		start, end time.Time,
		market string,
	) *expression.ExpressionResult
	InvalidateExpression(ctx context.Context, expr string, variables map[string]domain.ExpressionVariable) error
}

// ChartStore persists chart definitions
type ChartStore interface {
	Save(ctx context.Context, chart *CompositeChart) error
	Delete(ctx context.Context, id string) error
	LoadAll(ctx context.Context) ([]*CompositeChart, error)
}

// EventEmitter publishes chart lifecycle events
type EventEmitter interface {
	Emit(module string, data events.EventData)
}

// Config holds the service limits
type Config struct {
	MaxCharts         int
	DefaultWindowDays int
	CacheTTL          time.Duration
	DefaultMarket     string
}

// DefaultConfig returns the standard limits
func DefaultConfig() Config {
	return Config{
		MaxCharts:         20,
		DefaultWindowDays: 365,
		CacheTTL:          5 * time.Minute,
		DefaultMarket:     "GLOBAL",
	}
}

// Service owns the set of composite charts
type Service struct {
	mu      sync.Mutex
	charts  map[string]*CompositeChart
	counter int

	engine  Evaluator
	store   ChartStore   // optional
	cache   cache.Store  // optional
	events  EventEmitter // optional
	cfg     Config
	metrics *metrics.Metrics
	now     func() time.Time
	log     zerolog.Logger
}

// NewService creates a new composite chart service. store, chartCache and emitter may be nil.
func NewService(
	engine Evaluator,
	store ChartStore,
	chartCache cache.Store,
	emitter EventEmitter,
	cfg Config,
	log zerolog.Logger,
) *Service {
	defaults := DefaultConfig()
	if cfg.MaxCharts <= 0 {
		cfg.MaxCharts = defaults.MaxCharts
	}
	if cfg.DefaultWindowDays <= 0 {
		cfg.DefaultWindowDays = defaults.DefaultWindowDays
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = defaults.CacheTTL
	}
	if cfg.DefaultMarket == "" {
		cfg.DefaultMarket = defaults.DefaultMarket
	}

	return &Service{
		charts: make(map[string]*CompositeChart),
		engine: engine,
		store:  store,
		cache:  chartCache,
		events: emitter,
		cfg:    cfg,
		now:    time.Now,
		log:    log.With().Str("service", "composite").Logger(),
	}
}

// SetMetrics attaches Prometheus instruments
func (s *Service) SetMetrics(m *metrics.Metrics) {
	s.metrics = m
}

// Subscribe reacts to market data and chart settings events on bus.
// The returned function removes both subscriptions.
func (s *Service) Subscribe(bus *events.Bus) func() {
	unsubData := bus.Subscribe(events.MarketDataUpdated, func(e events.Event) {
		refreshed := s.RefreshAll(context.Background())
		s.log.Info().Int("charts", refreshed).Msg("Recomputed charts after market data update")
	})
	unsubSettings := bus.Subscribe(events.CompositeChartSettingsChanged, s.handleSettingsChanged)
	return func() {
		unsubData()
		unsubSettings()
	}
}

func (s *Service) handleSettingsChanged(e events.Event) {
	data, ok := e.Data.(*events.ChartSettingsChangedData)
	if !ok {
		s.log.Warn().Str("event_id", e.ID).Msg("Unexpected settings event payload")
		return
	}

	update, err := updateFromSettings(data.Settings)
	if err != nil {
		s.log.Warn().Err(err).Str("chart_id", data.ChartID).Msg("Invalid chart settings")
		return
	}
	if _, err := s.UpdateChart(context.Background(), data.ChartID, update); err != nil {
		s.log.Warn().Err(err).Str("chart_id", data.ChartID).Msg("Failed to apply chart settings")
	}
}

func updateFromSettings(settings map[string]interface{}) (ChartUpdate, error) {
	var update ChartUpdate
	raw, err := json.Marshal(settings)
	if err != nil {
		return update, fmt.Errorf("failed to encode settings: %w", err)
	}
	if err := json.Unmarshal(raw, &update); err != nil {
		return update, fmt.Errorf("failed to decode settings: %w", err)
	}
	return update, nil
}

// CreateChart validates and stores a new chart, computes it once over the default
// window and returns its id
func (s *Service) CreateChart(ctx context.Context, req CreateChartRequest) (string, error) {
	chart, err := s.buildChart(req)
	if err != nil {
		return "", err
	}

	s.mu.Lock()
	if len(s.charts) >= s.cfg.MaxCharts {
		s.mu.Unlock()
		return "", &ValidationError{
			Err: ErrChartLimitReached,
			Msg: fmt.Sprintf("maximum number of charts (%d) reached", s.cfg.MaxCharts),
		}
	}
	s.counter++
	chart.ID = fmt.Sprintf("%s%d_%d", idPrefix, s.counter, chart.CreatedAt.Unix())
	if s.store != nil {
		if err := s.store.Save(ctx, chart); err != nil {
			s.mu.Unlock()
			return "", err
		}
	}
	s.charts[chart.ID] = chart
	count := len(s.charts)
	snapshot := chart.clone()
	s.mu.Unlock()

	s.metrics.SetCharts(count)
	s.log.Info().Str("chart_id", chart.ID).Str("expression", chart.Expression).Msg("Composite chart created")

	if snapshot.Enabled {
		s.computeDefault(ctx, snapshot)
	}

	s.emit(&events.ChartCreatedData{ChartID: snapshot.ID, Name: snapshot.Name, Expression: snapshot.Expression})
	return snapshot.ID, nil
}

func (s *Service) buildChart(req CreateChartRequest) (*CompositeChart, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, invalidField("chart name is required")
	}
	chartType, err := ParseChartType(string(req.ChartType))
	if err != nil {
		return nil, err
	}
	location, err := ParseDisplayLocation(string(req.DisplayLocation))
	if err != nil {
		return nil, err
	}
	style := DefaultChartStyle()
	if req.Style != nil {
		style = *req.Style
	}
	if err := style.Validate(); err != nil {
		return nil, err
	}
	variables, err := normalizeVariables(req.Variables)
	if err != nil {
		return nil, err
	}
	if err := validateExpression(req.Expression, variables); err != nil {
		return nil, err
	}

	market := strings.ToUpper(strings.TrimSpace(req.Market))
	if market == "" {
		market = s.cfg.DefaultMarket
	}

	return &CompositeChart{
		Name:            name,
		Expression:      strings.Join(strings.Fields(req.Expression), " "),
		Variables:       variables,
		ChartType:       chartType,
		DisplayLocation: location,
		Style:           style,
		Market:          market,
		Enabled:         req.Enabled == nil || *req.Enabled,
		AutoUpdate:      req.AutoUpdate == nil || *req.AutoUpdate,
		CreatedAt:       s.now().UTC(),
	}, nil
}

func validateExpression(expr string, variables map[string]domain.ExpressionVariable) error {
	result := expression.Validate(expr, domain.VariableNames(variables))
	if result.Valid {
		return nil
	}
	if len(result.MissingVariables) > 0 && expression.Parse(expr).Valid {
		return &ValidationError{
			Err:              ErrMissingVariables,
			Msg:              result.Error,
			MissingVariables: result.MissingVariables,
		}
	}
	return &ValidationError{Err: ErrInvalidExpression, Msg: result.Error}
}

// UpdateChart applies the non-nil fields of update. It returns false for an unknown id.
// An invalid field or expression rejects the whole update.
func (s *Service) UpdateChart(ctx context.Context, id string, update ChartUpdate) (bool, error) {
	s.mu.Lock()
	current, ok := s.charts[id]
	if !ok {
		s.mu.Unlock()
		return false, nil
	}

	updated, err := applyUpdate(current.clone(), update)
	if err != nil {
		s.mu.Unlock()
		return false, err
	}
	now := s.now().UTC()
	updated.LastUpdated = &now

	expressionChanged := update.Expression != nil || update.Variables != nil
	if expressionChanged {
		updated.CalculatedData = nil
		updated.Statistics = nil
	}

	if s.store != nil {
		if err := s.store.Save(ctx, updated); err != nil {
			s.mu.Unlock()
			return false, err
		}
	}
	s.charts[id] = updated
	snapshot := updated.clone()
	s.mu.Unlock()

	s.clearChartCache(ctx, id)
	if expressionChanged {
		s.invalidateExpression(ctx, current)
	}
	if snapshot.Enabled {
		s.computeDefault(ctx, snapshot)
	}

	s.log.Info().Str("chart_id", id).Strs("fields", update.Fields()).Msg("Composite chart updated")
	s.emit(&events.ChartUpdatedData{
		ChartID:           id,
		Name:              snapshot.Name,
		Fields:            update.Fields(),
		ExpressionChanged: expressionChanged,
	})
	return true, nil
}

func applyUpdate(chart *CompositeChart, u ChartUpdate) (*CompositeChart, error) {
	if u.Name != nil {
		name := strings.TrimSpace(*u.Name)
		if name == "" {
			return nil, invalidField("chart name is required")
		}
		chart.Name = name
	}
	if u.ChartType != nil {
		t, err := ParseChartType(string(*u.ChartType))
		if err != nil {
			return nil, err
		}
		chart.ChartType = t
	}
	if u.DisplayLocation != nil {
		l, err := ParseDisplayLocation(string(*u.DisplayLocation))
		if err != nil {
			return nil, err
		}
		chart.DisplayLocation = l
	}
	if u.Style != nil {
		if err := u.Style.Validate(); err != nil {
			return nil, err
		}
		chart.Style = *u.Style
	}
	if u.Market != nil {
		chart.Market = strings.ToUpper(strings.TrimSpace(*u.Market))
	}
	if u.Enabled != nil {
		chart.Enabled = *u.Enabled
	}
	if u.AutoUpdate != nil {
		chart.AutoUpdate = *u.AutoUpdate
	}

	if u.Variables != nil {
		variables, err := normalizeVariables(u.Variables)
		if err != nil {
			return nil, err
		}
		chart.Variables = variables
	}
	if u.Expression != nil {
		chart.Expression = strings.Join(strings.Fields(*u.Expression), " ")
	}
	if u.Expression != nil || u.Variables != nil {
		if err := validateExpression(chart.Expression, chart.Variables); err != nil {
			return nil, err
		}
	}
	return chart, nil
}

// DeleteChart removes a chart and its cached data. It returns false for an unknown id.
func (s *Service) DeleteChart(ctx context.Context, id string) bool {
	s.mu.Lock()
	chart, ok := s.charts[id]
	if !ok {
		s.mu.Unlock()
		return false
	}
	delete(s.charts, id)
	count := len(s.charts)
	if s.store != nil {
		if err := s.store.Delete(ctx, id); err != nil {
			s.log.Error().Err(err).Str("chart_id", id).Msg("Failed to delete stored chart")
		}
	}
	s.mu.Unlock()

	s.clearChartCache(ctx, id)
	s.invalidateExpression(ctx, chart)
	s.metrics.SetCharts(count)

	s.log.Info().Str("chart_id", id).Msg("Composite chart deleted")
	s.emit(&events.ChartDeletedData{ChartID: id, Name: chart.Name})
	return true
}

// GetChart returns a copy of the chart with id
func (s *Service) GetChart(id string) (*CompositeChart, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	chart, ok := s.charts[id]
	if !ok {
		return nil, false
	}
	return chart.clone(), true
}

// ListCharts returns a summary of every chart, oldest first
func (s *Service) ListCharts() []ChartSummary {
	s.mu.Lock()
	summaries := make([]ChartSummary, 0, len(s.charts))
	for _, c := range s.charts {
		summary := ChartSummary{
			ID:              c.ID,
			Name:            c.Name,
			Expression:      c.Expression,
			ChartType:       c.ChartType,
			DisplayLocation: c.DisplayLocation,
			Enabled:         c.Enabled,
			AutoUpdate:      c.AutoUpdate,
			Variables:       len(c.Variables),
			DataPoints:      len(c.CalculatedData),
			CreatedAt:       c.CreatedAt,
		}
		if c.LastUpdated != nil {
			t := *c.LastUpdated
			summary.LastUpdated = &t
		}
		summaries = append(summaries, summary)
	}
	s.mu.Unlock()

	sort.Slice(summaries, func(i, j int) bool {
		if !summaries[i].CreatedAt.Equal(summaries[j].CreatedAt) {
			return summaries[i].CreatedAt.Before(summaries[j].CreatedAt)
		}
		return chartSeq(summaries[i].ID) < chartSeq(summaries[j].ID)
	})
	return summaries
}

// ChartCount returns the number of charts
func (s *Service) ChartCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.charts)
}

// GetChartData returns the computed series of a chart between start and end.
// Nil bounds default to the trailing window ending today. It returns nil for an
// unknown or disabled chart and when no data could be evaluated for the window.
func (s *Service) GetChartData(ctx context.Context, id string, start, end *time.Time) *ChartPayload {
	s.mu.Lock()
	chart, ok := s.charts[id]
	if !ok || !chart.Enabled {
		s.mu.Unlock()
		return nil
	}
	snapshot := chart.clone()
	s.mu.Unlock()

	from, to := s.window(start, end)
	key := chartKey(id, from, to)

	if s.cache != nil {
		var cached ChartPayload
		found, err := s.cache.Get(ctx, key, &cached)
		if err != nil {
			s.log.Warn().Err(err).Str("chart_id", id).Msg("Chart cache read failed")
		}
		if found {
			s.metrics.CacheHit(metrics.CacheChart)
			restorePayloadUTC(&cached)
			return &cached
		}
		s.metrics.CacheMiss(metrics.CacheChart)
	}

	payload := s.compute(ctx, snapshot, from, to)
	if !payload.Success {
		s.log.Warn().Str("chart_id", id).Str("error", payload.Error).Msg("Chart data unavailable")
		return nil
	}
	if s.cache != nil {
		if err := s.cache.Set(ctx, key, payload, s.cfg.CacheTTL); err != nil {
			s.log.Warn().Err(err).Str("chart_id", id).Msg("Chart cache write failed")
		}
	}
	return payload
}

// RefreshAll clears and recomputes every enabled auto-updating chart over its
// default window. It returns the number of charts recomputed.
func (s *Service) RefreshAll(ctx context.Context) int {
	s.mu.Lock()
	var due []*CompositeChart
	for _, c := range s.charts {
		if c.Enabled && c.AutoUpdate {
			due = append(due, c.clone())
		}
	}
	s.mu.Unlock()

	sort.Slice(due, func(i, j int) bool { return chartSeq(due[i].ID) < chartSeq(due[j].ID) })
	for _, c := range due {
		if ctx.Err() != nil {
			break
		}
		s.clearChartCache(ctx, c.ID)
		s.invalidateExpression(ctx, c)
		s.computeDefault(ctx, c)
	}
	s.metrics.RefreshRun()
	return len(due)
}

// ExportChart returns the serializable definition of a chart
func (s *Service) ExportChart(id string) (*ChartRecord, error) {
	chart, ok := s.GetChart(id)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrChartNotFound, id)
	}
	record := chart.ToRecord()
	return &record, nil
}

// ImportChart creates a chart from a record. A fresh id is always assigned.
func (s *Service) ImportChart(ctx context.Context, record ChartRecord) (string, error) {
	style := record.Style
	enabled, autoUpdate := record.Enabled, record.AutoUpdate
	return s.CreateChart(ctx, CreateChartRequest{
		Name:            record.Name,
		Expression:      record.Expression,
		Variables:       record.Variables,
		ChartType:       record.ChartType,
		DisplayLocation: record.DisplayLocation,
		Style:           &style,
		Market:          record.Market,
		Enabled:         &enabled,
		AutoUpdate:      &autoUpdate,
	})
}

// LoadCharts restores stored charts and advances the id counter past them.
// Charts are computed lazily on first request.
func (s *Service) LoadCharts(ctx context.Context) (int, error) {
	if s.store == nil {
		return 0, nil
	}
	charts, err := s.store.LoadAll(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to load charts: %w", err)
	}

	s.mu.Lock()
	for _, c := range charts {
		s.charts[c.ID] = c
		if seq := chartSeq(c.ID); seq > s.counter {
			s.counter = seq
		}
	}
	count := len(s.charts)
	s.mu.Unlock()

	s.metrics.SetCharts(count)
	s.log.Info().Int("charts", len(charts)).Msg("Composite charts loaded")
	return len(charts), nil
}

// computeDefault evaluates chart over its default window and stores the result on the chart
func (s *Service) computeDefault(ctx context.Context, chart *CompositeChart) {
	from, to := s.window(nil, nil)
	payload := s.compute(ctx, chart, from, to)
	if !payload.Success {
		s.log.Warn().Str("chart_id", chart.ID).Str("error", payload.Error).Msg("Chart computation failed")
		return
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, chartKey(chart.ID, from, to), payload, s.cfg.CacheTTL); err != nil {
			s.log.Warn().Err(err).Str("chart_id", chart.ID).Msg("Chart cache write failed")
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if current, ok := s.charts[chart.ID]; ok {
		current.CalculatedData = payload.Data
		current.Statistics = payload.Statistics
	}
}

func (s *Service) compute(ctx context.Context, chart *CompositeChart, from, to time.Time) *ChartPayload {
	payload := &ChartPayload{
		ChartID:         chart.ID,
		Name:            chart.Name,
		Expression:      chart.Expression,
		ChartType:       chart.ChartType,
		DisplayLocation: chart.DisplayLocation,
		Style:           chart.Style,
		StartDate:       from.Format(domain.DateLayout),
		EndDate:         to.Format(domain.DateLayout),
		Data:            []DataPoint{},
		GeneratedAt:     s.now().UTC(),
	}

	result := s.engine.Evaluate(ctx, chart.Expression, chart.Variables, from, to, chart.Market)
	payload.Metadata = result.Metadata
	if !result.Success {
		payload.Error = result.Error
		return payload
	}

	for i, v := range result.Values {
		if math.IsNaN(v) {
			continue
		}
		payload.Data = append(payload.Data, DataPoint{Timestamp: result.Timestamps[i], Value: v})
	}
	payload.Statistics = formulas.Describe(result.Values)
	payload.Success = true
	return payload
}

func (s *Service) window(start, end *time.Time) (time.Time, time.Time) {
	to := domain.NormalizeDate(s.now())
	if end != nil {
		to = domain.NormalizeDate(*end)
	}
	from := to.AddDate(0, 0, -s.cfg.DefaultWindowDays)
	if start != nil {
		from = domain.NormalizeDate(*start)
	}
	return from, to
}

func (s *Service) clearChartCache(ctx context.Context, id string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.DeleteByPrefix(ctx, cachePrefix+id+":"); err != nil {
		s.log.Warn().Err(err).Str("chart_id", id).Msg("Failed to clear chart cache")
	}
}

func (s *Service) invalidateExpression(ctx context.Context, chart *CompositeChart) {
	if err := s.engine.InvalidateExpression(ctx, chart.Expression, chart.Variables); err != nil {
		s.log.Warn().Err(err).Str("chart_id", chart.ID).Msg("Failed to invalidate expression cache")
	}
}

func (s *Service) emit(data events.EventData) {
	if s.events != nil {
		s.events.Emit(moduleName, data)
	}
}

func chartKey(id string, from, to time.Time) string {
	return cachePrefix + id + ":" + from.Format(domain.DateLayout) + ":" + to.Format(domain.DateLayout)
}

// chartSeq extracts the counter from an id of the form composite_<counter>_<unix>.
// Unrecognized ids yield 0.
func chartSeq(id string) int {
	parts := strings.Split(strings.TrimPrefix(id, idPrefix), "_")
	if !strings.HasPrefix(id, idPrefix) || len(parts) != 2 {
		return 0
	}
	n, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0
	}
	return n
}

func restorePayloadUTC(p *ChartPayload) {
	for i := range p.Data {
		p.Data[i].Timestamp = p.Data[i].Timestamp.UTC()
	}
	p.GeneratedAt = p.GeneratedAt.UTC()
}
