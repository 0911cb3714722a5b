package di

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"

	"github.com/aristath/sentinel-composite/internal/cache"
	"github.com/aristath/sentinel-composite/internal/config"
	"github.com/aristath/sentinel-composite/internal/events"
	"github.com/aristath/sentinel-composite/internal/metrics"
	"github.com/aristath/sentinel-composite/internal/modules/alignment"
	"github.com/aristath/sentinel-composite/internal/modules/calendar"
	"github.com/aristath/sentinel-composite/internal/modules/composite"
	"github.com/aristath/sentinel-composite/internal/modules/expression"
	"github.com/aristath/sentinel-composite/internal/modules/history"
)

// InitializeCaches creates the alignment, result and chart caches on the configured backend
func InitializeCaches(container *Container, cfg *config.Config, log zerolog.Logger) error {
	switch cfg.Cache.Backend {
	case config.CacheBackendRedis:
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		client, err := cache.NewRedisClient(ctx, cfg.Cache.RedisURL)
		if err != nil {
			return err
		}
		container.Redis = client
		container.AlignmentCache = cache.NewRedisStore(client, "composite:align")
		container.ResultCache = cache.NewRedisStore(client, "composite:expr")
		container.ChartCache = cache.NewRedisStore(client, "composite:chart")
	default:
		container.AlignmentCache = cache.NewMemoryStore(cfg.Cache.Capacity)
		container.ResultCache = cache.NewMemoryStore(cfg.Cache.Capacity)
		container.ChartCache = cache.NewMemoryStore(cfg.Cache.Capacity)
	}

	log.Info().Str("backend", cfg.Cache.Backend).Msg("Caches initialized")
	return nil
}

// InitializeServices creates the repositories and services and restores stored charts
func InitializeServices(container *Container, cfg *config.Config, log zerolog.Logger) error {
	container.EventBus = events.NewBus(log)
	container.EventManager = events.NewManager(container.EventBus, log)
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	container.Metrics = metrics.NewMetrics(registry)

	var extraMarkets []calendar.Market
	if cfg.CalendarFile != "" {
		markets, err := calendar.LoadMarkets(cfg.CalendarFile)
		if err != nil {
			return fmt.Errorf("failed to load calendar file: %w", err)
		}
		extraMarkets = markets
	}
	container.Calendar = calendar.New(log, extraMarkets...)

	container.HistoryRepo = history.NewHistoryDB(container.HistoryDB.Conn(), container.EventManager, log)
	container.ChartRepo = composite.NewRepository(container.ChartsDB.Conn(), log)

	container.AlignmentService = alignment.NewService(
		container.HistoryRepo,
		container.Calendar,
		container.AlignmentCache,
		cfg.Composite.CalcCacheTTL,
		log,
	)
	container.AlignmentService.SetMetrics(container.Metrics)

	container.ExpressionEngine = expression.NewEngine(
		container.AlignmentService,
		container.ResultCache,
		cfg.Composite.CalcCacheTTL,
		log,
	)
	container.ExpressionEngine.SetMetrics(container.Metrics)

	container.CompositeService = composite.NewService(
		container.ExpressionEngine,
		container.ChartRepo,
		container.ChartCache,
		container.EventManager,
		composite.Config{
			MaxCharts:         cfg.Composite.MaxCharts,
			DefaultWindowDays: cfg.Composite.DefaultWindowDays,
			CacheTTL:          cfg.Composite.ChartCacheTTL,
			DefaultMarket:     cfg.DefaultMarket,
		},
		log,
	)
	container.CompositeService.SetMetrics(container.Metrics)

	if _, err := container.CompositeService.LoadCharts(context.Background()); err != nil {
		return err
	}

	SubscribeHandlers(container, log)
	return nil
}

// SubscribeHandlers connects the services to the event bus. Handlers run in
// subscription order, so stale alignments are dropped before charts recompute.
func SubscribeHandlers(container *Container, log zerolog.Logger) {
	alignmentLog := log.With().Str("subscriber", "alignment").Logger()
	container.unsubscribe = append(container.unsubscribe,
		container.EventBus.Subscribe(events.MarketDataUpdated, func(e events.Event) {
			if err := container.AlignmentService.ClearCache(context.Background()); err != nil {
				alignmentLog.Warn().Err(err).Msg("Failed to clear alignment cache")
			}
		}),
		container.CompositeService.Subscribe(container.EventBus),
	)
}
