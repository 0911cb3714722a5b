// Package di wires the databases, caches and services of the composite engine.
package di

import (
	"github.com/redis/go-redis/v9"

	"github.com/aristath/sentinel-composite/internal/cache"
	"github.com/aristath/sentinel-composite/internal/database"
	"github.com/aristath/sentinel-composite/internal/events"
	"github.com/aristath/sentinel-composite/internal/metrics"
	"github.com/aristath/sentinel-composite/internal/modules/alignment"
	"github.com/aristath/sentinel-composite/internal/modules/calendar"
	"github.com/aristath/sentinel-composite/internal/modules/composite"
	"github.com/aristath/sentinel-composite/internal/modules/expression"
	"github.com/aristath/sentinel-composite/internal/modules/history"
	"github.com/aristath/sentinel-composite/internal/scheduler"
)

// Container holds all dependencies for the application.
// It is created by Wire and released with Close.
type Container struct {
	// Databases
	HistoryDB *database.DB // history.db - daily OHLCV bars
	ChartsDB  *database.DB // charts.db - composite chart definitions

	// Caches
	Redis          *redis.Client // nil with the memory backend
	AlignmentCache cache.Store
	ResultCache    cache.Store
	ChartCache     cache.Store

	// Events and instrumentation
	EventBus     *events.Bus
	EventManager *events.Manager
	Metrics      *metrics.Metrics

	// Repositories
	HistoryRepo *history.HistoryDB
	ChartRepo   *composite.Repository

	// Services
	Calendar         *calendar.Calendar
	AlignmentService *alignment.Service
	ExpressionEngine *expression.Engine
	CompositeService *composite.Service

	Scheduler *scheduler.Scheduler

	unsubscribe []func()
}

// JobInstances holds the registered background jobs for manual triggering
type JobInstances struct {
	MarketDataRefresh *scheduler.MarketDataRefreshJob
	CheckDatabases    *scheduler.CheckDatabasesJob
}
