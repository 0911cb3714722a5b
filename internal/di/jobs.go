package di

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/aristath/sentinel-composite/internal/config"
	"github.com/aristath/sentinel-composite/internal/scheduler"
)

// RegisterJobs creates the background jobs and schedules them.
// An empty DataRefreshCron leaves the refresh job manual only.
func RegisterJobs(container *Container, cfg *config.Config, log zerolog.Logger) (*JobInstances, error) {
	container.Scheduler = scheduler.New(log)

	refresh := scheduler.NewMarketDataRefreshJob(container.HistoryRepo, container.EventManager)
	refresh.SetLogger(log.With().Str("job", "market_data_refresh").Logger())

	checkDatabases := scheduler.NewCheckDatabasesJob(container.HistoryDB, container.ChartsDB)
	checkDatabases.SetLogger(log.With().Str("job", "check_databases").Logger())

	if cfg.DataRefreshCron != "" {
		if err := container.Scheduler.AddJob(cfg.DataRefreshCron, refresh); err != nil {
			return nil, fmt.Errorf("invalid DATA_REFRESH_CRON %q: %w", cfg.DataRefreshCron, err)
		}
	}
	if err := container.Scheduler.AddJob("0 0 3 * * *", checkDatabases); err != nil {
		return nil, fmt.Errorf("failed to schedule database check: %w", err)
	}

	return &JobInstances{
		MarketDataRefresh: refresh,
		CheckDatabases:    checkDatabases,
	}, nil
}
