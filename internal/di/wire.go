package di

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/aristath/sentinel-composite/internal/config"
)

// Wire initializes all dependencies and returns a fully configured container.
// Order of operations:
// 1. Initialize databases
// 2. Initialize caches
// 3. Initialize services and event subscriptions
// 4. Register jobs
func Wire(cfg *config.Config, log zerolog.Logger) (*Container, *JobInstances, error) {
	container, err := InitializeDatabases(cfg, log)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize databases: %w", err)
	}

	if err := InitializeCaches(container, cfg, log); err != nil {
		container.Close()
		return nil, nil, fmt.Errorf("failed to initialize caches: %w", err)
	}

	if err := InitializeServices(container, cfg, log); err != nil {
		container.Close()
		return nil, nil, fmt.Errorf("failed to initialize services: %w", err)
	}

	jobs, err := RegisterJobs(container, cfg, log)
	if err != nil {
		container.Close()
		return nil, nil, fmt.Errorf("failed to register jobs: %w", err)
	}

	log.Info().Msg("Dependency injection wiring completed successfully")
	return container, jobs, nil
}

// Close removes the event subscriptions and releases the databases and the redis client
func (c *Container) Close() {
	for _, unsubscribe := range c.unsubscribe {
		unsubscribe()
	}
	c.unsubscribe = nil

	if c.Redis != nil {
		_ = c.Redis.Close()
	}
	if c.HistoryDB != nil {
		_ = c.HistoryDB.Close()
	}
	if c.ChartsDB != nil {
		_ = c.ChartsDB.Close()
	}
}
