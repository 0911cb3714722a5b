// Package main is the entry point for the composite chart service.
// It serves user-defined arithmetic expressions over aligned price histories
// and keeps their computed series current as market data arrives.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aristath/sentinel-composite/internal/config"
	"github.com/aristath/sentinel-composite/internal/di"
	"github.com/aristath/sentinel-composite/internal/server"
	"github.com/aristath/sentinel-composite/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fallbackLog := logger.New(logger.Config{
			Level:  "info",
			Pretty: true,
		})
		fallbackLog.Fatal().Err(err).Msg("Failed to load configuration")
	}

	log := logger.New(logger.Config{
		Level:  cfg.LogLevel,
		Pretty: cfg.DevMode,
		App:    "composite",
	})
	logger.SetGlobalLogger(log)

	log.Info().Msg("Starting composite chart service")

	// Databases, caches, services and bus subscriptions
	container, jobs, err := di.Wire(cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to wire dependencies")
	}
	defer container.Close()

	srv := server.New(server.Config{
		Log:       log,
		HistoryDB: container.HistoryDB,
		ChartsDB:  container.ChartsDB,
		Port:      cfg.Port,
		DevMode:   cfg.DevMode,
		Composite: container.CompositeService,
		Calendar:  container.Calendar,
		Alignment: container.AlignmentService,
		History:   container.HistoryRepo,
		EventBus:  container.EventBus,
		Metrics:   container.Metrics,
	})

	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	log.Info().Int("port", cfg.Port).Msg("Server started successfully")

	container.Scheduler.Start()

	// Warm the chart series once at startup
	go func() {
		if err := jobs.MarketDataRefresh.Run(); err != nil {
			log.Warn().Err(err).Msg("Initial market data refresh failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	container.Scheduler.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server stopped")
}
