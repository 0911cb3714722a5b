package di

import (
	"fmt"
	"path/filepath"

	"github.com/aristath/sentinel-composite/internal/config"
	"github.com/aristath/sentinel-composite/internal/database"
	"github.com/rs/zerolog"
)

// InitializeDatabases opens both databases and applies their schemas
func InitializeDatabases(cfg *config.Config, log zerolog.Logger) (*Container, error) {
	container := &Container{}

	// history.db - re-fetchable market data
	historyDB, err := database.New(database.Config{
		Path:    filepath.Join(cfg.DataDir, "history.db"),
		Profile: database.ProfileCache,
		Name:    database.NameHistory,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize history database: %w", err)
	}
	container.HistoryDB = historyDB

	// charts.db - user chart definitions
	chartsDB, err := database.New(database.Config{
		Path:    filepath.Join(cfg.DataDir, "charts.db"),
		Profile: database.ProfileStandard,
		Name:    database.NameCharts,
	})
	if err != nil {
		historyDB.Close()
		return nil, fmt.Errorf("failed to initialize charts database: %w", err)
	}
	container.ChartsDB = chartsDB

	for _, db := range []*database.DB{historyDB, chartsDB} {
		if err := db.Migrate(); err != nil {
			historyDB.Close()
			chartsDB.Close()
			return nil, fmt.Errorf("failed to migrate %s database: %w", db.Name(), err)
		}
	}

	log.Info().Str("data_dir", cfg.DataDir).Msg("Databases initialized")
	return container, nil
}
