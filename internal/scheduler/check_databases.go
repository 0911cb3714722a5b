package scheduler

import (
	"database/sql"
	"fmt"
	"sort"

	"github.com/aristath/sentinel-composite/internal/database"
	"github.com/rs/zerolog"
)

// walWarnFrames is the WAL size above which a checkpoint warning is logged
const walWarnFrames = 1000

// CheckDatabasesJob verifies integrity and WAL state of the sqlite databases
type CheckDatabasesJob struct {
	databases []*database.DB
	log       zerolog.Logger
}

// NewCheckDatabasesJob creates a new CheckDatabasesJob. Nil databases are skipped.
func NewCheckDatabasesJob(databases ...*database.DB) *CheckDatabasesJob {
	return &CheckDatabasesJob{
		databases: databases,
		log:       zerolog.Nop(),
	}
}

// SetLogger sets the logger for the job
func (j *CheckDatabasesJob) SetLogger(log zerolog.Logger) {
	j.log = log
}

// Name returns the job name
func (j *CheckDatabasesJob) Name() string {
	return "check_databases"
}

// Run checks every database and fails on the first corrupted one
func (j *CheckDatabasesJob) Run() error {
	dbs := make([]*database.DB, 0, len(j.databases))
	for _, db := range j.databases {
		if db != nil {
			dbs = append(dbs, db)
		}
	}
	sort.Slice(dbs, func(a, b int) bool { return dbs[a].Name() < dbs[b].Name() })

	for _, db := range dbs {
		if err := checkIntegrity(db.Conn()); err != nil {
			j.log.Error().
				Err(err).
				Str("database", db.Name()).
				Msg("Database integrity check failed")
			return fmt.Errorf("database %s is corrupted: %w", db.Name(), err)
		}
		j.checkWAL(db)
	}

	j.log.Info().Int("checked", len(dbs)).Msg("Database check completed")
	return nil
}

// checkWAL logs the WAL checkpoint status. In-memory databases report no WAL.
func (j *CheckDatabasesJob) checkWAL(db *database.DB) {
	var busy, frames, checkpointed int
	err := db.Conn().QueryRow("PRAGMA wal_checkpoint(PASSIVE)").Scan(&busy, &frames, &checkpointed)
	if err != nil {
		j.log.Warn().Err(err).Str("database", db.Name()).Msg("Failed to check WAL checkpoint")
		return
	}

	if frames > walWarnFrames {
		j.log.Warn().
			Str("database", db.Name()).
			Int("wal_frames", frames).
			Int("checkpointed", checkpointed).
			Msg("WAL file is large, checkpoint may be needed")
		return
	}
	j.log.Debug().Str("database", db.Name()).Int("wal_frames", frames).Msg("WAL checkpoint status OK")
}

// checkIntegrity runs SQLite's PRAGMA integrity_check
func checkIntegrity(conn *sql.DB) error {
	var result string
	if err := conn.QueryRow("PRAGMA integrity_check").Scan(&result); err != nil {
		return fmt.Errorf("integrity check failed: %w", err)
	}
	if result != "ok" {
		return fmt.Errorf("integrity check returned: %s", result)
	}
	return nil
}
