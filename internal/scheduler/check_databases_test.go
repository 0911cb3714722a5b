package scheduler

import (
	"testing"

	"github.com/aristath/sentinel-composite/internal/database"
	testingpkg "github.com/aristath/sentinel-composite/internal/testing"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckDatabasesJob_Name(t *testing.T) {
	assert.Equal(t, "check_databases", NewCheckDatabasesJob().Name())
}

func TestCheckDatabasesJob_Run_NoDatabases(t *testing.T) {
	job := NewCheckDatabasesJob(nil, nil)
	job.SetLogger(zerolog.New(nil).Level(zerolog.Disabled))

	assert.NoError(t, job.Run()) // nil databases are skipped
}

func TestCheckDatabasesJob_Run(t *testing.T) {
	job := NewCheckDatabasesJob(
		testingpkg.NewTestDB(t, database.NameHistory),
		testingpkg.NewTestDB(t, database.NameCharts),
	)

	assert.NoError(t, job.Run())
}

func TestCheckDatabasesJob_Run_ClosedDatabase(t *testing.T) {
	db := testingpkg.NewTestDB(t, database.NameCharts)
	require.NoError(t, db.Close())

	err := NewCheckDatabasesJob(db).Run()
	assert.ErrorContains(t, err, "database charts is corrupted")
}
