package composite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/aristath/sentinel-composite/internal/database"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupRepository(t *testing.T) *Repository {
	t.Helper()
	db, err := database.New(database.Config{
		Path: filepath.Join(t.TempDir(), "charts.db"),
		Name: database.NameCharts,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, db.Migrate())
	return NewRepository(db.Conn(), zerolog.Nop())
}

func TestRepository_SaveAndLoad(t *testing.T) {
	repo := setupRepository(t)
	ctx := context.Background()

	chart := sampleChart()
	require.NoError(t, repo.Save(ctx, chart))

	charts, err := repo.LoadAll(ctx)
	require.NoError(t, err)
	require.Len(t, charts, 1)
	assert.Equal(t, chart, charts[0])
}

func TestRepository_KeepsSubSecondTimes(t *testing.T) {
	repo := setupRepository(t)
	ctx := context.Background()

	chart := sampleChart()
	chart.CreatedAt = time.Date(2024, 6, 15, 14, 30, 0, 123456789, time.UTC)
	updated := chart.CreatedAt.Add(time.Millisecond)
	chart.LastUpdated = &updated
	require.NoError(t, repo.Save(ctx, chart))

	charts, err := repo.LoadAll(ctx)
	require.NoError(t, err)
	require.Len(t, charts, 1)
	assert.Equal(t, chart.CreatedAt, charts[0].CreatedAt)
	require.NotNil(t, charts[0].LastUpdated)
	assert.Equal(t, updated, *charts[0].LastUpdated)
}

func TestRepository_SaveReplaces(t *testing.T) {
	repo := setupRepository(t)
	ctx := context.Background()

	chart := sampleChart()
	require.NoError(t, repo.Save(ctx, chart))

	chart.Name = "renamed"
	chart.Enabled = false
	chart.LastUpdated = nil
	require.NoError(t, repo.Save(ctx, chart))

	charts, err := repo.LoadAll(ctx)
	require.NoError(t, err)
	require.Len(t, charts, 1)
	assert.Equal(t, "renamed", charts[0].Name)
	assert.False(t, charts[0].Enabled)
	assert.Nil(t, charts[0].LastUpdated)
}

func TestRepository_Delete(t *testing.T) {
	repo := setupRepository(t)
	ctx := context.Background()

	chart := sampleChart()
	require.NoError(t, repo.Save(ctx, chart))
	require.NoError(t, repo.Delete(ctx, chart.ID))
	require.NoError(t, repo.Delete(ctx, "composite_404_1"))

	charts, err := repo.LoadAll(ctx)
	require.NoError(t, err)
	assert.Empty(t, charts)
}

func TestRepository_SkipsUndecodableRows(t *testing.T) {
	repo := setupRepository(t)
	ctx := context.Background()

	require.NoError(t, repo.Save(ctx, sampleChart()))
	_, err := repo.db.ExecContext(ctx, `
		INSERT INTO composite_charts
			(id, name, expression, variables, chart_type, display_location, style, created_at)
		VALUES ('composite_9_1', 'broken', 'A', 'not json', 'line', 'sub', '{}', 1)
	`)
	require.NoError(t, err)

	charts, err := repo.LoadAll(ctx)
	require.NoError(t, err)
	require.Len(t, charts, 1)
	assert.Equal(t, "composite_4_1718461800", charts[0].ID)
}
