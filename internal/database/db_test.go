package database

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestDB(t *testing.T, name string) *DB {
	t.Helper()
	db, err := New(Config{
		Path: filepath.Join(t.TempDir(), name+".db"),
		Name: name,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func tableExists(t *testing.T, db *DB, table string) bool {
	t.Helper()
	var count int
	err := db.Conn().QueryRow(
		"SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?", table,
	).Scan(&count)
	require.NoError(t, err)
	return count == 1
}

func TestMigrate_CreatesSchema(t *testing.T) {
	tests := []struct {
		name  string
		table string
	}{
		{NameHistory, "daily_prices"},
		{NameCharts, "composite_charts"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db := newTestDB(t, tt.name)
			require.NoError(t, db.Migrate())
			assert.True(t, tableExists(t, db, tt.table))

			// Idempotent
			require.NoError(t, db.Migrate())
		})
	}
}

func TestMigrate_UnknownNameIsSkipped(t *testing.T) {
	db := newTestDB(t, "scratch")
	assert.NoError(t, db.Migrate())
	assert.False(t, tableExists(t, db, "daily_prices"))
}

func TestBuildConnectionString(t *testing.T) {
	s := buildConnectionString("/tmp/x.db", ProfileCache)
	assert.Contains(t, s, "/tmp/x.db?_pragma=journal_mode(WAL)")
	assert.Contains(t, s, "synchronous(OFF)")

	s = buildConnectionString("file:mem?mode=memory&cache=shared", ProfileStandard)
	assert.Contains(t, s, "cache=shared&_pragma=journal_mode(WAL)")
	assert.Contains(t, s, "synchronous(NORMAL)")
}

func TestWithTransaction(t *testing.T) {
	db := newTestDB(t, NameHistory)
	require.NoError(t, db.Migrate())

	insert := func(tx *sql.Tx, symbol string) error {
		_, err := tx.Exec(`INSERT INTO daily_prices (symbol, date, open, high, low, close, volume)
			VALUES (?, 0, 1, 1, 1, 1, 0)`, symbol)
		return err
	}

	t.Run("commits on success", func(t *testing.T) {
		err := WithTransaction(db.Conn(), func(tx *sql.Tx) error { return insert(tx, "A") })
		require.NoError(t, err)
	})

	t.Run("rolls back on error", func(t *testing.T) {
		boom := errors.New("boom")
		err := WithTransaction(db.Conn(), func(tx *sql.Tx) error {
			require.NoError(t, insert(tx, "B"))
			return boom
		})
		assert.ErrorIs(t, err, boom)
	})

	t.Run("rolls back on panic", func(t *testing.T) {
		err := WithTransaction(db.Conn(), func(tx *sql.Tx) error {
			require.NoError(t, insert(tx, "C"))
			panic("unexpected")
		})
		assert.ErrorContains(t, err, "panic in transaction")
	})

	var symbols []string
	rows, err := db.Conn().Query("SELECT symbol FROM daily_prices ORDER BY symbol")
	require.NoError(t, err)
	defer rows.Close()
	for rows.Next() {
		var s string
		require.NoError(t, rows.Scan(&s))
		symbols = append(symbols, s)
	}
	assert.Equal(t, []string{"A"}, symbols)
}

func TestWithTransaction_NilDB(t *testing.T) {
	assert.Error(t, WithTransaction(nil, func(*sql.Tx) error { return nil }))
}

func TestHealthCheck(t *testing.T) {
	db := newTestDB(t, NameCharts)
	assert.NoError(t, db.HealthCheck(context.Background()))
}
