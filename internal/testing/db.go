// Package testing provides test helpers shared across the composite packages.
package testing

import (
	"path/filepath"
	"testing"

	"github.com/aristath/sentinel-composite/internal/database"
)

// NewTestDB creates a migrated sqlite database in a temporary directory.
// The database is closed when the test finishes. name selects the schema
// (history or charts).
func NewTestDB(t *testing.T, name string) *database.DB {
	t.Helper()

	db, err := database.New(database.Config{
		Path:    filepath.Join(t.TempDir(), name+".db"),
		Profile: database.ProfileStandard,
		Name:    name,
	})
	if err != nil {
		t.Fatalf("Failed to create test database %s: %v", name, err)
	}
	t.Cleanup(func() {
		// Tests may close the database themselves
		_ = db.Close()
	})

	if err := db.Migrate(); err != nil {
		t.Fatalf("Failed to migrate test database %s: %v", name, err)
	}
	return db
}
