// Package testutil provides a temporary SQLite-backed database harness
// shared by the store, ingest, retrieval, and rebalance test suites.
package testutil

import (
	"path/filepath"
	"testing"

	"github.com/ideaengine/ideaengine/internal/database"
)

// NewTestDatabase opens a fresh schema-initialized database under the
// test's temp directory, closing it automatically on cleanup.
func NewTestDatabase(t *testing.T) *database.Database {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "ideaengine-test.db")
	db, err := database.Open(dbPath)
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	if err := db.InitSchema(); err != nil {
		t.Fatalf("failed to init test schema: %v", err)
	}
	t.Cleanup(func() {
		db.Close()
	})
	return db
}
