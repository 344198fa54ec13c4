// Package testing provides testing utilities and helpers for the oracle-portfolio project.
package testing

import (
	"fmt"
	"os"
	"testing"

	"github.com/aristath/oracle-portfolio/internal/database"
)

// NewTestDB creates a temporary-file SQLite database for testing with automatic schema migration.
// Returns the database instance and a cleanup function that closes the connection and
// removes the file. The cleanup function can be called multiple times safely.
//
// Supported schema names:
//   - "plugins" - applies plugins_schema.sql
//   - "snapshots" - applies snapshots_schema.sql
//   - Unknown names - creates empty database (no schema applied)
func NewTestDB(t *testing.T, name string) (*database.DB, func()) {
	t.Helper()

	// Temporary files keep tests isolated from each other
	tmpFile, err := os.CreateTemp("", fmt.Sprintf("test_%s_*.db", name))
	if err != nil {
		t.Fatalf("Failed to create temporary database file: %v", err)
	}
	tmpPath := tmpFile.Name()
	_ = tmpFile.Close()

	db, err := database.New(database.Config{
		Path:    tmpPath,
		Profile: database.ProfileStandard,
		Name:    name,
	})
	if err != nil {
		_ = os.Remove(tmpPath)
		t.Fatalf("Failed to create test database %s: %v", name, err)
	}

	if err := db.Migrate(); err != nil {
		_ = db.Close()
		_ = os.Remove(tmpPath)
		t.Fatalf("Failed to migrate test database %s: %v", name, err)
	}

	closed := false
	return db, func() {
		if closed {
			return
		}
		closed = true
		if err := db.Close(); err != nil {
			t.Logf("Warning: Failed to close test database %s: %v", name, err)
		}
		for _, path := range []string{tmpPath, tmpPath + "-wal", tmpPath + "-shm"} {
			if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
				t.Logf("Warning: Failed to remove temporary database file %s: %v", path, err)
			}
		}
	}
}
