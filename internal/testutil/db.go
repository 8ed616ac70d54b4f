// Package testutil provides store fixtures for control-plane tests.
package testutil

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/crabitat/crabitat/internal/infrastructure/sqlite"
)

// NewTestDB creates a migrated store in the test's temp directory. The
// store is closed when the test completes.
func NewTestDB(t *testing.T) *sqlite.DB {
	t.Helper()
	db, err := sqlite.NewDB(filepath.Join(t.TempDir(), "crabitat.db"))
	require.NoError(t, err, "Failed to create test database")
	t.Cleanup(func() { _ = db.Close() })
	return db
}
