// Package sqlitetest opens throwaway SQLite stores for tests.
package sqlitetest

import (
	"path/filepath"
	"testing"

	"github.com/conference-site/schedule-api/internal/adapters/sqlite"
)

// Open creates a fresh database file under t.TempDir and closes it on cleanup.
func Open(t *testing.T) *sqlite.Store {
	t.Helper()
	s, err := sqlite.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}
