// Package testutil opens a migrated Postgres pool for adapter tests.
package testutil

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	postgres "github.com/conference-site/schedule-api/internal/adapters/postgres"
)

const envDatabaseURL = "TEST_DATABASE_URL"

var migrateOnce sync.Once
var migrateErr error

// OpenMigratedPool connects to TEST_DATABASE_URL and applies the schema once per test binary.
// The test is skipped when the variable is unset.
func OpenMigratedPool(t *testing.T) *pgxpool.Pool {
	t.Helper()

	dsn := os.Getenv(envDatabaseURL)
	if dsn == "" {
		t.Skipf("%s not set; skipping postgres test", envDatabaseURL)
	}

	migrateOnce.Do(func() {
		_, migrateErr = postgres.Migrate(dsn, postgres.MigrationUp)
	})
	if migrateErr != nil {
		t.Fatalf("migrate: %v", migrateErr)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	pool, err := postgres.NewPool(ctx, dsn, postgres.PoolOptions{MaxConns: 16})
	if err != nil {
		t.Fatalf("open pool: %v", err)
	}
	t.Cleanup(pool.Close)
	return pool
}
