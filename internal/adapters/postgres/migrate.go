package postgres

import (
	"errors"
	"fmt"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	"github.com/conference-site/schedule-api/internal/adapters/postgres/migrations"
)

const (
	MigrationUp   = "up"
	MigrationDown = "down"
)

// Migrate applies (or rolls back) the embedded schema against dsn.
// It reports changed=false when there was nothing to do.
func Migrate(dsn, direction string) (changed bool, err error) {
	const op = "postgres.Migrate"

	if direction != MigrationUp && direction != MigrationDown {
		return false, fmt.Errorf("%s: unknown direction %q", op, direction)
	}

	src, err := iofs.New(migrations.FS, ".")
	if err != nil {
		return false, fmt.Errorf("%s: source: %w", op, err)
	}
	m, err := migrate.NewWithSourceInstance("iofs", src, migrateURL(dsn))
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	defer m.Close()

	if direction == MigrationUp {
		err = m.Up()
	} else {
		err = m.Down()
	}
	if err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			return false, nil
		}
		return false, fmt.Errorf("%s: %w", op, err)
	}
	return true, nil
}

// migrateURL swaps the postgres scheme for the one the pgx/v5 migrate driver registers.
func migrateURL(dsn string) string {
	for _, prefix := range []string{"postgres://", "postgresql://"} {
		if strings.HasPrefix(dsn, prefix) {
			return "pgx5://" + strings.TrimPrefix(dsn, prefix)
		}
	}
	return dsn
}
