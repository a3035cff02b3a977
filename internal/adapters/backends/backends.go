// Package backends opens the user, session, RSVP and idempotency stores for one storage backend.
package backends

import (
	"context"
	"fmt"
	"time"

	memidempotency "github.com/conference-site/schedule-api/internal/adapters/memory/idempotency"
	memrsvprepo "github.com/conference-site/schedule-api/internal/adapters/memory/rsvprepo"
	memsessionrepo "github.com/conference-site/schedule-api/internal/adapters/memory/sessionrepo"
	memuserrepo "github.com/conference-site/schedule-api/internal/adapters/memory/userrepo"
	"github.com/conference-site/schedule-api/internal/adapters/postgres"
	pgidempotency "github.com/conference-site/schedule-api/internal/adapters/postgres/idempotency"
	pgrsvprepo "github.com/conference-site/schedule-api/internal/adapters/postgres/rsvprepo"
	pgsessionrepo "github.com/conference-site/schedule-api/internal/adapters/postgres/sessionrepo"
	pguserrepo "github.com/conference-site/schedule-api/internal/adapters/postgres/userrepo"
	"github.com/conference-site/schedule-api/internal/adapters/sqlite"
	sqliteidempotency "github.com/conference-site/schedule-api/internal/adapters/sqlite/idempotency"
	sqlitersvprepo "github.com/conference-site/schedule-api/internal/adapters/sqlite/rsvprepo"
	sqlitesessionrepo "github.com/conference-site/schedule-api/internal/adapters/sqlite/sessionrepo"
	sqliteuserrepo "github.com/conference-site/schedule-api/internal/adapters/sqlite/userrepo"
	"github.com/conference-site/schedule-api/internal/platform/config"
	"github.com/conference-site/schedule-api/internal/ports/out/idempotency"
	"github.com/conference-site/schedule-api/internal/ports/out/rsvprepo"
	"github.com/conference-site/schedule-api/internal/ports/out/sessionrepo"
	"github.com/conference-site/schedule-api/internal/ports/out/userrepo"
)

// Config selects and configures one storage backend.
type Config struct {
	Backend     string
	DatabaseURL string
	SQLitePath  string
	Pool        postgres.PoolOptions
	// IdempotencyTTL bounds how long the postgres and sqlite stores replay a response.
	// Zero keeps records.
	IdempotencyTTL time.Duration
}

// Stores bundles the repositories of one backend. Close releases the underlying connections.
type Stores struct {
	Users    userrepo.Repository
	Sessions sessionrepo.Repository
	RSVPs    rsvprepo.Repository
	// Idem is the backend's own idempotency store; callers may replace it (e.g. with Redis).
	Idem idempotency.Store

	Close func()
}

// Open builds the stores for cfg.Backend. Postgres expects the schema to be migrated already;
// SQLite applies its schema on open.
func Open(ctx context.Context, cfg Config) (*Stores, error) {
	const op = "backends.Open"

	switch cfg.Backend {
	case config.BackendMemory, "":
		return Memory(), nil

	case config.BackendPostgres:
		pool, err := postgres.NewPool(ctx, cfg.DatabaseURL, cfg.Pool)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		return &Stores{
			Users:    pguserrepo.NewRepo(pool),
			Sessions: pgsessionrepo.NewRepo(pool),
			RSVPs:    pgrsvprepo.NewRepo(pool),
			Idem:     pgidempotency.NewStore(pool, pgidempotency.WithTTL(cfg.IdempotencyTTL)),
			Close:    pool.Close,
		}, nil

	case config.BackendSQLite:
		store, err := sqlite.Open(cfg.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		return SQLite(store, sqliteidempotency.WithTTL(cfg.IdempotencyTTL)), nil

	default:
		return nil, fmt.Errorf("%s: unknown backend %q", op, cfg.Backend)
	}
}

func Memory() *Stores {
	users := memuserrepo.NewRepo()
	sessions := memsessionrepo.NewRepo()
	rsvps := memrsvprepo.NewRepo(sessions, memrsvprepo.WithUsers(users))
	users.SetRecordGuard(rsvps)
	return &Stores{
		Users:    users,
		Sessions: sessions,
		RSVPs:    rsvps,
		Idem:     memidempotency.NewStore(),
		Close:    func() {},
	}
}

// SQLite builds stores over an open SQLite store, idempotency records included.
func SQLite(store *sqlite.Store, idemOpts ...sqliteidempotency.Option) *Stores {
	return &Stores{
		Users:    sqliteuserrepo.NewRepo(store),
		Sessions: sqlitesessionrepo.NewRepo(store),
		RSVPs:    sqlitersvprepo.NewRepo(store),
		Idem:     sqliteidempotency.NewStore(store, idemOpts...),
		Close:    func() { _ = store.Close() },
	}
}
