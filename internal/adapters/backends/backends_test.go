package backends

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conference-site/schedule-api/internal/domain"
	"github.com/conference-site/schedule-api/internal/platform/config"
	"github.com/conference-site/schedule-api/internal/ports/out/idempotency"
	"github.com/conference-site/schedule-api/internal/ports/out/rsvprepo"
	"github.com/conference-site/schedule-api/internal/ports/out/sessionrepo"
	"github.com/conference-site/schedule-api/internal/ports/out/userrepo"
)

func TestOpen_Memory(t *testing.T) {
	s, err := Open(context.Background(), Config{Backend: config.BackendMemory})
	require.NoError(t, err)
	defer s.Close()

	assert.NotNil(t, s.Users)
	assert.NotNil(t, s.Sessions)
	assert.NotNil(t, s.RSVPs)
	assert.NotNil(t, s.Idem)
}

func TestOpen_SQLite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "schedule.db")
	s, err := Open(context.Background(), Config{Backend: config.BackendSQLite, SQLitePath: path})
	require.NoError(t, err)
	defer s.Close()

	counts, err := s.RSVPs.CountsBySession(context.Background())
	require.NoError(t, err)
	assert.Empty(t, counts)
}

func TestOpen_UnknownBackend(t *testing.T) {
	_, err := Open(context.Background(), Config{Backend: "mongo"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown backend")
}

func TestOpen_SQLiteKeepsIdempotencyRecordsAcrossRestarts(t *testing.T) {
	ctx := context.Background()
	cfg := Config{Backend: config.BackendSQLite, SQLitePath: filepath.Join(t.TempDir(), "schedule.db"), IdempotencyTTL: time.Hour}
	fp := idempotency.Fingerprint{Key: "k-1", Subject: "sub-1", Method: "POST", Route: "/sessions/{sessionId}/rsvp/toggle"}

	first, err := Open(ctx, cfg)
	require.NoError(t, err)
	require.NoError(t, first.Idem.Put(ctx, fp, idempotency.Record{BodyHash: "h", StatusCode: 200, ContentType: "application/json", Body: []byte(`{}`)}))
	first.Close()

	second, err := Open(ctx, cfg)
	require.NoError(t, err)
	defer second.Close()

	rec, ok, err := second.Idem.Get(ctx, fp)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "h", rec.BodyHash)
}

func TestMemory_UserWithRSVPsIsNotDeleted(t *testing.T) {
	ctx := context.Background()
	s := Memory()
	now := time.Unix(100, 0).UTC()

	require.NoError(t, s.Sessions.Create(ctx, sessionrepo.Session{ID: "s1", Title: "Keynote", CreatedAt: now, UpdatedAt: now}))
	require.NoError(t, s.Users.Create(ctx, userrepo.User{ID: "u1", Subject: "sub-1", DisplayName: "Ada", Email: "ada@example.com", CreatedAt: now, UpdatedAt: now}))
	require.NoError(t, s.RSVPs.InSession(ctx, "s1", func(ctx context.Context, tx rsvprepo.Tx) error {
		return tx.Insert(ctx, domain.RSVP{SessionID: "s1", UserID: "u1", CreatedAt: now})
	}))

	require.ErrorIs(t, s.Users.Delete(ctx, "u1"), userrepo.ErrHasRSVPs)
	_, err := s.Users.GetByID(ctx, "u1")
	require.NoError(t, err)
}
