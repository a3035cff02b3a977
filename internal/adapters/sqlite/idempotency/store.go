// Package idempotency keeps replayable responses in the SQLite idempotency_keys table.
package idempotency

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/conference-site/schedule-api/internal/adapters/sqlite"
	"github.com/conference-site/schedule-api/internal/ports/out/idempotency"
)

type Store struct {
	db  *sql.DB
	ttl time.Duration
	now func() time.Time
}

type Option func(*Store)

// WithTTL hides records from Get once ttl has passed since they were written.
// Zero keeps them until overwritten.
func WithTTL(ttl time.Duration) Option {
	return func(s *Store) { s.ttl = ttl }
}

func NewStore(store *sqlite.Store, opts ...Option) *Store {
	s := &Store{db: store.DB(), now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) Get(ctx context.Context, fp idempotency.Fingerprint) (idempotency.Record, bool, error) {
	const op = "sqlite.idempotency.Get"

	var (
		rec       idempotency.Record
		createdAt int64
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT body_hash, status_code, content_type, body, created_at
		FROM idempotency_keys
		WHERE idempotency_key = ? AND subject = ? AND method = ? AND route = ?
		  AND (expires_at IS NULL OR expires_at > ?)
	`, string(fp.Key), string(fp.Subject), fp.Method, fp.Route, sqlite.ToNanos(s.now()),
	).Scan(&rec.BodyHash, &rec.StatusCode, &rec.ContentType, &rec.Body, &createdAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return idempotency.Record{}, false, nil
		}
		return idempotency.Record{}, false, fmt.Errorf("%s: %w", op, err)
	}
	rec.CreatedAt = sqlite.FromNanos(createdAt)
	return rec, true, nil
}

// Put inserts or replaces the record for fp.
func (s *Store) Put(ctx context.Context, fp idempotency.Fingerprint, rec idempotency.Record) error {
	const op = "sqlite.idempotency.Put"

	now := s.now()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	if rec.Body == nil {
		rec.Body = []byte{}
	}
	var expiresAt sql.NullInt64
	if s.ttl > 0 {
		expiresAt = sql.NullInt64{Int64: sqlite.ToNanos(now.Add(s.ttl)), Valid: true}
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO idempotency_keys
			(idempotency_key, subject, method, route, body_hash, status_code, content_type, body, created_at, expires_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (idempotency_key, subject, method, route) DO UPDATE SET
			body_hash    = excluded.body_hash,
			status_code  = excluded.status_code,
			content_type = excluded.content_type,
			body         = excluded.body,
			created_at   = excluded.created_at,
			expires_at   = excluded.expires_at
	`,
		string(fp.Key), string(fp.Subject), fp.Method, fp.Route,
		rec.BodyHash, rec.StatusCode, rec.ContentType, rec.Body,
		sqlite.ToNanos(rec.CreatedAt), expiresAt,
	)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}
