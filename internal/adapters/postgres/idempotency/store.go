// Package idempotency stores replayable responses in the idempotency_keys table.
package idempotency

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/conference-site/schedule-api/internal/ports/out/idempotency"
)

type Store struct {
	pool *pgxpool.Pool
	ttl  time.Duration
	now  func() time.Time
}

type Option func(*Store)

// WithTTL makes records invisible to Get once ttl has passed since they were written.
// Zero keeps them until overwritten.
func WithTTL(ttl time.Duration) Option {
	return func(s *Store) { s.ttl = ttl }
}

func NewStore(pool *pgxpool.Pool, opts ...Option) *Store {
	s := &Store{pool: pool, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) Get(ctx context.Context, fp idempotency.Fingerprint) (idempotency.Record, bool, error) {
	const op = "postgres.idempotency.Get"

	var rec idempotency.Record
	err := s.pool.QueryRow(ctx, `
		SELECT body_hash, status_code, content_type, body, created_at
		FROM idempotency_keys
		WHERE (idempotency_key, subject, method, route) = ($1, $2, $3, $4)
		  AND (expires_at IS NULL OR expires_at > now())
	`, string(fp.Key), string(fp.Subject), fp.Method, fp.Route,
	).Scan(&rec.BodyHash, &rec.StatusCode, &rec.ContentType, &rec.Body, &rec.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return idempotency.Record{}, false, nil
		}
		return idempotency.Record{}, false, fmt.Errorf("%s: %w", op, err)
	}
	rec.CreatedAt = rec.CreatedAt.UTC()
	return rec, true, nil
}

// Put inserts or replaces the record for fp.
func (s *Store) Put(ctx context.Context, fp idempotency.Fingerprint, rec idempotency.Record) error {
	const op = "postgres.idempotency.Put"

	now := s.now().UTC()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	if rec.Body == nil {
		rec.Body = []byte{}
	}
	var expiresAt *time.Time
	if s.ttl > 0 {
		t := now.Add(s.ttl)
		expiresAt = &t
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO idempotency_keys
			(idempotency_key, subject, method, route, body_hash, status_code, content_type, body, created_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (idempotency_key, subject, method, route) DO UPDATE SET
			body_hash    = EXCLUDED.body_hash,
			status_code  = EXCLUDED.status_code,
			content_type = EXCLUDED.content_type,
			body         = EXCLUDED.body,
			created_at   = EXCLUDED.created_at,
			expires_at   = EXCLUDED.expires_at
	`,
		string(fp.Key), string(fp.Subject), fp.Method, fp.Route,
		rec.BodyHash, rec.StatusCode, rec.ContentType, rec.Body,
		rec.CreatedAt.UTC(), expiresAt,
	)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}
