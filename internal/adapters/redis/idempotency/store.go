package idempotency

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/conference-site/schedule-api/internal/ports/out/idempotency"
)

// DefaultTTL bounds how long a replayable response is kept.
const DefaultTTL = 24 * time.Hour

// Store is a Redis implementation of idempotency.Store. Records expire after the TTL.
type Store struct {
	client redis.Cmdable
	ttl    time.Duration
}

func NewStore(client redis.Cmdable, ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Store{client: client, ttl: ttl}
}

type record struct {
	BodyHash    string    `json:"body_hash"`
	StatusCode  int       `json:"status_code"`
	ContentType string    `json:"content_type"`
	Body        []byte    `json:"body"`
	CreatedAt   time.Time `json:"created_at"`
}

func (s *Store) Get(ctx context.Context, fp idempotency.Fingerprint) (idempotency.Record, bool, error) {
	const op = "redis.idempotency.Get"

	data, err := s.client.Get(ctx, redisKey(fp)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return idempotency.Record{}, false, nil
		}
		return idempotency.Record{}, false, fmt.Errorf("%s: %w", op, err)
	}

	var rec record
	if err := json.Unmarshal(data, &rec); err != nil {
		return idempotency.Record{}, false, fmt.Errorf("%s: %w", op, err)
	}
	return idempotency.Record{
		BodyHash:    rec.BodyHash,
		StatusCode:  rec.StatusCode,
		ContentType: rec.ContentType,
		Body:        rec.Body,
		CreatedAt:   rec.CreatedAt,
	}, true, nil
}

func (s *Store) Put(ctx context.Context, fp idempotency.Fingerprint, rec idempotency.Record) error {
	const op = "redis.idempotency.Put"

	data, err := json.Marshal(record{
		BodyHash:    rec.BodyHash,
		StatusCode:  rec.StatusCode,
		ContentType: rec.ContentType,
		Body:        rec.Body,
		CreatedAt:   rec.CreatedAt.UTC(),
	})
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if err := s.client.Set(ctx, redisKey(fp), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// redisKey escapes each fingerprint part so separators inside a part cannot collide.
func redisKey(fp idempotency.Fingerprint) string {
	parts := []string{
		string(fp.Subject),
		fp.Method,
		fp.Route,
		string(fp.Key),
	}
	for i, p := range parts {
		parts[i] = url.PathEscape(p)
	}
	return "idempotency:" + strings.Join(parts, ":")
}
