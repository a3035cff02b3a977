package idempotency

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conference-site/schedule-api/internal/adapters/contracttest"
	idempotencyport "github.com/conference-site/schedule-api/internal/ports/out/idempotency"
)

func newTestStore(t *testing.T, ttl time.Duration) (*Store, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewStore(client, ttl), mr
}

func TestContract_RedisIdempotencyStore(t *testing.T) {
	contracttest.RunIdempotencyStore(t, func(t *testing.T) (idempotencyport.Store, contracttest.CleanupFunc) {
		t.Helper()
		s, _ := newTestStore(t, time.Hour)
		return s, nil
	})
}

func TestStore_RecordsExpire(t *testing.T) {
	ctx := context.Background()
	s, mr := newTestStore(t, time.Minute)

	fp := idempotencyport.Fingerprint{Key: "k1", Subject: "sub", Method: "POST", Route: "/sessions/{sessionId}/rsvp/toggle"}
	require.NoError(t, s.Put(ctx, fp, idempotencyport.Record{StatusCode: 200, Body: []byte("{}")}))

	_, ok, err := s.Get(ctx, fp)
	require.NoError(t, err)
	assert.True(t, ok)

	mr.FastForward(2 * time.Minute)

	_, ok, err = s.Get(ctx, fp)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestStore_DefaultTTL(t *testing.T) {
	ctx := context.Background()
	s, mr := newTestStore(t, 0)

	fp := idempotencyport.Fingerprint{Key: "k1", Subject: "sub", Method: "POST", Route: "/r"}
	require.NoError(t, s.Put(ctx, fp, idempotencyport.Record{StatusCode: 200}))

	assert.Equal(t, DefaultTTL, mr.TTL(redisKey(fp)))
}

func TestRedisKey_EscapesSeparators(t *testing.T) {
	a := idempotencyport.Fingerprint{Key: "b", Subject: "a:x", Method: "POST", Route: "/r"}
	b := idempotencyport.Fingerprint{Key: "x:b", Subject: "a", Method: "POST", Route: "/r"}
	assert.NotEqual(t, redisKey(a), redisKey(b))
}

func TestStore_GetSurfacesConnectionErrors(t *testing.T) {
	s, mr := newTestStore(t, time.Minute)
	mr.Close()

	_, _, err := s.Get(context.Background(), idempotencyport.Fingerprint{Key: "k"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "redis.idempotency.Get")
}
