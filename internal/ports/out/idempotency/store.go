package idempotency

import (
	"context"
	"time"

	"github.com/conference-site/schedule-api/internal/domain"
)

// Key is the caller-provided idempotency key (Idempotency-Key header).
type Key string

// Fingerprint identifies a request for idempotency purposes: key + subject + route.
// Route is represented as HTTP method + normalized path template (e.g. "POST /sessions/{sessionId}/rsvp/toggle").
//
// The request body is deliberately not part of the fingerprint; it is stored on the Record
// so that reusing a key with a different body can be detected and rejected.
type Fingerprint struct {
	Key     Key
	Subject domain.SubjectID
	Method  string
	Route   string
}

// Record is the stored response we can replay for a duplicate request.
type Record struct {
	BodyHash    string
	StatusCode  int
	ContentType string
	Body        []byte
	CreatedAt   time.Time
}

// Store persists idempotency records for replaying safe responses on retries.
type Store interface {
	Get(ctx context.Context, fp Fingerprint) (Record, bool, error)
	Put(ctx context.Context, fp Fingerprint, rec Record) error
}
