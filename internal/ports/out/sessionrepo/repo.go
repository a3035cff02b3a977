package sessionrepo

import (
	"context"
	"time"

	"github.com/conference-site/schedule-api/internal/domain"
)

// Session is the persistence shape used by the session repository.
// It is not an HTTP DTO.
type Session struct {
	ID domain.SessionID

	Title       string
	Description *string
	Location    *string

	// StartsAt is used for sorting; nil means "unscheduled".
	StartsAt *time.Time
	EndsAt   *time.Time

	MaxCapacity *int

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Repository provides access to persisted sessions.
//
// Capacity ownership: Create stores MaxCapacity, but Save never writes it. Capacity changes
// go through rsvprepo.Tx.SetCapacity so they serialize with RSVP writes for the session.
//
// Result ordering expectations:
// - List returns sessions ordered by StartsAt ascending (unscheduled last), then CreatedAt, then ID.
type Repository interface {
	Create(ctx context.Context, s Session) error
	Save(ctx context.Context, s Session) error

	GetByID(ctx context.Context, id domain.SessionID) (Session, error)
	List(ctx context.Context) ([]Session, error)
}
