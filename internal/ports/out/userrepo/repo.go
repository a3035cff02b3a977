package userrepo

import (
	"context"
	"time"

	"github.com/conference-site/schedule-api/internal/domain"
)

// User is the persistence shape used by the user repository.
// It's used as an internal record, not an HTTP DTO.
type User struct {
	ID      domain.UserID
	Subject domain.SubjectID
	// DisplayName is shown next to RSVPs in attendee lists.
	DisplayName string
	Email       string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Repository provides access to persisted users.
type Repository interface {
	Create(ctx context.Context, u User) error

	GetByID(ctx context.Context, id domain.UserID) (User, error)
	GetBySubject(ctx context.Context, subject domain.SubjectID) (User, error)

	// ListByIDs returns the users that exist among ids, in no particular order.
	// Unknown ids are skipped rather than reported.
	ListByIDs(ctx context.Context, ids []domain.UserID) ([]User, error)

	// Delete removes the user. If it does not exist, ErrNotFound is returned.
	// A user who still holds RSVP records is kept and ErrHasRSVPs is returned; the records
	// must be released (with waitlist promotion) before the profile can go.
	Delete(ctx context.Context, id domain.UserID) error
}
