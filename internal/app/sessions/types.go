package sessions

import (
	"time"

	"github.com/conference-site/schedule-api/internal/domain"
)

// Optional is a tri-state field used to distinguish:
// - unspecified (omitted)
// - specified as null
// - specified with a value
type Optional[T any] struct {
	specified bool
	isNull    bool
	value     T
}

func Unspecified[T any]() Optional[T] { return Optional[T]{} }
func Null[T any]() Optional[T]        { return Optional[T]{specified: true, isNull: true} }
func Some[T any](v T) Optional[T]     { return Optional[T]{specified: true, value: v} }

func (o Optional[T]) IsSpecified() bool { return o.specified }
func (o Optional[T]) IsNull() bool      { return o.specified && o.isNull }
func (o Optional[T]) Value() T          { return o.value }

type CreateSessionInput struct {
	Title       string
	Description *string
	Location    *string
	StartsAt    *time.Time
	EndsAt      *time.Time
	// MaxCapacity nil means unlimited.
	MaxCapacity *int
}

type UpdateSessionInput struct {
	// Title is optional and cannot be null.
	Title Optional[string]

	Description Optional[string]
	Location    Optional[string]
	StartsAt    Optional[time.Time]
	EndsAt      Optional[time.Time]

	// MaxCapacity null removes the limit.
	MaxCapacity Optional[int]
}

// SessionUpdated is the session after an update, plus any users promoted off the waitlist
// because the update raised its capacity.
type SessionUpdated struct {
	Session  domain.Session
	Promoted []domain.UserID
}
