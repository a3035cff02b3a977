package rsvprepo

import (
	"context"

	"github.com/conference-site/schedule-api/internal/domain"
)

// Tx is the per-session view handed to Repository.InSession.
//
// Every read observes the writes made earlier through the same Tx. Nothing written through
// a Tx is visible to other callers until the enclosing InSession call returns nil.
type Tx interface {
	// SessionID is the session this Tx is bound to.
	SessionID() domain.SessionID

	// Capacity returns the session's maxCapacity as read when the unit started
	// (or as last set through SetCapacity). nil means unlimited.
	Capacity() *int

	// CountGoing counts records with OnWaitlist=false.
	CountGoing(ctx context.Context) (int, error)

	// Get returns the record for userID. If it does not exist, ErrNotFound is returned.
	Get(ctx context.Context, userID domain.UserID) (domain.RSVP, error)

	// Insert adds a record. It returns ErrAlreadyExists when one exists for the same user,
	// and ErrUserNotFound when the backend knows users and the user does not exist.
	Insert(ctx context.Context, r domain.RSVP) error

	// Delete removes and returns the record for userID, or returns ErrNotFound.
	Delete(ctx context.Context, userID domain.UserID) (domain.RSVP, error)

	// WaitlistHead returns the waitlisted record with the earliest CreatedAt
	// (insertion order breaks ties), or ErrNotFound when the waitlist is empty.
	WaitlistHead(ctx context.Context) (domain.RSVP, error)

	// SetWaitlisted flips the waitlist flag of an existing record and returns the updated record.
	SetWaitlisted(ctx context.Context, userID domain.UserID, onWaitlist bool) (domain.RSVP, error)

	// SetCapacity changes the session's maxCapacity within the same unit.
	SetCapacity(ctx context.Context, capacity *int) error
}

// Repository persists RSVP records.
//
// InSession is the serialization point for the capacity check and waitlist promotion:
// implementations must guarantee that two InSession calls for the same session never
// interleave, and that an error returned from fn leaves no partial writes behind.
type Repository interface {
	// InSession runs fn atomically for one session. If the session does not exist,
	// ErrSessionNotFound is returned and fn is not called. fn's error is returned unchanged.
	InSession(ctx context.Context, sessionID domain.SessionID, fn func(ctx context.Context, tx Tx) error) error

	// ListByUser returns all records for a user across sessions, ordered by CreatedAt.
	ListByUser(ctx context.Context, userID domain.UserID) ([]domain.RSVP, error)

	// ListBySession returns all records for a session in waitlist order (CreatedAt, then insertion).
	ListBySession(ctx context.Context, sessionID domain.SessionID) ([]domain.RSVP, error)

	// CountsBySession counts every record (going and waitlisted) per session.
	// Sessions without records are omitted.
	CountsBySession(ctx context.Context) (map[domain.SessionID]int, error)
}
