package domain

import "time"

type RSVPState string

const (
	RSVPStateAbsent     RSVPState = "ABSENT"
	RSVPStateGoing      RSVPState = "GOING"
	RSVPStateWaitlisted RSVPState = "WAITLISTED"
)

// RSVP is one user's claim on one session. At most one exists per (session, user).
type RSVP struct {
	SessionID SessionID
	UserID    UserID

	// OnWaitlist is true while the user is waiting for a freed slot.
	OnWaitlist bool
	// CreatedAt orders the waitlist: earliest first.
	CreatedAt time.Time
}

func (r RSVP) State() RSVPState {
	if r.OnWaitlist {
		return RSVPStateWaitlisted
	}
	return RSVPStateGoing
}

// SessionAttendee is an RSVP joined with the user's display info.
type SessionAttendee struct {
	RSVP
	DisplayName string
}

// AtCapacity reports whether a session with the given capacity is full at `going` attendees.
// A nil capacity is never full; a zero capacity is always full.
func AtCapacity(capacity *int, going int) bool {
	if capacity == nil {
		return false
	}
	return going >= *capacity
}
