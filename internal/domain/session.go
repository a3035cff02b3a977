package domain

import "time"

// Session is a scheduled event attendees can RSVP to.
type Session struct {
	ID    SessionID
	Title string

	Description *string
	Location    *string

	StartsAt *time.Time
	EndsAt   *time.Time

	// MaxCapacity bounds the number of GOING attendees; nil means unlimited.
	// Zero is valid and means every RSVP is waitlisted.
	MaxCapacity *int

	CreatedAt time.Time
	UpdatedAt time.Time
}

// ScheduleEntry is a session plus its total RSVP count (going + waitlisted).
type ScheduleEntry struct {
	Session
	RSVPCount int
}
