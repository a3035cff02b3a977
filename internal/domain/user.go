package domain

import "time"

// User is the domain representation of an attendee profile.
type User struct {
	ID      UserID
	Subject SubjectID

	DisplayName string
	Email       string

	CreatedAt time.Time
	UpdatedAt time.Time
}
