package rsvprepo

import "errors"

var (
	// ErrNotFound indicates no RSVP exists for the (session, user) pair, or the waitlist is empty.
	ErrNotFound = errors.New("rsvp not found")

	// ErrAlreadyExists indicates an RSVP already exists for the (session, user) pair.
	ErrAlreadyExists = errors.New("rsvp already exists")

	// ErrSessionNotFound indicates the session does not exist.
	ErrSessionNotFound = errors.New("session not found")

	// ErrUserNotFound indicates the user does not exist.
	ErrUserNotFound = errors.New("user not found")
)
