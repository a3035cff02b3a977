package userrepo

import "errors"

var (
	// ErrNotFound indicates the requested user does not exist.
	ErrNotFound = errors.New("user not found")

	// ErrSubjectAlreadyBound indicates a user already exists for the provided subject.
	ErrSubjectAlreadyBound = errors.New("user subject already bound")

	// ErrAlreadyExists indicates a user already exists with the provided ID.
	ErrAlreadyExists = errors.New("user already exists")

	// ErrHasRSVPs indicates the user still holds RSVP records and cannot be deleted yet.
	ErrHasRSVPs = errors.New("user still holds rsvps")
)
