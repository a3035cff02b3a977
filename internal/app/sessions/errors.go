package sessions

import (
	"errors"

	"github.com/conference-site/schedule-api/internal/app/rsvps"
)

// Error is an application-layer error that can be mapped to an HTTP response.
type Error struct {
	Status  int
	Code    string
	Message string
	Details map[string]any
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Message != "" {
		return e.Message
	}
	return e.Code
}

func errNotFound() *Error {
	return &Error{Status: 404, Code: "SESSION_NOT_FOUND", Message: "session not found"}
}

func errValidation(field, reason string) *Error {
	return &Error{Status: 422, Code: "VALIDATION_ERROR", Message: "invalid " + field, Details: map[string]any{field: reason}}
}

// fromRSVPError keeps the status and code of capacity errors raised by the RSVP service.
func fromRSVPError(err error) error {
	var rErr *rsvps.Error
	if errors.As(err, &rErr) {
		return &Error{Status: rErr.Status, Code: rErr.Code, Message: rErr.Message, Details: rErr.Details}
	}
	return err
}
