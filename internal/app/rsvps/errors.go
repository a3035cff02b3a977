package rsvps

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

func errSessionNotFound() *Error {
	return &Error{Status: 404, Code: "SESSION_NOT_FOUND", Message: "session not found"}
}

func errUserNotFound() *Error {
	return &Error{Status: 404, Code: "USER_NOT_FOUND", Message: "user not found"}
}

func errValidation(field, reason string) *Error {
	return &Error{Status: 422, Code: "VALIDATION_ERROR", Message: "invalid " + field, Details: map[string]any{field: reason}}
}
