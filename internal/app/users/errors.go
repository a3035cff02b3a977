package users

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

func errNotProvisioned() *Error {
	return &Error{
		Status:  404,
		Code:    "USER_NOT_PROVISIONED",
		Message: "No user profile exists for the authenticated subject.",
	}
}

func errAlreadyExists() *Error {
	return &Error{
		Status:  409,
		Code:    "USER_ALREADY_EXISTS",
		Message: "A user profile already exists for the authenticated subject.",
	}
}

func errRSVPsInFlight() *Error {
	return &Error{
		Status:  409,
		Code:    "USER_RSVPS_IN_FLIGHT",
		Message: "New RSVPs keep arriving for this user; retry the delete.",
	}
}
