package domain

// SubjectID is the authenticated subject extracted from JWT claims (typically "sub").
// We model it as an opaque identifier: its format is controlled by the IdP.
type SubjectID string

// UserID is an internal identifier for a user profile.
type UserID string

// SessionID is an internal identifier for a scheduled session.
type SessionID string
