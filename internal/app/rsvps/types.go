package rsvps

import "github.com/conference-site/schedule-api/internal/domain"

// ToggleResult reports which branch a Toggle took.
type ToggleResult struct {
	// RSVP is the created (or already present) record when Removed is false,
	// and the record that was deleted when Removed is true.
	RSVP    domain.RSVP
	Removed bool
}

// State is the caller's RSVP state after the toggle.
func (r ToggleResult) State() domain.RSVPState {
	if r.Removed {
		return domain.RSVPStateAbsent
	}
	return r.RSVP.State()
}
