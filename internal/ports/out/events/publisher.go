package events

import (
	"context"
	"time"

	"github.com/conference-site/schedule-api/internal/domain"
)

// Type names an RSVP lifecycle event.
type Type string

const (
	TypeRSVPCreated  Type = "rsvp.created"
	TypeRSVPRemoved  Type = "rsvp.removed"
	TypeRSVPPromoted Type = "rsvp.promoted"
)

// Event describes a committed RSVP state change.
type Event struct {
	Type       Type             `json:"type"`
	SessionID  domain.SessionID `json:"sessionId"`
	UserID     domain.UserID    `json:"userId"`
	OnWaitlist bool             `json:"onWaitlist"`
	OccurredAt time.Time        `json:"occurredAt"`
}

// Publisher delivers events to downstream consumers.
// Publish is only called after the state change it describes has been committed.
type Publisher interface {
	Publish(ctx context.Context, e Event) error
}

// Nop discards every event.
type Nop struct{}

func (Nop) Publish(context.Context, Event) error { return nil }
