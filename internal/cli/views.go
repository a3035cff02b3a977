package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/conference-site/schedule-api/internal/domain"
)

type userView struct {
	ID          string `json:"id"`
	Subject     string `json:"subject"`
	DisplayName string `json:"displayName"`
	Email       string `json:"email"`
}

type sessionView struct {
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	Location    *string    `json:"location,omitempty"`
	StartsAt    *time.Time `json:"startsAt,omitempty"`
	EndsAt      *time.Time `json:"endsAt,omitempty"`
	MaxCapacity *int       `json:"maxCapacity"`
	RSVPCount   *int       `json:"rsvpCount,omitempty"`
}

type rsvpView struct {
	SessionID string    `json:"sessionId"`
	UserID    string    `json:"userId"`
	State     string    `json:"state"`
	CreatedAt time.Time `json:"createdAt"`
}

type countView struct {
	SessionID string `json:"sessionId"`
	Count     int    `json:"count"`
}

func toUserView(u domain.User) userView {
	return userView{ID: string(u.ID), Subject: string(u.Subject), DisplayName: u.DisplayName, Email: u.Email}
}

func toSessionView(s domain.Session) sessionView {
	return sessionView{
		ID:          string(s.ID),
		Title:       s.Title,
		Location:    s.Location,
		StartsAt:    s.StartsAt,
		EndsAt:      s.EndsAt,
		MaxCapacity: s.MaxCapacity,
	}
}

func toRSVPView(r domain.RSVP) rsvpView {
	return rsvpView{
		SessionID: string(r.SessionID),
		UserID:    string(r.UserID),
		State:     string(r.State()),
		CreatedAt: r.CreatedAt.UTC(),
	}
}

func capacityText(c *int) string {
	if c == nil {
		return "unlimited"
	}
	return fmt.Sprintf("%d", *c)
}

func sessionLine(s sessionView) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s  %s  capacity=%s", s.ID, s.Title, capacityText(s.MaxCapacity))
	if s.RSVPCount != nil {
		fmt.Fprintf(&b, "  rsvps=%d", *s.RSVPCount)
	}
	if s.StartsAt != nil {
		fmt.Fprintf(&b, "  starts=%s", s.StartsAt.UTC().Format(time.RFC3339))
	}
	b.WriteString("\n")
	return b.String()
}

func rsvpLine(r rsvpView) string {
	return fmt.Sprintf("%s  %s  %s\n", r.SessionID, r.UserID, r.State)
}
