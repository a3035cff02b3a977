package httpapi

import (
	"time"

	"github.com/oapi-codegen/nullable"
	openapi_types "github.com/oapi-codegen/runtime/types"

	"github.com/conference-site/schedule-api/internal/app/rsvps"
	"github.com/conference-site/schedule-api/internal/app/sessions"
	"github.com/conference-site/schedule-api/internal/domain"
)

type CreateMyUserRequest struct {
	DisplayName string              `json:"displayName" validate:"required,max=120"`
	Email       openapi_types.Email `json:"email" validate:"required,max=254"`
}

type User struct {
	UserId      string              `json:"userId"`
	DisplayName string              `json:"displayName"`
	Email       openapi_types.Email `json:"email"`
	CreatedAt   time.Time           `json:"createdAt"`
}

type UserResponse struct {
	User User `json:"user"`
}

type CreateSessionRequest struct {
	Title       string                 `json:"title" validate:"required,max=200"`
	Description *string                `json:"description,omitempty" validate:"omitempty,max=4000"`
	Location    *string                `json:"location,omitempty" validate:"omitempty,max=200"`
	StartsAt    *time.Time             `json:"startsAt,omitempty"`
	EndsAt      *time.Time             `json:"endsAt,omitempty"`
	MaxCapacity nullable.Nullable[int] `json:"maxCapacity,omitempty"`
}

// UpdateSessionRequest distinguishes an omitted field from an explicit null.
type UpdateSessionRequest struct {
	Title       nullable.Nullable[string]    `json:"title,omitempty"`
	Description nullable.Nullable[string]    `json:"description,omitempty"`
	Location    nullable.Nullable[string]    `json:"location,omitempty"`
	StartsAt    nullable.Nullable[time.Time] `json:"startsAt,omitempty"`
	EndsAt      nullable.Nullable[time.Time] `json:"endsAt,omitempty"`
	MaxCapacity nullable.Nullable[int]       `json:"maxCapacity,omitempty"`
}

type Session struct {
	SessionId   string                       `json:"sessionId"`
	Title       string                       `json:"title"`
	Description nullable.Nullable[string]    `json:"description"`
	Location    nullable.Nullable[string]    `json:"location"`
	StartsAt    nullable.Nullable[time.Time] `json:"startsAt"`
	EndsAt      nullable.Nullable[time.Time] `json:"endsAt"`
	// MaxCapacity is null for sessions without a limit.
	MaxCapacity nullable.Nullable[int] `json:"maxCapacity"`
	CreatedAt   time.Time              `json:"createdAt"`
	UpdatedAt   time.Time              `json:"updatedAt"`
}

type SessionResponse struct {
	Session Session `json:"session"`
}

type UpdateSessionResponse struct {
	Session         Session  `json:"session"`
	PromotedUserIds []string `json:"promotedUserIds"`
}

type ScheduleEntry struct {
	Session
	RsvpCount int `json:"rsvpCount"`
}

type ScheduleResponse struct {
	Sessions []ScheduleEntry `json:"sessions"`
}

type RSVP struct {
	SessionId string           `json:"sessionId"`
	UserId    string           `json:"userId"`
	State     domain.RSVPState `json:"state"`
	CreatedAt time.Time        `json:"createdAt"`
}

type RSVPResponse struct {
	RSVP RSVP `json:"rsvp"`
}

type UnrsvpResponse struct {
	Removed RSVP `json:"removed"`
}

// ToggleResponse carries the caller's state after the toggle. RSVP is null once removed.
type ToggleResponse struct {
	State domain.RSVPState `json:"state"`
	RSVP  *RSVP            `json:"rsvp"`
}

type MyRSVPsResponse struct {
	RSVPs []RSVP `json:"rsvps"`
}

type Attendee struct {
	UserId      string           `json:"userId"`
	DisplayName string           `json:"displayName"`
	State       domain.RSVPState `json:"state"`
	CreatedAt   time.Time        `json:"createdAt"`
}

type AttendeesResponse struct {
	Attendees []Attendee `json:"attendees"`
}

type CountsResponse struct {
	Counts map[string]int `json:"counts"`
}

func userFromDomain(u domain.User) User {
	return User{
		UserId:      string(u.ID),
		DisplayName: u.DisplayName,
		Email:       openapi_types.Email(u.Email),
		CreatedAt:   u.CreatedAt,
	}
}

func sessionFromDomain(s domain.Session) Session {
	return Session{
		SessionId:   string(s.ID),
		Title:       s.Title,
		Description: nullableOf(s.Description),
		Location:    nullableOf(s.Location),
		StartsAt:    nullableOf(s.StartsAt),
		EndsAt:      nullableOf(s.EndsAt),
		MaxCapacity: nullableOf(s.MaxCapacity),
		CreatedAt:   s.CreatedAt,
		UpdatedAt:   s.UpdatedAt,
	}
}

func rsvpFromDomain(r domain.RSVP) RSVP {
	return RSVP{
		SessionId: string(r.SessionID),
		UserId:    string(r.UserID),
		State:     r.State(),
		CreatedAt: r.CreatedAt,
	}
}

func attendeeFromDomain(a domain.SessionAttendee) Attendee {
	return Attendee{
		UserId:      string(a.UserID),
		DisplayName: a.DisplayName,
		State:       a.State(),
		CreatedAt:   a.CreatedAt,
	}
}

// nullableOf renders a missing value as an explicit JSON null.
func nullableOf[T any](p *T) nullable.Nullable[T] {
	if p == nil {
		return nullable.NewNullNullable[T]()
	}
	return nullable.NewNullableWithValue(*p)
}

func ptrFromNullable[T any](n nullable.Nullable[T]) *T {
	if !n.IsSpecified() || n.IsNull() {
		return nil
	}
	v, err := n.Get()
	if err != nil {
		return nil
	}
	return &v
}

func optionalFromNullable[T any](n nullable.Nullable[T]) sessions.Optional[T] {
	if !n.IsSpecified() {
		return sessions.Unspecified[T]()
	}
	if n.IsNull() {
		return sessions.Null[T]()
	}
	v, err := n.Get()
	if err != nil {
		return sessions.Unspecified[T]()
	}
	return sessions.Some(v)
}

func createSessionInputFromRequest(b CreateSessionRequest) sessions.CreateSessionInput {
	return sessions.CreateSessionInput{
		Title:       b.Title,
		Description: b.Description,
		Location:    b.Location,
		StartsAt:    b.StartsAt,
		EndsAt:      b.EndsAt,
		MaxCapacity: ptrFromNullable(b.MaxCapacity),
	}
}

func updateSessionInputFromRequest(b UpdateSessionRequest) sessions.UpdateSessionInput {
	return sessions.UpdateSessionInput{
		Title:       optionalFromNullable(b.Title),
		Description: optionalFromNullable(b.Description),
		Location:    optionalFromNullable(b.Location),
		StartsAt:    optionalFromNullable(b.StartsAt),
		EndsAt:      optionalFromNullable(b.EndsAt),
		MaxCapacity: optionalFromNullable(b.MaxCapacity),
	}
}

func toggleResponseFromResult(res rsvps.ToggleResult) ToggleResponse {
	out := ToggleResponse{State: res.State()}
	if !res.Removed {
		r := rsvpFromDomain(res.RSVP)
		out.RSVP = &r
	}
	return out
}
