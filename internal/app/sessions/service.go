package sessions

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/conference-site/schedule-api/internal/domain"
	"github.com/conference-site/schedule-api/internal/platform/logger"
	"github.com/conference-site/schedule-api/internal/platform/logger/sl"
	"github.com/conference-site/schedule-api/internal/ports/out/clock"
	"github.com/conference-site/schedule-api/internal/ports/out/sessionrepo"
)

// RSVPs is the part of the RSVP service that sessions depend on.
type RSVPs interface {
	SetCapacity(ctx context.Context, sessionID domain.SessionID, capacity *int) ([]domain.UserID, error)
	CountsBySession(ctx context.Context) (map[domain.SessionID]int, error)
}

type Service struct {
	sessions sessionrepo.Repository
	rsvps    RSVPs
	clock    clock.Clock
	log      *slog.Logger

	newSessionID func() domain.SessionID
}

func NewService(sessionsRepo sessionrepo.Repository, rsvpSvc RSVPs, clk clock.Clock, log *slog.Logger) *Service {
	if log == nil {
		log = logger.Discard()
	}
	return &Service{
		sessions: sessionsRepo,
		rsvps:    rsvpSvc,
		clock:    clk,
		log:      log,
		newSessionID: func() domain.SessionID {
			return domain.SessionID(uuid.NewString())
		},
	}
}

// SetNewSessionIDForTest overrides session ID generation for deterministic tests.
// It should not be used in production code.
func (s *Service) SetNewSessionIDForTest(fn func() domain.SessionID) {
	if fn != nil {
		s.newSessionID = fn
	}
}

func (s *Service) CreateSession(ctx context.Context, in CreateSessionInput) (domain.Session, error) {
	const op = "sessions.CreateSession"

	title := domain.NormalizeHumanName(in.Title)
	if title == "" {
		return domain.Session{}, errValidation("title", "must be non-empty")
	}
	if in.MaxCapacity != nil && *in.MaxCapacity < 0 {
		return domain.Session{}, errValidation("maxCapacity", "must be >= 0")
	}
	startsAt, endsAt := utcPtr(in.StartsAt), utcPtr(in.EndsAt)
	if err := validateTimes(startsAt, endsAt); err != nil {
		return domain.Session{}, err
	}

	now := s.clock.Now()
	rec := sessionrepo.Session{
		ID:          s.newSessionID(),
		Title:       title,
		Description: domain.NormalizeOptionalText(in.Description),
		Location:    domain.NormalizeOptionalText(in.Location),
		StartsAt:    startsAt,
		EndsAt:      endsAt,
		MaxCapacity: in.MaxCapacity,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.sessions.Create(ctx, rec); err != nil {
		if errors.Is(err, sessionrepo.ErrAlreadyExists) {
			// UUID collision; surface as a conflict rather than retrying.
			return domain.Session{}, &Error{Status: 409, Code: "SESSION_ID_CONFLICT", Message: "session id conflict"}
		}
		return domain.Session{}, s.storeErr(ctx, op, err)
	}

	s.log.InfoContext(ctx, "session created", slog.String("op", op), slog.String("session_id", string(rec.ID)))
	return toDomain(rec), nil
}

// UpdateSession applies a partial update. Descriptive fields are saved through the session
// repository; a MaxCapacity change goes through the RSVP service so that it serializes
// with RSVPs for the session and promotes waitlisted attendees when seats open up.
//
// The capacity change commits before the descriptive fields are saved. If that save fails,
// the capacity and any promotions stay applied: the error is returned together with a
// SessionUpdated whose Promoted lists the users who were moved off the waitlist.
func (s *Service) UpdateSession(ctx context.Context, id domain.SessionID, in UpdateSessionInput) (SessionUpdated, error) {
	const op = "sessions.UpdateSession"

	cur, err := s.sessions.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sessionrepo.ErrNotFound) {
			return SessionUpdated{}, errNotFound()
		}
		return SessionUpdated{}, s.storeErr(ctx, op, err)
	}

	next := cur
	descriptive := false

	if in.Title.IsSpecified() {
		if in.Title.IsNull() {
			return SessionUpdated{}, errValidation("title", "cannot be null")
		}
		title := domain.NormalizeHumanName(in.Title.Value())
		if title == "" {
			return SessionUpdated{}, errValidation("title", "must be non-empty")
		}
		next.Title = title
		descriptive = true
	}

	applyNullableString := func(dst **string, o Optional[string]) {
		if !o.IsSpecified() {
			return
		}
		descriptive = true
		if o.IsNull() {
			*dst = nil
			return
		}
		v := o.Value()
		*dst = domain.NormalizeOptionalText(&v)
	}
	applyNullableString(&next.Description, in.Description)
	applyNullableString(&next.Location, in.Location)

	applyNullableTime := func(dst **time.Time, o Optional[time.Time]) {
		if !o.IsSpecified() {
			return
		}
		descriptive = true
		if o.IsNull() {
			*dst = nil
			return
		}
		v := o.Value().UTC()
		*dst = &v
	}
	applyNullableTime(&next.StartsAt, in.StartsAt)
	applyNullableTime(&next.EndsAt, in.EndsAt)
	if err := validateTimes(next.StartsAt, next.EndsAt); err != nil {
		return SessionUpdated{}, err
	}

	var capacity *int
	if in.MaxCapacity.IsSpecified() && !in.MaxCapacity.IsNull() {
		v := in.MaxCapacity.Value()
		if v < 0 {
			return SessionUpdated{}, errValidation("maxCapacity", "must be >= 0")
		}
		capacity = &v
	}

	var promoted []domain.UserID
	if in.MaxCapacity.IsSpecified() {
		promoted, err = s.rsvps.SetCapacity(ctx, id, capacity)
		if err != nil {
			return SessionUpdated{}, fromRSVPError(err)
		}
	}

	if descriptive {
		next.UpdatedAt = s.clock.Now()
		if err := s.sessions.Save(ctx, next); err != nil {
			partial := SessionUpdated{Promoted: promoted}
			if len(promoted) > 0 {
				s.log.WarnContext(ctx, "capacity applied but session save failed",
					slog.String("op", op),
					slog.String("session_id", string(id)),
					slog.Int("promoted", len(promoted)),
				)
			}
			if errors.Is(err, sessionrepo.ErrNotFound) {
				return partial, errNotFound()
			}
			return partial, s.storeErr(ctx, op, err)
		}
	}

	saved, err := s.sessions.GetByID(ctx, id)
	if err != nil {
		return SessionUpdated{Promoted: promoted}, s.storeErr(ctx, op, err)
	}
	if promoted == nil {
		promoted = []domain.UserID{}
	}
	return SessionUpdated{Session: toDomain(saved), Promoted: promoted}, nil
}

func (s *Service) GetSession(ctx context.Context, id domain.SessionID) (domain.Session, error) {
	const op = "sessions.GetSession"

	rec, err := s.sessions.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sessionrepo.ErrNotFound) {
			return domain.Session{}, errNotFound()
		}
		return domain.Session{}, s.storeErr(ctx, op, err)
	}
	return toDomain(rec), nil
}

func (s *Service) ListSessions(ctx context.Context) ([]domain.Session, error) {
	const op = "sessions.ListSessions"

	recs, err := s.sessions.List(ctx)
	if err != nil {
		return nil, s.storeErr(ctx, op, err)
	}
	out := make([]domain.Session, 0, len(recs))
	for _, r := range recs {
		out = append(out, toDomain(r))
	}
	return out, nil
}

// ListSchedule lists every session with its total RSVP count (going plus waitlisted).
func (s *Service) ListSchedule(ctx context.Context) ([]domain.ScheduleEntry, error) {
	const op = "sessions.ListSchedule"

	ss, err := s.ListSessions(ctx)
	if err != nil {
		return nil, err
	}
	counts, err := s.rsvps.CountsBySession(ctx)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, fromRSVPError(err))
	}

	out := make([]domain.ScheduleEntry, 0, len(ss))
	for _, sess := range ss {
		out = append(out, domain.ScheduleEntry{Session: sess, RSVPCount: counts[sess.ID]})
	}
	return out, nil
}

func (s *Service) storeErr(ctx context.Context, op string, err error) error {
	s.log.ErrorContext(ctx, "session store failure", slog.String("op", op), sl.Err(err))
	return fmt.Errorf("%s: %w", op, err)
}

func validateTimes(startsAt, endsAt *time.Time) error {
	if startsAt != nil && endsAt != nil && endsAt.Before(*startsAt) {
		return errValidation("endsAt", "must not be before startsAt")
	}
	return nil
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := t.UTC()
	return &v
}

func toDomain(r sessionrepo.Session) domain.Session {
	return domain.Session{
		ID:          r.ID,
		Title:       r.Title,
		Description: r.Description,
		Location:    r.Location,
		StartsAt:    r.StartsAt,
		EndsAt:      r.EndsAt,
		MaxCapacity: r.MaxCapacity,
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
	}
}
