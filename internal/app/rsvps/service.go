package rsvps

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/conference-site/schedule-api/internal/domain"
	"github.com/conference-site/schedule-api/internal/platform/logger"
	"github.com/conference-site/schedule-api/internal/platform/logger/sl"
	"github.com/conference-site/schedule-api/internal/platform/metrics"
	"github.com/conference-site/schedule-api/internal/ports/out/clock"
	"github.com/conference-site/schedule-api/internal/ports/out/events"
	"github.com/conference-site/schedule-api/internal/ports/out/rsvprepo"
	"github.com/conference-site/schedule-api/internal/ports/out/userrepo"
)

// Service owns RSVP and waitlist rules for sessions.
//
// Every state-changing operation runs its reads and writes inside one
// rsvprepo.Repository.InSession unit, so the capacity check, the insert and any waitlist
// promotion are atomic with respect to other callers working on the same session.
type Service struct {
	rsvps rsvprepo.Repository
	users userrepo.Repository
	clock clock.Clock

	log       *slog.Logger
	publisher events.Publisher
	metrics   *metrics.RSVP
}

type Option func(*Service)

func WithLogger(log *slog.Logger) Option {
	return func(s *Service) {
		if log != nil {
			s.log = log
		}
	}
}

// WithPublisher sets where committed RSVP changes are announced.
func WithPublisher(p events.Publisher) Option {
	return func(s *Service) {
		if p != nil {
			s.publisher = p
		}
	}
}

func WithMetrics(m *metrics.RSVP) Option {
	return func(s *Service) { s.metrics = m }
}

func NewService(rsvpRepo rsvprepo.Repository, usersRepo userrepo.Repository, clk clock.Clock, opts ...Option) *Service {
	s := &Service{
		rsvps:     rsvpRepo,
		users:     usersRepo,
		clock:     clk,
		log:       logger.Discard(),
		publisher: events.Nop{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Rsvp claims a seat for userID, or a waitlist position when the session is full.
// Calling it again for the same pair returns the existing record unchanged.
func (s *Service) Rsvp(ctx context.Context, sessionID domain.SessionID, userID domain.UserID) (domain.RSVP, error) {
	const op = "rsvps.Rsvp"

	if err := validateIDs(sessionID, userID); err != nil {
		return domain.RSVP{}, err
	}

	var (
		out     domain.RSVP
		created bool
	)
	err := s.rsvps.InSession(ctx, sessionID, func(ctx context.Context, tx rsvprepo.Tx) error {
		var err error
		out, created, err = s.rsvpInTx(ctx, tx, userID)
		return err
	})
	if err != nil {
		return domain.RSVP{}, s.storeErr(ctx, op, err)
	}

	if created {
		s.publish(ctx, op, newEvent(events.TypeRSVPCreated, out, s.clock))
	}
	s.countOutcome("rsvp", out.State())
	return out, nil
}

// Unrsvp removes userID's record. It returns nil, nil when there is nothing to remove.
// Removing a GOING record promotes the head of the waitlist into the freed slot.
func (s *Service) Unrsvp(ctx context.Context, sessionID domain.SessionID, userID domain.UserID) (*domain.RSVP, error) {
	const op = "rsvps.Unrsvp"

	if err := validateIDs(sessionID, userID); err != nil {
		return nil, err
	}

	var removed, promoted *domain.RSVP
	err := s.rsvps.InSession(ctx, sessionID, func(ctx context.Context, tx rsvprepo.Tx) error {
		var err error
		removed, promoted, err = s.unrsvpInTx(ctx, tx, userID)
		return err
	})
	if err != nil {
		return nil, s.storeErr(ctx, op, err)
	}

	s.afterUnrsvp(ctx, op, removed, promoted)
	s.countOutcome("unrsvp", domain.RSVPStateAbsent)
	return removed, nil
}

// Toggle flips userID between having a record and not having one.
// The existence check and the resulting rsvp or unrsvp happen in the same unit.
func (s *Service) Toggle(ctx context.Context, sessionID domain.SessionID, userID domain.UserID) (ToggleResult, error) {
	const op = "rsvps.Toggle"

	if err := validateIDs(sessionID, userID); err != nil {
		return ToggleResult{}, err
	}

	var (
		res               ToggleResult
		created           bool
		removed, promoted *domain.RSVP
	)
	err := s.rsvps.InSession(ctx, sessionID, func(ctx context.Context, tx rsvprepo.Tx) error {
		_, err := tx.Get(ctx, userID)
		switch {
		case err == nil:
			removed, promoted, err = s.unrsvpInTx(ctx, tx, userID)
			if err != nil {
				return err
			}
			res = ToggleResult{RSVP: *removed, Removed: true}
			return nil
		case errors.Is(err, rsvprepo.ErrNotFound):
			res.RSVP, created, err = s.rsvpInTx(ctx, tx, userID)
			return err
		default:
			return err
		}
	})
	if err != nil {
		return ToggleResult{}, s.storeErr(ctx, op, err)
	}

	if res.Removed {
		s.afterUnrsvp(ctx, op, removed, promoted)
	} else if created {
		s.publish(ctx, op, newEvent(events.TypeRSVPCreated, res.RSVP, s.clock))
	}
	s.countOutcome("toggle", res.State())
	return res, nil
}

// UnrsvpFromAllSessions removes every record userID holds, one session at a time.
// Each removal is its own unit and promotes from that session's waitlist as Unrsvp does.
// It stops at the first failure; removals that already committed stay committed.
func (s *Service) UnrsvpFromAllSessions(ctx context.Context, userID domain.UserID) error {
	const op = "rsvps.UnrsvpFromAllSessions"

	if userID == "" {
		return errValidation("userId", "must be non-empty")
	}

	recs, err := s.rsvps.ListByUser(ctx, userID)
	if err != nil {
		return s.storeErr(ctx, op, err)
	}
	for _, r := range recs {
		if _, err := s.Unrsvp(ctx, r.SessionID, userID); err != nil {
			s.log.ErrorContext(ctx, "failed to remove rsvp",
				slog.String("op", op),
				slog.String("session_id", string(r.SessionID)),
				slog.String("user_id", string(userID)),
				sl.Err(err),
			)
			return err
		}
	}
	return nil
}

// SetCapacity changes a session's maxCapacity. A nil capacity removes the limit.
//
// Lowering the capacity below the number of GOING attendees is rejected; nobody is demoted.
// Raising it (or removing it) promotes waitlisted attendees, oldest first, until the new
// capacity is reached or the waitlist is empty. The promoted users are returned in order.
func (s *Service) SetCapacity(ctx context.Context, sessionID domain.SessionID, capacity *int) ([]domain.UserID, error) {
	const op = "rsvps.SetCapacity"

	if sessionID == "" {
		return nil, errValidation("sessionId", "must be non-empty")
	}
	if capacity != nil && *capacity < 0 {
		return nil, errValidation("maxCapacity", "must be >= 0")
	}

	var promoted []domain.RSVP
	err := s.rsvps.InSession(ctx, sessionID, func(ctx context.Context, tx rsvprepo.Tx) error {
		going, err := tx.CountGoing(ctx)
		if err != nil {
			return err
		}
		if capacity != nil && *capacity < going {
			return &Error{
				Status:  409,
				Code:    "CAPACITY_BELOW_ATTENDANCE",
				Message: "maxCapacity is below the number of attendees going",
				Details: map[string]any{"maxCapacity": *capacity, "going": going},
			}
		}
		if err := tx.SetCapacity(ctx, capacity); err != nil {
			return err
		}

		for !domain.AtCapacity(capacity, going) {
			p, err := s.promoteFromWaitlist(ctx, tx)
			if err != nil {
				return err
			}
			if p == nil {
				break
			}
			promoted = append(promoted, *p)
			going++
		}
		return nil
	})
	if err != nil {
		return nil, s.storeErr(ctx, op, err)
	}

	ids := make([]domain.UserID, 0, len(promoted))
	for _, p := range promoted {
		ids = append(ids, p.UserID)
		s.publish(ctx, op, newEvent(events.TypeRSVPPromoted, p, s.clock))
	}
	s.countPromotions(len(promoted))
	return ids, nil
}

// CountsBySession returns the total number of records (going and waitlisted) per session.
// Sessions without records are absent from the map.
func (s *Service) CountsBySession(ctx context.Context) (map[domain.SessionID]int, error) {
	const op = "rsvps.CountsBySession"

	counts, err := s.rsvps.CountsBySession(ctx)
	if err != nil {
		return nil, s.storeErr(ctx, op, err)
	}
	return counts, nil
}

// GetForUser lists userID's records across sessions, oldest first.
func (s *Service) GetForUser(ctx context.Context, userID domain.UserID) ([]domain.RSVP, error) {
	const op = "rsvps.GetForUser"

	if userID == "" {
		return nil, errValidation("userId", "must be non-empty")
	}
	recs, err := s.rsvps.ListByUser(ctx, userID)
	if err != nil {
		return nil, s.storeErr(ctx, op, err)
	}
	return recs, nil
}

// GetForSession lists a session's records in waitlist order, joined with each user's display name.
// Records whose user no longer has a profile get an empty display name.
func (s *Service) GetForSession(ctx context.Context, sessionID domain.SessionID) ([]domain.SessionAttendee, error) {
	const op = "rsvps.GetForSession"

	if sessionID == "" {
		return nil, errValidation("sessionId", "must be non-empty")
	}
	recs, err := s.rsvps.ListBySession(ctx, sessionID)
	if err != nil {
		return nil, s.storeErr(ctx, op, err)
	}
	if len(recs) == 0 {
		return []domain.SessionAttendee{}, nil
	}

	ids := make([]domain.UserID, 0, len(recs))
	for _, r := range recs {
		ids = append(ids, r.UserID)
	}
	us, err := s.users.ListByIDs(ctx, ids)
	if err != nil {
		return nil, s.storeErr(ctx, op, err)
	}
	names := make(map[domain.UserID]string, len(us))
	for _, u := range us {
		names[u.ID] = u.DisplayName
	}

	out := make([]domain.SessionAttendee, 0, len(recs))
	for _, r := range recs {
		out = append(out, domain.SessionAttendee{RSVP: r, DisplayName: names[r.UserID]})
	}
	return out, nil
}

func (s *Service) rsvpInTx(ctx context.Context, tx rsvprepo.Tx, userID domain.UserID) (domain.RSVP, bool, error) {
	existing, err := tx.Get(ctx, userID)
	if err == nil {
		return existing, false, nil
	}
	if !errors.Is(err, rsvprepo.ErrNotFound) {
		return domain.RSVP{}, false, err
	}

	going, err := tx.CountGoing(ctx)
	if err != nil {
		return domain.RSVP{}, false, err
	}
	rec := domain.RSVP{
		SessionID:  tx.SessionID(),
		UserID:     userID,
		OnWaitlist: domain.AtCapacity(tx.Capacity(), going),
		CreatedAt:  s.clock.Now(),
	}
	if err := tx.Insert(ctx, rec); err != nil {
		return domain.RSVP{}, false, err
	}
	return rec, true, nil
}

func (s *Service) unrsvpInTx(ctx context.Context, tx rsvprepo.Tx, userID domain.UserID) (removed, promoted *domain.RSVP, err error) {
	rec, err := tx.Delete(ctx, userID)
	if err != nil {
		if errors.Is(err, rsvprepo.ErrNotFound) {
			return nil, nil, nil
		}
		return nil, nil, err
	}
	if rec.OnWaitlist {
		return &rec, nil, nil
	}

	promoted, err = s.promoteFromWaitlist(ctx, tx)
	if err != nil {
		return nil, nil, err
	}
	return &rec, promoted, nil
}

// promoteFromWaitlist moves the waitlist head to GOING. Callers invoke it once per freed
// slot, so capacity is not re-checked here. It returns nil when the waitlist is empty.
func (s *Service) promoteFromWaitlist(ctx context.Context, tx rsvprepo.Tx) (*domain.RSVP, error) {
	head, err := tx.WaitlistHead(ctx)
	if err != nil {
		if errors.Is(err, rsvprepo.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	p, err := tx.SetWaitlisted(ctx, head.UserID, false)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *Service) afterUnrsvp(ctx context.Context, op string, removed, promoted *domain.RSVP) {
	if removed != nil {
		s.publish(ctx, op, newEvent(events.TypeRSVPRemoved, *removed, s.clock))
	}
	if promoted != nil {
		s.publish(ctx, op, newEvent(events.TypeRSVPPromoted, *promoted, s.clock))
		s.countPromotions(1)
	}
}

// publish never fails the caller: the state change it describes is already committed.
func (s *Service) publish(ctx context.Context, op string, e events.Event) {
	if err := s.publisher.Publish(ctx, e); err != nil {
		s.log.WarnContext(ctx, "failed to publish rsvp event",
			slog.String("op", op),
			slog.String("type", string(e.Type)),
			slog.String("session_id", string(e.SessionID)),
			slog.String("user_id", string(e.UserID)),
			sl.Err(err),
		)
		if s.metrics != nil {
			s.metrics.PublishFailures.Inc()
		}
	}
}

func (s *Service) storeErr(ctx context.Context, op string, err error) error {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr
	}
	switch {
	case errors.Is(err, rsvprepo.ErrSessionNotFound):
		return errSessionNotFound()
	case errors.Is(err, rsvprepo.ErrUserNotFound):
		return errUserNotFound()
	}
	s.log.ErrorContext(ctx, "rsvp store failure", slog.String("op", op), sl.Err(err))
	return fmt.Errorf("%s: %w", op, err)
}

func (s *Service) countOutcome(op string, state domain.RSVPState) {
	if s.metrics != nil {
		s.metrics.Outcomes.WithLabelValues(op, string(state)).Inc()
	}
}

func (s *Service) countPromotions(n int) {
	if s.metrics != nil && n > 0 {
		s.metrics.Promotions.Add(float64(n))
	}
}

func newEvent(t events.Type, r domain.RSVP, clk clock.Clock) events.Event {
	return events.Event{
		Type:       t,
		SessionID:  r.SessionID,
		UserID:     r.UserID,
		OnWaitlist: r.OnWaitlist,
		OccurredAt: clk.Now(),
	}
}

func validateIDs(sessionID domain.SessionID, userID domain.UserID) error {
	if sessionID == "" {
		return errValidation("sessionId", "must be non-empty")
	}
	if userID == "" {
		return errValidation("userId", "must be non-empty")
	}
	return nil
}
