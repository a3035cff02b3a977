package users

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"

	"github.com/google/uuid"

	"github.com/conference-site/schedule-api/internal/domain"
	"github.com/conference-site/schedule-api/internal/platform/logger"
	"github.com/conference-site/schedule-api/internal/platform/logger/sl"
	clockport "github.com/conference-site/schedule-api/internal/ports/out/clock"
	"github.com/conference-site/schedule-api/internal/ports/out/userrepo"
)

// RSVPCleaner releases a user's RSVPs before the profile goes away.
type RSVPCleaner interface {
	UnrsvpFromAllSessions(ctx context.Context, userID domain.UserID) error
}

type Service struct {
	repo  userrepo.Repository
	rsvps RSVPCleaner
	clk   clockport.Clock
	log   *slog.Logger

	newUserID func() domain.UserID
}

func NewService(repo userrepo.Repository, rsvps RSVPCleaner, clk clockport.Clock, log *slog.Logger) *Service {
	if log == nil {
		log = logger.Discard()
	}
	return &Service{
		repo:  repo,
		rsvps: rsvps,
		clk:   clk,
		log:   log,
		newUserID: func() domain.UserID {
			return domain.UserID(uuid.NewString())
		},
	}
}

// SetNewUserIDForTest overrides user ID generation for deterministic tests.
// It should not be used in production code.
func (s *Service) SetNewUserIDForTest(fn func() domain.UserID) {
	if fn != nil {
		s.newUserID = fn
	}
}

func (s *Service) GetMyUser(ctx context.Context, subject domain.SubjectID) (domain.User, error) {
	u, err := s.repo.GetBySubject(ctx, subject)
	if err != nil {
		if errors.Is(err, userrepo.ErrNotFound) {
			return domain.User{}, errNotProvisioned()
		}
		return domain.User{}, fmt.Errorf("users.GetMyUser: %w", err)
	}
	return toDomain(u), nil
}

func (s *Service) CreateMyUser(ctx context.Context, subject domain.SubjectID, in CreateMyUserInput) (domain.User, error) {
	const op = "users.CreateMyUser"

	if subject == "" {
		return domain.User{}, &Error{Status: 401, Code: "UNAUTHORIZED", Message: "missing subject"}
	}
	// Ensure no existing binding.
	if _, err := s.repo.GetBySubject(ctx, subject); err == nil {
		return domain.User{}, errAlreadyExists()
	} else if !errors.Is(err, userrepo.ErrNotFound) {
		return domain.User{}, fmt.Errorf("%s: %w", op, err)
	}

	displayName := domain.NormalizeHumanName(in.DisplayName)
	if displayName == "" {
		return domain.User{}, &Error{
			Status:  422,
			Code:    "VALIDATION_ERROR",
			Message: "invalid displayName",
			Details: map[string]any{"displayName": "must be non-empty"},
		}
	}
	email := strings.TrimSpace(in.Email)
	if err := validateEmail(email); err != nil {
		return domain.User{}, &Error{
			Status:  422,
			Code:    "VALIDATION_ERROR",
			Message: "invalid email",
			Details: map[string]any{"email": err.Error()},
		}
	}

	now := s.clk.Now()
	u := userrepo.User{
		ID:          s.newUserID(),
		Subject:     subject,
		DisplayName: displayName,
		Email:       email,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.repo.Create(ctx, u); err != nil {
		if errors.Is(err, userrepo.ErrSubjectAlreadyBound) {
			// Lost a race with a concurrent create for the same subject.
			return domain.User{}, errAlreadyExists()
		}
		return domain.User{}, fmt.Errorf("%s: %w", op, err)
	}

	s.log.InfoContext(ctx, "user provisioned", slog.String("op", op), slog.String("user_id", string(u.ID)))
	return toDomain(u), nil
}

// deleteAttempts bounds how often DeleteMyUser releases again after an RSVP lands between
// the release and the profile delete.
const deleteAttempts = 3

// DeleteMyUser releases every RSVP the caller holds (promoting waitlisted attendees where a
// seat frees up) and then removes the profile. If releasing fails part-way, the profile is
// kept so the call can be retried.
//
// The store refuses to delete a user who still holds records, so a concurrent RSVP is
// released through the normal path instead of disappearing with the profile.
func (s *Service) DeleteMyUser(ctx context.Context, subject domain.SubjectID) error {
	const op = "users.DeleteMyUser"

	u, err := s.repo.GetBySubject(ctx, subject)
	if err != nil {
		if errors.Is(err, userrepo.ErrNotFound) {
			return errNotProvisioned()
		}
		return fmt.Errorf("%s: %w", op, err)
	}

	for attempt := 1; ; attempt++ {
		if err := s.rsvps.UnrsvpFromAllSessions(ctx, u.ID); err != nil {
			s.log.ErrorContext(ctx, "failed to release rsvps", slog.String("op", op), slog.String("user_id", string(u.ID)), sl.Err(err))
			return err
		}
		err := s.repo.Delete(ctx, u.ID)
		if err == nil {
			break
		}
		switch {
		case errors.Is(err, userrepo.ErrNotFound):
			return errNotProvisioned()
		case errors.Is(err, userrepo.ErrHasRSVPs):
			if attempt >= deleteAttempts {
				return errRSVPsInFlight()
			}
			s.log.WarnContext(ctx, "rsvp created during delete, releasing again",
				slog.String("op", op),
				slog.String("user_id", string(u.ID)),
				slog.Int("attempt", attempt),
			)
		default:
			return fmt.Errorf("%s: %w", op, err)
		}
	}

	s.log.InfoContext(ctx, "user deleted", slog.String("op", op), slog.String("user_id", string(u.ID)))
	return nil
}

func toDomain(u userrepo.User) domain.User {
	return domain.User{
		ID:          u.ID,
		Subject:     u.Subject,
		DisplayName: u.DisplayName,
		Email:       u.Email,
		CreatedAt:   u.CreatedAt,
		UpdatedAt:   u.UpdatedAt,
	}
}

func validateEmail(email string) error {
	if email == "" {
		return errors.New("must be non-empty")
	}
	addr, err := mail.ParseAddress(email)
	if err != nil {
		return err
	}
	// Ensure no "Name <email@x>" format sneaks in.
	if addr.Address != email {
		return errors.New("must be a bare email address")
	}
	return nil
}
