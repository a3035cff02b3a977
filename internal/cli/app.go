package cli

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/spf13/cobra"

	"github.com/conference-site/schedule-api/internal/adapters/backends"
	"github.com/conference-site/schedule-api/internal/app/rsvps"
	"github.com/conference-site/schedule-api/internal/app/sessions"
	"github.com/conference-site/schedule-api/internal/app/users"
	"github.com/conference-site/schedule-api/internal/domain"
	"github.com/conference-site/schedule-api/internal/platform/config"
	"github.com/conference-site/schedule-api/internal/platform/logger"
)

// services is one command's view of the application, opened against the selected backend.
type services struct {
	stores   *backends.Stores
	users    *users.Service
	sessions *sessions.Service
	rsvps    *rsvps.Service
}

func (s *services) Close() { s.stores.Close() }

func (d *deps) openServices(ctx context.Context, opts *RootOptions, f *OutputFormatter) (*services, error) {
	stores, err := d.open(ctx, opts.backendConfig())
	if err != nil {
		_ = f.Error("STORE_UNAVAILABLE", err.Error(), nil)
		return nil, WrapExitError(ExitCommandError, "open store", err)
	}
	f.VerboseLog("opened %s store", opts.Backend)

	log := logger.Discard()
	if opts.Verbose {
		log = logger.NewWithWriter(config.EnvLocal, f.GetErrWriter())
	}

	rsvpSvc := rsvps.NewService(stores.RSVPs, stores.Users, d.clock, rsvps.WithLogger(log))
	sessionSvc := sessions.NewService(stores.Sessions, rsvpSvc, d.clock, log)
	userSvc := users.NewService(stores.Users, rsvpSvc, d.clock, log)
	if d.ids != nil {
		sessionSvc.SetNewSessionIDForTest(d.ids.session)
		userSvc.SetNewUserIDForTest(d.ids.user)
	}

	return &services{stores: stores, users: userSvc, sessions: sessionSvc, rsvps: rsvpSvc}, nil
}

func newFormatter(opts *RootOptions, cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}
}

// fail reports err through f and converts it into an ExitError. Application errors
// keep their code; anything else is an internal failure.
func fail(f *OutputFormatter, err error) error {
	code, message, details := "INTERNAL", err.Error(), map[string]any(nil)

	var (
		rErr *rsvps.Error
		sErr *sessions.Error
		uErr *users.Error
	)
	switch {
	case errors.As(err, &rErr):
		code, message, details = rErr.Code, rErr.Message, rErr.Details
	case errors.As(err, &sErr):
		code, message, details = sErr.Code, sErr.Message, sErr.Details
	case errors.As(err, &uErr):
		code, message, details = uErr.Code, uErr.Message, uErr.Details
	}

	// A nil map boxed in an interface would still be emitted as "details": null.
	if details == nil {
		_ = f.Error(code, message, nil)
	} else {
		_ = f.Error(code, message, details)
	}
	return WrapExitError(ExitFailure, code, err)
}

// idSource hands out sequential UUID-shaped ids.
type idSource struct {
	mu       sync.Mutex
	sessions int
	users    int
}

func (s *idSource) session() domain.SessionID {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions++
	return domain.SessionID(fmt.Sprintf("00000000-0000-4000-8000-%012d", s.sessions))
}

func (s *idSource) user() domain.UserID {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users++
	return domain.UserID(fmt.Sprintf("00000000-0000-4000-9000-%012d", s.users))
}
