package rsvps

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	memclock "github.com/conference-site/schedule-api/internal/adapters/memory/clock"
	memevents "github.com/conference-site/schedule-api/internal/adapters/memory/events"
	memrsvprepo "github.com/conference-site/schedule-api/internal/adapters/memory/rsvprepo"
	memsessionrepo "github.com/conference-site/schedule-api/internal/adapters/memory/sessionrepo"
	memuserrepo "github.com/conference-site/schedule-api/internal/adapters/memory/userrepo"
	"github.com/conference-site/schedule-api/internal/domain"
	"github.com/conference-site/schedule-api/internal/platform/metrics"
	"github.com/conference-site/schedule-api/internal/ports/out/events"
	"github.com/conference-site/schedule-api/internal/ports/out/rsvprepo"
	"github.com/conference-site/schedule-api/internal/ports/out/sessionrepo"
	"github.com/conference-site/schedule-api/internal/ports/out/userrepo"
)

type fixture struct {
	svc      *Service
	sessions *memsessionrepo.Repo
	users    *memuserrepo.Repo
	rsvps    *memrsvprepo.Repo
	clock    *memclock.ManualClock
	events   *memevents.Recorder
	metrics  *metrics.Registry
	fake     *gofakeit.Faker
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	sessions := memsessionrepo.NewRepo()
	users := memuserrepo.NewRepo()
	rsvps := memrsvprepo.NewRepo(sessions, memrsvprepo.WithUsers(users))
	clk := memclock.NewManualClock(time.Date(2026, 5, 4, 9, 0, 0, 0, time.UTC))
	rec := memevents.NewRecorder()
	reg := metrics.New()

	return &fixture{
		svc:      NewService(rsvps, users, clk, WithPublisher(rec), WithMetrics(reg.RSVP)),
		sessions: sessions,
		users:    users,
		rsvps:    rsvps,
		clock:    clk,
		events:   rec,
		metrics:  reg,
		fake:     gofakeit.New(0),
	}
}

func (f *fixture) session(t *testing.T, capacity *int) domain.SessionID {
	t.Helper()
	id := domain.SessionID(f.fake.UUID())
	require.NoError(t, f.sessions.Create(context.Background(), sessionrepo.Session{
		ID:          id,
		Title:       f.fake.BookTitle(),
		MaxCapacity: capacity,
		CreatedAt:   f.clock.Now(),
		UpdatedAt:   f.clock.Now(),
	}))
	return id
}

func (f *fixture) user(t *testing.T) domain.UserID {
	t.Helper()
	id := domain.UserID(f.fake.UUID())
	require.NoError(t, f.users.Create(context.Background(), userrepo.User{
		ID:          id,
		Subject:     domain.SubjectID(f.fake.UUID()),
		DisplayName: f.fake.Name(),
		Email:       f.fake.Email(),
		CreatedAt:   f.clock.Now(),
		UpdatedAt:   f.clock.Now(),
	}))
	return id
}

// rsvp advances the clock so every record gets a distinct CreatedAt.
func (f *fixture) rsvp(t *testing.T, sessionID domain.SessionID, userID domain.UserID) domain.RSVP {
	t.Helper()
	f.clock.Advance(time.Second)
	r, err := f.svc.Rsvp(context.Background(), sessionID, userID)
	require.NoError(t, err)
	return r
}

func (f *fixture) states(t *testing.T, sessionID domain.SessionID) map[domain.UserID]domain.RSVPState {
	t.Helper()
	recs, err := f.rsvps.ListBySession(context.Background(), sessionID)
	require.NoError(t, err)
	out := make(map[domain.UserID]domain.RSVPState, len(recs))
	for _, r := range recs {
		out[r.UserID] = r.State()
	}
	return out
}

func intPtr(v int) *int { return &v }

func requireAppError(t *testing.T, err error, status int, code string) {
	t.Helper()
	var appErr *Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, status, appErr.Status)
	assert.Equal(t, code, appErr.Code)
}

func TestRsvp_IsIdempotent(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	sessionID := f.session(t, intPtr(5))
	u := f.user(t)

	first := f.rsvp(t, sessionID, u)
	second := f.rsvp(t, sessionID, u)

	assert.Equal(t, first, second)
	assert.Len(t, f.states(t, sessionID), 1)
	assert.Len(t, f.events.OfType(events.TypeRSVPCreated), 1, "repeat rsvp must not announce a second creation")
}

func TestRsvp_RespectsCapacity(t *testing.T) {
	t.Parallel()

	for _, tc := range []struct{ capacity, extra int }{{1, 0}, {2, 3}, {5, 1}} {
		tc := tc
		t.Run(fmt.Sprintf("cap=%d,extra=%d", tc.capacity, tc.extra), func(t *testing.T) {
			t.Parallel()
			f := newFixture(t)
			sessionID := f.session(t, intPtr(tc.capacity))

			for i := 0; i < tc.capacity+tc.extra; i++ {
				f.rsvp(t, sessionID, f.user(t))
			}

			going, waitlisted := 0, 0
			for _, st := range f.states(t, sessionID) {
				switch st {
				case domain.RSVPStateGoing:
					going++
				case domain.RSVPStateWaitlisted:
					waitlisted++
				}
			}
			assert.Equal(t, tc.capacity, going)
			assert.Equal(t, tc.extra, waitlisted)
		})
	}
}

func TestUnrsvp_PromotesWaitlistHeadFIFO(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	sessionID := f.session(t, intPtr(2))
	a, b, c, d := f.user(t), f.user(t), f.user(t), f.user(t)
	f.rsvp(t, sessionID, a)
	f.rsvp(t, sessionID, b)
	require.True(t, f.rsvp(t, sessionID, c).OnWaitlist)
	require.True(t, f.rsvp(t, sessionID, d).OnWaitlist)

	removed, err := f.svc.Unrsvp(context.Background(), sessionID, a)
	require.NoError(t, err)
	require.NotNil(t, removed)
	assert.Equal(t, a, removed.UserID)

	st := f.states(t, sessionID)
	assert.Equal(t, domain.RSVPStateGoing, st[c])
	assert.Equal(t, domain.RSVPStateWaitlisted, st[d])
	assert.NotContains(t, st, a)

	promoted := f.events.OfType(events.TypeRSVPPromoted)
	require.Len(t, promoted, 1)
	assert.Equal(t, c, promoted[0].UserID)
	assert.False(t, promoted[0].OnWaitlist)
}

func TestUnrsvp_WaitlistedDepartureDoesNotPromote(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	sessionID := f.session(t, intPtr(2))
	a, b, c, d := f.user(t), f.user(t), f.user(t), f.user(t)
	for _, u := range []domain.UserID{a, b, c, d} {
		f.rsvp(t, sessionID, u)
	}

	_, err := f.svc.Unrsvp(context.Background(), sessionID, d)
	require.NoError(t, err)

	st := f.states(t, sessionID)
	assert.Equal(t, domain.RSVPStateGoing, st[a])
	assert.Equal(t, domain.RSVPStateGoing, st[b])
	assert.Equal(t, domain.RSVPStateWaitlisted, st[c])
	assert.Empty(t, f.events.OfType(events.TypeRSVPPromoted))
}

func TestUnrsvp_AbsentIsNoop(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	sessionID := f.session(t, nil)

	removed, err := f.svc.Unrsvp(context.Background(), sessionID, f.user(t))
	require.NoError(t, err)
	assert.Nil(t, removed)
	assert.Empty(t, f.events.Events())
}

func TestToggle_RoundTrip(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	sessionID := f.session(t, nil)
	u := f.user(t)

	on, err := f.svc.Toggle(context.Background(), sessionID, u)
	require.NoError(t, err)
	assert.False(t, on.Removed)
	assert.Equal(t, domain.RSVPStateGoing, on.State())

	off, err := f.svc.Toggle(context.Background(), sessionID, u)
	require.NoError(t, err)
	assert.True(t, off.Removed)
	assert.Equal(t, domain.RSVPStateAbsent, off.State())
	assert.Equal(t, u, off.RSVP.UserID)

	assert.Empty(t, f.states(t, sessionID))
}

func TestToggle_OffPromotesFromWaitlist(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	sessionID := f.session(t, intPtr(1))
	a, b := f.user(t), f.user(t)
	f.rsvp(t, sessionID, a)
	f.rsvp(t, sessionID, b)

	res, err := f.svc.Toggle(context.Background(), sessionID, a)
	require.NoError(t, err)
	require.True(t, res.Removed)
	assert.Equal(t, domain.RSVPStateGoing, f.states(t, sessionID)[b])
}

func TestRsvp_UncappedNeverWaitlists(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	sessionID := f.session(t, nil)

	for i := 0; i < 50; i++ {
		r := f.rsvp(t, sessionID, f.user(t))
		require.False(t, r.OnWaitlist, "rsvp #%d was waitlisted", i)
	}
}

func TestScenario_CapacityOne(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	sessionID := f.session(t, intPtr(1))
	a, b := f.user(t), f.user(t)

	assert.Equal(t, domain.RSVPStateGoing, f.rsvp(t, sessionID, a).State())
	assert.Equal(t, domain.RSVPStateWaitlisted, f.rsvp(t, sessionID, b).State())

	_, err := f.svc.Unrsvp(context.Background(), sessionID, a)
	require.NoError(t, err)

	assert.Equal(t, map[domain.UserID]domain.RSVPState{b: domain.RSVPStateGoing}, f.states(t, sessionID))
}

func TestScenario_CapacityZeroAlwaysFull(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	sessionID := f.session(t, intPtr(0))

	r := f.rsvp(t, sessionID, f.user(t))
	assert.True(t, r.OnWaitlist)
}

func TestRsvp_ConcurrentCallersNeverExceedCapacity(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	const capacity, callers = 4, 40
	sessionID := f.session(t, intPtr(capacity))
	users := make([]domain.UserID, callers)
	for i := range users {
		users[i] = f.user(t)
	}

	var wg sync.WaitGroup
	errs := make(chan error, callers)
	for _, u := range users {
		wg.Add(1)
		go func(u domain.UserID) {
			defer wg.Done()
			_, err := f.svc.Rsvp(context.Background(), sessionID, u)
			errs <- err
		}(u)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	going := 0
	for _, st := range f.states(t, sessionID) {
		if st == domain.RSVPStateGoing {
			going++
		}
	}
	assert.Equal(t, capacity, going)
}

func TestRsvp_Errors(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	sessionID := f.session(t, nil)

	_, err := f.svc.Rsvp(context.Background(), "", f.user(t))
	requireAppError(t, err, 422, "VALIDATION_ERROR")

	_, err = f.svc.Rsvp(context.Background(), sessionID, "")
	requireAppError(t, err, 422, "VALIDATION_ERROR")

	_, err = f.svc.Rsvp(context.Background(), domain.SessionID(f.fake.UUID()), f.user(t))
	requireAppError(t, err, 404, "SESSION_NOT_FOUND")

	_, err = f.svc.Rsvp(context.Background(), sessionID, domain.UserID(f.fake.UUID()))
	requireAppError(t, err, 404, "USER_NOT_FOUND")
}

type failingRepo struct {
	rsvprepo.Repository
	err error
}

func (r failingRepo) InSession(context.Context, domain.SessionID, func(context.Context, rsvprepo.Tx) error) error {
	return r.err
}

func TestRsvp_StoreFailureIsWrapped(t *testing.T) {
	t.Parallel()
	boom := errors.New("connection reset")
	svc := NewService(failingRepo{err: boom}, memuserrepo.NewRepo(), memclock.NewManualClock(time.Unix(0, 0)))

	_, err := svc.Rsvp(context.Background(), "s1", "u1")
	require.ErrorIs(t, err, boom)
	var appErr *Error
	assert.False(t, errors.As(err, &appErr))
}

func TestPublishFailureDoesNotUndoCommit(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.events.Err = errors.New("broker down")
	sessionID := f.session(t, nil)
	u := f.user(t)

	r, err := f.svc.Rsvp(context.Background(), sessionID, u)
	require.NoError(t, err)
	assert.Equal(t, domain.RSVPStateGoing, r.State())
	assert.Contains(t, f.states(t, sessionID), u)
}

func TestUnrsvpFromAllSessions(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	s1 := f.session(t, intPtr(1))
	s2 := f.session(t, nil)
	leaver, waiting := f.user(t), f.user(t)
	f.rsvp(t, s1, leaver)
	f.rsvp(t, s1, waiting)
	f.rsvp(t, s2, leaver)

	require.NoError(t, f.svc.UnrsvpFromAllSessions(context.Background(), leaver))

	recs, err := f.svc.GetForUser(context.Background(), leaver)
	require.NoError(t, err)
	assert.Empty(t, recs)
	assert.Equal(t, domain.RSVPStateGoing, f.states(t, s1)[waiting])
}

func TestSetCapacity(t *testing.T) {
	t.Parallel()

	t.Run("raise promotes one per opened slot", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		sessionID := f.session(t, intPtr(1))
		a, b, c, d := f.user(t), f.user(t), f.user(t), f.user(t)
		for _, u := range []domain.UserID{a, b, c, d} {
			f.rsvp(t, sessionID, u)
		}

		promoted, err := f.svc.SetCapacity(context.Background(), sessionID, intPtr(3))
		require.NoError(t, err)
		assert.Equal(t, []domain.UserID{b, c}, promoted)
		assert.Equal(t, domain.RSVPStateWaitlisted, f.states(t, sessionID)[d])

		s, err := f.sessions.GetByID(context.Background(), sessionID)
		require.NoError(t, err)
		require.NotNil(t, s.MaxCapacity)
		assert.Equal(t, 3, *s.MaxCapacity)
	})

	t.Run("uncap promotes everyone", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		sessionID := f.session(t, intPtr(0))
		a, b := f.user(t), f.user(t)
		f.rsvp(t, sessionID, a)
		f.rsvp(t, sessionID, b)

		promoted, err := f.svc.SetCapacity(context.Background(), sessionID, nil)
		require.NoError(t, err)
		assert.Equal(t, []domain.UserID{a, b}, promoted)
	})

	t.Run("below attendance is rejected", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		sessionID := f.session(t, intPtr(3))
		f.rsvp(t, sessionID, f.user(t))
		f.rsvp(t, sessionID, f.user(t))

		_, err := f.svc.SetCapacity(context.Background(), sessionID, intPtr(1))
		requireAppError(t, err, 409, "CAPACITY_BELOW_ATTENDANCE")

		s, err := f.sessions.GetByID(context.Background(), sessionID)
		require.NoError(t, err)
		assert.Equal(t, 3, *s.MaxCapacity)
	})

	t.Run("negative is invalid", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		_, err := f.svc.SetCapacity(context.Background(), f.session(t, nil), intPtr(-1))
		requireAppError(t, err, 422, "VALIDATION_ERROR")
	})
}

func TestGetForSession_JoinsDisplayNames(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	sessionID := f.session(t, intPtr(1))
	a, b := f.user(t), f.user(t)
	f.rsvp(t, sessionID, a)
	f.rsvp(t, sessionID, b)

	ua, err := f.users.GetByID(context.Background(), a)
	require.NoError(t, err)
	require.NoError(t, f.users.Delete(context.Background(), b))

	got, err := f.svc.GetForSession(context.Background(), sessionID)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, a, got[0].UserID)
	assert.Equal(t, ua.DisplayName, got[0].DisplayName)
	assert.False(t, got[0].OnWaitlist)
	assert.Equal(t, b, got[1].UserID)
	assert.Empty(t, got[1].DisplayName)
	assert.True(t, got[1].OnWaitlist)
}

func TestCountsBySession(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	s1 := f.session(t, intPtr(1))
	s2 := f.session(t, nil)
	f.rsvp(t, s1, f.user(t))
	f.rsvp(t, s1, f.user(t))
	f.session(t, nil)

	counts, err := f.svc.CountsBySession(context.Background())
	require.NoError(t, err)
	assert.Equal(t, map[domain.SessionID]int{s1: 2}, counts)
	assert.NotContains(t, counts, s2)
}
