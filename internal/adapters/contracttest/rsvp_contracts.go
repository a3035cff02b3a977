package contracttest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/conference-site/schedule-api/internal/domain"
	rsvprepoport "github.com/conference-site/schedule-api/internal/ports/out/rsvprepo"
	sessionrepoport "github.com/conference-site/schedule-api/internal/ports/out/sessionrepo"
	userrepoport "github.com/conference-site/schedule-api/internal/ports/out/userrepo"
)

// Stores bundles the repositories an RSVP backend needs for seeding.
// All three must share the same underlying storage.
type Stores struct {
	Users    userrepoport.Repository
	Sessions sessionrepoport.Repository
	RSVPs    rsvprepoport.Repository
}

type StoresFactory func(t *testing.T) (Stores, CleanupFunc)

var errRollback = errors.New("contracttest: rollback")

// RunRSVPRepo exercises the atomic-unit contract of rsvprepo.Repository.
func RunRSVPRepo(t *testing.T, newStores StoresFactory) {
	t.Helper()

	stores, cleanup := newStores(t)
	if cleanup != nil {
		t.Cleanup(cleanup)
	}

	t.Run("unknown session", func(t *testing.T) {
		called := false
		err := stores.RSVPs.InSession(context.Background(), domain.SessionID(uuid.NewString()), func(ctx context.Context, tx rsvprepoport.Tx) error {
			called = true
			return nil
		})
		if !errors.Is(err, rsvprepoport.ErrSessionNotFound) {
			t.Fatalf("InSession(unknown) err=%v, want %v", err, rsvprepoport.ErrSessionNotFound)
		}
		if called {
			t.Fatalf("fn called for unknown session")
		}
	})

	t.Run("insert get delete", func(t *testing.T) {
		ctx := context.Background()
		sessionID := seedSession(t, stores, intPtr(2))
		alice := seedUser(t, stores)
		now := time.Unix(5000, 0).UTC()

		err := stores.RSVPs.InSession(ctx, sessionID, func(ctx context.Context, tx rsvprepoport.Tx) error {
			if tx.SessionID() != sessionID {
				return fmt.Errorf("SessionID()=%q", tx.SessionID())
			}
			if c := tx.Capacity(); c == nil || *c != 2 {
				return fmt.Errorf("Capacity()=%v, want 2", c)
			}
			if _, err := tx.Get(ctx, alice); !errors.Is(err, rsvprepoport.ErrNotFound) {
				return fmt.Errorf("Get(absent) err=%v", err)
			}
			if err := tx.Insert(ctx, domain.RSVP{SessionID: sessionID, UserID: alice, CreatedAt: now}); err != nil {
				return fmt.Errorf("Insert: %w", err)
			}
			if err := tx.Insert(ctx, domain.RSVP{SessionID: sessionID, UserID: alice, CreatedAt: now}); !errors.Is(err, rsvprepoport.ErrAlreadyExists) {
				return fmt.Errorf("Insert(dup) err=%v, want ErrAlreadyExists", err)
			}
			got, err := tx.Get(ctx, alice)
			if err != nil {
				return fmt.Errorf("Get: %w", err)
			}
			if got.OnWaitlist || !got.CreatedAt.Equal(now) {
				return fmt.Errorf("Get()=%+v", got)
			}
			n, err := tx.CountGoing(ctx)
			if err != nil || n != 1 {
				return fmt.Errorf("CountGoing()=%d err=%v, want 1", n, err)
			}
			return nil
		})
		if err != nil {
			t.Fatalf("InSession: %v", err)
		}

		// Committed and visible to the next unit.
		err = stores.RSVPs.InSession(ctx, sessionID, func(ctx context.Context, tx rsvprepoport.Tx) error {
			removed, err := tx.Delete(ctx, alice)
			if err != nil {
				return fmt.Errorf("Delete: %w", err)
			}
			if removed.UserID != alice || removed.OnWaitlist {
				return fmt.Errorf("Delete()=%+v", removed)
			}
			if _, err := tx.Delete(ctx, alice); !errors.Is(err, rsvprepoport.ErrNotFound) {
				return fmt.Errorf("Delete(again) err=%v, want ErrNotFound", err)
			}
			return nil
		})
		if err != nil {
			t.Fatalf("InSession(delete): %v", err)
		}
		list, err := stores.RSVPs.ListBySession(ctx, sessionID)
		if err != nil || len(list) != 0 {
			t.Fatalf("ListBySession after delete len=%d err=%v, want 0", len(list), err)
		}
	})

	t.Run("unknown user", func(t *testing.T) {
		ctx := context.Background()
		sessionID := seedSession(t, stores, nil)
		err := stores.RSVPs.InSession(ctx, sessionID, func(ctx context.Context, tx rsvprepoport.Tx) error {
			return tx.Insert(ctx, domain.RSVP{SessionID: sessionID, UserID: domain.UserID(uuid.NewString()), CreatedAt: time.Unix(1, 0).UTC()})
		})
		if !errors.Is(err, rsvprepoport.ErrUserNotFound) {
			t.Fatalf("Insert(unknown user) err=%v, want %v", err, rsvprepoport.ErrUserNotFound)
		}
	})

	t.Run("user with records is not deleted", func(t *testing.T) {
		ctx := context.Background()
		sessionID := seedSession(t, stores, intPtr(1))
		alice := seedUser(t, stores)

		err := stores.RSVPs.InSession(ctx, sessionID, func(ctx context.Context, tx rsvprepoport.Tx) error {
			return tx.Insert(ctx, domain.RSVP{SessionID: sessionID, UserID: alice, CreatedAt: time.Unix(20, 0).UTC()})
		})
		if err != nil {
			t.Fatalf("InSession(insert): %v", err)
		}

		if err := stores.Users.Delete(ctx, alice); !errors.Is(err, userrepoport.ErrHasRSVPs) {
			t.Fatalf("Users.Delete(with rsvp) err=%v, want %v", err, userrepoport.ErrHasRSVPs)
		}
		if _, err := stores.Users.GetByID(ctx, alice); err != nil {
			t.Fatalf("GetByID after refused delete err=%v", err)
		}
		list, err := stores.RSVPs.ListByUser(ctx, alice)
		if err != nil || len(list) != 1 || list[0].OnWaitlist {
			t.Fatalf("ListByUser after refused delete=%+v err=%v, want one going record", list, err)
		}

		err = stores.RSVPs.InSession(ctx, sessionID, func(ctx context.Context, tx rsvprepoport.Tx) error {
			_, err := tx.Delete(ctx, alice)
			return err
		})
		if err != nil {
			t.Fatalf("InSession(delete): %v", err)
		}
		if err := stores.Users.Delete(ctx, alice); err != nil {
			t.Fatalf("Users.Delete(released) err=%v", err)
		}
	})

	t.Run("rollback on error", func(t *testing.T) {
		ctx := context.Background()
		sessionID := seedSession(t, stores, intPtr(1))
		alice := seedUser(t, stores)

		err := stores.RSVPs.InSession(ctx, sessionID, func(ctx context.Context, tx rsvprepoport.Tx) error {
			if err := tx.Insert(ctx, domain.RSVP{SessionID: sessionID, UserID: alice, CreatedAt: time.Unix(10, 0).UTC()}); err != nil {
				return err
			}
			if err := tx.SetCapacity(ctx, intPtr(5)); err != nil {
				return err
			}
			return errRollback
		})
		if !errors.Is(err, errRollback) {
			t.Fatalf("InSession err=%v, want fn error returned unchanged", err)
		}

		list, err := stores.RSVPs.ListBySession(ctx, sessionID)
		if err != nil {
			t.Fatalf("ListBySession: %v", err)
		}
		if len(list) != 0 {
			t.Fatalf("rolled back insert is visible: %+v", list)
		}
		s, err := stores.Sessions.GetByID(ctx, sessionID)
		if err != nil {
			t.Fatalf("GetByID: %v", err)
		}
		if s.MaxCapacity == nil || *s.MaxCapacity != 1 {
			t.Fatalf("rolled back capacity is visible: %v", s.MaxCapacity)
		}
	})

	t.Run("waitlist head is FIFO", func(t *testing.T) {
		ctx := context.Background()
		sessionID := seedSession(t, stores, intPtr(0))
		a, b, c := seedUser(t, stores), seedUser(t, stores), seedUser(t, stores)
		early := time.Unix(100, 0).UTC()
		late := time.Unix(200, 0).UTC()

		err := stores.RSVPs.InSession(ctx, sessionID, func(ctx context.Context, tx rsvprepoport.Tx) error {
			if _, err := tx.WaitlistHead(ctx); !errors.Is(err, rsvprepoport.ErrNotFound) {
				return fmt.Errorf("WaitlistHead(empty) err=%v, want ErrNotFound", err)
			}
			// c is inserted first but created later; a and b share a timestamp.
			for _, r := range []domain.RSVP{
				{SessionID: sessionID, UserID: c, OnWaitlist: true, CreatedAt: late},
				{SessionID: sessionID, UserID: a, OnWaitlist: true, CreatedAt: early},
				{SessionID: sessionID, UserID: b, OnWaitlist: true, CreatedAt: early},
			} {
				if err := tx.Insert(ctx, r); err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			t.Fatalf("seed waitlist: %v", err)
		}

		wantOrder := []domain.UserID{a, b, c}
		for i, want := range wantOrder {
			err := stores.RSVPs.InSession(ctx, sessionID, func(ctx context.Context, tx rsvprepoport.Tx) error {
				head, err := tx.WaitlistHead(ctx)
				if err != nil {
					return err
				}
				if head.UserID != want {
					return fmt.Errorf("WaitlistHead()=%q, want %q", head.UserID, want)
				}
				promoted, err := tx.SetWaitlisted(ctx, head.UserID, false)
				if err != nil {
					return err
				}
				if promoted.OnWaitlist {
					return fmt.Errorf("SetWaitlisted() returned OnWaitlist=true")
				}
				n, err := tx.CountGoing(ctx)
				if err != nil {
					return err
				}
				if n != i+1 {
					return fmt.Errorf("CountGoing()=%d, want %d", n, i+1)
				}
				return nil
			})
			if err != nil {
				t.Fatalf("promotion %d: %v", i, err)
			}
		}

		list, err := stores.RSVPs.ListBySession(ctx, sessionID)
		if err != nil {
			t.Fatalf("ListBySession: %v", err)
		}
		if len(list) != 3 || list[0].UserID != a || list[1].UserID != b || list[2].UserID != c {
			t.Fatalf("ListBySession order=%+v, want [a b c]", list)
		}
	})

	t.Run("set capacity", func(t *testing.T) {
		ctx := context.Background()
		sessionID := seedSession(t, stores, intPtr(3))

		err := stores.RSVPs.InSession(ctx, sessionID, func(ctx context.Context, tx rsvprepoport.Tx) error {
			if err := tx.SetCapacity(ctx, nil); err != nil {
				return err
			}
			if tx.Capacity() != nil {
				return fmt.Errorf("Capacity() after SetCapacity(nil)=%v", *tx.Capacity())
			}
			return nil
		})
		if err != nil {
			t.Fatalf("InSession: %v", err)
		}
		s, err := stores.Sessions.GetByID(ctx, sessionID)
		if err != nil {
			t.Fatalf("GetByID: %v", err)
		}
		if s.MaxCapacity != nil {
			t.Fatalf("MaxCapacity=%v, want nil", *s.MaxCapacity)
		}

		err = stores.RSVPs.InSession(ctx, sessionID, func(ctx context.Context, tx rsvprepoport.Tx) error {
			return tx.SetCapacity(ctx, intPtr(7))
		})
		if err != nil {
			t.Fatalf("InSession: %v", err)
		}
		err = stores.RSVPs.InSession(ctx, sessionID, func(ctx context.Context, tx rsvprepoport.Tx) error {
			if c := tx.Capacity(); c == nil || *c != 7 {
				return fmt.Errorf("Capacity()=%v, want 7", c)
			}
			return nil
		})
		if err != nil {
			t.Fatalf("InSession: %v", err)
		}
	})

	t.Run("lists and counts", func(t *testing.T) {
		ctx := context.Background()
		s1 := seedSession(t, stores, nil)
		s2 := seedSession(t, stores, intPtr(1))
		u1, u2 := seedUser(t, stores), seedUser(t, stores)

		insert := func(sessionID domain.SessionID, userID domain.UserID, onWaitlist bool, at int64) {
			t.Helper()
			err := stores.RSVPs.InSession(ctx, sessionID, func(ctx context.Context, tx rsvprepoport.Tx) error {
				return tx.Insert(ctx, domain.RSVP{SessionID: sessionID, UserID: userID, OnWaitlist: onWaitlist, CreatedAt: time.Unix(at, 0).UTC()})
			})
			if err != nil {
				t.Fatalf("insert %s/%s: %v", sessionID, userID, err)
			}
		}
		insert(s2, u1, false, 20)
		insert(s1, u1, false, 30)
		insert(s2, u2, true, 40)

		byUser, err := stores.RSVPs.ListByUser(ctx, u1)
		if err != nil {
			t.Fatalf("ListByUser: %v", err)
		}
		if len(byUser) != 2 || byUser[0].SessionID != s2 || byUser[1].SessionID != s1 {
			t.Fatalf("ListByUser=%+v, want [s2 s1]", byUser)
		}

		counts, err := stores.RSVPs.CountsBySession(ctx)
		if err != nil {
			t.Fatalf("CountsBySession: %v", err)
		}
		if counts[s1] != 1 || counts[s2] != 2 {
			t.Fatalf("CountsBySession s1=%d s2=%d, want 1 and 2", counts[s1], counts[s2])
		}
		empty := seedSession(t, stores, nil)
		counts, err = stores.RSVPs.CountsBySession(ctx)
		if err != nil {
			t.Fatalf("CountsBySession: %v", err)
		}
		if _, ok := counts[empty]; ok {
			t.Fatalf("CountsBySession includes a session without records")
		}
	})

	t.Run("units are serialized per session", func(t *testing.T) {
		ctx := context.Background()
		const capacity = 3
		const callers = 12
		sessionID := seedSession(t, stores, intPtr(capacity))
		users := make([]domain.UserID, callers)
		for i := range users {
			users[i] = seedUser(t, stores)
		}

		var wg sync.WaitGroup
		errs := make(chan error, callers)
		for i, userID := range users {
			wg.Add(1)
			go func(i int, userID domain.UserID) {
				defer wg.Done()
				errs <- stores.RSVPs.InSession(ctx, sessionID, func(ctx context.Context, tx rsvprepoport.Tx) error {
					n, err := tx.CountGoing(ctx)
					if err != nil {
						return err
					}
					return tx.Insert(ctx, domain.RSVP{
						SessionID:  sessionID,
						UserID:     userID,
						OnWaitlist: domain.AtCapacity(tx.Capacity(), n),
						CreatedAt:  time.Unix(int64(1000+i), 0).UTC(),
					})
				})
			}(i, userID)
		}
		wg.Wait()
		close(errs)
		for err := range errs {
			if err != nil {
				t.Fatalf("concurrent InSession: %v", err)
			}
		}

		list, err := stores.RSVPs.ListBySession(ctx, sessionID)
		if err != nil {
			t.Fatalf("ListBySession: %v", err)
		}
		going := 0
		for _, r := range list {
			if !r.OnWaitlist {
				going++
			}
		}
		if len(list) != callers || going != capacity {
			t.Fatalf("records=%d going=%d, want %d and %d", len(list), going, callers, capacity)
		}
	})
}

func seedSession(t *testing.T, stores Stores, capacity *int) domain.SessionID {
	t.Helper()
	id := domain.SessionID(uuid.NewString())
	now := time.Unix(1000, 0).UTC()
	if err := stores.Sessions.Create(context.Background(), sessionrepoport.Session{
		ID:          id,
		Title:       "Session " + string(id[:8]),
		MaxCapacity: capacity,
		CreatedAt:   now,
		UpdatedAt:   now,
	}); err != nil {
		t.Fatalf("seed session: %v", err)
	}
	return id
}

func seedUser(t *testing.T, stores Stores) domain.UserID {
	t.Helper()
	id := domain.UserID(uuid.NewString())
	now := time.Unix(1000, 0).UTC()
	if err := stores.Users.Create(context.Background(), userrepoport.User{
		ID:          id,
		Subject:     domain.SubjectID("sub-" + string(id)),
		DisplayName: "User " + string(id[:8]),
		Email:       string(id[:8]) + "@example.com",
		CreatedAt:   now,
		UpdatedAt:   now,
	}); err != nil {
		t.Fatalf("seed user: %v", err)
	}
	return id
}

func intPtr(v int) *int { return &v }
