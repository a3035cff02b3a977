package rsvprepo

import (
	"context"
	"errors"
	"testing"
	"time"

	memsessionrepo "github.com/conference-site/schedule-api/internal/adapters/memory/sessionrepo"
	"github.com/conference-site/schedule-api/internal/domain"
	"github.com/conference-site/schedule-api/internal/ports/out/rsvprepo"
	"github.com/conference-site/schedule-api/internal/ports/out/sessionrepo"
)

func TestRepo_InSessionWithoutUserLookupAcceptsAnyUser(t *testing.T) {
	t.Parallel()

	sessions := memsessionrepo.NewRepo()
	if err := sessions.Create(context.Background(), sessionrepo.Session{ID: "s1", Title: "Keynote"}); err != nil {
		t.Fatalf("Create() err=%v", err)
	}
	r := NewRepo(sessions)

	err := r.InSession(context.Background(), "s1", func(ctx context.Context, tx rsvprepo.Tx) error {
		return tx.Insert(ctx, domain.RSVP{UserID: "u1", CreatedAt: time.Unix(10, 0).UTC()})
	})
	if err != nil {
		t.Fatalf("InSession() err=%v", err)
	}

	got, err := r.ListBySession(context.Background(), "s1")
	if err != nil {
		t.Fatalf("ListBySession() err=%v", err)
	}
	// Insert stamps the Tx's session id on the record.
	if len(got) != 1 || got[0].SessionID != "s1" {
		t.Fatalf("ListBySession()=%+v, want one record for s1", got)
	}
}

func TestRepo_RolledBackUnitDoesNotAdvanceSequence(t *testing.T) {
	t.Parallel()

	sessions := memsessionrepo.NewRepo()
	if err := sessions.Create(context.Background(), sessionrepo.Session{ID: "s1", Title: "Keynote"}); err != nil {
		t.Fatalf("Create() err=%v", err)
	}
	r := NewRepo(sessions)

	boom := errors.New("boom")
	err := r.InSession(context.Background(), "s1", func(ctx context.Context, tx rsvprepo.Tx) error {
		if err := tx.Insert(ctx, domain.RSVP{UserID: "u1"}); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("InSession() err=%v, want %v", err, boom)
	}
	if r.seq != 0 {
		t.Fatalf("seq=%d after rollback, want 0", r.seq)
	}
	counts, err := r.CountsBySession(context.Background())
	if err != nil {
		t.Fatalf("CountsBySession() err=%v", err)
	}
	if len(counts) != 0 {
		t.Fatalf("CountsBySession()=%v, want empty", counts)
	}
}
