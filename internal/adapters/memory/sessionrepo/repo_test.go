package sessionrepo

import (
	"context"
	"testing"
	"time"

	"github.com/conference-site/schedule-api/internal/ports/out/sessionrepo"
)

func TestRepo_GetByIDReturnsCopy(t *testing.T) {
	t.Parallel()

	r := NewRepo()
	capacity := 10
	if err := r.Create(context.Background(), sessionrepo.Session{ID: "s1", Title: "Keynote", MaxCapacity: &capacity}); err != nil {
		t.Fatalf("Create() err=%v", err)
	}

	got, err := r.GetByID(context.Background(), "s1")
	if err != nil {
		t.Fatalf("GetByID() err=%v", err)
	}
	*got.MaxCapacity = 99

	again, err := r.GetByID(context.Background(), "s1")
	if err != nil {
		t.Fatalf("GetByID() err=%v", err)
	}
	if *again.MaxCapacity != 10 {
		t.Fatalf("MaxCapacity=%d after caller mutation, want 10", *again.MaxCapacity)
	}
}

func TestRepo_SetMaxCapacity(t *testing.T) {
	t.Parallel()

	r := NewRepo()
	created := time.Unix(100, 0).UTC()
	if err := r.Create(context.Background(), sessionrepo.Session{ID: "s1", Title: "Keynote", CreatedAt: created}); err != nil {
		t.Fatalf("Create() err=%v", err)
	}
	five := 5
	if err := r.SetMaxCapacity(context.Background(), "s1", &five); err != nil {
		t.Fatalf("SetMaxCapacity() err=%v", err)
	}
	got, err := r.GetByID(context.Background(), "s1")
	if err != nil {
		t.Fatalf("GetByID() err=%v", err)
	}
	if got.MaxCapacity == nil || *got.MaxCapacity != 5 {
		t.Fatalf("MaxCapacity=%v, want 5", got.MaxCapacity)
	}
	if err := r.SetMaxCapacity(context.Background(), "missing", nil); err != sessionrepo.ErrNotFound {
		t.Fatalf("SetMaxCapacity(missing) err=%v, want %v", err, sessionrepo.ErrNotFound)
	}
}
