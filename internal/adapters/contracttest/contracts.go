package contracttest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/conference-site/schedule-api/internal/domain"
	idempotencyport "github.com/conference-site/schedule-api/internal/ports/out/idempotency"
	sessionrepoport "github.com/conference-site/schedule-api/internal/ports/out/sessionrepo"
	userrepoport "github.com/conference-site/schedule-api/internal/ports/out/userrepo"
)

type CleanupFunc = func()

type UserRepoFactory func(t *testing.T) (userrepoport.Repository, CleanupFunc)
type SessionRepoFactory func(t *testing.T) (sessionrepoport.Repository, CleanupFunc)
type IdemStoreFactory func(t *testing.T) (idempotencyport.Store, CleanupFunc)

func RunIdempotencyStore(t *testing.T, newStore IdemStoreFactory) {
	t.Helper()
	ctx := context.Background()

	store, cleanup := newStore(t)
	if cleanup != nil {
		t.Cleanup(cleanup)
	}

	fp := idempotencyport.Fingerprint{
		Key:     idempotencyport.Key("k-" + uuid.NewString()),
		Subject: domain.SubjectID("sub-1"),
		Method:  "POST",
		Route:   "/sessions/{sessionId}/rsvp/toggle",
	}
	if _, ok, err := store.Get(ctx, fp); err != nil || ok {
		t.Fatalf("Get(missing) ok=%v err=%v, want ok=false err=nil", ok, err)
	}

	rec := idempotencyport.Record{
		BodyHash:    "hash-abc",
		StatusCode:  200,
		ContentType: "application/json",
		Body:        []byte(`{"state":"GOING"}`),
		CreatedAt:   time.Unix(123, 0).UTC(),
	}
	if err := store.Put(ctx, fp, rec); err != nil {
		t.Fatalf("Put: %v", err)
	}
	got, ok, err := store.Get(ctx, fp)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !ok {
		t.Fatalf("expected ok=true")
	}
	if got.BodyHash != "hash-abc" || got.StatusCode != 200 || got.ContentType != "application/json" || string(got.Body) != `{"state":"GOING"}` {
		t.Fatalf("unexpected record: %+v", got)
	}
	if !got.CreatedAt.Equal(rec.CreatedAt) {
		t.Fatalf("CreatedAt=%v, want %v", got.CreatedAt, rec.CreatedAt)
	}

	// A different subject never sees another subject's record.
	other := fp
	other.Subject = "sub-2"
	if _, ok, err := store.Get(ctx, other); err != nil || ok {
		t.Fatalf("Get(other subject) ok=%v err=%v, want ok=false", ok, err)
	}

	// Overwrite semantics.
	rec2 := rec
	rec2.Body = []byte(`{"removed":true}`)
	if err := store.Put(ctx, fp, rec2); err != nil {
		t.Fatalf("Put overwrite: %v", err)
	}
	got, ok, err = store.Get(ctx, fp)
	if err != nil || !ok || string(got.Body) != `{"removed":true}` {
		t.Fatalf("expected overwritten record, got ok=%v err=%v body=%q", ok, err, string(got.Body))
	}
}

func RunUserRepo(t *testing.T, newRepo UserRepoFactory) {
	t.Helper()
	ctx := context.Background()

	repo, cleanup := newRepo(t)
	if cleanup != nil {
		t.Cleanup(cleanup)
	}

	now := time.Unix(1000, 0).UTC()
	aID := domain.UserID(uuid.NewString())
	sub := domain.SubjectID("sub-" + uuid.NewString())
	if err := repo.Create(ctx, userrepoport.User{
		ID:          aID,
		Subject:     sub,
		DisplayName: "Alice Johnson",
		Email:       "alice@example.com",
		CreatedAt:   now,
		UpdatedAt:   now,
	}); err != nil {
		t.Fatalf("Create a: %v", err)
	}
	got, err := repo.GetByID(ctx, aID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got.Subject != sub || got.DisplayName != "Alice Johnson" {
		t.Fatalf("unexpected user: %#v", got)
	}
	if _, err := repo.GetBySubject(ctx, sub); err != nil {
		t.Fatalf("GetBySubject: %v", err)
	}

	// Subject uniqueness.
	err = repo.Create(ctx, userrepoport.User{
		ID:          domain.UserID(uuid.NewString()),
		Subject:     sub,
		DisplayName: "Alice 2",
		Email:       "alice2@example.com",
		CreatedAt:   now,
		UpdatedAt:   now,
	})
	if !errors.Is(err, userrepoport.ErrSubjectAlreadyBound) {
		t.Fatalf("Create(dup subject) err=%v, want %v", err, userrepoport.ErrSubjectAlreadyBound)
	}

	bID := domain.UserID(uuid.NewString())
	if err := repo.Create(ctx, userrepoport.User{
		ID:          bID,
		Subject:     domain.SubjectID("sub-" + uuid.NewString()),
		DisplayName: "Bob",
		Email:       "bob@example.com",
		CreatedAt:   now,
		UpdatedAt:   now,
	}); err != nil {
		t.Fatalf("Create b: %v", err)
	}

	list, err := repo.ListByIDs(ctx, []domain.UserID{aID, bID, domain.UserID(uuid.NewString())})
	if err != nil {
		t.Fatalf("ListByIDs: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("ListByIDs len=%d, want 2 (unknown ids skipped)", len(list))
	}

	if err := repo.Delete(ctx, aID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := repo.GetByID(ctx, aID); !errors.Is(err, userrepoport.ErrNotFound) {
		t.Fatalf("GetByID(deleted) err=%v, want %v", err, userrepoport.ErrNotFound)
	}
	if _, err := repo.GetBySubject(ctx, sub); !errors.Is(err, userrepoport.ErrNotFound) {
		t.Fatalf("GetBySubject(deleted) err=%v, want %v", err, userrepoport.ErrNotFound)
	}
	if err := repo.Delete(ctx, aID); !errors.Is(err, userrepoport.ErrNotFound) {
		t.Fatalf("Delete(missing) err=%v, want %v", err, userrepoport.ErrNotFound)
	}
}

func RunSessionRepo(t *testing.T, newRepo SessionRepoFactory) {
	t.Helper()
	ctx := context.Background()

	repo, cleanup := newRepo(t)
	if cleanup != nil {
		t.Cleanup(cleanup)
	}

	now := time.Unix(3000, 0).UTC()
	later := now.Add(2 * time.Hour)
	capacity := 30
	desc := "Intro to the conference"

	scheduledID := domain.SessionID(uuid.NewString())
	if err := repo.Create(ctx, sessionrepoport.Session{
		ID:          scheduledID,
		Title:       "Keynote",
		Description: &desc,
		StartsAt:    &later,
		MaxCapacity: &capacity,
		CreatedAt:   now,
		UpdatedAt:   now,
	}); err != nil {
		t.Fatalf("Create scheduled: %v", err)
	}
	if err := repo.Create(ctx, sessionrepoport.Session{ID: scheduledID, Title: "dup", CreatedAt: now, UpdatedAt: now}); !errors.Is(err, sessionrepoport.ErrAlreadyExists) {
		t.Fatalf("Create(dup) err=%v, want %v", err, sessionrepoport.ErrAlreadyExists)
	}

	got, err := repo.GetByID(ctx, scheduledID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got.Title != "Keynote" || got.Description == nil || *got.Description != desc {
		t.Fatalf("unexpected session: %#v", got)
	}
	if got.MaxCapacity == nil || *got.MaxCapacity != 30 {
		t.Fatalf("MaxCapacity=%v, want 30", got.MaxCapacity)
	}
	if got.StartsAt == nil || !got.StartsAt.Equal(later) {
		t.Fatalf("StartsAt=%v, want %v", got.StartsAt, later)
	}

	// Save never writes capacity.
	got.Title = "Opening Keynote"
	got.Description = nil
	other := 1
	got.MaxCapacity = &other
	got.UpdatedAt = now.Add(time.Minute)
	if err := repo.Save(ctx, got); err != nil {
		t.Fatalf("Save: %v", err)
	}
	saved, err := repo.GetByID(ctx, scheduledID)
	if err != nil {
		t.Fatalf("GetByID after Save: %v", err)
	}
	if saved.Title != "Opening Keynote" || saved.Description != nil {
		t.Fatalf("Save did not persist descriptive fields: %#v", saved)
	}
	if saved.MaxCapacity == nil || *saved.MaxCapacity != 30 {
		t.Fatalf("Save wrote MaxCapacity=%v, want unchanged 30", saved.MaxCapacity)
	}

	if err := repo.Save(ctx, sessionrepoport.Session{ID: domain.SessionID(uuid.NewString()), Title: "x"}); !errors.Is(err, sessionrepoport.ErrNotFound) {
		t.Fatalf("Save(missing) err=%v, want %v", err, sessionrepoport.ErrNotFound)
	}
	if _, err := repo.GetByID(ctx, domain.SessionID(uuid.NewString())); !errors.Is(err, sessionrepoport.ErrNotFound) {
		t.Fatalf("GetByID(missing) err=%v, want %v", err, sessionrepoport.ErrNotFound)
	}

	// Unscheduled sessions sort after scheduled ones.
	unscheduledID := domain.SessionID(uuid.NewString())
	if err := repo.Create(ctx, sessionrepoport.Session{ID: unscheduledID, Title: "Hallway track", CreatedAt: now, UpdatedAt: now}); err != nil {
		t.Fatalf("Create unscheduled: %v", err)
	}
	list, err := repo.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	posScheduled, posUnscheduled := -1, -1
	for i, s := range list {
		switch s.ID {
		case scheduledID:
			posScheduled = i
		case unscheduledID:
			posUnscheduled = i
		}
	}
	if posScheduled < 0 || posUnscheduled < 0 || posScheduled > posUnscheduled {
		t.Fatalf("unexpected ordering: scheduled=%d unscheduled=%d", posScheduled, posUnscheduled)
	}
}
