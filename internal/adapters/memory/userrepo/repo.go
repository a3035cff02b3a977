package userrepo

import (
	"context"
	"sync"

	"github.com/conference-site/schedule-api/internal/domain"
	"github.com/conference-site/schedule-api/internal/ports/out/userrepo"
)

// RecordGuard keeps RSVP writes out while a user is deleted.
// It must not call fn when userID still holds records; it returns userrepo.ErrHasRSVPs instead.
type RecordGuard interface {
	WithoutUserRecords(ctx context.Context, userID domain.UserID, fn func() error) error
}

// Repo is an in-memory implementation of userrepo.Repository.
// It is safe for concurrent use.
type Repo struct {
	mu    sync.RWMutex
	guard RecordGuard

	byID    map[domain.UserID]userrepo.User
	idBySub map[domain.SubjectID]domain.UserID
}

func NewRepo() *Repo {
	return &Repo{
		byID:    make(map[domain.UserID]userrepo.User),
		idBySub: make(map[domain.SubjectID]domain.UserID),
	}
}

// SetRecordGuard makes Delete refuse users that still hold RSVP records in g.
// Call it before the repo is shared.
func (r *Repo) SetRecordGuard(g RecordGuard) {
	r.guard = g
}

func (r *Repo) Create(ctx context.Context, u userrepo.User) error {
	_ = ctx
	if u.ID == "" {
		return userrepo.ErrAlreadyExists
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.byID[u.ID]; ok {
		return userrepo.ErrAlreadyExists
	}
	if existingID, ok := r.idBySub[u.Subject]; ok && existingID != "" {
		return userrepo.ErrSubjectAlreadyBound
	}

	r.byID[u.ID] = u
	r.idBySub[u.Subject] = u.ID
	return nil
}

func (r *Repo) GetByID(ctx context.Context, id domain.UserID) (userrepo.User, error) {
	_ = ctx
	r.mu.RLock()
	defer r.mu.RUnlock()
	u, ok := r.byID[id]
	if !ok {
		return userrepo.User{}, userrepo.ErrNotFound
	}
	return u, nil
}

func (r *Repo) GetBySubject(ctx context.Context, subject domain.SubjectID) (userrepo.User, error) {
	_ = ctx
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.idBySub[subject]
	if !ok {
		return userrepo.User{}, userrepo.ErrNotFound
	}
	u, ok := r.byID[id]
	if !ok {
		return userrepo.User{}, userrepo.ErrNotFound
	}
	return u, nil
}

func (r *Repo) ListByIDs(ctx context.Context, ids []domain.UserID) ([]userrepo.User, error) {
	_ = ctx
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]userrepo.User, 0, len(ids))
	seen := make(map[domain.UserID]struct{}, len(ids))
	for _, id := range ids {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		if u, ok := r.byID[id]; ok {
			out = append(out, u)
		}
	}
	return out, nil
}

func (r *Repo) Delete(ctx context.Context, id domain.UserID) error {
	if r.guard != nil {
		return r.guard.WithoutUserRecords(ctx, id, func() error { return r.remove(id) })
	}
	return r.remove(id)
}

func (r *Repo) remove(id domain.UserID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.byID[id]
	if !ok {
		return userrepo.ErrNotFound
	}
	delete(r.byID, id)
	delete(r.idBySub, u.Subject)
	return nil
}
