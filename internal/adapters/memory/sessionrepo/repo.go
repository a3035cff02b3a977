package sessionrepo

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/conference-site/schedule-api/internal/domain"
	"github.com/conference-site/schedule-api/internal/ports/out/sessionrepo"
)

// Repo is an in-memory implementation of sessionrepo.Repository.
// It is safe for concurrent use.
type Repo struct {
	mu   sync.RWMutex
	byID map[domain.SessionID]sessionrepo.Session
}

func NewRepo() *Repo {
	return &Repo{
		byID: make(map[domain.SessionID]sessionrepo.Session),
	}
}

func (r *Repo) Create(ctx context.Context, s sessionrepo.Session) error {
	_ = ctx
	if s.ID == "" {
		return sessionrepo.ErrAlreadyExists
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byID[s.ID]; ok {
		return sessionrepo.ErrAlreadyExists
	}
	r.byID[s.ID] = cloneSession(s)
	return nil
}

// Save overwrites the descriptive fields of an existing session. MaxCapacity is kept as stored.
func (r *Repo) Save(ctx context.Context, s sessionrepo.Session) error {
	_ = ctx
	r.mu.Lock()
	defer r.mu.Unlock()
	existing, ok := r.byID[s.ID]
	if !ok {
		return sessionrepo.ErrNotFound
	}
	next := cloneSession(s)
	next.MaxCapacity = existing.MaxCapacity
	next.CreatedAt = existing.CreatedAt
	r.byID[s.ID] = next
	return nil
}

func (r *Repo) GetByID(ctx context.Context, id domain.SessionID) (sessionrepo.Session, error) {
	_ = ctx
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.byID[id]
	if !ok {
		return sessionrepo.Session{}, sessionrepo.ErrNotFound
	}
	return cloneSession(s), nil
}

func (r *Repo) List(ctx context.Context) ([]sessionrepo.Session, error) {
	_ = ctx
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]sessionrepo.Session, 0, len(r.byID))
	for _, s := range r.byID {
		out = append(out, cloneSession(s))
	}
	sortSessions(out)
	return out, nil
}

// SetMaxCapacity is used by the in-memory RSVP repository when a capacity change commits.
func (r *Repo) SetMaxCapacity(ctx context.Context, id domain.SessionID, capacity *int) error {
	_ = ctx
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.byID[id]
	if !ok {
		return sessionrepo.ErrNotFound
	}
	s.MaxCapacity = cloneIntPtr(capacity)
	r.byID[id] = s
	return nil
}

func cloneSession(s sessionrepo.Session) sessionrepo.Session {
	cp := s
	cp.Description = cloneStringPtr(s.Description)
	cp.Location = cloneStringPtr(s.Location)
	cp.StartsAt = cloneTimePtr(s.StartsAt)
	cp.EndsAt = cloneTimePtr(s.EndsAt)
	cp.MaxCapacity = cloneIntPtr(s.MaxCapacity)
	return cp
}

func cloneStringPtr(p *string) *string {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func cloneIntPtr(p *int) *int {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func cloneTimePtr(p *time.Time) *time.Time {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func sortSessions(ss []sessionrepo.Session) {
	// By startsAt ascending; sessions without a start time go after scheduled ones.
	sort.Slice(ss, func(i, j int) bool {
		a, b := ss[i], ss[j]
		ad, bd := a.StartsAt, b.StartsAt

		if ad != nil && bd != nil && !ad.Equal(*bd) {
			return ad.Before(*bd)
		}
		if ad != nil && bd == nil {
			return true
		}
		if ad == nil && bd != nil {
			return false
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return string(a.ID) < string(b.ID)
	})
}
