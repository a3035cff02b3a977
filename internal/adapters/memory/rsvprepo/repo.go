package rsvprepo

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/conference-site/schedule-api/internal/domain"
	"github.com/conference-site/schedule-api/internal/ports/out/rsvprepo"
	"github.com/conference-site/schedule-api/internal/ports/out/sessionrepo"
	"github.com/conference-site/schedule-api/internal/ports/out/userrepo"
)

// Sessions is the slice of the in-memory session repository the RSVP repo needs.
type Sessions interface {
	GetByID(ctx context.Context, id domain.SessionID) (sessionrepo.Session, error)
	SetMaxCapacity(ctx context.Context, id domain.SessionID, capacity *int) error
}

// Users is used to reject RSVPs for unknown users.
type Users interface {
	GetByID(ctx context.Context, id domain.UserID) (userrepo.User, error)
}

type entry struct {
	rsvp domain.RSVP
	seq  uint64
}

// Repo is an in-memory implementation of rsvprepo.Repository.
// It is safe for concurrent use.
//
// InSession holds a single repository-wide lock for the duration of fn and works on a
// staged copy of the session's records, which replaces the live copy only if fn succeeds.
type Repo struct {
	sessions Sessions
	users    Users

	mu        sync.Mutex
	bySession map[domain.SessionID][]entry
	seq       uint64
}

type Option func(*Repo)

// WithUsers makes Insert fail with rsvprepo.ErrUserNotFound for users unknown to u.
func WithUsers(u Users) Option {
	return func(r *Repo) { r.users = u }
}

func NewRepo(sessions Sessions, opts ...Option) *Repo {
	r := &Repo{
		sessions:  sessions,
		bySession: make(map[domain.SessionID][]entry),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Repo) InSession(ctx context.Context, sessionID domain.SessionID, fn func(ctx context.Context, tx rsvprepo.Tx) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, err := r.sessions.GetByID(ctx, sessionID)
	if err != nil {
		if errors.Is(err, sessionrepo.ErrNotFound) {
			return rsvprepo.ErrSessionNotFound
		}
		return err
	}

	t := &tx{
		repo:      r,
		sessionID: sessionID,
		capacity:  cloneIntPtr(s.MaxCapacity),
		entries:   append([]entry(nil), r.bySession[sessionID]...),
		seq:       r.seq,
	}
	if err := fn(ctx, t); err != nil {
		return err
	}

	if t.capacityChanged {
		if err := r.sessions.SetMaxCapacity(ctx, sessionID, t.capacity); err != nil {
			return err
		}
	}
	if len(t.entries) == 0 {
		delete(r.bySession, sessionID)
	} else {
		r.bySession[sessionID] = t.entries
	}
	r.seq = t.seq
	return nil
}

// WithoutUserRecords runs fn while no unit can commit. When userID holds any record,
// fn is not called and userrepo.ErrHasRSVPs is returned.
func (r *Repo) WithoutUserRecords(ctx context.Context, userID domain.UserID, fn func() error) error {
	_ = ctx
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, es := range r.bySession {
		for _, e := range es {
			if e.rsvp.UserID == userID {
				return userrepo.ErrHasRSVPs
			}
		}
	}
	return fn()
}

func (r *Repo) ListByUser(ctx context.Context, userID domain.UserID) ([]domain.RSVP, error) {
	_ = ctx
	r.mu.Lock()
	defer r.mu.Unlock()

	matched := make([]entry, 0)
	for _, es := range r.bySession {
		for _, e := range es {
			if e.rsvp.UserID == userID {
				matched = append(matched, e)
			}
		}
	}
	return sortedRSVPs(matched), nil
}

func (r *Repo) ListBySession(ctx context.Context, sessionID domain.SessionID) ([]domain.RSVP, error) {
	_ = ctx
	r.mu.Lock()
	defer r.mu.Unlock()
	return sortedRSVPs(append([]entry(nil), r.bySession[sessionID]...)), nil
}

func (r *Repo) CountsBySession(ctx context.Context) (map[domain.SessionID]int, error) {
	_ = ctx
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[domain.SessionID]int, len(r.bySession))
	for id, es := range r.bySession {
		if len(es) > 0 {
			out[id] = len(es)
		}
	}
	return out, nil
}

type tx struct {
	repo      *Repo
	sessionID domain.SessionID

	capacity        *int
	capacityChanged bool

	entries []entry
	seq     uint64
}

func (t *tx) SessionID() domain.SessionID { return t.sessionID }

func (t *tx) Capacity() *int { return cloneIntPtr(t.capacity) }

func (t *tx) CountGoing(ctx context.Context) (int, error) {
	_ = ctx
	n := 0
	for _, e := range t.entries {
		if !e.rsvp.OnWaitlist {
			n++
		}
	}
	return n, nil
}

func (t *tx) Get(ctx context.Context, userID domain.UserID) (domain.RSVP, error) {
	_ = ctx
	if i := t.index(userID); i >= 0 {
		return t.entries[i].rsvp, nil
	}
	return domain.RSVP{}, rsvprepo.ErrNotFound
}

func (t *tx) Insert(ctx context.Context, rec domain.RSVP) error {
	if t.index(rec.UserID) >= 0 {
		return rsvprepo.ErrAlreadyExists
	}
	if t.repo.users != nil {
		if _, err := t.repo.users.GetByID(ctx, rec.UserID); err != nil {
			if errors.Is(err, userrepo.ErrNotFound) {
				return rsvprepo.ErrUserNotFound
			}
			return err
		}
	}
	rec.SessionID = t.sessionID
	t.seq++
	t.entries = append(t.entries, entry{rsvp: rec, seq: t.seq})
	return nil
}

func (t *tx) Delete(ctx context.Context, userID domain.UserID) (domain.RSVP, error) {
	_ = ctx
	i := t.index(userID)
	if i < 0 {
		return domain.RSVP{}, rsvprepo.ErrNotFound
	}
	removed := t.entries[i].rsvp
	next := make([]entry, 0, len(t.entries)-1)
	next = append(next, t.entries[:i]...)
	next = append(next, t.entries[i+1:]...)
	t.entries = next
	return removed, nil
}

func (t *tx) WaitlistHead(ctx context.Context) (domain.RSVP, error) {
	_ = ctx
	var head *entry
	for i := range t.entries {
		e := &t.entries[i]
		if !e.rsvp.OnWaitlist {
			continue
		}
		if head == nil || entryBefore(*e, *head) {
			head = e
		}
	}
	if head == nil {
		return domain.RSVP{}, rsvprepo.ErrNotFound
	}
	return head.rsvp, nil
}

func (t *tx) SetWaitlisted(ctx context.Context, userID domain.UserID, onWaitlist bool) (domain.RSVP, error) {
	_ = ctx
	i := t.index(userID)
	if i < 0 {
		return domain.RSVP{}, rsvprepo.ErrNotFound
	}
	t.entries[i].rsvp.OnWaitlist = onWaitlist
	return t.entries[i].rsvp, nil
}

func (t *tx) SetCapacity(ctx context.Context, capacity *int) error {
	_ = ctx
	t.capacity = cloneIntPtr(capacity)
	t.capacityChanged = true
	return nil
}

func (t *tx) index(userID domain.UserID) int {
	for i, e := range t.entries {
		if e.rsvp.UserID == userID {
			return i
		}
	}
	return -1
}

func entryBefore(a, b entry) bool {
	if !a.rsvp.CreatedAt.Equal(b.rsvp.CreatedAt) {
		return a.rsvp.CreatedAt.Before(b.rsvp.CreatedAt)
	}
	return a.seq < b.seq
}

func sortedRSVPs(es []entry) []domain.RSVP {
	sort.Slice(es, func(i, j int) bool { return entryBefore(es[i], es[j]) })
	out := make([]domain.RSVP, 0, len(es))
	for _, e := range es {
		out = append(out, e.rsvp)
	}
	return out
}

func cloneIntPtr(p *int) *int {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
