package rsvprepo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/conference-site/schedule-api/internal/adapters/sqlite"
	"github.com/conference-site/schedule-api/internal/domain"
	"github.com/conference-site/schedule-api/internal/ports/out/rsvprepo"
)

// Repo is a SQLite implementation of rsvprepo.Repository.
//
// The store runs on a single connection, so an open transaction excludes every other
// caller until it commits or rolls back.
type Repo struct {
	db *sql.DB
}

func NewRepo(store *sqlite.Store) *Repo {
	return &Repo{db: store.DB()}
}

func (r *Repo) InSession(ctx context.Context, sessionID domain.SessionID, fn func(ctx context.Context, tx rsvprepo.Tx) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	var (
		pk       int64
		capacity sql.NullInt64
	)
	err = tx.QueryRowContext(ctx, `SELECT id, max_capacity FROM sessions WHERE external_id = ?`, string(sessionID)).Scan(&pk, &capacity)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return rsvprepo.ErrSessionNotFound
		}
		return err
	}

	t := &sessionTx{tx: tx, pk: pk, sessionID: sessionID}
	if capacity.Valid {
		v := int(capacity.Int64)
		t.capacity = &v
	}
	if err := fn(ctx, t); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	committed = true
	return nil
}

func (r *Repo) ListByUser(ctx context.Context, userID domain.UserID) ([]domain.RSVP, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT s.external_id, u.external_id, r.on_waitlist, r.created_at
		FROM session_rsvps r
		JOIN sessions s ON s.id = r.session_id
		JOIN users u ON u.id = r.user_id
		WHERE u.external_id = ?
		ORDER BY r.created_at ASC, r.id ASC
	`, string(userID))
	if err != nil {
		return nil, err
	}
	return collectRSVPs(rows)
}

func (r *Repo) ListBySession(ctx context.Context, sessionID domain.SessionID) ([]domain.RSVP, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT s.external_id, u.external_id, r.on_waitlist, r.created_at
		FROM session_rsvps r
		JOIN sessions s ON s.id = r.session_id
		JOIN users u ON u.id = r.user_id
		WHERE s.external_id = ?
		ORDER BY r.created_at ASC, r.id ASC
	`, string(sessionID))
	if err != nil {
		return nil, err
	}
	return collectRSVPs(rows)
}

func (r *Repo) CountsBySession(ctx context.Context) (map[domain.SessionID]int, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT s.external_id, count(*)
		FROM session_rsvps r
		JOIN sessions s ON s.id = r.session_id
		GROUP BY s.external_id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[domain.SessionID]int)
	for rows.Next() {
		var id string
		var n int
		if err := rows.Scan(&id, &n); err != nil {
			return nil, err
		}
		out[domain.SessionID(id)] = n
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

type sessionTx struct {
	tx        *sql.Tx
	pk        int64
	sessionID domain.SessionID
	capacity  *int
}

func (t *sessionTx) SessionID() domain.SessionID { return t.sessionID }

func (t *sessionTx) Capacity() *int {
	if t.capacity == nil {
		return nil
	}
	v := *t.capacity
	return &v
}

func (t *sessionTx) CountGoing(ctx context.Context) (int, error) {
	var n int
	err := t.tx.QueryRowContext(ctx, `SELECT count(*) FROM session_rsvps WHERE session_id = ? AND on_waitlist = 0`, t.pk).Scan(&n)
	return n, err
}

func (t *sessionTx) Get(ctx context.Context, userID domain.UserID) (domain.RSVP, error) {
	var onWaitlist bool
	var createdAt int64
	err := t.tx.QueryRowContext(ctx, `
		SELECT r.on_waitlist, r.created_at
		FROM session_rsvps r
		JOIN users u ON u.id = r.user_id
		WHERE r.session_id = ? AND u.external_id = ?
	`, t.pk, string(userID)).Scan(&onWaitlist, &createdAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.RSVP{}, rsvprepo.ErrNotFound
		}
		return domain.RSVP{}, err
	}
	return t.record(userID, onWaitlist, createdAt), nil
}

func (t *sessionTx) Insert(ctx context.Context, rec domain.RSVP) error {
	var userPK int64
	if err := t.tx.QueryRowContext(ctx, `SELECT id FROM users WHERE external_id = ?`, string(rec.UserID)).Scan(&userPK); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return rsvprepo.ErrUserNotFound
		}
		return err
	}

	res, err := t.tx.ExecContext(ctx, `
		INSERT INTO session_rsvps (session_id, user_id, on_waitlist, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (session_id, user_id) DO NOTHING
	`, t.pk, userPK, rec.OnWaitlist, sqlite.ToNanos(rec.CreatedAt))
	if err != nil {
		if sqlite.IsForeignKeyViolation(err) {
			return rsvprepo.ErrUserNotFound
		}
		return fmt.Errorf("insert rsvp: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return rsvprepo.ErrAlreadyExists
	}
	return nil
}

func (t *sessionTx) Delete(ctx context.Context, userID domain.UserID) (domain.RSVP, error) {
	rec, err := t.Get(ctx, userID)
	if err != nil {
		return domain.RSVP{}, err
	}
	_, err = t.tx.ExecContext(ctx, `
		DELETE FROM session_rsvps
		WHERE session_id = ? AND user_id = (SELECT id FROM users WHERE external_id = ?)
	`, t.pk, string(userID))
	if err != nil {
		return domain.RSVP{}, err
	}
	return rec, nil
}

func (t *sessionTx) WaitlistHead(ctx context.Context) (domain.RSVP, error) {
	var userID string
	var createdAt int64
	err := t.tx.QueryRowContext(ctx, `
		SELECT u.external_id, r.created_at
		FROM session_rsvps r
		JOIN users u ON u.id = r.user_id
		WHERE r.session_id = ? AND r.on_waitlist = 1
		ORDER BY r.created_at ASC, r.id ASC
		LIMIT 1
	`, t.pk).Scan(&userID, &createdAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.RSVP{}, rsvprepo.ErrNotFound
		}
		return domain.RSVP{}, err
	}
	return t.record(domain.UserID(userID), true, createdAt), nil
}

func (t *sessionTx) SetWaitlisted(ctx context.Context, userID domain.UserID, onWaitlist bool) (domain.RSVP, error) {
	res, err := t.tx.ExecContext(ctx, `
		UPDATE session_rsvps
		SET on_waitlist = ?
		WHERE session_id = ? AND user_id = (SELECT id FROM users WHERE external_id = ?)
	`, onWaitlist, t.pk, string(userID))
	if err != nil {
		return domain.RSVP{}, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return domain.RSVP{}, err
	}
	if n == 0 {
		return domain.RSVP{}, rsvprepo.ErrNotFound
	}
	return t.Get(ctx, userID)
}

func (t *sessionTx) SetCapacity(ctx context.Context, capacity *int) error {
	var v sql.NullInt64
	if capacity != nil {
		v = sql.NullInt64{Int64: int64(*capacity), Valid: true}
	}
	if _, err := t.tx.ExecContext(ctx, `UPDATE sessions SET max_capacity = ? WHERE id = ?`, v, t.pk); err != nil {
		return err
	}
	if capacity == nil {
		t.capacity = nil
		return nil
	}
	c := *capacity
	t.capacity = &c
	return nil
}

func (t *sessionTx) record(userID domain.UserID, onWaitlist bool, createdAt int64) domain.RSVP {
	return domain.RSVP{
		SessionID:  t.sessionID,
		UserID:     userID,
		OnWaitlist: onWaitlist,
		CreatedAt:  sqlite.FromNanos(createdAt),
	}
}

func collectRSVPs(rows *sql.Rows) ([]domain.RSVP, error) {
	defer rows.Close()

	out := make([]domain.RSVP, 0)
	for rows.Next() {
		var sessionID, userID string
		var onWaitlist bool
		var createdAt int64
		if err := rows.Scan(&sessionID, &userID, &onWaitlist, &createdAt); err != nil {
			return nil, err
		}
		out = append(out, domain.RSVP{
			SessionID:  domain.SessionID(sessionID),
			UserID:     domain.UserID(userID),
			OnWaitlist: onWaitlist,
			CreatedAt:  sqlite.FromNanos(createdAt),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
