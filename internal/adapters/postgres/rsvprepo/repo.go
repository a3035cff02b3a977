package rsvprepo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	postgres "github.com/conference-site/schedule-api/internal/adapters/postgres"
	"github.com/conference-site/schedule-api/internal/domain"
	"github.com/conference-site/schedule-api/internal/ports/out/rsvprepo"
)

// Repo is a Postgres implementation of rsvprepo.Repository.
//
// InSession opens a transaction and locks the session row with SELECT ... FOR UPDATE, so units
// for the same session queue behind each other while units for other sessions proceed.
type Repo struct {
	pool *pgxpool.Pool
}

func NewRepo(pool *pgxpool.Pool) *Repo {
	return &Repo{pool: pool}
}

func (r *Repo) InSession(ctx context.Context, sessionID domain.SessionID, fn func(ctx context.Context, tx rsvprepo.Tx) error) error {
	if r.pool == nil {
		return errors.New("nil postgres pool")
	}
	sid, err := uuid.Parse(string(sessionID))
	if err != nil {
		return rsvprepo.ErrSessionNotFound
	}

	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		var (
			pk       int64
			capacity *int32
		)
		err := tx.QueryRow(ctx, `
			SELECT id, max_capacity
			FROM sessions
			WHERE external_id = $1
			FOR UPDATE
		`, sid).Scan(&pk, &capacity)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return rsvprepo.ErrSessionNotFound
			}
			return err
		}

		t := &sessionTx{tx: tx, pk: pk, sessionID: sessionID}
		if capacity != nil {
			v := int(*capacity)
			t.capacity = &v
		}
		return fn(ctx, t)
	})
}

func (r *Repo) ListByUser(ctx context.Context, userID domain.UserID) ([]domain.RSVP, error) {
	if r.pool == nil {
		return nil, errors.New("nil postgres pool")
	}
	uid, err := uuid.Parse(string(userID))
	if err != nil {
		return []domain.RSVP{}, nil
	}
	rows, err := r.pool.Query(ctx, `
		SELECT s.external_id, u.external_id, r.on_waitlist, r.created_at
		FROM session_rsvps r
		JOIN sessions s ON s.id = r.session_id
		JOIN users u ON u.id = r.user_id
		WHERE u.external_id = $1
		ORDER BY r.created_at ASC, r.id ASC
	`, uid)
	if err != nil {
		return nil, err
	}
	return collectRSVPs(rows)
}

func (r *Repo) ListBySession(ctx context.Context, sessionID domain.SessionID) ([]domain.RSVP, error) {
	if r.pool == nil {
		return nil, errors.New("nil postgres pool")
	}
	sid, err := uuid.Parse(string(sessionID))
	if err != nil {
		return []domain.RSVP{}, nil
	}
	rows, err := r.pool.Query(ctx, `
		SELECT s.external_id, u.external_id, r.on_waitlist, r.created_at
		FROM session_rsvps r
		JOIN sessions s ON s.id = r.session_id
		JOIN users u ON u.id = r.user_id
		WHERE s.external_id = $1
		ORDER BY r.created_at ASC, r.id ASC
	`, sid)
	if err != nil {
		return nil, err
	}
	return collectRSVPs(rows)
}

func (r *Repo) CountsBySession(ctx context.Context) (map[domain.SessionID]int, error) {
	if r.pool == nil {
		return nil, errors.New("nil postgres pool")
	}
	rows, err := r.pool.Query(ctx, `
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
		var sid uuid.UUID
		var n int
		if err := rows.Scan(&sid, &n); err != nil {
			return nil, err
		}
		out[domain.SessionID(sid.String())] = n
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

type sessionTx struct {
	tx        pgx.Tx
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
	err := t.tx.QueryRow(ctx, `
		SELECT count(*)
		FROM session_rsvps
		WHERE session_id = $1 AND NOT on_waitlist
	`, t.pk).Scan(&n)
	return n, err
}

func (t *sessionTx) Get(ctx context.Context, userID domain.UserID) (domain.RSVP, error) {
	uid, err := uuid.Parse(string(userID))
	if err != nil {
		return domain.RSVP{}, rsvprepo.ErrNotFound
	}
	var onWaitlist bool
	var createdAt time.Time
	err = t.tx.QueryRow(ctx, `
		SELECT r.on_waitlist, r.created_at
		FROM session_rsvps r
		JOIN users u ON u.id = r.user_id
		WHERE r.session_id = $1 AND u.external_id = $2
	`, t.pk, uid).Scan(&onWaitlist, &createdAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.RSVP{}, rsvprepo.ErrNotFound
		}
		return domain.RSVP{}, err
	}
	return t.record(userID, onWaitlist, createdAt), nil
}

// Insert resolves the user first and uses ON CONFLICT DO NOTHING so that neither failure
// mode aborts the surrounding transaction.
func (t *sessionTx) Insert(ctx context.Context, rec domain.RSVP) error {
	uid, err := uuid.Parse(string(rec.UserID))
	if err != nil {
		return rsvprepo.ErrUserNotFound
	}
	var userPK int64
	if err := t.tx.QueryRow(ctx, `SELECT id FROM users WHERE external_id = $1`, uid).Scan(&userPK); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return rsvprepo.ErrUserNotFound
		}
		return err
	}

	tag, err := t.tx.Exec(ctx, `
		INSERT INTO session_rsvps (session_id, user_id, on_waitlist, created_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (session_id, user_id) DO NOTHING
	`, t.pk, userPK, rec.OnWaitlist, rec.CreatedAt.UTC())
	if err != nil {
		if postgres.IsCode(err, postgres.ForeignKeyViolationCode) {
			return rsvprepo.ErrUserNotFound
		}
		return fmt.Errorf("insert rsvp: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return rsvprepo.ErrAlreadyExists
	}
	return nil
}

func (t *sessionTx) Delete(ctx context.Context, userID domain.UserID) (domain.RSVP, error) {
	uid, err := uuid.Parse(string(userID))
	if err != nil {
		return domain.RSVP{}, rsvprepo.ErrNotFound
	}
	var onWaitlist bool
	var createdAt time.Time
	err = t.tx.QueryRow(ctx, `
		DELETE FROM session_rsvps r
		USING users u
		WHERE r.user_id = u.id AND r.session_id = $1 AND u.external_id = $2
		RETURNING r.on_waitlist, r.created_at
	`, t.pk, uid).Scan(&onWaitlist, &createdAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.RSVP{}, rsvprepo.ErrNotFound
		}
		return domain.RSVP{}, err
	}
	return t.record(userID, onWaitlist, createdAt), nil
}

func (t *sessionTx) WaitlistHead(ctx context.Context) (domain.RSVP, error) {
	var uid uuid.UUID
	var createdAt time.Time
	err := t.tx.QueryRow(ctx, `
		SELECT u.external_id, r.created_at
		FROM session_rsvps r
		JOIN users u ON u.id = r.user_id
		WHERE r.session_id = $1 AND r.on_waitlist
		ORDER BY r.created_at ASC, r.id ASC
		LIMIT 1
	`, t.pk).Scan(&uid, &createdAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.RSVP{}, rsvprepo.ErrNotFound
		}
		return domain.RSVP{}, err
	}
	return t.record(domain.UserID(uid.String()), true, createdAt), nil
}

func (t *sessionTx) SetWaitlisted(ctx context.Context, userID domain.UserID, onWaitlist bool) (domain.RSVP, error) {
	uid, err := uuid.Parse(string(userID))
	if err != nil {
		return domain.RSVP{}, rsvprepo.ErrNotFound
	}
	var createdAt time.Time
	err = t.tx.QueryRow(ctx, `
		UPDATE session_rsvps r
		SET on_waitlist = $3
		FROM users u
		WHERE r.user_id = u.id AND r.session_id = $1 AND u.external_id = $2
		RETURNING r.created_at
	`, t.pk, uid, onWaitlist).Scan(&createdAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.RSVP{}, rsvprepo.ErrNotFound
		}
		return domain.RSVP{}, err
	}
	return t.record(userID, onWaitlist, createdAt), nil
}

func (t *sessionTx) SetCapacity(ctx context.Context, capacity *int) error {
	if _, err := t.tx.Exec(ctx, `UPDATE sessions SET max_capacity = $2 WHERE id = $1`, t.pk, capacity); err != nil {
		return err
	}
	if capacity == nil {
		t.capacity = nil
		return nil
	}
	v := *capacity
	t.capacity = &v
	return nil
}

func (t *sessionTx) record(userID domain.UserID, onWaitlist bool, createdAt time.Time) domain.RSVP {
	return domain.RSVP{
		SessionID:  t.sessionID,
		UserID:     userID,
		OnWaitlist: onWaitlist,
		CreatedAt:  createdAt.UTC(),
	}
}

func collectRSVPs(rows pgx.Rows) ([]domain.RSVP, error) {
	defer rows.Close()

	out := make([]domain.RSVP, 0)
	for rows.Next() {
		var sid, uid uuid.UUID
		var onWaitlist bool
		var createdAt time.Time
		if err := rows.Scan(&sid, &uid, &onWaitlist, &createdAt); err != nil {
			return nil, err
		}
		out = append(out, domain.RSVP{
			SessionID:  domain.SessionID(sid.String()),
			UserID:     domain.UserID(uid.String()),
			OnWaitlist: onWaitlist,
			CreatedAt:  createdAt.UTC(),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
