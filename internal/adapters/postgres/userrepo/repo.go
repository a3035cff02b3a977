package userrepo

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
	"github.com/conference-site/schedule-api/internal/ports/out/userrepo"
)

// Repo is a Postgres implementation of userrepo.Repository.
type Repo struct {
	pool *pgxpool.Pool
}

func NewRepo(pool *pgxpool.Pool) *Repo {
	return &Repo{pool: pool}
}

func (r *Repo) Create(ctx context.Context, u userrepo.User) error {
	if r.pool == nil {
		return errors.New("nil postgres pool")
	}
	id, err := uuid.Parse(string(u.ID))
	if err != nil {
		return fmt.Errorf("invalid user id: %w", err)
	}

	_, err = r.pool.Exec(ctx, `
		INSERT INTO users (external_id, subject, display_name, email, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, id, string(u.Subject), u.DisplayName, u.Email, u.CreatedAt.UTC(), u.UpdatedAt.UTC())
	if err != nil {
		if pe, ok := postgres.AsPgError(err); ok && pe.Code == postgres.UniqueViolationCode {
			switch pe.ConstraintName {
			case "users_subject_unique":
				return userrepo.ErrSubjectAlreadyBound
			case "users_external_id_unique":
				return userrepo.ErrAlreadyExists
			}
		}
		return err
	}
	return nil
}

func (r *Repo) GetByID(ctx context.Context, id domain.UserID) (userrepo.User, error) {
	if r.pool == nil {
		return userrepo.User{}, errors.New("nil postgres pool")
	}
	uid, err := uuid.Parse(string(id))
	if err != nil {
		return userrepo.User{}, userrepo.ErrNotFound
	}
	return scanUser(r.pool.QueryRow(ctx, `
		SELECT external_id, subject, display_name, email, created_at, updated_at
		FROM users
		WHERE external_id = $1
	`, uid))
}

func (r *Repo) GetBySubject(ctx context.Context, subject domain.SubjectID) (userrepo.User, error) {
	if r.pool == nil {
		return userrepo.User{}, errors.New("nil postgres pool")
	}
	return scanUser(r.pool.QueryRow(ctx, `
		SELECT external_id, subject, display_name, email, created_at, updated_at
		FROM users
		WHERE subject = $1
	`, string(subject)))
}

func (r *Repo) ListByIDs(ctx context.Context, ids []domain.UserID) ([]userrepo.User, error) {
	if r.pool == nil {
		return nil, errors.New("nil postgres pool")
	}
	uids := make([]uuid.UUID, 0, len(ids))
	for _, id := range ids {
		if uid, err := uuid.Parse(string(id)); err == nil {
			uids = append(uids, uid)
		}
	}
	if len(uids) == 0 {
		return []userrepo.User{}, nil
	}

	rows, err := r.pool.Query(ctx, `
		SELECT external_id, subject, display_name, email, created_at, updated_at
		FROM users
		WHERE external_id = ANY($1)
	`, uids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]userrepo.User, 0, len(uids))
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func (r *Repo) Delete(ctx context.Context, id domain.UserID) error {
	if r.pool == nil {
		return errors.New("nil postgres pool")
	}
	uid, err := uuid.Parse(string(id))
	if err != nil {
		return userrepo.ErrNotFound
	}
	tag, err := r.pool.Exec(ctx, `DELETE FROM users WHERE external_id = $1`, uid)
	if err != nil {
		if postgres.IsCode(err, postgres.ForeignKeyViolationCode) {
			return userrepo.ErrHasRSVPs
		}
		return err
	}
	if tag.RowsAffected() == 0 {
		return userrepo.ErrNotFound
	}
	return nil
}

func scanUser(row pgx.Row) (userrepo.User, error) {
	var (
		id                 uuid.UUID
		subject            string
		u                  userrepo.User
		createdAt, updated time.Time
	)
	if err := row.Scan(&id, &subject, &u.DisplayName, &u.Email, &createdAt, &updated); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return userrepo.User{}, userrepo.ErrNotFound
		}
		return userrepo.User{}, err
	}
	u.ID = domain.UserID(id.String())
	u.Subject = domain.SubjectID(subject)
	u.CreatedAt = createdAt.UTC()
	u.UpdatedAt = updated.UTC()
	return u, nil
}
