package sessionrepo

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
	"github.com/conference-site/schedule-api/internal/ports/out/sessionrepo"
)

// Repo is a Postgres implementation of sessionrepo.Repository.
type Repo struct {
	pool *pgxpool.Pool
}

func NewRepo(pool *pgxpool.Pool) *Repo {
	return &Repo{pool: pool}
}

const selectColumns = `external_id, title, description, location, starts_at, ends_at, max_capacity, created_at, updated_at`

func (r *Repo) Create(ctx context.Context, s sessionrepo.Session) error {
	if r.pool == nil {
		return errors.New("nil postgres pool")
	}
	id, err := uuid.Parse(string(s.ID))
	if err != nil {
		return fmt.Errorf("invalid session id: %w", err)
	}

	_, err = r.pool.Exec(ctx, `
		INSERT INTO sessions (
			external_id,
			title,
			description,
			location,
			starts_at,
			ends_at,
			max_capacity,
			created_at,
			updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`,
		id,
		s.Title,
		s.Description,
		s.Location,
		utcPtr(s.StartsAt),
		utcPtr(s.EndsAt),
		s.MaxCapacity,
		s.CreatedAt.UTC(),
		s.UpdatedAt.UTC(),
	)
	if err != nil {
		if pe, ok := postgres.AsPgError(err); ok && pe.Code == postgres.UniqueViolationCode {
			return sessionrepo.ErrAlreadyExists
		}
		return err
	}
	return nil
}

// Save updates descriptive fields only; max_capacity is owned by the RSVP repository.
func (r *Repo) Save(ctx context.Context, s sessionrepo.Session) error {
	if r.pool == nil {
		return errors.New("nil postgres pool")
	}
	id, err := uuid.Parse(string(s.ID))
	if err != nil {
		return sessionrepo.ErrNotFound
	}

	tag, err := r.pool.Exec(ctx, `
		UPDATE sessions
		SET title = $2,
		    description = $3,
		    location = $4,
		    starts_at = $5,
		    ends_at = $6,
		    updated_at = $7
		WHERE external_id = $1
	`,
		id,
		s.Title,
		s.Description,
		s.Location,
		utcPtr(s.StartsAt),
		utcPtr(s.EndsAt),
		s.UpdatedAt.UTC(),
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return sessionrepo.ErrNotFound
	}
	return nil
}

func (r *Repo) GetByID(ctx context.Context, id domain.SessionID) (sessionrepo.Session, error) {
	if r.pool == nil {
		return sessionrepo.Session{}, errors.New("nil postgres pool")
	}
	sid, err := uuid.Parse(string(id))
	if err != nil {
		return sessionrepo.Session{}, sessionrepo.ErrNotFound
	}
	return scanSession(r.pool.QueryRow(ctx, `SELECT `+selectColumns+` FROM sessions WHERE external_id = $1`, sid))
}

func (r *Repo) List(ctx context.Context) ([]sessionrepo.Session, error) {
	if r.pool == nil {
		return nil, errors.New("nil postgres pool")
	}
	rows, err := r.pool.Query(ctx, `
		SELECT `+selectColumns+`
		FROM sessions
		ORDER BY starts_at ASC NULLS LAST, created_at ASC, external_id ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]sessionrepo.Session, 0)
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func scanSession(row pgx.Row) (sessionrepo.Session, error) {
	var (
		id                 uuid.UUID
		s                  sessionrepo.Session
		startsAt, endsAt   *time.Time
		capacity           *int32
		createdAt, updated time.Time
	)
	if err := row.Scan(&id, &s.Title, &s.Description, &s.Location, &startsAt, &endsAt, &capacity, &createdAt, &updated); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return sessionrepo.Session{}, sessionrepo.ErrNotFound
		}
		return sessionrepo.Session{}, err
	}
	s.ID = domain.SessionID(id.String())
	s.StartsAt = utcPtr(startsAt)
	s.EndsAt = utcPtr(endsAt)
	if capacity != nil {
		v := int(*capacity)
		s.MaxCapacity = &v
	}
	s.CreatedAt = createdAt.UTC()
	s.UpdatedAt = updated.UTC()
	return s, nil
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := t.UTC()
	return &v
}
