package sessionrepo

import (
	"context"
	"database/sql"
	"errors"

	"github.com/conference-site/schedule-api/internal/adapters/sqlite"
	"github.com/conference-site/schedule-api/internal/domain"
	"github.com/conference-site/schedule-api/internal/ports/out/sessionrepo"
)

// Repo is a SQLite implementation of sessionrepo.Repository.
type Repo struct {
	db *sql.DB
}

func NewRepo(store *sqlite.Store) *Repo {
	return &Repo{db: store.DB()}
}

const selectColumns = `external_id, title, description, location, starts_at, ends_at, max_capacity, created_at, updated_at`

func (r *Repo) Create(ctx context.Context, s sessionrepo.Session) error {
	if s.ID == "" {
		return sessionrepo.ErrAlreadyExists
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO sessions (external_id, title, description, location, starts_at, ends_at, max_capacity, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		string(s.ID),
		s.Title,
		nullString(s.Description),
		nullString(s.Location),
		sqlite.NullableNanos(s.StartsAt),
		sqlite.NullableNanos(s.EndsAt),
		nullInt(s.MaxCapacity),
		sqlite.ToNanos(s.CreatedAt),
		sqlite.ToNanos(s.UpdatedAt),
	)
	if err != nil {
		if sqlite.IsUniqueViolation(err) {
			return sessionrepo.ErrAlreadyExists
		}
		return err
	}
	return nil
}

// Save updates descriptive fields only; max_capacity is owned by the RSVP repository.
func (r *Repo) Save(ctx context.Context, s sessionrepo.Session) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE sessions
		SET title = ?, description = ?, location = ?, starts_at = ?, ends_at = ?, updated_at = ?
		WHERE external_id = ?
	`,
		s.Title,
		nullString(s.Description),
		nullString(s.Location),
		sqlite.NullableNanos(s.StartsAt),
		sqlite.NullableNanos(s.EndsAt),
		sqlite.ToNanos(s.UpdatedAt),
		string(s.ID),
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return sessionrepo.ErrNotFound
	}
	return nil
}

func (r *Repo) GetByID(ctx context.Context, id domain.SessionID) (sessionrepo.Session, error) {
	return scanSession(r.db.QueryRowContext(ctx, `SELECT `+selectColumns+` FROM sessions WHERE external_id = ?`, string(id)))
}

func (r *Repo) List(ctx context.Context) ([]sessionrepo.Session, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+selectColumns+`
		FROM sessions
		ORDER BY starts_at IS NULL, starts_at ASC, created_at ASC, external_id ASC
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

type scanner interface {
	Scan(dest ...any) error
}

func scanSession(row scanner) (sessionrepo.Session, error) {
	var (
		s                     sessionrepo.Session
		id                    string
		description, location sql.NullString
		startsAt, endsAt      sql.NullInt64
		capacity              sql.NullInt64
		createdAt, updated    int64
	)
	if err := row.Scan(&id, &s.Title, &description, &location, &startsAt, &endsAt, &capacity, &createdAt, &updated); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return sessionrepo.Session{}, sessionrepo.ErrNotFound
		}
		return sessionrepo.Session{}, err
	}
	s.ID = domain.SessionID(id)
	if description.Valid {
		s.Description = &description.String
	}
	if location.Valid {
		s.Location = &location.String
	}
	s.StartsAt = sqlite.TimePtr(startsAt)
	s.EndsAt = sqlite.TimePtr(endsAt)
	if capacity.Valid {
		v := int(capacity.Int64)
		s.MaxCapacity = &v
	}
	s.CreatedAt = sqlite.FromNanos(createdAt)
	s.UpdatedAt = sqlite.FromNanos(updated)
	return s, nil
}

func nullString(p *string) sql.NullString {
	if p == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *p, Valid: true}
}

func nullInt(p *int) sql.NullInt64 {
	if p == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*p), Valid: true}
}
