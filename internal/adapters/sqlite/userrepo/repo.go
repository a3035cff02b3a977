package userrepo

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/conference-site/schedule-api/internal/adapters/sqlite"
	"github.com/conference-site/schedule-api/internal/domain"
	"github.com/conference-site/schedule-api/internal/ports/out/userrepo"
)

// Repo is a SQLite implementation of userrepo.Repository.
type Repo struct {
	db *sql.DB
}

func NewRepo(store *sqlite.Store) *Repo {
	return &Repo{db: store.DB()}
}

const selectColumns = `external_id, subject, display_name, email, created_at, updated_at`

func (r *Repo) Create(ctx context.Context, u userrepo.User) error {
	if u.ID == "" {
		return userrepo.ErrAlreadyExists
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO users (external_id, subject, display_name, email, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, string(u.ID), string(u.Subject), u.DisplayName, u.Email, sqlite.ToNanos(u.CreatedAt), sqlite.ToNanos(u.UpdatedAt))
	if err != nil {
		if sqlite.IsUniqueViolation(err) {
			// The message names the column: "UNIQUE constraint failed: users.subject".
			if strings.Contains(err.Error(), "users.subject") {
				return userrepo.ErrSubjectAlreadyBound
			}
			return userrepo.ErrAlreadyExists
		}
		return err
	}
	return nil
}

func (r *Repo) GetByID(ctx context.Context, id domain.UserID) (userrepo.User, error) {
	return scanUser(r.db.QueryRowContext(ctx, `SELECT `+selectColumns+` FROM users WHERE external_id = ?`, string(id)))
}

func (r *Repo) GetBySubject(ctx context.Context, subject domain.SubjectID) (userrepo.User, error) {
	return scanUser(r.db.QueryRowContext(ctx, `SELECT `+selectColumns+` FROM users WHERE subject = ?`, string(subject)))
}

func (r *Repo) ListByIDs(ctx context.Context, ids []domain.UserID) ([]userrepo.User, error) {
	if len(ids) == 0 {
		return []userrepo.User{}, nil
	}
	placeholders := make([]string, 0, len(ids))
	args := make([]any, 0, len(ids))
	for _, id := range ids {
		placeholders = append(placeholders, "?")
		args = append(args, string(id))
	}

	rows, err := r.db.QueryContext(ctx, `SELECT `+selectColumns+` FROM users WHERE external_id IN (`+strings.Join(placeholders, ",")+`)`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]userrepo.User, 0, len(ids))
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
	res, err := r.db.ExecContext(ctx, `DELETE FROM users WHERE external_id = ?`, string(id))
	if err != nil {
		if sqlite.IsForeignKeyViolation(err) {
			return userrepo.ErrHasRSVPs
		}
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return userrepo.ErrNotFound
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanUser(row scanner) (userrepo.User, error) {
	var (
		u                  userrepo.User
		id, subject        string
		createdAt, updated int64
	)
	if err := row.Scan(&id, &subject, &u.DisplayName, &u.Email, &createdAt, &updated); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return userrepo.User{}, userrepo.ErrNotFound
		}
		return userrepo.User{}, err
	}
	u.ID = domain.UserID(id)
	u.Subject = domain.SubjectID(subject)
	u.CreatedAt = sqlite.FromNanos(createdAt)
	u.UpdatedAt = sqlite.FromNanos(updated)
	return u, nil
}
