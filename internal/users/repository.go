package users

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/complysurvey/complysurvey/internal/platform/httpx"
)

// Repository provides PostgreSQL backed persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// GetUser returns a single account, wrapping httpx.ErrNotFound when the id
// is unknown.
func (r *Repository) GetUser(ctx context.Context, id string) (*User, error) {
	var u User
	err := r.pool.QueryRow(ctx,
		`SELECT id, email, first_name, last_name, is_disabled, email_confirmed, created_at
		 FROM auth_users WHERE id = $1`,
		id).Scan(&u.ID, &u.Email, &u.FirstName, &u.LastName,
		&u.IsDisabled, &u.EmailConfirmed, &u.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("users: user %s: %w", id, httpx.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("users: get: %w", err)
	}
	return &u, nil
}

// ListUsers returns all user accounts ordered by creation time.
func (r *Repository) ListUsers(ctx context.Context) ([]User, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, email, first_name, last_name, is_disabled, email_confirmed, created_at
		 FROM auth_users ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("users: list: %w", err)
	}
	defer rows.Close()

	var users []User
	for rows.Next() {
		var u User
		if err := rows.Scan(&u.ID, &u.Email, &u.FirstName, &u.LastName,
			&u.IsDisabled, &u.EmailConfirmed, &u.CreatedAt); err != nil {
			return nil, fmt.Errorf("users: scan: %w", err)
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("users: read rows: %w", err)
	}
	return users, nil
}
