// Package identity is the platform's managed identity subsystem. It owns
// credential records, password hashing and lockout bookkeeping; the
// identity-backed credential store maps its records into the auth domain at
// the boundary and must not reimplement any of this.
package identity

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"golang.org/x/crypto/bcrypt"
)

// ErrDuplicateEmail is returned by CreateUser when the address is taken.
var ErrDuplicateEmail = errors.New("identity: email already registered")

// Record is an identity account as the subsystem stores it.
type Record struct {
	ID             string
	Email          string
	FirstName      string
	LastName       string
	PasswordHash   string
	IsDisabled     bool
	EmailConfirmed bool
	LockoutEnd     *time.Time
	CreatedAt      time.Time
}

// SignInStatus is the outcome of a sign-in check.
type SignInStatus int

const (
	SignInOK SignInStatus = iota
	SignInInvalid
	SignInDisabled
	SignInNotAllowed // email not confirmed
	SignInLocked
)

// Options tune the lockout policy.
type Options struct {
	MaxFailures   int
	LockoutWindow time.Duration
}

// Manager implements the identity subsystem over PostgreSQL records and
// Redis lockout counters. Counters live in Redis so repeated failures across
// instances share one window.
type Manager struct {
	pool  *pgxpool.Pool
	redis *redis.Client
	opts  Options
	now   func() time.Time
}

// NewManager constructs a Manager.
func NewManager(pool *pgxpool.Pool, rdb *redis.Client, opts Options) *Manager {
	if opts.MaxFailures <= 0 {
		opts.MaxFailures = 5
	}
	if opts.LockoutWindow <= 0 {
		opts.LockoutWindow = 15 * time.Minute
	}
	return &Manager{pool: pool, redis: rdb, opts: opts, now: time.Now}
}

const recordColumns = `id, email, first_name, last_name, password_hash, is_disabled, email_confirmed, lockout_end, created_at`

// FindByEmail returns the record for a canonicalised address, or (nil, nil).
func (m *Manager) FindByEmail(ctx context.Context, normalizedEmail string) (*Record, error) {
	row := m.pool.QueryRow(ctx,
		`SELECT `+recordColumns+` FROM auth_users WHERE email_normalized = $1`,
		normalizedEmail)
	return scanRecord(row)
}

// FindByID returns the record for an id, or (nil, nil).
func (m *Manager) FindByID(ctx context.Context, id string) (*Record, error) {
	row := m.pool.QueryRow(ctx,
		`SELECT `+recordColumns+` FROM auth_users WHERE id = $1`,
		id)
	return scanRecord(row)
}

// CreateUser hashes the password and inserts the record. The id is generated
// by the store, never caller-supplied.
func (m *Manager) CreateUser(ctx context.Context, rec *Record, normalizedEmail, password string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("identity: hash password: %w", err)
	}

	err = m.pool.QueryRow(ctx,
		`INSERT INTO auth_users (email, email_normalized, first_name, last_name, password_hash, email_confirmed)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING id, created_at`,
		rec.Email, normalizedEmail, rec.FirstName, rec.LastName, string(hash), rec.EmailConfirmed,
	).Scan(&rec.ID, &rec.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrDuplicateEmail
		}
		return fmt.Errorf("identity: create user: %w", err)
	}
	rec.PasswordHash = string(hash)
	return nil
}

// UpdateUser persists mutable profile fields inside the caller's transaction.
func (m *Manager) UpdateUser(ctx context.Context, tx pgx.Tx, rec *Record) error {
	tag, err := tx.Exec(ctx,
		`UPDATE auth_users
		 SET first_name = $2, last_name = $3, is_disabled = $4, email_confirmed = $5
		 WHERE id = $1`,
		rec.ID, rec.FirstName, rec.LastName, rec.IsDisabled, rec.EmailConfirmed)
	if err != nil {
		return fmt.Errorf("identity: update user: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("identity: update user: no such user %s", rec.ID)
	}
	return nil
}

// SignIn verifies a password against an already-loaded record, running the
// same pre-checks the sign-in pipeline always runs: disabled first (a
// disabled account must not leak password correctness), then confirmation,
// then lockout, then the hash comparison.
func (m *Manager) SignIn(ctx context.Context, rec *Record, password string, lockoutOnFailure bool) (SignInStatus, error) {
	if rec == nil {
		return SignInInvalid, nil
	}
	if rec.IsDisabled {
		return SignInDisabled, nil
	}
	if !rec.EmailConfirmed {
		return SignInNotAllowed, nil
	}

	locked, err := m.lockedOut(ctx, rec.ID)
	if err != nil {
		return SignInInvalid, err
	}
	if locked {
		return SignInLocked, nil
	}

	if bcrypt.CompareHashAndPassword([]byte(rec.PasswordHash), []byte(password)) != nil {
		if !lockoutOnFailure {
			return SignInInvalid, nil
		}
		nowLocked, err := m.registerFailure(ctx, rec.ID)
		if err != nil {
			return SignInInvalid, err
		}
		if nowLocked {
			return SignInLocked, nil
		}
		return SignInInvalid, nil
	}

	if err := m.resetFailures(ctx, rec.ID); err != nil {
		return SignInInvalid, err
	}
	return SignInOK, nil
}

func lockoutKey(userID string) string  { return "identity:lockout:" + userID }
func failuresKey(userID string) string { return "identity:failures:" + userID }

func (m *Manager) lockedOut(ctx context.Context, userID string) (bool, error) {
	err := m.redis.Get(ctx, lockoutKey(userID)).Err()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("identity: read lockout: %w", err)
	}
	return true, nil
}

// registerFailure bumps the failure counter and reports whether the account
// just crossed the lockout threshold.
func (m *Manager) registerFailure(ctx context.Context, userID string) (bool, error) {
	key := failuresKey(userID)
	count, err := m.redis.Incr(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("identity: count failure: %w", err)
	}
	if err := m.redis.Expire(ctx, key, m.opts.LockoutWindow).Err(); err != nil {
		return false, fmt.Errorf("identity: expire failure counter: %w", err)
	}
	if count < int64(m.opts.MaxFailures) {
		return false, nil
	}

	until := m.now().Add(m.opts.LockoutWindow)
	if err := m.redis.Set(ctx, lockoutKey(userID), until.Unix(), m.opts.LockoutWindow).Err(); err != nil {
		return false, fmt.Errorf("identity: set lockout: %w", err)
	}
	if err := m.redis.Del(ctx, key).Err(); err != nil {
		return false, fmt.Errorf("identity: reset failure counter: %w", err)
	}
	return true, nil
}

func (m *Manager) resetFailures(ctx context.Context, userID string) error {
	if err := m.redis.Del(ctx, failuresKey(userID)).Err(); err != nil {
		return fmt.Errorf("identity: reset failure counter: %w", err)
	}
	return nil
}

func scanRecord(row pgx.Row) (*Record, error) {
	var rec Record
	var lockoutEnd pgtype.Timestamptz
	err := row.Scan(&rec.ID, &rec.Email, &rec.FirstName, &rec.LastName,
		&rec.PasswordHash, &rec.IsDisabled, &rec.EmailConfirmed, &lockoutEnd, &rec.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("identity: scan record: %w", err)
	}
	if lockoutEnd.Valid {
		t := lockoutEnd.Time
		rec.LockoutEnd = &t
	}
	return &rec, nil
}
