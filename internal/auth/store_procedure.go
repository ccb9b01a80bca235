package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/complysurvey/complysurvey/internal/platform/db"
)

// ProcedureStore is the UserStore variant that drives every operation
// through PostgreSQL stored functions. Each function reports a status code
// and message in its result row; a non-success status is authoritative and
// nothing else is persisted for that request. Unlike the identity store,
// roles and permissions here resolve through a real join and are
// authoritative.
type ProcedureStore struct {
	pool *pgxpool.Pool

	// Lockout policy, passed to auth_validate_credentials so the counter
	// lives next to the account row.
	maxFailures   int
	lockoutWindow time.Duration
}

// ProcedureStoreConfig collects the store settings.
type ProcedureStoreConfig struct {
	Pool          *pgxpool.Pool
	MaxFailures   int
	LockoutWindow time.Duration
}

// NewProcedureStore constructs a ProcedureStore.
func NewProcedureStore(cfg ProcedureStoreConfig) *ProcedureStore {
	maxFailures := cfg.MaxFailures
	if maxFailures <= 0 {
		maxFailures = 5
	}
	window := cfg.LockoutWindow
	if window <= 0 {
		window = 15 * time.Minute
	}
	return &ProcedureStore{pool: cfg.Pool, maxFailures: maxFailures, lockoutWindow: window}
}

var _ UserStore = (*ProcedureStore)(nil)

// FindByEmail fetches a user through auth_get_user_by_email.
func (s *ProcedureStore) FindByEmail(ctx context.Context, email string) (*User, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, email, first_name, last_name, is_disabled, email_confirmed, lockout_end, created_at
		 FROM auth_get_user_by_email($1)`,
		NormalizeEmail(email))
	return s.scanUser(ctx, row)
}

// FindByID fetches a user through auth_get_user_by_id.
func (s *ProcedureStore) FindByID(ctx context.Context, id string) (*User, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, email, first_name, last_name, is_disabled, email_confirmed, lockout_end, created_at
		 FROM auth_get_user_by_id($1)`,
		id)
	return s.scanUser(ctx, row)
}

// ValidateCredentials runs the whole credential decision inside
// auth_validate_credentials: disabled check, confirmation, lockout window,
// password comparison and failure counting, one round trip.
func (s *ProcedureStore) ValidateCredentials(ctx context.Context, email, password string, lockoutOnFailure bool) (CredentialStatus, error) {
	var isSuccess bool
	var errorCode pgtype.Text
	err := s.pool.QueryRow(ctx,
		`SELECT is_success, error_code
		 FROM auth_validate_credentials($1, $2, $3, $4, $5)`,
		NormalizeEmail(email), password, lockoutOnFailure, s.maxFailures, s.lockoutWindow,
	).Scan(&isSuccess, &errorCode)
	if err != nil {
		return CredentialInvalid, fmt.Errorf("auth: validate credentials call: %w", err)
	}
	if isSuccess {
		return CredentialOK, nil
	}

	switch errorCode.String {
	case "DisabledUser":
		return CredentialDisabled, nil
	case "EmailNotConfirmed":
		return CredentialEmailNotConfirmed, nil
	case "LockedUser":
		return CredentialLocked, nil
	default:
		return CredentialInvalid, nil
	}
}

// RolesAndPermissions resolves distinct role and permission names through
// the auth_user_roles_permissions join. A user with no assignments at all is
// treated as a failed lookup, not an empty grant set.
func (s *ProcedureStore) RolesAndPermissions(ctx context.Context, userID string) ([]string, []string, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT role_name, permission_name FROM auth_user_roles_permissions($1)`,
		userID)
	if err != nil {
		return nil, nil, fmt.Errorf("auth: roles lookup call: %w", err)
	}
	defer rows.Close()

	roleSet := map[string]struct{}{}
	permSet := map[string]struct{}{}
	var roles, permissions []string
	for rows.Next() {
		var role, perm pgtype.Text
		if err := rows.Scan(&role, &perm); err != nil {
			return nil, nil, fmt.Errorf("auth: scan role row: %w", err)
		}
		if role.Valid && role.String != "" {
			if _, seen := roleSet[role.String]; !seen {
				roleSet[role.String] = struct{}{}
				roles = append(roles, role.String)
			}
		}
		if perm.Valid && perm.String != "" {
			if _, seen := permSet[perm.String]; !seen {
				permSet[perm.String] = struct{}{}
				permissions = append(permissions, perm.String)
			}
		}
	}
	if err := rows.Err(); err != nil {
		return nil, nil, fmt.Errorf("auth: read role rows: %w", err)
	}
	if len(roles) == 0 && len(permissions) == 0 {
		return nil, nil, fmt.Errorf("auth: no role assignments for user %s", userID)
	}
	return roles, permissions, nil
}

// Create registers a user through auth_create_user, which hashes the
// password and reports the generated id.
func (s *ProcedureStore) Create(ctx context.Context, user *User, password string) error {
	var isSuccess bool
	var message, userID pgtype.Text
	err := s.pool.QueryRow(ctx,
		`SELECT is_success, error_message, user_id
		 FROM auth_create_user($1, $2, $3, $4, $5)`,
		user.Email, NormalizeEmail(user.Email), user.FirstName, user.LastName, password,
	).Scan(&isSuccess, &message, &userID)
	if err != nil {
		return fmt.Errorf("auth: create user call: %w", err)
	}
	if !isSuccess {
		return CreationFailed(message.String)
	}
	user.ID = userID.String
	return nil
}

// EmailExists reports whether an address is already registered.
func (s *ProcedureStore) EmailExists(ctx context.Context, email string) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx,
		`SELECT auth_email_exists($1)`, NormalizeEmail(email)).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("auth: email exists call: %w", err)
	}
	return exists, nil
}

// Update persists profile fields through auth_update_user and reconciles the
// refresh-token collection through auth_add_refresh_token /
// auth_revoke_refresh_token, all inside one transaction. A failure status
// from the update function aborts the transaction before any token write.
func (s *ProcedureStore) Update(ctx context.Context, user *User) error {
	return db.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		var isSuccess bool
		var message pgtype.Text
		err := tx.QueryRow(ctx,
			`SELECT is_success, error_message
			 FROM auth_update_user($1, $2, $3, $4, $5)`,
			user.ID, user.FirstName, user.LastName, user.IsDisabled, user.EmailConfirmed,
		).Scan(&isSuccess, &message)
		if err != nil {
			return fmt.Errorf("auth: update user call: %w", err)
		}
		if !isSuccess {
			return UpdateFailed(message.String)
		}

		for i := range user.RefreshTokens {
			rt := &user.RefreshTokens[i]
			if rt.RevokedOn == nil {
				_, err := tx.Exec(ctx,
					`SELECT auth_add_refresh_token($1, $2, $3, $4)`,
					user.ID, rt.Token, rt.CreatedOn, rt.ExpiresOn)
				if err != nil {
					return fmt.Errorf("auth: add refresh token call: %w", err)
				}
				continue
			}
			_, err := tx.Exec(ctx,
				`SELECT auth_revoke_refresh_token($1, $2)`,
				rt.Token, *rt.RevokedOn)
			if err != nil {
				return fmt.Errorf("auth: revoke refresh token call: %w", err)
			}
		}
		return nil
	})
}

func (s *ProcedureStore) scanUser(ctx context.Context, row pgx.Row) (*User, error) {
	var user User
	var lockoutEnd pgtype.Timestamptz
	err := row.Scan(&user.ID, &user.Email, &user.FirstName, &user.LastName,
		&user.IsDisabled, &user.EmailConfirmed, &lockoutEnd, &user.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("auth: scan user: %w", err)
	}
	if lockoutEnd.Valid {
		t := lockoutEnd.Time
		user.LockoutEnd = &t
	}

	tokens, err := loadUserRefreshTokens(ctx, s.pool, user.ID)
	if err != nil {
		return nil, err
	}
	user.RefreshTokens = tokens
	return &user, nil
}

func loadUserRefreshTokens(ctx context.Context, q rowQuerier, userID string) ([]RefreshToken, error) {
	rows, err := q.Query(ctx,
		`SELECT token, created_on, expires_on, revoked_on
		 FROM auth_get_refresh_tokens($1)`,
		userID)
	if err != nil {
		return nil, fmt.Errorf("auth: load refresh tokens call: %w", err)
	}
	defer rows.Close()

	var tokens []RefreshToken
	for rows.Next() {
		var rt RefreshToken
		var revokedOn pgtype.Timestamptz
		if err := rows.Scan(&rt.Token, &rt.CreatedOn, &rt.ExpiresOn, &revokedOn); err != nil {
			return nil, fmt.Errorf("auth: scan refresh token: %w", err)
		}
		if revokedOn.Valid {
			t := revokedOn.Time
			rt.RevokedOn = &t
		}
		tokens = append(tokens, rt)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("auth: read refresh tokens: %w", err)
	}
	return tokens, nil
}
