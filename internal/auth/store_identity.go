package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/complysurvey/complysurvey/internal/identity"
	"github.com/complysurvey/complysurvey/internal/platform/db"
)

// IdentityStore is the UserStore variant backed by the managed identity
// subsystem. Password verification and lockout bookkeeping are delegated to
// identity.Manager; this store only maps records into the auth domain and
// owns the refresh-token reconciliation.
type IdentityStore struct {
	pool    *pgxpool.Pool
	manager *identity.Manager
}

// NewIdentityStore constructs an IdentityStore.
func NewIdentityStore(pool *pgxpool.Pool, manager *identity.Manager) *IdentityStore {
	return &IdentityStore{pool: pool, manager: manager}
}

var _ UserStore = (*IdentityStore)(nil)

// FindByEmail looks up a user by canonicalised address.
func (s *IdentityStore) FindByEmail(ctx context.Context, email string) (*User, error) {
	rec, err := s.manager.FindByEmail(ctx, NormalizeEmail(email))
	if err != nil || rec == nil {
		return nil, err
	}
	return s.toUser(ctx, rec)
}

// FindByID looks up a user by id.
func (s *IdentityStore) FindByID(ctx context.Context, id string) (*User, error) {
	rec, err := s.manager.FindByID(ctx, id)
	if err != nil || rec == nil {
		return nil, err
	}
	return s.toUser(ctx, rec)
}

// ValidateCredentials delegates the whole decision to the identity
// subsystem's sign-in pipeline.
func (s *IdentityStore) ValidateCredentials(ctx context.Context, email, password string, lockoutOnFailure bool) (CredentialStatus, error) {
	rec, err := s.manager.FindByEmail(ctx, NormalizeEmail(email))
	if err != nil {
		return CredentialInvalid, err
	}

	status, err := s.manager.SignIn(ctx, rec, password, lockoutOnFailure)
	if err != nil {
		return CredentialInvalid, err
	}
	switch status {
	case identity.SignInOK:
		return CredentialOK, nil
	case identity.SignInDisabled:
		return CredentialDisabled, nil
	case identity.SignInNotAllowed:
		return CredentialEmailNotConfirmed, nil
	case identity.SignInLocked:
		return CredentialLocked, nil
	default:
		return CredentialInvalid, nil
	}
}

// RolesAndPermissions is a stub: the identity subsystem has no role model
// yet, so every user resolves to empty sets. Tokens minted through this
// store carry no authorization claims; callers must not read that as "no
// permissions assigned" at the product level. The procedure store is the
// authoritative variant for authorization.
func (s *IdentityStore) RolesAndPermissions(ctx context.Context, userID string) ([]string, []string, error) {
	return []string{}, []string{}, nil
}

// Create registers a new identity record for the user.
func (s *IdentityStore) Create(ctx context.Context, user *User, password string) error {
	rec := &identity.Record{
		Email:          user.Email,
		FirstName:      user.FirstName,
		LastName:       user.LastName,
		EmailConfirmed: user.EmailConfirmed,
	}
	err := s.manager.CreateUser(ctx, rec, NormalizeEmail(user.Email), password)
	if errors.Is(err, identity.ErrDuplicateEmail) {
		return CreationFailed("Email already registered")
	}
	if err != nil {
		return err
	}
	user.ID = rec.ID
	user.CreatedAt = rec.CreatedAt
	return nil
}

// Update persists profile fields and reconciles the refresh-token collection
// in a single transaction, so a rotation's revoke and insert land together.
func (s *IdentityStore) Update(ctx context.Context, user *User) error {
	rec := &identity.Record{
		ID:             user.ID,
		FirstName:      user.FirstName,
		LastName:       user.LastName,
		IsDisabled:     user.IsDisabled,
		EmailConfirmed: user.EmailConfirmed,
	}
	return db.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		if err := s.manager.UpdateUser(ctx, tx, rec); err != nil {
			return err
		}
		return reconcileRefreshTokens(ctx, tx, user)
	})
}

func (s *IdentityStore) toUser(ctx context.Context, rec *identity.Record) (*User, error) {
	user := &User{
		ID:             rec.ID,
		Email:          rec.Email,
		FirstName:      rec.FirstName,
		LastName:       rec.LastName,
		IsDisabled:     rec.IsDisabled,
		EmailConfirmed: rec.EmailConfirmed,
		LockoutEnd:     rec.LockoutEnd,
		CreatedAt:      rec.CreatedAt,
	}
	tokens, err := loadRefreshTokens(ctx, s.pool, rec.ID)
	if err != nil {
		return nil, err
	}
	user.RefreshTokens = tokens
	return user, nil
}

type rowQuerier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func loadRefreshTokens(ctx context.Context, q rowQuerier, userID string) ([]RefreshToken, error) {
	rows, err := q.Query(ctx,
		`SELECT token, created_on, expires_on, revoked_on
		 FROM refresh_tokens WHERE user_id = $1 ORDER BY created_on`,
		userID)
	if err != nil {
		return nil, fmt.Errorf("auth: load refresh tokens: %w", err)
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

// reconcileRefreshTokens makes the stored collection match the in-memory
// one: unseen tokens are inserted (the insert is a no-op for tokens already
// known) and newly revoked tokens get their revoked_on stamped exactly once.
func reconcileRefreshTokens(ctx context.Context, tx pgx.Tx, user *User) error {
	for i := range user.RefreshTokens {
		rt := &user.RefreshTokens[i]
		if rt.RevokedOn == nil {
			_, err := tx.Exec(ctx,
				`INSERT INTO refresh_tokens (token, user_id, created_on, expires_on)
				 VALUES ($1, $2, $3, $4)
				 ON CONFLICT (token) DO NOTHING`,
				rt.Token, user.ID, rt.CreatedOn, rt.ExpiresOn)
			if err != nil {
				return fmt.Errorf("auth: insert refresh token: %w", err)
			}
			continue
		}
		_, err := tx.Exec(ctx,
			`UPDATE refresh_tokens SET revoked_on = $2
			 WHERE token = $1 AND revoked_on IS NULL`,
			rt.Token, *rt.RevokedOn)
		if err != nil {
			return fmt.Errorf("auth: revoke refresh token: %w", err)
		}
	}
	return nil
}
