package auth

import "context"

// CredentialStatus classifies the outcome of a credential check.
type CredentialStatus int

const (
	// CredentialOK means email and password matched an active account.
	CredentialOK CredentialStatus = iota
	// CredentialInvalid covers unknown email and wrong password alike.
	CredentialInvalid
	// CredentialDisabled means the administrative kill-switch is set.
	CredentialDisabled
	// CredentialEmailNotConfirmed means the account may not sign in yet.
	CredentialEmailNotConfirmed
	// CredentialLocked means the account is inside its lockout window.
	CredentialLocked
)

// UserStore is the capability set the auth service needs from a user backend.
// Two implementations exist and are selected at deployment time:
//
//   - IdentityStore delegates password verification and lockout bookkeeping
//     to the managed identity subsystem. Its RolesAndPermissions is a stub
//     returning empty sets until the identity subsystem grows a role model.
//   - ProcedureStore drives every operation through PostgreSQL stored
//     functions and resolves roles/permissions authoritatively.
//
// Callers must not assume the two behave identically beyond this contract.
type UserStore interface {
	// FindByEmail returns the user with the given address, or (nil, nil)
	// when no such user exists. Lookup is case-insensitive.
	FindByEmail(ctx context.Context, email string) (*User, error)

	// FindByID returns the user with the given id, or (nil, nil).
	FindByID(ctx context.Context, id string) (*User, error)

	// ValidateCredentials checks email/password. The disabled flag is
	// consulted before the password so a disabled account never leaks
	// whether the password was correct. With lockoutOnFailure set, a wrong
	// password increments a server-side failure counter that locks the
	// account once the configured threshold is reached; success resets it.
	// The returned error is reserved for infrastructure faults.
	ValidateCredentials(ctx context.Context, email, password string, lockoutOnFailure bool) (CredentialStatus, error)

	// RolesAndPermissions resolves the authorization claims for a user.
	RolesAndPermissions(ctx context.Context, userID string) (roles, permissions []string, err error)

	// Create persists a new user with the given password. Duplicate email
	// is rejected with a *Error (User.CreationFailed).
	Create(ctx context.Context, user *User, password string) error

	// Update persists mutated identity fields and reconciles the
	// refresh-token collection: tokens not yet known to the store are
	// inserted, tokens whose RevokedOn was newly set are marked revoked.
	// The reconciliation is atomic; a partial write would let a revoked
	// token outlive its replacement.
	Update(ctx context.Context, user *User) error
}
