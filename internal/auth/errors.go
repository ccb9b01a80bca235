package auth

import "net/http"

// Error is an expected authentication failure. Code is machine readable,
// Status hints the transport mapping. Infrastructure faults (store
// unreachable, signing failure) are returned as ordinary wrapped errors and
// never as *Error.
type Error struct {
	Code        string
	Description string
	Status      int
}

func (e *Error) Error() string {
	return e.Code + ": " + e.Description
}

var (
	// ErrDisabledUser indicates the administrative kill-switch is set.
	ErrDisabledUser = &Error{Code: "Auth.DisabledUser", Description: "User account is disabled", Status: http.StatusForbidden}
	// ErrEmailNotConfirmed indicates the account email was never confirmed.
	ErrEmailNotConfirmed = &Error{Code: "Auth.EmailNotConfirmed", Description: "Email not confirmed", Status: http.StatusForbidden}
	// ErrLockedUser indicates the account is inside its lockout window.
	ErrLockedUser = &Error{Code: "Auth.LockedUser", Description: "User account is locked", Status: http.StatusLocked}
	// ErrInvalidCredentials covers wrong password and unknown email alike.
	ErrInvalidCredentials = &Error{Code: "Auth.InvalidCredentials", Description: "Invalid email or password", Status: http.StatusUnauthorized}
	// ErrUserNotFound guards against a user vanishing between store calls.
	ErrUserNotFound = &Error{Code: "Auth.UserNotFound", Description: "User not found", Status: http.StatusNotFound}
	// ErrRolesFetchFailed indicates the authorization lookup failed.
	ErrRolesFetchFailed = &Error{Code: "Auth.RolesFetchFailed", Description: "Failed to fetch user roles", Status: http.StatusInternalServerError}
	// ErrInvalidToken indicates the access token failed signature or
	// structural checks.
	ErrInvalidToken = &Error{Code: "Auth.InvalidToken", Description: "Invalid token", Status: http.StatusUnauthorized}
	// ErrInvalidRefreshToken indicates the refresh token is unknown, revoked
	// or expired.
	ErrInvalidRefreshToken = &Error{Code: "Auth.InvalidRefreshToken", Description: "Invalid refresh token", Status: http.StatusUnauthorized}
)

// CreationFailed wraps a store-reported user creation failure.
func CreationFailed(message string) *Error {
	if message == "" {
		message = "Failed to create user"
	}
	return &Error{Code: "User.CreationFailed", Description: message, Status: http.StatusConflict}
}

// UpdateFailed wraps a store-reported user update failure.
func UpdateFailed(message string) *Error {
	if message == "" {
		message = "Failed to update user"
	}
	return &Error{Code: "User.UpdateFailed", Description: message, Status: http.StatusInternalServerError}
}
