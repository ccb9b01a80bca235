package auth

import (
	"crypto/rand"
	"encoding/base64"
	"strings"
	"time"

	"golang.org/x/text/secure/precis"
)

// User is the account record the credential stores hand to the service.
// The refresh-token collection is loaded alongside the user; mutations to it
// are persisted through UserStore.Update.
type User struct {
	ID             string
	Email          string
	FirstName      string
	LastName       string
	IsDisabled     bool
	EmailConfirmed bool
	LockoutEnd     *time.Time
	CreatedAt      time.Time
	RefreshTokens  []RefreshToken
}

// RefreshToken is a long-lived opaque secret exchanged for a new token pair.
type RefreshToken struct {
	Token     string
	CreatedOn time.Time
	ExpiresOn time.Time
	RevokedOn *time.Time
}

// Active reports whether the token may still be exchanged. Expiry is derived
// from the clock, never from a store mutation.
func (rt *RefreshToken) Active(now time.Time) bool {
	return rt.RevokedOn == nil && now.Before(rt.ExpiresOn)
}

// Revoke marks the token revoked. Revoking twice is a no-op.
func (rt *RefreshToken) Revoke(now time.Time) {
	if rt.RevokedOn == nil {
		at := now
		rt.RevokedOn = &at
	}
}

const refreshSecretBytes = 64

// NewRefreshSecret returns a fresh base64-rendered refresh-token secret drawn
// from the platform CSPRNG.
func NewRefreshSecret() (string, error) {
	buf := make([]byte, refreshSecretBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(buf), nil
}

// NormalizeEmail canonicalises an address for case-insensitive lookup.
func NormalizeEmail(email string) string {
	trimmed := strings.TrimSpace(email)
	normalized, err := precis.UsernameCaseMapped.String(trimmed)
	if err != nil {
		return strings.ToLower(trimmed)
	}
	return normalized
}

// AuthResponse is the payload returned by login and refresh.
type AuthResponse struct {
	UserID                string    `json:"userId"`
	Email                 string    `json:"email,omitempty"`
	FirstName             string    `json:"firstName"`
	LastName              string    `json:"lastName"`
	AccessToken           string    `json:"accessToken"`
	ExpiresIn             int       `json:"expiresIn"`
	RefreshToken          string    `json:"refreshToken"`
	RefreshTokenExpiresAt time.Time `json:"refreshTokenExpiresAt"`
}
