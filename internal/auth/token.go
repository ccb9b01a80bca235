package auth

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// TokenOptions configure the access-token codec. Key must carry at least 32
// bytes; LoadConfig rejects anything shorter before the codec is built.
type TokenOptions struct {
	Key       []byte
	Issuer    string
	Audience  string
	AccessTTL time.Duration
}

// Claims is the signed payload of an access token. Roles and permissions are
// array-valued claims, never delimited strings.
type Claims struct {
	jwt.RegisteredClaims
	Email       string   `json:"email"`
	FirstName   string   `json:"given_name"`
	LastName    string   `json:"family_name"`
	Roles       []string `json:"roles"`
	Permissions []string `json:"permissions"`
}

// Codec signs and verifies access tokens. It holds no mutable state and is
// safe for concurrent use.
type Codec struct {
	opts   TokenOptions
	logger *slog.Logger
	now    func() time.Time
}

// NewCodec constructs a Codec. The logger only records rejected tokens and
// may be nil.
func NewCodec(opts TokenOptions, logger *slog.Logger) *Codec {
	return &Codec{opts: opts, logger: logger, now: time.Now}
}

// Issue mints a signed access token for the user. Every call embeds a fresh
// UUIDv7 jti, so two issuances for the same user never collide.
func (c *Codec) Issue(user *User, roles, permissions []string) (string, int, error) {
	jti, err := uuid.NewV7()
	if err != nil {
		return "", 0, fmt.Errorf("auth: generate jti: %w", err)
	}

	now := c.now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID,
			Issuer:    c.opts.Issuer,
			Audience:  jwt.ClaimStrings{c.opts.Audience},
			ID:        jti.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(c.opts.AccessTTL)),
		},
		Email:       user.Email,
		FirstName:   user.FirstName,
		LastName:    user.LastName,
		Roles:       append([]string{}, roles...),
		Permissions: append([]string{}, permissions...),
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.opts.Key)
	if err != nil {
		return "", 0, fmt.Errorf("auth: sign token: %w", err)
	}
	return signed, int(c.opts.AccessTTL / time.Second), nil
}

// Verify checks signature, structure, issuer and audience, and returns the
// subject id. Expiry is deliberately not enforced: the refresh flow exchanges
// expired access tokens, and refresh-token lifetime is policed by the ledger
// instead. Callers needing full validation use Authenticate.
func (c *Codec) Verify(token string) (string, bool) {
	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, c.keyFunc,
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithoutClaimsValidation(),
	)
	if err != nil || !parsed.Valid {
		c.reject("verify", err)
		return "", false
	}
	if claims.Issuer != c.opts.Issuer || !hasAudience(claims.Audience, c.opts.Audience) {
		c.reject("verify", errClaimMismatch)
		return "", false
	}
	if claims.Subject == "" {
		c.reject("verify", errClaimMismatch)
		return "", false
	}
	return claims.Subject, true
}

// Authenticate fully validates a token, including expiry, and returns its
// claims. Used by the request-authorization middleware, not the refresh flow.
func (c *Codec) Authenticate(token string) (*Claims, error) {
	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, c.keyFunc,
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(c.opts.Issuer),
		jwt.WithAudience(c.opts.Audience),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		c.reject("authenticate", err)
		return nil, ErrInvalidToken
	}
	if !parsed.Valid || claims.Subject == "" {
		c.reject("authenticate", errClaimMismatch)
		return nil, ErrInvalidToken
	}
	return claims, nil
}

func (c *Codec) keyFunc(*jwt.Token) (any, error) {
	return c.opts.Key, nil
}

var errClaimMismatch = errors.New("issuer, audience or subject mismatch")

// reject records why a token was refused. The external contract stays a bare
// boolean; the reason exists for security auditing only.
func (c *Codec) reject(op string, err error) {
	if c.logger == nil {
		return
	}
	reason := "unexpected"
	switch {
	case errors.Is(err, jwt.ErrTokenMalformed):
		reason = "malformed"
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		reason = "bad_signature"
	case errors.Is(err, jwt.ErrTokenExpired):
		reason = "expired"
	case errors.Is(err, errClaimMismatch):
		reason = "claim_mismatch"
	}
	c.logger.Warn("access token rejected",
		slog.String("op", op),
		slog.String("reason", reason),
	)
}

func hasAudience(aud jwt.ClaimStrings, want string) bool {
	for _, a := range aud {
		if a == want {
			return true
		}
	}
	return false
}
