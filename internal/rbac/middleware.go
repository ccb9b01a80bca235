// Package rbac authorizes requests from access-token claims. Unlike the
// refresh flow, protected routes validate tokens fully, expiry included.
package rbac

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/complysurvey/complysurvey/internal/auth"
)

type claimsKey struct{}

// ClaimsFromContext returns the authenticated claims, if any.
func ClaimsFromContext(ctx context.Context) *auth.Claims {
	claims, _ := ctx.Value(claimsKey{}).(*auth.Claims)
	return claims
}

// Middleware wires token authentication and permission checks for HTTP
// handlers.
type Middleware struct {
	Codec  *auth.Codec
	Logger *slog.Logger
}

// Authenticate rejects requests without a valid bearer token and stores the
// token claims in the request context.
func (m Middleware) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := bearerToken(r)
		if !ok {
			http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
			return
		}
		claims, err := m.Codec.Authenticate(token)
		if err != nil {
			http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
			return
		}
		ctx := context.WithValue(r.Context(), claimsKey{}, claims)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireAny ensures the current token carries at least one of the required
// permissions.
func (m Middleware) RequireAny(perms ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if len(perms) == 0 {
				next.ServeHTTP(w, r)
				return
			}
			claims := ClaimsFromContext(r.Context())
			if claims == nil {
				http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
				return
			}
			for _, want := range perms {
				for _, got := range claims.Permissions {
					if got == want {
						next.ServeHTTP(w, r)
						return
					}
				}
			}
			if m.Logger != nil {
				m.Logger.Warn("permission denied",
					slog.String("subject", claims.Subject),
					slog.String("path", r.URL.Path),
				)
			}
			http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
		})
	}
}

func bearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if len(header) <= len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return "", false
	}
	return strings.TrimSpace(header[len(prefix):]), true
}
