package rbac_test

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/complysurvey/complysurvey/internal/auth"
	"github.com/complysurvey/complysurvey/internal/rbac"
	_ "github.com/complysurvey/complysurvey/testing"
)

func testCodec() *auth.Codec {
	return auth.NewCodec(auth.TokenOptions{
		Key:       []byte("0123456789abcdef0123456789abcdef"),
		Issuer:    "complysurvey",
		Audience:  "complysurvey-api",
		AccessTTL: time.Hour,
	}, nil)
}

func protected(t *testing.T, mw rbac.Middleware, perms ...string) http.Handler {
	t.Helper()
	final := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims := rbac.ClaimsFromContext(r.Context())
		require.NotNil(t, claims)
		w.WriteHeader(http.StatusOK)
	})
	return mw.Authenticate(mw.RequireAny(perms...)(final))
}

func issueToken(t *testing.T, codec *auth.Codec, permissions []string) string {
	t.Helper()
	token, _, err := codec.Issue(&auth.User{ID: "user-1", Email: "jordan@example.com"}, nil, permissions)
	require.NoError(t, err)
	return token
}

func TestAuthenticateRejectsMissingHeader(t *testing.T) {
	mw := rbac.Middleware{Codec: testCodec()}
	handler := protected(t, mw)

	res := httptest.NewRecorder()
	handler.ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusUnauthorized, res.Code)
}

func TestAuthenticateRejectsBadToken(t *testing.T) {
	mw := rbac.Middleware{Codec: testCodec()}
	handler := protected(t, mw)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer garbage")
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	assert.Equal(t, http.StatusUnauthorized, res.Code)
}

func TestAuthenticateAcceptsValidToken(t *testing.T) {
	codec := testCodec()
	mw := rbac.Middleware{Codec: codec}
	handler := protected(t, mw)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+issueToken(t, codec, nil))
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	assert.Equal(t, http.StatusOK, res.Code)
}

func TestRequireAnyPermission(t *testing.T) {
	codec := testCodec()
	mw := rbac.Middleware{Codec: codec}
	handler := protected(t, mw, "users:read")

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+issueToken(t, codec, []string{"users:read"}))
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	assert.Equal(t, http.StatusOK, res.Code)

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+issueToken(t, codec, []string{"reports:read"}))
	res = httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	assert.Equal(t, http.StatusForbidden, res.Code)
}
