package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockStore struct {
	user   *User
	status CredentialStatus

	roles       []string
	permissions []string

	validateErr error
	rolesErr    error
	updateErr   error

	updateCalls int
}

func (m *mockStore) FindByEmail(ctx context.Context, email string) (*User, error) {
	if m.user != nil && NormalizeEmail(email) == NormalizeEmail(m.user.Email) {
		return m.user, nil
	}
	return nil, nil
}

func (m *mockStore) FindByID(ctx context.Context, id string) (*User, error) {
	if m.user != nil && id == m.user.ID {
		return m.user, nil
	}
	return nil, nil
}

func (m *mockStore) ValidateCredentials(ctx context.Context, email, password string, lockoutOnFailure bool) (CredentialStatus, error) {
	return m.status, m.validateErr
}

func (m *mockStore) RolesAndPermissions(ctx context.Context, userID string) ([]string, []string, error) {
	return m.roles, m.permissions, m.rolesErr
}

func (m *mockStore) Create(ctx context.Context, user *User, password string) error {
	user.ID = "created-user-id"
	return nil
}

func (m *mockStore) Update(ctx context.Context, user *User) error {
	m.updateCalls++
	return m.updateErr
}

func newTestService(store UserStore, now func() time.Time) *Service {
	codec := NewCodec(TokenOptions{
		Key:       testKey,
		Issuer:    "complysurvey",
		Audience:  "complysurvey-api",
		AccessTTL: time.Hour,
	}, nil)
	return NewService(ServiceConfig{
		Store:      store,
		Codec:      codec,
		RefreshTTL: 14 * 24 * time.Hour,
		Now:        now,
	})
}

func TestLoginIssuesTokenPair(t *testing.T) {
	store := &mockStore{
		user:  testUser(),
		roles: []string{"Admin"},
	}
	svc := newTestService(store, nil)

	resp, err := svc.IssueOnLogin(context.Background(), "jordan@example.com", "Sup3r!pass")
	require.NoError(t, err)

	assert.Equal(t, store.user.ID, resp.UserID)
	assert.NotEmpty(t, resp.AccessToken)
	assert.NotEmpty(t, resp.RefreshToken)
	assert.Equal(t, 3600, resp.ExpiresIn)
	assert.Equal(t, 1, store.updateCalls)

	require.Len(t, store.user.RefreshTokens, 1)
	assert.Equal(t, resp.RefreshToken, store.user.RefreshTokens[0].Token)
	assert.True(t, store.user.RefreshTokens[0].Active(time.Now()))
}

func TestLoginCredentialFailures(t *testing.T) {
	cases := []struct {
		name   string
		status CredentialStatus
		want   *Error
	}{
		{"invalid", CredentialInvalid, ErrInvalidCredentials},
		{"disabled", CredentialDisabled, ErrDisabledUser},
		{"not confirmed", CredentialEmailNotConfirmed, ErrEmailNotConfirmed},
		{"locked", CredentialLocked, ErrLockedUser},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			store := &mockStore{user: testUser(), status: tc.status}
			svc := newTestService(store, nil)

			_, err := svc.IssueOnLogin(context.Background(), "jordan@example.com", "wrong")
			assert.ErrorIs(t, err, tc.want)
			assert.Zero(t, store.updateCalls, "no tokens may be written on a failed login")
		})
	}
}

func TestLoginUnknownUserAfterCredentialCheck(t *testing.T) {
	store := &mockStore{}
	svc := newTestService(store, nil)

	_, err := svc.IssueOnLogin(context.Background(), "ghost@example.com", "whatever")
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestLoginRolesLookupFailure(t *testing.T) {
	store := &mockStore{user: testUser(), rolesErr: errors.New("join blew up")}
	svc := newTestService(store, nil)

	_, err := svc.IssueOnLogin(context.Background(), "jordan@example.com", "Sup3r!pass")
	assert.ErrorIs(t, err, ErrRolesFetchFailed)
}

func TestRefreshRotationRejectsReplay(t *testing.T) {
	store := &mockStore{user: testUser()}
	svc := newTestService(store, nil)
	ctx := context.Background()

	login, err := svc.IssueOnLogin(ctx, "jordan@example.com", "Sup3r!pass")
	require.NoError(t, err)

	rotated, err := svc.RotateOnRefresh(ctx, login.AccessToken, login.RefreshToken)
	require.NoError(t, err)
	assert.NotEqual(t, login.RefreshToken, rotated.RefreshToken)
	assert.NotEqual(t, login.AccessToken, rotated.AccessToken)

	// The token consumed by the rotation must never work again.
	_, err = svc.RotateOnRefresh(ctx, rotated.AccessToken, login.RefreshToken)
	assert.ErrorIs(t, err, ErrInvalidRefreshToken)

	// The replacement is unaffected by the replay attempt.
	_, err = svc.RotateOnRefresh(ctx, rotated.AccessToken, rotated.RefreshToken)
	require.NoError(t, err)
}

func TestRefreshAcceptsExpiredAccessToken(t *testing.T) {
	store := &mockStore{user: testUser()}

	past := time.Now().Add(-3 * time.Hour)
	svc := newTestService(store, func() time.Time { return past })
	svc.codec.now = func() time.Time { return past }

	login, err := svc.IssueOnLogin(context.Background(), "jordan@example.com", "Sup3r!pass")
	require.NoError(t, err)

	// Two hours later the access token is long expired but the refresh token
	// still has thirteen days left.
	svc.codec.now = time.Now
	svc.now = time.Now

	rotated, err := svc.RotateOnRefresh(context.Background(), login.AccessToken, login.RefreshToken)
	require.NoError(t, err)
	assert.NotEmpty(t, rotated.AccessToken)
}

func TestRefreshRejectsExpiredRefreshToken(t *testing.T) {
	store := &mockStore{user: testUser()}

	past := time.Now().Add(-30 * 24 * time.Hour)
	svc := newTestService(store, func() time.Time { return past })
	svc.codec.now = func() time.Time { return past }

	login, err := svc.IssueOnLogin(context.Background(), "jordan@example.com", "Sup3r!pass")
	require.NoError(t, err)

	// Thirty days later the fourteen-day refresh token has lapsed. It was
	// never revoked; expiry alone must reject it.
	svc.codec.now = time.Now
	svc.now = time.Now

	_, err = svc.RotateOnRefresh(context.Background(), login.AccessToken, login.RefreshToken)
	assert.ErrorIs(t, err, ErrInvalidRefreshToken)
	require.Len(t, store.user.RefreshTokens, 1)
	assert.Nil(t, store.user.RefreshTokens[0].RevokedOn)
}

func TestRefreshRejectsForgedAccessToken(t *testing.T) {
	store := &mockStore{user: testUser()}
	svc := newTestService(store, nil)

	_, err := svc.RotateOnRefresh(context.Background(), "garbage", "whatever")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestRefreshRejectsUnknownRefreshToken(t *testing.T) {
	store := &mockStore{user: testUser()}
	svc := newTestService(store, nil)
	ctx := context.Background()

	login, err := svc.IssueOnLogin(ctx, "jordan@example.com", "Sup3r!pass")
	require.NoError(t, err)

	_, err = svc.RotateOnRefresh(ctx, login.AccessToken, "never-issued")
	assert.ErrorIs(t, err, ErrInvalidRefreshToken)
}

func TestRevokeOnLogout(t *testing.T) {
	store := &mockStore{user: testUser()}
	svc := newTestService(store, nil)
	ctx := context.Background()

	login, err := svc.IssueOnLogin(ctx, "jordan@example.com", "Sup3r!pass")
	require.NoError(t, err)

	require.NoError(t, svc.RevokeOnLogout(ctx, login.AccessToken, login.RefreshToken))
	require.Len(t, store.user.RefreshTokens, 1)
	assert.NotNil(t, store.user.RefreshTokens[0].RevokedOn)

	// Revoking again behaves exactly like presenting an unknown token.
	err = svc.RevokeOnLogout(ctx, login.AccessToken, login.RefreshToken)
	assert.ErrorIs(t, err, ErrInvalidRefreshToken)

	_, err = svc.RotateOnRefresh(ctx, login.AccessToken, login.RefreshToken)
	assert.ErrorIs(t, err, ErrInvalidRefreshToken)
}

func TestRefreshSecretsNeverRepeat(t *testing.T) {
	seen := make(map[string]struct{})
	for i := 0; i < 64; i++ {
		secret, err := NewRefreshSecret()
		require.NoError(t, err)
		_, dup := seen[secret]
		require.False(t, dup)
		seen[secret] = struct{}{}
	}
}

type checkingStore struct {
	mockStore
	exists bool
}

func (c *checkingStore) EmailExists(ctx context.Context, email string) (bool, error) {
	return c.exists, nil
}

func TestRegisterUsesEmailPreCheck(t *testing.T) {
	store := &checkingStore{exists: true}
	svc := newTestService(store, nil)

	_, err := svc.Register(context.Background(), RegisterRequest{
		Email:    "taken@example.com",
		Password: "Sup3r!pass",
	})
	var authErr *Error
	require.ErrorAs(t, err, &authErr)
	assert.Equal(t, "User.CreationFailed", authErr.Code)

	store.exists = false
	user, err := svc.Register(context.Background(), RegisterRequest{
		Email:    "free@example.com",
		Password: "Sup3r!pass",
	})
	require.NoError(t, err)
	assert.Equal(t, "created-user-id", user.ID)
}

func TestRegisterNormalizesEmail(t *testing.T) {
	store := &mockStore{}
	svc := newTestService(store, nil)

	user, err := svc.Register(context.Background(), RegisterRequest{
		Email:     "  Jordan@Example.COM ",
		Password:  "Sup3r!pass",
		FirstName: "Jordan",
		LastName:  "Reyes",
	})
	require.NoError(t, err)
	assert.Equal(t, "jordan@example.com", user.Email)
	assert.Equal(t, "created-user-id", user.ID)
}
