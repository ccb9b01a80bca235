package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	_ "github.com/complysurvey/complysurvey/testing"
)

var testKey = []byte("0123456789abcdef0123456789abcdef")

func testCodec(t *testing.T) *Codec {
	t.Helper()
	return NewCodec(TokenOptions{
		Key:       testKey,
		Issuer:    "complysurvey",
		Audience:  "complysurvey-api",
		AccessTTL: time.Hour,
	}, nil)
}

func testUser() *User {
	return &User{
		ID:        "0190f7a0-0000-7000-8000-000000000001",
		Email:     "jordan@example.com",
		FirstName: "Jordan",
		LastName:  "Reyes",
	}
}

func TestIssueEmbedsClaims(t *testing.T) {
	codec := testCodec(t)

	token, expiresIn, err := codec.Issue(testUser(), []string{"Admin", "Auditor"}, []string{"users:read"})
	require.NoError(t, err)
	assert.Equal(t, 3600, expiresIn)

	claims, err := codec.Authenticate(token)
	require.NoError(t, err)
	assert.Equal(t, "0190f7a0-0000-7000-8000-000000000001", claims.Subject)
	assert.Equal(t, "jordan@example.com", claims.Email)
	assert.Equal(t, "Jordan", claims.FirstName)
	assert.Equal(t, "Reyes", claims.LastName)
	assert.Equal(t, []string{"Admin", "Auditor"}, claims.Roles)
	assert.Equal(t, []string{"users:read"}, claims.Permissions)
	assert.NotEmpty(t, claims.ID)
}

func TestIssueNilRolesBecomeEmptyArrays(t *testing.T) {
	codec := testCodec(t)

	token, _, err := codec.Issue(testUser(), nil, nil)
	require.NoError(t, err)

	claims, err := codec.Authenticate(token)
	require.NoError(t, err)
	assert.NotNil(t, claims.Roles)
	assert.NotNil(t, claims.Permissions)
	assert.Empty(t, claims.Roles)
	assert.Empty(t, claims.Permissions)
}

func TestIssueGeneratesUniqueTokenIDs(t *testing.T) {
	codec := testCodec(t)
	user := testUser()

	first, _, err := codec.Issue(user, nil, nil)
	require.NoError(t, err)
	second, _, err := codec.Issue(user, nil, nil)
	require.NoError(t, err)

	firstClaims, err := codec.Authenticate(first)
	require.NoError(t, err)
	secondClaims, err := codec.Authenticate(second)
	require.NoError(t, err)
	assert.NotEqual(t, firstClaims.ID, secondClaims.ID)
}

func TestVerifyAcceptsExpiredToken(t *testing.T) {
	codec := testCodec(t)
	codec.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }

	token, _, err := codec.Issue(testUser(), nil, nil)
	require.NoError(t, err)

	codec.now = time.Now
	subject, ok := codec.Verify(token)
	require.True(t, ok, "verify must tolerate an expired token")
	assert.Equal(t, "0190f7a0-0000-7000-8000-000000000001", subject)

	_, err = codec.Authenticate(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestVerifyRejectsWrongKey(t *testing.T) {
	codec := testCodec(t)
	other := NewCodec(TokenOptions{
		Key:       []byte("ffffffffffffffffffffffffffffffff"),
		Issuer:    "complysurvey",
		Audience:  "complysurvey-api",
		AccessTTL: time.Hour,
	}, nil)

	token, _, err := other.Issue(testUser(), nil, nil)
	require.NoError(t, err)

	_, ok := codec.Verify(token)
	assert.False(t, ok)
}

func TestVerifyRejectsIssuerMismatch(t *testing.T) {
	codec := testCodec(t)
	other := NewCodec(TokenOptions{
		Key:       testKey,
		Issuer:    "someone-else",
		Audience:  "complysurvey-api",
		AccessTTL: time.Hour,
	}, nil)

	token, _, err := other.Issue(testUser(), nil, nil)
	require.NoError(t, err)

	_, ok := codec.Verify(token)
	assert.False(t, ok)
}

func TestVerifyRejectsAudienceMismatch(t *testing.T) {
	codec := testCodec(t)
	other := NewCodec(TokenOptions{
		Key:       testKey,
		Issuer:    "complysurvey",
		Audience:  "another-api",
		AccessTTL: time.Hour,
	}, nil)

	token, _, err := other.Issue(testUser(), nil, nil)
	require.NoError(t, err)

	_, ok := codec.Verify(token)
	assert.False(t, ok)
}

func TestVerifyRejectsGarbage(t *testing.T) {
	codec := testCodec(t)

	_, ok := codec.Verify("not-a-token")
	assert.False(t, ok)

	_, err := codec.Authenticate("not-a-token")
	assert.ErrorIs(t, err, ErrInvalidToken)
}
