package users

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/complysurvey/complysurvey/internal/platform/httpx"
	_ "github.com/complysurvey/complysurvey/testing"
)

type mockRepo struct {
	users []User
	err   error
}

func (m *mockRepo) GetUser(ctx context.Context, id string) (*User, error) {
	if m.err != nil {
		return nil, m.err
	}
	for i := range m.users {
		if m.users[i].ID == id {
			return &m.users[i], nil
		}
	}
	return nil, fmt.Errorf("users: user %s: %w", id, httpx.ErrNotFound)
}

func (m *mockRepo) ListUsers(ctx context.Context) ([]User, error) {
	return m.users, m.err
}

func TestListUsers(t *testing.T) {
	repo := &mockRepo{users: []User{
		{ID: "u1", Email: "a@example.com", CreatedAt: time.Now()},
		{ID: "u2", Email: "b@example.com", CreatedAt: time.Now()},
	}}
	svc := NewService(repo)

	got, err := svc.ListUsers(context.Background())
	require.NoError(t, err)
	assert.Len(t, got, 2)
	assert.Equal(t, "u1", got[0].ID)
}

func TestListUsersError(t *testing.T) {
	svc := NewService(&mockRepo{err: errors.New("down")})

	_, err := svc.ListUsers(context.Background())
	require.Error(t, err)
}

func TestGetUser(t *testing.T) {
	svc := NewService(&mockRepo{users: []User{{ID: "u1", Email: "a@example.com"}}})

	got, err := svc.GetUser(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, "a@example.com", got.Email)

	_, err = svc.GetUser(context.Background(), "missing")
	assert.ErrorIs(t, err, httpx.ErrNotFound)
}
