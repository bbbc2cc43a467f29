package core

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edvin/proxyctl/internal/crypto"
	"github.com/edvin/proxyctl/internal/model"
)

func TestUserCreate(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	u, err := h.svc.User.Create(ctx, NewUser{Username: " ops ", Email: "ops@example.com", Password: "longenough", Role: "operator"})
	require.NoError(t, err)
	assert.Equal(t, "ops", u.Username)
	assert.Equal(t, model.RoleOperator, u.Role)
	assert.True(t, u.IsActive)
	assert.True(t, crypto.VerifyPassword("longenough", u.PasswordHash))

	_, err = h.svc.User.Create(ctx, NewUser{Username: "ops", Password: "longenough"})
	assert.ErrorIs(t, err, ErrConflict)

	_, err = h.svc.User.Create(ctx, NewUser{Username: "x", Password: "short"})
	assert.ErrorIs(t, err, ErrInvalidInput)
	_, err = h.svc.User.Create(ctx, NewUser{Username: "other", Password: "longenough", Role: "root"})
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestUserListAndUpdate(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	createUser(t, h, "zed", "longenough")
	a := createUser(t, h, "amy", "longenough")

	users, err := h.svc.User.List(ctx)
	require.NoError(t, err)
	require.Len(t, users, 2)
	assert.Equal(t, "amy", users[0].Username)

	email, pw := "amy@example.com", "brand new password"
	u, err := h.svc.User.Update(ctx, a.ID, UserPatch{Email: &email, Password: &pw})
	require.NoError(t, err)
	assert.Equal(t, email, u.Email)

	_, _, err = h.svc.Auth.Login(ctx, "amy", "brand new password")
	assert.NoError(t, err)

	_, err = h.svc.User.Update(ctx, a.ID, UserPatch{})
	assert.ErrorIs(t, err, ErrInvalidInput)
	_, err = h.svc.User.Update(ctx, "missing", UserPatch{Email: &email})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestUserSetActive(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	u := createUser(t, h, "amy", "longenough")

	got, err := h.svc.User.SetActive(ctx, u.ID, false)
	require.NoError(t, err)
	assert.False(t, got.IsActive)

	got, err = h.svc.User.SetActive(ctx, u.ID, true)
	require.NoError(t, err)
	assert.True(t, got.IsActive)

	_, err = h.svc.User.SetActive(ctx, "missing", true)
	assert.ErrorIs(t, err, ErrNotFound)
}
