package core

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edvin/proxyctl/internal/model"
)

func createUser(t *testing.T, h *harness, username, password string) *model.User {
	t.Helper()
	u, err := h.svc.User.Create(context.Background(), NewUser{Username: username, Password: password})
	require.NoError(t, err)
	return u
}

func TestLogin_ValidateLogout(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	u := createUser(t, h, "admin", "correct horse")

	token, id, err := h.svc.Auth.Login(ctx, "admin", "correct horse")
	require.NoError(t, err)
	assert.NotEmpty(t, token)
	assert.Equal(t, u.ID, id.UserID)
	assert.Equal(t, model.RoleAdmin, id.Role)

	got, err := h.svc.Auth.Validate(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, "admin", got.Username)
	assert.Equal(t, id.SessionID, got.SessionID)

	stored, err := h.svc.User.Get(ctx, u.ID)
	require.NoError(t, err)
	assert.NotNil(t, stored.LastLogin)

	require.NoError(t, h.svc.Auth.Logout(ctx, token))
	_, err = h.svc.Auth.Validate(ctx, token)
	assert.ErrorIs(t, err, ErrUnauthorized)

	// Logging out twice is harmless.
	assert.NoError(t, h.svc.Auth.Logout(ctx, token))
}

func TestLogin_Rejects(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	createUser(t, h, "admin", "correct horse")

	_, _, err := h.svc.Auth.Login(ctx, "admin", "wrong password")
	assert.ErrorIs(t, err, ErrUnauthorized)
	_, _, err = h.svc.Auth.Login(ctx, "nobody", "correct horse")
	assert.ErrorIs(t, err, ErrUnauthorized)
	_, _, err = h.svc.Auth.Login(ctx, "", "")
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestLogin_DisabledUser(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	u := createUser(t, h, "admin", "correct horse")

	token, _, err := h.svc.Auth.Login(ctx, "admin", "correct horse")
	require.NoError(t, err)

	_, err = h.svc.User.SetActive(ctx, u.ID, false)
	require.NoError(t, err)

	_, err = h.svc.Auth.Validate(ctx, token)
	assert.ErrorIs(t, err, ErrUnauthorized)
	_, _, err = h.svc.Auth.Login(ctx, "admin", "correct horse")
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestValidate_Expired(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	createUser(t, h, "admin", "correct horse")

	token, _, err := h.svc.Auth.Login(ctx, "admin", "correct horse")
	require.NoError(t, err)

	h.svc.Auth.now = func() time.Time { return time.Now().UTC().Add(2 * time.Hour) }
	_, err = h.svc.Auth.Validate(ctx, token)
	assert.ErrorIs(t, err, ErrUnauthorized)
	assert.Contains(t, err.Error(), "expired")

	var n int
	require.NoError(t, h.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM sessions`).Scan(&n))
	assert.Zero(t, n)
}

func TestValidate_UnknownToken(t *testing.T) {
	h := newHarness(t)
	_, err := h.svc.Auth.Validate(context.Background(), "bogus")
	assert.ErrorIs(t, err, ErrUnauthorized)
	_, err = h.svc.Auth.Validate(context.Background(), "")
	assert.ErrorIs(t, err, ErrUnauthorized)
}
