package core

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/edvin/proxyctl/internal/crypto"
	"github.com/edvin/proxyctl/internal/model"
	"github.com/edvin/proxyctl/internal/platform"
)

// AuthService issues and validates login sessions. Tokens are handed to the
// client once; only their SHA-256 is stored.
type AuthService struct {
	db  DB
	ttl time.Duration
	now func() time.Time
}

func NewAuthService(db DB, ttl time.Duration) *AuthService {
	return &AuthService{
		db:  db,
		ttl: ttl,
		now: func() time.Time { return time.Now().UTC() },
	}
}

// Login authenticates an active user by username and password and opens a
// session. All credential failures return the same ErrUnauthorized.
func (s *AuthService) Login(ctx context.Context, username, password string) (string, *model.Identity, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return "", nil, fmt.Errorf("%w: username and password are required", ErrInvalidInput)
	}

	var (
		u      model.User
		active bool
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, username, password_hash, role, is_active FROM users WHERE username = $1`, username,
	).Scan(&u.ID, &u.Username, &u.PasswordHash, &u.Role, &active)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil, fmt.Errorf("%w: invalid credentials", ErrUnauthorized)
	}
	if err != nil {
		return "", nil, fmt.Errorf("look up user %s: %w", username, err)
	}
	if !active || !crypto.VerifyPassword(password, u.PasswordHash) {
		return "", nil, fmt.Errorf("%w: invalid credentials", ErrUnauthorized)
	}

	token, err := crypto.NewToken()
	if err != nil {
		return "", nil, err
	}
	now := s.now()
	sess := model.Session{
		ID:        platform.NewID(),
		UserID:    u.ID,
		TokenHash: crypto.TokenHash(token),
		ExpiresAt: now.Add(s.ttl),
		CreatedAt: now,
	}
	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO sessions (id, user_id, token_hash, expires_at, created_at) VALUES ($1, $2, $3, $4, $5)`,
		sess.ID, sess.UserID, sess.TokenHash, sess.ExpiresAt, sess.CreatedAt,
	); err != nil {
		return "", nil, fmt.Errorf("create session: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, `UPDATE users SET last_login = $1 WHERE id = $2`, now, u.ID); err != nil {
		return "", nil, fmt.Errorf("update last login: %w", err)
	}

	return token, &model.Identity{
		UserID:    u.ID,
		Username:  u.Username,
		Role:      u.Role,
		SessionID: sess.ID,
		ExpiresAt: sess.ExpiresAt,
	}, nil
}

// Validate resolves a session token to its identity. Expired sessions are
// removed on sight.
func (s *AuthService) Validate(ctx context.Context, token string) (*model.Identity, error) {
	if token == "" {
		return nil, fmt.Errorf("%w: missing session token", ErrUnauthorized)
	}

	var (
		id     model.Identity
		active bool
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT s.id, s.expires_at, u.id, u.username, u.role, u.is_active
		 FROM sessions s JOIN users u ON u.id = s.user_id
		 WHERE s.token_hash = $1`, crypto.TokenHash(token),
	).Scan(&id.SessionID, &id.ExpiresAt, &id.UserID, &id.Username, &id.Role, &active)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: invalid session", ErrUnauthorized)
	}
	if err != nil {
		return nil, fmt.Errorf("look up session: %w", err)
	}

	if !s.now().Before(id.ExpiresAt) {
		if _, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE id = $1`, id.SessionID); err != nil {
			return nil, fmt.Errorf("delete expired session: %w", err)
		}
		return nil, fmt.Errorf("%w: session expired", ErrUnauthorized)
	}
	if !active {
		return nil, fmt.Errorf("%w: account disabled", ErrUnauthorized)
	}
	return &id, nil
}

// Logout ends the session of token. Unknown tokens are not an error.
func (s *AuthService) Logout(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE token_hash = $1`, crypto.TokenHash(token)); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}
