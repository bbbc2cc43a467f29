package core

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/edvin/proxyctl/internal/crypto"
	"github.com/edvin/proxyctl/internal/model"
	"github.com/edvin/proxyctl/internal/platform"
)

// NewUser is the input to UserService.Create.
type NewUser struct {
	Username string `json:"username" validate:"required,min=3,max=64"`
	Email    string `json:"email" validate:"omitempty,email"`
	Password string `json:"password" validate:"required,min=8"`
	Role     string `json:"role" validate:"omitempty,oneof=admin operator"`
}

// UserPatch changes the mutable fields of a user. Nil fields are left alone.
type UserPatch struct {
	Email    *string `json:"email" validate:"omitempty,email"`
	Password *string `json:"password" validate:"omitempty,min=8"`
	Role     *string `json:"role" validate:"omitempty,oneof=admin operator"`
}

type UserService struct {
	db       DB
	validate *validator.Validate
	now      func() time.Time
}

func NewUserService(db DB) *UserService {
	return &UserService{
		db:       db,
		validate: model.NewValidator(),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (s *UserService) Create(ctx context.Context, in NewUser) (*model.User, error) {
	in.Username = strings.TrimSpace(in.Username)
	if err := s.validate.Struct(in); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	if in.Role == "" {
		in.Role = model.RoleAdmin
	}
	hash, err := crypto.HashPassword(in.Password)
	if err != nil {
		return nil, err
	}

	u := &model.User{
		ID:           platform.NewID(),
		Username:     in.Username,
		Email:        in.Email,
		PasswordHash: hash,
		Role:         in.Role,
		IsActive:     true,
		CreatedAt:    s.now(),
	}
	tag, err := s.db.ExecContext(ctx,
		`INSERT INTO users (id, username, email, password_hash, role, is_active, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 ON CONFLICT (username) DO NOTHING`,
		u.ID, u.Username, u.Email, u.PasswordHash, u.Role, u.IsActive, u.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("create user %s: %w", u.Username, err)
	}
	if n, err := tag.RowsAffected(); err != nil {
		return nil, fmt.Errorf("create user %s: %w", u.Username, err)
	} else if n == 0 {
		return nil, fmt.Errorf("%w: username %s already exists", ErrConflict, u.Username)
	}
	return u, nil
}

func (s *UserService) Get(ctx context.Context, id string) (*model.User, error) {
	u, err := scanUser(s.db.QueryRowContext(ctx,
		`SELECT id, username, email, password_hash, role, is_active, last_login, created_at FROM users WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("user %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get user %s: %w", id, err)
	}
	return u, nil
}

func (s *UserService) List(ctx context.Context) ([]model.User, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, username, email, password_hash, role, is_active, last_login, created_at FROM users ORDER BY username`)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	users := []model.User{}
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		users = append(users, *u)
	}
	return users, rows.Err()
}

func (s *UserService) Update(ctx context.Context, id string, patch UserPatch) (*model.User, error) {
	if patch.Email == nil && patch.Password == nil && patch.Role == nil {
		return nil, fmt.Errorf("%w: no fields to update", ErrInvalidInput)
	}
	if err := s.validate.Struct(patch); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	u, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if patch.Email != nil {
		u.Email = *patch.Email
	}
	if patch.Role != nil {
		u.Role = *patch.Role
	}
	if patch.Password != nil {
		if u.PasswordHash, err = crypto.HashPassword(*patch.Password); err != nil {
			return nil, err
		}
	}
	if _, err := s.db.ExecContext(ctx,
		`UPDATE users SET email = $1, role = $2, password_hash = $3 WHERE id = $4`,
		u.Email, u.Role, u.PasswordHash, u.ID,
	); err != nil {
		return nil, fmt.Errorf("update user %s: %w", id, err)
	}
	return u, nil
}

// SetActive enables or disables a user. Disabling ends all of its sessions.
func (s *UserService) SetActive(ctx context.Context, id string, active bool) (*model.User, error) {
	u, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if _, err := s.db.ExecContext(ctx, `UPDATE users SET is_active = $1 WHERE id = $2`, active, id); err != nil {
		return nil, fmt.Errorf("set user %s active: %w", id, err)
	}
	if !active {
		if _, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE user_id = $1`, id); err != nil {
			return nil, fmt.Errorf("end sessions of user %s: %w", id, err)
		}
	}
	u.IsActive = active
	return u, nil
}

func scanUser(row rowScanner) (*model.User, error) {
	var (
		u         model.User
		lastLogin sql.NullTime
	)
	if err := row.Scan(&u.ID, &u.Username, &u.Email, &u.PasswordHash, &u.Role, &u.IsActive, &lastLogin, &u.CreatedAt); err != nil {
		return nil, err
	}
	if lastLogin.Valid {
		t := lastLogin.Time
		u.LastLogin = &t
	}
	return &u, nil
}
