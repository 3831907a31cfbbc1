// Package user is a minimal directory so creator, assignee, and approver
// references resolve to real rows. Identity is trusted input; there is no
// authentication here.
package user

import (
	"context"
	"time"

	dErrors "ems/pkg/domain-errors"
)

// ErrNotFound is returned for unknown user ids.
var ErrNotFound = dErrors.New(dErrors.CodeNotFound, "user not found")

// ErrDuplicate is returned when a username or email already exists.
var ErrDuplicate = dErrors.New(dErrors.CodeConflict, "username or email already exists")

// User is one directory entry.
type User struct {
	ID        int64
	Username  string
	Email     string
	FullName  *string
	IsActive  bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Store persists users.
type Store interface {
	Create(ctx context.Context, u *User) error
	List(ctx context.Context) ([]*User, error)
}

// Service wraps the store with input validation.
type Service struct {
	store Store
}

func NewService(store Store) *Service {
	return &Service{store: store}
}

// CreateInput is the payload for a new user.
type CreateInput struct {
	Username string
	Email    string
	FullName *string
	IsActive *bool
}

func (s *Service) Create(ctx context.Context, in CreateInput) (*User, error) {
	if in.Username == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "username is required")
	}
	if in.Email == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "email is required")
	}
	active := true
	if in.IsActive != nil {
		active = *in.IsActive
	}
	u := &User{
		Username: in.Username,
		Email:    in.Email,
		FullName: in.FullName,
		IsActive: active,
	}
	if err := s.store.Create(ctx, u); err != nil {
		return nil, err
	}
	return u, nil
}

func (s *Service) List(ctx context.Context) ([]*User, error) {
	return s.store.List(ctx)
}
