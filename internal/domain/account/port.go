package account

import (
	"context"
	"time"
)

// UserRepository defines persistence for users.
type UserRepository interface {
	Create(ctx context.Context, u *User) error
	GetByEmail(ctx context.Context, email string) (*User, error)
	GetByID(ctx context.Context, id string) (*User, error)
}

// SessionRepository defines persistence for sign-in sessions.
type SessionRepository interface {
	Create(ctx context.Context, s *Session) error
	Get(ctx context.Context, id string) (*Session, error)
	Rotate(ctx context.Context, id, refreshHash string, expiresAt time.Time) error
	Revoke(ctx context.Context, id string, at time.Time) error
}
