package account

import (
	"errors"
	"time"
)

var (
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")
	ErrUnauthorized  = errors.New("unauthorized")
	ErrValidation    = errors.New("validation error")
)

// User represents a registered operator.
type User struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"createdAt"`
}

// Session is one sign-in. Only the hash of the refresh token is stored.
type Session struct {
	ID          string     `json:"id"`
	UserID      string     `json:"userId"`
	RefreshHash string     `json:"-"`
	ExpiresAt   time.Time  `json:"expiresAt"`
	CreatedAt   time.Time  `json:"createdAt"`
	RevokedAt   *time.Time `json:"revokedAt,omitempty"`
}

// Active reports whether the session can still authenticate requests.
func (s *Session) Active(now time.Time) bool {
	return s.RevokedAt == nil && now.Before(s.ExpiresAt)
}

// Identity is what the Session Gate exposes for a live session.
type Identity struct {
	SessionID string `json:"sessionId"`
	UserID    string `json:"userId"`
	Email     string `json:"email"`
}

// EventType of a session change.
type EventType string

const (
	EventSignedIn       EventType = "signed_in"
	EventSignedOut      EventType = "signed_out"
	EventTokenRefreshed EventType = "token_refreshed"
)

type Event struct {
	Type     EventType
	Identity Identity
	At       time.Time
}
