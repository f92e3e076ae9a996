package account

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	domain "github.com/bryanwahyu/verdict/internal/domain/account"
)

type memUsers struct {
	mu   sync.Mutex
	byID map[string]domain.User
}

func newMemUsers() *memUsers { return &memUsers{byID: map[string]domain.User{}} }

func (m *memUsers) Create(_ context.Context, u *domain.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, x := range m.byID {
		if x.Email == u.Email {
			return domain.ErrAlreadyExists
		}
	}
	u.ID = uuid.NewString()
	m.byID[u.ID] = *u
	return nil
}

func (m *memUsers) GetByEmail(_ context.Context, email string) (*domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, x := range m.byID {
		if x.Email == email {
			u := x
			return &u, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *memUsers) GetByID(_ context.Context, id string) (*domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.byID[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &u, nil
}

type memSessions struct {
	mu   sync.Mutex
	byID map[string]domain.Session
}

func newMemSessions() *memSessions { return &memSessions{byID: map[string]domain.Session{}} }

func (m *memSessions) Create(_ context.Context, s *domain.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.byID[s.ID] = *s
	return nil
}

func (m *memSessions) Get(_ context.Context, id string) (*domain.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.byID[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &s, nil
}

func (m *memSessions) Rotate(_ context.Context, id, hash string, exp time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.byID[id]
	if !ok {
		return domain.ErrNotFound
	}
	s.RefreshHash = hash
	s.ExpiresAt = exp
	m.byID[id] = s
	return nil
}

func (m *memSessions) Revoke(_ context.Context, id string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.byID[id]
	if !ok {
		return domain.ErrNotFound
	}
	s.RevokedAt = &at
	m.byID[id] = s
	return nil
}
