package storage

import (
	"context"
	"sync"
	"time"

	domain "github.com/bryanwahyu/verdict/internal/domain/verdict"
)

// Memory is the in-process draft store. Drafts do not survive a restart.
type Memory struct {
	mu     sync.Mutex
	drafts map[string]domain.Draft
	ttl    time.Duration
	now    func() time.Time
}

func NewMemory(ttl time.Duration) *Memory {
	return &Memory{drafts: make(map[string]domain.Draft), ttl: ttl, now: time.Now}
}

func (m *Memory) Put(_ context.Context, userID string, d domain.Draft) error {
	d.Record = d.Record.Clone()
	m.mu.Lock()
	m.drafts[userID] = d
	m.mu.Unlock()
	return nil
}

func (m *Memory) Get(_ context.Context, userID string) (*domain.Draft, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.drafts[userID]
	if !ok {
		return nil, nil
	}
	if expired(&d, m.ttl, m.now()) {
		delete(m.drafts, userID)
		return nil, nil
	}
	d.Record = d.Record.Clone()
	return &d, nil
}

func (m *Memory) Delete(_ context.Context, userID string) error {
	m.mu.Lock()
	delete(m.drafts, userID)
	m.mu.Unlock()
	return nil
}

func (m *Memory) Ping(context.Context) error { return nil }
