package account

import (
	"context"
	"sync"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/bryanwahyu/verdict/internal/application"
	domain "github.com/bryanwahyu/verdict/internal/domain/account"
	"github.com/bryanwahyu/verdict/internal/infra/token"
)

// Gate answers "who is signed in" for a bearer token and fans session
// changes out to subscribers.
type Gate struct {
	users    domain.UserRepository
	sessions domain.SessionRepository
	tokens   *token.Manager
	clock    application.Clock
	log      zerolog.Logger

	mu        sync.Mutex
	nextSub   int
	listeners map[int]func(domain.Event)
}

func NewGate(users domain.UserRepository, sessions domain.SessionRepository, tokens *token.Manager, clock application.Clock, log zerolog.Logger) *Gate {
	return &Gate{
		users:     users,
		sessions:  sessions,
		tokens:    tokens,
		clock:     clock,
		log:       log,
		listeners: make(map[int]func(domain.Event)),
	}
}

// Current returns the identity behind an access token, or nil when there is
// no live session for it. Only store failures are errors.
func (g *Gate) Current(ctx context.Context, accessToken string) (*domain.Identity, error) {
	claims, err := g.tokens.ParseAccess(accessToken)
	if err != nil {
		return nil, nil
	}

	s, err := g.activeSession(ctx, claims.SessionID)
	if err != nil || s == nil {
		return nil, err
	}
	if s.UserID != claims.UserID {
		g.log.Warn().Str("session_id", s.ID).Msg("token subject does not match session owner")
		return nil, nil
	}

	u, err := g.users.GetByID(ctx, s.UserID)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "load session user")
	}
	return &domain.Identity{SessionID: s.ID, UserID: u.ID, Email: u.Email}, nil
}

// Lookup resolves a session id to its user id, "" when the session is no
// longer active.
func (g *Gate) Lookup(ctx context.Context, sessionID string) (string, error) {
	s, err := g.activeSession(ctx, sessionID)
	if err != nil || s == nil {
		return "", err
	}
	return s.UserID, nil
}

func (g *Gate) activeSession(ctx context.Context, id string) (*domain.Session, error) {
	s, err := g.sessions.Get(ctx, id)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "load session")
	}
	if !s.Active(g.clock.Now()) {
		return nil, nil
	}
	return s, nil
}

// OnSessionChange registers fn for every committed session change. The
// returned func unsubscribes.
func (g *Gate) OnSessionChange(fn func(domain.Event)) (unsubscribe func()) {
	g.mu.Lock()
	id := g.nextSub
	g.nextSub++
	g.listeners[id] = fn
	g.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			g.mu.Lock()
			delete(g.listeners, id)
			g.mu.Unlock()
		})
	}
}

// publish delivers synchronously, outside the lock so listeners may
// subscribe or unsubscribe.
func (g *Gate) publish(ev domain.Event) {
	g.mu.Lock()
	fns := make([]func(domain.Event), 0, len(g.listeners))
	for _, fn := range g.listeners {
		fns = append(fns, fn)
	}
	g.mu.Unlock()

	for _, fn := range fns {
		fn(ev)
	}
	g.log.Debug().
		Str("event", string(ev.Type)).
		Str("session_id", ev.Identity.SessionID).
		Int("listeners", len(fns)).
		Msg("session change published")
}
