package verdict

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/bryanwahyu/verdict/internal/domain/account"
)

// SessionLookup resolves a session id to its user id, "" when the session
// is gone.
type SessionLookup func(ctx context.Context, sessionID string) (string, error)

// Workspaces holds one Machine per signed-in session.
type Workspaces struct {
	mu       sync.Mutex
	machines map[string]*Machine
	backend  Backend
	lookup   SessionLookup
	log      zerolog.Logger
}

func NewWorkspaces(backend Backend, lookup SessionLookup, log zerolog.Logger) *Workspaces {
	return &Workspaces{
		machines: make(map[string]*Machine),
		backend:  backend,
		lookup:   lookup,
		log:      log,
	}
}

// Get returns the session's machine, creating it on first use.
func (w *Workspaces) Get(sessionID string) *Machine {
	w.mu.Lock()
	defer w.mu.Unlock()
	if m, ok := w.machines[sessionID]; ok {
		return m
	}
	m := NewMachine(w.backend, func(ctx context.Context) (string, error) {
		return w.lookup(ctx, sessionID)
	}, w.log.With().Str("session_id", sessionID).Logger())
	w.machines[sessionID] = m
	return m
}

// Start returns the session's machine after starting it. A session that
// resolves to nobody leaves no workspace behind.
func (w *Workspaces) Start(ctx context.Context, sessionID string) (*Machine, State, error) {
	m := w.Get(sessionID)
	st, err := m.Start(ctx)
	if st.Status == StatusUnauthenticated {
		w.forget(sessionID, m)
	}
	return m, st, err
}

// forget removes m unless the entry was already replaced.
func (w *Workspaces) forget(sessionID string, m *Machine) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.machines[sessionID] == m {
		delete(w.machines, sessionID)
	}
}

// Sweep drops every workspace whose session is no longer active and reports
// how many went. Lookup errors keep the workspace for the next round.
func (w *Workspaces) Sweep(ctx context.Context) int {
	w.mu.Lock()
	ids := make([]string, 0, len(w.machines))
	for id := range w.machines {
		ids = append(ids, id)
	}
	w.mu.Unlock()

	dropped := 0
	for _, id := range ids {
		if ctx.Err() != nil {
			break
		}
		userID, err := w.lookup(ctx, id)
		if err != nil {
			w.log.Warn().Err(err).Str("session_id", id).Msg("workspace sweep lookup failed")
			continue
		}
		if userID == "" {
			w.Drop(id)
			dropped++
		}
	}
	return dropped
}

// RunCleanup sweeps on every tick until ctx is done.
func (w *Workspaces) RunCleanup(ctx context.Context, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := w.Sweep(ctx); n > 0 {
				w.log.Debug().Int("dropped", n).Int("live", w.Len()).Msg("expired workspaces swept")
			}
		}
	}
}

// Drop logs the session's machine out and forgets it.
func (w *Workspaces) Drop(sessionID string) {
	w.mu.Lock()
	m, ok := w.machines[sessionID]
	delete(w.machines, sessionID)
	w.mu.Unlock()
	if ok {
		m.Logout()
	}
}

// Len reports how many workspaces are live.
func (w *Workspaces) Len() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.machines)
}

// HandleSessionEvent is subscribed to the session gate.
func (w *Workspaces) HandleSessionEvent(ev account.Event) {
	if ev.Type != account.EventSignedOut {
		return
	}
	w.Drop(ev.Identity.SessionID)
	w.log.Debug().Str("session_id", ev.Identity.SessionID).Msg("workspace dropped")
}
