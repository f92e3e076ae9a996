package verdict

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	domain "github.com/bryanwahyu/verdict/internal/domain/verdict"
)

var (
	// ErrNotReady is returned by actions that need a Ready workspace.
	ErrNotReady = errors.New("workspace not ready")
	// ErrSessionClosed is returned when the session ended while a call was in flight.
	ErrSessionClosed = errors.New("workspace session closed")
)

type Status string

const (
	StatusUnauthenticated Status = "unauthenticated"
	StatusLoading         Status = "loading"
	StatusReady           Status = "ready"
)

type View string

const (
	ViewEngine   View = "engine"
	ViewProtocol View = "protocol"
)

// ParseView accepts engine or protocol in any case.
func ParseView(s string) (View, bool) {
	switch View(strings.ToLower(strings.TrimSpace(s))) {
	case ViewEngine:
		return ViewEngine, true
	case ViewProtocol:
		return ViewProtocol, true
	}
	return "", false
}

type Phase string

const (
	PhaseIdle       Phase = "idle"
	PhaseSubmitting Phase = "submitting"
	PhaseFailed     Phase = "failed"
	PhaseSucceeded  Phase = "succeeded"
)

// Submission is the lifecycle of the current submit.
type Submission struct {
	Phase  Phase       `json:"phase"`
	Reason string      `json:"reason,omitempty"`
	Kind   domain.Kind `json:"kind,omitempty"`
}

// State is what the workspace renders from.
type State struct {
	Status           Status          `json:"status"`
	View             View            `json:"view,omitempty"`
	ActiveAnalysisID domain.RecordID `json:"activeAnalysisId,omitempty"`
	History          []domain.Record `json:"history"`
	Draft            Form            `json:"draft"`
	Submission       Submission      `json:"submission"`
	PendingSave      *domain.Draft   `json:"pendingSave,omitempty"`
	UserID           string          `json:"userId,omitempty"`
	// HistoryError is set while the history could not be loaded; the next
	// Start retries the fetch.
	HistoryError     string          `json:"historyError,omitempty"`
}

func (s State) clone() State {
	out := s
	out.History = make([]domain.Record, len(s.History))
	for i, r := range s.History {
		out.History[i] = r.Clone()
	}
	if s.PendingSave != nil {
		d := *s.PendingSave
		d.Record = d.Record.Clone()
		out.PendingSave = &d
	}
	return out
}

// Backend is the pipeline the machine drives. *Service implements it.
type Backend interface {
	Validate(form Form) error
	Submit(ctx context.Context, userID string, form Form) (domain.Record, error)
	RetryDraft(ctx context.Context, userID string) (domain.Record, error)
	PendingDraft(ctx context.Context, userID string) (*domain.Draft, error)
	List(ctx context.Context, userID string) ([]domain.Record, error)
	Remove(ctx context.Context, userID string, id domain.RecordID) error
}

// SessionFunc resolves the signed-in user, "" when there is no session.
type SessionFunc func(ctx context.Context) (string, error)

// Machine is the per-session orchestration state. All methods are safe for
// concurrent use; the lock is never held across backend calls.
type Machine struct {
	mu      sync.Mutex
	state   State
	gen     uint64 // bumped on logout; stale results are dropped
	backend Backend
	session SessionFunc
	log     zerolog.Logger
}

func NewMachine(backend Backend, session SessionFunc, log zerolog.Logger) *Machine {
	return &Machine{
		state:   State{Status: StatusUnauthenticated, History: []domain.Record{}, Draft: DefaultForm()},
		backend: backend,
		session: session,
		log:     log.With().Str("component", "workspace").Logger(),
	}
}

// Snapshot returns a deep copy of the current state.
func (m *Machine) Snapshot() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.clone()
}

// historyUnavailable is shown while the history fetch keeps failing.
const historyUnavailable = "Past verdicts could not be loaded."

// Start moves to Loading, resolves the session and fetches history once.
// Calling it on a Ready or Loading machine just returns the snapshot, unless
// the history fetch failed, in which case only the fetch is retried.
func (m *Machine) Start(ctx context.Context) (State, error) {
	m.mu.Lock()
	if m.state.Status == StatusReady && m.state.HistoryError != "" {
		userID, gen := m.state.UserID, m.gen
		m.mu.Unlock()
		return m.reloadHistory(ctx, gen, userID)
	}
	if m.state.Status != StatusUnauthenticated {
		defer m.mu.Unlock()
		return m.state.clone(), nil
	}
	m.state.Status = StatusLoading
	gen := m.gen
	m.mu.Unlock()

	userID, err := m.session(ctx)
	if err != nil || userID == "" {
		m.mu.Lock()
		defer m.mu.Unlock()
		if m.gen == gen {
			m.state = State{Status: StatusUnauthenticated, History: []domain.Record{}, Draft: DefaultForm()}
		}
		return m.state.clone(), err
	}

	history, listErr := m.backend.List(ctx, userID)
	pending, pendErr := m.backend.PendingDraft(ctx, userID)
	if pendErr != nil {
		m.log.Warn().Err(pendErr).Str("user_id", userID).Msg("load pending draft failed")
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.gen != gen {
		return m.state.clone(), ErrSessionClosed
	}
	if history == nil {
		history = []domain.Record{}
	}
	m.state = State{
		Status:      StatusReady,
		View:        ViewEngine,
		History:     history,
		Draft:       DefaultForm(),
		Submission:  Submission{Phase: PhaseIdle},
		PendingSave: pending,
		UserID:      userID,
	}
	if listErr != nil {
		m.log.Error().Err(listErr).Str("user_id", userID).Msg("fetch history failed")
		m.state.HistoryError = historyUnavailable
		return m.state.clone(), listErr
	}
	return m.state.clone(), nil
}

// reloadHistory replaces the history after an earlier failed fetch. Records
// saved since then are part of the fetched list.
func (m *Machine) reloadHistory(ctx context.Context, gen uint64, userID string) (State, error) {
	history, err := m.backend.List(ctx, userID)

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.gen != gen || m.state.Status != StatusReady {
		return m.state.clone(), ErrSessionClosed
	}
	if err != nil {
		m.log.Error().Err(err).Str("user_id", userID).Msg("fetch history failed")
		return m.state.clone(), err
	}
	if history == nil {
		history = []domain.Record{}
	}
	m.state.History = history
	m.state.HistoryError = ""
	if m.state.ActiveAnalysisID != "" && indexOf(history, m.state.ActiveAnalysisID) < 0 {
		m.state.ActiveAnalysisID = ""
	}
	return m.state.clone(), nil
}

// Submit sends the current draft. It is a no-op (nil, nil) unless the
// workspace is Ready with a session and a non-blank objection. A second
// submit while one is in flight returns domain.ErrSubmissionInFlight without
// calling the backend.
func (m *Machine) Submit(ctx context.Context) (*domain.Record, error) {
	m.mu.Lock()
	if m.state.Status != StatusReady || m.state.UserID == "" ||
		strings.TrimSpace(m.state.Draft.ObjectionText) == "" {
		m.mu.Unlock()
		return nil, nil
	}
	if m.state.Submission.Phase == PhaseSubmitting {
		m.mu.Unlock()
		return nil, domain.ErrSubmissionInFlight
	}
	form := m.state.Draft
	if err := m.backend.Validate(form); err != nil {
		m.state.Submission = failed(err)
		m.mu.Unlock()
		return nil, err
	}
	m.state.Submission = Submission{Phase: PhaseSubmitting}
	userID, gen := m.state.UserID, m.gen
	m.mu.Unlock()

	rec, err := m.backend.Submit(ctx, userID, form)
	return m.settle(ctx, gen, userID, rec, err, false)
}

// RetrySave re-attempts the insert of the pending draft only.
func (m *Machine) RetrySave(ctx context.Context) (*domain.Record, error) {
	m.mu.Lock()
	if m.state.Status != StatusReady {
		m.mu.Unlock()
		return nil, ErrNotReady
	}
	if m.state.Submission.Phase == PhaseSubmitting {
		m.mu.Unlock()
		return nil, domain.ErrSubmissionInFlight
	}
	if m.state.PendingSave == nil {
		m.mu.Unlock()
		return nil, domain.ErrNoPendingDraft
	}
	m.state.Submission = Submission{Phase: PhaseSubmitting}
	userID, gen := m.state.UserID, m.gen
	m.mu.Unlock()

	rec, err := m.backend.RetryDraft(ctx, userID)
	return m.settle(ctx, gen, userID, rec, err, true)
}

// settle applies the outcome of a submit or retry.
func (m *Machine) settle(ctx context.Context, gen uint64, userID string, rec domain.Record, err error, retry bool) (*domain.Record, error) {
	var pending *domain.Draft
	refresh := errors.Is(err, domain.ErrPersistence) || errors.Is(err, domain.ErrNoPendingDraft)
	if refresh {
		var perr error
		if pending, perr = m.backend.PendingDraft(ctx, userID); perr != nil {
			m.log.Warn().Err(perr).Str("user_id", userID).Msg("load pending draft failed")
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.gen != gen || m.state.Status != StatusReady {
		m.log.Info().Str("user_id", userID).Msg("discarding result for closed session")
		return nil, ErrSessionClosed
	}

	if err != nil {
		m.state.Submission = failed(err)
		if refresh {
			m.state.PendingSave = pending
		}
		return nil, err
	}

	m.state.History = insertNewest(m.state.History, rec)
	m.state.ActiveAnalysisID = rec.ID
	m.state.View = ViewEngine
	m.state.Draft = DefaultForm()
	m.state.Submission = Submission{Phase: PhaseSucceeded}
	if retry {
		m.state.PendingSave = nil
	}
	out := rec.Clone()
	return &out, nil
}

func failed(err error) Submission {
	return Submission{Phase: PhaseFailed, Reason: domain.UserMessage(err), Kind: domain.KindOf(err)}
}

// insertNewest keeps history ordered by CreatedAt descending; a record ties
// ahead of existing ones with the same timestamp.
func insertNewest(history []domain.Record, rec domain.Record) []domain.Record {
	i := 0
	for i < len(history) && history[i].CreatedAt > rec.CreatedAt {
		i++
	}
	out := make([]domain.Record, 0, len(history)+1)
	out = append(out, history[:i]...)
	out = append(out, rec)
	return append(out, history[i:]...)
}

// NewVerdict clears the selection and any failure, back to an empty form.
func (m *Machine) NewVerdict() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state.Status != StatusReady {
		return ErrNotReady
	}
	m.state.ActiveAnalysisID = ""
	m.state.View = ViewEngine
	if m.state.Submission.Phase != PhaseSubmitting {
		m.state.Submission = Submission{Phase: PhaseIdle}
		m.state.Draft = DefaultForm()
	}
	return nil
}

// Select makes a history item active.
func (m *Machine) Select(id domain.RecordID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state.Status != StatusReady {
		return ErrNotReady
	}
	if indexOf(m.state.History, id) < 0 {
		return domain.ErrNotFound
	}
	m.state.ActiveAnalysisID = id
	m.state.View = ViewEngine
	return nil
}

func (m *Machine) SetView(v View) error {
	if _, ok := ParseView(string(v)); !ok {
		return domain.NewValidationError("view", "must be engine or protocol")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state.Status != StatusReady {
		return ErrNotReady
	}
	m.state.View = v
	return nil
}

// UpdateDraft replaces the form draft as typed.
func (m *Machine) UpdateDraft(form Form) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state.Status != StatusReady {
		return ErrNotReady
	}
	m.state.Draft = form
	return nil
}

// Delete removes the record locally first, then from the store. A store
// failure is returned but not undone. Unknown ids are a no-op.
func (m *Machine) Delete(ctx context.Context, id domain.RecordID) error {
	m.mu.Lock()
	if m.state.Status != StatusReady {
		m.mu.Unlock()
		return ErrNotReady
	}
	i := indexOf(m.state.History, id)
	if i < 0 {
		m.mu.Unlock()
		return nil
	}
	m.state.History = append(m.state.History[:i:i], m.state.History[i+1:]...)
	if m.state.ActiveAnalysisID == id {
		m.state.ActiveAnalysisID = ""
	}
	userID := m.state.UserID
	m.mu.Unlock()

	if err := m.backend.Remove(ctx, userID, id); err != nil {
		m.log.Error().Err(err).Str("user_id", userID).Str("analysis_id", string(id)).Msg("delete analysis failed")
		return err
	}
	return nil
}

// Logout drops everything and returns to Unauthenticated. Results of calls
// still in flight are discarded when they complete.
func (m *Machine) Logout() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.gen++
	m.state = State{Status: StatusUnauthenticated, History: []domain.Record{}, Draft: DefaultForm()}
}

func indexOf(history []domain.Record, id domain.RecordID) int {
	for i, r := range history {
		if r.ID == id {
			return i
		}
	}
	return -1
}
