package httpserver

import (
	"encoding/json"
	"errors"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"

	appaccount "github.com/bryanwahyu/verdict/internal/application/account"
	appverdict "github.com/bryanwahyu/verdict/internal/application/verdict"
	"github.com/bryanwahyu/verdict/internal/domain/account"
	domain "github.com/bryanwahyu/verdict/internal/domain/verdict"
	"github.com/bryanwahyu/verdict/internal/infra/ai/prompt"
	"github.com/bryanwahyu/verdict/internal/middleware"
)

const maxBodyBytes = 64 << 10

// Deps is everything the router serves.
type Deps struct {
	Accounts   *appaccount.Service
	Gate       *appaccount.Gate
	Analyses   *appverdict.Service
	Workspaces *appverdict.Workspaces
	Protocol   prompt.Protocol
	Checkers   map[string]middleware.HealthChecker
	Ready      *atomic.Bool
	// Limiter throttles the credential endpoints; nil disables it.
	Limiter        *middleware.RateLimiter
	AllowedOrigins []string
	Log            zerolog.Logger
}

type Router struct {
	accounts   *appaccount.Service
	analyses   *appverdict.Service
	workspaces *appverdict.Workspaces
	protocol   prompt.Protocol
	log        zerolog.Logger
}

func NewRouter(d Deps) http.Handler {
	r := &Router{
		accounts:   d.Accounts,
		analyses:   d.Analyses,
		workspaces: d.Workspaces,
		protocol:   d.Protocol,
		log:        d.Log.With().Str("component", "http").Logger(),
	}
	ready := d.Ready
	if ready == nil {
		ready = new(atomic.Bool)
		ready.Store(true)
	}

	mux := chi.NewRouter()
	mux.Use(chimw.RequestID)
	mux.Use(chimw.RealIP)
	mux.Use(middleware.RequestLogger(r.log))
	mux.Use(chimw.Recoverer)
	mux.Use(middleware.MetricsMiddleware)
	mux.Use(cors.Handler(cors.Options{
		AllowedOrigins: d.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Authorization", "Content-Type", "X-Request-Id"},
		ExposedHeaders: []string{"X-Request-Id", "Retry-After"},
		MaxAge:         300,
	}))

	mux.Get("/health", middleware.LivenessHandler)
	mux.Get("/healthz", middleware.HealthHandler(d.Checkers))
	mux.Get("/readyz", middleware.ReadinessHandler(ready))
	mux.Get("/metrics", middleware.MetricsHandler)

	mux.Route("/v1", func(rt chi.Router) {
		rt.Get("/protocol", r.wrap(r.handleProtocol))

		rt.Group(func(pub chi.Router) {
			if d.Limiter != nil {
				pub.Use(d.Limiter.Middleware)
			}
			pub.Post("/auth/sign-up", r.wrap(r.handleSignUp))
			pub.Post("/auth/sign-in", r.wrap(r.handleSignIn))
			pub.Post("/auth/refresh", r.wrap(r.handleRefresh))
		})

		rt.Group(func(priv chi.Router) {
			priv.Use(middleware.BearerAuth(d.Gate, r.log))

			priv.Get("/auth/session", r.wrap(r.handleSession))
			priv.Post("/auth/sign-out", r.wrap(r.handleSignOut))

			priv.Post("/analyses", r.wrap(r.handleCreateAnalysis))
			priv.Get("/analyses", r.wrap(r.handleListAnalyses))
			priv.Get("/analyses/pending", r.wrap(r.handlePendingDraft))
			priv.Post("/analyses/pending/retry", r.wrap(r.handleRetryDraft))
			priv.Delete("/analyses/{id}", r.wrap(r.handleDeleteAnalysis))

			priv.Route("/workspace", func(ws chi.Router) {
				ws.Get("/", r.wrap(r.handleWorkspace))
				ws.Put("/draft", r.wrap(r.handleWorkspaceDraft))
				ws.Put("/view", r.wrap(r.handleWorkspaceView))
				ws.Post("/submit", r.wrap(r.handleWorkspaceSubmit))
				ws.Post("/new", r.wrap(r.handleWorkspaceNew))
				ws.Post("/select/{id}", r.wrap(r.handleWorkspaceSelect))
				ws.Delete("/analyses/{id}", r.wrap(r.handleWorkspaceDelete))
				ws.Post("/retry-save", r.wrap(r.handleWorkspaceRetrySave))
			})
		})
	})

	return mux
}

type handlerFunc func(http.ResponseWriter, *http.Request) error

func (r *Router) wrap(h handlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		if err := h(w, req); err != nil {
			r.respondError(w, req, err)
		}
	}
}

// errorStatus maps an error onto status, taxonomy kind and user message.
func errorStatus(err error) (int, string, string) {
	switch {
	case errors.Is(err, account.ErrUnauthorized):
		return http.StatusUnauthorized, "Unauthorized", err.Error()
	case errors.Is(err, account.ErrAlreadyExists):
		return http.StatusConflict, "Conflict", err.Error()
	case errors.Is(err, account.ErrValidation):
		return http.StatusBadRequest, string(domain.KindValidation), err.Error()
	case errors.Is(err, domain.ErrSubmissionInFlight),
		errors.Is(err, domain.ErrNoPendingDraft),
		errors.Is(err, appverdict.ErrNotReady),
		errors.Is(err, appverdict.ErrSessionClosed):
		return http.StatusConflict, "Conflict", err.Error()
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound, "NotFound", err.Error()
	}

	kind := domain.KindOf(err)
	status := http.StatusBadGateway
	switch kind {
	case domain.KindValidation:
		status = http.StatusBadRequest
	case domain.KindCredentialsMissing, domain.KindModelUnavailable:
		status = http.StatusServiceUnavailable
	case domain.KindCredentialsInvalid, domain.KindMalformedOutput, domain.KindTransient:
		status = http.StatusBadGateway
	case domain.KindRateLimited:
		status = http.StatusTooManyRequests
	case domain.KindPersistence:
		status = http.StatusInternalServerError
	}
	return status, string(kind), domain.UserMessage(err)
}

func (r *Router) respondError(w http.ResponseWriter, req *http.Request, err error) {
	status, kind, msg := errorStatus(err)
	r.logError(req, status, kind, err)
	middleware.WriteError(w, status, kind, msg)
}

func (r *Router) logError(req *http.Request, status int, kind string, err error) {
	ev := r.log.Warn()
	if status >= 500 {
		ev = r.log.Error()
	}
	ev.Err(err).
		Str("kind", kind).
		Str("path", req.URL.Path).
		Str("request_id", chimw.GetReqID(req.Context())).
		Msg("request failed")
}

func decode(w http.ResponseWriter, req *http.Request, v any) error {
	body := http.MaxBytesReader(w, req.Body, maxBodyBytes)
	if err := json.NewDecoder(body).Decode(v); err != nil {
		return domain.NewValidationError("body", "must be a valid JSON object")
	}
	return nil
}

func identity(req *http.Request) account.Identity {
	id, _ := middleware.IdentityFrom(req.Context())
	return id
}

//
// ==== PROTOCOL ====
//

type formOptions struct {
	DealSizeTiers      []string        `json:"dealSizeTiers"`
	DealStages         []string        `json:"dealStages"`
	Modes              []domain.Mode   `json:"modes"`
	Defaults           appverdict.Form `json:"defaults"`
	MinObjectionLength int             `json:"minObjectionLength"`
}

// GET /v1/protocol
func (r *Router) handleProtocol(w http.ResponseWriter, req *http.Request) error {
	minLen := r.analyses.MinObjectionLength
	if minLen <= 0 {
		minLen = appverdict.DefaultMinObjectionLength
	}
	middleware.WriteJSON(w, http.StatusOK, struct {
		Protocol prompt.Protocol `json:"protocol"`
		Options  formOptions     `json:"options"`
	}{
		Protocol: r.protocol,
		Options: formOptions{
			DealSizeTiers:      appverdict.DealSizeTiers,
			DealStages:         appverdict.DealStages,
			Modes:              appverdict.Modes,
			Defaults:           appverdict.DefaultForm(),
			MinObjectionLength: minLen,
		},
	})
	return nil
}

//
// ==== AUTH ====
//

type credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// POST /v1/auth/sign-up
func (r *Router) handleSignUp(w http.ResponseWriter, req *http.Request) error {
	var body credentials
	if err := decode(w, req, &body); err != nil {
		return err
	}
	res, err := r.accounts.SignUp(req.Context(), body.Email, body.Password)
	if err != nil {
		return err
	}
	middleware.IncrementSignIns()
	middleware.WriteJSON(w, http.StatusCreated, res)
	return nil
}

// POST /v1/auth/sign-in
func (r *Router) handleSignIn(w http.ResponseWriter, req *http.Request) error {
	var body credentials
	if err := decode(w, req, &body); err != nil {
		return err
	}
	res, err := r.accounts.SignIn(req.Context(), body.Email, body.Password)
	if err != nil {
		return err
	}
	middleware.IncrementSignIns()
	middleware.WriteJSON(w, http.StatusOK, res)
	return nil
}

// POST /v1/auth/refresh
func (r *Router) handleRefresh(w http.ResponseWriter, req *http.Request) error {
	var body struct {
		RefreshToken string `json:"refreshToken"`
	}
	if err := decode(w, req, &body); err != nil {
		return err
	}
	res, err := r.accounts.Refresh(req.Context(), body.RefreshToken)
	if err != nil {
		return err
	}
	middleware.WriteJSON(w, http.StatusOK, res)
	return nil
}

// GET /v1/auth/session
func (r *Router) handleSession(w http.ResponseWriter, req *http.Request) error {
	middleware.WriteJSON(w, http.StatusOK, identity(req))
	return nil
}

// POST /v1/auth/sign-out
func (r *Router) handleSignOut(w http.ResponseWriter, req *http.Request) error {
	if err := r.accounts.SignOut(req.Context(), identity(req)); err != nil {
		return err
	}
	w.WriteHeader(http.StatusNoContent)
	return nil
}

//
// ==== ANALYSES ====
//

// POST /v1/analyses
func (r *Router) handleCreateAnalysis(w http.ResponseWriter, req *http.Request) error {
	var form appverdict.Form
	if err := decode(w, req, &form); err != nil {
		return err
	}
	form.ObjectionText = middleware.SanitizeString(form.ObjectionText)
	form.Sector = middleware.SanitizeString(form.Sector)

	rec, err := r.analyses.Submit(req.Context(), identity(req).UserID, form)
	if err != nil {
		if errors.Is(err, domain.ErrPersistence) {
			middleware.IncrementSavesFailed()
		}
		return err
	}
	middleware.WriteJSON(w, http.StatusCreated, rec)
	return nil
}

// GET /v1/analyses
func (r *Router) handleListAnalyses(w http.ResponseWriter, req *http.Request) error {
	list, err := r.analyses.List(req.Context(), identity(req).UserID)
	if err != nil {
		return err
	}
	middleware.WriteJSON(w, http.StatusOK, list)
	return nil
}

// GET /v1/analyses/pending
func (r *Router) handlePendingDraft(w http.ResponseWriter, req *http.Request) error {
	d, err := r.analyses.PendingDraft(req.Context(), identity(req).UserID)
	if err != nil {
		return err
	}
	if d == nil {
		w.WriteHeader(http.StatusNoContent)
		return nil
	}
	middleware.WriteJSON(w, http.StatusOK, d)
	return nil
}

// POST /v1/analyses/pending/retry
func (r *Router) handleRetryDraft(w http.ResponseWriter, req *http.Request) error {
	rec, err := r.analyses.RetryDraft(req.Context(), identity(req).UserID)
	if err != nil {
		return err
	}
	middleware.WriteJSON(w, http.StatusCreated, rec)
	return nil
}

// DELETE /v1/analyses/{id}
func (r *Router) handleDeleteAnalysis(w http.ResponseWriter, req *http.Request) error {
	id := chi.URLParam(req, "id")
	if err := middleware.ValidateRecordID(id); err != nil {
		return domain.NewValidationError("id", err.Error())
	}
	if err := r.analyses.Remove(req.Context(), identity(req).UserID, domain.RecordID(id)); err != nil {
		return err
	}
	w.WriteHeader(http.StatusNoContent)
	return nil
}

//
// ==== WORKSPACE ====
//

type workspaceResponse struct {
	appverdict.State
	Error *middleware.ErrorDetail `json:"error,omitempty"`
	At    time.Time               `json:"at"`
}

// machine returns the session's workspace, started.
func (r *Router) machine(req *http.Request) (*appverdict.Machine, error) {
	m, _, err := r.workspaces.Start(req.Context(), identity(req).SessionID)
	return m, err
}

// snapshot answers with the machine state; err only decides the status and
// the error field.
func (r *Router) snapshot(w http.ResponseWriter, req *http.Request, m *appverdict.Machine, err error) error {
	resp := workspaceResponse{State: m.Snapshot(), At: time.Now().UTC()}
	status := http.StatusOK
	if err != nil {
		var kind, msg string
		status, kind, msg = errorStatus(err)
		r.logError(req, status, kind, err)
		resp.Error = &middleware.ErrorDetail{Kind: kind, Message: msg}
	}
	middleware.WriteJSON(w, status, resp)
	return nil
}

// GET /v1/workspace
func (r *Router) handleWorkspace(w http.ResponseWriter, req *http.Request) error {
	m, err := r.machine(req)
	return r.snapshot(w, req, m, err)
}

// PUT /v1/workspace/draft
func (r *Router) handleWorkspaceDraft(w http.ResponseWriter, req *http.Request) error {
	var form appverdict.Form
	if err := decode(w, req, &form); err != nil {
		return err
	}
	form.ObjectionText = middleware.SanitizeString(form.ObjectionText)
	form.Sector = middleware.SanitizeString(form.Sector)
	m, _ := r.machine(req)
	return r.snapshot(w, req, m, m.UpdateDraft(form))
}

// PUT /v1/workspace/view
func (r *Router) handleWorkspaceView(w http.ResponseWriter, req *http.Request) error {
	var body struct {
		View string `json:"view"`
	}
	if err := decode(w, req, &body); err != nil {
		return err
	}
	m, _ := r.machine(req)
	view, ok := appverdict.ParseView(body.View)
	if !ok {
		return r.snapshot(w, req, m, domain.NewValidationError("view", "must be engine or protocol"))
	}
	return r.snapshot(w, req, m, m.SetView(view))
}

// POST /v1/workspace/submit
func (r *Router) handleWorkspaceSubmit(w http.ResponseWriter, req *http.Request) error {
	m, _ := r.machine(req)
	_, err := m.Submit(req.Context())
	if errors.Is(err, domain.ErrPersistence) {
		middleware.IncrementSavesFailed()
	}
	return r.snapshot(w, req, m, err)
}

// POST /v1/workspace/new
func (r *Router) handleWorkspaceNew(w http.ResponseWriter, req *http.Request) error {
	m, _ := r.machine(req)
	return r.snapshot(w, req, m, m.NewVerdict())
}

// POST /v1/workspace/select/{id}
func (r *Router) handleWorkspaceSelect(w http.ResponseWriter, req *http.Request) error {
	m, _ := r.machine(req)
	return r.snapshot(w, req, m, m.Select(domain.RecordID(chi.URLParam(req, "id"))))
}

// DELETE /v1/workspace/analyses/{id}
func (r *Router) handleWorkspaceDelete(w http.ResponseWriter, req *http.Request) error {
	m, _ := r.machine(req)
	return r.snapshot(w, req, m, m.Delete(req.Context(), domain.RecordID(chi.URLParam(req, "id"))))
}

// POST /v1/workspace/retry-save
func (r *Router) handleWorkspaceRetrySave(w http.ResponseWriter, req *http.Request) error {
	m, _ := r.machine(req)
	_, err := m.RetrySave(req.Context())
	return r.snapshot(w, req, m, err)
}
