package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bryanwahyu/verdict/internal/domain/account"
)

type stubGate struct {
	id  *account.Identity
	err error
	got string
}

func (g *stubGate) Current(_ context.Context, tok string) (*account.Identity, error) {
	g.got = tok
	return g.id, g.err
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) ErrorDetail {
	t.Helper()
	var body ErrorBody
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	return body.Error
}

func TestBearerAuth(t *testing.T) {
	who := &account.Identity{SessionID: "s1", UserID: "u1", Email: "a@b.com"}
	var seen account.Identity
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, ok := IdentityFrom(r.Context())
		require.True(t, ok)
		seen = id
		w.WriteHeader(http.StatusNoContent)
	})

	cases := []struct {
		name   string
		header string
		gate   *stubGate
		status int
	}{
		{"missing header", "", &stubGate{id: who}, http.StatusUnauthorized},
		{"wrong scheme", "Basic abc", &stubGate{id: who}, http.StatusUnauthorized},
		{"empty token", "Bearer  ", &stubGate{id: who}, http.StatusUnauthorized},
		{"no session", "Bearer tok", &stubGate{}, http.StatusUnauthorized},
		{"store down", "Bearer tok", &stubGate{err: errors.New("db down")}, http.StatusInternalServerError},
		{"ok", "Bearer tok", &stubGate{id: who}, http.StatusNoContent},
		{"ok lowercase scheme", "bearer tok", &stubGate{id: who}, http.StatusNoContent},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/v1/workspace", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			rec := httptest.NewRecorder()
			BearerAuth(tc.gate, zerolog.Nop())(next).ServeHTTP(rec, req)
			assert.Equal(t, tc.status, rec.Code)
			if tc.status == http.StatusUnauthorized {
				assert.Equal(t, "Unauthorized", decodeError(t, rec).Kind)
			}
		})
	}
	assert.Equal(t, *who, seen)
}

func TestRateLimiter(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	rl := NewRateLimiter(2, 6) // one token every 10s
	rl.now = func() time.Time { return now }

	assert.True(t, rl.Allow("1.2.3.4"))
	assert.True(t, rl.Allow("1.2.3.4"))
	assert.False(t, rl.Allow("1.2.3.4"))
	assert.True(t, rl.Allow("5.6.7.8"), "buckets are per key")

	now = now.Add(11 * time.Second)
	assert.True(t, rl.Allow("1.2.3.4"))
	assert.False(t, rl.Allow("1.2.3.4"))

	now = now.Add(time.Hour)
	assert.Equal(t, 2, rl.Sweep(10*time.Minute))
}

func TestRateLimiter_Middleware(t *testing.T) {
	rl := NewRateLimiter(1, 1)
	h := rl.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodPost, "/v1/auth/sign-in", nil)
	req.RemoteAddr = "10.0.0.1:5555"
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))
	assert.Equal(t, "RateLimited", decodeError(t, rec).Kind)
}

func TestHealthHandler(t *testing.T) {
	ok := CheckFunc(func(context.Context) error { return nil })
	bad := CheckFunc(func(context.Context) error { return errors.New("bucket missing") })

	rec := httptest.NewRecorder()
	HealthHandler(map[string]HealthChecker{"database": ok, "drafts": ok})(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	HealthHandler(map[string]HealthChecker{"database": ok, "drafts": bad})(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	var hs HealthStatus
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&hs))
	assert.Equal(t, "unhealthy", hs.Status)
	assert.Equal(t, "bucket missing", hs.Checks["drafts"].Message)
	assert.Equal(t, "healthy", hs.Checks["database"].Status)
}

func TestReadinessHandler(t *testing.T) {
	var ready atomic.Bool
	rec := httptest.NewRecorder()
	ReadinessHandler(&ready)(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	ready.Store(true)
	rec = httptest.NewRecorder()
	ReadinessHandler(&ready)(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRequestLogger(t *testing.T) {
	var buf bytes.Buffer
	log := zerolog.New(&buf)
	h := RequestLogger(log)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
		w.Write([]byte("short and stout"))
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/v1/protocol", nil))

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "warn", line["level"])
	assert.Equal(t, "/v1/protocol", line["path"])
	assert.EqualValues(t, 418, line["status"])
	assert.EqualValues(t, 15, line["bytes"])
}

func TestMetrics_TrackAnalysis(t *testing.T) {
	before := GetMetrics()
	done := TrackAnalysis()
	assert.Equal(t, before["analyses_running"].(uint64)+1, GetMetrics()["analyses_running"])
	done(errors.New("boom"))
	IncrementSavesFailed()

	after := GetMetrics()
	assert.Equal(t, before["analyses_total"].(uint64)+1, after["analyses_total"])
	assert.Equal(t, before["analyses_failed"].(uint64)+1, after["analyses_failed"])
	assert.Equal(t, before["saves_failed"].(uint64)+1, after["saves_failed"])
	assert.Equal(t, before["analyses_running"], after["analyses_running"])
}

func TestValidateRecordID(t *testing.T) {
	assert.NoError(t, ValidateRecordID("3f2c8a9e-1b7d-4c0e-9a51-6d2f0b8e4c17"))
	assert.Error(t, ValidateRecordID(""))
	assert.Error(t, ValidateRecordID("../etc"))
	assert.Error(t, ValidateRecordID(string(make([]byte, 65))))
	assert.Equal(t, "tab\tok", SanitizeString(" tab\tok\x00\x07 "))
}
