package account

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domain "github.com/bryanwahyu/verdict/internal/domain/account"
)

func TestGate_CurrentWithoutSession(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	for _, tok := range []string{"", "not-a-jwt", "a.b.c"} {
		id, err := h.gate.Current(ctx, tok)
		assert.NoError(t, err)
		assert.Nil(t, id)
	}
}

func TestGate_CurrentAfterSessionExpiry(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	res, err := h.svc.SignUp(ctx, "a@b.com", "password1")
	require.NoError(t, err)

	// access token still verifies against its own clock, but the session row
	// has lapsed
	h.sessions.mu.Lock()
	s := h.sessions.byID[res.Session.SessionID]
	s.ExpiresAt = h.now.Add(-time.Second)
	h.sessions.byID[s.ID] = s
	h.sessions.mu.Unlock()

	id, err := h.gate.Current(ctx, res.AccessToken)
	require.NoError(t, err)
	assert.Nil(t, id)
}

func TestGate_LookupActiveSession(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	res, err := h.svc.SignUp(ctx, "a@b.com", "password1")
	require.NoError(t, err)

	userID, err := h.gate.Lookup(ctx, res.Session.SessionID)
	require.NoError(t, err)
	assert.Equal(t, res.Session.UserID, userID)

	userID, err = h.gate.Lookup(ctx, "missing")
	require.NoError(t, err)
	assert.Empty(t, userID)
}

func TestGate_Unsubscribe(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	var got []domain.EventType
	unsubscribe := h.gate.OnSessionChange(func(ev domain.Event) { got = append(got, ev.Type) })

	res, err := h.svc.SignUp(ctx, "a@b.com", "password1")
	require.NoError(t, err)
	unsubscribe()
	unsubscribe()
	require.NoError(t, h.svc.SignOut(ctx, res.Session))

	assert.Equal(t, []domain.EventType{domain.EventSignedIn}, got)
	assert.Len(t, h.events, 2, "other listeners still notified")
}
