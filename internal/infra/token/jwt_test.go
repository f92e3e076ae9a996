package token

import (
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const secret = "test-secret-at-least-32-chars-long-for-security"

func TestIssueAndParseAccess(t *testing.T) {
	m := NewManager(secret, "verdict-test", 15*time.Minute)

	tok, exp, err := m.IssueAccess("user-1", "sess-1")
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(15*time.Minute), exp, 5*time.Second)

	c, err := m.ParseAccess(tok)
	require.NoError(t, err)
	assert.Equal(t, "user-1", c.UserID)
	assert.Equal(t, "sess-1", c.SessionID)
}

func TestParseAccess_Rejects(t *testing.T) {
	m := NewManager(secret, "verdict-test", 15*time.Minute)
	tok, _, err := m.IssueAccess("user-1", "sess-1")
	require.NoError(t, err)

	_, err = m.ParseAccess("")
	assert.Error(t, err)

	_, err = m.ParseAccess(tok[:len(tok)-2] + "xx")
	assert.Error(t, err, "tampered signature")

	other := NewManager("another-secret-at-least-32-characters!!", "verdict-test", time.Minute)
	_, err = other.ParseAccess(tok)
	assert.Error(t, err, "wrong secret")

	wrongIssuer := NewManager(secret, "someone-else", time.Minute)
	_, err = wrongIssuer.ParseAccess(tok)
	assert.Error(t, err)

	expired := NewManager(secret, "verdict-test", time.Minute)
	expired.now = func() time.Time { return time.Now().Add(-time.Hour) }
	old, _, err := expired.IssueAccess("user-1", "sess-1")
	require.NoError(t, err)
	_, err = m.ParseAccess(old)
	assert.ErrorIs(t, err, jwt.ErrTokenExpired)
}

func TestParseAccess_RejectsNoneAlgorithm(t *testing.T) {
	m := NewManager(secret, "verdict-test", time.Minute)
	claims := jwt.MapClaims{"sub": "user-1", "sid": "s", "iss": "verdict-test", "exp": time.Now().Add(time.Minute).Unix()}
	unsigned, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	_, err = m.ParseAccess(unsigned)
	assert.Error(t, err)
}

func TestRefreshToken(t *testing.T) {
	raw, hash, err := NewRefresh("sess-1")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(raw, "sess-1."))
	assert.Equal(t, Hash(raw), hash)
	assert.Len(t, hash, 64)

	sid, ok := SplitRefresh(raw)
	assert.True(t, ok)
	assert.Equal(t, "sess-1", sid)

	raw2, _, err := NewRefresh("sess-1")
	require.NoError(t, err)
	assert.NotEqual(t, raw, raw2)

	for _, bad := range []string{"", "nodot", ".x", "sid."} {
		_, ok := SplitRefresh(bad)
		assert.False(t, ok, bad)
	}
}
