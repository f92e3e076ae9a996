package token

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Manager signs and checks access tokens and mints refresh tokens.
type Manager struct {
	secret    []byte
	issuer    string
	accessTTL time.Duration
	now       func() time.Time
}

// NewManager creates a manager. secret must be at least 32 characters for
// HS256; config validation enforces that.
func NewManager(secret, issuer string, accessTTL time.Duration) *Manager {
	return &Manager{
		secret:    []byte(secret),
		issuer:    issuer,
		accessTTL: accessTTL,
		now:       time.Now,
	}
}

type accessClaims struct {
	jwt.RegisteredClaims
	SessionID string `json:"sid"`
}

// Claims is what a valid access token carries.
type Claims struct {
	UserID    string
	SessionID string
	ExpiresAt time.Time
}

// IssueAccess signs an HS256 token with the user as subject and the session
// id in the sid claim.
func (m *Manager) IssueAccess(userID, sessionID string) (string, time.Time, error) {
	now := m.now()
	exp := now.Add(m.accessTTL)
	claims := accessClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			Issuer:    m.issuer,
			ExpiresAt: jwt.NewNumericDate(exp),
			IssuedAt:  jwt.NewNumericDate(now),
		},
		SessionID: sessionID,
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return signed, exp, nil
}

// ParseAccess validates signature, expiry and issuer.
func (m *Manager) ParseAccess(tokenString string) (Claims, error) {
	if tokenString == "" {
		return Claims{}, fmt.Errorf("token is empty")
	}
	tok, err := jwt.ParseWithClaims(tokenString, &accessClaims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return m.secret, nil
	}, jwt.WithIssuer(m.issuer), jwt.WithTimeFunc(m.now), jwt.WithExpirationRequired())
	if err != nil {
		return Claims{}, fmt.Errorf("parse token: %w", err)
	}
	c, ok := tok.Claims.(*accessClaims)
	if !ok || !tok.Valid {
		return Claims{}, fmt.Errorf("invalid token claims")
	}
	if c.Subject == "" || c.SessionID == "" {
		return Claims{}, fmt.Errorf("token missing subject or session")
	}
	return Claims{UserID: c.Subject, SessionID: c.SessionID, ExpiresAt: c.ExpiresAt.Time}, nil
}

// NewRefresh mints "<sessionID>.<random>" and returns it with its hash.
func NewRefresh(sessionID string) (raw, hash string, err error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", "", fmt.Errorf("generate random bytes: %w", err)
	}
	raw = sessionID + "." + base64.RawURLEncoding.EncodeToString(b)
	return raw, Hash(raw), nil
}

// SplitRefresh returns the session id prefix of a refresh token.
func SplitRefresh(raw string) (sessionID string, ok bool) {
	sid, rest, found := strings.Cut(raw, ".")
	if !found || sid == "" || rest == "" {
		return "", false
	}
	return sid, true
}

// Hash is the hex SHA-256 stored instead of the raw refresh token.
func Hash(raw string) string {
	h := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(h[:])
}
