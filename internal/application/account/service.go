package account

import (
	"context"
	"crypto/subtle"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"github.com/bryanwahyu/verdict/internal/application"
	domain "github.com/bryanwahyu/verdict/internal/domain/account"
	"github.com/bryanwahyu/verdict/internal/infra/token"
)

const (
	MinPasswordLength = 8
	// bcrypt ignores everything past 72 bytes.
	MaxPasswordBytes = 72
)

// Service implements sign-up, sign-in, refresh and sign-out. Every committed
// change is published through the Gate.
type Service struct {
	Users      domain.UserRepository
	Sessions   domain.SessionRepository
	Tokens     *token.Manager
	Gate       *Gate
	Clock      application.Clock
	RefreshTTL time.Duration
	HashCost   int
	Log        zerolog.Logger
}

// Result is returned by every flow that issues tokens.
type Result struct {
	AccessToken  string          `json:"accessToken"`
	RefreshToken string          `json:"refreshToken"`
	ExpiresAt    time.Time       `json:"expiresAt"`
	Session      domain.Identity `json:"session"`
}

//
// ==== USE CASES ====
//

// SignUp registers the user and signs them in.
func (s *Service) SignUp(ctx context.Context, email, password string) (Result, error) {
	email, err := normalizeEmail(email)
	if err != nil {
		return Result{}, err
	}
	if err := checkPassword(password); err != nil {
		return Result{}, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cost())
	if err != nil {
		return Result{}, errors.Wrap(err, "hash password")
	}

	u := &domain.User{
		Email:        email,
		PasswordHash: string(hash),
		CreatedAt:    s.Clock.Now(),
	}
	if err := s.Users.Create(ctx, u); err != nil {
		if errors.Is(err, domain.ErrAlreadyExists) {
			return Result{}, fmt.Errorf("%w: email is already registered", domain.ErrAlreadyExists)
		}
		return Result{}, errors.Wrap(err, "create user")
	}

	s.Log.Info().Str("user_id", u.ID).Msg("user registered")
	return s.startSession(ctx, u)
}

// SignIn checks credentials. Unknown e-mail and wrong password are the same
// error.
func (s *Service) SignIn(ctx context.Context, email, password string) (Result, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	u, err := s.Users.GetByEmail(ctx, email)
	if errors.Is(err, domain.ErrNotFound) {
		return Result{}, fmt.Errorf("%w: invalid email or password", domain.ErrUnauthorized)
	}
	if err != nil {
		return Result{}, errors.Wrap(err, "load user")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		return Result{}, fmt.Errorf("%w: invalid email or password", domain.ErrUnauthorized)
	}
	return s.startSession(ctx, u)
}

// Refresh rotates the refresh token of a live session. Presenting a stale
// token for a live session revokes that session.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (Result, error) {
	sid, ok := token.SplitRefresh(refreshToken)
	if !ok {
		return Result{}, fmt.Errorf("%w: malformed refresh token", domain.ErrUnauthorized)
	}

	now := s.Clock.Now()
	sess, err := s.Sessions.Get(ctx, sid)
	if errors.Is(err, domain.ErrNotFound) {
		return Result{}, fmt.Errorf("%w: unknown session", domain.ErrUnauthorized)
	}
	if err != nil {
		return Result{}, errors.Wrap(err, "load session")
	}
	if !sess.Active(now) {
		return Result{}, fmt.Errorf("%w: session expired or revoked", domain.ErrUnauthorized)
	}

	if subtle.ConstantTimeCompare([]byte(token.Hash(refreshToken)), []byte(sess.RefreshHash)) != 1 {
		s.Log.Warn().Str("session_id", sess.ID).Msg("refresh token reuse detected, revoking session")
		if err := s.Sessions.Revoke(ctx, sess.ID, now); err != nil {
			s.Log.Error().Err(err).Str("session_id", sess.ID).Msg("revoke after reuse failed")
		} else {
			s.Gate.publish(domain.Event{Type: domain.EventSignedOut, Identity: domain.Identity{SessionID: sess.ID, UserID: sess.UserID}, At: now})
		}
		return Result{}, fmt.Errorf("%w: refresh token already used", domain.ErrUnauthorized)
	}

	u, err := s.Users.GetByID(ctx, sess.UserID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return Result{}, fmt.Errorf("%w: user no longer exists", domain.ErrUnauthorized)
		}
		return Result{}, errors.Wrap(err, "load user")
	}

	raw, hash, err := token.NewRefresh(sess.ID)
	if err != nil {
		return Result{}, err
	}
	if err := s.Sessions.Rotate(ctx, sess.ID, hash, now.Add(s.RefreshTTL)); err != nil {
		return Result{}, errors.Wrap(err, "rotate refresh token")
	}

	res, err := s.result(u, sess.ID, raw)
	if err != nil {
		return Result{}, err
	}
	s.Gate.publish(domain.Event{Type: domain.EventTokenRefreshed, Identity: res.Session, At: now})
	return res, nil
}

// SignOut revokes the session. Signing out twice is not an error.
func (s *Service) SignOut(ctx context.Context, id domain.Identity) error {
	now := s.Clock.Now()
	if err := s.Sessions.Revoke(ctx, id.SessionID, now); err != nil && !errors.Is(err, domain.ErrNotFound) {
		return errors.Wrap(err, "revoke session")
	}
	s.Log.Info().Str("user_id", id.UserID).Str("session_id", id.SessionID).Msg("signed out")
	s.Gate.publish(domain.Event{Type: domain.EventSignedOut, Identity: id, At: now})
	return nil
}

func (s *Service) startSession(ctx context.Context, u *domain.User) (Result, error) {
	now := s.Clock.Now()
	// session id dibuat di sini karena refresh token butuh prefix id
	id := uuid.NewString()
	raw, hash, err := token.NewRefresh(id)
	if err != nil {
		return Result{}, err
	}
	sess := &domain.Session{
		ID:          id,
		UserID:      u.ID,
		RefreshHash: hash,
		ExpiresAt:   now.Add(s.RefreshTTL),
		CreatedAt:   now,
	}
	if err := s.Sessions.Create(ctx, sess); err != nil {
		return Result{}, errors.Wrap(err, "create session")
	}

	res, err := s.result(u, sess.ID, raw)
	if err != nil {
		return Result{}, err
	}
	s.Gate.publish(domain.Event{Type: domain.EventSignedIn, Identity: res.Session, At: now})
	return res, nil
}

func (s *Service) result(u *domain.User, sessionID, refresh string) (Result, error) {
	access, exp, err := s.Tokens.IssueAccess(u.ID, sessionID)
	if err != nil {
		return Result{}, err
	}
	return Result{
		AccessToken:  access,
		RefreshToken: refresh,
		ExpiresAt:    exp,
		Session:      domain.Identity{SessionID: sessionID, UserID: u.ID, Email: u.Email},
	}, nil
}

func (s *Service) cost() int {
	if s.HashCost == 0 {
		return bcrypt.DefaultCost
	}
	return s.HashCost
}

func normalizeEmail(raw string) (string, error) {
	email := strings.ToLower(strings.TrimSpace(raw))
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email || !strings.Contains(email[strings.LastIndexByte(email, '@')+1:], ".") {
		return "", fmt.Errorf("%w: email must be a valid address", domain.ErrValidation)
	}
	return email, nil
}

func checkPassword(pw string) error {
	if len([]rune(pw)) < MinPasswordLength {
		return fmt.Errorf("%w: password must be at least %d characters", domain.ErrValidation, MinPasswordLength)
	}
	if len(pw) > MaxPasswordBytes {
		return fmt.Errorf("%w: password must be at most %d bytes", domain.ErrValidation, MaxPasswordBytes)
	}
	return nil
}
