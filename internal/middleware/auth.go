package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/rs/zerolog"

	"github.com/bryanwahyu/verdict/internal/domain/account"
)

type contextKey string

const identityKey contextKey = "identity"

// SessionResolver resolves a bearer token to a live session identity, nil
// when there is none.
type SessionResolver interface {
	Current(ctx context.Context, accessToken string) (*account.Identity, error)
}

// BearerAuth rejects requests without a live session and stores the
// identity in the request context.
func BearerAuth(gate SessionResolver, log zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			auth := r.Header.Get("Authorization")
			if auth == "" {
				WriteError(w, http.StatusUnauthorized, "Unauthorized", "missing Authorization header")
				return
			}

			scheme, tok, ok := strings.Cut(auth, " ")
			tok = strings.TrimSpace(tok)
			if !ok || !strings.EqualFold(scheme, "Bearer") || tok == "" {
				WriteError(w, http.StatusUnauthorized, "Unauthorized", "invalid Authorization header format")
				return
			}

			id, err := gate.Current(r.Context(), tok)
			if err != nil {
				log.Error().Err(err).Msg("session lookup failed")
				WriteError(w, http.StatusInternalServerError, "PersistenceError", "could not verify the session")
				return
			}
			if id == nil {
				WriteError(w, http.StatusUnauthorized, "Unauthorized", "session expired or signed out")
				return
			}

			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), *id)))
		})
	}
}

func WithIdentity(ctx context.Context, id account.Identity) context.Context {
	return context.WithValue(ctx, identityKey, id)
}

// IdentityFrom extracts the identity set by BearerAuth.
func IdentityFrom(ctx context.Context) (account.Identity, bool) {
	id, ok := ctx.Value(identityKey).(account.Identity)
	return id, ok
}
