package server

import (
	"context"
	"errors"
	"net/http"

	apperrors "github.com/jonkersai/website/internal/errors"
	"github.com/jonkersai/website/recordstore"
	"github.com/jonkersai/website/server/loginsession"
	"github.com/rs/zerolog/log"
)

// ContextKey is a custom type for context keys to avoid collisions
type ContextKey string

const (
	// ContextKeyLoginSession stores the caller's loginsession.Session
	ContextKeyLoginSession ContextKey = "login_session"
	// ContextKeyLoginSessionID stores the id from the session cookie
	ContextKeyLoginSessionID ContextKey = "login_session_id"
)

// LoginSessionFromContext returns the session attached by RequireLogin.
func LoginSessionFromContext(ctx context.Context) (loginsession.Session, bool) {
	session, ok := ctx.Value(ContextKeyLoginSession).(loginsession.Session)
	return session, ok
}

// currentLoginSession resolves the session cookie of r. Unknown and expired
// sessions are reported as apperrors.ErrNotAuthenticated.
func (s *Server) currentLoginSession(r *http.Request) (string, loginsession.Session, error) {
	cookie, err := r.Cookie(loggedInSessionID)
	if err != nil || cookie.Value == "" {
		return "", loginsession.Session{}, apperrors.ErrNotAuthenticated
	}
	session, err := s.services.LoginSessions.Get(r.Context(), cookie.Value)
	switch {
	case errors.Is(err, apperrors.ErrSessionNotFound), errors.Is(err, apperrors.ErrSessionExpired):
		return "", loginsession.Session{}, apperrors.ErrNotAuthenticated
	case err != nil:
		return "", loginsession.Session{}, err
	}
	return cookie.Value, session, nil
}

// RequireLogin rejects requests without a live login session. The session is
// put on the context together with the record store caller, so store calls
// run with the user's access token.
func (s *Server) RequireLogin() func(http.HandlerFunc) http.HandlerFunc {
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			sessionID, session, err := s.currentLoginSession(r)
			if errors.Is(err, apperrors.ErrNotAuthenticated) {
				s.ClearLoginSessionCookie(w, r)
				writeJSONError(w, "unauthorized", "Please sign in", http.StatusUnauthorized)
				return
			}
			if err != nil {
				log.Err(err).Msg("Failed to load login session")
				writeJSONError(w, "server_error", "An unexpected error occurred", http.StatusInternalServerError)
				return
			}

			ctx := context.WithValue(r.Context(), ContextKeyLoginSession, session)
			ctx = context.WithValue(ctx, ContextKeyLoginSessionID, sessionID)
			ctx = recordstore.WithCaller(ctx, session.Caller())
			next(w, r.WithContext(ctx))
		}
	}
}

// RequireAdmin must follow RequireLogin in the chain.
func (s *Server) RequireAdmin() func(http.HandlerFunc) http.HandlerFunc {
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			session, ok := LoginSessionFromContext(r.Context())
			if !ok {
				writeJSONError(w, "unauthorized", "Please sign in", http.StatusUnauthorized)
				return
			}
			if !session.IsAdmin {
				writeJSONError(w, "forbidden", "Admin access required", http.StatusForbidden)
				return
			}
			next(w, r)
		}
	}
}
