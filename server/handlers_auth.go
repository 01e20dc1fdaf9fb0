package server

import (
	"errors"
	"net/http"
	"time"

	"github.com/jonkersai/website/auth"
	"github.com/jonkersai/website/authprovider"
	apperrors "github.com/jonkersai/website/internal/errors"
	"github.com/jonkersai/website/internal/validation"
	"github.com/jonkersai/website/recordstore"
	"github.com/jonkersai/website/server/loginsession"
	"github.com/jonkersai/website/sessions"
	"github.com/jonkersai/website/users"
	"github.com/rs/zerolog/log"
)

const sessionIDLength = 32

type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type changePasswordRequest struct {
	CurrentPassword string `json:"current_password" validate:"required"`
	NewPassword     string `json:"new_password" validate:"required"`
}

type sessionResponse struct {
	State     string          `json:"state"`
	User      *users.Identity `json:"user,omitempty"`
	IsAdmin   bool            `json:"is_admin"`
	ExpiresAt *time.Time      `json:"expires_at,omitempty"`
}

var loggedOutResponse = sessionResponse{State: auth.StateLoggedOut.String()}

func sessionResponseFrom(ls loginsession.Session) sessionResponse {
	state := auth.StateLoggedInUser
	if ls.IsAdmin {
		state = auth.StateLoggedInAdmin
	}
	identity := ls.Identity()
	expiresAt := ls.ExpiresAt
	return sessionResponse{
		State:     state.String(),
		User:      &identity,
		IsAdmin:   ls.IsAdmin,
		ExpiresAt: &expiresAt,
	}
}

// LoginHandler signs the user in and starts a login session (POST /api/auth/login)
func (s *Server) LoginHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req loginRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		if err := validation.Struct(req); err != nil {
			writeServiceError(w, r, err)
			return
		}

		res, err := s.services.Auth.SignIn(r.Context(), req.Email, req.Password)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}

		sessionID, err := generateRandomString(sessionIDLength)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		now := s.nowTime()
		ls := loginsession.FromSession(res.Session, res.IsAdmin, now, s.loginSessionExpiry(now, res.Session.ExpiresAt))
		if err := s.services.LoginSessions.Upsert(r.Context(), sessionID, ls); err != nil {
			writeServiceError(w, r, err)
			return
		}

		// a second login from the same browser replaces the first
		if cookie, err := r.Cookie(loggedInSessionID); err == nil && cookie.Value != "" {
			if err := s.services.LoginSessions.Delete(r.Context(), cookie.Value); err != nil {
				log.Err(err).Msg("Failed to delete replaced login session")
			}
		}

		s.SetLoginSessionCookie(w, sessionID, r, int(ls.ExpiresAt.Sub(now)/time.Second))
		log.Info().Str("email", ls.Email).Bool("is_admin", ls.IsAdmin).Bool("synthesized", ls.Synthesized).Msg("Login session started")
		writeJSON(w, http.StatusOK, sessionResponseFrom(ls))
	}
}

// LogoutHandler ends the login session and revokes its provider tokens. It
// always succeeds from the browser's point of view.
func (s *Server) LogoutHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			s.ClearLoginSessionCookie(w, r)
			writeJSON(w, http.StatusOK, loggedOutResponse)
		}()

		sessionID, ls, err := s.currentLoginSession(r)
		if err != nil {
			if !errors.Is(err, apperrors.ErrNotAuthenticated) {
				log.Err(err).Msg("Logout: failed to load login session")
			}
			return
		}

		if revoker, ok := s.services.Auth.Provider().(authprovider.Revoker); ok {
			provided := &sessions.Session{
				AccessToken:  ls.AccessToken,
				RefreshToken: ls.RefreshToken,
				User:         ls.Identity(),
				Synthesized:  ls.Synthesized,
			}
			if err := revoker.Revoke(r.Context(), provided); err != nil {
				log.Err(err).Str("email", ls.Email).Msg("Logout: failed to revoke provider session")
			}
		}

		if err := s.services.LoginSessions.Delete(r.Context(), sessionID); err != nil {
			log.Err(err).Msg("Failed to delete login session")
		}
	}
}

// SessionHandler reports the caller's login state. Admin status is derived
// again on every call so role changes apply without a new sign-in.
func (s *Server) SessionHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sessionID, ls, err := s.currentLoginSession(r)
		if errors.Is(err, apperrors.ErrNotAuthenticated) {
			if _, cerr := r.Cookie(loggedInSessionID); cerr == nil {
				s.ClearLoginSessionCookie(w, r)
			}
			writeJSON(w, http.StatusOK, loggedOutResponse)
			return
		}
		if err != nil {
			writeServiceError(w, r, err)
			return
		}

		ctx := recordstore.WithCaller(r.Context(), ls.Caller())
		identity := ls.Identity()
		if isAdmin := s.services.Auth.CheckAdminStatus(ctx, &identity); isAdmin != ls.IsAdmin {
			ls.IsAdmin = isAdmin
			if err := s.services.LoginSessions.Upsert(r.Context(), sessionID, ls); err != nil {
				log.Err(err).Str("email", ls.Email).Msg("Failed to store re-derived admin status")
			}
		}
		writeJSON(w, http.StatusOK, sessionResponseFrom(ls))
	}
}

// ChangePasswordHandler verifies the current password and stores the new one
// (POST /api/auth/change-password)
func (s *Server) ChangePasswordHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ls, _ := LoginSessionFromContext(r.Context())

		var req changePasswordRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		if err := validation.Struct(req); err != nil {
			writeServiceError(w, r, err)
			return
		}
		if err := users.ValidatePasswordStrength(req.NewPassword); err != nil {
			writeServiceError(w, r, &validation.Error{Fields: map[string]string{"new_password": err.Error()}})
			return
		}

		if err := s.services.Auth.UpdatePassword(r.Context(), ls.Email, req.CurrentPassword, req.NewPassword); err != nil {
			writeServiceError(w, r, err)
			return
		}
		log.Info().Str("email", ls.Email).Msg("Password updated")
		writeJSON(w, http.StatusOK, map[string]string{"status": "updated"})
	}
}
