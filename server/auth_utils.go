package server

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/jonkersai/website/auth"
	"github.com/jonkersai/website/blog"
	"github.com/jonkersai/website/contact"
	apperrors "github.com/jonkersai/website/internal/errors"
	"github.com/jonkersai/website/internal/validation"
	"github.com/rs/zerolog/log"
)

const (
	// loggedInSessionID is the name of the cookie holding the login session id
	loggedInSessionID = "loggedInSessionId"

	maxBodyBytes = 1 << 20
)

// generateRandomString creates a random base64url string
func generateRandomString(length int) (string, error) {
	b := make([]byte, length)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

func (s *Server) SetLoginSessionCookie(w http.ResponseWriter, sessionID string, r *http.Request, maxAge int) {
	isSecure := getScheme(r) == "https"

	http.SetCookie(w, &http.Cookie{
		Name:     loggedInSessionID,
		Value:    sessionID,
		Path:     "/",
		HttpOnly: true,
		Secure:   isSecure,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   maxAge,
	})
}

func (s *Server) ClearLoginSessionCookie(w http.ResponseWriter, r *http.Request) {
	s.SetLoginSessionCookie(w, "", r, -1)
}

// loginSessionExpiry ends a login session at the configured max age, or at the
// provider session's own expiry when that comes first.
func (s *Server) loginSessionExpiry(now, sessionExpiry time.Time) time.Time {
	expiresAt := now.Add(s.config.GetSessionMaxAge())
	if !sessionExpiry.IsZero() && sessionExpiry.Before(expiresAt) {
		return sessionExpiry
	}
	return expiresAt
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSONError(w, "invalid_request", "Request body must be valid JSON", http.StatusBadRequest)
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, statusCode int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(statusCode)
	if v == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Err(err).Msg("Failed to encode response")
	}
}

// writeJSONError writes an error response
func writeJSONError(w http.ResponseWriter, errorCode, description string, statusCode int) {
	writeJSON(w, statusCode, map[string]string{
		"error":             errorCode,
		"error_description": description,
	})
}

type validationErrorResponse struct {
	Error       string            `json:"error"`
	Description string            `json:"error_description"`
	Fields      map[string]string `json:"fields"`
}

// writeServiceError maps a domain error onto a status code and error body.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	if fields := validation.Fields(err); fields != nil {
		writeJSON(w, http.StatusBadRequest, validationErrorResponse{
			Error:       "invalid_request",
			Description: "Some fields are invalid",
			Fields:      fields,
		})
		return
	}

	var authErr *auth.Error
	if errors.As(err, &authErr) {
		switch authErr.Kind {
		case auth.KindInvalidCredentials:
			writeJSONError(w, authErr.Kind.String(), authErr.Kind.Message(), http.StatusUnauthorized)
		case auth.KindIncorrectCurrentPassword:
			writeJSONError(w, authErr.Kind.String(), authErr.Kind.Message(), http.StatusBadRequest)
		default:
			log.Err(err).Str("path", r.URL.Path).Msg("Authentication failed unexpectedly")
			writeJSONError(w, authErr.Kind.String(), authErr.Kind.Message(), http.StatusInternalServerError)
		}
		return
	}

	switch {
	case errors.Is(err, blog.ErrSlugTaken):
		writeJSONError(w, "conflict", "A post with this slug already exists", http.StatusConflict)
	case errors.Is(err, blog.ErrInUse):
		writeJSONError(w, "conflict", "This item is still assigned to posts", http.StatusConflict)
	case errors.Is(err, apperrors.ErrNotFound):
		writeJSONError(w, "not_found", "Not found", http.StatusNotFound)
	case errors.Is(err, contact.ErrPermissionDenied):
		writeJSONError(w, "permission_denied", "Permission denied. Please contact support.", http.StatusForbidden)
	case errors.Is(err, apperrors.ErrInvalidInput):
		writeJSONError(w, "invalid_request", "Invalid data provided. Please check your inputs.", http.StatusBadRequest)
	case errors.Is(err, contact.ErrNetwork):
		writeJSONError(w, "network_error", "Network error. Please check your connection and try again.", http.StatusBadGateway)
	case errors.Is(err, contact.ErrSubmissionFailed):
		log.Err(err).Str("path", r.URL.Path).Msg("Contact submission failed")
		writeJSONError(w, "submission_failed", "Failed to submit. Please try again later.", http.StatusBadGateway)
	default:
		log.Err(err).Str("path", r.URL.Path).Msg("Request failed")
		writeJSONError(w, "server_error", "An unexpected error occurred", http.StatusInternalServerError)
	}
}
