package errors

import (
	"errors"
)

// Common error types shared across the site packages
var (
	// Authentication errors
	ErrNotAuthenticated = errors.New("not authenticated")
	ErrForbidden        = errors.New("admin privileges required")

	// Session errors
	ErrSessionNotFound = errors.New("session not found")
	ErrSessionExpired  = errors.New("session expired")

	// General errors
	ErrNotFound     = errors.New("not found")
	ErrInvalidInput = errors.New("invalid input")
)
