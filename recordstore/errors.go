package recordstore

import (
	"errors"
	"fmt"
)

var (
	// ErrNoRows is returned by helpers expecting exactly one row.
	ErrNoRows = errors.New("recordstore: no rows")
	// ErrUnknownProcedure is returned by RPC for names the store does not implement.
	ErrUnknownProcedure = errors.New("recordstore: unknown procedure")
)

// Backend error codes (Postgres SQLSTATE values, as reported by the hosted store).
const (
	CodeInsufficientPrivilege = "42501"
	CodeUniqueViolation       = "23505"
	CodeNotNullViolation      = "23502"
)

// Error is a failure reported by the store backend.
type Error struct {
	Code    string
	Message string
	Details string
	Err     error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if e.Code != "" {
		return fmt.Sprintf("recordstore: %s (code %s)", msg, e.Code)
	}
	return "recordstore: " + msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// CodeOf returns the backend code carried by err, or "".
func CodeOf(err error) string {
	var se *Error
	if errors.As(err, &se) {
		return se.Code
	}
	return ""
}
