package auth

import (
	"fmt"

	"github.com/pkg/errors"
)

// Kind is the closed set of failures the authentication layer reports.
type Kind int

const (
	KindUnexpected Kind = iota
	KindInvalidCredentials
	KindIncorrectCurrentPassword
	KindPasswordUpdateFailed
)

func (k Kind) String() string {
	switch k {
	case KindInvalidCredentials:
		return "invalid_credentials"
	case KindIncorrectCurrentPassword:
		return "incorrect_current_password"
	case KindPasswordUpdateFailed:
		return "password_update_failed"
	default:
		return "unexpected"
	}
}

// Message is the text shown to the user for k.
func (k Kind) Message() string {
	switch k {
	case KindInvalidCredentials:
		return "invalid email or password"
	case KindIncorrectCurrentPassword:
		return "current password is incorrect"
	case KindPasswordUpdateFailed:
		return "failed to update password"
	default:
		return "an unexpected error occurred"
	}
}

// Error is returned by every Authenticator and Reconciler operation.
type Error struct {
	Kind Kind
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return e.Kind.Message()
	}
	return fmt.Sprintf("%s: %v", e.Kind.Message(), e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches another *Error of the same kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind && t.Err == nil
}

// Sentinels for errors.Is.
var (
	ErrInvalidCredentials       = &Error{Kind: KindInvalidCredentials}
	ErrIncorrectCurrentPassword = &Error{Kind: KindIncorrectCurrentPassword}
	ErrPasswordUpdateFailed     = &Error{Kind: KindPasswordUpdateFailed}
	ErrUnexpected               = &Error{Kind: KindUnexpected}
)

// KindOf returns the kind of err. Errors from outside this package are unexpected.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnexpected
}

func newError(kind Kind, err error) *Error {
	return &Error{Kind: kind, Err: err}
}
