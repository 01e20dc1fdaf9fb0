// Package validation checks request structs with go-playground/validator and
// reports failures keyed by JSON field name.
package validation

import (
	"fmt"
	"reflect"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return fld.Name
		}
		return name
	})
	return v
}

var messages = map[string]string{
	"required": "%s is required",
	"email":    "%s must be a valid email address",
	"min":      "%s must be at least %s characters long",
	"max":      "%s must be no longer than %s characters",
	"oneof":    "%s must be one of %s",
	"url":      "%s must be a valid URL",
}

// Error lists the invalid fields of a struct.
type Error struct {
	Fields map[string]string // json field name -> message
}

func (e *Error) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, e.Fields[k])
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// Struct validates s. It returns nil or an *Error.
func Struct(s any) error {
	err := validate.Struct(s)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return errors.Wrap(err, "[validation.Struct]")
	}
	out := &Error{Fields: make(map[string]string, len(verrs))}
	for _, fe := range verrs {
		out.Fields[fe.Field()] = message(fe)
	}
	return out
}

// Fields returns the per-field messages of err, or nil when err is not a validation error.
func Fields(err error) map[string]string {
	var verr *Error
	if errors.As(err, &verr) {
		return verr.Fields
	}
	return nil
}

func message(fe validator.FieldError) string {
	msg, ok := messages[fe.Tag()]
	if !ok {
		return fmt.Sprintf("%s is invalid (%s)", fe.Field(), fe.Tag())
	}
	if strings.Count(msg, "%s") == 2 {
		return fmt.Sprintf(msg, fe.Field(), fe.Param())
	}
	return fmt.Sprintf(msg, fe.Field())
}
