package validation_test

import (
	"testing"

	"github.com/jonkersai/website/internal/validation"
	"github.com/stretchr/testify/require"
)

type signup struct {
	Email string `json:"email" validate:"required,email"`
	Name  string `json:"name" validate:"required,max=5"`
	Plan  string `json:"plan" validate:"omitempty,oneof=free pro"`
}

func TestStruct(t *testing.T) {
	require.NoError(t, validation.Struct(&signup{Email: "a@b.com", Name: "Ann"}))

	err := validation.Struct(&signup{Email: "nope", Name: "Annabelle", Plan: "gold"})
	require.Error(t, err)
	fields := validation.Fields(err)
	require.Equal(t, "email must be a valid email address", fields["email"])
	require.Equal(t, "name must be no longer than 5 characters", fields["name"])
	require.Equal(t, "plan must be one of free pro", fields["plan"])

	err = validation.Struct(&signup{})
	require.Equal(t, "email is required", validation.Fields(err)["email"])
	require.Contains(t, err.Error(), "name is required")
}
