package utils_test

import (
	"testing"

	"github.com/jonkersai/website/internal/utils"
	"github.com/stretchr/testify/require"
)

func TestPtr(t *testing.T) {
	v := 3
	p := utils.Ptr(v)
	v = 4
	require.Equal(t, 3, *p)
}

func TestNilIfZero(t *testing.T) {
	require.Nil(t, utils.NilIfZero(""))
	require.Nil(t, utils.NilIfZero(0))
	require.Equal(t, "x", *utils.NilIfZero("x"))
}
