package validate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sample struct {
	Code  string `json:"code" validate:"required"`
	Hours int    `json:"hours" validate:"min=1"`
}

func TestStruct(t *testing.T) {
	require.NoError(t, Struct(&sample{Code: "abc", Hours: 1}))

	err := Struct(&sample{})
	require.Error(t, err)
	assert.Equal(t, "code required; hours min", err.Error())
}

func TestStructRejectsNonStruct(t *testing.T) {
	assert.Error(t, Struct(nil))
	assert.Error(t, Struct("text"))
}
