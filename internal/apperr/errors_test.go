package apperr

import (
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppError_Error(t *testing.T) {
	e := NewError(ErrCodeNavigation, "boom", http.StatusBadGateway)
	assert.Equal(t, "[NAVIGATION_FAILED] boom", e.Error())

	e = e.WithCause(errors.New("dns lookup failed"))
	assert.Equal(t, "[NAVIGATION_FAILED] boom: dns lookup failed", e.Error())
}

func TestAppError_Is(t *testing.T) {
	a := ErrSelectorNotFound("#submit")
	b := ErrSelectorNotFound("#other")
	assert.True(t, errors.Is(a, b))
	assert.False(t, errors.Is(a, ErrAuthUnresolved("no form")))
}

func TestAppError_WithMetadata(t *testing.T) {
	e := ErrAssertionFailed("text_equals", "Welcome", "Error")
	require.Equal(t, "Welcome", e.Metadata["expected"])
	require.Equal(t, "Error", e.Metadata["actual"])
}

func TestGetHTTPStatus(t *testing.T) {
	assert.Equal(t, http.StatusUnprocessableEntity, GetHTTPStatus(ErrAssertionFailed("equals", "a", "b")))
	assert.Equal(t, http.StatusInternalServerError, GetHTTPStatus(errors.New("plain")))
}

func TestGetErrorCode(t *testing.T) {
	assert.Equal(t, ErrCodeLLMInvalidJSON, GetErrorCode(ErrLLMInvalidJSON("{bad", errors.New("parse"))))
	assert.Equal(t, ErrCodeInternal, GetErrorCode(errors.New("plain")))
}

func TestAsAppError(t *testing.T) {
	wrapped := errors.New("wrapped")
	ae := ErrStepCrashed(3, wrapped)
	got, ok := AsAppError(ae)
	require.True(t, ok)
	assert.Equal(t, 3, got.Metadata["step_order"])
	assert.ErrorIs(t, got, wrapped)
}
