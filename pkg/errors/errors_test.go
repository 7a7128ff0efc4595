package errors

import (
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNotFoundErrorMatchesSentinel(t *testing.T) {
	err := NewNotFoundError(ErrVersionNotFound, CodeVersionNotFound, "model_1_v3")

	assert.True(t, errors.Is(err, ErrVersionNotFound))
	assert.False(t, errors.Is(err, ErrModelNotFound))
	assert.True(t, IsNotFound(err))
	assert.Equal(t, KindNotFound, KindOf(err))
	assert.Contains(t, err.Error(), "model_1_v3")
}

func TestKindPredicates(t *testing.T) {
	notFound := NewNotFoundError(ErrModelNotFound, CodeModelNotFound, "model_1")
	invalidArg := NewInvalidArgumentError(ErrInvalidStage, CodeInvalidStage, "bad stage")
	invalidState := NewInvalidStateError(ErrTerminalStage, CodeTerminalStage, "archived")
	internal := NewInternalError("boom", errors.New("cause"))

	assert.True(t, IsNotFound(notFound))
	assert.True(t, IsInvalidArgument(invalidArg))
	assert.True(t, IsInvalidState(invalidState))
	assert.Equal(t, KindInternal, KindOf(internal))

	assert.False(t, IsNotFound(invalidArg))
	assert.False(t, IsInvalidArgument(invalidState))
}

func TestHTTPStatusMapping(t *testing.T) {
	tests := []struct {
		err  *AppError
		want int
	}{
		{NewNotFoundError(ErrEndpointNotFound, CodeEndpointNotFound, "ep_1"), http.StatusNotFound},
		{NewInvalidArgumentError(ErrInvalidStrategy, CodeInvalidStrategy, "yolo"), http.StatusBadRequest},
		{NewInvalidStateError(ErrTerminalDeployment, CodeTerminalDeployment, "completed"), http.StatusConflict},
		{NewInternalError("boom", nil), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.err.HTTPStatus(), tt.err.Code)
	}
}

func TestUnwrapExposesCause(t *testing.T) {
	cause := errors.New("connection refused")
	err := NewInternalError("redis connection failed", cause)

	assert.True(t, errors.Is(err, cause))
	assert.Contains(t, err.Error(), "connection refused")
}

func TestWithContext(t *testing.T) {
	err := NewInvalidStateError(ErrTerminalStage, CodeTerminalStage, "cannot promote").
		WithContext("version_id", "model_1_v2")

	assert.Equal(t, "model_1_v2", err.Context["version_id"])
}

func TestKindOfPlainError(t *testing.T) {
	assert.Equal(t, KindInternal, KindOf(errors.New("plain")))
	assert.False(t, IsNotFound(errors.New("plain")))
}
