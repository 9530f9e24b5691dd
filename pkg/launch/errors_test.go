package launch

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLaunchError_Format(t *testing.T) {
	err := NewError(ErrorCodeProcessStartFailed, "failed to start component 'api'").
		WithContext("component", "api").
		WithCause(errors.New("exec: not found")).
		WithSuggestion("Check the command exists")

	msg := err.Error()
	assert.Contains(t, msg, "PROCESS_START_FAILED")
	assert.Contains(t, msg, "failed to start component 'api'")
	assert.Contains(t, msg, "component=api")
	assert.Contains(t, msg, "exec: not found")
	assert.Contains(t, msg, "Check the command exists")
}

func TestLaunchError_Unwrap(t *testing.T) {
	cause := errors.New("connection refused")
	err := ErrHealthCheckFailed("api", "http://localhost:8000/health", cause)

	assert.ErrorIs(t, err, cause)

	var launchErr *LaunchError
	require.ErrorAs(t, err, &launchErr)
	assert.Equal(t, ErrorCodeHealthCheckFailed, launchErr.Code)
}

func TestLaunchError_WrappedDetection(t *testing.T) {
	inner := ErrUnknownDependency("web", "ghost")
	wrapped := fmt.Errorf("launch failed: %w", inner)

	assert.True(t, IsErrorCode(wrapped, ErrorCodeUnknownDependency))
	assert.False(t, IsErrorCode(wrapped, ErrorCodeDependencyCycle))
	assert.Equal(t, ErrorCodeUnknownDependency, GetErrorCode(wrapped))
	assert.NotEmpty(t, GetSuggestion(wrapped))
}

func TestLaunchError_NonLaunchError(t *testing.T) {
	err := errors.New("plain")

	assert.False(t, IsErrorCode(err, ErrorCodeInternal))
	assert.Equal(t, ErrorCode(""), GetErrorCode(err))
	assert.Empty(t, GetSuggestion(err))
}

func TestErrProcessCrashed_Suggestions(t *testing.T) {
	few := ErrProcessCrashed("api", 1)
	many := ErrProcessCrashed("api", 4)

	assert.NotEqual(t, few.Suggestion, many.Suggestion,
		"repeated crashes get expanded troubleshooting guidance")
	assert.Contains(t, many.Suggestion, "repeatedly")
}
