package launch

import (
	"errors"
	"fmt"
	"strings"
)

// LaunchError carries an error code plus troubleshooting context
type LaunchError struct {
	// Code identifies the error type
	Code ErrorCode

	// Message is the primary error message
	Message string

	// Context provides additional details
	Context map[string]interface{}

	// Cause is the underlying error (if any)
	Cause error

	// Suggestion provides actionable guidance
	Suggestion string
}

// ErrorCode identifies categories of launch errors
type ErrorCode string

const (
	// Discovery and validation
	ErrorCodeComponentNotFound ErrorCode = "COMPONENT_NOT_FOUND"
	ErrorCodeInvalidManifest   ErrorCode = "INVALID_MANIFEST"
	ErrorCodeUnknownDependency ErrorCode = "UNKNOWN_DEPENDENCY"
	ErrorCodeDependencyCycle   ErrorCode = "DEPENDENCY_CYCLE"

	// Provisioning
	ErrorCodeEnvCreateFailed  ErrorCode = "ENV_CREATE_FAILED"
	ErrorCodeEnvInstallFailed ErrorCode = "ENV_INSTALL_FAILED"

	// Process lifecycle
	ErrorCodeProcessStartFailed ErrorCode = "PROCESS_START_FAILED"
	ErrorCodeProcessCrashed     ErrorCode = "PROCESS_CRASHED"
	ErrorCodeHealthCheckFailed  ErrorCode = "HEALTH_CHECK_FAILED"
	ErrorCodeStopFailed         ErrorCode = "STOP_FAILED"

	// Internal
	ErrorCodeInternal ErrorCode = "INTERNAL_ERROR"
)

// Error implements the error interface
func (e *LaunchError) Error() string {
	var parts []string

	parts = append(parts, fmt.Sprintf("[%s] %s", e.Code, e.Message))

	if len(e.Context) > 0 {
		var contextParts []string
		for k, v := range e.Context {
			contextParts = append(contextParts, fmt.Sprintf("%s=%v", k, v))
		}
		parts = append(parts, fmt.Sprintf("Context: %s", strings.Join(contextParts, ", ")))
	}

	if e.Cause != nil {
		parts = append(parts, fmt.Sprintf("Cause: %v", e.Cause))
	}

	if e.Suggestion != "" {
		parts = append(parts, fmt.Sprintf("Suggestion: %s", e.Suggestion))
	}

	return strings.Join(parts, "; ")
}

// Unwrap returns the underlying error for errors.Is/As compatibility
func (e *LaunchError) Unwrap() error {
	return e.Cause
}

// NewError creates a LaunchError with the given code and message
func NewError(code ErrorCode, message string) *LaunchError {
	return &LaunchError{
		Code:    code,
		Message: message,
		Context: make(map[string]interface{}),
	}
}

// WithContext adds context information to the error
func (e *LaunchError) WithContext(key string, value interface{}) *LaunchError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// WithCause adds the underlying cause to the error
func (e *LaunchError) WithCause(cause error) *LaunchError {
	e.Cause = cause
	return e
}

// WithSuggestion adds an actionable suggestion to the error
func (e *LaunchError) WithSuggestion(suggestion string) *LaunchError {
	e.Suggestion = suggestion
	return e
}

// ErrComponentNotFound creates an error for an unknown component
func ErrComponentNotFound(name, componentsDir string) *LaunchError {
	return NewError(ErrorCodeComponentNotFound,
		fmt.Sprintf("component '%s' not found", name)).
		WithContext("component", name).
		WithContext("components_dir", componentsDir).
		WithSuggestion(fmt.Sprintf(
			"Verify the component exists: ls -la %s/%s/component.yaml",
			componentsDir, name))
}

// ErrUnknownDependency creates an error for a depends_on entry that
// does not match any discovered component
func ErrUnknownDependency(name, dep string) *LaunchError {
	return NewError(ErrorCodeUnknownDependency,
		fmt.Sprintf("component '%s' depends on unknown component '%s'", name, dep)).
		WithContext("component", name).
		WithContext("dependency", dep).
		WithSuggestion("Check depends_on entries against discovered component names")
}

// ErrDependencyCycle creates an error for a cyclic depends_on graph
func ErrDependencyCycle(name string) *LaunchError {
	return NewError(ErrorCodeDependencyCycle,
		fmt.Sprintf("dependency cycle involving component '%s'", name)).
		WithContext("component", name).
		WithSuggestion("Remove the circular depends_on entry; the launch order must be acyclic")
}

// ErrProcessStartFailed creates an error for process start failures
func ErrProcessStartFailed(name string, cause error) *LaunchError {
	return NewError(ErrorCodeProcessStartFailed,
		fmt.Sprintf("failed to start component '%s'", name)).
		WithContext("component", name).
		WithCause(cause).
		WithSuggestion(
			"Common causes:\n" +
				"  1. Command not found in the environment or PATH\n" +
				"  2. Environment not provisioned (run 'hubctl provision')\n" +
				"  3. Port already in use\n" +
				"Check the component log for details")
}

// ErrHealthCheckFailed creates an error for readiness/health failures
func ErrHealthCheckFailed(name, healthURL string, cause error) *LaunchError {
	return NewError(ErrorCodeHealthCheckFailed,
		fmt.Sprintf("component '%s' health check failed", name)).
		WithContext("component", name).
		WithContext("health_url", healthURL).
		WithCause(cause).
		WithSuggestion(fmt.Sprintf(
			"Verify the health endpoint responds:\n"+
				"  curl %s\n"+
				"Ensure the component serves its health path before the ready timeout",
			healthURL))
}

// ErrProcessCrashed creates an error for crashed components
func ErrProcessCrashed(name string, restartCount int) *LaunchError {
	suggestion := "Check the component log for crash details"
	if restartCount >= 3 {
		suggestion = "Component has crashed repeatedly:\n" +
			"  1. Check the component log for errors\n" +
			"  2. Verify its dependencies are reachable\n" +
			"  3. Run the command manually inside its environment"
	}

	return NewError(ErrorCodeProcessCrashed,
		fmt.Sprintf("component '%s' crashed", name)).
		WithContext("component", name).
		WithContext("restart_count", restartCount).
		WithSuggestion(suggestion)
}

// ErrStopFailed creates an error for shutdown failures
func ErrStopFailed(name string, cause error) *LaunchError {
	return NewError(ErrorCodeStopFailed,
		fmt.Sprintf("failed to stop component '%s'", name)).
		WithContext("component", name).
		WithCause(cause).
		WithSuggestion(
			"Try force termination:\n" +
				"  1. Find the process: ps aux | grep " + name + "\n" +
				"  2. Force kill: kill -9 <pid>")
}

// IsErrorCode checks if an error carries the specified code
func IsErrorCode(err error, code ErrorCode) bool {
	var launchErr *LaunchError
	if errors.As(err, &launchErr) {
		return launchErr.Code == code
	}
	return false
}

// GetErrorCode returns the error code, or "" for non-launch errors
func GetErrorCode(err error) ErrorCode {
	var launchErr *LaunchError
	if errors.As(err, &launchErr) {
		return launchErr.Code
	}
	return ""
}

// GetSuggestion returns the suggestion, or "" when not available
func GetSuggestion(err error) string {
	var launchErr *LaunchError
	if errors.As(err, &launchErr) {
		return launchErr.Suggestion
	}
	return ""
}
