package engine

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorClass represents the classification of an error for retry logic.
type ErrorClass string

const (
	// ErrorClassTransient indicates a temporary failure that may succeed on
	// retry. Examples: network timeouts, a target that is still starting up.
	ErrorClassTransient ErrorClass = "transient"

	// ErrorClassPermanent indicates a non-recoverable error.
	// Examples: invalid configuration, authentication failures, cycles.
	ErrorClassPermanent ErrorClass = "permanent"
)

// DeployError represents a classified error with component context.
type DeployError struct {
	// Class is the error classification for retry logic.
	Class ErrorClass `json:"class"`

	// Code is an error code for programmatic handling.
	Code string `json:"code,omitempty"`

	// Message is the human-readable error message.
	Message string `json:"message"`

	// Component is the component id that caused the error, if applicable.
	Component string `json:"component,omitempty"`

	// Err is the underlying error.
	Err error `json:"-"`
}

// Error implements the error interface.
func (e *DeployError) Error() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "[%s] %s", e.Class, e.Message)
	if e.Component != "" {
		fmt.Fprintf(&sb, " (component=%s)", e.Component)
	}
	if e.Err != nil {
		fmt.Fprintf(&sb, ": %s", e.Err.Error())
	}
	return sb.String()
}

// Unwrap returns the underlying error for error chain inspection.
func (e *DeployError) Unwrap() error {
	return e.Err
}

// Is implements error equality checking for errors.Is.
func (e *DeployError) Is(target error) bool {
	t, ok := target.(*DeployError)
	if !ok {
		return false
	}
	return e.Class == t.Class && e.Code == t.Code
}

// NewTransientError creates a new transient error.
func NewTransientError(message string, err error) *DeployError {
	return &DeployError{
		Class:   ErrorClassTransient,
		Message: message,
		Err:     err,
	}
}

// NewPermanentError creates a new permanent error.
func NewPermanentError(message string, err error) *DeployError {
	return &DeployError{
		Class:   ErrorClassPermanent,
		Message: message,
		Err:     err,
	}
}

// WithCode adds an error code to an error.
func (e *DeployError) WithCode(code string) *DeployError {
	e.Code = code
	return e
}

// WithComponent adds component context to an error.
func (e *DeployError) WithComponent(id string) *DeployError {
	e.Component = id
	return e
}

// IsTransient returns true if the error is classified as transient.
func IsTransient(err error) bool {
	var e *DeployError
	if errors.As(err, &e) {
		return e.Class == ErrorClassTransient
	}
	return false
}

// IsPermanent returns true if the error is classified as permanent.
func IsPermanent(err error) bool {
	var e *DeployError
	if errors.As(err, &e) {
		return e.Class == ErrorClassPermanent
	}
	return false
}

// IsRetryable returns true if the error can be retried by the phase
// executor. Only transient errors are retryable; readiness timeouts,
// configuration errors, and auth failures surface immediately.
func IsRetryable(err error) bool {
	return IsTransient(err)
}

// ErrorCode extracts the code from a classified error, or "" for plain errors.
func ErrorCode(err error) string {
	var e *DeployError
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// Error codes used across the engine.
const (
	// ErrCodeCycle indicates the dependency graph contains a cycle.
	// Fatal and pre-flight: nothing has been touched on the target.
	ErrCodeCycle = "CYCLE"

	// ErrCodeReadinessTimeout indicates a component never became healthy
	// within its readiness window.
	ErrCodeReadinessTimeout = "READINESS_TIMEOUT"

	// ErrCodeConfigInvalid indicates malformed or rejected configuration.
	ErrCodeConfigInvalid = "CONFIG_INVALID"

	// ErrCodeDriftUnresolved indicates credential synchronization could not
	// be verified after a resync attempt.
	ErrCodeDriftUnresolved = "DRIFT_UNRESOLVED"

	// ErrCodeNetwork indicates a transient network failure to a target API.
	ErrCodeNetwork = "NETWORK"

	// ErrCodeNotReadyYet indicates a target reported it is still starting.
	ErrCodeNotReadyYet = "NOT_READY_YET"

	// ErrCodeAuthFailed indicates an authentication or authorization failure.
	ErrCodeAuthFailed = "AUTH_FAILED"

	// ErrCodeDependencyFailed indicates a component was skipped because a
	// dependency did not reach a healthy terminal state.
	ErrCodeDependencyFailed = "DEPENDENCY_FAILED"

	// ErrCodeProbeFailed indicates a readiness predicate reported a hard
	// failure rather than "not ready yet".
	ErrCodeProbeFailed = "PROBE_FAILED"

	// ErrCodeInternal indicates an engine-internal invariant violation.
	ErrCodeInternal = "INTERNAL"
)
