package errors

import (
	"errors"
	"fmt"
)

// Common lifecycle errors, usable with errors.Is.
var (
	ErrModelNotFound      = errors.New("model not found")
	ErrVersionNotFound    = errors.New("version not found")
	ErrEndpointNotFound   = errors.New("endpoint not found")
	ErrDeploymentNotFound = errors.New("deployment not found")
	ErrMonitorNotFound    = errors.New("monitor not found")
	ErrArtifactNotFound   = errors.New("artifact not found")

	ErrInvalidStage    = errors.New("invalid lifecycle stage")
	ErrInvalidStrategy = errors.New("invalid deployment strategy")

	ErrTerminalStage      = errors.New("version stage is terminal")
	ErrTerminalDeployment = errors.New("deployment is in a terminal state")
)

// Kind categorizes lifecycle errors. Every error crossing the module
// boundary carries exactly one of these; callers branch on Kind rather
// than on message text.
type Kind string

const (
	KindNotFound        Kind = "not_found"
	KindInvalidArgument Kind = "invalid_argument"
	KindInvalidState    Kind = "invalid_state"
	KindInternal        Kind = "internal"
)

// AppError is an application error with structured context.
type AppError struct {
	Kind    Kind                   `json:"kind"`
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Cause   error                  `json:"-"`
	Context map[string]interface{} `json:"context,omitempty"`
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error.
func (e *AppError) Unwrap() error {
	return e.Cause
}

// Is matches either another AppError with the same kind and code, or the
// wrapped sentinel.
func (e *AppError) Is(target error) bool {
	if t, ok := target.(*AppError); ok {
		return e.Kind == t.Kind && e.Code == t.Code
	}
	return errors.Is(e.Cause, target)
}

// WithContext attaches a key/value pair to the error.
func (e *AppError) WithContext(key string, value interface{}) *AppError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// HTTPStatus maps the error kind to an HTTP status code for the API shell.
func (e *AppError) HTTPStatus() int {
	switch e.Kind {
	case KindNotFound:
		return 404
	case KindInvalidArgument:
		return 400
	case KindInvalidState:
		return 409
	default:
		return 500
	}
}

// NewNotFoundError creates a not_found error wrapping the given sentinel.
func NewNotFoundError(sentinel error, code, id string) *AppError {
	return &AppError{
		Kind:    KindNotFound,
		Code:    code,
		Message: fmt.Sprintf("%v: %s", sentinel, id),
		Cause:   sentinel,
	}
}

// NewInvalidArgumentError creates an invalid_argument error.
func NewInvalidArgumentError(sentinel error, code, message string) *AppError {
	return &AppError{
		Kind:    KindInvalidArgument,
		Code:    code,
		Message: message,
		Cause:   sentinel,
	}
}

// NewInvalidStateError creates an invalid_state error.
func NewInvalidStateError(sentinel error, code, message string) *AppError {
	return &AppError{
		Kind:    KindInvalidState,
		Code:    code,
		Message: message,
		Cause:   sentinel,
	}
}

// NewInternalError wraps an unexpected failure.
func NewInternalError(message string, cause error) *AppError {
	return &AppError{
		Kind:    KindInternal,
		Code:    CodeInternalError,
		Message: message,
		Cause:   cause,
	}
}

// KindOf extracts the Kind from an error chain; unknown errors are internal.
func KindOf(err error) Kind {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return KindInternal
}

// IsNotFound reports whether the error chain carries a not_found kind.
func IsNotFound(err error) bool { return KindOf(err) == KindNotFound }

// IsInvalidArgument reports whether the error chain carries an
// invalid_argument kind.
func IsInvalidArgument(err error) bool { return KindOf(err) == KindInvalidArgument }

// IsInvalidState reports whether the error chain carries an invalid_state
// kind.
func IsInvalidState(err error) bool { return KindOf(err) == KindInvalidState }

// Error codes.
const (
	CodeModelNotFound      = "MODEL_NOT_FOUND"
	CodeVersionNotFound    = "VERSION_NOT_FOUND"
	CodeEndpointNotFound   = "ENDPOINT_NOT_FOUND"
	CodeDeploymentNotFound = "DEPLOYMENT_NOT_FOUND"
	CodeMonitorNotFound    = "MONITOR_NOT_FOUND"
	CodeArtifactNotFound   = "ARTIFACT_NOT_FOUND"

	CodeInvalidStage    = "INVALID_STAGE"
	CodeInvalidStrategy = "INVALID_STRATEGY"
	CodeMissingField    = "MISSING_FIELD"

	CodeTerminalStage      = "TERMINAL_STAGE"
	CodeTerminalDeployment = "TERMINAL_DEPLOYMENT"

	CodeStorageError  = "STORAGE_ERROR"
	CodeInternalError = "INTERNAL_ERROR"
)
