// Package apperr defines the single structured error type used across
// every pipeline stage, so a crawl, plan, or execute failure carries a
// code, an HTTP status (for the optional control-surface API), and a
// cause chain instead of an opaque string.
package apperr

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"
)

// Error codes, one per pipeline failure kind.
const (
	ErrCodeConfigInvalid    = "CONFIG_INVALID"
	ErrCodeBrowserLaunch    = "BROWSER_LAUNCH_FAILED"
	ErrCodeNavigation       = "NAVIGATION_FAILED"
	ErrCodeAuthUnresolved   = "AUTH_UNRESOLVED"
	ErrCodeLLMUnavailable   = "LLM_UNAVAILABLE"
	ErrCodeLLMInvalidJSON   = "LLM_INVALID_JSON"
	ErrCodeSelectorNotFound = "SELECTOR_NOT_FOUND"
	ErrCodeAssertionFailed  = "ASSERTION_FAILED"
	ErrCodeStepCrashed      = "STEP_CRASHED"
	ErrCodeTestCrashed      = "TEST_CRASHED"
	ErrCodeStageCrashed     = "STAGE_CRASHED"

	// Ambient/control-surface errors used by the chi API and the
	// fsstore/Postgres mirror.
	ErrCodeValidation  = "VALIDATION_ERROR"
	ErrCodeNotFound    = "NOT_FOUND"
	ErrCodeInternal    = "INTERNAL_ERROR"
	ErrCodeDatabase    = "DATABASE_ERROR"
	ErrCodeTimeout     = "TIMEOUT_ERROR"
	ErrCodeRateLimited = "RATE_LIMITED"
)

// AppError is the base error type for all pipeline and API errors.
type AppError struct {
	Code       string         `json:"code"`
	Message    string         `json:"message"`
	Details    string         `json:"details,omitempty"`
	HTTPStatus int            `json:"-"`
	Cause      error          `json:"-"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	Timestamp  time.Time      `json:"timestamp"`
	Retryable  bool           `json:"retryable"`
	RetryAfter time.Duration  `json:"retry_after,omitempty"`
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error { return e.Cause }

func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

func (e *AppError) WithDetails(details string) *AppError {
	e.Details = details
	return e
}

func (e *AppError) WithCause(err error) *AppError {
	e.Cause = err
	return e
}

func (e *AppError) WithMetadata(key string, value any) *AppError {
	if e.Metadata == nil {
		e.Metadata = make(map[string]any)
	}
	e.Metadata[key] = value
	return e
}

func (e *AppError) WithRetry(after time.Duration) *AppError {
	e.Retryable = true
	e.RetryAfter = after
	return e
}

func (e *AppError) ToJSON() []byte {
	data, _ := json.Marshal(e)
	return data
}

// NewError creates a new AppError.
func NewError(code, message string, httpStatus int) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: httpStatus,
		Timestamp:  time.Now().UTC(),
	}
}

func ErrConfigInvalid(reason string) *AppError {
	return NewError(ErrCodeConfigInvalid, fmt.Sprintf("invalid configuration: %s", reason), http.StatusBadRequest)
}

func ErrBrowserLaunch(err error) *AppError {
	return NewError(ErrCodeBrowserLaunch, "failed to launch browser", http.StatusInternalServerError).WithCause(err)
}

func ErrNavigation(url string, err error) *AppError {
	return NewError(ErrCodeNavigation, fmt.Sprintf("navigation failed: %s", url), http.StatusBadGateway).
		WithCause(err).WithMetadata("url", url).WithRetry(2 * time.Second)
}

func ErrAuthUnresolved(reason string) *AppError {
	return NewError(ErrCodeAuthUnresolved, fmt.Sprintf("auth resolution failed: %s", reason), http.StatusUnprocessableEntity)
}

func ErrLLMUnavailable(err error) *AppError {
	return NewError(ErrCodeLLMUnavailable, "llm backend unavailable", http.StatusBadGateway).
		WithCause(err).WithRetry(5 * time.Second)
}

func ErrLLMInvalidJSON(raw string, err error) *AppError {
	details := raw
	if len(details) > 500 {
		details = details[:500] + "...(truncated)"
	}
	return NewError(ErrCodeLLMInvalidJSON, "llm response was not valid JSON after cleanup", http.StatusUnprocessableEntity).
		WithCause(err).WithDetails(details)
}

func ErrSelectorNotFound(selector string) *AppError {
	return NewError(ErrCodeSelectorNotFound, fmt.Sprintf("no element matched selector: %s", selector), http.StatusUnprocessableEntity).
		WithMetadata("selector", selector)
}

func ErrAssertionFailed(kind, expected, actual string) *AppError {
	return NewError(ErrCodeAssertionFailed, fmt.Sprintf("assertion %s failed", kind), http.StatusUnprocessableEntity).
		WithMetadata("expected", expected).WithMetadata("actual", actual)
}

func ErrStepCrashed(stepOrder int, err error) *AppError {
	return NewError(ErrCodeStepCrashed, fmt.Sprintf("step %d crashed", stepOrder), http.StatusInternalServerError).
		WithCause(err).WithMetadata("step_order", stepOrder)
}

func ErrTestCrashed(testID string, err error) *AppError {
	return NewError(ErrCodeTestCrashed, fmt.Sprintf("test %s crashed", testID), http.StatusInternalServerError).
		WithCause(err).WithMetadata("test_id", testID)
}

func ErrStageCrashed(stage string, err error) *AppError {
	return NewError(ErrCodeStageCrashed, fmt.Sprintf("pipeline stage %s crashed", stage), http.StatusInternalServerError).
		WithCause(err).WithMetadata("stage", stage)
}

func ErrValidation(message string) *AppError {
	return NewError(ErrCodeValidation, message, http.StatusBadRequest)
}

func ErrNotFound(resource, id string) *AppError {
	return NewError(ErrCodeNotFound, fmt.Sprintf("%s not found: %s", resource, id), http.StatusNotFound).
		WithMetadata("resource", resource).WithMetadata("id", id)
}

func ErrInternal(message string) *AppError {
	if message == "" {
		message = "internal error"
	}
	return NewError(ErrCodeInternal, message, http.StatusInternalServerError)
}

func ErrDatabase(err error) *AppError {
	return NewError(ErrCodeDatabase, "database error", http.StatusInternalServerError).WithCause(err)
}

func ErrTimeout(operation string) *AppError {
	return NewError(ErrCodeTimeout, fmt.Sprintf("operation timed out: %s", operation), http.StatusGatewayTimeout).
		WithMetadata("operation", operation).WithRetry(10 * time.Second)
}

// IsAppError reports whether err is (or wraps) an *AppError.
func IsAppError(err error) bool {
	var appErr *AppError
	return errors.As(err, &appErr)
}

// AsAppError converts err to an *AppError if possible.
func AsAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// GetHTTPStatus returns the HTTP status to report for err.
func GetHTTPStatus(err error) int {
	if appErr, ok := AsAppError(err); ok {
		return appErr.HTTPStatus
	}
	return http.StatusInternalServerError
}

// GetErrorCode returns the AppError code for err, or ErrCodeInternal.
func GetErrorCode(err error) string {
	if appErr, ok := AsAppError(err); ok {
		return appErr.Code
	}
	return ErrCodeInternal
}
