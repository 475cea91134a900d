// Package errors provides structured error types for seedctl.
package errors

import (
	"fmt"
	"sort"
	"strings"
)

// ErrorCode identifies specific error conditions
type ErrorCode string

const (
	ErrCodeValidation  ErrorCode = "VALIDATION_ERROR"
	ErrCodeParse       ErrorCode = "PARSE_ERROR"
	ErrCodeCycle       ErrorCode = "CYCLE_ERROR"
	ErrCodeUnknownKind ErrorCode = "UNKNOWN_KIND"
	ErrCodeUnresolved  ErrorCode = "UNRESOLVED_REFERENCE"
	ErrCodeDriver      ErrorCode = "DRIVER_ERROR"
	ErrCodeCascade     ErrorCode = "CASCADE_SKIPPED"
	ErrCodeBackend     ErrorCode = "BACKEND_ERROR"
	ErrCodeSecret      ErrorCode = "SECRET_ERROR"
	ErrCodeLocked      ErrorCode = "STATE_LOCKED"
	ErrCodeNotFound    ErrorCode = "NOT_FOUND"
	ErrCodeCancelled   ErrorCode = "RUN_CANCELLED"
)

// Error is the base error type for seedctl
type Error struct {
	Code    ErrorCode
	Message string
	Cause   error
	Details map[string]interface{}

	// Retryable marks driver errors that may succeed on a later attempt
	// (network blips, throttling). Only meaningful for ErrCodeDriver.
	Retryable bool
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// New creates a new error with the given code and message
func New(code ErrorCode, message string) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Details: make(map[string]interface{}),
	}
}

// Wrap creates a new error wrapping an existing error
func Wrap(code ErrorCode, message string, cause error) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Cause:   cause,
		Details: make(map[string]interface{}),
	}
}

// WithDetail adds a single detail to an error
func (e *Error) WithDetail(key string, value interface{}) *Error {
	e.Details[key] = value
	return e
}

// ValidationError creates a validation error
func ValidationError(message string, details map[string]interface{}) *Error {
	if details == nil {
		details = make(map[string]interface{})
	}
	return &Error{
		Code:    ErrCodeValidation,
		Message: message,
		Details: details,
	}
}

// ParseError creates a parse error for a declaration file
func ParseError(filePath string, err error) *Error {
	return &Error{
		Code:    ErrCodeParse,
		Message: fmt.Sprintf("failed to parse %s", filePath),
		Cause:   err,
		Details: map[string]interface{}{
			"file": filePath,
		},
	}
}

// CycleError creates an error naming the resources participating in a
// dependency cycle. Members are sorted for stable messages.
func CycleError(members []string) *Error {
	sorted := append([]string(nil), members...)
	sort.Strings(sorted)
	return &Error{
		Code:    ErrCodeCycle,
		Message: fmt.Sprintf("dependency cycle involving: %s", strings.Join(sorted, ", ")),
		Details: map[string]interface{}{
			"resources": sorted,
		},
	}
}

// UnknownKindError creates an error for a resource kind with no registered driver
func UnknownKindError(kind, resource string) *Error {
	return &Error{
		Code:    ErrCodeUnknownKind,
		Message: fmt.Sprintf("no driver registered for kind %q (resource %q)", kind, resource),
		Details: map[string]interface{}{
			"kind":     kind,
			"resource": resource,
		},
	}
}

// UnresolvedReferenceError creates an error for a reference whose producer
// has not reached the applied state, or whose target does not exist.
func UnresolvedReferenceError(reference, reason string) *Error {
	return &Error{
		Code:    ErrCodeUnresolved,
		Message: fmt.Sprintf("cannot resolve %s: %s", reference, reason),
		Details: map[string]interface{}{
			"reference": reference,
		},
	}
}

// DriverError creates an error for a failed driver operation
func DriverError(kind, resource string, cause error, retryable bool) *Error {
	return &Error{
		Code:      ErrCodeDriver,
		Message:   fmt.Sprintf("driver %q failed applying %q", kind, resource),
		Cause:     cause,
		Retryable: retryable,
		Details: map[string]interface{}{
			"kind":     kind,
			"resource": resource,
		},
	}
}

// CascadeSkippedError marks a resource never attempted because a dependency
// failed. Not a true failure of the resource itself.
func CascadeSkippedError(resource, failedDependency string) *Error {
	return &Error{
		Code:    ErrCodeCascade,
		Message: fmt.Sprintf("skipped %q: dependency %q failed", resource, failedDependency),
		Details: map[string]interface{}{
			"resource":   resource,
			"dependency": failedDependency,
		},
	}
}

// BackendError creates a state backend error
func BackendError(backend string, operation string, err error) *Error {
	return &Error{
		Code:    ErrCodeBackend,
		Message: fmt.Sprintf("backend %s failed during %s", backend, operation),
		Cause:   err,
		Details: map[string]interface{}{
			"backend":   backend,
			"operation": operation,
		},
	}
}

// SecretError creates an error for a secret that could not be resolved
func SecretError(key string, err error) *Error {
	return &Error{
		Code:    ErrCodeSecret,
		Message: fmt.Sprintf("failed to resolve secret %q", key),
		Cause:   err,
		Details: map[string]interface{}{
			"key": key,
		},
	}
}

// Is checks if the error matches the given code
func Is(err error, code ErrorCode) bool {
	if e, ok := err.(*Error); ok {
		return e.Code == code
	}
	return false
}

// IsRetryable reports whether the error is a driver error flagged retryable
func IsRetryable(err error) bool {
	if e, ok := err.(*Error); ok {
		return e.Code == ErrCodeDriver && e.Retryable
	}
	return false
}
