package errors

import (
	"errors"
	"fmt"
)

// Generic error kinds

var (
	// ErrNotFound indicates a resource was not found
	ErrNotFound = errors.New("resource not found")

	// ErrAlreadyExists indicates a resource already exists
	ErrAlreadyExists = errors.New("resource already exists")

	// ErrInvalidInput indicates invalid input parameters
	ErrInvalidInput = errors.New("invalid input")

	// ErrInternal indicates an internal error
	ErrInternal = errors.New("internal error")

	// ErrTimeout indicates an operation timeout
	ErrTimeout = errors.New("operation timeout")

	// ErrUnavailable indicates a collaborator is unavailable
	ErrUnavailable = errors.New("service unavailable")
)

// Pipeline errors

var (
	// ErrInvalidBrief rejects a malformed request before any work starts
	ErrInvalidBrief = errors.New("invalid brief")

	// ErrAgentFailed marks a research agent call that returned an error
	ErrAgentFailed = errors.New("research agent failed")

	// ErrAgentTimeout marks a research agent call that exceeded its own timeout
	ErrAgentTimeout = errors.New("research agent timed out")

	// ErrStageDegraded marks an annotation stage that fell back to neutral values
	ErrStageDegraded = errors.New("annotation stage degraded")

	// ErrCouncilTieUnresolved is logged when arbitration had to break a tie.
	// It is never returned to callers.
	ErrCouncilTieUnresolved = errors.New("council tie resolved by arbitration")
)

// Store errors

var (
	// ErrPreferenceConflict is returned when a profile update lost every CAS attempt
	ErrPreferenceConflict = errors.New("preference update conflict")

	// ErrCacheMiss signals an absent or stale reserve entry
	ErrCacheMiss = errors.New("reserve cache miss")
)

// IsRetryable reports whether the caller may retry the operation that produced err.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrPreferenceConflict) || errors.Is(err, ErrTimeout)
}

// DomainError wraps an error with additional context
type DomainError struct {
	Code    string
	Message string
	Err     error
}

// Error implements the error interface
func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the wrapped error
func (e *DomainError) Unwrap() error {
	return e.Err
}

// NewDomainError creates a new domain error
func NewDomainError(code, message string, err error) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// ValidationError represents a validation error with field-specific details.
// It unwraps to Kind, which defaults to ErrInvalidInput.
type ValidationError struct {
	Field   string
	Message string
	Value   interface{}
	Kind    error
}

// Error implements the error interface
func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error: field '%s': %s (value: %v)", e.Field, e.Message, e.Value)
}

// Unwrap returns the error kind
func (e *ValidationError) Unwrap() error {
	if e.Kind == nil {
		return ErrInvalidInput
	}
	return e.Kind
}

// WithKind sets the sentinel the error unwraps to
func (e *ValidationError) WithKind(kind error) *ValidationError {
	e.Kind = kind
	return e
}

// NewValidationError creates a new validation error
func NewValidationError(field, message string, value interface{}) *ValidationError {
	return &ValidationError{
		Field:   field,
		Message: message,
		Value:   value,
	}
}

// MultiError wraps multiple errors
type MultiError struct {
	Errors []error
}

// Error implements the error interface
func (m *MultiError) Error() string {
	if len(m.Errors) == 0 {
		return "no errors"
	}
	if len(m.Errors) == 1 {
		return m.Errors[0].Error()
	}
	return fmt.Sprintf("multiple errors (%d): %v", len(m.Errors), m.Errors[0])
}

// Unwrap exposes every collected error to errors.Is and errors.As
func (m *MultiError) Unwrap() []error {
	return m.Errors
}

// Add adds an error to the list
func (m *MultiError) Add(err error) {
	if err != nil {
		m.Errors = append(m.Errors, err)
	}
}

// HasErrors returns true if there are any errors
func (m *MultiError) HasErrors() bool {
	return len(m.Errors) > 0
}

// ToError returns the MultiError as an error, or nil if no errors
func (m *MultiError) ToError() error {
	if !m.HasErrors() {
		return nil
	}
	return m
}

// Helper functions

// Is checks if err is or wraps target
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target type
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}

// Wrap wraps an error with context
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Wrapf wraps an error with formatted context
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}

func New(message string) error {
	return errors.New(message)
}

func Newf(format string, args ...interface{}) error {
	return fmt.Errorf(format, args...)
}
