// Package errors provides a structured error type (BookError) for
// category-based classification and retry semantics across the download
// pipeline and CLI.
package errors

import (
	"fmt"
)

// ErrorCategory represents the category of a BookError for classification
type ErrorCategory string

const (
	// User-facing configuration and input errors
	CategoryConfig     ErrorCategory = "config"
	CategoryValidation ErrorCategory = "validation"

	// Remote service errors
	CategoryAuth      ErrorCategory = "auth"
	CategoryNetwork   ErrorCategory = "network"
	CategoryNotFound  ErrorCategory = "notfound"
	CategoryMalformed ErrorCategory = "malformed"

	// Per-chapter/asset processing errors
	CategoryContent ErrorCategory = "content"

	// Run-fatal errors
	CategoryStructural ErrorCategory = "structural"
	CategoryFileSystem ErrorCategory = "filesystem"
	CategoryInternal   ErrorCategory = "internal"
)

// ErrorSeverity indicates how critical an error is
type ErrorSeverity string

const (
	SeverityFatal   ErrorSeverity = "fatal"   // Aborts the whole run
	SeverityError   ErrorSeverity = "error"   // Terminal for one task, run continues
	SeverityWarning ErrorSeverity = "warning" // Continues with degraded output
)

// BookError is a structured error with category, retryability, and context
type BookError struct {
	Category  ErrorCategory `json:"category"`
	Severity  ErrorSeverity `json:"severity"`
	Message   string        `json:"message"`
	Cause     error         `json:"cause,omitempty"`
	Retryable bool          `json:"retryable"`
	Context   ContextFields `json:"context,omitempty"`
}

// ContextFields carries structured context for BookError
type ContextFields map[string]any

// Error implements the error interface
func (e *BookError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s (%s): %s: %v", e.Category, e.Severity, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s (%s): %s", e.Category, e.Severity, e.Message)
}

// Unwrap implements error unwrapping for Go 1.13+ error handling
func (e *BookError) Unwrap() error {
	return e.Cause
}

// WithContext adds context information to the error
func (e *BookError) WithContext(key string, value any) *BookError {
	if e.Context == nil {
		e.Context = make(ContextFields)
	}
	e.Context[key] = value
	return e
}

// New creates a new BookError
func New(category ErrorCategory, severity ErrorSeverity, message string) *BookError {
	return &BookError{
		Category:  category,
		Severity:  severity,
		Message:   message,
		Retryable: false,
	}
}

// Wrap creates a new BookError that wraps an existing error
func Wrap(err error, category ErrorCategory, severity ErrorSeverity, message string) *BookError {
	return &BookError{
		Category:  category,
		Severity:  severity,
		Message:   message,
		Cause:     err,
		Retryable: false,
	}
}

// WrapRetryable creates a new retryable BookError that wraps an existing error
func WrapRetryable(err error, category ErrorCategory, severity ErrorSeverity, message string) *BookError {
	return &BookError{
		Category:  category,
		Severity:  severity,
		Message:   message,
		Cause:     err,
		Retryable: true,
	}
}

// IsCategory checks if an error belongs to a specific category
func IsCategory(err error, category ErrorCategory) bool {
	if be, ok := err.(*BookError); ok {
		return be.Category == category
	}
	return false
}

// IsRetryable checks if an error is retryable
func IsRetryable(err error) bool {
	if be, ok := err.(*BookError); ok {
		return be.Retryable
	}
	return false
}

// IsFatal reports whether the error should abort the whole run rather than a
// single task.
func IsFatal(err error) bool {
	if be, ok := err.(*BookError); ok {
		return be.Severity == SeverityFatal
	}
	return false
}

// GetCategory extracts the category from an error, or returns CategoryInternal
// if not a BookError
func GetCategory(err error) ErrorCategory {
	if be, ok := err.(*BookError); ok {
		return be.Category
	}
	return CategoryInternal
}
