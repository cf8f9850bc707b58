// Package errors provides structured error types for metaquery.
// All errors include a category, code, message, and retryable flag for
// consistent error handling across the engine and its source adapters.
package errors

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorCategory classifies errors by the kind of failure.
type ErrorCategory string

const (
	ErrCategoryConfiguration ErrorCategory = "CONFIGURATION"
	ErrCategoryUnsupported   ErrorCategory = "UNSUPPORTED"
	ErrCategoryInconsistent  ErrorCategory = "INCONSISTENT"
	ErrCategoryIO            ErrorCategory = "IO"
	ErrCategoryQuery         ErrorCategory = "QUERY"
	ErrCategoryInternal      ErrorCategory = "INTERNAL"
)

// Error codes for each category.
const (
	// Configuration codes
	CodeUnresolvedSchema = "UNRESOLVED_SCHEMA"
	CodeUnresolvedTable  = "UNRESOLVED_TABLE"
	CodeUnresolvedColumn = "UNRESOLVED_COLUMN"
	CodeAmbiguousColumn  = "AMBIGUOUS_COLUMN"

	// Unsupported codes
	CodeUnsupportedOperation = "UNSUPPORTED_OPERATION"

	// Inconsistent data codes
	CodeInconsistentRowLength = "INCONSISTENT_ROW_LENGTH"

	// IO codes
	CodeReadFailed  = "READ_FAILED"
	CodeWriteFailed = "WRITE_FAILED"

	// Query codes
	CodeInvalidQuery    = "INVALID_QUERY"
	CodeBuilderConsumed = "BUILDER_CONSUMED"

	// Internal codes
	CodeUnexpected = "UNEXPECTED"
)

// Error is the structured error type used throughout the system.
type Error struct {
	Category  ErrorCategory
	Code      string
	Message   string
	Details   map[string]interface{}
	Cause     error
	Retryable bool
}

// Error returns a formatted error string.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s:%s] %s: %v", e.Category, e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s:%s] %s", e.Category, e.Code, e.Message)
}

// Unwrap returns the underlying cause for errors.Is/As compatibility.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether the target matches this error's category and code.
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return e.Category == t.Category && e.Code == t.Code
	}
	return false
}

// New creates a new Error.
func New(category ErrorCategory, code, message string) *Error {
	return &Error{
		Category:  category,
		Code:      code,
		Message:   message,
		Retryable: isRetryable(category, code),
	}
}

// Wrap creates a new Error wrapping an existing error.
func Wrap(category ErrorCategory, code, message string, cause error) *Error {
	return &Error{
		Category:  category,
		Code:      code,
		Message:   message,
		Cause:     cause,
		Retryable: isRetryable(category, code),
	}
}

// WithDetails returns a copy of the error with additional details.
func (e *Error) WithDetails(details map[string]interface{}) *Error {
	cp := *e
	cp.Details = details
	return &cp
}

// IsRetryable checks whether an error (or its chain) is retryable.
func IsRetryable(err error) bool {
	var qe *Error
	if errors.As(err, &qe) {
		return qe.Retryable
	}
	return false
}

// GetCategory extracts the error category from an error chain.
// Returns empty string if the error is not an *Error.
func GetCategory(err error) ErrorCategory {
	var qe *Error
	if errors.As(err, &qe) {
		return qe.Category
	}
	var re *InconsistentRowError
	if errors.As(err, &re) {
		return ErrCategoryInconsistent
	}
	return ""
}

// GetCode extracts the error code from an error chain.
// Returns empty string if the error is not an *Error.
func GetCode(err error) string {
	var qe *Error
	if errors.As(err, &qe) {
		return qe.Code
	}
	var re *InconsistentRowError
	if errors.As(err, &re) {
		return CodeInconsistentRowLength
	}
	return ""
}

// Only failures of the underlying source are worth retrying; everything
// else is deterministic for a given query and snapshot.
func isRetryable(category ErrorCategory, code string) bool {
	switch {
	case category == ErrCategoryIO && code == CodeReadFailed:
		return true
	case category == ErrCategoryIO && code == CodeWriteFailed:
		return true
	default:
		return false
	}
}

// Convenience constructors for common errors.

func NewConfigurationError(code, message string) *Error {
	return New(ErrCategoryConfiguration, code, message)
}

func NewUnsupportedError(message string) *Error {
	return New(ErrCategoryUnsupported, CodeUnsupportedOperation, message)
}

func NewIOError(code, message string, cause error) *Error {
	return Wrap(ErrCategoryIO, code, message, cause)
}

func NewQueryError(code, message string) *Error {
	return New(ErrCategoryQuery, code, message)
}

func NewInternalError(message string, cause error) *Error {
	return Wrap(ErrCategoryInternal, CodeUnexpected, message, cause)
}

// ErrInconsistentRow is the sentinel matched by every InconsistentRowError.
var ErrInconsistentRow = New(ErrCategoryInconsistent, CodeInconsistentRowLength, "inconsistent row length")

// InconsistentRowError reports a source row whose shape disagrees with the
// declared column count.
type InconsistentRowError struct {
	// RowNumber is the 1-based number of the offending row in the source.
	RowNumber int
	// Expected is the declared column count.
	Expected int
	// Values is the row as it was actually read.
	Values []string
}

func (e *InconsistentRowError) Error() string {
	return fmt.Sprintf("[%s:%s] row %d has %d values, expected %d: [%s]",
		ErrCategoryInconsistent, CodeInconsistentRowLength,
		e.RowNumber, len(e.Values), e.Expected, strings.Join(e.Values, ", "))
}

// Is makes errors.Is(err, ErrInconsistentRow) succeed.
func (e *InconsistentRowError) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return t.Category == ErrCategoryInconsistent && t.Code == CodeInconsistentRowLength
	}
	return false
}
