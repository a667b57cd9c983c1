package errors

import (
	stderrors "errors"
	"fmt"
)

// AppError is the structured error type used across semsearch.
// It carries enough context for logging, CLI output and HTTP/MCP mapping.
type AppError struct {
	// Code is the unique error code (e.g., "ERR_201_FILE_NOT_FOUND").
	Code string

	// Message is the human-readable error message.
	Message string

	Category Category
	Severity Severity

	// Details contains additional context as key-value pairs.
	Details map[string]string

	// Cause is the underlying error.
	Cause error

	// Retryable indicates if the operation can be retried.
	Retryable bool

	// Suggestion is an actionable hint for the user.
	Suggestion string
}

// Error implements the error interface.
func (e *AppError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for error chain support.
func (e *AppError) Unwrap() error {
	return e.Cause
}

// Is matches another AppError by code, so errors.Is(err, New(code, "", nil)) works.
func (e *AppError) Is(target error) bool {
	if t, ok := target.(*AppError); ok {
		return e.Code == t.Code
	}
	return false
}

// WithDetail adds a key-value detail to the error.
func (e *AppError) WithDetail(key, value string) *AppError {
	if e.Details == nil {
		e.Details = make(map[string]string)
	}
	e.Details[key] = value
	return e
}

// WithSuggestion adds an actionable suggestion for the user.
func (e *AppError) WithSuggestion(suggestion string) *AppError {
	e.Suggestion = suggestion
	return e
}

// New creates an AppError. Category, severity and the retryable flag
// are derived from the code.
func New(code string, message string, cause error) *AppError {
	return &AppError{
		Code:      code,
		Message:   message,
		Category:  categoryFromCode(code),
		Severity:  severityFromCode(code),
		Cause:     cause,
		Retryable: isRetryableCode(code),
	}
}

// Wrap creates an AppError from an existing error, reusing its message.
func Wrap(code string, err error) *AppError {
	if err == nil {
		return nil
	}
	return New(code, err.Error(), err)
}

// NotFound reports a missing file or directory.
func NotFound(path string, cause error) *AppError {
	return New(ErrCodeFileNotFound, fmt.Sprintf("not found: %s", path), cause).
		WithDetail("path", path)
}

// UnsupportedFormat reports a file extension no parser handles.
func UnsupportedFormat(path, ext string) *AppError {
	return New(ErrCodeUnsupportedFormat, fmt.Sprintf("unsupported file format: %s", ext), nil).
		WithDetail("path", path)
}

// MissingDependency reports a format whose optional parser is not enabled.
func MissingDependency(format, suggestion string) *AppError {
	return New(ErrCodeMissingDependency,
		fmt.Sprintf("missing optional dependency for %s files", format), nil).
		WithSuggestion(suggestion)
}

// EmbeddingFailed reports a model or encoding failure.
func EmbeddingFailed(message string, cause error) *AppError {
	return New(ErrCodeEmbeddingFailed, message, cause)
}

// StoreFailed reports an unreachable or failing vector store.
func StoreFailed(message string, cause error) *AppError {
	return New(ErrCodeStoreFailed, message, cause)
}

// PartialIndex reports that some files of a directory run failed.
func PartialIndex(failed, total int) *AppError {
	return New(ErrCodePartialIndex,
		fmt.Sprintf("%d of %d files failed to index", failed, total), nil).
		WithDetail("failed", fmt.Sprint(failed))
}

// ValidationError creates a validation-related error.
func ValidationError(message string, cause error) *AppError {
	return New(ErrCodeInvalidInput, message, cause)
}

// ConfigError creates a configuration-related error.
func ConfigError(message string, cause error) *AppError {
	return New(ErrCodeConfigInvalid, message, cause)
}

// InternalError creates an internal error.
func InternalError(message string, cause error) *AppError {
	return New(ErrCodeInternal, message, cause)
}

// As returns the first AppError in err's chain.
func As(err error) (*AppError, bool) {
	var ae *AppError
	if stderrors.As(err, &ae) {
		return ae, true
	}
	return nil, false
}

// IsRetryable checks if any AppError in the chain is retryable.
func IsRetryable(err error) bool {
	if ae, ok := As(err); ok {
		return ae.Retryable
	}
	return false
}

// IsFatal checks if an error has fatal severity.
func IsFatal(err error) bool {
	if ae, ok := As(err); ok {
		return ae.Severity == SeverityFatal
	}
	return false
}

// GetCode extracts the error code. Returns "" if err carries no AppError.
func GetCode(err error) string {
	if ae, ok := As(err); ok {
		return ae.Code
	}
	return ""
}

// GetCategory extracts the category. Returns "" if err carries no AppError.
func GetCategory(err error) Category {
	if ae, ok := As(err); ok {
		return ae.Category
	}
	return ""
}

// HasCode reports whether err wraps an AppError with the given code.
func HasCode(err error, code string) bool {
	return stderrors.Is(err, &AppError{Code: code})
}
