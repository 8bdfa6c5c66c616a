package errors

import (
	"errors"
	"fmt"
)

// ErrorType represents different categories of errors
type ErrorType string

const (
	ErrTypeTranslation      ErrorType = "translation"
	ErrTypeValidation       ErrorType = "validation"
	ErrTypeSchemaMismatch   ErrorType = "schema_mismatch"
	ErrTypeInvalidRecipient ErrorType = "invalid_recipient"
	ErrTypeArtifact         ErrorType = "artifact"
	ErrTypeDatabase         ErrorType = "database"
	ErrTypeRateLimit        ErrorType = "rate_limit"
	ErrTypeNotFound         ErrorType = "not_found"
	ErrTypeConfig           ErrorType = "config"
	ErrTypeLLM              ErrorType = "llm"
	ErrTypeNetwork          ErrorType = "network"
	ErrTypeAuth             ErrorType = "auth"
	ErrTypeFileSystem       ErrorType = "filesystem"
	ErrTypeCancelled        ErrorType = "cancelled"
	ErrTypeInternal         ErrorType = "internal"
)

// Error represents a structured error with type and optional suggestions.
// Subject names the fragment, column or address the error is about.
type Error struct {
	Type        ErrorType
	Message     string
	Subject     string
	Cause       error
	Suggestions []string
}

func (e *Error) Error() string {
	msg := e.Message
	if e.Subject != "" {
		msg = fmt.Sprintf("%s [%s]", msg, e.Subject)
	}

	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Type, msg, e.Cause)
	}

	return fmt.Sprintf("%s: %s", e.Type, msg)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// WithSuggestion adds a suggestion for resolving the error
func (e *Error) WithSuggestion(suggestion string) *Error {
	e.Suggestions = append(e.Suggestions, suggestion)
	return e
}

// WithSubject records the offending fragment
func (e *Error) WithSubject(subject string) *Error {
	e.Subject = subject
	return e
}

// New creates a new structured error
func New(errType ErrorType, message string) *Error {
	return &Error{
		Type:    errType,
		Message: message,
	}
}

// Newf creates a new structured error with formatted message
func Newf(errType ErrorType, format string, args ...interface{}) *Error {
	return &Error{
		Type:    errType,
		Message: fmt.Sprintf(format, args...),
	}
}

// Wrap wraps an existing error with additional context
func Wrap(err error, errType ErrorType, message string) *Error {
	return &Error{
		Type:    errType,
		Message: message,
		Cause:   err,
	}
}

// Wrapf wraps an existing error with formatted message
func Wrapf(err error, errType ErrorType, format string, args ...interface{}) *Error {
	return &Error{
		Type:    errType,
		Message: fmt.Sprintf(format, args...),
		Cause:   err,
	}
}

// IsType checks if an error is of a specific type
func IsType(err error, errType ErrorType) bool {
	var structErr *Error
	if errors.As(err, &structErr) {
		return structErr.Type == errType
	}

	return false
}

// GetType returns the error type if it's a structured error
func GetType(err error) ErrorType {
	var structErr *Error
	if errors.As(err, &structErr) {
		return structErr.Type
	}

	return ErrTypeInternal
}

// GetSubject returns the subject of the outermost structured error, if any
func GetSubject(err error) string {
	var structErr *Error
	if errors.As(err, &structErr) {
		return structErr.Subject
	}

	return ""
}

// Suggestions collects suggestions along the whole error chain
func Suggestions(err error) []string {
	var out []string

	for err != nil {
		var structErr *Error
		if !errors.As(err, &structErr) {
			break
		}

		out = append(out, structErr.Suggestions...)
		err = structErr.Cause
	}

	return out
}

// NewConfigError creates a configuration error with suggestions
func NewConfigError(message, field string) *Error {
	err := New(ErrTypeConfig, message)
	if field != "" {
		err.Message = fmt.Sprintf("%s (field: %s)", message, field)
	}

	return err.
		WithSuggestion("Check your configuration file syntax").
		WithSuggestion("Run with --help to see valid configuration options")
}

// NewValidationError reports a rejected expression fragment
func NewValidationError(fragment, format string, args ...interface{}) *Error {
	return Newf(ErrTypeValidation, format, args...).WithSubject(fragment)
}

// NewSchemaMismatchError reports columns the dataset cannot satisfy
func NewSchemaMismatchError(columns string, format string, args ...interface{}) *Error {
	return Newf(ErrTypeSchemaMismatch, format, args...).
		WithSubject(columns).
		WithSuggestion("Check the column names in the source sheet header")
}

// Is reports whether any error in err's chain matches target
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}
