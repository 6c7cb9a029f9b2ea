package errors

import (
	"fmt"
)

// ErrorType represents the type of error
type ErrorType string

const (
	ErrTypeMissingInput     ErrorType = "MISSING_INPUT"
	ErrTypeInvalidParameter ErrorType = "INVALID_PARAMETER"
	ErrTypeShapeMismatch    ErrorType = "SHAPE_MISMATCH"
	ErrTypeUnavailable      ErrorType = "UNAVAILABLE"
	ErrTypeNumeric          ErrorType = "NUMERIC_DEGENERACY"
	ErrTypeParsing          ErrorType = "PARSING"
	ErrTypeStorage          ErrorType = "STORAGE"
	ErrTypeConfig           ErrorType = "CONFIG"
)

// Sentinels for errors.Is. Any AppError of the same Type matches its sentinel.
var (
	ErrMissingInput      = &AppError{Type: ErrTypeMissingInput, Message: "missing input"}
	ErrInvalidParameter  = &AppError{Type: ErrTypeInvalidParameter, Message: "invalid parameter"}
	ErrShapeMismatch     = &AppError{Type: ErrTypeShapeMismatch, Message: "shape mismatch"}
	ErrUnavailable       = &AppError{Type: ErrTypeUnavailable, Message: "unavailable"}
	ErrNumericDegeneracy = &AppError{Type: ErrTypeNumeric, Message: "numeric degeneracy"}
	ErrParsing           = &AppError{Type: ErrTypeParsing, Message: "parsing failed"}
	ErrStorage           = &AppError{Type: ErrTypeStorage, Message: "storage failed"}
	ErrConfig            = &AppError{Type: ErrTypeConfig, Message: "invalid configuration"}
)

// AppError represents an application-specific error
type AppError struct {
	Type    ErrorType
	Message string
	Cause   error
	Context map[string]interface{}
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Type, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Type, e.Message)
}

// Unwrap allows errors.Is and errors.As to work with AppError
func (e *AppError) Unwrap() error {
	return e.Cause
}

// Is reports whether target is an AppError of the same type.
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return t.Type == e.Type
}

// WithContext adds context to the error
func (e *AppError) WithContext(key string, value interface{}) *AppError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// NewAppError creates a new application error
func NewAppError(errType ErrorType, message string, cause error) *AppError {
	return &AppError{
		Type:    errType,
		Message: message,
		Cause:   cause,
		Context: make(map[string]interface{}),
	}
}

// Helper functions for common error types

// MissingInput reports a file, column or model that could not be found.
func MissingInput(format string, args ...interface{}) *AppError {
	return NewAppError(ErrTypeMissingInput, fmt.Sprintf(format, args...), nil)
}

// InvalidParameter reports an unsupported strategy, method or argument value.
func InvalidParameter(format string, args ...interface{}) *AppError {
	return NewAppError(ErrTypeInvalidParameter, fmt.Sprintf(format, args...), nil)
}

// ShapeMismatch reports a feature layout that differs from the one a model was trained on.
func ShapeMismatch(format string, args ...interface{}) *AppError {
	return NewAppError(ErrTypeShapeMismatch, fmt.Sprintf(format, args...), nil)
}

// Unavailable reports an optional capability that is not present.
func Unavailable(format string, args ...interface{}) *AppError {
	return NewAppError(ErrTypeUnavailable, fmt.Sprintf(format, args...), nil)
}

// NumericDegeneracy reports a value that cannot be computed deterministically.
func NumericDegeneracy(format string, args ...interface{}) *AppError {
	return NewAppError(ErrTypeNumeric, fmt.Sprintf(format, args...), nil)
}

// NewParsingError creates a parsing-related error
func NewParsingError(message string, cause error) *AppError {
	return NewAppError(ErrTypeParsing, message, cause)
}

// NewStorageError creates a storage-related error
func NewStorageError(message string, cause error) *AppError {
	return NewAppError(ErrTypeStorage, message, cause)
}

// NewConfigError creates a configuration error
func NewConfigError(message string, cause error) *AppError {
	return NewAppError(ErrTypeConfig, message, cause)
}
