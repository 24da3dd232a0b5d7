package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorType represents different categories of errors
type ErrorType string

const (
	ErrorTypeValidation   ErrorType = "validation"
	ErrorTypeNetwork      ErrorType = "network"
	ErrorTypeProcessing   ErrorType = "processing"
	ErrorTypeTimeout      ErrorType = "timeout"
	ErrorTypeUnauthorized ErrorType = "unauthorized"
	ErrorTypeNotFound     ErrorType = "not_found"
	ErrorTypeInternal     ErrorType = "internal"

	// Drawing pipeline taxonomy
	ErrorTypeInvalidGridSpec ErrorType = "invalid_grid_spec"
	ErrorTypeTileRecognition ErrorType = "tile_recognition_failure"
	ErrorTypeResponseParse   ErrorType = "response_parse_failure"
	ErrorTypeFusionConflict  ErrorType = "fusion_conflict"
	ErrorTypeCacheCorruption ErrorType = "cache_corruption"
	ErrorTypeBatchExhausted  ErrorType = "batch_exhausted"
)

// AppError represents a structured application error
type AppError struct {
	Type       ErrorType `json:"type"`
	Message    string    `json:"message"`
	Details    string    `json:"details,omitempty"`
	StatusCode int       `json:"status_code"`
	Cause      error     `json:"-"`
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Type, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap returns the underlying error
func (e *AppError) Unwrap() error {
	return e.Cause
}

// WithDetails returns a copy of the error carrying extra detail text
func (e *AppError) WithDetails(format string, args ...interface{}) *AppError {
	cp := *e
	cp.Details = fmt.Sprintf(format, args...)
	return &cp
}

// Fatal reports whether the error must abort a drawing run
func (e *AppError) Fatal() bool {
	switch e.Type {
	case ErrorTypeInvalidGridSpec, ErrorTypeBatchExhausted, ErrorTypeValidation:
		return true
	}
	return false
}

// NewValidationError creates a new validation error
func NewValidationError(message string, cause error) *AppError {
	return &AppError{
		Type:       ErrorTypeValidation,
		Message:    message,
		StatusCode: http.StatusBadRequest,
		Cause:      cause,
	}
}

// NewNetworkError creates a new network error
func NewNetworkError(message string, cause error) *AppError {
	return &AppError{
		Type:       ErrorTypeNetwork,
		Message:    message,
		StatusCode: http.StatusBadGateway,
		Cause:      cause,
	}
}

// NewProcessingError creates a new processing error
func NewProcessingError(message string, cause error) *AppError {
	return &AppError{
		Type:       ErrorTypeProcessing,
		Message:    message,
		StatusCode: http.StatusUnprocessableEntity,
		Cause:      cause,
	}
}

// NewTimeoutError creates a new timeout error
func NewTimeoutError(message string, cause error) *AppError {
	return &AppError{
		Type:       ErrorTypeTimeout,
		Message:    message,
		StatusCode: http.StatusGatewayTimeout,
		Cause:      cause,
	}
}

// NewInternalError creates a new internal error
func NewInternalError(message string, cause error) *AppError {
	return &AppError{
		Type:       ErrorTypeInternal,
		Message:    message,
		StatusCode: http.StatusInternalServerError,
		Cause:      cause,
	}
}

// NewNotFoundError creates a new not found error
func NewNotFoundError(message string, cause error) *AppError {
	return &AppError{
		Type:       ErrorTypeNotFound,
		Message:    message,
		StatusCode: http.StatusNotFound,
		Cause:      cause,
	}
}

// NewInvalidGridSpecError is returned before any recognition call when the
// slicing parameters cannot produce a grid
func NewInvalidGridSpecError(message string) *AppError {
	return &AppError{
		Type:       ErrorTypeInvalidGridSpec,
		Message:    message,
		StatusCode: http.StatusBadRequest,
	}
}

// NewTileRecognitionError wraps a failed recognition call for one tile
func NewTileRecognitionError(tileKey string, cause error) *AppError {
	return &AppError{
		Type:       ErrorTypeTileRecognition,
		Message:    fmt.Sprintf("recognition failed for tile %s", tileKey),
		StatusCode: http.StatusBadGateway,
		Cause:      cause,
	}
}

// NewResponseParseError is returned when no parser could read a response
func NewResponseParseError(reason string) *AppError {
	return &AppError{
		Type:       ErrorTypeResponseParse,
		Message:    reason,
		StatusCode: http.StatusUnprocessableEntity,
	}
}

// NewFusionConflictError describes diverging attributes inside a fused group
func NewFusionConflictError(componentID string, fields []string) *AppError {
	return &AppError{
		Type:       ErrorTypeFusionConflict,
		Message:    fmt.Sprintf("conflicting attributes for component %q", componentID),
		Details:    fmt.Sprintf("fields: %v", fields),
		StatusCode: http.StatusConflict,
	}
}

// NewCacheCorruptionError describes an unexpected cached payload shape
func NewCacheCorruptionError(key string, payload interface{}) *AppError {
	return &AppError{
		Type:       ErrorTypeCacheCorruption,
		Message:    fmt.Sprintf("unexpected payload for cache key %s", key),
		Details:    fmt.Sprintf("%T", payload),
		StatusCode: http.StatusInternalServerError,
	}
}

// NewBatchExhaustedError is returned when every tile of a batch failed
func NewBatchExhaustedError(batchIndex int, cause error) *AppError {
	return &AppError{
		Type:       ErrorTypeBatchExhausted,
		Message:    fmt.Sprintf("all tiles in batch %d exhausted their retries", batchIndex),
		StatusCode: http.StatusBadGateway,
		Cause:      cause,
	}
}

// IsType checks if the error chain contains an AppError of a specific type
func IsType(err error, errorType ErrorType) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Type == errorType
	}
	return false
}

// GetStatusCode extracts the HTTP status code from an error
func GetStatusCode(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.StatusCode
	}
	return http.StatusInternalServerError
}
