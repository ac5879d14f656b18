// internal/common/errors/errors.go
package errors

import (
	"fmt"
	"math"
	"net/http"
	"time"
)

type ErrorCode string

const (
	// Startup errors: abort process initialization.
	ErrCodeConfiguration ErrorCode = "CONFIGURATION_ERROR"
	ErrCodeDecryption    ErrorCode = "DECRYPTION_ERROR"
	ErrCodeFileNotFound  ErrorCode = "FILE_NOT_FOUND"

	// Per-request errors: surfaced to the caller.
	ErrCodeUpstreamGeneration ErrorCode = "UPSTREAM_GENERATION_ERROR"
	ErrCodeUpstreamParsing    ErrorCode = "UPSTREAM_PARSING_ERROR"
	ErrCodeSchemaValidation   ErrorCode = "SCHEMA_VALIDATION_ERROR"
	ErrCodeInvalidRequest     ErrorCode = "INVALID_REQUEST"
	ErrCodeRateLimited        ErrorCode = "RATE_LIMITED"
	ErrCodeNotFound           ErrorCode = "NOT_FOUND"
	ErrCodeInternal           ErrorCode = "INTERNAL_ERROR"
)

// Sentinels for errors.Is; matching is by code, so any StandardError with the
// same code compares equal regardless of message or cause.
var (
	ErrConfiguration      = &StandardError{Code: ErrCodeConfiguration}
	ErrDecryption         = &StandardError{Code: ErrCodeDecryption}
	ErrFileNotFound       = &StandardError{Code: ErrCodeFileNotFound}
	ErrUpstreamGeneration = &StandardError{Code: ErrCodeUpstreamGeneration}
	ErrUpstreamParsing    = &StandardError{Code: ErrCodeUpstreamParsing}
	ErrSchemaValidation   = &StandardError{Code: ErrCodeSchemaValidation}
	ErrInvalidRequest     = &StandardError{Code: ErrCodeInvalidRequest}
	ErrRateLimited        = &StandardError{Code: ErrCodeRateLimited}
)

type StandardError struct {
	Code      ErrorCode              `json:"code"`
	Message   string                 `json:"message"`
	Details   string                 `json:"details,omitempty"`
	Retryable bool                   `json:"retryable"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	Timestamp time.Time              `json:"timestamp"`

	cause error
}

func (e *StandardError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("StandardError[%s]: %s: %s", e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("StandardError[%s]: %s", e.Code, e.Message)
}

func (e *StandardError) Unwrap() error {
	return e.cause
}

func (e *StandardError) Is(target error) bool {
	t, ok := target.(*StandardError)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// WithMetadata returns the error with an extra metadata entry set.
func (e *StandardError) WithMetadata(key string, value interface{}) *StandardError {
	if e.Metadata == nil {
		e.Metadata = make(map[string]interface{})
	}
	e.Metadata[key] = value
	return e
}

func newError(code ErrorCode, message string, cause error, retryable bool) *StandardError {
	details := ""
	if cause != nil {
		details = cause.Error()
	}
	return &StandardError{
		Code:      code,
		Message:   message,
		Details:   details,
		Retryable: retryable,
		Timestamp: time.Now().UTC(),
		cause:     cause,
	}
}

func NewConfigurationError(details string) *StandardError {
	return &StandardError{
		Code:      ErrCodeConfiguration,
		Message:   "Invalid or missing configuration",
		Details:   details,
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

func NewDecryptionError(err error) *StandardError {
	return newError(ErrCodeDecryption, "Instruction template could not be decrypted", err, false)
}

func NewFileNotFoundError(path string, err error) *StandardError {
	e := newError(ErrCodeFileNotFound, "Encrypted template file is not readable", err, false)
	return e.WithMetadata("path", path)
}

func NewUpstreamGenerationError(err error) *StandardError {
	return newError(ErrCodeUpstreamGeneration, "Project generation upstream call failed", err, true)
}

func NewUpstreamParsingError(err error) *StandardError {
	return newError(ErrCodeUpstreamParsing, "Project parsing upstream call failed", err, true)
}

func NewSchemaValidationError(err error) *StandardError {
	return newError(ErrCodeSchemaValidation, "Generated project details did not match the schema", err, false)
}

func NewInvalidRequestError(details string) *StandardError {
	return &StandardError{
		Code:      ErrCodeInvalidRequest,
		Message:   "Request validation failed",
		Details:   details,
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewRateLimitedError rounds the wait up to whole seconds, never below one.
func NewRateLimitedError(retryAfter time.Duration) *StandardError {
	secs := int(math.Ceil(retryAfter.Seconds()))
	if secs < 1 {
		secs = 1
	}
	e := &StandardError{
		Code:      ErrCodeRateLimited,
		Message:   "Rate limit exceeded",
		Details:   fmt.Sprintf("retry after %ds", secs),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
	return e.WithMetadata("retryAfterSeconds", secs)
}

func NewNotFoundError(path string) *StandardError {
	return &StandardError{
		Code:      ErrCodeNotFound,
		Message:   "Route not found",
		Details:   path,
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

func NewInternalError(err error) *StandardError {
	return newError(ErrCodeInternal, "Unexpected error", err, false)
}

// HTTPStatus maps an error code to the response status the API layer uses.
func HTTPStatus(code ErrorCode) int {
	switch code {
	case ErrCodeUpstreamGeneration, ErrCodeUpstreamParsing:
		return http.StatusServiceUnavailable
	case ErrCodeInvalidRequest:
		return http.StatusUnprocessableEntity
	case ErrCodeRateLimited:
		return http.StatusTooManyRequests
	case ErrCodeNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// GetErrorCategory groups codes for logging and metrics labels.
func GetErrorCategory(code ErrorCode) string {
	switch code {
	case ErrCodeConfiguration, ErrCodeDecryption, ErrCodeFileNotFound:
		return "startup"
	case ErrCodeUpstreamGeneration, ErrCodeUpstreamParsing:
		return "upstream"
	case ErrCodeSchemaValidation:
		return "schema"
	case ErrCodeInvalidRequest, ErrCodeRateLimited, ErrCodeNotFound:
		return "client"
	default:
		return "internal"
	}
}
