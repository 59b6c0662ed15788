// Package errors provides standardized error handling for the wizard API.
package errors

import (
	"fmt"
	"net/http"
	"strings"
	"time"
)

// ErrorCode represents standardized internal error codes.
type ErrorCode string

const (
	ErrCodeValidationFailed     ErrorCode = "VALIDATION_FAILED"
	ErrCodeInvalidRequest       ErrorCode = "INVALID_REQUEST"
	ErrCodeInvalidStep          ErrorCode = "INVALID_STEP"
	ErrCodeSessionNotFound      ErrorCode = "SESSION_NOT_FOUND"
	ErrCodeSubmissionFailed     ErrorCode = "SUBMISSION_FAILED"
	ErrCodeSubmissionInProgress ErrorCode = "SUBMISSION_IN_PROGRESS"
	ErrCodeStorageUnavailable   ErrorCode = "STORAGE_UNAVAILABLE"
	ErrCodeDatabaseInsertFailed ErrorCode = "DATABASE_INSERT_FAILED"
	ErrCodeExternalService      ErrorCode = "EXTERNAL_SERVICE_ERROR"
	ErrCodeTimeout              ErrorCode = "TIMEOUT"
	ErrCodeNotImplemented       ErrorCode = "NOT_IMPLEMENTED"
	ErrCodeInternal             ErrorCode = "INTERNAL_ERROR"
)

// StandardError represents a structured application error.
type StandardError struct {
	Code      ErrorCode              `json:"code"`
	Message   string                 `json:"message"`
	Details   string                 `json:"details,omitempty"`
	Retryable bool                   `json:"retryable"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}

func (e *StandardError) Error() string {
	return fmt.Sprintf("StandardError[%s]: %s", e.Code, e.Message)
}

// NewValidationFailedError carries the field-path to message map of a failed
// validation in its metadata.
func NewValidationFailedError(fieldErrors map[string]string) *StandardError {
	return &StandardError{
		Code:      ErrCodeValidationFailed,
		Message:   "Validation failed",
		Details:   fmt.Sprintf("%d field(s) invalid", len(fieldErrors)),
		Retryable: false,
		Metadata:  map[string]interface{}{"errors": fieldErrors},
		Timestamp: time.Now().UTC(),
	}
}

// NewInvalidRequestError creates a non-retryable malformed request error.
func NewInvalidRequestError(details string) *StandardError {
	return &StandardError{
		Code:      ErrCodeInvalidRequest,
		Message:   "Invalid request",
		Details:   details,
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewInvalidStepError creates a non-retryable step out of range error.
func NewInvalidStepError(step, totalSteps int) *StandardError {
	return &StandardError{
		Code:      ErrCodeInvalidStep,
		Message:   "Step out of range",
		Details:   fmt.Sprintf("step %d is outside 1..%d", step, totalSteps),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewSessionNotFoundError creates a non-retryable unknown session error.
func NewSessionNotFoundError(sessionID string) *StandardError {
	return &StandardError{
		Code:      ErrCodeSessionNotFound,
		Message:   "Wizard session not found",
		Details:   fmt.Sprintf("sessionId: %s", sessionID),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewSubmissionFailedError creates a retryable submission error. The message
// is the collaborator's error text so the user can act on it.
func NewSubmissionFailedError(message string) *StandardError {
	return &StandardError{
		Code:      ErrCodeSubmissionFailed,
		Message:   message,
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewSubmissionInProgressError rejects overlapping submissions.
func NewSubmissionInProgressError() *StandardError {
	return &StandardError{
		Code:      ErrCodeSubmissionInProgress,
		Message:   "Submission already in progress",
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewStorageUnavailableError creates a retryable snapshot store error.
func NewStorageUnavailableError(err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeStorageUnavailable,
		Message:   "Snapshot storage unavailable",
		Details:   err.Error(),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewDatabaseInsertFailedError creates a retryable database insert error.
func NewDatabaseInsertFailedError(err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeDatabaseInsertFailed,
		Message:   "Database insert failed",
		Details:   err.Error(),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewExternalServiceError wraps a failure of a downstream service.
func NewExternalServiceError(service string, err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeExternalService,
		Message:   fmt.Sprintf("External service %s failed", service),
		Details:   err.Error(),
		Retryable: true,
		Metadata:  map[string]interface{}{"service": service},
		Timestamp: time.Now().UTC(),
	}
}

// NewTimeoutError wraps a downstream call that ran out of time.
func NewTimeoutError(service string, err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeTimeout,
		Message:   fmt.Sprintf("Call to %s timed out", service),
		Details:   err.Error(),
		Retryable: true,
		Metadata:  map[string]interface{}{"service": service},
		Timestamp: time.Now().UTC(),
	}
}

// NewNotImplementedError is returned by the placeholder auth endpoints.
func NewNotImplementedError() *StandardError {
	return &StandardError{
		Code:      ErrCodeNotImplemented,
		Message:   "Not implemented",
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// HTTPStatus maps an error code to the HTTP status the API responds with.
func HTTPStatus(code ErrorCode) int {
	switch code {
	case ErrCodeValidationFailed:
		return http.StatusUnprocessableEntity
	case ErrCodeInvalidRequest, ErrCodeInvalidStep:
		return http.StatusBadRequest
	case ErrCodeSessionNotFound:
		return http.StatusNotFound
	case ErrCodeSubmissionInProgress:
		return http.StatusConflict
	case ErrCodeSubmissionFailed, ErrCodeExternalService:
		return http.StatusBadGateway
	case ErrCodeTimeout:
		return http.StatusGatewayTimeout
	case ErrCodeStorageUnavailable:
		return http.StatusServiceUnavailable
	case ErrCodeNotImplemented:
		return http.StatusNotImplemented
	default:
		return http.StatusInternalServerError
	}
}

// IsRetryableErrorCode checks if an error code is retryable.
func IsRetryableErrorCode(code ErrorCode) bool {
	switch code {
	case ErrCodeSubmissionFailed, ErrCodeSubmissionInProgress,
		ErrCodeStorageUnavailable, ErrCodeDatabaseInsertFailed,
		ErrCodeExternalService, ErrCodeTimeout:
		return true
	default:
		return false
	}
}

// GetErrorCategory returns the category of the error code.
func GetErrorCategory(code ErrorCode) string {
	codeStr := string(code)
	switch {
	case strings.Contains(codeStr, "SUBMISSION"):
		return "SUBMISSION"
	case strings.Contains(codeStr, "SESSION"):
		return "SESSION"
	case strings.Contains(codeStr, "STORAGE") || strings.Contains(codeStr, "DATABASE"):
		return "STORAGE"
	case strings.Contains(codeStr, "INVALID") || strings.Contains(codeStr, "VALIDATION"):
		return "VALIDATION"
	case codeStr == string(ErrCodeExternalService) || codeStr == string(ErrCodeTimeout):
		return "INTEGRATION"
	default:
		return "OTHER"
	}
}
