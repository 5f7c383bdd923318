package domain

import (
	"errors"
	"fmt"
)

// DomainError represents a domain-specific error with a code and message
type DomainError struct {
	Code    string
	Message string
	Err     error
}

func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *DomainError) Unwrap() error {
	return e.Err
}

// Error codes
const (
	ErrCodeNotFound            = "NOT_FOUND"
	ErrCodeValidation          = "VALIDATION_ERROR"
	ErrCodeConflict            = "CONFLICT"
	ErrCodeInternal            = "INTERNAL_ERROR"
	ErrCodeCapacityExceeded    = "CAPACITY_EXCEEDED"
	ErrCodeProviderUnavailable = "PROVIDER_UNAVAILABLE"
	ErrCodeDailyLimitExceeded  = "DAILY_LIMIT_EXCEEDED"
)

// Error constructors

// NewNotFoundError creates a new not found error
func NewNotFoundError(resource string) error {
	return &DomainError{
		Code:    ErrCodeNotFound,
		Message: fmt.Sprintf("%s not found", resource),
	}
}

// NewValidationError creates a new validation error
func NewValidationError(msg string) error {
	return &DomainError{
		Code:    ErrCodeValidation,
		Message: msg,
	}
}

// NewConflictError creates a new conflict error
func NewConflictError(msg string) error {
	return &DomainError{
		Code:    ErrCodeConflict,
		Message: msg,
	}
}

// NewInternalError creates a new internal error
func NewInternalError(err error) error {
	return &DomainError{
		Code:    ErrCodeInternal,
		Message: "An internal error occurred",
		Err:     err,
	}
}

// NewCapacityExceededError signals that every eligible agent is at capacity.
func NewCapacityExceededError(capacity int) error {
	return &DomainError{
		Code:    ErrCodeCapacityExceeded,
		Message: fmt.Sprintf("all agents are at the open-lead capacity of %d", capacity),
	}
}

// NewProviderUnavailableError signals the messaging provider cannot be reached at all.
func NewProviderUnavailableError(err error) error {
	return &DomainError{
		Code:    ErrCodeProviderUnavailable,
		Message: "messaging provider unavailable",
		Err:     err,
	}
}

// NewDailyLimitError signals the provider's daily send quota would be exceeded.
func NewDailyLimitError(used, limit, requested int) error {
	return &DomainError{
		Code:    ErrCodeDailyLimitExceeded,
		Message: fmt.Sprintf("daily send limit would be exceeded: used %d/%d, requested %d", used, limit, requested),
	}
}

// Helper functions to check error types

func codeOf(err error) (string, bool) {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Code, true
	}
	return "", false
}

// IsNotFound checks if the error is a not found error
func IsNotFound(err error) bool {
	code, ok := codeOf(err)
	return ok && code == ErrCodeNotFound
}

// IsValidation checks if the error is a validation error
func IsValidation(err error) bool {
	code, ok := codeOf(err)
	return ok && code == ErrCodeValidation
}

// IsConflict checks if the error is a conflict error
func IsConflict(err error) bool {
	code, ok := codeOf(err)
	return ok && code == ErrCodeConflict
}

// IsCapacityExceeded checks if the error is a capacity exceeded error
func IsCapacityExceeded(err error) bool {
	code, ok := codeOf(err)
	return ok && code == ErrCodeCapacityExceeded
}

// IsProviderUnavailable checks if the error is a provider unavailable error
func IsProviderUnavailable(err error) bool {
	code, ok := codeOf(err)
	return ok && code == ErrCodeProviderUnavailable
}

// IsDailyLimitExceeded checks if the error is a daily limit error
func IsDailyLimitExceeded(err error) bool {
	code, ok := codeOf(err)
	return ok && code == ErrCodeDailyLimitExceeded
}

// GetErrorCode extracts the error code from a domain error
func GetErrorCode(err error) string {
	if code, ok := codeOf(err); ok {
		return code
	}
	return ErrCodeInternal
}
