package shared

import (
	"errors"
	"fmt"
)

// DomainError represents a domain-level error
type DomainError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Error implements the error interface
func (e *DomainError) Error() string {
	return e.Message
}

// Is matches domain errors by code so wrapped errors compare against the sentinels
func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// NewDomainError creates a new domain error
func NewDomainError(code, message string) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
	}
}

// Error codes
const (
	CodeUnauthorized       = "UNAUTHORIZED"
	CodePermissionDenied   = "PERMISSION_DENIED"
	CodeNotFound           = "NOT_FOUND"
	CodeScopeMismatch      = "SCOPE_MISMATCH"
	CodeValidation         = "VALIDATION_ERROR"
	CodeInvalidTransition  = "INVALID_TRANSITION"
	CodeSequenceContention = "SEQUENCE_CONTENTION"
	CodeOperationFailed    = "OPERATION_FAILED"
)

// Common domain errors
var (
	ErrUnauthorized       = NewDomainError(CodeUnauthorized, "Not authorized to perform this action")
	ErrPermissionDenied   = NewDomainError(CodePermissionDenied, "Permission denied")
	ErrNotFound           = NewDomainError(CodeNotFound, "Resource not found")
	ErrScopeMismatch      = NewDomainError(CodeScopeMismatch, "Resource belongs to a different scope")
	ErrValidation         = NewDomainError(CodeValidation, "Invalid input provided")
	ErrInvalidTransition  = NewDomainError(CodeInvalidTransition, "Operation not allowed in current state")
	ErrSequenceContention = NewDomainError(CodeSequenceContention, "Could not allocate a document number, please retry")
	ErrOperationFailed    = NewDomainError(CodeOperationFailed, "Operation failed")
)

// NewValidationError creates a VALIDATION_ERROR with a formatted message
func NewValidationError(format string, args ...any) *DomainError {
	return NewDomainError(CodeValidation, fmt.Sprintf(format, args...))
}

// NewTransitionError creates an INVALID_TRANSITION error with a formatted message
func NewTransitionError(format string, args ...any) *DomainError {
	return NewDomainError(CodeInvalidTransition, fmt.Sprintf(format, args...))
}

// NewPermissionDenied reports the missing capability key
func NewPermissionDenied(key string) *DomainError {
	return NewDomainError(CodePermissionDenied, fmt.Sprintf("Missing capability %s", key))
}

// AsDomainError extracts a DomainError from err's chain
func AsDomainError(err error) (*DomainError, bool) {
	var de *DomainError
	if errors.As(err, &de) {
		return de, true
	}
	return nil, false
}
