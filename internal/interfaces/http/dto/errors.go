package dto

import (
	"net/http"

	"github.com/erp/ledger/internal/domain/shared"
)

// ErrorCodeContextKey is the gin key the error code of a failed request is
// stored under for tracing and metrics
const ErrorCodeContextKey = "error_code"

// Domain error codes travel to clients unchanged
const (
	ErrCodeUnauthorized       = shared.CodeUnauthorized
	ErrCodePermissionDenied   = shared.CodePermissionDenied
	ErrCodeNotFound           = shared.CodeNotFound
	ErrCodeScopeMismatch      = shared.CodeScopeMismatch
	ErrCodeValidation         = shared.CodeValidation
	ErrCodeInvalidTransition  = shared.CodeInvalidTransition
	ErrCodeSequenceContention = shared.CodeSequenceContention
	ErrCodeOperationFailed    = shared.CodeOperationFailed
)

// Transport error codes raised before a request reaches a service
const (
	ErrCodeBadRequest      = "BAD_REQUEST"
	ErrCodeInvalidJSON     = "INVALID_JSON"
	ErrCodeTokenExpired    = "TOKEN_EXPIRED"
	ErrCodeTokenInvalid    = "INVALID_TOKEN"
	ErrCodeTokenRevoked    = "TOKEN_REVOKED"
	ErrCodeRequestTooLarge = "REQUEST_TOO_LARGE"
	ErrCodeRateLimited     = "RATE_LIMITED"
	ErrCodeRouteNotFound   = "ROUTE_NOT_FOUND"
)

// ErrorCodeHTTPStatus maps error codes to HTTP status codes
var ErrorCodeHTTPStatus = map[string]int{
	ErrCodeUnauthorized:     http.StatusUnauthorized,
	ErrCodePermissionDenied: http.StatusForbidden,
	ErrCodeNotFound:         http.StatusNotFound,
	// a foreign-scope record is reported like a missing one
	ErrCodeScopeMismatch:      http.StatusNotFound,
	ErrCodeValidation:         http.StatusBadRequest,
	ErrCodeInvalidTransition:  http.StatusConflict,
	ErrCodeSequenceContention: http.StatusServiceUnavailable,
	ErrCodeOperationFailed:    http.StatusInternalServerError,

	ErrCodeBadRequest:      http.StatusBadRequest,
	ErrCodeInvalidJSON:     http.StatusBadRequest,
	ErrCodeTokenExpired:    http.StatusUnauthorized,
	ErrCodeTokenInvalid:    http.StatusUnauthorized,
	ErrCodeTokenRevoked:    http.StatusUnauthorized,
	ErrCodeRequestTooLarge: http.StatusRequestEntityTooLarge,
	ErrCodeRateLimited:     http.StatusTooManyRequests,
	ErrCodeRouteNotFound:   http.StatusNotFound,
}

// GetHTTPStatus returns the HTTP status code for an error code
// Returns 500 Internal Server Error if the error code is not found
func GetHTTPStatus(code string) int {
	if status, ok := ErrorCodeHTTPStatus[code]; ok {
		return status
	}
	return http.StatusInternalServerError
}
