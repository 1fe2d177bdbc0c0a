package apperrors

import (
	stderrors "errors"
	"fmt"
	"net/http"
)

// Code is the machine-readable error code rendered to API clients
type Code string

const (
	CodeValidation       Code = "VALIDATION_ERROR"
	CodeNotFound         Code = "NOT_FOUND"
	CodeTrustScoreTooLow Code = "TRUST_SCORE_TOO_LOW"
	CodeItemNotAvailable Code = "ITEM_NOT_AVAILABLE"
	CodeQuotaExceeded    Code = "QUOTA_EXCEEDED"
	CodeRateLimited      Code = "RATE_LIMITED"
	CodeInternal         Code = "INTERNAL_ERROR"
)

// Messages matched verbatim by callers.
const (
	MsgTrustScoreTooLow    = "Creator trust score must be at least 600 to list items"
	MsgItemNotAvailable    = "Item not available for purchase"
	MsgItemNotFound        = "Marketplace item not found"
	MsgComplianceNotFound  = "Compliance check not found"
	MsgQuotaNotFound       = "User quota not found"
	MsgInsufficientCredits = "Insufficient credits for calculation"
	MsgRateLimitExceeded   = "Calculation rate limit exceeded"
	MsgCalculationNotFound = "Calculation request not found"
	MsgTrustScoreNotFound  = "Trust score not found"
	MsgInternal            = "An internal error occurred"
)

// Error is a domain or validation failure with a stable code and message
type Error struct {
	Code    Code
	Message string
	Status  int
	Cause   error
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

// Unwrap allows errors.Is and errors.As to reach the cause
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches on code and message so sentinel comparisons work across instances
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Code == t.Code && e.Message == t.Message
}

func newError(code Code, status int, message string, cause error) *Error {
	return &Error{Code: code, Message: message, Status: status, Cause: cause}
}

// Validation creates a 400 error
func Validation(message string, cause error) *Error {
	return newError(CodeValidation, http.StatusBadRequest, message, cause)
}

// NotFound creates a 404 error with a resource-specific message
func NotFound(message string) *Error {
	return newError(CodeNotFound, http.StatusNotFound, message, nil)
}

// Internal creates a 500 error around an infrastructure failure
func Internal(cause error) *Error {
	return newError(CodeInternal, http.StatusInternalServerError, MsgInternal, cause)
}

// QuotaExceeded creates a 429 error carrying the denial reason
func QuotaExceeded(reason string) *Error {
	return newError(CodeQuotaExceeded, http.StatusTooManyRequests, reason, nil)
}

var (
	ErrTrustScoreTooLow    = newError(CodeTrustScoreTooLow, http.StatusForbidden, MsgTrustScoreTooLow, nil)
	ErrItemNotAvailable    = newError(CodeItemNotAvailable, http.StatusConflict, MsgItemNotAvailable, nil)
	ErrItemNotFound        = NotFound(MsgItemNotFound)
	ErrComplianceNotFound  = NotFound(MsgComplianceNotFound)
	ErrCalculationNotFound = NotFound(MsgCalculationNotFound)
	ErrTrustScoreNotFound  = NotFound(MsgTrustScoreNotFound)
	ErrRateLimited         = newError(CodeRateLimited, http.StatusTooManyRequests, "Too many requests", nil)
)

// As extracts an *Error from err's chain
func As(err error) (*Error, bool) {
	var appErr *Error
	if stderrors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// IsDomain reports whether err is a typed application error rather than an infrastructure failure
func IsDomain(err error) bool {
	appErr, ok := As(err)
	return ok && appErr.Code != CodeInternal
}
