package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies a failure of a credential operation.
type Kind int

const (
	// KindInternal is any failure that does not belong to another kind.
	KindInternal Kind = iota
	// KindValidation is returned when a required field is missing.
	KindValidation
	// KindConflict is returned when the email is already registered.
	KindConflict
	// KindNotFound is returned when no record matches an email, id or token.
	KindNotFound
	// KindAuth is returned on credential or verification-state mismatch.
	KindAuth
	// KindInvalidOrExpired is returned when a reset token is unknown or expired.
	KindInvalidOrExpired
	// KindDependency is returned when the store or the token issuer fails.
	KindDependency
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindConflict:
		return "conflict"
	case KindNotFound:
		return "not_found"
	case KindAuth:
		return "auth"
	case KindInvalidOrExpired:
		return "invalid_or_expired"
	case KindDependency:
		return "dependency"
	default:
		return "internal"
	}
}

// Error is a categorized failure. Message is safe to show to clients;
// Err holds the underlying cause and is only logged.
type Error struct {
	Kind    Kind
	Code    string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap returns the wrapped cause for errors.Is/As support.
func (e *Error) Unwrap() error { return e.Err }

// Validation creates a validation error.
func Validation(message string) *Error {
	return &Error{Kind: KindValidation, Code: "VALIDATION_FAILED", Message: message}
}

// Conflict creates a conflict error.
func Conflict(code, message string) *Error {
	return &Error{Kind: KindConflict, Code: code, Message: message}
}

// NotFound creates a not-found error.
func NotFound(code, message string) *Error {
	return &Error{Kind: KindNotFound, Code: code, Message: message}
}

// Auth creates an authentication error.
func Auth(code, message string) *Error {
	return &Error{Kind: KindAuth, Code: code, Message: message}
}

// InvalidOrExpired creates an invalid-or-expired token error.
func InvalidOrExpired(message string) *Error {
	return &Error{Kind: KindInvalidOrExpired, Code: "INVALID_OR_EXPIRED_TOKEN", Message: message}
}

// Dependency wraps a store or issuer failure.
func Dependency(err error) *Error {
	return &Error{Kind: KindDependency, Code: "DEPENDENCY_FAILURE", Message: "service temporarily unavailable", Err: err}
}

// Internal wraps an unclassified failure.
func Internal(err error) *Error {
	return &Error{Kind: KindInternal, Code: "INTERNAL_ERROR", Message: "internal server error", Err: err}
}

// KindOf reports the kind of err, or KindInternal when err is not an *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// IsKind checks if an error has the provided kind (through unwrapping).
func IsKind(err error, kind Kind) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == kind
}

// ErrorResponse represents a standardized error response.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// HTTPError represents an HTTP error with status code.
type HTTPError struct {
	StatusCode int
	Message    string
	Code       string
}

func (e *HTTPError) Error() string {
	return e.Message
}

// NewHTTPError creates a new HTTP error.
func NewHTTPError(statusCode int, message, code string) *HTTPError {
	return &HTTPError{
		StatusCode: statusCode,
		Message:    message,
		Code:       code,
	}
}

// ToErrorResponse converts an HTTPError to ErrorResponse.
func (e *HTTPError) ToErrorResponse() ErrorResponse {
	return ErrorResponse{
		Error: e.Message,
		Code:  e.Code,
	}
}

// MapErrorToHTTP maps domain errors to HTTP errors. Only the client-safe
// message is carried over; causes never reach the response.
func MapErrorToHTTP(err error) *HTTPError {
	var e *Error
	if !errors.As(err, &e) {
		return NewHTTPError(http.StatusInternalServerError, "internal server error", "INTERNAL_ERROR")
	}
	switch e.Kind {
	case KindValidation, KindConflict, KindInvalidOrExpired:
		return NewHTTPError(http.StatusBadRequest, e.Message, e.Code)
	case KindNotFound:
		return NewHTTPError(http.StatusNotFound, e.Message, e.Code)
	case KindAuth:
		return NewHTTPError(http.StatusUnauthorized, e.Message, e.Code)
	case KindDependency:
		return NewHTTPError(http.StatusServiceUnavailable, e.Message, e.Code)
	default:
		return NewHTTPError(http.StatusInternalServerError, "internal server error", "INTERNAL_ERROR")
	}
}
