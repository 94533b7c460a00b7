package apperrors

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind is the stable, machine-checkable error category returned to clients.
type Kind string

const (
	KindValidation            Kind = "validation"
	KindAuthentication        Kind = "authentication"
	KindAuthorization         Kind = "authorization"
	KindNotFound              Kind = "not_found"
	KindPaymentVerification   Kind = "payment_verification"
	KindInsufficientInventory Kind = "insufficient_inventory"
	KindSignature             Kind = "signature"
	KindOrderCreationFailed   Kind = "order_creation_failed"
	KindGateway               Kind = "gateway"
	KindRateLimited           Kind = "rate_limited"
	KindInternal              Kind = "internal"
)

// Error carries a Kind plus a human-readable message. The wrapped cause is
// kept for logs only and never serialized to clients.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// New builds a tagged error with no underlying cause.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Newf is New with fmt.Sprintf semantics for the message.
func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap tags an underlying error. The cause stays reachable via errors.Is/As.
func Wrap(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// KindOf extracts the Kind from an error chain, or KindInternal for
// anything untagged.
func KindOf(err error) Kind {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return KindInternal
}

// Message returns the client-safe message for an error chain. Untagged
// errors collapse to a generic message so datastore/internal text never
// reaches a response body.
func Message(err error) string {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Message
	}
	return "Internal server error"
}

// HTTPStatus maps every Kind to its response status. The default arm only
// fires for kinds added without updating this switch.
func HTTPStatus(kind Kind) int {
	switch kind {
	case KindValidation, KindPaymentVerification, KindSignature:
		return http.StatusBadRequest
	case KindAuthentication:
		return http.StatusUnauthorized
	case KindAuthorization:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	case KindInsufficientInventory:
		return http.StatusConflict
	case KindRateLimited:
		return http.StatusTooManyRequests
	case KindGateway:
		return http.StatusBadGateway
	case KindOrderCreationFailed, KindInternal:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

// IsKind reports whether the error chain carries the given Kind.
func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}
