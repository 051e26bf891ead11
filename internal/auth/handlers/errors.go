package handlers

import (
	"fmt"
	"net/http"
)

// Kind classifies an exchange failure and decides its status code
type Kind int

const (
	KindInternal Kind = iota
	KindMethodNotAllowed
	KindRateLimited
	KindInvalidRequest
	KindProvisioningFailed
	KindSessionCreationFailed
)

func (k Kind) String() string {
	switch k {
	case KindMethodNotAllowed:
		return "method_not_allowed"
	case KindRateLimited:
		return "rate_limited"
	case KindInvalidRequest:
		return "invalid_request"
	case KindProvisioningFailed:
		return "provisioning_failed"
	case KindSessionCreationFailed:
		return "session_creation_failed"
	default:
		return "internal"
	}
}

// Status is the HTTP status written for the kind
func (k Kind) Status() int {
	switch k {
	case KindMethodNotAllowed:
		return http.StatusMethodNotAllowed
	case KindRateLimited:
		return http.StatusTooManyRequests
	case KindInvalidRequest:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// Error is an exchange failure. Message is what the client sees, Err is only logged.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func newError(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}
