// Package sundaeerr defines the error taxonomy shared by the websocket gateway.
//
// Every failure that crosses a component boundary is an *Error carrying a Kind, a
// stable Code and an HTTP-equivalent StatusCode. Vendor errors are kept in Err for
// logging and never rendered to clients.
package sundaeerr

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"
)

type Kind int

const (
	KindInternal Kind = iota
	KindAuth
	KindConnection
	KindValidation
	KindNotFound
)

func (k Kind) String() string {
	switch k {
	case KindAuth:
		return "auth"
	case KindConnection:
		return "connection"
	case KindValidation:
		return "validation"
	case KindNotFound:
		return "not_found"
	default:
		return "internal"
	}
}

// DefaultStatus returns the status code used when an Error does not set one.
func (k Kind) DefaultStatus() int {
	switch k {
	case KindAuth:
		return http.StatusUnauthorized
	case KindConnection:
		return http.StatusServiceUnavailable
	case KindValidation:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// Stable codes rendered to clients.
const (
	CodeMissingCredential    = "MISSING_CREDENTIAL"
	CodeTokenExpired         = "TOKEN_EXPIRED"
	CodeUnauthorized         = "UNAUTHORIZED"
	CodeForbidden            = "FORBIDDEN"
	CodeRateLimited          = "RATE_LIMITED"
	CodeKeySourceUnavailable = "KEY_SOURCE_UNAVAILABLE"
	CodeRegistryError        = "REGISTRY_ERROR"
	CodeMessageStoreError    = "MESSAGE_STORE_ERROR"
	CodeDeliveryFailed       = "DELIVERY_FAILED"
	CodeConnectionNotFound   = "CONNECTION_NOT_FOUND"
	CodeInvalidEvent         = "INVALID_EVENT"
	CodeUnknownEvent         = "UNKNOWN_EVENT"
	CodeTimeout              = "TIMEOUT"
	CodeInternal             = "INTERNAL_ERROR"
)

type Error struct {
	Kind         Kind
	Message      string
	StatusCode   int
	Code         string
	ConnectionID string
	Err          error
}

func New(kind Kind, code, message string) *Error {
	return &Error{
		Kind:       kind,
		Message:    message,
		StatusCode: kind.DefaultStatus(),
		Code:       code,
	}
}

func Auth(code, message string) *Error       { return New(KindAuth, code, message) }
func Connection(code, message string) *Error { return New(KindConnection, code, message) }
func Validation(code, message string) *Error { return New(KindValidation, code, message) }
func NotFound(code, message string) *Error   { return New(KindNotFound, code, message) }
func Internal(message string) *Error         { return New(KindInternal, CodeInternal, message) }

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%v: %v: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%v: %v", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// Wrap returns a copy of e with err recorded as the cause.
func (e *Error) Wrap(err error) *Error {
	clone := *e
	clone.Err = err
	return &clone
}

// WithStatus returns a copy of e with a different status code.
func (e *Error) WithStatus(status int) *Error {
	clone := *e
	clone.StatusCode = status
	return &clone
}

// WithConnection returns a copy of e tagged with the connection it concerns.
func (e *Error) WithConnection(connectionID string) *Error {
	clone := *e
	clone.ConnectionID = connectionID
	return &clone
}

// As returns the *Error in err's chain, if any.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// IsKind reports whether err carries an *Error of the given kind.
func IsKind(err error, kind Kind) bool {
	e, ok := As(err)
	return ok && e.Kind == kind
}

// From classifies err. Errors that are not already an *Error become KindInternal;
// context deadline errors become a 503 timeout.
func From(err error) *Error {
	if err == nil {
		return nil
	}
	if e, ok := As(err); ok {
		return e
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return Connection(CodeTimeout, "operation timed out").Wrap(err)
	}
	return Internal("internal error").Wrap(err)
}

// Payload is the only error shape rendered to clients.
type Payload struct {
	Message      string    `json:"message"`
	Code         string    `json:"code"`
	Status       int       `json:"status"`
	ConnectionID string    `json:"connectionId,omitempty"`
	RequestID    string    `json:"requestId,omitempty"`
	Timestamp    time.Time `json:"timestamp"`
}

func (e *Error) Payload(requestID string, now time.Time) Payload {
	status := e.StatusCode
	if status == 0 {
		status = e.Kind.DefaultStatus()
	}
	return Payload{
		Message:      e.Message,
		Code:         e.Code,
		Status:       status,
		ConnectionID: e.ConnectionID,
		RequestID:    requestID,
		Timestamp:    now.UTC(),
	}
}
