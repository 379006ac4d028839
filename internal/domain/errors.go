package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrAuthExpired is returned when the remote service rejects a previously
	// valid bearer token. It is matched by errors.Is against any APIError of
	// kind ErrorKindAuthExpired.
	ErrAuthExpired = errors.New("session expired")
	// ErrNoCredential is returned when an operation requires a stored token
	// but none is present.
	ErrNoCredential = errors.New("no stored credential")
	// ErrPostNotFound is returned when a feed operation references a post ID
	// that is not in the local cache.
	ErrPostNotFound = errors.New("post not found")
	// ErrImageTypeNotSupported is returned when an upload is not one of the
	// accepted image formats.
	ErrImageTypeNotSupported = errors.New("image type not supported")
	// ErrImageTooLarge is returned when an upload exceeds the configured
	// maximum size.
	ErrImageTooLarge = errors.New("image too large")
)

// ErrorKind classifies a normalized remote failure.
type ErrorKind int

const (
	// ErrorKindTransport means no response reached the client at all
	// (offline, timeout, DNS).
	ErrorKindTransport ErrorKind = iota
	// ErrorKindAuthExpired means the server rejected the bearer token.
	ErrorKindAuthExpired
	// ErrorKindValidation means a 4xx response with a server-supplied message.
	ErrorKindValidation
	// ErrorKindServer means a 5xx response.
	ErrorKindServer
)

// String returns the kind's name for logging.
func (k ErrorKind) String() string {
	switch k {
	case ErrorKindTransport:
		return "transport"
	case ErrorKindAuthExpired:
		return "auth_expired"
	case ErrorKindValidation:
		return "validation"
	case ErrorKindServer:
		return "server"
	default:
		return "unknown"
	}
}

// APIError is the uniform failure shape produced by the gateway. StatusCode
// is zero for transport failures. Message holds the server's detail/message
// field, or a generic fallback when the body carried neither.
type APIError struct {
	Kind       ErrorKind
	StatusCode int
	Message    string
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("api: %s: %s", e.Kind, e.Message)
	}

	return fmt.Sprintf("api: %s (%d): %s", e.Kind, e.StatusCode, e.Message)
}

// Is makes errors.Is(err, ErrAuthExpired) hold for auth-expiry responses.
func (e *APIError) Is(target error) bool {
	return target == ErrAuthExpired && e.Kind == ErrorKindAuthExpired
}

// AsAPIError unwraps err into an *APIError if one is in its chain.
func AsAPIError(err error) (*APIError, bool) {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr, true
	}

	return nil, false
}
