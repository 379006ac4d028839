package session

import "github.com/felnan/snapfeed/internal/domain"

// Status is the authentication state of the client.
type Status int

const (
	// StatusRestoring is the initial state while the stored credential is
	// being read and validated at process start.
	StatusRestoring Status = iota
	// StatusUnauthenticated means no session exists.
	StatusUnauthenticated
	// StatusAuthenticating means a login or signup request is in flight.
	StatusAuthenticating
	// StatusAuthenticated means a usable session exists.
	StatusAuthenticated
	// StatusExpired is the transient state published when the server rejects
	// a previously valid token; it always resolves to StatusUnauthenticated.
	StatusExpired
)

// String returns the status name for logging.
func (s Status) String() string {
	switch s {
	case StatusRestoring:
		return "restoring"
	case StatusUnauthenticated:
		return "unauthenticated"
	case StatusAuthenticating:
		return "authenticating"
	case StatusAuthenticated:
		return "authenticated"
	case StatusExpired:
		return "expired"
	default:
		return "unknown"
	}
}

// State is the process-wide session snapshot. Exactly one instance exists,
// owned and mutated only by the Controller; readers take copies.
type State struct {
	Status Status
	// User is the cached profile, nil until hydrated. The server is
	// authoritative; this is never merged client-side.
	User *domain.UserProfile
	// Token is the in-memory copy of the stored credential.
	Token string
	// Err is the most recent failure, shown on the auth form.
	Err error
}
