package credential

import "context"

// Store defines the interface for durable persistence of the session token.
// Absence of a token is a normal outcome, never an error.
type Store interface {
	// Get retrieves the stored token.
	// Returns the token and true if present, or empty string and false if
	// no token is stored. Returns an error only if the read itself fails.
	Get(ctx context.Context) (string, bool, error)

	// Set persists the given token, replacing any previous one. Idempotent.
	Set(ctx context.Context, token string) error

	// Clear removes the stored token. Idempotent; clearing an absent token
	// is not an error.
	Clear(ctx context.Context) error

	// Close releases any resources held by the store.
	Close() error
}

// StoreFactory is a function that creates a new Store instance.
// Returns an error if initialization fails.
type StoreFactory func() (Store, error)
