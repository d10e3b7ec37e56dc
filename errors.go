package sessionkeeper

import (
	"errors"
	"fmt"
)

var (
	// ErrNoSession indicates no complete credential is stored.
	ErrNoSession = errors.New("no session")

	// ErrNoRefreshToken indicates a refresh was attempted with nothing to
	// refresh. Terminal: the session is torn down.
	ErrNoRefreshToken = errors.New("no refresh token available")

	// ErrRefreshRejected indicates the server refused the refresh token.
	// Terminal: the session is torn down.
	ErrRefreshRejected = errors.New("refresh token rejected by server")

	// ErrSessionExpired is surfaced to callers of the request gateway after
	// a failed reactive refresh, or once the session has been terminated.
	ErrSessionExpired = errors.New("session expired")
)

// TransportError wraps a network-level failure during the refresh exchange.
// It is recoverable: the session stays intact and the next natural trigger
// (timer, foreground check, or 401) retries.
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("refresh transport error: %v", e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// IsTerminal reports whether err is one of the failures that ends the
// session (missing or rejected refresh token).
func IsTerminal(err error) bool {
	return errors.Is(err, ErrNoRefreshToken) || errors.Is(err, ErrRefreshRejected)
}
