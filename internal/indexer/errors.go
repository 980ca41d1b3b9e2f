package indexer

import (
	"errors"
	"fmt"
)

var (
	ErrNotConfigured = errors.New("indexer is not configured")
	ErrAuth          = errors.New("indexer rejected the API key")
	ErrRateLimited   = errors.New("indexer rate limit exceeded")
)

// StatusError reports a non-2xx response from the index.
type StatusError struct {
	Op     string
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("indexer %s: status %d: %s", e.Op, e.Status, e.Body)
}

// Unwrap maps well-known statuses onto sentinel errors so callers can use
// errors.Is without inspecting codes.
func (e *StatusError) Unwrap() error {
	switch e.Status {
	case 401, 403:
		return ErrAuth
	case 429:
		return ErrRateLimited
	default:
		return nil
	}
}

// IsTransient reports whether a search failure is worth retrying on the
// next pass rather than flagging configuration.
func IsTransient(err error) bool {
	if errors.Is(err, ErrAuth) || errors.Is(err, ErrNotConfigured) {
		return false
	}
	var se *StatusError
	if errors.As(err, &se) {
		return se.Status == 429 || se.Status >= 500
	}
	// Network-level failures (timeouts, refused connections).
	return true
}
