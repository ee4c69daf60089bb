package history

import (
	"context"
	"errors"
)

// ErrUnavailable marks a durable-store connectivity or service failure.
// Callers downgrade it to "no history" and continue in degraded mode.
var ErrUnavailable = errors.New("history store unavailable")

// ErrMalformedRecord marks a stored record with an unexpected shape.
var ErrMalformedRecord = errors.New("malformed history record")

// Store persists per-user profiles and append-only turn history.
// The store is the system of record: turns are never truncated here.
type Store interface {
	// Exists reports whether a record exists for the user. It is the
	// registration gate for the message-handling layer.
	Exists(ctx context.Context, userID string) (bool, error)

	// AppendTurn atomically creates the user record if absent, sets any
	// not-yet-set profile fields, and appends the turn. Concurrent appends
	// for one user serialize per key; no cross-key ordering is promised.
	AppendTurn(ctx context.Context, turn Turn, profile Profile) error

	// ReadRecent returns the last n turns in chronological order. A missing
	// user or empty history yields an empty slice, not an error.
	ReadRecent(ctx context.Context, userID string, n int) ([]Message, error)

	Close() error
}
