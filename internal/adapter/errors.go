package adapter

import (
	"errors"
	"fmt"

	"github.com/avetrov/offsync/models"
)

var (
	// ErrUnauthorized maps 401 responses. The stored token is stale or the
	// user logged out elsewhere.
	ErrUnauthorized = errors.New("client unauthorized")

	// ErrVersionConflict maps 409 responses. Matched via errors.Is; the
	// wrapping [ConflictError] carries the authoritative server state.
	ErrVersionConflict = errors.New("version conflict")

	// ErrRejected maps the remaining 4xx responses: the server understood
	// the mutation and refused it. Counts toward the retry ceiling.
	ErrRejected = errors.New("server rejected request")

	// ErrServerUnavailable maps transport failures, timeouts and 5xx
	// responses. Recoverable: the mutation itself is not evidence of being
	// bad, the engine backs off and retries without incrementing attempts.
	ErrServerUnavailable = errors.New("server unavailable")
)

// ConflictError is returned when the server reports a baseVersion mismatch.
// It carries the current server record so the sync engine can surface the
// conflict without an extra fetch.
type ConflictError struct {
	CurrentVersion int64
	CurrentData    models.Payload
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("version conflict: server at version %d", e.CurrentVersion)
}

// Unwrap lets errors.Is(err, ErrVersionConflict) match.
func (e *ConflictError) Unwrap() error {
	return ErrVersionConflict
}
