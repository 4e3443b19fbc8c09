package store

import "errors"

// Sentinel errors returned by storage methods to signal well-known failure
// conditions. Callers should use [errors.Is] to match against these values.
var (
	// ErrStorageUnavailable is returned when a storage backend cannot be
	// opened, read, or decrypted (e.g. platform keystore locked, sqlite file
	// unreachable). Callers degrade: secure store consumers treat it as
	// "not authenticated", durable store consumers fall back to in-memory
	// operation.
	ErrStorageUnavailable = errors.New("storage unavailable")

	// ErrCredentialNotFound is returned by [SecureStore.Load] when no
	// credential has been saved yet, or after Clear.
	ErrCredentialNotFound = errors.New("credential not found")

	// ErrPartitionNotAllowed is returned when a caller tries to persist or
	// rehydrate a partition outside the configured allow-list.
	ErrPartitionNotAllowed = errors.New("partition not in allow-list")

	// ErrPartitionNotFound is returned by [DurableStore.Rehydrate] when the
	// partition has never been persisted.
	ErrPartitionNotFound = errors.New("partition not found")
)
