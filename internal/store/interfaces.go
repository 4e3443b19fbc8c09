// Package store implements the three persistence tiers of the client core:
// the encrypted credential store, the general durable partition store, and
// the in-memory volatile store.
//
// The tiers never share a container. Credentials live in their own sealed
// file, business state lives in the sqlite partitions, and sync/network
// status is process-lifetime only. Corruption of one tier must never expose
// or depend on another.
package store

import (
	"context"

	"github.com/avetrov/offsync/models"
)

// Partition names accepted by the durable store. This is a deliberate
// allow-list, not a default-persist-everything policy: every other state
// slice is transient and rebuilt from the queue and the server after a
// restart.
const (
	PartitionSettings = "settings"
	PartitionOffline  = "offline"
)

// SecureStore isolates authentication material in encrypted-at-rest storage.
type SecureStore interface {
	// Save seals the credential and writes it to the secure backend. When
	// cred.ExpiresAt is zero it is derived from the access token's "exp"
	// claim if one is present.
	Save(ctx context.Context, cred models.Credential) error

	// Load returns the stored credential. Returns ErrCredentialNotFound if
	// nothing is stored, or ErrStorageUnavailable if the backend cannot be
	// opened or decrypted; callers must treat both as "not authenticated"
	// rather than crash.
	Load(ctx context.Context) (models.Credential, error)

	// Clear irreversibly removes the stored credential. Used on logout.
	Clear(ctx context.Context) error
}

// DurableStore persists non-sensitive, restart-survivable state keyed by
// partition. Only allow-listed partitions are accepted.
type DurableStore interface {
	// Persist JSON-encodes state and writes it under partition.
	Persist(ctx context.Context, partition string, state any) error

	// Rehydrate reads the state stored under partition into out (a non-nil
	// pointer). Returns ErrPartitionNotFound when nothing was persisted yet.
	Rehydrate(ctx context.Context, partition string, out any) error

	// Close releases the underlying database handle.
	Close() error
}
