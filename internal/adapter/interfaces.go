// Package adapter provides the transport-layer abstraction for
// communicating with the remote ERP API.
//
// The primary abstraction is [ServerAdapter], which decouples the sync
// engine from the underlying protocol. The package ships an HTTP/REST
// implementation ([NewHTTPServerAdapter]).
//
// Error values defined in errors.go are mapped from HTTP status codes by
// mapHTTPError so that callers can use [errors.Is] for transport-agnostic
// error handling (e.g. [ErrVersionConflict] for 409, [ErrUnauthorized] for
// 401). Version conflicts additionally carry the server's current record in
// a [ConflictError].
package adapter

import (
	"context"

	"github.com/avetrov/offsync/models"
)

// ServerAdapter defines transport-agnostic communication with the remote
// entity API. Implementations are responsible for serialisation,
// authentication header management, and mapping transport-level errors to
// the sentinel values defined in this package.
type ServerAdapter interface {
	// SetToken stores the bearer token that will be attached to all
	// subsequent requests. Called by the app facade after login or after
	// re-arming from the secure store.
	SetToken(token string)

	// Token returns the bearer token currently stored in the adapter, or an
	// empty string if no token has been set yet.
	Token() string

	// Create posts a new entity of the given type and returns the
	// server-confirmed record, including the authoritative id that replaces
	// the client's temporary one.
	Create(ctx context.Context, entityType models.EntityType, req models.MutationRequest) (models.ServerRecord, error)

	// Update puts new field values for an existing entity. The server checks
	// req.BaseVersion; a mismatch returns a [ConflictError].
	Update(ctx context.Context, entityType models.EntityType, id string, req models.MutationRequest) (models.ServerRecord, error)

	// Delete removes an entity, subject to the same optimistic-concurrency
	// check as Update.
	Delete(ctx context.Context, entityType models.EntityType, id string, req models.MutationRequest) error

	// Fetch returns the server's current record for one entity.
	Fetch(ctx context.Context, entityType models.EntityType, id string) (models.ServerRecord, error)

	// FetchAll returns all records of one entity type. Used to rebuild the
	// entity caches after a restart.
	FetchAll(ctx context.Context, entityType models.EntityType) ([]models.ServerRecord, error)
}
