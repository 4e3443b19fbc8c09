package service

import "errors"

var (
	// ErrMutationNotFound is returned when an acknowledge, rebase or
	// mark-failed call names a mutation that is not in the queue.
	ErrMutationNotFound = errors.New("mutation not found in queue")

	// ErrEntityNotFound is returned when a cache operation targets an
	// entity id the cache does not hold.
	ErrEntityNotFound = errors.New("entity not found in cache")

	// ErrUnknownEntityType is returned when a mutation names an entity type
	// no cache was configured for.
	ErrUnknownEntityType = errors.New("unknown entity type")

	// ErrUnknownOperation is returned when a dispatched mutation carries an
	// operation other than create, update or delete.
	ErrUnknownOperation = errors.New("unknown mutation operation")

	// ErrEntityDeleted is returned when a dispatch targets a record whose
	// deletion is already queued. The record vanishes once the delete
	// confirms, so nothing dispatched after it can ever apply.
	ErrEntityDeleted = errors.New("entity has a pending deletion")

	// ErrNoConflict is returned when a conflict resolution call targets an
	// entity that is not in the conflict state.
	ErrNoConflict = errors.New("entity has no unresolved conflict")

	// ErrUnknownResolution is returned for a resolution value other than
	// accept-server or retry-mine.
	ErrUnknownResolution = errors.New("unknown conflict resolution")
)
