package models

// SyncState describes how far an entity record has diverged from the server.
type SyncState string

const (
	// StateClean means the record matches confirmed server state and has no
	// pending mutations.
	StateClean SyncState = "clean"
	// StatePending means at least one local mutation is queued but not yet
	// confirmed.
	StatePending SyncState = "pending"
	// StateConflict means the server rejected a mutation with a version
	// mismatch; the record holds both sides until the user decides.
	StateConflict SyncState = "conflict"
	// StateError means a mutation against the record failed terminally.
	StateError SyncState = "error"
)

// EntityRecord is the cache-materialised view of one business entity:
// confirmed server state plus optimistically applied pending mutations.
type EntityRecord struct {
	// ID is the entity identifier. Temporary (TempIDPrefix) until the first
	// create is confirmed, authoritative afterwards.
	ID string `json:"id"`

	// Version is the last server-confirmed version of the record.
	Version int64 `json:"version"`

	// Data is the UI-visible field set: server data overlaid with pending
	// mutation payloads.
	Data Payload `json:"data"`

	// PendingMutationIDs lists, in FIFO order, the queued mutations that
	// touch this record.
	PendingMutationIDs []string `json:"pending_mutation_ids,omitempty"`

	// SyncState is clean, pending, conflict or error. Non-empty
	// PendingMutationIDs implies a non-clean state.
	SyncState SyncState `json:"sync_state"`

	// Deleted marks a record with an optimistically applied, unconfirmed
	// delete. The record leaves the cache once the server confirms.
	Deleted bool `json:"deleted,omitempty"`

	// ConflictData and ConflictVersion hold the authoritative server side of
	// an unresolved version conflict.
	ConflictData    Payload `json:"conflict_data,omitempty"`
	ConflictVersion int64   `json:"conflict_version,omitempty"`

	// LastError is the surfaced text of a terminal failure.
	LastError string `json:"last_error,omitempty"`
}

// Clone returns a deep copy of the record.
func (r EntityRecord) Clone() EntityRecord {
	out := r
	out.Data = r.Data.Clone()
	out.ConflictData = r.ConflictData.Clone()
	if r.PendingMutationIDs != nil {
		out.PendingMutationIDs = make([]string, len(r.PendingMutationIDs))
		copy(out.PendingMutationIDs, r.PendingMutationIDs)
	}
	return out
}
