package models

// MutationRequest is the body sent to the remote API for create, update and
// delete calls. The server checks BaseVersion against the current record
// version for optimistic concurrency.
type MutationRequest struct {
	Payload     Payload `json:"payload,omitempty"`
	BaseVersion *int64  `json:"baseVersion,omitempty"`
}

// ServerRecord is the server's confirmed view of an entity as returned by
// successful mutation and fetch calls.
type ServerRecord struct {
	ID      string  `json:"id"`
	Version int64   `json:"version"`
	Data    Payload `json:"data"`
}

// ConflictResponse is the 409 body returned on a version mismatch. It carries
// the authoritative current state so the client can surface the conflict
// without an extra round trip.
type ConflictResponse struct {
	Code           int     `json:"code"`
	CurrentVersion int64   `json:"currentVersion"`
	CurrentData    Payload `json:"currentData"`
}
