package models

import (
	"strings"
	"time"
)

// EntityType identifies the business record family a mutation or cache
// operates on.
type EntityType string

const (
	EntityVoucher   EntityType = "voucher"
	EntityInventory EntityType = "inventory"
	EntityCompany   EntityType = "company"
)

// Operation is the kind of change a mutation describes.
type Operation string

const (
	OpCreate Operation = "create"
	OpUpdate Operation = "update"
	OpDelete Operation = "delete"
)

// TempIDPrefix marks client-assigned entity identifiers that have not yet
// been replaced by a server-authoritative id.
const TempIDPrefix = "tmp-"

// IsTempID reports whether id is a client-side temporary identifier.
func IsTempID(id string) bool {
	return strings.HasPrefix(id, TempIDPrefix)
}

// Mutation is a single locally-originated, not-yet-confirmed change to one
// business entity. Once enqueued a mutation is immutable except for
// AttemptCount and LastError, which the queue maintains on failed sync
// attempts.
type Mutation struct {
	// ID is the client-generated unique identifier of the mutation itself.
	ID string `json:"id"`

	// EntityType names the cache the mutation belongs to.
	EntityType EntityType `json:"entity_type"`

	// EntityID is the identifier of the affected entity. For OpCreate this
	// is a temporary id (TempIDPrefix) until the server assigns the real one.
	EntityID string `json:"entity_id"`

	// Operation is create, update or delete.
	Operation Operation `json:"operation"`

	// Payload carries the field values the mutation writes. Empty for
	// OpDelete.
	Payload Payload `json:"payload,omitempty"`

	// BaseVersion is the server version the mutation was derived from.
	// nil for OpCreate, where no server record exists yet.
	BaseVersion *int64 `json:"base_version,omitempty"`

	// CreatedAt orders mutations globally across all entities.
	CreatedAt time.Time `json:"created_at"`

	// AttemptCount counts server-rejected sync attempts. Transport-level
	// failures do not increment it.
	AttemptCount int `json:"attempt_count"`

	// LastError holds the text of the most recent rejection, if any.
	LastError string `json:"last_error,omitempty"`
}

// EntityKey returns the cross-type identity of the mutated entity, used to
// group pending mutations and conflict blocks per entity instance.
func (m Mutation) EntityKey() string {
	return string(m.EntityType) + "/" + m.EntityID
}

// Clone returns a deep copy of the mutation, so queue snapshots handed to
// callers can never alias the queue's own state.
func (m Mutation) Clone() Mutation {
	out := m
	out.Payload = m.Payload.Clone()
	if m.BaseVersion != nil {
		v := *m.BaseVersion
		out.BaseVersion = &v
	}
	return out
}
