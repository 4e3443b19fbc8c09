package models

import "time"

// SyncPhase is the sync engine's externally visible state.
type SyncPhase string

const (
	PhaseIdle    SyncPhase = "idle"
	PhaseSyncing SyncPhase = "syncing"
	PhaseBackoff SyncPhase = "backoff"
	PhaseError   SyncPhase = "error"
)

// SyncSession is the volatile, per-process sync status. It is never
// persisted: an interrupted sync cannot be resumed mid-operation after a
// restart, the durable queue is the resumable source of truth.
type SyncSession struct {
	Phase              SyncPhase
	LastSyncAt         time.Time
	NextRetryAt        time.Time
	InFlightMutationID string
}

// SyncStats counts drain outcomes for the current process lifetime.
type SyncStats struct {
	Drained    int64
	Conflicted int64
	Failed     int64
}

// NetworkKind is the reported connectivity transport.
type NetworkKind string

const (
	NetworkWifi     NetworkKind = "wifi"
	NetworkCellular NetworkKind = "cellular"
	NetworkNone     NetworkKind = "none"
	NetworkUnknown  NetworkKind = "unknown"
)

// NetworkState is the volatile connectivity snapshot fed by the platform
// shell.
type NetworkState struct {
	Reachable bool
	Kind      NetworkKind
}
