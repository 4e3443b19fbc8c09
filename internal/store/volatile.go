package store

import (
	"sync"
	"time"

	"github.com/avetrov/offsync/models"
)

// VolatileStore holds the state that deliberately does not survive a
// restart: the sync session and the network snapshot. Constructed fresh at
// process start, so SyncSession always begins in PhaseIdle regardless of
// what the engine was doing when the previous process died.
type VolatileStore struct {
	mu      sync.RWMutex
	session models.SyncSession
	network models.NetworkState
	stats   models.SyncStats
}

// NewVolatileStore returns a store in the initial state: idle session,
// unknown network.
func NewVolatileStore() *VolatileStore {
	return &VolatileStore{
		session: models.SyncSession{Phase: models.PhaseIdle},
		network: models.NetworkState{Kind: models.NetworkUnknown},
	}
}

// Session returns a copy of the current sync session.
func (v *VolatileStore) Session() models.SyncSession {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.session
}

// SetPhase records the engine's phase transition.
func (v *VolatileStore) SetPhase(phase models.SyncPhase) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.session.Phase = phase
	if phase != models.PhaseBackoff {
		v.session.NextRetryAt = time.Time{}
	}
	if phase != models.PhaseSyncing {
		v.session.InFlightMutationID = ""
	}
}

// SetInFlight records the mutation currently awaiting a server response.
func (v *VolatileStore) SetInFlight(mutationID string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.session.InFlightMutationID = mutationID
}

// SetNextRetry records when the backoff timer fires.
func (v *VolatileStore) SetNextRetry(at time.Time) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.session.NextRetryAt = at
}

// MarkSynced records a completed drain cycle.
func (v *VolatileStore) MarkSynced(at time.Time) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.session.LastSyncAt = at
}

// Network returns the current connectivity snapshot.
func (v *VolatileStore) Network() models.NetworkState {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.network
}

// SetNetwork replaces the connectivity snapshot.
func (v *VolatileStore) SetNetwork(state models.NetworkState) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.network = state
}

// Stats returns a copy of the drain counters.
func (v *VolatileStore) Stats() models.SyncStats {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.stats
}

// CountDrained increments the confirmed-mutation counter.
func (v *VolatileStore) CountDrained() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.stats.Drained++
}

// CountConflicted increments the conflict counter.
func (v *VolatileStore) CountConflicted() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.stats.Conflicted++
}

// CountFailed increments the terminal-failure counter.
func (v *VolatileStore) CountFailed() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.stats.Failed++
}
