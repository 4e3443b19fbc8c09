// Package netmon exposes the device connectivity state to the sync core.
//
// Reachability itself is detected by the platform shell (the mobile runtime
// has the OS-level connectivity callbacks); the shell pushes every change
// into [Monitor.SetState]. The sync engine subscribes to the resulting
// transition events and never polls.
package netmon

import (
	"sync"

	"github.com/avetrov/offsync/internal/logger"
	"github.com/avetrov/offsync/internal/store"
	"github.com/avetrov/offsync/models"
)

// EventKind names a connectivity transition.
type EventKind string

const (
	EventOnline      EventKind = "online"
	EventOffline     EventKind = "offline"
	EventTypeChanged EventKind = "typeChanged"
)

// Event is one connectivity transition together with the state after it.
type Event struct {
	Kind  EventKind
	State models.NetworkState
}

// Monitor is the sync engine's view of connectivity.
type Monitor interface {
	// State returns the current snapshot.
	State() models.NetworkState

	// Events returns the lazy, infinite stream of transitions. The channel
	// is buffered; when a slow consumer falls behind, intermediate
	// transitions are coalesced into the latest one.
	Events() <-chan Event

	// Close stops the event stream. SetState calls after Close are ignored.
	Close()
}

// PlatformMonitor is a [Monitor] fed by the host shell via SetState.
type PlatformMonitor struct {
	volatile *store.VolatileStore
	log      *logger.Logger

	mu     sync.Mutex
	state  models.NetworkState
	events chan Event
	closed bool
}

// NewPlatformMonitor returns a monitor in the "unknown, unreachable" state.
// Every accepted state change is mirrored into the volatile store so UI
// code can read connectivity without holding the monitor.
func NewPlatformMonitor(volatile *store.VolatileStore, log *logger.Logger) *PlatformMonitor {
	return &PlatformMonitor{
		volatile: volatile,
		log:      log,
		state:    models.NetworkState{Kind: models.NetworkUnknown},
		events:   make(chan Event, 16),
	}
}

// State implements [Monitor].
func (m *PlatformMonitor) State() models.NetworkState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Events implements [Monitor].
func (m *PlatformMonitor) Events() <-chan Event {
	return m.events
}

// SetState records a new connectivity snapshot and emits the corresponding
// transition event. Equal snapshots are dropped silently.
func (m *PlatformMonitor) SetState(next models.NetworkState) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed || next == m.state {
		return
	}

	prev := m.state
	m.state = next
	m.volatile.SetNetwork(next)

	var kind EventKind
	switch {
	case next.Reachable && !prev.Reachable:
		kind = EventOnline
	case !next.Reachable && prev.Reachable:
		kind = EventOffline
	default:
		kind = EventTypeChanged
	}

	m.log.Debug().
		Str("kind", string(kind)).
		Str("network", string(next.Kind)).
		Bool("reachable", next.Reachable).
		Msg("connectivity transition")

	ev := Event{Kind: kind, State: next}
	select {
	case m.events <- ev:
	default:
		// Consumer fell behind: drop the oldest event and keep the newest,
		// the engine only cares about the latest reachable state.
		select {
		case <-m.events:
		default:
		}
		m.events <- ev
	}
}

// Close implements [Monitor].
func (m *PlatformMonitor) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	m.closed = true
	close(m.events)
}
