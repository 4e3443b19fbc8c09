package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/avetrov/offsync/internal/adapter"
	"github.com/avetrov/offsync/internal/config"
	"github.com/avetrov/offsync/internal/logger"
	"github.com/avetrov/offsync/internal/store"
	"github.com/avetrov/offsync/models"
)

// Resolution is the user's decision on a version conflict.
type Resolution string

const (
	// ResolutionAcceptServer discards the local divergence and takes the
	// server's record.
	ResolutionAcceptServer Resolution = "accept-server"
	// ResolutionRetryMine rebases the local mutation onto the server version
	// and retries it.
	ResolutionRetryMine Resolution = "retry-mine"
)

// SyncEngine drains the mutation queue against the remote API, one mutation
// at a time, in FIFO order, with a single in-flight call.
//
// Phases: idle → syncing → {idle | backoff | error}; backoff → syncing after
// the timer; error is sticky until an explicit user retry or a connectivity
// transition re-triggers a drain. The phase lives in the volatile store and
// resets to idle on every process start.
type SyncEngine struct {
	queue    *MutationQueue
	caches   *CacheSet
	adapter  adapter.ServerAdapter
	volatile *store.VolatileStore
	log      *logger.Logger

	backoffBase time.Duration
	backoffCap  time.Duration

	// gate decides whether the current network state permits draining.
	// Defaults to plain reachability; the app narrows it with the
	// sync-on-cellular setting.
	gate func(models.NetworkState) bool

	// drainMu serializes drain cycles and conflict resolutions; mutation
	// dispatch stays concurrent and is picked up by the running cycle.
	drainMu sync.Mutex

	nudge chan struct{}
}

// NewSyncEngine wires the engine to its collaborators. The engine never
// touches queue or cache internals directly; every state change goes
// through their methods so the invariants have one enforcement point.
func NewSyncEngine(
	queue *MutationQueue,
	caches *CacheSet,
	serverAdapter adapter.ServerAdapter,
	volatile *store.VolatileStore,
	cfg config.Sync,
	log *logger.Logger,
) *SyncEngine {
	if cfg.BackoffBase <= 0 {
		cfg.BackoffBase = 500 * time.Millisecond
	}
	if cfg.BackoffCap < cfg.BackoffBase {
		cfg.BackoffCap = 30 * time.Second
	}
	return &SyncEngine{
		queue:       queue,
		caches:      caches,
		adapter:     serverAdapter,
		volatile:    volatile,
		log:         log,
		backoffBase: cfg.BackoffBase,
		backoffCap:  cfg.BackoffCap,
		gate:        func(state models.NetworkState) bool { return state.Reachable },
		nudge:       make(chan struct{}, 1),
	}
}

// SetGate replaces the connectivity gate. Must be called before the engine
// starts draining.
func (e *SyncEngine) SetGate(gate func(models.NetworkState) bool) {
	if gate != nil {
		e.gate = gate
	}
}

// TriggerSync requests a drain cycle. Non-blocking; coalesces with an
// already pending trigger. Also the explicit user retry that clears the
// sticky error phase.
func (e *SyncEngine) TriggerSync() {
	select {
	case e.nudge <- struct{}{}:
	default:
	}
}

// Nudges exposes the trigger channel to the sync job.
func (e *SyncEngine) Nudges() <-chan struct{} {
	return e.nudge
}

// Drain runs one drain cycle: processes queued mutations until the queue is
// empty, every remaining entity is blocked, connectivity is lost, or ctx is
// cancelled. Cancellation is honored between mutations only; an in-flight
// call is always awaited and reconciled first.
func (e *SyncEngine) Drain(ctx context.Context) error {
	e.drainMu.Lock()
	defer e.drainMu.Unlock()

	if !e.gate(e.volatile.Network()) {
		e.volatile.SetPhase(models.PhaseIdle)
		return nil
	}
	if e.queue.Len() == 0 {
		e.volatile.SetPhase(models.PhaseIdle)
		return nil
	}

	e.volatile.SetPhase(models.PhaseSyncing)
	backoff := e.newBackoff()

	for {
		if err := ctx.Err(); err != nil {
			e.volatile.SetPhase(models.PhaseIdle)
			return err
		}

		m, ok := e.queue.PeekNext(e.blocked)
		if !ok {
			e.volatile.SetPhase(models.PhaseIdle)
			// Blocked mutations may still be queued; only a fully empty
			// queue counts as a completed sync.
			if e.queue.Len() == 0 {
				e.volatile.MarkSynced(time.Now())
			}
			return nil
		}

		e.volatile.SetInFlight(m.ID)
		record, err := e.push(ctx, m)

		var conflict *adapter.ConflictError
		switch {
		case err == nil:
			if cerr := e.confirm(ctx, m, record); cerr != nil {
				e.volatile.SetPhase(models.PhaseError)
				return cerr
			}
			e.volatile.CountDrained()
			backoff = e.newBackoff()

		case errors.As(err, &conflict):
			if cerr := e.holdConflict(m, conflict); cerr != nil {
				e.volatile.SetPhase(models.PhaseError)
				return cerr
			}
			e.volatile.CountConflicted()
			// Entity is now blocked; the loop continues with the next
			// unblocked entity's oldest mutation.

		case errors.Is(err, adapter.ErrRejected):
			if cerr := e.reject(ctx, m, err); cerr != nil {
				e.volatile.SetPhase(models.PhaseError)
				return cerr
			}

		case errors.Is(err, adapter.ErrUnauthorized):
			e.log.Warn().Str("mutation_id", m.ID).Msg("remote rejected token, sync halted")
			e.volatile.SetPhase(models.PhaseError)
			return err

		default:
			// Transport failure or 5xx: not evidence the mutation is bad.
			// Back off and retry the same mutation without incrementing
			// its attempt count.
			if done := e.backOff(ctx, backoff, m, err); done != nil {
				if errors.Is(done, errConnectivityLost) {
					return nil
				}
				return done
			}
		}
	}
}

// ResolveConflict applies the user's decision to a conflicted entity and,
// for retry-mine, nudges a new drain cycle.
func (e *SyncEngine) ResolveConflict(ctx context.Context, entityType models.EntityType, entityID string, resolution Resolution) error {
	e.drainMu.Lock()
	defer e.drainMu.Unlock()

	switch resolution {
	case ResolutionAcceptServer:
		dropped, err := e.caches.acceptServer(entityType, entityID)
		if err != nil {
			return err
		}
		if _, err = e.queue.RemoveFor(ctx, entityType, entityID); err != nil {
			return err
		}
		e.log.Info().
			Str("entity", string(entityType)+"/"+entityID).
			Int("dropped_mutations", len(dropped)).
			Msg("conflict resolved: server accepted")

	case ResolutionRetryMine:
		mutationID, version, err := e.caches.retryMine(entityType, entityID)
		if err != nil {
			return err
		}
		if err = e.queue.Rebase(ctx, mutationID, version); err != nil {
			return err
		}
		e.log.Info().
			Str("entity", string(entityType)+"/"+entityID).
			Str("mutation_id", mutationID).
			Int64("rebased_to", version).
			Msg("conflict resolved: local change rebased")
		e.TriggerSync()

	default:
		return fmt.Errorf("resolution %q: %w", resolution, ErrUnknownResolution)
	}

	return nil
}

// blocked is the PeekNext predicate: skip entities with an unresolved
// conflict, and mutations whose payloads still reference an unresolved
// temporary id (their create has not been confirmed, so the reference would
// ship a tmp- id to the server).
func (e *SyncEngine) blocked(m models.Mutation) bool {
	if e.caches.IsConflictBlocked(m.EntityType, m.EntityID) {
		return true
	}
	return m.Payload.HasTempRef(m.EntityID)
}

func (e *SyncEngine) push(ctx context.Context, m models.Mutation) (models.ServerRecord, error) {
	req := models.MutationRequest{Payload: m.Payload, BaseVersion: m.BaseVersion}

	switch m.Operation {
	case models.OpCreate:
		return e.adapter.Create(ctx, m.EntityType, req)
	case models.OpUpdate:
		return e.adapter.Update(ctx, m.EntityType, m.EntityID, req)
	case models.OpDelete:
		return models.ServerRecord{}, e.adapter.Delete(ctx, m.EntityType, m.EntityID, req)
	default:
		return models.ServerRecord{}, fmt.Errorf("operation %q: %w", m.Operation, adapter.ErrRejected)
	}
}

// confirm acknowledges a server-accepted mutation and reconciles the cache.
// For creates the temporary id is remapped everywhere first, before any
// queued mutation referencing it can be drained.
func (e *SyncEngine) confirm(ctx context.Context, m models.Mutation, record models.ServerRecord) error {
	if err := e.queue.Acknowledge(ctx, m.ID); err != nil {
		return err
	}

	entityID := m.EntityID
	if m.Operation == models.OpCreate && record.ID != "" && record.ID != m.EntityID {
		if err := e.caches.RemapID(m.EntityType, m.EntityID, record.ID); err != nil {
			return err
		}
		if err := e.queue.RewriteID(ctx, m.EntityID, record.ID); err != nil {
			return err
		}
		entityID = record.ID
	}

	if m.Operation == models.OpDelete {
		if err := e.caches.Drop(m.EntityType, entityID); err != nil {
			return err
		}
		e.logOutcome(m, "confirmed delete")
		return nil
	}

	// Later offline edits to this entity were dispatched against the
	// pre-drain version; move them onto the version the server just
	// assigned so they do not arrive as spurious conflicts.
	if err := e.queue.RebaseFor(ctx, m.EntityType, entityID, record.Version); err != nil {
		return err
	}

	remaining := e.queue.PendingFor(m.EntityType, entityID)
	if err := e.caches.Reconcile(m.EntityType, entityID, record, []string{m.ID}, remaining); err != nil {
		return err
	}
	e.logOutcome(m, "confirmed")
	return nil
}

func (e *SyncEngine) holdConflict(m models.Mutation, conflict *adapter.ConflictError) error {
	e.log.Warn().
		Str("mutation_id", m.ID).
		Str("entity", m.EntityKey()).
		Int64("server_version", conflict.CurrentVersion).
		Msg("version conflict, entity held for user resolution")

	return e.caches.MarkConflict(m.EntityType, m.EntityID, conflict.CurrentData, conflict.CurrentVersion)
}

func (e *SyncEngine) reject(ctx context.Context, m models.Mutation, cause error) error {
	failed, terminal, err := e.queue.MarkFailed(ctx, m.ID, cause)
	if err != nil {
		return err
	}
	if !terminal {
		return nil
	}

	e.volatile.CountFailed()
	e.log.Error().
		Str("mutation_id", failed.ID).
		Str("entity", failed.EntityKey()).
		Str("last_error", failed.LastError).
		Msg("mutation discarded after retry ceiling")

	// The record keeps the failed payload's effect and the error text so
	// the user can retry manually from the UI.
	e.caches.ClearPending(m.EntityType, m.EntityID, []string{m.ID})
	return e.caches.MarkError(m.EntityType, m.EntityID, failed.LastError)
}

// backOff waits out the next exponential delay. Returns a non-nil error only
// when the cycle must end (ctx cancelled); loss of connectivity ends the
// cycle silently, the next online transition restarts it.
func (e *SyncEngine) backOff(ctx context.Context, backoff retry.Backoff, m models.Mutation, cause error) error {
	delay, stop := backoff.Next()
	if stop {
		delay = e.backoffCap
	}

	e.log.Debug().
		Str("mutation_id", m.ID).
		Dur("delay", delay).
		Err(cause).
		Msg("recoverable failure, backing off")

	e.volatile.SetPhase(models.PhaseBackoff)
	e.volatile.SetNextRetry(time.Now().Add(delay))

	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		e.volatile.SetPhase(models.PhaseIdle)
		return ctx.Err()
	case <-timer.C:
	}

	if !e.gate(e.volatile.Network()) {
		e.volatile.SetPhase(models.PhaseIdle)
		return errConnectivityLost
	}
	e.volatile.SetPhase(models.PhaseSyncing)
	return nil
}

func (e *SyncEngine) newBackoff() retry.Backoff {
	return retry.WithCappedDuration(e.backoffCap, retry.NewExponential(e.backoffBase))
}

func (e *SyncEngine) logOutcome(m models.Mutation, outcome string) {
	e.log.Info().
		Str("mutation_id", m.ID).
		Str("entity", m.EntityKey()).
		Str("operation", string(m.Operation)).
		Msg(outcome)
}

// errConnectivityLost ends a drain cycle without being surfaced: the sync
// job swallows it and waits for the next online transition.
var errConnectivityLost = errors.New("connectivity lost during backoff")
