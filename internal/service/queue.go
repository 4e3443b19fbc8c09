package service

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/avetrov/offsync/internal/logger"
	"github.com/avetrov/offsync/internal/store"
	"github.com/avetrov/offsync/models"
)

// MutationQueue is the ordered log of locally-originated, not-yet-confirmed
// mutations. Order is strictly FIFO by enqueue time across all entities:
// global ordering preserves causality when one user workflow touches several
// entities (a voucher referencing inventory created offline moments before).
//
// Every change is written through to the durable "offline" partition, so a
// process restart rehydrates the queue exactly as it was.
type MutationQueue struct {
	mu      sync.RWMutex
	items   []models.Mutation
	durable store.DurableStore
	ceiling int
	log     *logger.Logger
}

// NewMutationQueue constructs an empty queue persisting through durable.
// ceiling is the retry ceiling: a mutation whose AttemptCount reaches it is
// failed terminally instead of retried forever.
func NewMutationQueue(durable store.DurableStore, ceiling int, log *logger.Logger) *MutationQueue {
	if ceiling <= 0 {
		ceiling = 3
	}
	return &MutationQueue{
		items:   make([]models.Mutation, 0),
		durable: durable,
		ceiling: ceiling,
		log:     log,
	}
}

// Rehydrate loads the persisted queue. Must complete before any mutation is
// dispatched or drained; the app facade enforces that ordering. An empty or
// never-persisted partition leaves the queue empty.
func (q *MutationQueue) Rehydrate(ctx context.Context) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	var items []models.Mutation
	err := q.durable.Rehydrate(ctx, store.PartitionOffline, &items)
	if errors.Is(err, store.ErrPartitionNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("rehydrate mutation queue: %w", err)
	}

	q.items = items
	q.log.Info().Int("queued", len(items)).Msg("mutation queue rehydrated")
	return nil
}

// Enqueue appends the mutation and persists the queue. The caller must have
// already applied the mutation optimistically to the entity cache, before or
// atomically with this call, so UI state and the durable log never diverge.
// Returns the assigned queue position.
func (q *MutationQueue) Enqueue(ctx context.Context, m models.Mutation) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.items = append(q.items, m.Clone())
	if err := q.persistLocked(ctx); err != nil {
		// Roll the append back: a mutation that is not durable must not be
		// reported as enqueued.
		q.items = q.items[:len(q.items)-1]
		return 0, err
	}

	return len(q.items) - 1, nil
}

// PeekNext returns the oldest mutation not skipped by the blocked predicate.
// The predicate lets the engine hold back entities with unresolved conflicts
// and mutations whose payloads still reference unresolved temporary ids,
// without the queue knowing about cache state.
func (q *MutationQueue) PeekNext(blocked func(models.Mutation) bool) (models.Mutation, bool) {
	q.mu.RLock()
	defer q.mu.RUnlock()

	// Skipping one entity's mutations must not unblock a later mutation of
	// the same entity: once an entity is skipped, every following mutation
	// of that entity is skipped too, preserving per-entity FIFO.
	skippedEntities := make(map[string]struct{})
	for _, m := range q.items {
		if _, held := skippedEntities[m.EntityKey()]; held {
			continue
		}
		if blocked != nil && blocked(m) {
			skippedEntities[m.EntityKey()] = struct{}{}
			continue
		}
		return m.Clone(), true
	}
	return models.Mutation{}, false
}

// Acknowledge removes the mutation after server-confirmed success.
func (q *MutationQueue) Acknowledge(ctx context.Context, mutationID string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	idx := q.indexLocked(mutationID)
	if idx < 0 {
		return fmt.Errorf("acknowledge %s: %w", mutationID, ErrMutationNotFound)
	}

	q.items = append(q.items[:idx], q.items[idx+1:]...)
	return q.persistLocked(ctx)
}

// MarkFailed records a server rejection: AttemptCount is incremented and
// LastError set. When the attempt count reaches the retry ceiling the
// mutation is removed from the queue and returned with terminal=true; the
// caller surfaces it to the UI with the original payload preserved for
// manual retry.
//
// Transport-level failures never reach MarkFailed: they are not evidence
// the mutation itself is bad, so they do not count toward the ceiling.
func (q *MutationQueue) MarkFailed(ctx context.Context, mutationID string, cause error) (models.Mutation, bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	idx := q.indexLocked(mutationID)
	if idx < 0 {
		return models.Mutation{}, false, fmt.Errorf("mark failed %s: %w", mutationID, ErrMutationNotFound)
	}

	q.items[idx].AttemptCount++
	q.items[idx].LastError = cause.Error()

	terminal := q.items[idx].AttemptCount >= q.ceiling
	failed := q.items[idx].Clone()
	if terminal {
		q.items = append(q.items[:idx], q.items[idx+1:]...)
		q.log.Warn().
			Str("mutation_id", mutationID).
			Str("entity", failed.EntityKey()).
			Int("attempts", failed.AttemptCount).
			Msg("mutation failed terminally, removed from queue")
	}

	if err := q.persistLocked(ctx); err != nil {
		return models.Mutation{}, false, err
	}
	return failed, terminal, nil
}

// Len returns the number of queued mutations.
func (q *MutationQueue) Len() int {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return len(q.items)
}

// Get returns a copy of the queued mutation with the given id.
func (q *MutationQueue) Get(mutationID string) (models.Mutation, bool) {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if idx := q.indexLocked(mutationID); idx >= 0 {
		return q.items[idx].Clone(), true
	}
	return models.Mutation{}, false
}

// PendingFor returns, in FIFO order, copies of the queued mutations touching
// one entity.
func (q *MutationQueue) PendingFor(entityType models.EntityType, entityID string) []models.Mutation {
	q.mu.RLock()
	defer q.mu.RUnlock()

	var out []models.Mutation
	for _, m := range q.items {
		if m.EntityType == entityType && m.EntityID == entityID {
			out = append(out, m.Clone())
		}
	}
	return out
}

// Snapshot returns a copy of the whole queue in order, for cache replay at
// startup.
func (q *MutationQueue) Snapshot() []models.Mutation {
	q.mu.RLock()
	defer q.mu.RUnlock()

	out := make([]models.Mutation, 0, len(q.items))
	for _, m := range q.items {
		out = append(out, m.Clone())
	}
	return out
}

// RewriteID replaces every occurrence of oldID (entity ids and payload
// references alike) with the server-assigned newID. Called during create
// reconciliation, before any mutation referencing the temporary id can be
// drained.
func (q *MutationQueue) RewriteID(ctx context.Context, oldID, newID string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	changed := false
	for i := range q.items {
		if q.items[i].EntityID == oldID {
			q.items[i].EntityID = newID
			changed = true
		}
		if q.items[i].Payload.RewriteRefs(oldID, newID) {
			changed = true
		}
	}

	if !changed {
		return nil
	}
	return q.persistLocked(ctx)
}

// Rebase sets the mutation's BaseVersion to version. Used by the retry-mine
// conflict resolution to re-derive the local change from the server version
// that won.
func (q *MutationQueue) Rebase(ctx context.Context, mutationID string, version int64) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	idx := q.indexLocked(mutationID)
	if idx < 0 {
		return fmt.Errorf("rebase %s: %w", mutationID, ErrMutationNotFound)
	}

	v := version
	q.items[idx].BaseVersion = &v
	q.items[idx].AttemptCount = 0
	q.items[idx].LastError = ""
	return q.persistLocked(ctx)
}

// RebaseFor moves every remaining queued mutation for an entity onto the
// version the server just confirmed. Offline edits are dispatched against
// the last server-confirmed version, so without the rebase the second of
// two sequential edits would still carry the pre-drain base version and
// trip a version check the user never caused.
func (q *MutationQueue) RebaseFor(ctx context.Context, entityType models.EntityType, entityID string, version int64) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	changed := false
	for i := range q.items {
		if q.items[i].EntityType != entityType || q.items[i].EntityID != entityID {
			continue
		}
		if q.items[i].Operation == models.OpCreate {
			continue
		}
		v := version
		q.items[i].BaseVersion = &v
		changed = true
	}

	if !changed {
		return nil
	}
	return q.persistLocked(ctx)
}

// RemoveFor drops every queued mutation touching one entity and returns
// their ids. Used by the accept-server conflict resolution.
func (q *MutationQueue) RemoveFor(ctx context.Context, entityType models.EntityType, entityID string) ([]string, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	var removed []string
	kept := q.items[:0]
	for _, m := range q.items {
		if m.EntityType == entityType && m.EntityID == entityID {
			removed = append(removed, m.ID)
			continue
		}
		kept = append(kept, m)
	}
	q.items = kept

	if len(removed) == 0 {
		return nil, nil
	}
	if err := q.persistLocked(ctx); err != nil {
		return nil, err
	}
	return removed, nil
}

func (q *MutationQueue) indexLocked(mutationID string) int {
	for i, m := range q.items {
		if m.ID == mutationID {
			return i
		}
	}
	return -1
}

func (q *MutationQueue) persistLocked(ctx context.Context) error {
	if err := q.durable.Persist(ctx, store.PartitionOffline, q.items); err != nil {
		return fmt.Errorf("persist mutation queue: %w", err)
	}
	return nil
}
