package service

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"dario.cat/mergo"

	"github.com/avetrov/offsync/internal/logger"
	"github.com/avetrov/offsync/models"
)

// EntityCache is the materialized view of one entity type: confirmed server
// state overlaid with pending mutation payloads. Records are owned
// exclusively by the cache; callers always receive deep copies.
type EntityCache struct {
	entityType models.EntityType

	mu      sync.RWMutex
	records map[string]*models.EntityRecord
}

func newEntityCache(entityType models.EntityType) *EntityCache {
	return &EntityCache{
		entityType: entityType,
		records:    make(map[string]*models.EntityRecord),
	}
}

// GetAll returns copies of every record, ordered by id for stable UI lists.
func (c *EntityCache) GetAll() []models.EntityRecord {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]models.EntityRecord, 0, len(c.records))
	for _, rec := range c.records {
		out = append(out, rec.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// GetByID returns a copy of one record.
func (c *EntityCache) GetByID(id string) (models.EntityRecord, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	rec, ok := c.records[id]
	if !ok {
		return models.EntityRecord{}, false
	}
	return rec.Clone(), true
}

// applyOptimistic reflects a queued mutation in the UI-visible state
// immediately, before server confirmation.
func (c *EntityCache) applyOptimistic(m models.Mutation) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	rec, ok := c.records[m.EntityID]
	if !ok {
		if m.Operation != models.OpCreate {
			return fmt.Errorf("optimistic %s on %s: %w", m.Operation, m.EntityID, ErrEntityNotFound)
		}
		rec = &models.EntityRecord{ID: m.EntityID}
		c.records[m.EntityID] = rec
	}

	switch m.Operation {
	case models.OpCreate:
		rec.Data = m.Payload.Clone()
	case models.OpUpdate:
		if err := overlayPayload(rec, m.Payload); err != nil {
			return err
		}
	case models.OpDelete:
		rec.Deleted = true
	}

	rec.PendingMutationIDs = append(rec.PendingMutationIDs, m.ID)
	rec.SyncState = models.StatePending
	return nil
}

// reconcile merges the server-confirmed record, clears the resolved
// mutations, and re-overlays whatever is still pending so optimistic edits
// stay visible. Called only by the sync engine.
func (c *EntityCache) reconcile(entityID string, server models.ServerRecord, resolvedIDs []string, remaining []models.Mutation) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	rec, ok := c.records[entityID]
	if !ok {
		rec = &models.EntityRecord{ID: entityID}
		c.records[entityID] = rec
	}

	resolved := make(map[string]struct{}, len(resolvedIDs))
	for _, id := range resolvedIDs {
		resolved[id] = struct{}{}
	}
	kept := rec.PendingMutationIDs[:0]
	for _, id := range rec.PendingMutationIDs {
		if _, ok := resolved[id]; !ok {
			kept = append(kept, id)
		}
	}
	rec.PendingMutationIDs = kept

	rec.Version = server.Version
	rec.Data = server.Data.Clone()
	rec.Deleted = false
	rec.ConflictData = nil
	rec.ConflictVersion = 0
	rec.LastError = ""

	for _, m := range remaining {
		switch m.Operation {
		case models.OpUpdate:
			if err := overlayPayload(rec, m.Payload); err != nil {
				return err
			}
		case models.OpDelete:
			rec.Deleted = true
		}
	}

	if len(rec.PendingMutationIDs) == 0 {
		rec.SyncState = models.StateClean
	} else {
		rec.SyncState = models.StatePending
	}
	return nil
}

// drop removes a record after a confirmed delete.
func (c *EntityCache) drop(entityID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.records, entityID)
}

// markConflict stashes the authoritative server side next to the diverged
// local data and freezes the entity until the user decides.
func (c *EntityCache) markConflict(entityID string, serverData models.Payload, serverVersion int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	rec, ok := c.records[entityID]
	if !ok {
		return fmt.Errorf("mark conflict on %s: %w", entityID, ErrEntityNotFound)
	}

	rec.SyncState = models.StateConflict
	rec.ConflictData = serverData.Clone()
	rec.ConflictVersion = serverVersion
	return nil
}

// markError surfaces a terminal failure on the record.
func (c *EntityCache) markError(entityID, message string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	rec, ok := c.records[entityID]
	if !ok {
		return fmt.Errorf("mark error on %s: %w", entityID, ErrEntityNotFound)
	}

	rec.SyncState = models.StateError
	rec.LastError = message
	return nil
}

// clearPending removes the given mutation ids from the record's pending
// list, normalising SyncState afterwards.
func (c *EntityCache) clearPending(entityID string, mutationIDs []string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	rec, ok := c.records[entityID]
	if !ok {
		return
	}

	drop := make(map[string]struct{}, len(mutationIDs))
	for _, id := range mutationIDs {
		drop[id] = struct{}{}
	}
	kept := rec.PendingMutationIDs[:0]
	for _, id := range rec.PendingMutationIDs {
		if _, ok := drop[id]; !ok {
			kept = append(kept, id)
		}
	}
	rec.PendingMutationIDs = kept
	if len(rec.PendingMutationIDs) == 0 && rec.SyncState == models.StatePending {
		rec.SyncState = models.StateClean
	}
}

// acceptServer resolves a conflict by taking the server's side: local
// divergence is discarded, the record becomes clean at the server version.
// Returns the pending mutation ids the queue must drop.
func (c *EntityCache) acceptServer(entityID string) ([]string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	rec, ok := c.records[entityID]
	if !ok {
		return nil, fmt.Errorf("accept server on %s: %w", entityID, ErrEntityNotFound)
	}
	if rec.SyncState != models.StateConflict {
		return nil, fmt.Errorf("accept server on %s: %w", entityID, ErrNoConflict)
	}

	dropped := rec.PendingMutationIDs
	rec.PendingMutationIDs = nil
	rec.Data = rec.ConflictData
	rec.Version = rec.ConflictVersion
	rec.ConflictData = nil
	rec.ConflictVersion = 0
	rec.Deleted = false
	rec.SyncState = models.StateClean
	return dropped, nil
}

// retryMine resolves a conflict by keeping the local side: the record is
// rebased onto the server version that won and unblocked for draining.
// Returns the id of the oldest pending mutation, which the queue rebases.
func (c *EntityCache) retryMine(entityID string) (string, int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	rec, ok := c.records[entityID]
	if !ok {
		return "", 0, fmt.Errorf("retry mine on %s: %w", entityID, ErrEntityNotFound)
	}
	if rec.SyncState != models.StateConflict {
		return "", 0, fmt.Errorf("retry mine on %s: %w", entityID, ErrNoConflict)
	}

	version := rec.ConflictVersion
	rec.Version = version
	rec.ConflictData = nil
	rec.ConflictVersion = 0
	rec.SyncState = models.StatePending

	if len(rec.PendingMutationIDs) == 0 {
		return "", 0, fmt.Errorf("retry mine on %s: %w", entityID, ErrMutationNotFound)
	}
	return rec.PendingMutationIDs[0], version, nil
}

// remap renames a record key after the server assigned the authoritative id.
func (c *EntityCache) remap(oldID, newID string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	rec, ok := c.records[oldID]
	if !ok {
		return
	}
	delete(c.records, oldID)
	rec.ID = newID
	c.records[newID] = rec
}

// rewriteRefs rewrites references to oldID inside every record's data.
func (c *EntityCache) rewriteRefs(oldID, newID string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, rec := range c.records {
		rec.Data.RewriteRefs(oldID, newID)
		rec.ConflictData.RewriteRefs(oldID, newID)
	}
}

// ensureRecord creates a stub record so a replayed update or delete has a
// base to land on when the server could not be fetched yet (offline
// restart). The stub stays pending until the first reconcile fills it in.
func (c *EntityCache) ensureRecord(entityID string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.records[entityID]; !ok {
		c.records[entityID] = &models.EntityRecord{ID: entityID, SyncState: models.StatePending}
	}
}

// seed installs clean server records, replacing whatever the cache held.
func (c *EntityCache) seed(records []models.ServerRecord) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.records = make(map[string]*models.EntityRecord, len(records))
	for _, sr := range records {
		c.records[sr.ID] = &models.EntityRecord{
			ID:        sr.ID,
			Version:   sr.Version,
			Data:      sr.Data.Clone(),
			SyncState: models.StateClean,
		}
	}
}

func overlayPayload(rec *models.EntityRecord, payload models.Payload) error {
	if rec.Data == nil {
		rec.Data = models.Payload{}
	}
	dst := map[string]any(rec.Data)
	if err := mergo.Map(&dst, map[string]any(payload.Clone()), mergo.WithOverride); err != nil {
		return fmt.Errorf("overlay payload: %w", err)
	}
	rec.Data = models.Payload(dst)
	return nil
}

// CacheSet groups the per-entity-type caches behind one façade the engine
// and the app facade share.
type CacheSet struct {
	caches map[models.EntityType]*EntityCache
	log    *logger.Logger
}

// NewCacheSet constructs caches for the given entity types.
func NewCacheSet(log *logger.Logger, types ...models.EntityType) *CacheSet {
	caches := make(map[models.EntityType]*EntityCache, len(types))
	for _, t := range types {
		caches[t] = newEntityCache(t)
	}
	return &CacheSet{caches: caches, log: log}
}

// Cache returns the cache for one entity type.
func (s *CacheSet) Cache(t models.EntityType) (*EntityCache, error) {
	c, ok := s.caches[t]
	if !ok {
		return nil, fmt.Errorf("entity type %q: %w", t, ErrUnknownEntityType)
	}
	return c, nil
}

// ApplyOptimistic routes the mutation to its cache.
func (s *CacheSet) ApplyOptimistic(m models.Mutation) error {
	c, err := s.Cache(m.EntityType)
	if err != nil {
		return err
	}
	return c.applyOptimistic(m)
}

// Reconcile routes a server confirmation to its cache. remaining is the
// FIFO list of still-queued mutations for the entity, re-overlaid so
// optimistic edits stay visible.
func (s *CacheSet) Reconcile(t models.EntityType, entityID string, server models.ServerRecord, resolvedIDs []string, remaining []models.Mutation) error {
	c, err := s.Cache(t)
	if err != nil {
		return err
	}
	return c.reconcile(entityID, server, resolvedIDs, remaining)
}

// Drop removes a record after a confirmed delete.
func (s *CacheSet) Drop(t models.EntityType, entityID string) error {
	c, err := s.Cache(t)
	if err != nil {
		return err
	}
	c.drop(entityID)
	return nil
}

// MarkConflict freezes an entity with the server's current state attached.
func (s *CacheSet) MarkConflict(t models.EntityType, entityID string, serverData models.Payload, serverVersion int64) error {
	c, err := s.Cache(t)
	if err != nil {
		return err
	}
	return c.markConflict(entityID, serverData, serverVersion)
}

// MarkError surfaces a terminal failure on an entity.
func (s *CacheSet) MarkError(t models.EntityType, entityID, message string) error {
	c, err := s.Cache(t)
	if err != nil {
		return err
	}
	return c.markError(entityID, message)
}

// ClearPending removes mutation ids from an entity's pending list.
func (s *CacheSet) ClearPending(t models.EntityType, entityID string, mutationIDs []string) {
	if c, err := s.Cache(t); err == nil {
		c.clearPending(entityID, mutationIDs)
	}
}

// IsConflictBlocked reports whether the entity holds an unresolved conflict.
func (s *CacheSet) IsConflictBlocked(t models.EntityType, entityID string) bool {
	c, err := s.Cache(t)
	if err != nil {
		return false
	}
	rec, ok := c.GetByID(entityID)
	return ok && rec.SyncState == models.StateConflict
}

// RemapID rewrites a temporary entity id to the server-assigned one: the
// record key in its own cache, plus references inside every record of every
// cache (a voucher may reference inventory created in the same offline
// session).
func (s *CacheSet) RemapID(t models.EntityType, oldID, newID string) error {
	c, err := s.Cache(t)
	if err != nil {
		return err
	}
	c.remap(oldID, newID)
	for _, other := range s.caches {
		other.rewriteRefs(oldID, newID)
	}
	s.log.Debug().Str("old_id", oldID).Str("new_id", newID).Msg("temporary id remapped")
	return nil
}

// Seed installs clean server records for one type.
func (s *CacheSet) Seed(t models.EntityType, records []models.ServerRecord) error {
	c, err := s.Cache(t)
	if err != nil {
		return err
	}
	c.seed(records)
	return nil
}

// Replay re-applies queued mutations optimistically, in order. Used at
// startup after rehydrating the queue: caches are derived state, rebuilt
// from server fetches plus the durable queue, never persisted themselves.
// Updates and deletes against records the server fetch did not supply (an
// offline restart) land on stub records.
func (s *CacheSet) Replay(mutations []models.Mutation) error {
	for _, m := range mutations {
		err := s.ApplyOptimistic(m)
		if errors.Is(err, ErrEntityNotFound) {
			c, cerr := s.Cache(m.EntityType)
			if cerr != nil {
				return cerr
			}
			c.ensureRecord(m.EntityID)
			err = s.ApplyOptimistic(m)
		}
		if err != nil {
			return fmt.Errorf("replay mutation %s: %w", m.ID, err)
		}
	}
	return nil
}

func (s *CacheSet) acceptServer(t models.EntityType, entityID string) ([]string, error) {
	c, err := s.Cache(t)
	if err != nil {
		return nil, err
	}
	return c.acceptServer(entityID)
}

func (s *CacheSet) retryMine(t models.EntityType, entityID string) (string, int64, error) {
	c, err := s.Cache(t)
	if err != nil {
		return "", 0, err
	}
	return c.retryMine(entityID)
}
