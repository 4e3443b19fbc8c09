// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Andrei Vetrov

package client

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/avetrov/offsync/internal/adapter"
	"github.com/avetrov/offsync/internal/config"
	"github.com/avetrov/offsync/internal/crypto"
	"github.com/avetrov/offsync/internal/logger"
	"github.com/avetrov/offsync/internal/netmon"
	"github.com/avetrov/offsync/internal/service"
	"github.com/avetrov/offsync/internal/store"
	"github.com/avetrov/offsync/models"
)

// entityTypes lists every cache the core maintains.
var entityTypes = []models.EntityType{
	models.EntityVoucher,
	models.EntityInventory,
	models.EntityCompany,
}

// App is the embedding surface of the sync core. The platform shell (the
// mobile UI) constructs exactly one App per process, feeds it connectivity
// changes and user edits, and renders from its accessors.
//
// Construction order matters: the durable partitions are rehydrated before
// the first Dispatch can run, so a restart mid-queue resumes from the exact
// persisted state.
type App struct {
	cfg      *config.Config
	log      *logger.Logger
	secure   store.SecureStore
	durable  store.DurableStore
	volatile *store.VolatileStore
	monitor  *netmon.PlatformMonitor
	adapter  adapter.ServerAdapter
	queue    *service.MutationQueue
	caches   *service.CacheSet
	engine   *service.SyncEngine
	job      service.SyncJob

	// dispatchMu makes enqueue + optimistic apply one atomic step so a
	// concurrent drain cycle never observes half a dispatch.
	dispatchMu sync.Mutex

	settingsMu sync.RWMutex
	settings   models.Settings

	authenticated bool
}

// NewApp assembles the full core from configuration, rehydrates the durable
// partitions and replays pending mutations into the caches. It degrades
// instead of failing where the data allows it: an unreadable credential file
// means "not authenticated", an unopenable database means an in-memory
// fallback for this process.
func NewApp(ctx context.Context) (*App, error) {
	cfg, err := config.GetConfig()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	log := logger.New("client")
	if cfg.LogToFile {
		log = logger.NewFileLogger("client")
	}
	return newApp(ctx, cfg, log)
}

func newApp(ctx context.Context, cfg *config.Config, log *logger.Logger) (*App, error) {
	keychain := crypto.NewKeychain()
	secure := store.NewSecureStore(cfg.Storage.Secure, keychain, log)

	durable, err := store.NewDurableStore(ctx, cfg.Storage.DB, log)
	if err != nil {
		if !errors.Is(err, store.ErrStorageUnavailable) {
			return nil, fmt.Errorf("open durable store: %w", err)
		}
		// The session still works, nothing queued in it survives a restart.
		log.Error().Err(err).Msg("durable store unavailable, falling back to memory")
		durable = store.NewMemoryDurableStore()
	}

	volatile := store.NewVolatileStore()
	monitor := netmon.NewPlatformMonitor(volatile, log)

	app := &App{
		cfg:      cfg,
		log:      log,
		secure:   secure,
		durable:  durable,
		volatile: volatile,
		monitor:  monitor,
		settings: models.DefaultSettings(),
	}

	if err = durable.Rehydrate(ctx, store.PartitionSettings, &app.settings); err != nil &&
		!errors.Is(err, store.ErrPartitionNotFound) {
		log.Warn().Err(err).Msg("settings partition unreadable, using defaults")
		app.settings = models.DefaultSettings()
	}

	adapterCfg := cfg.Adapter
	if app.settings.ServerURL != "" {
		adapterCfg.BaseURL = app.settings.ServerURL
	}
	app.adapter = adapter.NewHTTPServerAdapter(adapterCfg)
	app.rearmCredential(ctx)

	app.queue = service.NewMutationQueue(durable, cfg.Sync.RetryCeiling, log)
	if err = app.queue.Rehydrate(ctx); err != nil {
		return nil, fmt.Errorf("rehydrate mutation queue: %w", err)
	}

	app.caches = service.NewCacheSet(log, entityTypes...)
	if err = app.caches.Replay(app.queue.Snapshot()); err != nil {
		return nil, fmt.Errorf("replay pending mutations: %w", err)
	}

	app.engine = service.NewSyncEngine(app.queue, app.caches, app.adapter, volatile, cfg.Sync, log)
	app.engine.SetGate(app.networkAllowed)
	app.job = service.NewSyncJob(app.engine, monitor, log)

	log.Info().
		Int("queued_mutations", app.queue.Len()).
		Bool("authenticated", app.authenticated).
		Msg("sync core assembled")

	return app, nil
}

// rearmCredential loads the stored credential, if any, back into the
// transport. Every failure mode lands on "not authenticated".
func (a *App) rearmCredential(ctx context.Context) {
	cred, err := a.secure.Load(ctx)
	switch {
	case errors.Is(err, store.ErrCredentialNotFound):
		return
	case err != nil:
		a.log.Warn().Err(err).Msg("stored credential unreadable, login required")
		return
	case cred.Expired(time.Now()):
		a.log.Info().Msg("stored credential expired, login required")
		return
	}
	a.adapter.SetToken(cred.AccessToken)
	a.authenticated = true
}

// Start launches the background sync job. interval is the periodic safety
// tick between event-driven drains.
func (a *App) Start(ctx context.Context, interval time.Duration) {
	a.job.Start(ctx, interval)
}

// Close stops background work and releases the database handle.
func (a *App) Close() error {
	a.job.Stop()
	a.monitor.Close()
	return a.durable.Close()
}

// Login stores the credential in the secure store and arms the transport.
// Queued mutations from a previous session stay queued and drain under the
// new identity.
func (a *App) Login(ctx context.Context, cred models.Credential) error {
	if err := a.secure.Save(ctx, cred); err != nil {
		return err
	}
	a.adapter.SetToken(cred.AccessToken)
	a.authenticated = true
	a.engine.TriggerSync()
	return nil
}

// Logout clears the stored credential and disarms the transport. The queue
// and the durable partitions survive: local work is the user's, not the
// session's.
func (a *App) Logout(ctx context.Context) error {
	if err := a.secure.Clear(ctx); err != nil {
		return err
	}
	a.adapter.SetToken("")
	a.authenticated = false
	return nil
}

// Authenticated reports whether the transport currently carries a token.
func (a *App) Authenticated() bool {
	return a.adapter.Token() != ""
}

// Dispatch records a user edit: the mutation is appended to the durable
// queue and its effect applied optimistically to the entity cache, as one
// atomic step. For creates, entityID is ignored and a temporary id is
// assigned; the assigned id is returned so the UI can track the record
// until the server confirms it.
//
// Dispatch never performs network I/O. It works identically offline.
func (a *App) Dispatch(ctx context.Context, entityType models.EntityType, op models.Operation, entityID string, payload models.Payload) (string, error) {
	a.dispatchMu.Lock()
	defer a.dispatchMu.Unlock()

	cache, err := a.caches.Cache(entityType)
	if err != nil {
		return "", err
	}

	m := models.Mutation{
		ID:         uuid.NewString(),
		EntityType: entityType,
		Operation:  op,
		Payload:    payload.Clone(),
		CreatedAt:  time.Now(),
	}

	switch op {
	case models.OpCreate:
		m.EntityID = models.TempIDPrefix + uuid.NewString()
	case models.OpUpdate, models.OpDelete:
		record, ok := cache.GetByID(entityID)
		if !ok {
			return "", fmt.Errorf("%s/%s: %w", entityType, entityID, service.ErrEntityNotFound)
		}
		if record.Deleted {
			return "", fmt.Errorf("%s/%s: %w", entityType, entityID, service.ErrEntityDeleted)
		}
		m.EntityID = entityID
		version := record.Version
		m.BaseVersion = &version
	default:
		return "", fmt.Errorf("operation %q: %w", op, service.ErrUnknownOperation)
	}

	position, err := a.queue.Enqueue(ctx, m)
	if err != nil {
		return "", err
	}
	if err = a.caches.ApplyOptimistic(m); err != nil {
		// Validation above makes this unreachable for well-formed caches;
		// undo the enqueue so queue and cache cannot diverge.
		_ = a.queue.Acknowledge(ctx, m.ID)
		return "", err
	}

	a.log.Debug().
		Str("mutation_id", m.ID).
		Str("entity", m.EntityKey()).
		Str("operation", string(op)).
		Int("queue_position", position).
		Msg("mutation dispatched")

	a.engine.TriggerSync()
	return m.EntityID, nil
}

// TriggerSync requests a drain cycle, and is the explicit retry that clears
// the sticky error phase after re-authentication.
func (a *App) TriggerSync() {
	a.engine.TriggerSync()
}

// Sync runs one drain cycle synchronously. The background job covers the
// steady state; this is for pull-to-refresh style UI actions.
func (a *App) Sync(ctx context.Context) error {
	return a.engine.Drain(ctx)
}

// ResolveConflict applies the user's decision on a conflicted entity.
func (a *App) ResolveConflict(ctx context.Context, entityType models.EntityType, entityID string, resolution service.Resolution) error {
	return a.engine.ResolveConflict(ctx, entityType, entityID, resolution)
}

// Refresh rebuilds every entity cache from the server and re-applies the
// still-pending local mutations on top. Requires connectivity.
func (a *App) Refresh(ctx context.Context) error {
	for _, entityType := range entityTypes {
		records, err := a.adapter.FetchAll(ctx, entityType)
		if err != nil {
			return fmt.Errorf("fetch %s records: %w", entityType, err)
		}
		if err = a.caches.Seed(entityType, records); err != nil {
			return err
		}
	}
	if err := a.caches.Replay(a.queue.Snapshot()); err != nil {
		return err
	}

	return a.UpdateSettings(ctx, func(s *models.Settings) {
		s.LastFullSyncAt = time.Now()
	})
}

// Records returns the cache contents for one entity type, pending overlays
// included, sorted by id.
func (a *App) Records(entityType models.EntityType) ([]models.EntityRecord, error) {
	cache, err := a.caches.Cache(entityType)
	if err != nil {
		return nil, err
	}
	return cache.GetAll(), nil
}

// Record returns one cached entity.
func (a *App) Record(entityType models.EntityType, entityID string) (models.EntityRecord, error) {
	cache, err := a.caches.Cache(entityType)
	if err != nil {
		return models.EntityRecord{}, err
	}
	record, ok := cache.GetByID(entityID)
	if !ok {
		return models.EntityRecord{}, fmt.Errorf("%s/%s: %w", entityType, entityID, service.ErrEntityNotFound)
	}
	return record, nil
}

// QueueLen returns the number of pending mutations.
func (a *App) QueueLen() int {
	return a.queue.Len()
}

// Session returns the volatile sync status snapshot for the UI.
func (a *App) Session() models.SyncSession {
	return a.volatile.Session()
}

// Stats returns the drain outcome counters for this process lifetime.
func (a *App) Stats() models.SyncStats {
	return a.volatile.Stats()
}

// SetNetworkState is the hook the platform shell calls on every OS
// connectivity callback.
func (a *App) SetNetworkState(state models.NetworkState) {
	a.monitor.SetState(state)
}

// Network returns the last reported connectivity snapshot.
func (a *App) Network() models.NetworkState {
	return a.volatile.Network()
}

// Settings returns the current persisted settings.
func (a *App) Settings() models.Settings {
	a.settingsMu.RLock()
	defer a.settingsMu.RUnlock()
	return a.settings
}

// UpdateSettings applies mutate to a copy of the settings and persists the
// result. The in-memory settings change only if the persist succeeds.
func (a *App) UpdateSettings(ctx context.Context, mutate func(*models.Settings)) error {
	a.settingsMu.Lock()
	defer a.settingsMu.Unlock()

	next := a.settings
	mutate(&next)
	if err := a.durable.Persist(ctx, store.PartitionSettings, next); err != nil {
		return err
	}
	a.settings = next
	return nil
}

// networkAllowed is the engine's connectivity gate: offline never drains,
// and cellular drains only when the user opted in.
func (a *App) networkAllowed(state models.NetworkState) bool {
	if !state.Reachable {
		return false
	}
	if state.Kind == models.NetworkCellular {
		return a.Settings().SyncOnCellular
	}
	return true
}
