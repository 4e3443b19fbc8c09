// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Andrei Vetrov

package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/avetrov/offsync/internal/logger"
	"github.com/avetrov/offsync/models"
)

func newTestCacheSet() *CacheSet {
	return NewCacheSet(logger.Nop(), models.EntityVoucher, models.EntityInventory, models.EntityCompany)
}

func seedVoucher(t *testing.T, s *CacheSet, id string, version int64, data models.Payload) {
	t.Helper()
	require.NoError(t, s.Seed(models.EntityVoucher, []models.ServerRecord{
		{ID: id, Version: version, Data: data},
	}))
}

// ── ApplyOptimistic ──────────────────────────────────────────────────────────

func TestEntityCache_ApplyOptimistic_Create(t *testing.T) {
	s := newTestCacheSet()

	err := s.ApplyOptimistic(models.Mutation{
		ID:         "m1",
		EntityType: models.EntityVoucher,
		EntityID:   "tmp-1",
		Operation:  models.OpCreate,
		Payload:    models.Payload{"amount": 100},
	})
	require.NoError(t, err)

	cache, _ := s.Cache(models.EntityVoucher)
	rec, ok := cache.GetByID("tmp-1")
	require.True(t, ok)
	assert.Equal(t, models.StatePending, rec.SyncState)
	assert.Equal(t, 100, rec.Data["amount"])
	assert.Equal(t, []string{"m1"}, rec.PendingMutationIDs)
}

func TestEntityCache_ApplyOptimistic_UpdateOverlaysFields(t *testing.T) {
	s := newTestCacheSet()
	seedVoucher(t, s, "v1", 3, models.Payload{"amount": 100, "status": "draft"})

	err := s.ApplyOptimistic(models.Mutation{
		ID:         "m1",
		EntityType: models.EntityVoucher,
		EntityID:   "v1",
		Operation:  models.OpUpdate,
		Payload:    models.Payload{"status": "posted"},
	})
	require.NoError(t, err)

	cache, _ := s.Cache(models.EntityVoucher)
	rec, _ := cache.GetByID("v1")

	// обновлённое поле перекрыто, остальные сохранены
	assert.Equal(t, "posted", rec.Data["status"])
	assert.Equal(t, 100, rec.Data["amount"])
	assert.Equal(t, models.StatePending, rec.SyncState)
}

func TestEntityCache_ApplyOptimistic_DeleteMarksRecord(t *testing.T) {
	s := newTestCacheSet()
	seedVoucher(t, s, "v1", 3, models.Payload{"amount": 100})

	err := s.ApplyOptimistic(models.Mutation{
		ID:         "m1",
		EntityType: models.EntityVoucher,
		EntityID:   "v1",
		Operation:  models.OpDelete,
	})
	require.NoError(t, err)

	cache, _ := s.Cache(models.EntityVoucher)
	rec, ok := cache.GetByID("v1")
	require.True(t, ok, "запись остаётся в кеше до подтверждения сервером")
	assert.True(t, rec.Deleted)
}

func TestEntityCache_ApplyOptimistic_UpdateMissingRecord(t *testing.T) {
	s := newTestCacheSet()

	err := s.ApplyOptimistic(models.Mutation{
		ID:         "m1",
		EntityType: models.EntityVoucher,
		EntityID:   "missing",
		Operation:  models.OpUpdate,
		Payload:    models.Payload{"x": 1},
	})
	assert.ErrorIs(t, err, ErrEntityNotFound)
}

func TestCacheSet_ApplyOptimistic_UnknownEntityType(t *testing.T) {
	s := newTestCacheSet()

	err := s.ApplyOptimistic(models.Mutation{
		ID:         "m1",
		EntityType: "ledger",
		EntityID:   "l1",
		Operation:  models.OpCreate,
	})
	assert.ErrorIs(t, err, ErrUnknownEntityType)
}

// ── Reconcile ────────────────────────────────────────────────────────────────

func TestEntityCache_Reconcile_CleanWhenNothingPending(t *testing.T) {
	s := newTestCacheSet()
	seedVoucher(t, s, "v1", 1, models.Payload{"amount": 100})

	require.NoError(t, s.ApplyOptimistic(models.Mutation{
		ID: "m1", EntityType: models.EntityVoucher, EntityID: "v1",
		Operation: models.OpUpdate, Payload: models.Payload{"amount": 150},
	}))

	server := models.ServerRecord{ID: "v1", Version: 2, Data: models.Payload{"amount": 150}}
	require.NoError(t, s.Reconcile(models.EntityVoucher, "v1", server, []string{"m1"}, nil))

	cache, _ := s.Cache(models.EntityVoucher)
	rec, _ := cache.GetByID("v1")
	assert.Equal(t, models.StateClean, rec.SyncState)
	assert.Equal(t, int64(2), rec.Version)
	assert.Empty(t, rec.PendingMutationIDs)
}

func TestEntityCache_Reconcile_ReappliesRemainingMutations(t *testing.T) {
	s := newTestCacheSet()
	seedVoucher(t, s, "v1", 1, models.Payload{"amount": 100, "status": "draft"})

	m1 := models.Mutation{
		ID: "m1", EntityType: models.EntityVoucher, EntityID: "v1",
		Operation: models.OpUpdate, Payload: models.Payload{"amount": 150},
	}
	m2 := models.Mutation{
		ID: "m2", EntityType: models.EntityVoucher, EntityID: "v1",
		Operation: models.OpUpdate, Payload: models.Payload{"status": "posted"},
	}
	require.NoError(t, s.ApplyOptimistic(m1))
	require.NoError(t, s.ApplyOptimistic(m2))

	// сервер подтвердил m1; m2 ещё в очереди и должна остаться видимой
	server := models.ServerRecord{ID: "v1", Version: 2, Data: models.Payload{"amount": 150, "status": "draft"}}
	require.NoError(t, s.Reconcile(models.EntityVoucher, "v1", server, []string{"m1"}, []models.Mutation{m2}))

	cache, _ := s.Cache(models.EntityVoucher)
	rec, _ := cache.GetByID("v1")
	assert.Equal(t, models.StatePending, rec.SyncState)
	assert.Equal(t, "posted", rec.Data["status"])
	assert.Equal(t, []string{"m2"}, rec.PendingMutationIDs)
}

// ── Конфликты ────────────────────────────────────────────────────────────────

func TestEntityCache_MarkConflict_FreezesRecord(t *testing.T) {
	s := newTestCacheSet()
	seedVoucher(t, s, "v1", 1, models.Payload{"amount": 100})
	require.NoError(t, s.ApplyOptimistic(models.Mutation{
		ID: "m1", EntityType: models.EntityVoucher, EntityID: "v1",
		Operation: models.OpUpdate, Payload: models.Payload{"amount": 150},
	}))

	serverData := models.Payload{"amount": 175}
	require.NoError(t, s.MarkConflict(models.EntityVoucher, "v1", serverData, 5))

	cache, _ := s.Cache(models.EntityVoucher)
	rec, _ := cache.GetByID("v1")
	assert.Equal(t, models.StateConflict, rec.SyncState)
	assert.Equal(t, int64(5), rec.ConflictVersion)

	// обе стороны доступны для выбора пользователя
	assert.Equal(t, 150, rec.Data["amount"], "локальная сторона")
	assert.Equal(t, 175, rec.ConflictData["amount"], "серверная сторона")

	assert.True(t, s.IsConflictBlocked(models.EntityVoucher, "v1"))
}

func TestEntityCache_AcceptServer_DiscardsLocalSide(t *testing.T) {
	s := newTestCacheSet()
	seedVoucher(t, s, "v1", 1, models.Payload{"amount": 100})
	require.NoError(t, s.ApplyOptimistic(models.Mutation{
		ID: "m1", EntityType: models.EntityVoucher, EntityID: "v1",
		Operation: models.OpUpdate, Payload: models.Payload{"amount": 150},
	}))
	require.NoError(t, s.MarkConflict(models.EntityVoucher, "v1", models.Payload{"amount": 175}, 5))

	dropped, err := s.acceptServer(models.EntityVoucher, "v1")
	require.NoError(t, err)
	assert.Equal(t, []string{"m1"}, dropped)

	cache, _ := s.Cache(models.EntityVoucher)
	rec, _ := cache.GetByID("v1")
	assert.Equal(t, models.StateClean, rec.SyncState)
	assert.Equal(t, int64(5), rec.Version)
	assert.Equal(t, 175, rec.Data["amount"])
	assert.Nil(t, rec.ConflictData)
}

func TestEntityCache_RetryMine_RebasesLocalSide(t *testing.T) {
	s := newTestCacheSet()
	seedVoucher(t, s, "v1", 1, models.Payload{"amount": 100})
	require.NoError(t, s.ApplyOptimistic(models.Mutation{
		ID: "m1", EntityType: models.EntityVoucher, EntityID: "v1",
		Operation: models.OpUpdate, Payload: models.Payload{"amount": 150},
	}))
	require.NoError(t, s.MarkConflict(models.EntityVoucher, "v1", models.Payload{"amount": 175}, 5))

	mutationID, version, err := s.retryMine(models.EntityVoucher, "v1")
	require.NoError(t, err)
	assert.Equal(t, "m1", mutationID)
	assert.Equal(t, int64(5), version)

	cache, _ := s.Cache(models.EntityVoucher)
	rec, _ := cache.GetByID("v1")
	assert.Equal(t, models.StatePending, rec.SyncState)
	assert.Equal(t, 150, rec.Data["amount"], "локальное изменение сохранено")
	assert.False(t, s.IsConflictBlocked(models.EntityVoucher, "v1"))
}

func TestEntityCache_AcceptServer_NoConflict(t *testing.T) {
	s := newTestCacheSet()
	seedVoucher(t, s, "v1", 1, models.Payload{"amount": 100})

	_, err := s.acceptServer(models.EntityVoucher, "v1")
	assert.ErrorIs(t, err, ErrNoConflict)
}

// ── RemapID ──────────────────────────────────────────────────────────────────

func TestCacheSet_RemapID_RewritesAcrossCaches(t *testing.T) {
	s := newTestCacheSet()

	// инвентарь создан офлайн, ваучер ссылается на его временный id
	require.NoError(t, s.ApplyOptimistic(models.Mutation{
		ID: "m1", EntityType: models.EntityInventory, EntityID: "tmp-inv",
		Operation: models.OpCreate, Payload: models.Payload{"sku": "A-1"},
	}))
	require.NoError(t, s.ApplyOptimistic(models.Mutation{
		ID: "m2", EntityType: models.EntityVoucher, EntityID: "tmp-v",
		Operation: models.OpCreate, Payload: models.Payload{"inventory_id": "tmp-inv"},
	}))

	require.NoError(t, s.RemapID(models.EntityInventory, "tmp-inv", "srv-42"))

	invCache, _ := s.Cache(models.EntityInventory)
	_, ok := invCache.GetByID("tmp-inv")
	assert.False(t, ok, "временный ключ удалён")
	rec, ok := invCache.GetByID("srv-42")
	require.True(t, ok)
	assert.Equal(t, "srv-42", rec.ID)

	// ссылка в чужом кеше переписана
	vCache, _ := s.Cache(models.EntityVoucher)
	voucher, _ := vCache.GetByID("tmp-v")
	assert.Equal(t, "srv-42", voucher.Data["inventory_id"])
}

// ── Replay ───────────────────────────────────────────────────────────────────

func TestCacheSet_Replay_RestoresPendingOverlays(t *testing.T) {
	s := newTestCacheSet()
	seedVoucher(t, s, "v1", 1, models.Payload{"amount": 100})

	mutations := []models.Mutation{
		{ID: "m1", EntityType: models.EntityVoucher, EntityID: "v1",
			Operation: models.OpUpdate, Payload: models.Payload{"amount": 150}},
		{ID: "m2", EntityType: models.EntityVoucher, EntityID: "tmp-2",
			Operation: models.OpCreate, Payload: models.Payload{"amount": 50}},
	}
	require.NoError(t, s.Replay(mutations))

	cache, _ := s.Cache(models.EntityVoucher)
	rec, _ := cache.GetByID("v1")
	assert.Equal(t, 150, rec.Data["amount"])

	created, ok := cache.GetByID("tmp-2")
	require.True(t, ok)
	assert.Equal(t, models.StatePending, created.SyncState)
}

func TestCacheSet_Replay_OfflineRestart_StubsMissingRecords(t *testing.T) {
	s := newTestCacheSet()

	// рестарт без сети: кеш пуст, но в очереди update существующей записи
	mutations := []models.Mutation{
		{ID: "m1", EntityType: models.EntityVoucher, EntityID: "v1",
			Operation: models.OpUpdate, Payload: models.Payload{"amount": 150}},
	}
	require.NoError(t, s.Replay(mutations))

	cache, _ := s.Cache(models.EntityVoucher)
	rec, ok := cache.GetByID("v1")
	require.True(t, ok)
	assert.Equal(t, models.StatePending, rec.SyncState)
	assert.Equal(t, 150, rec.Data["amount"])
}

// ── GetAll ───────────────────────────────────────────────────────────────────

func TestEntityCache_GetAll_SortedCopies(t *testing.T) {
	s := newTestCacheSet()
	require.NoError(t, s.Seed(models.EntityVoucher, []models.ServerRecord{
		{ID: "b", Version: 1, Data: models.Payload{"x": 1}},
		{ID: "a", Version: 1, Data: models.Payload{"x": 2}},
	}))

	cache, _ := s.Cache(models.EntityVoucher)
	all := cache.GetAll()
	require.Len(t, all, 2)
	assert.Equal(t, "a", all[0].ID)
	assert.Equal(t, "b", all[1].ID)

	// мутация копии не протекает в кеш
	all[0].Data["x"] = 99
	rec, _ := cache.GetByID("a")
	assert.Equal(t, 2, rec.Data["x"])
}
