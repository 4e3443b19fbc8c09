// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Andrei Vetrov

package store

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/avetrov/offsync/models"
)

// ── Начальное состояние ──────────────────────────────────────────────────────

func TestVolatileStore_InitialState(t *testing.T) {
	v := NewVolatileStore()

	session := v.Session()
	assert.Equal(t, models.PhaseIdle, session.Phase)
	assert.True(t, session.LastSyncAt.IsZero())

	network := v.Network()
	assert.False(t, network.Reachable)
	assert.Equal(t, models.NetworkUnknown, network.Kind)

	assert.Equal(t, models.SyncStats{}, v.Stats())
}

// ── Фазы ─────────────────────────────────────────────────────────────────────

func TestVolatileStore_SetPhase_ClearsNextRetryOutsideBackoff(t *testing.T) {
	v := NewVolatileStore()

	v.SetPhase(models.PhaseBackoff)
	v.SetNextRetry(time.Now().Add(time.Second))
	assert.False(t, v.Session().NextRetryAt.IsZero())

	v.SetPhase(models.PhaseSyncing)
	assert.True(t, v.Session().NextRetryAt.IsZero(), "вне backoff время ретрая не имеет смысла")
}

func TestVolatileStore_SetPhase_ClearsInFlightOutsideSyncing(t *testing.T) {
	v := NewVolatileStore()

	v.SetPhase(models.PhaseSyncing)
	v.SetInFlight("m1")
	assert.Equal(t, "m1", v.Session().InFlightMutationID)

	v.SetPhase(models.PhaseIdle)
	assert.Empty(t, v.Session().InFlightMutationID)
}

func TestVolatileStore_MarkSynced(t *testing.T) {
	v := NewVolatileStore()
	now := time.Now()

	v.MarkSynced(now)
	assert.Equal(t, now, v.Session().LastSyncAt)
}

// ── Счётчики ─────────────────────────────────────────────────────────────────

func TestVolatileStore_Counters(t *testing.T) {
	v := NewVolatileStore()

	v.CountDrained()
	v.CountDrained()
	v.CountConflicted()
	v.CountFailed()

	stats := v.Stats()
	assert.Equal(t, int64(2), stats.Drained)
	assert.Equal(t, int64(1), stats.Conflicted)
	assert.Equal(t, int64(1), stats.Failed)
}

func TestVolatileStore_SetNetwork(t *testing.T) {
	v := NewVolatileStore()

	state := models.NetworkState{Reachable: true, Kind: models.NetworkCellular}
	v.SetNetwork(state)
	assert.Equal(t, state, v.Network())
}
