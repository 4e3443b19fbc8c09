// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Andrei Vetrov

package service

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/avetrov/offsync/internal/logger"
	"github.com/avetrov/offsync/internal/netmon"
	"github.com/avetrov/offsync/internal/store"
	"github.com/avetrov/offsync/models"
)

// spyDrainer считает вызовы Drain и отдаёт управляемый канал триггеров.
type spyDrainer struct {
	calls  atomic.Int64
	err    error
	nudges chan struct{}
}

func newSpyDrainer() *spyDrainer {
	return &spyDrainer{nudges: make(chan struct{}, 1)}
}

func (s *spyDrainer) Drain(_ context.Context) error {
	s.calls.Add(1)
	return s.err
}

func (s *spyDrainer) Nudges() <-chan struct{} { return s.nudges }

func newTestMonitor() *netmon.PlatformMonitor {
	return netmon.NewPlatformMonitor(store.NewVolatileStore(), logger.Nop())
}

// ── Start / Stop ─────────────────────────────────────────────────────────────

func TestSyncJob_OnlineEvent_TriggersDrain(t *testing.T) {
	spy := newSpyDrainer()
	monitor := newTestMonitor()
	job := NewSyncJob(spy, monitor, logger.Nop())

	job.Start(context.Background(), time.Hour)
	defer job.Stop()

	// переход offline → online должен запустить слив
	monitor.SetState(models.NetworkState{Reachable: true, Kind: models.NetworkWifi})

	require.Eventually(t, func() bool { return spy.calls.Load() == 1 },
		time.Second, 5*time.Millisecond, "онлайн-переход должен вызвать Drain")
}

func TestSyncJob_OfflineEvent_DoesNotDrain(t *testing.T) {
	spy := newSpyDrainer()
	monitor := newTestMonitor()
	job := NewSyncJob(spy, monitor, logger.Nop())

	job.Start(context.Background(), time.Hour)
	defer job.Stop()

	monitor.SetState(models.NetworkState{Reachable: true, Kind: models.NetworkWifi})
	require.Eventually(t, func() bool { return spy.calls.Load() == 1 }, time.Second, 5*time.Millisecond)

	// уход в офлайн и смена типа сети слив не запускают
	monitor.SetState(models.NetworkState{Reachable: false, Kind: models.NetworkNone})
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, int64(1), spy.calls.Load())
}

func TestSyncJob_Nudge_TriggersDrain(t *testing.T) {
	spy := newSpyDrainer()
	job := NewSyncJob(spy, newTestMonitor(), logger.Nop())

	job.Start(context.Background(), time.Hour)
	defer job.Stop()

	spy.nudges <- struct{}{}

	require.Eventually(t, func() bool { return spy.calls.Load() == 1 },
		time.Second, 5*time.Millisecond, "триггер движка должен вызвать Drain")
}

func TestSyncJob_PeriodicTick_TriggersDrain(t *testing.T) {
	spy := newSpyDrainer()
	job := NewSyncJob(spy, newTestMonitor(), logger.Nop())

	job.Start(context.Background(), 10*time.Millisecond)
	time.Sleep(55 * time.Millisecond)
	job.Stop()

	assert.GreaterOrEqual(t, spy.calls.Load(), int64(3))
}

func TestSyncJob_Stop_StopsGoroutine(t *testing.T) {
	spy := newSpyDrainer()
	job := NewSyncJob(spy, newTestMonitor(), logger.Nop())

	job.Start(context.Background(), 10*time.Millisecond)
	time.Sleep(30 * time.Millisecond)
	job.Stop()

	callsAfterStop := spy.calls.Load()
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, callsAfterStop, spy.calls.Load(), "после Stop новых вызовов быть не должно")
}

func TestSyncJob_Stop_BeforeStart_NoPanic(t *testing.T) {
	job := NewSyncJob(newSpyDrainer(), newTestMonitor(), logger.Nop())

	assert.NotPanics(t, func() { job.Stop() })
}

func TestSyncJob_DrainError_DoesNotStopJob(t *testing.T) {
	spy := newSpyDrainer()
	spy.err = assert.AnError
	job := NewSyncJob(spy, newTestMonitor(), logger.Nop())

	job.Start(context.Background(), 10*time.Millisecond)
	time.Sleep(55 * time.Millisecond)
	job.Stop()

	assert.GreaterOrEqual(t, spy.calls.Load(), int64(3), "ошибки Drain не останавливают джоб")
}

func TestSyncJob_ContextCancel_StopsJob(t *testing.T) {
	spy := newSpyDrainer()
	job := NewSyncJob(spy, newTestMonitor(), logger.Nop())
	ctx, cancel := context.WithCancel(context.Background())

	job.Start(ctx, 10*time.Millisecond)
	time.Sleep(30 * time.Millisecond)
	cancel()

	done := make(chan struct{})
	go func() {
		job.Stop()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Stop завис после отмены контекста")
	}
}
