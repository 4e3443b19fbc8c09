package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/avetrov/offsync/internal/adapter"
	"github.com/avetrov/offsync/internal/logger"
	"github.com/avetrov/offsync/internal/netmon"
)

// Drainer is the part of the sync engine the background job needs.
type Drainer interface {
	Drain(ctx context.Context) error
	Nudges() <-chan struct{}
}

type syncJob struct {
	engine  Drainer
	monitor netmon.Monitor
	log     *logger.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewSyncJob creates a syncJob that drains the queue whenever the device
// comes online, the engine is nudged, or a periodic tick fires. The job is
// idle until Start is called.
func NewSyncJob(engine Drainer, monitor netmon.Monitor, log *logger.Logger) SyncJob {
	return &syncJob{engine: engine, monitor: monitor, log: log}
}

// Start implements SyncJob. It stops any previously running job, then
// launches a background goroutine. If interval is zero or negative it
// defaults to 5 minutes. The goroutine exits when ctx is cancelled or Stop
// is called.
func (j *syncJob) Start(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 5 * time.Minute
	}

	j.Stop()

	j.mu.Lock()
	jobCtx, cancel := context.WithCancel(ctx)
	j.cancel = cancel
	j.wg.Add(1)
	j.mu.Unlock()

	go func() {
		defer j.wg.Done()
		t := time.NewTicker(interval)
		defer t.Stop()

		for {
			select {
			case <-jobCtx.Done():
				return
			case event, ok := <-j.monitor.Events():
				if !ok {
					return
				}
				if event.Kind != netmon.EventOnline {
					continue
				}
				j.drain(jobCtx)
			case <-j.engine.Nudges():
				j.drain(jobCtx)
			case <-t.C:
				j.drain(jobCtx)
			}
		}
	}()
}

// Stop implements SyncJob. It cancels the background goroutine's context and
// blocks until the goroutine has fully exited. Safe to call when the job is
// not running (no-op in that case).
func (j *syncJob) Stop() {
	j.mu.Lock()
	cancel := j.cancel
	j.cancel = nil
	j.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	j.wg.Wait()
}

func (j *syncJob) drain(ctx context.Context) {
	err := j.engine.Drain(ctx)
	switch {
	case err == nil, errors.Is(err, context.Canceled):
	case errors.Is(err, adapter.ErrUnauthorized):
		// Sticky error phase; the queue survives, nothing drains until the
		// user re-authenticates and retries.
		j.log.Warn().Msg("sync halted until re-authentication")
	default:
		j.log.Error().Err(err).Msg("drain cycle failed")
	}
}
