package service

import (
	"context"
	"time"
)

// SyncJob defines the contract for a background worker that drains the
// mutation queue on connectivity changes, explicit triggers and a periodic
// tick.
type SyncJob interface {
	// Start launches the background goroutine. The periodic tick fires
	// every interval, defaulting to 5 minutes if interval is zero or
	// negative. Any previously running job is stopped before the new one
	// begins.
	Start(ctx context.Context, interval time.Duration)

	// Stop signals the background goroutine to exit and blocks until it
	// has fully terminated.
	Stop()
}
