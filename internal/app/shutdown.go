package app

import (
	"context"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"
)

// ShutdownManager coordinates in-flight query tracking and resource cleanup.
type ShutdownManager struct {
	drainTimeout time.Duration

	shutdownOnce   sync.Once
	shutdownErr    error
	inFlight       int64
	isShuttingDown int32

	// Closers run in reverse order of registration
	closers   []io.Closer
	closersMu sync.Mutex
}

// NewShutdownManager creates a shutdown manager. drainTimeout bounds the wait
// for in-flight queries; zero means 15 seconds.
func NewShutdownManager(drainTimeout time.Duration) *ShutdownManager {
	if drainTimeout <= 0 {
		drainTimeout = 15 * time.Second
	}
	return &ShutdownManager{drainTimeout: drainTimeout}
}

// RegisterCloser adds a closer to be called during shutdown.
func (sm *ShutdownManager) RegisterCloser(closer io.Closer) {
	sm.closersMu.Lock()
	defer sm.closersMu.Unlock()
	sm.closers = append(sm.closers, closer)
}

// Shutdown waits for in-flight queries and closes all registered resources.
// Only the first call does any work; later calls return its result.
func (sm *ShutdownManager) Shutdown(ctx context.Context, reason string) error {
	sm.shutdownOnce.Do(func() {
		atomic.StoreInt32(&sm.isShuttingDown, 1)

		if err := sm.drainInFlight(ctx); err != nil {
			sm.shutdownErr = fmt.Errorf("drain failed (%s): %w", reason, err)
		}

		sm.closersMu.Lock()
		closers := sm.closers
		sm.closers = nil
		sm.closersMu.Unlock()

		for i := len(closers) - 1; i >= 0; i-- {
			if err := closers[i].Close(); err != nil && sm.shutdownErr == nil {
				sm.shutdownErr = fmt.Errorf("close failed: %w", err)
			}
		}
	})
	return sm.shutdownErr
}

func (sm *ShutdownManager) drainInFlight(ctx context.Context) error {
	drainCtx, cancel := context.WithTimeout(ctx, sm.drainTimeout)
	defer cancel()

	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()

	for {
		if atomic.LoadInt64(&sm.inFlight) == 0 {
			return nil
		}
		select {
		case <-drainCtx.Done():
			if remaining := atomic.LoadInt64(&sm.inFlight); remaining > 0 {
				return fmt.Errorf("timeout waiting for %d in-flight queries", remaining)
			}
			return nil
		case <-ticker.C:
		}
	}
}

// TrackQuery increments the in-flight counter. It returns false once
// shutdown has begun.
func (sm *ShutdownManager) TrackQuery() bool {
	if atomic.LoadInt32(&sm.isShuttingDown) == 1 {
		return false
	}
	atomic.AddInt64(&sm.inFlight, 1)
	return true
}

// UntrackQuery decrements the in-flight counter.
func (sm *ShutdownManager) UntrackQuery() {
	atomic.AddInt64(&sm.inFlight, -1)
}

// IsShuttingDown returns true if shutdown has been initiated.
func (sm *ShutdownManager) IsShuttingDown() bool {
	return atomic.LoadInt32(&sm.isShuttingDown) == 1
}

// InFlightCount returns the current number of in-flight queries.
func (sm *ShutdownManager) InFlightCount() int64 {
	return atomic.LoadInt64(&sm.inFlight)
}
