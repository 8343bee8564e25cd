package service

import (
	"context"
	"sync"
)

// ExportedRunningGuard is an exported alias so _test packages can test the guard.
type ExportedRunningGuard = runGuard

// ─────────────────────────────────────────────────────────────
// runGuard: prevents concurrent runs of the same source
// ─────────────────────────────────────────────────────────────

// runGuard is a concurrency guard that ensures only one
// run of a given source is in flight at a time. Overlapping runs would
// race on the same partition path and table.
//
// The lock is per source, not per step: Extract, Load and a workflow's
// Execute all take it, so a manual Load of a source is refused while a
// scheduled workflow of that source is still extracting. Other sources
// are never blocked.
type runGuard struct {
	mu      sync.Mutex
	running map[string]struct{}
	wg      sync.WaitGroup
}

// TryLock attempts to mark source as running. Returns false if a run of
// source is already in flight.
func (g *runGuard) TryLock(source string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.running == nil {
		g.running = make(map[string]struct{})
	}
	if _, ok := g.running[source]; ok {
		return false // already running
	}
	g.running[source] = struct{}{}
	g.wg.Add(1)
	return true
}

// Unlock marks the source as no longer running. Must be called after TryLock returns true.
func (g *runGuard) Unlock(source string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.running, source)
	g.wg.Done()
}

// WaitAll blocks until all in-flight runs complete or ctx is cancelled.
func (g *runGuard) WaitAll(ctx context.Context) {
	done := make(chan struct{})
	go func() {
		g.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
	}
}
