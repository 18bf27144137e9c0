// Package observability provides hooks for sweep metrics and tracing.
//
// Libraries emit events through small hook interfaces; the defaults do
// nothing. A binary registers its own implementations once at startup,
// before any sweep runs:
//
//	func main() {
//	    observability.SetSweepHooks(&progress{})
//	    // ... run sweeps
//	}
//
// Libraries call hooks to emit events:
//
//	observability.Sweep().OnAngleSetState(ctx, partition, angleSet, "FINISHED")
//
// The partition and angle-set numbers are passed as plain integers and
// states as strings so this package imports nothing from the solver.
package observability

import (
	"context"
	"sync"
	"time"
)

// =============================================================================
// Plan Hooks
// =============================================================================

// PlanHooks receives events from sweep-plan construction (SPDS and FLUDS).
type PlanHooks interface {
	OnPlanStart(ctx context.Context, partition int, omega [3]float64)
	// OnPlanComplete reports the local cell count and how many local
	// edges were removed to break cycles.
	OnPlanComplete(ctx context.Context, partition, cells, cyclicEdges int, duration time.Duration, err error)
}

// =============================================================================
// Sweep Hooks
// =============================================================================

// SweepHooks receives events from the angle-set state machine and scheduler.
type SweepHooks interface {
	// OnAngleSetState records a state transition of one angle set.
	OnAngleSetState(ctx context.Context, partition, angleSet int, state string)

	// OnChunkReceived records one upstream or delayed chunk arriving.
	OnChunkReceived(ctx context.Context, partition, angleSet, source, chunk, bytes int)

	// OnSweepComplete records the end of one full sweep over all angle sets.
	// sweep counts from 1.
	OnSweepComplete(ctx context.Context, partition, sweep int, duration time.Duration, err error)
}

// =============================================================================
// Cache Hooks
// =============================================================================

// CacheHooks receives events from plan cache operations.
type CacheHooks interface {
	OnCacheHit(ctx context.Context, keyType string)
	OnCacheMiss(ctx context.Context, keyType string)
	OnCacheSet(ctx context.Context, keyType string, size int)
}

// =============================================================================
// Transport Hooks
// =============================================================================

// TransportHooks receives events from Communicator implementations.
type TransportHooks interface {
	OnSend(ctx context.Context, from, to, tag, bytes int)
	OnTransportError(ctx context.Context, op string, err error)
}

// =============================================================================
// No-op Implementations
// =============================================================================

// NoopPlanHooks is a no-op implementation of PlanHooks.
type NoopPlanHooks struct{}

func (NoopPlanHooks) OnPlanStart(context.Context, int, [3]float64)                        {}
func (NoopPlanHooks) OnPlanComplete(context.Context, int, int, int, time.Duration, error) {}

// NoopSweepHooks is a no-op implementation of SweepHooks.
type NoopSweepHooks struct{}

func (NoopSweepHooks) OnAngleSetState(context.Context, int, int, string)               {}
func (NoopSweepHooks) OnChunkReceived(context.Context, int, int, int, int, int)        {}
func (NoopSweepHooks) OnSweepComplete(context.Context, int, int, time.Duration, error) {}

// NoopCacheHooks is a no-op implementation of CacheHooks.
type NoopCacheHooks struct{}

func (NoopCacheHooks) OnCacheHit(context.Context, string)      {}
func (NoopCacheHooks) OnCacheMiss(context.Context, string)     {}
func (NoopCacheHooks) OnCacheSet(context.Context, string, int) {}

// NoopTransportHooks is a no-op implementation of TransportHooks.
type NoopTransportHooks struct{}

func (NoopTransportHooks) OnSend(context.Context, int, int, int, int)      {}
func (NoopTransportHooks) OnTransportError(context.Context, string, error) {}

// =============================================================================
// Global Hook Registry
// =============================================================================

var (
	planHooks      PlanHooks      = NoopPlanHooks{}
	sweepHooks     SweepHooks     = NoopSweepHooks{}
	cacheHooks     CacheHooks     = NoopCacheHooks{}
	transportHooks TransportHooks = NoopTransportHooks{}
	hooksMu        sync.RWMutex
)

// SetPlanHooks registers custom plan hooks. Nil is ignored.
func SetPlanHooks(h PlanHooks) {
	hooksMu.Lock()
	defer hooksMu.Unlock()
	if h != nil {
		planHooks = h
	}
}

// SetSweepHooks registers custom sweep hooks. Nil is ignored.
func SetSweepHooks(h SweepHooks) {
	hooksMu.Lock()
	defer hooksMu.Unlock()
	if h != nil {
		sweepHooks = h
	}
}

// SetCacheHooks registers custom cache hooks. Nil is ignored.
func SetCacheHooks(h CacheHooks) {
	hooksMu.Lock()
	defer hooksMu.Unlock()
	if h != nil {
		cacheHooks = h
	}
}

// SetTransportHooks registers custom transport hooks. Nil is ignored.
func SetTransportHooks(h TransportHooks) {
	hooksMu.Lock()
	defer hooksMu.Unlock()
	if h != nil {
		transportHooks = h
	}
}

// Plan returns the registered plan hooks.
func Plan() PlanHooks {
	hooksMu.RLock()
	defer hooksMu.RUnlock()
	return planHooks
}

// Sweep returns the registered sweep hooks.
func Sweep() SweepHooks {
	hooksMu.RLock()
	defer hooksMu.RUnlock()
	return sweepHooks
}

// Cache returns the registered cache hooks.
func Cache() CacheHooks {
	hooksMu.RLock()
	defer hooksMu.RUnlock()
	return cacheHooks
}

// Transport returns the registered transport hooks.
func Transport() TransportHooks {
	hooksMu.RLock()
	defer hooksMu.RUnlock()
	return transportHooks
}

// Reset restores all hooks to their no-op defaults.
// This is primarily useful for testing.
func Reset() {
	hooksMu.Lock()
	defer hooksMu.Unlock()
	planHooks = NoopPlanHooks{}
	sweepHooks = NoopSweepHooks{}
	cacheHooks = NoopCacheHooks{}
	transportHooks = NoopTransportHooks{}
}
