package speed

import (
	"context"
	"log"
	"sync/atomic"
	"time"
)

// EvictionStore deactivates real-time rows past the retention window.
type EvictionStore interface {
	EvictStaleRealtime(ctx context.Context, cutoff time.Time) (int64, error)
}

// Evictor is the periodic maintenance task that marks real-time rows
// older than the retention window inactive.
type Evictor struct {
	store     EvictionStore
	retention time.Duration
	evicted   atomic.Int64
}

// NewEvictor creates a new evictor with the given retention window.
func NewEvictor(store EvictionStore, retention time.Duration) *Evictor {
	return &Evictor{
		store:     store,
		retention: retention,
	}
}

// Run performs one eviction pass.
func (e *Evictor) Run(ctx context.Context) {
	cutoff := time.Now().UTC().Add(-e.retention)
	n, err := e.store.EvictStaleRealtime(ctx, cutoff)
	if err != nil {
		log.Printf("Failed to evict stale realtime rows: %v", err)
		return
	}
	if n > 0 {
		e.evicted.Add(n)
		log.Printf("Evicted %d stale realtime rows", n)
	}
}

// Evicted returns the total rows evicted since start.
func (e *Evictor) Evicted() int64 {
	return e.evicted.Load()
}
