package task

import (
	"context"
	"runtime"
	"sync"

	"golang.org/x/sync/semaphore"
)

// CapacityPool is a counting admission gate bounding how many units of work
// of one category may run concurrently. Acquire blocks until a slot is free
// or the context is cancelled. The pool also tracks its in-use count and
// high-water mark for observability and testing.
type CapacityPool struct {
	name      string
	capacity  int64
	sem       *semaphore.Weighted
	mu        sync.Mutex
	inUse     int64
	highWater int64
}

// NewCapacityPool creates a pool admitting at most capacity concurrent
// holders. A capacity below 1 is raised to 1.
func NewCapacityPool(name string, capacity int) *CapacityPool {
	if capacity < 1 {
		capacity = 1
	}
	return &CapacityPool{
		name:     name,
		capacity: int64(capacity),
		sem:      semaphore.NewWeighted(int64(capacity)),
	}
}

// Acquire blocks until a slot is available or ctx is done. On success the
// caller must eventually call Release.
func (p *CapacityPool) Acquire(ctx context.Context) error {
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	p.mu.Lock()
	p.inUse++
	if p.inUse > p.highWater {
		p.highWater = p.inUse
	}
	p.mu.Unlock()
	return nil
}

// TryAcquire acquires a slot without blocking, reporting whether it succeeded.
func (p *CapacityPool) TryAcquire() bool {
	if !p.sem.TryAcquire(1) {
		return false
	}
	p.mu.Lock()
	p.inUse++
	if p.inUse > p.highWater {
		p.highWater = p.inUse
	}
	p.mu.Unlock()
	return true
}

// Release returns a previously acquired slot to the pool.
func (p *CapacityPool) Release() {
	p.mu.Lock()
	p.inUse--
	p.mu.Unlock()
	p.sem.Release(1)
}

// Name returns the pool's category name.
func (p *CapacityPool) Name() string {
	return p.name
}

// Capacity returns the maximum number of concurrent holders.
func (p *CapacityPool) Capacity() int64 {
	return p.capacity
}

// InUse returns the number of slots currently held.
func (p *CapacityPool) InUse() int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.inUse
}

// HighWater returns the maximum number of slots held concurrently over the
// pool's lifetime.
func (p *CapacityPool) HighWater() int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.highWater
}

// PoolSizes holds the capacities of the three process-wide pools.
type PoolSizes struct {
	// Global caps the total number of concurrently running submitted units.
	Global int

	// Thread caps concurrently running thread-offloaded blocking calls.
	Thread int

	// Process caps concurrently running process-offloaded blocking calls.
	Process int
}

// DefaultPoolSizes derives pool capacities from the detected CPU count,
// clamped to sane floors and ceilings: global 32-256, thread two thirds of
// global within 16-128, process 1-8.
func DefaultPoolSizes() PoolSizes {
	cpus := runtime.NumCPU()
	global := clamp(cpus*8, 32, 256)
	return PoolSizes{
		Global:  global,
		Thread:  clamp(global*2/3, 16, 128),
		Process: clamp(cpus, 1, 8),
	}
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
