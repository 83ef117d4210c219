// Package buffers implements the bounded working-buffer pool of spec.md
// §4.2: a fixed-capacity set of reusable sector-sized scratch buffers.
// Phylum's scheduling model is single-threaded cooperative (spec.md §5:
// "no internal thread, no task queue, no async suspension"), so unlike
// the teacher's disk-image cache (which guards a sync.Map with RWMutex
// because it serves concurrent HTTP handlers) this pool carries no
// locking of its own.
package buffers

import "github.com/conservify/phylum/metrics"

// Buffer is a handle to one working buffer. Its Bytes field is exactly
// sector-size long. Release returns the slot to the pool it came from;
// releasing a lent buffer is a no-op (the pool never owned that memory).
type Buffer struct {
	Bytes []byte

	pool *WorkingBuffers
	slot int // -1 for a lent buffer
}

// Release returns the buffer to its pool. Releasing an already-released
// or lent buffer is ignored, per spec.md §4.2 ("Freeing an unknown
// buffer is ignored").
func (b *Buffer) Release() {
	if b == nil || b.pool == nil || b.slot < 0 {
		return
	}
	b.pool.release(b.slot)
	b.slot = -1
}

// WorkingBuffers is the fixed-capacity pool described in spec.md §4.2.
type WorkingBuffers struct {
	sectorSize int
	slots      [][]byte
	inUse      []bool
	used       int
	highWater  int
	metrics    *metrics.Collectors
}

// New creates a pool of capacity buffers, each sectorSize bytes.
// Capacity is typically 8 (spec.md §4.2).
func New(sectorSize, capacity int) *WorkingBuffers {
	wb := &WorkingBuffers{
		sectorSize: sectorSize,
		slots:      make([][]byte, capacity),
		inUse:      make([]bool, capacity),
	}
	for i := range wb.slots {
		wb.slots[i] = make([]byte, sectorSize)
	}
	return wb
}

// WithMetrics attaches Prometheus collectors; pass nil to detach.
func (wb *WorkingBuffers) WithMetrics(m *metrics.Collectors) *WorkingBuffers {
	wb.metrics = m
	return wb
}

// Capacity returns the number of slots in the pool.
func (wb *WorkingBuffers) Capacity() int { return len(wb.slots) }

// HighWater returns the largest number of buffers ever simultaneously
// checked out, for diagnostics (spec.md §4.2).
func (wb *WorkingBuffers) HighWater() int { return wb.highWater }

// Allocate reserves an unused buffer. It panics if none is free — the
// pool has no lazy eviction and buffers are meant to be short-lived,
// acquired on the caller's stack frame (spec.md §4.2).
func (wb *WorkingBuffers) Allocate() *Buffer {
	for i, used := range wb.inUse {
		if !used {
			wb.inUse[i] = true
			wb.used++
			if wb.used > wb.highWater {
				wb.highWater = wb.used
			}
			wb.reportMetrics()
			return &Buffer{Bytes: wb.slots[i], pool: wb, slot: i}
		}
	}
	panic("buffers: working buffer pool exhausted")
}

// Lend wraps caller-provided static storage as a Buffer. The pool never
// owns this memory and Release on the result is a no-op (spec.md §4.2).
func Lend(mem []byte) *Buffer {
	return &Buffer{Bytes: mem, pool: nil, slot: -1}
}

func (wb *WorkingBuffers) release(slot int) {
	if slot < 0 || slot >= len(wb.inUse) || !wb.inUse[slot] {
		return
	}
	wb.inUse[slot] = false
	wb.used--
	wb.reportMetrics()
}

func (wb *WorkingBuffers) reportMetrics() {
	if wb.metrics == nil {
		return
	}
	wb.metrics.BuffersInUse.Set(float64(wb.used))
	wb.metrics.BuffersHighWater.Set(float64(wb.highWater))
}
