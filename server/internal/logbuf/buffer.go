package logbuf

import (
	"sync"

	"github.com/obsidianstack/reqscope/pkg/types"
)

// DefaultCapacity is used when New is given a non-positive capacity.
const DefaultCapacity = 1000

// Buffer is a thread-safe ring of request records with a fixed capacity.
type Buffer struct {
	mu    sync.RWMutex
	ring  []types.Record
	head  int // index of the oldest record
	size  int
	total uint64
}

// New creates a Buffer that holds at most capacity records.
func New(capacity int) *Buffer {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Buffer{ring: make([]types.Record, capacity)}
}

// Push appends rec. When the buffer is full the oldest record is dropped.
func (b *Buffer) Push(rec types.Record) {
	b.mu.Lock()
	defer b.mu.Unlock()

	capacity := len(b.ring)
	if b.size < capacity {
		b.ring[(b.head+b.size)%capacity] = rec
		b.size++
	} else {
		b.ring[b.head] = rec
		b.head = (b.head + 1) % capacity
	}
	b.total++
}

// Recent returns up to limit of the most recently pushed records, ordered
// oldest to newest. A non-positive limit returns an empty slice.
func (b *Buffer) Recent(limit int) []types.Record {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if limit <= 0 || b.size == 0 {
		return []types.Record{}
	}
	n := limit
	if n > b.size {
		n = b.size
	}
	return b.window(b.size-n, n)
}

// All returns every buffered record, oldest first.
func (b *Buffer) All() []types.Record {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.window(0, b.size)
}

// Clear removes all records.
func (b *Buffer) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()

	for i := range b.ring {
		b.ring[i] = types.Record{}
	}
	b.head = 0
	b.size = 0
}

// Count returns the number of records currently held.
func (b *Buffer) Count() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.size
}

// Capacity returns the maximum number of records the buffer holds.
func (b *Buffer) Capacity() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.ring)
}

// Total returns the number of records pushed since creation, including
// records that have since been evicted or cleared.
func (b *Buffer) Total() uint64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.total
}

// Resize changes the capacity, keeping the newest records that still fit.
// A non-positive capacity is ignored.
func (b *Buffer) Resize(capacity int) {
	if capacity <= 0 {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	if capacity == len(b.ring) {
		return
	}
	keep := b.size
	if keep > capacity {
		keep = capacity
	}
	next := make([]types.Record, capacity)
	copy(next, b.window(b.size-keep, keep))
	b.ring = next
	b.head = 0
	b.size = keep
}

// window copies n records starting at logical offset from (0 = oldest).
// Must be called with the lock held.
func (b *Buffer) window(from, n int) []types.Record {
	out := make([]types.Record, n)
	capacity := len(b.ring)
	for i := 0; i < n; i++ {
		out[i] = b.ring[(b.head+from+i)%capacity]
	}
	return out
}
