// Package dedupe tracks keys that were already accepted so that repeated
// work is processed at most once. The replay service keys it by submission
// ID; input capture keys it by (action, target event) pairs.
package dedupe

import (
	"context"
	"sync"
)

const defaultMaxSize = 50000

// Deduper records seen keys to ensure at-most-once processing.
type Deduper[K comparable] interface {
	// SeenAndRecord atomically checks if key was seen and records it if not.
	// Returns true if key was already seen, false if it was newly recorded.
	SeenAndRecord(ctx context.Context, key K) bool

	// Unrecord forgets key so a later attempt is accepted again. Used when a
	// key was recorded but the work behind it could not be queued.
	Unrecord(ctx context.Context, key K)

	// Reset forgets every key.
	Reset()

	Size() int
}

type entry[K comparable] struct {
	key K
	seq uint64
}

// inMemoryDeduper keeps keys in a map and evicts the oldest insertion once
// maxSize is reached. Insertion order lives in a FIFO of (key, sequence)
// pairs; entries whose sequence no longer matches the map were unrecorded
// and are skipped on eviction.
type inMemoryDeduper[K comparable] struct {
	mu      sync.Mutex
	seen    map[K]uint64
	order   []entry[K]
	head    int
	seq     uint64
	maxSize int
}

// NewInMemory creates an in-memory deduper. With maxSize <= 0 it never
// evicts.
func NewInMemory[K comparable](opts ...Option) Deduper[K] {
	cfg := config{maxSize: defaultMaxSize}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &inMemoryDeduper[K]{
		seen:    make(map[K]uint64),
		maxSize: cfg.maxSize,
	}
}

func (d *inMemoryDeduper[K]) SeenAndRecord(_ context.Context, key K) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.seen[key]; ok {
		return true
	}
	if d.maxSize > 0 && len(d.seen) >= d.maxSize {
		d.evictOldest()
	}

	d.seq++
	d.seen[key] = d.seq
	if d.maxSize > 0 {
		d.order = append(d.order, entry[K]{key: key, seq: d.seq})
	}
	return false
}

func (d *inMemoryDeduper[K]) Unrecord(_ context.Context, key K) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.seen, key)
}

func (d *inMemoryDeduper[K]) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	clear(d.seen)
	d.order = d.order[:0]
	d.head = 0
}

func (d *inMemoryDeduper[K]) Size() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.seen)
}

// evictOldest drops the oldest live key. Must be called with d.mu held.
func (d *inMemoryDeduper[K]) evictOldest() {
	for d.head < len(d.order) {
		e := d.order[d.head]
		var zero entry[K]
		d.order[d.head] = zero
		d.head++
		if seq, ok := d.seen[e.key]; ok && seq == e.seq {
			delete(d.seen, e.key)
			break
		}
	}
	// compact once the dead prefix dominates the backing array
	if d.head > len(d.order)/2 {
		n := copy(d.order, d.order[d.head:])
		d.order = d.order[:n]
		d.head = 0
	}
}
