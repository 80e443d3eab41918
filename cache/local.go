package cache

import (
	"container/list"
	"context"
	"sync"
	"time"
)

// DefaultLocalMaxEntries bounds a LocalBackend when no capacity is configured.
const DefaultLocalMaxEntries = 10000

// LocalBackend is a bounded in-process LRU map with per-entry TTL.
//
// Expired entries read as absent even before they are swept. When a write
// pushes the entry count past the bound, expired entries at the cold end are
// dropped first, then the least-recently-used entry.
type LocalBackend struct {
	maxEntries int
	now        func() time.Time

	mu    sync.Mutex
	ll    *list.List // front = most recently used
	items map[string]*list.Element
	stats LocalStats
}

type localEntry struct {
	key string
	Entry
}

// LocalStats are cumulative counters for a LocalBackend.
type LocalStats struct {
	Hits        uint64
	Misses      uint64
	Evictions   uint64
	Expirations uint64
}

// LocalOption configures a LocalBackend.
type LocalOption func(*LocalBackend)

// WithClock overrides the time source. Intended for tests.
func WithClock(now func() time.Time) LocalOption {
	return func(b *LocalBackend) {
		if now != nil {
			b.now = now
		}
	}
}

// NewLocalBackend creates a LocalBackend holding at most maxEntries entries.
// A non-positive maxEntries uses DefaultLocalMaxEntries.
func NewLocalBackend(maxEntries int, opts ...LocalOption) *LocalBackend {
	if maxEntries <= 0 {
		maxEntries = DefaultLocalMaxEntries
	}
	b := &LocalBackend{
		maxEntries: maxEntries,
		now:        time.Now,
		ll:         list.New(),
		items:      make(map[string]*list.Element),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Get retrieves a value and marks it most recently used.
func (b *LocalBackend) Get(_ context.Context, key string) ([]byte, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	el, ok := b.items[key]
	if !ok {
		b.stats.Misses++
		return nil, false
	}
	ent := el.Value.(*localEntry)
	if ent.Expired(b.now()) {
		b.removeElement(el)
		b.stats.Expirations++
		b.stats.Misses++
		return nil, false
	}

	b.ll.MoveToFront(el)
	b.stats.Hits++
	return cloneBytes(ent.Value), true
}

// Set stores a copy of value. TTL=0 means the entry only leaves by eviction or Delete.
func (b *LocalBackend) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	if err := checkTTL(ttl); err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	ent := Entry{Value: cloneBytes(value), TTL: ttl, InsertedAt: b.now()}
	if el, ok := b.items[key]; ok {
		el.Value.(*localEntry).Entry = ent
		b.ll.MoveToFront(el)
		return nil
	}

	b.items[key] = b.ll.PushFront(&localEntry{key: key, Entry: ent})
	if b.ll.Len() > b.maxEntries {
		b.evictLocked()
	}
	return nil
}

// Delete removes a value. Idempotent - no error on miss.
func (b *LocalBackend) Delete(_ context.Context, key string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if el, ok := b.items[key]; ok {
		b.removeElement(el)
	}
	return nil
}

// HealthCheck always succeeds; the map lives in this process.
func (b *LocalBackend) HealthCheck(context.Context, time.Duration) bool {
	return true
}

// Kind returns KindLocal.
func (b *LocalBackend) Kind() Kind {
	return KindLocal
}

// Close is a no-op.
func (b *LocalBackend) Close() error {
	return nil
}

// Len returns the number of stored entries, including expired ones not yet swept.
func (b *LocalBackend) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.ll.Len()
}

// Stats returns a snapshot of the cumulative counters.
func (b *LocalBackend) Stats() LocalStats {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.stats
}

// Clear removes every entry.
func (b *LocalBackend) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.ll.Init()
	b.items = make(map[string]*list.Element)
}

// DeleteExpired sweeps all expired entries and returns how many were removed.
func (b *LocalBackend) DeleteExpired() int {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.now()
	removed := 0
	for el := b.ll.Back(); el != nil; {
		prev := el.Prev()
		if el.Value.(*localEntry).Expired(now) {
			b.removeElement(el)
			removed++
		}
		el = prev
	}
	b.stats.Expirations += uint64(removed)
	return removed
}

// evictLocked brings the list back within bounds. Caller holds mu.
func (b *LocalBackend) evictLocked() {
	now := b.now()
	for b.ll.Len() > b.maxEntries {
		el := b.ll.Back()
		if el.Value.(*localEntry).Expired(now) {
			b.stats.Expirations++
		} else {
			b.stats.Evictions++
		}
		b.removeElement(el)
	}
}

func (b *LocalBackend) removeElement(el *list.Element) {
	b.ll.Remove(el)
	delete(b.items, el.Value.(*localEntry).key)
}

func cloneBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

var _ Backend = (*LocalBackend)(nil)
