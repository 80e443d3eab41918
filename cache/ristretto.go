package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/dgraph-io/ristretto"
)

// RistrettoBackend is an in-process store backed by ristretto.
//
// Admission is TinyLFU, so unlike LocalBackend a Set may be dropped under
// contention; such writes return ErrWriteRejected. Every entry costs 1, so
// the capacity is an entry count.
type RistrettoBackend struct {
	c *ristretto.Cache
}

// NewRistrettoBackend creates a store holding roughly maxEntries entries.
// A non-positive maxEntries uses DefaultLocalMaxEntries.
func NewRistrettoBackend(maxEntries int) (*RistrettoBackend, error) {
	if maxEntries <= 0 {
		maxEntries = DefaultLocalMaxEntries
	}
	c, err := ristretto.NewCache(&ristretto.Config{
		NumCounters:        int64(maxEntries) * 10,
		MaxCost:            int64(maxEntries),
		BufferItems:        64,
		IgnoreInternalCost: true, // every entry costs 1, so MaxCost counts entries
	})
	if err != nil {
		return nil, fmt.Errorf("%w: ristretto: %v", ErrInvalidConfig, err)
	}
	return &RistrettoBackend{c: c}, nil
}

// Get retrieves a copy of the stored value.
func (b *RistrettoBackend) Get(_ context.Context, key string) ([]byte, bool) {
	v, ok := b.c.Get(key)
	if !ok {
		return nil, false
	}
	raw, ok := v.([]byte)
	if !ok {
		b.c.Del(key)
		return nil, false
	}
	return cloneBytes(raw), true
}

// Set stores a copy of value and waits until it is visible to Get.
func (b *RistrettoBackend) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	if err := checkTTL(ttl); err != nil {
		return err
	}
	if !b.c.SetWithTTL(key, cloneBytes(value), 1, ttl) {
		return ErrWriteRejected
	}
	b.c.Wait()
	return nil
}

// Delete removes a value.
func (b *RistrettoBackend) Delete(_ context.Context, key string) error {
	b.c.Del(key)
	return nil
}

// HealthCheck always succeeds.
func (b *RistrettoBackend) HealthCheck(context.Context, time.Duration) bool {
	return true
}

// Kind returns KindRistretto.
func (b *RistrettoBackend) Kind() Kind {
	return KindRistretto
}

// Close drains pending writes and stops ristretto's goroutines.
func (b *RistrettoBackend) Close() error {
	b.c.Wait()
	b.c.Close()
	return nil
}

var _ Backend = (*RistrettoBackend)(nil)
