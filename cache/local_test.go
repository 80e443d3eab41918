package cache

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Unix(1_700_000_000, 0)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func TestLocalBackend_GetSetDelete(t *testing.T) {
	b := NewLocalBackend(10)
	ctx := context.Background()

	val, ok := b.Get(ctx, "nonexistent")
	if ok || val != nil {
		t.Fatalf("Get on empty backend = (%q, %v), want (nil, false)", val, ok)
	}

	if err := b.Set(ctx, "k", []byte("v"), time.Minute); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	got, ok := b.Get(ctx, "k")
	if !ok || !bytes.Equal(got, []byte("v")) {
		t.Fatalf("Get = (%q, %v), want (v, true)", got, ok)
	}

	if err := b.Delete(ctx, "k"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, ok := b.Get(ctx, "k"); ok {
		t.Error("Get after Delete should miss")
	}
	if err := b.Delete(ctx, "k"); err != nil {
		t.Errorf("Delete on missing key should not error, got: %v", err)
	}
}

func TestLocalBackend_TTLExpiry(t *testing.T) {
	clock := newFakeClock()
	b := NewLocalBackend(10, WithClock(clock.Now))
	ctx := context.Background()

	if err := b.Set(ctx, "k", []byte("v"), time.Second); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	clock.Advance(999 * time.Millisecond)
	if _, ok := b.Get(ctx, "k"); !ok {
		t.Fatal("entry should be present before its TTL elapses")
	}

	clock.Advance(time.Millisecond)
	if _, ok := b.Get(ctx, "k"); ok {
		t.Fatal("entry should be absent once its TTL has elapsed")
	}
	if b.Len() != 0 {
		t.Errorf("Len() = %d, expired entry should be dropped on read", b.Len())
	}
	if got := b.Stats().Expirations; got != 1 {
		t.Errorf("Expirations = %d, want 1", got)
	}
}

func TestLocalBackend_ZeroTTLNeverExpires(t *testing.T) {
	clock := newFakeClock()
	b := NewLocalBackend(10, WithClock(clock.Now))
	ctx := context.Background()

	_ = b.Set(ctx, "k", []byte("v"), 0)
	clock.Advance(24 * 365 * time.Hour)

	if _, ok := b.Get(ctx, "k"); !ok {
		t.Fatal("TTL=0 entry should not expire")
	}
}

func TestLocalBackend_NegativeTTL(t *testing.T) {
	b := NewLocalBackend(10)
	err := b.Set(context.Background(), "k", []byte("v"), -time.Second)
	if !errors.Is(err, ErrNegativeTTL) {
		t.Fatalf("Set with negative TTL err = %v, want ErrNegativeTTL", err)
	}
	if b.Len() != 0 {
		t.Error("rejected write should not be stored")
	}
}

func TestLocalBackend_LRUEviction(t *testing.T) {
	b := NewLocalBackend(2)
	ctx := context.Background()

	_ = b.Set(ctx, "a", []byte("1"), 0)
	_ = b.Set(ctx, "b", []byte("2"), 0)

	// Touch "a" so "b" becomes least recently used.
	if _, ok := b.Get(ctx, "a"); !ok {
		t.Fatal("a should be present")
	}
	_ = b.Set(ctx, "c", []byte("3"), 0)

	if b.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", b.Len())
	}
	if _, ok := b.Get(ctx, "b"); ok {
		t.Error("b should have been evicted as least recently used")
	}
	for _, k := range []string{"a", "c"} {
		if _, ok := b.Get(ctx, k); !ok {
			t.Errorf("%s should still be present", k)
		}
	}
	if got := b.Stats().Evictions; got != 1 {
		t.Errorf("Evictions = %d, want 1", got)
	}
}

func TestLocalBackend_OverwriteDoesNotEvict(t *testing.T) {
	b := NewLocalBackend(2)
	ctx := context.Background()

	_ = b.Set(ctx, "a", []byte("1"), 0)
	_ = b.Set(ctx, "b", []byte("2"), 0)
	_ = b.Set(ctx, "a", []byte("updated"), 0)

	if b.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", b.Len())
	}
	got, _ := b.Get(ctx, "a")
	if string(got) != "updated" {
		t.Errorf("Get(a) = %q, want updated", got)
	}
	if _, ok := b.Get(ctx, "b"); !ok {
		t.Error("overwrite must not evict other entries")
	}
}

func TestLocalBackend_ExpiredTailCountsAsExpiration(t *testing.T) {
	clock := newFakeClock()
	b := NewLocalBackend(2, WithClock(clock.Now))
	ctx := context.Background()

	_ = b.Set(ctx, "short", []byte("1"), time.Second)
	_ = b.Set(ctx, "long", []byte("2"), time.Hour)
	clock.Advance(2 * time.Second)
	_ = b.Set(ctx, "new", []byte("3"), time.Hour)

	stats := b.Stats()
	if stats.Expirations != 1 || stats.Evictions != 0 {
		t.Errorf("stats = %+v, want 1 expiration and 0 evictions", stats)
	}
	if _, ok := b.Get(ctx, "long"); !ok {
		t.Error("live entry should survive")
	}
}

func TestLocalBackend_DeleteExpired(t *testing.T) {
	clock := newFakeClock()
	b := NewLocalBackend(10, WithClock(clock.Now))
	ctx := context.Background()

	_ = b.Set(ctx, "a", []byte("1"), time.Second)
	_ = b.Set(ctx, "b", []byte("2"), time.Second)
	_ = b.Set(ctx, "c", []byte("3"), time.Hour)
	clock.Advance(time.Minute)

	if n := b.DeleteExpired(); n != 2 {
		t.Errorf("DeleteExpired() = %d, want 2", n)
	}
	if b.Len() != 1 {
		t.Errorf("Len() = %d, want 1", b.Len())
	}
}

func TestLocalBackend_ValuesAreCopied(t *testing.T) {
	b := NewLocalBackend(10)
	ctx := context.Background()

	in := []byte("original")
	_ = b.Set(ctx, "k", in, 0)
	in[0] = 'X'

	out, _ := b.Get(ctx, "k")
	if string(out) != "original" {
		t.Fatalf("stored value mutated through input slice: %q", out)
	}
	out[0] = 'Y'

	again, _ := b.Get(ctx, "k")
	if string(again) != "original" {
		t.Fatalf("stored value mutated through returned slice: %q", again)
	}
}

func TestLocalBackend_StatsAndClear(t *testing.T) {
	b := NewLocalBackend(10)
	ctx := context.Background()

	_ = b.Set(ctx, "k", []byte("v"), 0)
	b.Get(ctx, "k")
	b.Get(ctx, "missing")

	stats := b.Stats()
	if stats.Hits != 1 || stats.Misses != 1 {
		t.Errorf("stats = %+v, want 1 hit and 1 miss", stats)
	}

	b.Clear()
	if b.Len() != 0 {
		t.Errorf("Len() after Clear = %d, want 0", b.Len())
	}
}

func TestLocalBackend_Identity(t *testing.T) {
	b := NewLocalBackend(0)
	if b.Kind() != KindLocal {
		t.Errorf("Kind() = %q, want %q", b.Kind(), KindLocal)
	}
	if !b.HealthCheck(context.Background(), 0) {
		t.Error("local backend should always be healthy")
	}
	if b.maxEntries != DefaultLocalMaxEntries {
		t.Errorf("maxEntries = %d, want default %d", b.maxEntries, DefaultLocalMaxEntries)
	}
	if err := b.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
}

func TestLocalBackend_Concurrent(t *testing.T) {
	b := NewLocalBackend(100)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				key := fmt.Sprintf("key-%d-%d", n, j%10)
				_ = b.Set(ctx, key, []byte("value"), time.Minute)
				b.Get(ctx, key)
				if j%7 == 0 {
					_ = b.Delete(ctx, key)
				}
			}
		}(i)
	}
	wg.Wait()

	if b.Len() > 100 {
		t.Errorf("Len() = %d exceeds bound 100", b.Len())
	}
}
