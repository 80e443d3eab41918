package resilience

import (
	"context"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"
)

// BulkheadConfig configures a Bulkhead.
type BulkheadConfig struct {
	// MaxConcurrent is the number of slots. Default: 10
	MaxConcurrent int

	// MaxWait is how long Acquire waits for a free slot.
	// Zero fails immediately when the bulkhead is full.
	MaxWait time.Duration
}

// Bulkhead caps how many guarded operations run at once.
type Bulkhead struct {
	limit   int
	maxWait time.Duration
	sem     *semaphore.Weighted

	held     atomic.Int64
	peak     atomic.Int64
	rejected atomic.Int64
}

// NewBulkhead creates a bulkhead with config.MaxConcurrent slots.
func NewBulkhead(config BulkheadConfig) *Bulkhead {
	limit := config.MaxConcurrent
	if limit <= 0 {
		limit = 10
	}
	return &Bulkhead{
		limit:   limit,
		maxWait: config.MaxWait,
		sem:     semaphore.NewWeighted(int64(limit)),
	}
}

// Acquire takes a slot, waiting up to MaxWait. It returns ErrBulkheadFull
// when no slot frees up in time, or ctx.Err() if ctx ends first.
func (b *Bulkhead) Acquire(ctx context.Context) error {
	if b.sem.TryAcquire(1) {
		b.took()
		return nil
	}
	if b.maxWait <= 0 {
		b.rejected.Add(1)
		return ErrBulkheadFull
	}

	wctx, cancel := context.WithTimeout(ctx, b.maxWait)
	defer cancel()
	if err := b.sem.Acquire(wctx, 1); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		b.rejected.Add(1)
		return ErrBulkheadFull
	}
	b.took()
	return nil
}

func (b *Bulkhead) took() {
	n := b.held.Add(1)
	for {
		p := b.peak.Load()
		if n <= p || b.peak.CompareAndSwap(p, n) {
			return
		}
	}
}

// Release returns a slot. Releasing with no slot held does nothing.
func (b *Bulkhead) Release() {
	for {
		n := b.held.Load()
		if n <= 0 {
			return
		}
		if b.held.CompareAndSwap(n, n-1) {
			b.sem.Release(1)
			return
		}
	}
}

// Execute runs op in a slot.
func (b *Bulkhead) Execute(ctx context.Context, op func(context.Context) error) error {
	if err := b.Acquire(ctx); err != nil {
		return err
	}
	defer b.Release()
	return op(ctx)
}

// BulkheadMetrics is a point-in-time view of a Bulkhead.
type BulkheadMetrics struct {
	Active        int
	MaxActive     int
	Available     int
	MaxConcurrent int
	Rejected      int64
}

// Metrics returns the current slot usage.
func (b *Bulkhead) Metrics() BulkheadMetrics {
	held := int(b.held.Load())
	return BulkheadMetrics{
		Active:        held,
		MaxActive:     int(b.peak.Load()),
		Available:     b.limit - held,
		MaxConcurrent: b.limit,
		Rejected:      b.rejected.Load(),
	}
}
