package reliable

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"time"

	"github.com/jonwraymond/fetchguard/cache"
	"github.com/jonwraymond/fetchguard/codec"
	"github.com/jonwraymond/fetchguard/config"
	"github.com/jonwraymond/fetchguard/observe"
	"github.com/jonwraymond/fetchguard/resilience"
)

// DefaultComputeTimeout bounds a computation when no timeout is configured.
const DefaultComputeTimeout = resilience.DefaultTimeout

// ErrNilBackend is returned by New when backend is nil.
var ErrNilBackend = errors.New("reliable: nil backend")

// ComputeFunc produces the bytes to cache for a key.
type ComputeFunc = observe.ComputeFunc

// Cache combines a backend, per-resource circuit breakers and in-flight
// deduplication.
//
// Contract:
//   - Concurrency: all methods are safe for concurrent use.
//   - Context: ctx bounds how long a caller waits, not the computation.
//     A computation runs until it finishes, its last waiter leaves, or the
//     compute timeout elapses.
//   - Errors: computation errors are returned verbatim and never cached;
//     an open circuit yields an error matching resilience.ErrCircuitOpen;
//     backend failures degrade to misses and logged writes.
type Cache struct {
	backend  cache.Backend
	breakers *resilience.Registry
	bulkhead *resilience.Bulkhead
	opts     options
	observer observe.Observer

	mu       sync.Mutex
	inflight map[string]*call
}

// call is one running computation and the callers waiting on it.
type call struct {
	done chan struct{}
	val  []byte
	err  error

	// guarded by Cache.mu
	waiters   int
	abandoned bool
	cancel    context.CancelFunc
}

// New creates a Cache over backend. A nil registry gets one with the
// default breaker configuration.
func New(backend cache.Backend, breakers *resilience.Registry, opts ...Option) (*Cache, error) {
	if backend == nil {
		return nil, ErrNilBackend
	}
	o := applyOptions(opts)
	if breakers == nil {
		breakers = resilience.NewRegistry(resilience.DefaultCircuitBreakerConfig(),
			resilience.WithTransitionEvents(o.events))
	}
	if o.meta.BackendKind == "" {
		o.meta = cache.Metadata{BackendKind: backend.Kind()}
	}

	c := &Cache{
		backend:  backend,
		breakers: breakers,
		opts:     o,
		inflight: make(map[string]*call),
	}
	if o.maxConcurrent > 0 {
		c.bulkhead = resilience.NewBulkhead(resilience.BulkheadConfig{MaxConcurrent: o.maxConcurrent})
	}
	return c, nil
}

// NewFromConfig builds the backend with cache.CreateWithFallback and a
// breaker registry from cfg. Unless WithObserver is given, an Observer is
// built from cfg.Observe and shut down by Close. Options given by the caller
// override the values taken from cfg.
func NewFromConfig(ctx context.Context, cfg config.Config, opts ...Option) (*Cache, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var owned observe.Observer
	base := []Option{
		WithPolicy(cfg.Cache.Policy()),
		WithComputeTimeout(cfg.Compute.Timeout()),
		WithMaxConcurrentComputes(cfg.Compute.MaxConcurrent),
	}
	if !applyOptions(opts).observed {
		obs, err := observe.NewObserver(ctx, cfg.Observe)
		if err != nil {
			return nil, &config.ConfigError{Key: "observe", Err: err}
		}
		owned = obs
		base = append([]Option{WithObserver(obs)}, base...)
	}
	opts = append(base, opts...)
	o := applyOptions(opts)

	backend, meta := cache.CreateWithFallback(ctx, cfg.CacheConfig(),
		cache.WithLogger(o.logger),
		cache.WithEvents(o.events),
	)
	breakers := resilience.NewRegistry(cfg.BreakerConfig(),
		resilience.WithTransitionEvents(o.events))

	c, err := New(backend, breakers, append(opts, withMetadata(meta))...)
	if err != nil {
		return nil, err
	}
	c.observer = owned
	return c, nil
}

// GetOrCompute returns the cached value for key, or runs fn through the
// breaker for resourceID and caches its result. Concurrent callers for the
// same key share one run of fn.
func (c *Cache) GetOrCompute(ctx context.Context, key, resourceID string, fn ComputeFunc, opts ...CallOption) (val []byte, err error) {
	if err := cache.ValidateKey(key); err != nil {
		return nil, err
	}
	var co callOptions
	for _, opt := range opts {
		opt(&co)
	}
	if co.ttl < 0 {
		return nil, cache.ErrNegativeTTL
	}

	meta := observe.OpMeta{
		Name:       "get_or_compute",
		ResourceID: resourceID,
		Namespace:  cache.NamespaceOf(key),
		Key:        key,
	}
	ctx, span := c.opts.tracer.StartSpan(ctx, meta)
	defer func() { c.opts.tracer.EndSpan(span, err) }()

	if v, ok := c.backend.Get(ctx, key); ok {
		c.opts.events.CacheLookup(ctx, meta.Namespace, true)
		return v, nil
	}
	c.opts.events.CacheLookup(ctx, meta.Namespace, false)

	c.mu.Lock()
	if cl, ok := c.inflight[key]; ok && !cl.abandoned {
		cl.waiters++
		c.mu.Unlock()
		return c.wait(ctx, cl)
	}
	computeCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	cl := &call{done: make(chan struct{}), waiters: 1, cancel: cancel}
	c.inflight[key] = cl
	c.mu.Unlock()

	meta.Name = "compute"
	go c.run(computeCtx, key, meta, fn, co.ttl, cl)
	return c.wait(ctx, cl)
}

func (c *Cache) wait(ctx context.Context, cl *call) ([]byte, error) {
	select {
	case <-cl.done:
		if cl.err != nil {
			return nil, cl.err
		}
		return bytes.Clone(cl.val), nil
	case <-ctx.Done():
		c.leave(cl)
		return nil, ctx.Err()
	}
}

func (c *Cache) leave(cl *call) {
	c.mu.Lock()
	cl.waiters--
	last := cl.waiters == 0
	if last {
		cl.abandoned = true
	}
	c.mu.Unlock()
	if last {
		cl.cancel()
	}
}

func (c *Cache) run(ctx context.Context, key string, meta observe.OpMeta, fn ComputeFunc, ttl time.Duration, cl *call) {
	defer cl.cancel()

	// A previous computation may have stored key between the caller's miss
	// and the registration of cl.
	val, ok := c.backend.Get(ctx, key)
	var err error
	if !ok {
		val, err = c.compute(ctx, meta, fn)
		if err == nil {
			c.store(context.WithoutCancel(ctx), key, val, ttl)
		}
	}

	c.mu.Lock()
	if c.inflight[key] == cl {
		delete(c.inflight, key)
	}
	c.mu.Unlock()

	cl.val, cl.err = val, err
	close(cl.done)
}

// compute runs fn under the bulkhead and the breaker for meta.ResourceID.
// The timeout sits inside the breaker so that an expired trial is recorded
// as a failure and frees its half-open slot.
func (c *Cache) compute(ctx context.Context, meta observe.OpMeta, fn ComputeFunc) ([]byte, error) {
	if c.bulkhead != nil {
		if err := c.bulkhead.Acquire(ctx); err != nil {
			return nil, err
		}
		defer c.bulkhead.Release()
	}
	guarded := c.opts.middleware.Wrap(meta, fn)
	return resilience.Run[[]byte](ctx, c.breakers, meta.ResourceID, func(ctx context.Context) ([]byte, error) {
		return resilience.Do(ctx, c.opts.computeTimeout, guarded)
	})
}

func (c *Cache) store(ctx context.Context, key string, val []byte, ttl time.Duration) {
	ttl = c.opts.policy.EffectiveTTL(ttl)
	if err := c.backend.Set(ctx, key, val, ttl); err != nil {
		c.opts.logger.Warn(ctx, "cache write failed",
			observe.F("cache.key", key),
			observe.F("cache.backend", string(c.backend.Kind())),
			observe.F("error", err),
		)
	}
}

// GetOrComputeValue is GetOrCompute for typed values. fn's result is
// encoded with cd before it is cached; every caller decodes its own copy.
func GetOrComputeValue[T any](ctx context.Context, c *Cache, key, resourceID string, cd codec.Codec[T], fn func(context.Context) (T, error), opts ...CallOption) (T, error) {
	raw, err := c.GetOrCompute(ctx, key, resourceID, func(ctx context.Context) ([]byte, error) {
		v, err := fn(ctx)
		if err != nil {
			return nil, err
		}
		return cd.Encode(v)
	}, opts...)
	if err != nil {
		var zero T
		return zero, err
	}
	return cd.Decode(raw)
}

// Execute runs op through the breaker for resourceID without caching.
func (c *Cache) Execute(ctx context.Context, resourceID string, op func(context.Context) error) error {
	return c.breakers.Execute(ctx, resourceID, op)
}

// Call is Execute for operations that return a value.
func Call[T any](ctx context.Context, c *Cache, resourceID string, fn func(context.Context) (T, error)) (T, error) {
	return resilience.Run(ctx, c.breakers, resourceID, fn)
}

// Invalidate removes key from the backend. A computation already running
// for key is not affected.
func (c *Cache) Invalidate(ctx context.Context, key string) error {
	if err := cache.ValidateKey(key); err != nil {
		return err
	}
	return c.backend.Delete(ctx, key)
}

// InFlight returns the number of keys with a running computation.
func (c *Cache) InFlight() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.inflight)
}

// Metadata describes the backend in use.
func (c *Cache) Metadata() cache.Metadata { return c.opts.meta }

// Backend returns the underlying backend.
func (c *Cache) Backend() cache.Backend { return c.backend }

// Breakers returns the breaker registry.
func (c *Cache) Breakers() *resilience.Registry { return c.breakers }

// Close releases the backend and any Observer built by NewFromConfig.
// Running computations are not cancelled.
func (c *Cache) Close() error {
	err := c.backend.Close()
	if c.observer != nil {
		err = errors.Join(err, c.observer.Shutdown(context.Background()))
	}
	return err
}
