package resilience

import (
	"context"
	"sort"
	"sync"

	"github.com/jonwraymond/fetchguard/observe"
)

// Registry holds one CircuitBreaker per resource id, created lazily from a
// shared config. Breakers for different resources never contend.
type Registry struct {
	config CircuitBreakerConfig
	events observe.Events

	mu       sync.RWMutex
	breakers map[string]*CircuitBreaker
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithTransitionEvents reports every state change to events.
func WithTransitionEvents(events observe.Events) RegistryOption {
	return func(r *Registry) {
		if events != nil {
			r.events = events
		}
	}
}

// NewRegistry creates an empty registry. config.OnStateChange, if set, is
// called for every breaker in addition to the registry's own events.
func NewRegistry(config CircuitBreakerConfig, opts ...RegistryOption) *Registry {
	r := &Registry{
		config:   config,
		events:   observe.NopEvents(),
		breakers: make(map[string]*CircuitBreaker),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Breaker returns the breaker for resourceID, creating it on first use.
func (r *Registry) Breaker(resourceID string) *CircuitBreaker {
	r.mu.RLock()
	cb, ok := r.breakers[resourceID]
	r.mu.RUnlock()
	if ok {
		return cb
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if cb, ok := r.breakers[resourceID]; ok {
		return cb
	}
	cfg := r.config
	userHook := cfg.OnStateChange
	cfg.OnStateChange = func(t Transition) {
		r.events.BreakerTransition(context.Background(), observe.TransitionEvent{
			ResourceID:          t.ResourceID,
			From:                t.From.String(),
			To:                  t.To.String(),
			ConsecutiveFailures: t.ConsecutiveFailures,
			OpenDuration:        t.OpenDuration,
		})
		if userHook != nil {
			userHook(t)
		}
	}
	cb = newCircuitBreaker(resourceID, cfg)
	r.breakers[resourceID] = cb
	return cb
}

// Execute runs op through the breaker for resourceID.
func (r *Registry) Execute(ctx context.Context, resourceID string, op func(context.Context) error) error {
	return r.Breaker(resourceID).Execute(ctx, op)
}

// Run executes fn through the breaker for resourceID and returns its value.
// On rejection fn is not called and the error matches ErrCircuitOpen.
func Run[T any](ctx context.Context, r *Registry, resourceID string, fn func(context.Context) (T, error)) (T, error) {
	var out T
	err := r.Execute(ctx, resourceID, func(ctx context.Context) error {
		v, err := fn(ctx)
		if err != nil {
			return err
		}
		out = v
		return nil
	})
	return out, err
}

// RecordSuccess records a success for resourceID.
func (r *Registry) RecordSuccess(resourceID string) {
	r.Breaker(resourceID).RecordSuccess()
}

// RecordFailure records a failure for resourceID.
func (r *Registry) RecordFailure(resourceID string) {
	r.Breaker(resourceID).RecordFailure()
}

// State returns the state of resourceID. Unknown resources are closed.
func (r *Registry) State(resourceID string) State {
	r.mu.RLock()
	cb, ok := r.breakers[resourceID]
	r.mu.RUnlock()
	if !ok {
		return StateClosed
	}
	return cb.State()
}

// Reset closes the breaker for resourceID. Unknown resources are ignored.
func (r *Registry) Reset(resourceID string) {
	r.mu.RLock()
	cb, ok := r.breakers[resourceID]
	r.mu.RUnlock()
	if ok {
		cb.Reset()
	}
}

// Snapshot returns metrics for every known resource, sorted by id.
func (r *Registry) Snapshot() []CircuitBreakerMetrics {
	r.mu.RLock()
	list := make([]*CircuitBreaker, 0, len(r.breakers))
	for _, cb := range r.breakers {
		list = append(list, cb)
	}
	r.mu.RUnlock()

	out := make([]CircuitBreakerMetrics, 0, len(list))
	for _, cb := range list {
		out = append(out, cb.Metrics())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ResourceID < out[j].ResourceID })
	return out
}
