package resilience

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"
)

// State represents the circuit breaker state.
type State int

const (
	// StateClosed means calls flow normally.
	StateClosed State = iota
	// StateOpen means calls are rejected without being attempted.
	StateOpen
	// StateHalfOpen means a limited number of trial calls probe the resource.
	StateHalfOpen
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// Breaker defaults.
const (
	DefaultFailureThreshold  = 5
	DefaultOpenDuration      = 30 * time.Second
	DefaultHalfOpenMaxTrials = 1
)

// Transition describes a state change of one breaker.
type Transition struct {
	ResourceID          string
	From                State
	To                  State
	ConsecutiveFailures int
	// OpenDuration is the cool-down in force when To is StateOpen.
	OpenDuration time.Duration
	At           time.Time
}

// CircuitBreakerConfig configures a circuit breaker.
type CircuitBreakerConfig struct {
	// FailureThreshold is the number of consecutive failures that opens the circuit.
	// Default: 5
	FailureThreshold int

	// OpenDuration is how long the circuit stays open before admitting a trial.
	// Zero admits a trial on the next call. Negative values use the default.
	// Default: 30 seconds
	OpenDuration time.Duration

	// HalfOpenMaxTrials is the number of concurrent trial calls admitted in half-open.
	// Default: 1
	HalfOpenMaxTrials int

	// BackoffMultiplier scales OpenDuration each time a trial fails.
	// Values below 1 disable backoff. A success in closed state resets it.
	BackoffMultiplier float64

	// MaxOpenDuration caps the backed-off open duration. Zero means no cap.
	MaxOpenDuration time.Duration

	// OnStateChange is called after every transition, outside the breaker's lock.
	OnStateChange func(Transition)

	// IsFailure determines if an error counts as a failure.
	// Default: all non-nil errors except context.Canceled.
	IsFailure func(err error) bool

	// Clock is the time source. Default: time.Now
	Clock func() time.Time
}

// DefaultCircuitBreakerConfig returns the documented defaults.
func DefaultCircuitBreakerConfig() CircuitBreakerConfig {
	return CircuitBreakerConfig{
		FailureThreshold:  DefaultFailureThreshold,
		OpenDuration:      DefaultOpenDuration,
		HalfOpenMaxTrials: DefaultHalfOpenMaxTrials,
	}
}

func (c CircuitBreakerConfig) withDefaults() CircuitBreakerConfig {
	if c.FailureThreshold <= 0 {
		c.FailureThreshold = DefaultFailureThreshold
	}
	if c.OpenDuration < 0 {
		c.OpenDuration = DefaultOpenDuration
	}
	if c.HalfOpenMaxTrials <= 0 {
		c.HalfOpenMaxTrials = DefaultHalfOpenMaxTrials
	}
	if c.BackoffMultiplier < 1 {
		c.BackoffMultiplier = 1
	}
	if c.IsFailure == nil {
		c.IsFailure = defaultIsFailure
	}
	if c.Clock == nil {
		c.Clock = time.Now
	}
	return c
}

func defaultIsFailure(err error) bool {
	return err != nil && !errors.Is(err, context.Canceled)
}

// CircuitBreaker guards a single resource.
//
// State and counters live under one mutex, so the failure increment and the
// Closed->Open check are a single atomic step. Open->HalfOpen is evaluated
// lazily on the next call. Trial slots in half-open are claimed with a CAS on
// a word that packs the generation with the trial count, so a caller that
// raced with a transition can never take a slot from a later cycle.
type CircuitBreaker struct {
	name   string
	config CircuitBreakerConfig

	mu           sync.Mutex
	state        State
	failures     int
	changedAt    time.Time
	openDuration time.Duration
	generation   uint32

	// trials is generation<<32 | claimed trial slots.
	trials atomic.Uint64

	successes  atomic.Uint64
	totalFails atomic.Uint64
	rejections atomic.Uint64
}

// NewCircuitBreaker creates a circuit breaker for an unnamed resource.
func NewCircuitBreaker(config CircuitBreakerConfig) *CircuitBreaker {
	return newCircuitBreaker("", config)
}

func newCircuitBreaker(name string, config CircuitBreakerConfig) *CircuitBreaker {
	config = config.withDefaults()
	return &CircuitBreaker{
		name:         name,
		config:       config,
		state:        StateClosed,
		changedAt:    config.Clock(),
		openDuration: config.OpenDuration,
	}
}

// Name returns the resource id the breaker guards.
func (cb *CircuitBreaker) Name() string {
	return cb.name
}

// permit is an admission ticket. Results are applied only while the
// breaker is still in the generation that issued it.
type permit struct {
	gen   uint32
	trial bool
}

// Execute runs op if the breaker admits it and records the outcome.
// A rejected call returns an *OpenError that matches ErrCircuitOpen.
func (cb *CircuitBreaker) Execute(ctx context.Context, op func(context.Context) error) error {
	p, err := cb.acquire()
	if err != nil {
		return err
	}
	err = op(ctx)
	cb.record(p, err)
	return err
}

// Allow reports whether a call would currently be admitted without claiming a trial slot.
func (cb *CircuitBreaker) Allow() error {
	cb.mu.Lock()
	state, tr := cb.currentStateLocked()
	var err error
	switch state {
	case StateOpen:
		err = cb.openErrorLocked()
	case StateHalfOpen:
		if uint32(cb.trials.Load()) >= uint32(cb.config.HalfOpenMaxTrials) {
			err = &OpenError{ResourceID: cb.name}
		}
	}
	cb.mu.Unlock()
	cb.notify(tr)
	return err
}

// RecordSuccess records a successful call made outside Execute.
func (cb *CircuitBreaker) RecordSuccess() {
	cb.record(cb.currentPermit(), nil)
}

// RecordFailure records a failed call made outside Execute.
func (cb *CircuitBreaker) RecordFailure() {
	cb.recordFailure(cb.currentPermit())
}

func (cb *CircuitBreaker) currentPermit() permit {
	cb.mu.Lock()
	state, tr := cb.currentStateLocked()
	p := permit{gen: cb.generation, trial: state == StateHalfOpen}
	cb.mu.Unlock()
	cb.notify(tr)
	return p
}

func (cb *CircuitBreaker) acquire() (permit, error) {
	cb.mu.Lock()
	state, tr := cb.currentStateLocked()
	gen := cb.generation
	var openErr error
	if state == StateOpen {
		openErr = cb.openErrorLocked()
	}
	cb.mu.Unlock()
	cb.notify(tr)

	switch state {
	case StateOpen:
		cb.rejections.Add(1)
		return permit{}, openErr
	case StateHalfOpen:
		if !cb.claimTrial(gen) {
			cb.rejections.Add(1)
			return permit{}, &OpenError{ResourceID: cb.name}
		}
		return permit{gen: gen, trial: true}, nil
	default:
		return permit{gen: gen}, nil
	}
}

// claimTrial takes one half-open slot for generation gen.
func (cb *CircuitBreaker) claimTrial(gen uint32) bool {
	limit := uint64(cb.config.HalfOpenMaxTrials)
	for {
		cur := cb.trials.Load()
		if uint32(cur>>32) != gen || cur&0xffffffff >= limit {
			return false
		}
		if cb.trials.CompareAndSwap(cur, cur+1) {
			return true
		}
	}
}

func (cb *CircuitBreaker) record(p permit, err error) {
	if cb.config.IsFailure(err) {
		cb.recordFailure(p)
		return
	}
	if err != nil {
		// Not counted either way, but a trial slot must be handed back.
		cb.releaseTrial(p)
		return
	}

	cb.successes.Add(1)
	cb.mu.Lock()
	var tr *Transition
	if p.gen == cb.generation {
		switch cb.state {
		case StateClosed:
			cb.failures = 0
			cb.openDuration = cb.config.OpenDuration
		case StateHalfOpen:
			cb.failures = 0
			cb.openDuration = cb.config.OpenDuration
			tr = cb.transitionLocked(StateClosed)
		}
	}
	cb.mu.Unlock()
	cb.notify(tr)
}

func (cb *CircuitBreaker) recordFailure(p permit) {
	cb.totalFails.Add(1)
	cb.mu.Lock()
	var tr *Transition
	if p.gen == cb.generation {
		switch cb.state {
		case StateClosed:
			cb.failures++
			if cb.failures >= cb.config.FailureThreshold {
				tr = cb.transitionLocked(StateOpen)
			}
		case StateHalfOpen:
			cb.failures++
			cb.openDuration = cb.backoffLocked()
			tr = cb.transitionLocked(StateOpen)
		}
	}
	cb.mu.Unlock()
	cb.notify(tr)
}

func (cb *CircuitBreaker) releaseTrial(p permit) {
	if !p.trial {
		return
	}
	for {
		cur := cb.trials.Load()
		if uint32(cur>>32) != p.gen || cur&0xffffffff == 0 {
			return
		}
		if cb.trials.CompareAndSwap(cur, cur-1) {
			return
		}
	}
}

func (cb *CircuitBreaker) backoffLocked() time.Duration {
	next := time.Duration(float64(cb.openDuration) * cb.config.BackoffMultiplier)
	if cb.config.MaxOpenDuration > 0 && next > cb.config.MaxOpenDuration {
		next = cb.config.MaxOpenDuration
	}
	return next
}

// currentStateLocked applies the lazy Open->HalfOpen transition.
func (cb *CircuitBreaker) currentStateLocked() (State, *Transition) {
	if cb.state == StateOpen && !cb.config.Clock().Before(cb.changedAt.Add(cb.openDuration)) {
		return StateHalfOpen, cb.transitionLocked(StateHalfOpen)
	}
	return cb.state, nil
}

func (cb *CircuitBreaker) transitionLocked(to State) *Transition {
	from := cb.state
	cb.state = to
	cb.changedAt = cb.config.Clock()
	cb.generation++
	cb.trials.Store(uint64(cb.generation) << 32)
	return &Transition{
		ResourceID:          cb.name,
		From:                from,
		To:                  to,
		ConsecutiveFailures: cb.failures,
		OpenDuration:        cb.openDuration,
		At:                  cb.changedAt,
	}
}

func (cb *CircuitBreaker) openErrorLocked() error {
	retryAfter := cb.changedAt.Add(cb.openDuration).Sub(cb.config.Clock())
	if retryAfter < 0 {
		retryAfter = 0
	}
	return &OpenError{ResourceID: cb.name, RetryAfter: retryAfter}
}

func (cb *CircuitBreaker) notify(tr *Transition) {
	if tr != nil && cb.config.OnStateChange != nil {
		cb.config.OnStateChange(*tr)
	}
}

// State returns the current circuit state.
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	state, tr := cb.currentStateLocked()
	cb.mu.Unlock()
	cb.notify(tr)
	return state
}

// Reset returns the breaker to closed and discards results still in flight.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	cb.failures = 0
	cb.openDuration = cb.config.OpenDuration
	var tr *Transition
	if cb.state != StateClosed {
		tr = cb.transitionLocked(StateClosed)
	} else {
		cb.generation++
		cb.trials.Store(uint64(cb.generation) << 32)
	}
	cb.mu.Unlock()
	cb.notify(tr)
}

// Metrics returns current circuit breaker metrics.
func (cb *CircuitBreaker) Metrics() CircuitBreakerMetrics {
	cb.mu.Lock()
	state, tr := cb.currentStateLocked()
	m := CircuitBreakerMetrics{
		ResourceID:          cb.name,
		State:               state,
		ConsecutiveFailures: cb.failures,
		LastStateChange:     cb.changedAt,
		OpenDuration:        cb.openDuration,
		ActiveTrials:        int(cb.trials.Load() & 0xffffffff),
		Successes:           cb.successes.Load(),
		Failures:            cb.totalFails.Load(),
		Rejections:          cb.rejections.Load(),
	}
	cb.mu.Unlock()
	cb.notify(tr)
	return m
}

// CircuitBreakerMetrics contains circuit breaker statistics.
type CircuitBreakerMetrics struct {
	ResourceID          string
	State               State
	ConsecutiveFailures int
	LastStateChange     time.Time
	OpenDuration        time.Duration
	ActiveTrials        int
	Successes           uint64
	Failures            uint64
	Rejections          uint64
}
