package cache

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"github.com/jonwraymond/fetchguard/observe"
)

// DefaultOperationTimeout bounds each remote call when no timeout is configured.
const DefaultOperationTimeout = 500 * time.Millisecond

// ErrNilClient is returned when a RemoteBackend is built from a nil client.
var ErrNilClient = errors.New("cache: nil redis client")

// RemoteBackend stores entries in redis.
//
// Every call is bounded by the operation timeout. Get degrades transport and
// server errors to a miss and logs them; Set and Delete return them wrapped.
type RemoteBackend struct {
	rdb         goredis.UniversalClient
	closeClient bool
	endpoint    string
	opTimeout   time.Duration
	logger      observe.Logger
	now         func() time.Time

	sf       singleflight.Group
	healthMu sync.RWMutex
	health   BackendHealth
}

// RemoteOption configures a RemoteBackend.
type RemoteOption func(*RemoteBackend)

// WithOperationTimeout bounds every redis call.
func WithOperationTimeout(d time.Duration) RemoteOption {
	return func(b *RemoteBackend) {
		if d > 0 {
			b.opTimeout = d
		}
	}
}

// WithRemoteLogger sets the logger for degraded reads.
func WithRemoteLogger(l observe.Logger) RemoteOption {
	return func(b *RemoteBackend) {
		if l != nil {
			b.logger = l
		}
	}
}

// NewRemoteBackend parses a redis:// or rediss:// URL and owns the resulting client.
// No network traffic happens here; use HealthCheck to probe reachability.
func NewRemoteBackend(rawURL string, opts ...RemoteOption) (*RemoteBackend, error) {
	ropts, err := goredis.ParseURL(rawURL)
	if err != nil {
		return nil, fmt.Errorf("%w: remote_url: %v", ErrInvalidConfig, err)
	}
	b, err := NewRemoteBackendFromClient(goredis.NewClient(ropts), opts...)
	if err != nil {
		return nil, err
	}
	b.closeClient = true
	b.endpoint = redactURL(rawURL)
	return b, nil
}

// NewRemoteBackendFromClient wraps an existing client. Close leaves the client open.
func NewRemoteBackendFromClient(client goredis.UniversalClient, opts ...RemoteOption) (*RemoteBackend, error) {
	if client == nil {
		return nil, ErrNilClient
	}
	b := &RemoteBackend{
		rdb:       client,
		opTimeout: DefaultOperationTimeout,
		logger:    observe.NopLogger(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b, nil
}

// Get retrieves a value. Errors and timeouts read as a miss.
func (b *RemoteBackend) Get(ctx context.Context, key string) ([]byte, bool) {
	ctx, cancel := context.WithTimeout(ctx, b.opTimeout)
	defer cancel()

	v, err := b.rdb.Get(ctx, key).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, false
	}
	if err != nil {
		b.logger.Warn(ctx, "remote cache get failed",
			observe.F("cache.key", key),
			observe.F("cache.endpoint", b.endpoint),
			observe.F("error", err),
		)
		return nil, false
	}
	return v, true
}

// Set stores a value. TTL=0 stores without expiry.
func (b *RemoteBackend) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := checkTTL(ttl); err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, b.opTimeout)
	defer cancel()

	if err := b.rdb.Set(ctx, key, value, ttl).Err(); err != nil {
		return fmt.Errorf("cache: remote set: %w", err)
	}
	return nil
}

// Delete removes a value. Deleting a missing key is not an error.
func (b *RemoteBackend) Delete(ctx context.Context, key string) error {
	ctx, cancel := context.WithTimeout(ctx, b.opTimeout)
	defer cancel()

	if err := b.rdb.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("cache: remote delete: %w", err)
	}
	return nil
}

// HealthCheck pings redis within timeout and records the outcome.
// Concurrent checks share one PING.
func (b *RemoteBackend) HealthCheck(ctx context.Context, timeout time.Duration) bool {
	if timeout <= 0 {
		timeout = b.opTimeout
	}
	ch := b.sf.DoChan("ping", func() (any, error) {
		pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
		defer cancel()
		err := b.rdb.Ping(pctx).Err()
		b.setHealth(err == nil)
		return nil, err
	})

	select {
	case res := <-ch:
		return res.Err == nil
	case <-ctx.Done():
		return false
	}
}

// Health returns the result of the most recent HealthCheck.
func (b *RemoteBackend) Health() BackendHealth {
	b.healthMu.RLock()
	defer b.healthMu.RUnlock()
	return b.health
}

func (b *RemoteBackend) setHealth(ok bool) {
	b.healthMu.Lock()
	b.health = BackendHealth{CheckedAt: b.now(), Healthy: ok}
	b.healthMu.Unlock()
}

// Endpoint returns the configured URL with any password redacted.
func (b *RemoteBackend) Endpoint() string {
	return b.endpoint
}

// Kind returns KindRemote.
func (b *RemoteBackend) Kind() Kind {
	return KindRemote
}

// Close releases the client when this backend created it.
// Repeated calls are no-ops.
func (b *RemoteBackend) Close() error {
	if !b.closeClient {
		return nil
	}
	if err := b.rdb.Close(); err != nil && !errors.Is(err, goredis.ErrClosed) {
		return err
	}
	return nil
}

func redactURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return u.Redacted()
}

var _ Backend = (*RemoteBackend)(nil)
