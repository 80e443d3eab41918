package cache

import (
	"context"
	"errors"
	"strings"
	"time"
)

// MaxKeyLength is the maximum allowed length for a cache key.
const MaxKeyLength = 512

// Sentinel errors for cache operations.
var (
	ErrInvalidKey         = errors.New("cache: key is invalid")
	ErrKeyTooLong         = errors.New("cache: key exceeds max length")
	ErrNegativeTTL        = errors.New("cache: ttl must not be negative")
	ErrWriteRejected      = errors.New("cache: write rejected by backend")
	ErrBackendUnavailable = errors.New("cache: backend unavailable")
	ErrInvalidConfig      = errors.New("cache: invalid config")
)

// Kind identifies a Backend implementation.
type Kind string

const (
	KindRemote    Kind = "remote"
	KindLocal     Kind = "local"
	KindRistretto Kind = "ristretto"
)

// Backend is the storage capability shared by the remote store and the
// in-process fallback stores.
//
// Contract:
// - Concurrency: implementations must be safe for concurrent use.
// - Context: I/O-bound methods must honor cancellation/deadlines.
// - Errors: Get never errors; backend failures and timeouts surface as a miss.
// - TTL: zero means no expiry; negative TTLs are rejected with ErrNegativeTTL.
type Backend interface {
	// Get retrieves a cached value. Returns (nil, false) on miss.
	Get(ctx context.Context, key string) ([]byte, bool)

	// Set stores a value with the given TTL.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete removes a cached value. Idempotent - no error on miss.
	Delete(ctx context.Context, key string) error

	// HealthCheck reports whether the backend can serve requests, bounded by timeout.
	HealthCheck(ctx context.Context, timeout time.Duration) bool

	// Kind reports which implementation this is.
	Kind() Kind

	// Close releases resources held by the backend.
	Close() error
}

// Entry is a stored value together with its lifetime.
type Entry struct {
	Value      []byte
	TTL        time.Duration
	InsertedAt time.Time
}

// Expired reports whether the entry is past its TTL at now.
func (e Entry) Expired(now time.Time) bool {
	return e.TTL > 0 && !now.Before(e.InsertedAt.Add(e.TTL))
}

// BackendHealth is the result of the most recent health check.
type BackendHealth struct {
	CheckedAt time.Time
	Healthy   bool
}

// ValidateKey checks if a key is valid for caching.
func ValidateKey(key string) error {
	if strings.TrimSpace(key) == "" {
		return ErrInvalidKey
	}
	if len(key) > MaxKeyLength {
		return ErrKeyTooLong
	}
	if strings.ContainsAny(key, "\n\r") {
		return ErrInvalidKey
	}
	return nil
}
