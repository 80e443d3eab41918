package cache

import (
	"fmt"
	"time"
)

// Policy decides how long computed values live.
// A zero TTL means the entry never expires and leaves only by eviction or
// Delete. MaxTTL, when set, caps every TTL including "never".
type Policy struct {
	DefaultTTL time.Duration
	MaxTTL     time.Duration
}

// DefaultPolicy keeps entries for an hour with no cap.
func DefaultPolicy() Policy {
	return Policy{DefaultTTL: time.Hour}
}

// EffectiveTTL resolves a per-call TTL. Zero or negative selects DefaultTTL.
func (p Policy) EffectiveTTL(override time.Duration) time.Duration {
	ttl := p.DefaultTTL
	if override > 0 {
		ttl = override
	}
	if p.MaxTTL <= 0 {
		return ttl
	}
	if ttl == 0 {
		return p.MaxTTL
	}
	return min(ttl, p.MaxTTL)
}

func (p Policy) String() string {
	return fmt.Sprintf("ttl=%s max=%s", ttlString(p.DefaultTTL), ttlString(p.MaxTTL))
}

func ttlString(d time.Duration) string {
	if d <= 0 {
		return "none"
	}
	return d.String()
}

func checkTTL(ttl time.Duration) error {
	if ttl < 0 {
		return fmt.Errorf("%w: %s", ErrNegativeTTL, ttl)
	}
	return nil
}
