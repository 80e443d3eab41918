package health

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jonwraymond/fetchguard/cache"
	"github.com/jonwraymond/fetchguard/reliable"
	"github.com/jonwraymond/fetchguard/resilience"
)

type downBackend struct {
	*cache.LocalBackend
}

func (downBackend) HealthCheck(context.Context, time.Duration) bool { return false }

func TestBackendChecker(t *testing.T) {
	local := cache.NewLocalBackend(10)

	tests := []struct {
		name    string
		backend cache.Backend
		meta    cache.Metadata
		want    Status
	}{
		{
			name:    "local by choice",
			backend: local,
			meta:    cache.Metadata{BackendKind: cache.KindLocal, FallbackUsed: true, Reason: cache.ReasonNoRemoteURL},
			want:    StatusHealthy,
		},
		{
			name:    "fallback after remote failure",
			backend: local,
			meta:    cache.Metadata{BackendKind: cache.KindLocal, FallbackUsed: true, Reason: "health check failed"},
			want:    StatusDegraded,
		},
		{
			name:    "fallback disabled",
			backend: local,
			meta:    cache.Metadata{BackendKind: cache.KindLocal, FallbackUsed: true, FallbackDisabled: true, Reason: "health check failed"},
			want:    StatusDegraded,
		},
		{
			name:    "probe fails",
			backend: downBackend{local},
			meta:    cache.Metadata{BackendKind: cache.KindLocal},
			want:    StatusUnhealthy,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewBackendChecker(tt.backend, tt.meta, 0).Check(context.Background())
			if r.Status != tt.want {
				t.Errorf("Status = %v (%s), want %v", r.Status, r.Message, tt.want)
			}
			if r.Details["backend"] != "local" {
				t.Errorf("Details = %v", r.Details)
			}
			if tt.want == StatusUnhealthy && !errors.Is(r.Error, ErrBackendUnhealthy) {
				t.Errorf("Error = %v, want ErrBackendUnhealthy", r.Error)
			}
		})
	}
}

func TestBreakerChecker(t *testing.T) {
	reg := resilience.NewRegistry(resilience.CircuitBreakerConfig{FailureThreshold: 1, OpenDuration: time.Minute})
	checker := NewBreakerChecker(reg)

	if r := checker.Check(context.Background()); r.Status != StatusHealthy {
		t.Errorf("empty registry = %v, want healthy", r.Status)
	}

	reg.RecordSuccess("render:a.test")
	reg.RecordFailure("render:b.test")

	r := checker.Check(context.Background())
	if r.Status != StatusDegraded {
		t.Fatalf("Status = %v, want degraded", r.Status)
	}
	open, _ := r.Details["open"].([]string)
	if len(open) != 1 || open[0] != "render:b.test" {
		t.Errorf("open = %v, want [render:b.test]", r.Details["open"])
	}
	if r.Details["tracked"] != 2 {
		t.Errorf("tracked = %v, want 2", r.Details["tracked"])
	}
}

func TestRegisterCache(t *testing.T) {
	rc, err := reliable.New(cache.NewLocalBackend(10), nil)
	if err != nil {
		t.Fatal(err)
	}
	agg := NewAggregator()
	RegisterCache(agg, rc, time.Second)

	names := agg.CheckerNames()
	if len(names) != 2 || names[0] != "cache" || names[1] != "breakers" {
		t.Fatalf("CheckerNames() = %v", names)
	}
	if got := Overall(agg.CheckAll(context.Background())); got != StatusHealthy {
		t.Errorf("Overall() = %v, want healthy", got)
	}
}
