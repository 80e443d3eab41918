package reliable_test

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jonwraymond/fetchguard/cache"
	"github.com/jonwraymond/fetchguard/codec"
	"github.com/jonwraymond/fetchguard/config"
	"github.com/jonwraymond/fetchguard/reliable"
	"github.com/jonwraymond/fetchguard/resilience"
)

func ExampleCache_GetOrCompute() {
	rc, _ := reliable.New(cache.NewLocalBackend(100), nil)
	defer rc.Close()

	key, _ := cache.NewKeyBuilder().
		URL("https://a.test/pricing").
		Method("GET").
		Version("v1").
		Namespace("fetch").
		Build()

	fetches := 0
	fetch := func(context.Context) ([]byte, error) {
		fetches++
		return []byte("<html>pricing</html>"), nil
	}

	ctx := context.Background()
	body, _ := rc.GetOrCompute(ctx, key, "fetch:a.test", fetch)
	body, _ = rc.GetOrCompute(ctx, key, "fetch:a.test", fetch)

	fmt.Println(string(body))
	fmt.Println("Fetches:", fetches)
	// Output:
	// <html>pricing</html>
	// Fetches: 1
}

func ExampleCache_GetOrCompute_circuitOpen() {
	breakers := resilience.NewRegistry(resilience.CircuitBreakerConfig{
		FailureThreshold: 2,
		OpenDuration:     time.Minute,
	})
	rc, _ := reliable.New(cache.NewLocalBackend(100), breakers)
	defer rc.Close()

	ctx := context.Background()
	down := func(context.Context) ([]byte, error) { return nil, errors.New("502 bad gateway") }
	for _, k := range []string{"fetch:v1:a", "fetch:v1:b"} {
		_, _ = rc.GetOrCompute(ctx, k, "render:b.test", down)
	}

	_, err := rc.GetOrCompute(ctx, "fetch:v1:c", "render:b.test", down)
	fmt.Println("Circuit open:", errors.Is(err, resilience.ErrCircuitOpen))
	fmt.Println("Retryable:", resilience.IsRetryable(err))
	// Output:
	// Circuit open: true
	// Retryable: true
}

func ExampleGetOrComputeValue() {
	type quote struct {
		Symbol string
		Price  float64
	}

	rc, _ := reliable.New(cache.NewLocalBackend(100), nil)
	defer rc.Close()

	q, err := reliable.GetOrComputeValue(context.Background(), rc, "quotes:v1:acme", "quotes-api",
		codec.Msgpack[quote]{},
		func(context.Context) (quote, error) { return quote{Symbol: "ACME", Price: 12.5}, nil },
		reliable.WithTTL(30*time.Second),
	)
	fmt.Println(q.Symbol, q.Price, err)
	// Output:
	// ACME 12.5 <nil>
}

func ExampleNewFromConfig() {
	cfg := config.Default()
	cfg.Cache.RemoteURL = "" // no redis configured

	rc, err := reliable.NewFromConfig(context.Background(), cfg)
	if err != nil {
		fmt.Println("error:", err)
		return
	}
	defer rc.Close()

	meta := rc.Metadata()
	fmt.Println("Backend:", meta.BackendKind)
	fmt.Println("Reason:", meta.Reason)
	// Output:
	// Backend: local
	// Reason: remote_url not configured
}
