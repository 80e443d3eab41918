package cache

import (
	"context"
	"fmt"
	"testing"
	"time"
)

// BenchmarkLocalBackend_Get_Hit measures cache hit performance.
func BenchmarkLocalBackend_Get_Hit(b *testing.B) {
	c := NewLocalBackend(1024)
	ctx := context.Background()
	_ = c.Set(ctx, "key", []byte("value"), time.Hour)

	for b.Loop() {
		_, _ = c.Get(ctx, "key")
	}
}

// BenchmarkLocalBackend_Set_Evicting measures writes that overflow the bound.
func BenchmarkLocalBackend_Set_Evicting(b *testing.B) {
	c := NewLocalBackend(1024)
	ctx := context.Background()
	value := []byte("test value")

	b.ResetTimer()
	for i := range b.N {
		_ = c.Set(ctx, fmt.Sprintf("key-%d", i), value, time.Hour)
	}
}

// BenchmarkLocalBackend_Concurrent_ReadHeavy measures contention on the single mutex.
func BenchmarkLocalBackend_Concurrent_ReadHeavy(b *testing.B) {
	c := NewLocalBackend(1024)
	ctx := context.Background()
	for i := 0; i < 100; i++ {
		_ = c.Set(ctx, fmt.Sprintf("key-%d", i), []byte("value"), time.Hour)
	}

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		i := 0
		for pb.Next() {
			if i%10 == 0 {
				_ = c.Set(ctx, fmt.Sprintf("key-%d", i%100), []byte("value"), time.Hour)
			} else {
				_, _ = c.Get(ctx, fmt.Sprintf("key-%d", i%100))
			}
			i++
		}
	})
}

// BenchmarkRistrettoBackend_Concurrent_ReadHeavy is the ristretto counterpart.
func BenchmarkRistrettoBackend_Concurrent_ReadHeavy(b *testing.B) {
	c, err := NewRistrettoBackend(1024)
	if err != nil {
		b.Fatal(err)
	}
	defer c.Close()
	ctx := context.Background()
	for i := 0; i < 100; i++ {
		_ = c.Set(ctx, fmt.Sprintf("key-%d", i), []byte("value"), time.Hour)
	}

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		i := 0
		for pb.Next() {
			_, _ = c.Get(ctx, fmt.Sprintf("key-%d", i%100))
			i++
		}
	})
}

// BenchmarkKeyBuilder_Build measures key derivation.
func BenchmarkKeyBuilder_Build(b *testing.B) {
	opts := map[string]string{"wait": "networkidle", "js": "true", "ua": "fetchguard/1.0"}

	for b.Loop() {
		_, _ = NewKeyBuilder().
			URL("https://example.com/articles/42").
			Method("GET").
			Namespace("render").
			Options(opts).
			Build()
	}
}

// BenchmarkValidateKey measures key validation.
func BenchmarkValidateKey(b *testing.B) {
	key := "fetch:v1:0123456789abcdef0123456789abcdef0123456789abcdef0123456789abcdef"

	for b.Loop() {
		_ = ValidateKey(key)
	}
}
