package reliable

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/jonwraymond/fetchguard/config"
)

var (
	defaultOnce  sync.Once
	defaultErr   error
	defaultCache atomic.Pointer[Cache]
)

// Init builds the process-wide Cache from cfg. Only the first call does any
// work; later calls return its result and ignore their arguments.
func Init(ctx context.Context, cfg config.Config, opts ...Option) (*Cache, error) {
	defaultOnce.Do(func() {
		c, err := NewFromConfig(ctx, cfg, opts...)
		if err != nil {
			defaultErr = err
			return
		}
		defaultCache.Store(c)
	})
	return defaultCache.Load(), defaultErr
}

// Default returns the Cache built by Init, or nil before a successful Init.
func Default() *Cache {
	return defaultCache.Load()
}
