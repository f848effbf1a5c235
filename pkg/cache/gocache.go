package cache

import (
	"context"
	"strings"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// goCacheWrapper wraps go-cache for the Cache interface
type goCacheWrapper struct {
	cache *gocache.Cache
}

// NewGoCache creates an in-process cache
func NewGoCache(config LocalConfig) Cache {
	return &goCacheWrapper{cache: gocache.New(config.DefaultExpiration, config.CleanupInterval)}
}

func (gc *goCacheWrapper) Get(_ context.Context, key string) ([]byte, bool) {
	v, found := gc.cache.Get(key)
	if !found {
		return nil, false
	}
	b, ok := v.([]byte)
	return b, ok
}

func (gc *goCacheWrapper) Set(_ context.Context, key string, value []byte, expiration time.Duration) error {
	gc.cache.Set(key, value, expiration)
	return nil
}

func (gc *goCacheWrapper) Delete(_ context.Context, keys ...string) error {
	for _, k := range keys {
		gc.cache.Delete(k)
	}
	return nil
}

func (gc *goCacheWrapper) DeletePrefix(_ context.Context, prefix string) error {
	for k := range gc.cache.Items() {
		if strings.HasPrefix(k, prefix) {
			gc.cache.Delete(k)
		}
	}
	return nil
}

func (gc *goCacheWrapper) Close() error {
	gc.cache.Flush()
	return nil
}
