package cache

import (
	"fmt"
	"strings"
)

const (
	KindLocal = "local"
	KindRedis = "redis"
)

// Backend normalizes Type; "" and "gocache" mean the local cache.
func (c Config) Backend() string {
	switch t := strings.ToLower(strings.TrimSpace(c.Type)); t {
	case "", "gocache", KindLocal:
		return KindLocal
	default:
		return t
	}
}

// NewCache builds the analytics cache for the configured backend.
func NewCache(config Config) (Cache, error) {
	switch config.Backend() {
	case KindLocal:
		return NewGoCache(config.Local), nil
	case KindRedis:
		return NewRedisCache(config.Redis)
	}
	return nil, fmt.Errorf("unsupported cache type: %s", config.Type)
}
