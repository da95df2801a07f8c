// Package cache stores reasoning capability responses keyed by a digest of the request.
package cache

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrMiss is returned by Get when no entry exists for the key.
	ErrMiss = errors.New("cache miss")

	// ErrStorageClosed is returned after Close.
	ErrStorageClosed = errors.New("cache storage closed")
)

// Store is a byte-oriented key/value store with per-entry expiry.
type Store interface {
	// Get returns the stored value or ErrMiss.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores value under key. A zero ttl uses the store default.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Ping reports whether the backend is reachable.
	Ping(ctx context.Context) error

	// Close releases resources held by the store.
	Close() error
}

// Config selects and configures a store.
type Config struct {
	// Backend is "memory", "redis" or "none".
	Backend string `yaml:"backend"`

	// TTL is the default expiry of cached responses.
	TTL time.Duration `yaml:"ttl"`

	// MaxEntries bounds the memory backend.
	MaxEntries int `yaml:"max_entries"`

	Redis RedisConfig `yaml:"redis"`
}

// New builds the store named by cfg.Backend. It returns (nil, nil) for "none" or "".
func New(cfg Config) (Store, error) {
	switch cfg.Backend {
	case "", "none":
		return nil, nil
	case "memory":
		return NewMemoryStore(cfg.MaxEntries, cfg.TTL), nil
	case "redis":
		if cfg.Redis.TTL == 0 {
			cfg.Redis.TTL = cfg.TTL
		}
		return NewRedisStore(cfg.Redis)
	default:
		return nil, errors.New("unknown cache backend: " + cfg.Backend)
	}
}
