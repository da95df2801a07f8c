package provider

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"time"

	"github.com/aixgo-dev/searchflow/internal/llm/cache"
	metrics "github.com/aixgo-dev/searchflow/pkg/observability"
	"go.uber.org/zap"
)

// CachedProvider serves repeated identical requests from a cache.Store.
// Cache failures are logged and fall through to the wrapped provider.
type CachedProvider struct {
	provider Provider
	store    cache.Store
	ttl      time.Duration
	logger   *zap.Logger
}

// NewCachedProvider wraps provider with store. A nil store disables caching.
func NewCachedProvider(provider Provider, store cache.Store, ttl time.Duration, logger *zap.Logger) Provider {
	if store == nil {
		return provider
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CachedProvider{provider: provider, store: store, ttl: ttl, logger: logger}
}

// Name returns the underlying provider name
func (p *CachedProvider) Name() string {
	return p.provider.Name()
}

// CreateCompletion implements Provider
func (p *CachedProvider) CreateCompletion(ctx context.Context, request CompletionRequest) (*CompletionResponse, error) {
	key, err := CacheKey(p.provider.Name(), request)
	if err != nil {
		return p.provider.CreateCompletion(ctx, request)
	}

	if data, err := p.store.Get(ctx, key); err == nil {
		var cached CompletionResponse
		if jsonErr := json.Unmarshal(data, &cached); jsonErr == nil {
			metrics.RecordCacheLookup(true)
			cached.Cached = true
			return &cached, nil
		}
		p.logger.Warn("discarding undecodable cache entry", zap.String("key", key))
	} else if !errors.Is(err, cache.ErrMiss) {
		p.logger.Warn("cache lookup failed", zap.Error(err))
	}
	metrics.RecordCacheLookup(false)

	resp, err := p.provider.CreateCompletion(ctx, request)
	if err != nil {
		return nil, err
	}

	if data, err := json.Marshal(resp); err == nil {
		if err := p.store.Set(ctx, key, data, p.ttl); err != nil {
			p.logger.Warn("cache store failed", zap.Error(err))
		}
	}
	return resp, nil
}

// CacheKey derives a stable key from everything that influences the completion.
func CacheKey(providerName string, request CompletionRequest) (string, error) {
	payload, err := json.Marshal(struct {
		Provider string            `json:"p"`
		Request  CompletionRequest `json:"r"`
	}{providerName, request})
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:]), nil
}
