package blobstore

import (
	"context"

	"go.uber.org/zap"
)

// Cache is a byte cache keyed by content address. pkg/olric implements it.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Put(ctx context.Context, key string, value []byte) error
}

// CachedBackend serves reads from a cache before the wrapped backend.
// Content addresses are immutable so entries never need invalidation.
// Cache failures are logged and never fail the call.
type CachedBackend struct {
	next   Backend
	cache  Cache
	logger *zap.Logger
}

// NewCachedBackend wraps next with a read-through cache.
func NewCachedBackend(next Backend, cache Cache, logger *zap.Logger) *CachedBackend {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CachedBackend{next: next, cache: cache, logger: logger}
}

func (c *CachedBackend) Put(ctx context.Context, payload []byte, name string) (string, error) {
	address, err := c.next.Put(ctx, payload, name)
	if err != nil {
		return "", err
	}
	if err := c.cache.Put(ctx, address, payload); err != nil {
		c.logger.Warn("Failed to populate blob cache", zap.String("address", address), zap.Error(err))
	}
	return address, nil
}

func (c *CachedBackend) Get(ctx context.Context, address string) ([]byte, error) {
	if data, ok, err := c.cache.Get(ctx, address); err != nil {
		c.logger.Warn("Blob cache read failed", zap.String("address", address), zap.Error(err))
	} else if ok {
		return data, nil
	}

	data, err := c.next.Get(ctx, address)
	if err != nil {
		return nil, err
	}
	if err := c.cache.Put(ctx, address, data); err != nil {
		c.logger.Warn("Failed to populate blob cache", zap.String("address", address), zap.Error(err))
	}
	return data, nil
}

// Health delegates to the wrapped backend.
func (c *CachedBackend) Health(ctx context.Context) error {
	if hc, ok := c.next.(HealthChecker); ok {
		return hc.Health(ctx)
	}
	return nil
}
