package blobstore

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.uber.org/zap"

	"github.com/carefolio/records/pkg/config"
	"github.com/carefolio/records/pkg/ipfs"
	"github.com/carefolio/records/pkg/olric"
	"github.com/carefolio/records/pkg/retry"
)

const (
	cacheInitMaxAttempts    = 5
	cacheInitInitialBackoff = 500 * time.Millisecond
	cacheInitMaxBackoff     = 5 * time.Second
)

// Open builds the configured driver chain: driver, optional Olric read
// cache, optional sealing, wrapped in a retrying Client.
func Open(ctx context.Context, cfg config.BlobStoreConfig, cacheCfg config.CacheConfig, logger *zap.Logger) (*Client, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	var (
		backend Backend
		closers []func(context.Context) error
	)

	switch cfg.Driver {
	case "ipfs":
		client, err := ipfs.NewClient(ipfs.Config{
			ClusterAPIURL:     cfg.ClusterAPIURL,
			IPFSAPIURL:        cfg.IPFSAPIURL,
			ReplicationFactor: cfg.ReplicationFactor,
			Timeout:           cfg.Timeout,
		}, logger)
		if err != nil {
			return nil, fmt.Errorf("create ipfs client: %w", err)
		}
		backend = client
		closers = append(closers, client.Close)
	case "s3":
		s3b, err := NewS3Backend(ctx, S3Config{
			Region:    cfg.S3.Region,
			Bucket:    cfg.S3.Bucket,
			Endpoint:  cfg.S3.Endpoint,
			PathStyle: cfg.S3.PathStyle,
			Prefix:    cfg.S3.Prefix,
		})
		if err != nil {
			return nil, fmt.Errorf("create s3 backend: %w", err)
		}
		backend = s3b
	default:
		return nil, fmt.Errorf("unknown blob store driver %q", cfg.Driver)
	}

	if len(cacheCfg.Servers) > 0 {
		cache, err := connectCache(ctx, cacheCfg, logger)
		if err != nil {
			logger.Warn("Blob cache disabled", zap.Error(err))
		} else {
			backend = NewCachedBackend(backend, cache, logger)
			closers = append(closers, cache.Close)
		}
	}

	if cfg.EncryptionKey != "" {
		key, err := ParseKey(cfg.EncryptionKey)
		if err != nil {
			return nil, fmt.Errorf("blob encryption key: %w", err)
		}
		sealed, err := NewSealedBackend(backend, key)
		if err != nil {
			return nil, err
		}
		backend = sealed
	}

	c := New(backend, Options{
		Policy: retry.Policy{
			AttemptTimeout:  cfg.Timeout,
			MaxAttempts:     cfg.MaxAttempts,
			InitialInterval: cfg.InitialInterval,
		},
		GatewayURL: cfg.GatewayURL,
		Logger:     logger,
	})
	c.closers = closers
	return c, nil
}

// connectCache creates the Olric client with exponential backoff.
func connectCache(ctx context.Context, cfg config.CacheConfig, logger *zap.Logger) (*olric.Client, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = cacheInitInitialBackoff
	b.MaxInterval = cacheInitMaxBackoff

	attempt := 0
	return backoff.Retry(ctx, func() (*olric.Client, error) {
		attempt++
		client, err := olric.NewClient(olric.Config{Servers: cfg.Servers, DMap: cfg.DMap}, logger)
		if err != nil {
			logger.Warn("Olric cache client init attempt failed",
				zap.Int("attempt", attempt),
				zap.Error(err))
			return nil, err
		}
		return client, nil
	}, backoff.WithBackOff(b), backoff.WithMaxTries(cacheInitMaxAttempts))
}
