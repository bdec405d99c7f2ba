// Package blobstore stores record payloads in a content-addressable store
// and fetches them back by address. Drivers implement Backend; Client adds
// the per-call timeout and bounded retry shared by every driver.
package blobstore

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/carefolio/records/pkg/retry"
)

// Backend is a content-addressable payload store.
//
// Put returns the address of the stored bytes and must report failures as
// blob store unavailable errors. Get reports a missing address as a blob
// not found error and anything else as blob store unavailable.
type Backend interface {
	Put(ctx context.Context, payload []byte, name string) (string, error)
	Get(ctx context.Context, address string) ([]byte, error)
}

// HealthChecker is implemented by backends that can report reachability.
type HealthChecker interface {
	Health(ctx context.Context) error
}

// Client is the blob store used by the orchestrator and query service.
type Client struct {
	backend    Backend
	policy     retry.Policy
	gatewayURL string
	logger     *zap.Logger
	closers    []func(context.Context) error
}

// Options configure a Client.
type Options struct {
	Policy     retry.Policy
	GatewayURL string
	Logger     *zap.Logger
}

// New wraps backend in a Client.
func New(backend Backend, opts Options) *Client {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		backend:    backend,
		policy:     opts.Policy,
		gatewayURL: strings.TrimRight(opts.GatewayURL, "/"),
		logger:     logger,
	}
}

// Store writes payload verbatim and returns its content address.
func (c *Client) Store(ctx context.Context, payload []byte, name string) (string, error) {
	return retry.Do(ctx, c.policy, c.logger, "blob store", func(ctx context.Context) (string, error) {
		return c.backend.Put(ctx, payload, name)
	})
}

// Fetch returns the payload stored at address.
func (c *Client) Fetch(ctx context.Context, address string) ([]byte, error) {
	return retry.Do(ctx, c.policy, c.logger, "blob fetch", func(ctx context.Context) ([]byte, error) {
		return c.backend.Get(ctx, address)
	})
}

// URL returns the public gateway URL for address.
func (c *Client) URL(address string) string {
	if address == "" {
		return ""
	}
	return c.gatewayURL + "/" + address
}

// Health reports backend reachability when the backend supports it.
func (c *Client) Health(ctx context.Context) error {
	if hc, ok := c.backend.(HealthChecker); ok {
		return hc.Health(ctx)
	}
	return nil
}

// Close releases resources held by the backend chain.
func (c *Client) Close(ctx context.Context) error {
	var first error
	for _, closeFn := range c.closers {
		if err := closeFn(ctx); err != nil && first == nil {
			first = err
		}
	}
	return first
}
