package gateway

import (
	"context"
	"net"
	"net/http"
	"time"

	"go.uber.org/zap"
	"golang.org/x/net/netutil"

	"github.com/carefolio/records/pkg/errors"
	"github.com/carefolio/records/pkg/logging"
)

const shutdownTimeout = 10 * time.Second

// Serve listens on the configured address and serves Routes until ctx is
// cancelled, then shuts down gracefully.
func (g *Gateway) Serve(ctx context.Context) error {
	ln, err := net.Listen("tcp", g.cfg.ListenAddr)
	if err != nil {
		return errors.Wrapf(err, "failed to listen on %s", g.cfg.ListenAddr)
	}
	return g.ServeListener(ctx, ln)
}

// ServeListener serves on ln. MaxConnections, when positive, caps the number
// of concurrently accepted connections.
func (g *Gateway) ServeListener(ctx context.Context, ln net.Listener) error {
	if g.cfg.MaxConnections > 0 {
		ln = netutil.LimitListener(ln, g.cfg.MaxConnections)
	}
	if g.rateLimiter != nil {
		g.rateLimiter.StartCleanup(ctx, time.Minute, 10*time.Minute)
	}
	srv := &http.Server{
		Handler:           g.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g.logger.ComponentInfo(logging.ComponentGateway, "HTTP server starting",
		zap.String("listen_addr", ln.Addr().String()),
		zap.Int("max_connections", g.cfg.MaxConnections))

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Serve(ln); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	g.logger.ComponentInfo(logging.ComponentGateway, "HTTP server shutting down")
	sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(sctx); err != nil {
		g.logger.ComponentError(logging.ComponentGateway, "HTTP server shutdown error", zap.Error(err))
		return err
	}
	g.logger.ComponentInfo(logging.ComponentGateway, "HTTP server shutdown complete")
	return nil
}
