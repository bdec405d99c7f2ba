// Command ledgersim serves the in-memory records program over HTTP JSON-RPC
// for local development.
package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/carefolio/records/pkg/ledger/ledgersim"
	"github.com/carefolio/records/pkg/logging"
)

func main() {
	addr := flag.String("addr", ":8899", "HTTP listen address")
	program := flag.String("program", "0x00000000000000000000000000000000000000aa", "Program id (hex address)")
	authority := flag.String("authority", "", "Only accept calls signed by this address (optional)")
	flag.Parse()

	logger, err := logging.NewColoredLogger(true)
	if err != nil {
		panic(err)
	}
	if !common.IsHexAddress(*program) {
		logger.ComponentError(logging.ComponentLedger, "invalid program id", zap.String("program", *program))
		os.Exit(2)
	}

	opts := []ledgersim.Option{ledgersim.WithLogger(logger.Named(logging.ComponentLedger))}
	if *authority != "" {
		if !common.IsHexAddress(*authority) {
			logger.ComponentError(logging.ComponentLedger, "invalid authority", zap.String("authority", *authority))
			os.Exit(2)
		}
		opts = append(opts, ledgersim.WithAuthority(common.HexToAddress(*authority)))
	}
	sim := ledgersim.New(common.HexToAddress(*program), opts...)
	srv, err := sim.Server()
	if err != nil {
		logger.ComponentError(logging.ComponentLedger, "failed to build RPC server", zap.Error(err))
		os.Exit(1)
	}
	defer srv.Stop()

	server := &http.Server{
		Addr:              *addr,
		Handler:           srv,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.ComponentInfo(logging.ComponentLedger, "Ledger simulator starting",
			zap.String("addr", *addr),
			zap.String("program", common.HexToAddress(*program).Hex()))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.ComponentError(logging.ComponentLedger, "HTTP server error", zap.Error(err))
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit
	logger.ComponentInfo(logging.ComponentLedger, "Shutting down ledger simulator...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.ComponentError(logging.ComponentLedger, "HTTP server shutdown error", zap.Error(err))
	}
	logger.ComponentInfo(logging.ComponentLedger, "Ledger simulator stopped", zap.Uint64("tx_count", sim.TxCount()))
}
