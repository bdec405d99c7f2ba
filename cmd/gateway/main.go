package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/carefolio/records/pkg/blobstore"
	"github.com/carefolio/records/pkg/config"
	"github.com/carefolio/records/pkg/gateway"
	"github.com/carefolio/records/pkg/index"
	"github.com/carefolio/records/pkg/intentlog"
	"github.com/carefolio/records/pkg/ledger"
	"github.com/carefolio/records/pkg/logging"
	"github.com/carefolio/records/pkg/metrics"
	"github.com/carefolio/records/pkg/orchestrator"
	"github.com/carefolio/records/pkg/query"
	"github.com/carefolio/records/pkg/reconcile"
)

func setupLogger(cfg config.LoggingConfig) *logging.ColoredLogger {
	logger, err := logging.New(logging.Options{
		Level:  cfg.Level,
		Format: cfg.Format,
		Colors: cfg.Colors,
		File:   cfg.OutputFile,
	})
	if err != nil {
		panic(err)
	}
	return logger
}

func main() {
	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	logger := setupLogger(cfg.Logging)
	defer logger.Sync()
	logConfig(logger, cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.ComponentError(logging.ComponentGeneral, "Gateway exited with error", zap.Error(err))
		os.Exit(1)
	}
	logger.ComponentInfo(logging.ComponentGeneral, "Gateway shutdown complete")
}

func run(ctx context.Context, cfg *config.Config, logger *logging.ColoredLogger) error {
	initCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	blobs, err := blobstore.Open(initCtx, cfg.BlobStore, cfg.Cache, logger.Named(logging.ComponentBlobStore))
	if err != nil {
		return fmt.Errorf("open blob store: %w", err)
	}
	defer blobs.Close(context.Background())

	lc, err := ledger.Open(initCtx, cfg.Ledger, logger.Named(logging.ComponentLedger))
	if err != nil {
		return fmt.Errorf("open ledger client: %w", err)
	}
	defer lc.Close()

	store, err := index.Open(initCtx, cfg.Index, logger.Named(logging.ComponentIndex))
	if err != nil {
		return fmt.Errorf("open index: %w", err)
	}
	defer store.Close()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	rec := metrics.New(reg)

	orchCfg := orchestrator.Config{
		Blobs:   blobs,
		Ledger:  lc,
		Index:   store,
		Metrics: rec,
		Logger:  logger.Named(logging.ComponentOrchestrator),
	}
	deps := gateway.Deps{
		Reader:   query.New(blobs, lc, store, logger.Named(logging.ComponentQuery)),
		Gatherer: reg,
		Checks: map[string]gateway.HealthCheck{
			"ledger":    lc.Health,
			"index":     store.Health,
			"blobstore": blobs.Health,
		},
		ProgramID:     lc.ProgramID().Hex(),
		SignerAddress: lc.SignerAddress().Hex(),
	}

	var rcl *reconcile.Reconciler
	if cfg.Intents.Path != "" {
		journal, err := intentlog.Open(cfg.Intents.Path, logger.Named(logging.ComponentIntents))
		if err != nil {
			return fmt.Errorf("open intent log: %w", err)
		}
		defer journal.Close()
		orchCfg.Journal = journal
		deps.Intents = journal

		orch := orchestrator.New(orchCfg)
		rcl = reconcile.New(reconcile.Config{
			Journal:    journal,
			Repairer:   orch,
			Metrics:    rec,
			Logger:     logger.Named(logging.ComponentReconciler),
			StaleAfter: cfg.Intents.StaleAfter,
		})
		deps.Writer = orch
		deps.Reconciler = rcl
	} else {
		logger.ComponentWarn(logging.ComponentIntents, "Intent log disabled; partial writes will need manual repair")
		deps.Writer = orchestrator.New(orchCfg)
	}

	if rcl != nil && cfg.Intents.ReconcileInterval > 0 {
		// Runs before the deferred closes above.
		stop := rcl.Start(ctx, cfg.Intents.ReconcileInterval)
		defer stop()
	}

	gw := gateway.New(logger, cfg.Server, deps)
	return gw.Serve(ctx)
}
