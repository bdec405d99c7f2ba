// Package reconcile drains the intent log. Attested intents, and pending
// intents whose ledger account turns out to exist, are repaired index-only
// from ledger state. Pending intents with no ledger account are abandoned
// once they are older than the stale threshold.
package reconcile

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/carefolio/records/pkg/errors"
	"github.com/carefolio/records/pkg/index"
	"github.com/carefolio/records/pkg/intentlog"
	"github.com/carefolio/records/pkg/metrics"
	"github.com/carefolio/records/pkg/orchestrator"
)

const (
	defaultStaleAfter = 2 * time.Minute
	defaultSettle     = 15 * time.Second
)

// Journal is the intent log as seen by the reconciler.
type Journal interface {
	List() ([]intentlog.Intent, error)
	RecordFailure(id string, cause error) error
	Complete(id string) error
	Abandon(id string) error
}

// Repairer rewrites one index record from ledger state.
type Repairer interface {
	RepairIndex(ctx context.Context, kind index.Kind, subject string, seq uint64) (*orchestrator.RepairResult, error)
}

// Config wires a Reconciler.
type Config struct {
	Journal  Journal
	Repairer Repairer
	Metrics  *metrics.Recorder
	Logger   *zap.Logger

	// StaleAfter is how long a pending intent without a ledger account is
	// kept before it is abandoned.
	StaleAfter time.Duration
	// Settle skips intents updated more recently than this, leaving them to
	// the request that is still running them. Negative disables it.
	Settle time.Duration
	Now    func() time.Time
}

// Reconciler repairs intents left behind by partial writes.
type Reconciler struct {
	journal    Journal
	repairer   Repairer
	metrics    *metrics.Recorder
	logger     *zap.Logger
	staleAfter time.Duration
	settle     time.Duration
	now        func() time.Time

	// mu serializes passes from the loop and the admin endpoint.
	mu sync.Mutex
}

// Summary counts what one pass did.
type Summary struct {
	Examined  int `json:"examined"`
	Repaired  int `json:"repaired"`
	Abandoned int `json:"abandoned"`
	Failed    int `json:"failed"`
	Skipped   int `json:"skipped"`
	Remaining int `json:"remaining"`
}

// New creates a Reconciler.
func New(cfg Config) *Reconciler {
	r := &Reconciler{
		journal:    cfg.Journal,
		repairer:   cfg.Repairer,
		metrics:    cfg.Metrics,
		logger:     cfg.Logger,
		staleAfter: cfg.StaleAfter,
		settle:     cfg.Settle,
		now:        cfg.Now,
	}
	if r.logger == nil {
		r.logger = zap.NewNop()
	}
	if r.staleAfter <= 0 {
		r.staleAfter = defaultStaleAfter
	}
	if r.settle < 0 {
		r.settle = 0
	} else if r.settle == 0 {
		r.settle = defaultSettle
	}
	if r.now == nil {
		r.now = time.Now
	}
	return r
}

// RunOnce makes a single pass over the intent log.
func (r *Reconciler) RunOnce(ctx context.Context) (Summary, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var sum Summary
	intents, err := r.journal.List()
	if err != nil {
		return sum, err
	}

	now := r.now()
	for _, in := range intents {
		if ctx.Err() != nil {
			break
		}
		sum.Examined++
		if now.Sub(in.UpdatedAt) < r.settle {
			sum.Skipped++
			continue
		}
		r.handle(ctx, in, now, &sum)
	}

	sum.Remaining = sum.Examined - sum.Repaired - sum.Abandoned
	r.metrics.SetPendingIntents(sum.Remaining)
	if sum.Repaired+sum.Abandoned+sum.Failed > 0 {
		r.logger.Info("Reconcile pass finished",
			zap.Int("examined", sum.Examined),
			zap.Int("repaired", sum.Repaired),
			zap.Int("abandoned", sum.Abandoned),
			zap.Int("failed", sum.Failed))
	}
	return sum, ctx.Err()
}

func (r *Reconciler) handle(ctx context.Context, in intentlog.Intent, now time.Time, sum *Summary) {
	_, err := r.repairer.RepairIndex(ctx, index.Kind(in.Kind), in.Subject, in.Sequence)
	switch {
	case err == nil:
		if cerr := r.journal.Complete(in.ID); cerr != nil {
			r.logger.Warn("Failed to complete repaired intent", zap.String("intent", in.ID), zap.Error(cerr))
			sum.Failed++
			return
		}
		sum.Repaired++

	case errors.IsNotFound(err) && in.Status == intentlog.StatusPending:
		// The call never landed.
		if now.Sub(in.CreatedAt) < r.staleAfter {
			sum.Skipped++
			return
		}
		if aerr := r.journal.Abandon(in.ID); aerr != nil {
			r.logger.Warn("Failed to abandon intent", zap.String("intent", in.ID), zap.Error(aerr))
			sum.Failed++
			return
		}
		r.logger.Info("Abandoned stale intent",
			zap.String("intent", in.ID),
			zap.String("operation", in.Operation),
			zap.String("account", in.LedgerAddress))
		sum.Abandoned++

	default:
		sum.Failed++
		r.logger.Warn("Intent repair failed",
			zap.String("intent", in.ID),
			zap.String("operation", in.Operation),
			zap.String("status", string(in.Status)),
			zap.Error(err))
		if ferr := r.journal.RecordFailure(in.ID, err); ferr != nil {
			r.logger.Warn("Failed to record intent failure", zap.String("intent", in.ID), zap.Error(ferr))
		}
	}
}

// Run calls RunOnce every interval until ctx is done.
func (r *Reconciler) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	r.logger.Info("Reconciler started", zap.Duration("interval", interval))
	for {
		select {
		case <-ctx.Done():
			r.logger.Info("Reconciler stopped")
			return
		case <-ticker.C:
			if _, err := r.RunOnce(ctx); err != nil && ctx.Err() == nil {
				r.logger.Warn("Reconcile pass failed", zap.Error(err))
			}
		}
	}
}

// Start runs the loop in the background. The returned stop cancels it and
// blocks until any pass in progress has finished.
func (r *Reconciler) Start(ctx context.Context, interval time.Duration) (stop func()) {
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		r.Run(ctx, interval)
	}()
	return func() {
		cancel()
		<-done
	}
}
