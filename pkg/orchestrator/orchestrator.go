// Package orchestrator coordinates the three-stage write pipeline behind
// every mutating operation: store payloads in the blob store, attest the
// record on the ledger at a derived address, then mirror it into the local
// index.
//
// A failure before the ledger accepts a call leaves no attested state and
// the caller may retry from scratch. A failure after acceptance is a partial
// write: the transaction id is reported with the error, and the index can be
// repaired from ledger state without attesting again.
package orchestrator

import (
	"context"
	stderrors "errors"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/carefolio/records/pkg/errors"
	"github.com/carefolio/records/pkg/index"
	"github.com/carefolio/records/pkg/intentlog"
	"github.com/carefolio/records/pkg/ledger"
	"github.com/carefolio/records/pkg/metrics"
)

// Operation names used in logs, metrics and intents.
const (
	OpCertifyDoctor       = "certify_doctor"
	OpRevokeCertification = "revoke_certification"
	OpAppendUserLog       = "append_user_log"
	OpCreateConsultation  = "create_consultation"
)

const defaultIndexTimeout = 10 * time.Second

// Pin names for stored payloads.
const (
	blobNameCredential   = "credential"
	blobNameHealthData   = "health-data"
	blobNameConsultation = "consultation-notes"
	blobNamePrescription = "prescription"
)

// BlobStore is the content-addressed payload store.
type BlobStore interface {
	Store(ctx context.Context, payload []byte, name string) (string, error)
	URL(address string) string
}

// Ledger submits calls and reads account state.
type Ledger interface {
	DeriveAddress(ns ledger.Namespace, parts ...[]byte) common.Address
	Submit(ctx context.Context, call ledger.Call) (string, error)
	ReadState(ctx context.Context, account common.Address) (*ledger.AccountState, error)
}

// Index is the local record mirror.
type Index interface {
	NextSequence(ctx context.Context, kind index.Kind, subject string) (uint64, error)
	FindCertification(ctx context.Context, doctor string) (*index.CertificationRecord, error)
	UpsertCertification(ctx context.Context, rec *index.CertificationRecord) error
	MarkRevoked(ctx context.Context, doctor string, revokedAt time.Time, reason, txSignature string) error
	InsertLog(ctx context.Context, e *index.LogEntry) error
	InsertConsultation(ctx context.Context, c *index.ConsultationRecord) error
}

// Journal durably records in-flight writes.
type Journal interface {
	Begin(in intentlog.Intent) (intentlog.Intent, error)
	MarkAttested(id, txID string) error
	Complete(id string) error
	Abandon(id string) error
}

// Config wires an Orchestrator. Journal and Metrics are optional.
type Config struct {
	Blobs   BlobStore
	Ledger  Ledger
	Index   Index
	Journal Journal
	Metrics *metrics.Recorder
	Logger  *zap.Logger

	// IndexTimeout bounds the detached index write after attestation.
	IndexTimeout time.Duration
	// Now overrides the clock in tests.
	Now func() time.Time
}

// Orchestrator runs the write pipeline.
type Orchestrator struct {
	blobs        BlobStore
	ledger       Ledger
	index        Index
	journal      Journal
	metrics      *metrics.Recorder
	logger       *zap.Logger
	indexTimeout time.Duration
	now          func() time.Time
}

// New creates an Orchestrator.
func New(cfg Config) *Orchestrator {
	o := &Orchestrator{
		blobs:        cfg.Blobs,
		ledger:       cfg.Ledger,
		index:        cfg.Index,
		journal:      cfg.Journal,
		metrics:      cfg.Metrics,
		logger:       cfg.Logger,
		indexTimeout: cfg.IndexTimeout,
		now:          cfg.Now,
	}
	if o.logger == nil {
		o.logger = zap.NewNop()
	}
	if o.indexTimeout <= 0 {
		o.indexTimeout = defaultIndexTimeout
	}
	if o.now == nil {
		o.now = time.Now
	}
	return o
}

// stage runs fn as one pipeline stage and records its latency and outcome.
func (o *Orchestrator) stage(op, name string, fn func() error) error {
	start := time.Now()
	err := fn()
	o.metrics.ObserveStage(op, name, start, err)
	if err != nil {
		o.logger.Debug("Stage failed", zap.String("operation", op), zap.String("stage", name), zap.Error(err))
	}
	return err
}

func (o *Orchestrator) store(ctx context.Context, op string, payload []byte, name string) (string, error) {
	var addr string
	err := o.stage(op, metrics.StageStore, func() error {
		var err error
		addr, err = o.blobs.Store(ctx, payload, name)
		return err
	})
	if err != nil {
		o.metrics.ObserveOutcome(op, metrics.OutcomeFailed)
	}
	return addr, err
}

// attestation is an accepted ledger call awaiting its index write.
type attestation struct {
	op       string
	account  common.Address
	txID     string
	intentID string
}

// attest submits call and journals it. The returned context is detached from
// the caller: once the call is submitted, the operation completes even if the
// caller goes away.
func (o *Orchestrator) attest(ctx context.Context, op string, kind index.Kind, subject string, seq uint64, call ledger.Call) (context.Context, *attestation, error) {
	dctx := context.WithoutCancel(ctx)
	a := &attestation{op: op, account: call.Account}

	if o.journal != nil {
		in, err := o.journal.Begin(intentlog.Intent{
			Operation:     op,
			Kind:          string(kind),
			Subject:       subject,
			Sequence:      seq,
			LedgerAddress: call.Account.Hex(),
		})
		if err != nil {
			o.metrics.ObserveOutcome(op, metrics.OutcomeFailed)
			return nil, nil, errors.NewInternalError("record write intent", err).WithOperation(op)
		}
		a.intentID = in.ID
	}

	err := o.stage(op, metrics.StageAttest, func() error {
		var err error
		a.txID, err = o.ledger.Submit(dctx, call)
		return err
	})
	if err != nil {
		o.metrics.ObserveOutcome(op, metrics.OutcomeFailed)
		// A rejected call never landed. An unavailable ledger may still have
		// applied it, so the intent stays for the reconciler to resolve.
		if o.journal != nil && errors.IsLedgerRejected(err) {
			if jerr := o.journal.Abandon(a.intentID); jerr != nil {
				o.logger.Warn("Failed to abandon intent", zap.String("intent", a.intentID), zap.Error(jerr))
			}
		}
		return nil, nil, err
	}

	if o.journal != nil {
		if jerr := o.journal.MarkAttested(a.intentID, a.txID); jerr != nil {
			o.logger.Warn("Failed to mark intent attested", zap.String("intent", a.intentID), zap.Error(jerr))
		}
	}
	o.logger.Info("Ledger accepted call",
		zap.String("operation", op),
		zap.String("account", call.Account.Hex()),
		zap.String("tx", a.txID))
	return dctx, a, nil
}

// indexStage runs the index stage for an accepted call. Failure yields a
// PartialWriteError carrying the transaction id.
func (o *Orchestrator) indexStage(ctx context.Context, a *attestation, write func(ctx context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, o.indexTimeout)
	defer cancel()

	err := o.stage(a.op, metrics.StageIndex, func() error { return write(ctx) })
	if err != nil {
		o.metrics.ObserveOutcome(a.op, metrics.OutcomePartial)
		o.logger.Error("Index write failed after ledger accepted call",
			zap.String("operation", a.op),
			zap.String("account", a.account.Hex()),
			zap.String("tx", a.txID),
			zap.String("intent", a.intentID),
			zap.Error(err))
		return errors.NewPartialWriteError(a.txID, a.account.Hex(), err)
	}

	if o.journal != nil {
		if jerr := o.journal.Complete(a.intentID); jerr != nil {
			o.logger.Warn("Failed to complete intent", zap.String("intent", a.intentID), zap.Error(jerr))
		}
	}
	o.metrics.ObserveOutcome(a.op, metrics.OutcomeDone)
	return nil
}

// rejectionCode returns the program error code of a rejected ledger call.
func rejectionCode(err error) (int, bool) {
	var le *errors.LedgerError
	if !errors.IsLedgerRejected(err) || !stderrors.As(err, &le) {
		return 0, false
	}
	return le.RPCCode, true
}
