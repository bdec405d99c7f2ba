// Package retry runs blob store and ledger calls under a per-attempt timeout
// with bounded exponential backoff. Only errors classified as retryable by
// pkg/errors are attempted again.
package retry

import (
	"context"
	stderrors "errors"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.uber.org/zap"

	"github.com/carefolio/records/pkg/errors"
)

// Policy bounds a retried call.
type Policy struct {
	// AttemptTimeout caps each individual attempt. Zero means no per-attempt cap.
	AttemptTimeout time.Duration
	// MaxAttempts is the total number of attempts, including the first.
	MaxAttempts int
	// InitialInterval is the first backoff delay.
	InitialInterval time.Duration
	// MaxInterval caps the backoff delay.
	MaxInterval time.Duration
}

// Once is a policy that makes exactly one attempt.
var Once = Policy{MaxAttempts: 1}

func (p Policy) backOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	if p.InitialInterval > 0 {
		b.InitialInterval = p.InitialInterval
	}
	if p.MaxInterval > 0 {
		b.MaxInterval = p.MaxInterval
	} else {
		b.MaxInterval = 5 * time.Second
	}
	return b
}

// Do runs op until it succeeds, returns a non-retryable error, or the
// policy is exhausted. The last error is returned unchanged.
func Do[T any](ctx context.Context, p Policy, logger *zap.Logger, name string, op func(ctx context.Context) (T, error)) (T, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	attempt := 0
	var lastErr error
	operation := func() (T, error) {
		attempt++
		attemptCtx := ctx
		if p.AttemptTimeout > 0 {
			var cancel context.CancelFunc
			attemptCtx, cancel = context.WithTimeout(ctx, p.AttemptTimeout)
			defer cancel()
		}

		v, err := op(attemptCtx)
		if err == nil {
			return v, nil
		}
		lastErr = err
		if !errors.ShouldRetry(err) || ctx.Err() != nil {
			return v, backoff.Permanent(err)
		}
		if attempt < attempts {
			logger.Debug("Retrying call",
				zap.String("call", name),
				zap.Int("attempt", attempt),
				zap.Error(err))
		}
		return v, err
	}

	v, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(p.backOff()),
		backoff.WithMaxTries(uint(attempts)),
		backoff.WithMaxElapsedTime(0),
	)
	if err == nil {
		return v, nil
	}
	var permanent *backoff.PermanentError
	if stderrors.As(err, &permanent) {
		err = permanent.Unwrap()
	}
	// Cancellation while waiting between attempts reports the call's own failure.
	if lastErr != nil && (stderrors.Is(err, context.Canceled) || stderrors.Is(err, context.DeadlineExceeded)) {
		err = lastErr
	}
	return v, err
}
