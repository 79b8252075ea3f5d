package ledger

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
)

const (
	DefaultMaxRetries    = 3
	retryInitialInterval = 10 * time.Millisecond
	retryMaxInterval     = 250 * time.Millisecond
)

// txRunner runs a transaction and re-runs it from scratch when the store
// reports ErrConflict. Every attempt commits or rolls back as a whole.
type txRunner struct {
	store      Store
	maxRetries int
}

func (r txRunner) run(ctx context.Context, name string, fn func(ctx context.Context, tx Tx) error) error {
	attempt := 0
	op := func() error {
		attempt++
		err := r.store.WithTx(ctx, fn)
		if err == nil {
			return nil
		}
		if errors.Is(err, ErrConflict) {
			return err
		}
		return backoff.Permanent(err)
	}

	notify := func(err error, wait time.Duration) {
		zap.L().Debug("retrying transaction after conflict",
			zap.String("operation", name),
			zap.Int("attempt", attempt),
			zap.Duration("wait", wait),
			zap.Error(err),
		)
	}

	return backoff.RetryNotify(op, r.policy(ctx), notify)
}

func (r txRunner) policy(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = retryInitialInterval
	b.MaxInterval = retryMaxInterval
	b.MaxElapsedTime = 0

	retries := r.maxRetries
	if retries < 0 {
		retries = 0
	}
	return backoff.WithContext(backoff.WithMaxRetries(b, uint64(retries)), ctx)
}
