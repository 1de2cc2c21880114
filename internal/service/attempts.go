package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"order-reconciler/internal/domain"
	"order-reconciler/internal/models"
	"order-reconciler/internal/util"
)

// BuildAttemptIdempotencyKey returns the provider idempotency-key header
// value for one attempt. Keys are namespaced per provider so stripe and
// monobank attempts for the same order can never collide, and include the
// attempt number so retries after a terminal attempt get a fresh key.
func BuildAttemptIdempotencyKey(provider, orderID string, attemptNo int) string {
	if provider == models.ProviderStripe {
		return fmt.Sprintf("pi:%s:%s:%d", provider, orderID, attemptNo)
	}
	return fmt.Sprintf("mono:%s:%d", orderID, attemptNo)
}

type attemptStore interface {
	NextAttemptNo(ctx context.Context, orderID, provider string) (int, error)
	CreateAttempt(ctx context.Context, orderID, provider, idempotencyKey string, attemptNo int) (*models.PaymentAttempt, error)
}

// AttemptTracker gates payment attempt creation per order+provider.
type AttemptTracker struct {
	store       attemptStore
	maxAttempts int
	logger      *zap.Logger
}

func NewAttemptTracker(store attemptStore, maxAttempts int) *AttemptTracker {
	return &AttemptTracker{
		store:       store,
		maxAttempts: maxAttempts,
		logger:      util.GetLogger(),
	}
}

// StartAttempt creates the next attempt for order+provider. The database's
// partial unique index is the arbiter for concurrent calls; the retry
// budget bounds how many terminal attempts an order may accumulate.
func (t *AttemptTracker) StartAttempt(ctx context.Context, orderID, provider string) (*models.PaymentAttempt, error) {
	attemptNo, err := t.store.NextAttemptNo(ctx, orderID, provider)
	if err != nil {
		return nil, fmt.Errorf("failed to compute attempt number: %w", err)
	}
	if t.maxAttempts > 0 && attemptNo > t.maxAttempts {
		return nil, domain.Newf(domain.CodePaymentAttemptsExhausted,
			"order %s exceeded %d %s payment attempts", orderID, t.maxAttempts, provider)
	}

	key := BuildAttemptIdempotencyKey(provider, orderID, attemptNo)
	attempt, err := t.store.CreateAttempt(ctx, orderID, provider, key, attemptNo)
	if err != nil {
		return nil, err
	}

	util.PaymentAttemptsTotal.WithLabelValues(provider).Inc()
	t.logger.Info("Payment attempt created",
		zap.String("order_id", orderID),
		zap.String("provider", provider),
		zap.Int("attempt_no", attempt.AttemptNo))
	return attempt, nil
}
