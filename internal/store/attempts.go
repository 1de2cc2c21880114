package store

import (
	"context"
	"errors"

	"github.com/lib/pq"

	"order-reconciler/internal/domain"
	"order-reconciler/internal/models"
)

// CreateAttempt inserts the next payment attempt for order+provider. The
// attempt number is computed in the insert itself and the partial unique
// index rejects a second active attempt regardless of what concurrent
// requests observed.
func (s *Store) CreateAttempt(ctx context.Context, orderID, provider, idempotencyKey string, attemptNo int) (*models.PaymentAttempt, error) {
	var attempt models.PaymentAttempt
	err := s.db.GetContext(ctx, &attempt, `
		INSERT INTO payment_attempts (order_id, provider, attempt_no, idempotency_key, status)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING *`,
		orderID, provider, attemptNo, idempotencyKey, models.AttemptStatusPending)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && string(pqErr.Code) == pqUniqueViolation {
			return nil, domain.Newf(domain.CodeAttemptActive,
				"an active %s attempt already exists for order %s", provider, orderID)
		}
		return nil, err
	}
	return &attempt, nil
}

// NextAttemptNo returns max(attempt_no)+1 for order+provider.
func (s *Store) NextAttemptNo(ctx context.Context, orderID, provider string) (int, error) {
	var n int
	err := s.db.GetContext(ctx, &n, `
		SELECT COALESCE(MAX(attempt_no), 0) + 1
		FROM payment_attempts WHERE order_id = $1 AND provider = $2`,
		orderID, provider)
	return n, err
}

// MarkAttemptStatus moves an attempt to a terminal status.
func (s *Store) MarkAttemptStatus(ctx context.Context, attemptID int64, status string) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE payment_attempts SET status = $2, updated_at = now() WHERE id = $1",
		attemptID, status)
	return err
}

// CloseActiveAttempts terminates every pending attempt for an order with the
// given terminal status. Used when a webhook settles the order outcome.
func (s *Store) CloseActiveAttempts(ctx context.Context, orderID, status string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE payment_attempts SET status = $2, updated_at = now()
		WHERE order_id = $1 AND status = $3`,
		orderID, status, models.AttemptStatusPending)
	return err
}
