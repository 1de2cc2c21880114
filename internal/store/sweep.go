package store

import (
	"context"
	"fmt"
	"time"

	"order-reconciler/internal/models"
)

// ClaimStaleOrders claims a batch of orders stuck in CREATED with a pending
// payment past the threshold. The same SKIP LOCKED claim pattern as the
// event queue makes overlapping sweep runs split the batch instead of
// processing the same orders twice.
func (s *Store) ClaimStaleOrders(ctx context.Context, claimedBy string, olderThan time.Duration, batchSize int, claimTTL time.Duration) ([]models.Order, error) {
	var orders []models.Order
	err := s.db.SelectContext(ctx, &orders, `
		WITH candidate AS (
			SELECT id FROM orders
			WHERE status = $2
			  AND payment_status IN ($3, $4)
			  AND updated_at < now() - $5 * INTERVAL '1 minute'
			  AND (sweep_claim_expires_at IS NULL OR sweep_claim_expires_at < now())
			ORDER BY updated_at
			FOR UPDATE SKIP LOCKED
			LIMIT $6
		)
		UPDATE orders o
		SET sweep_claim_expires_at = now() + $7 * INTERVAL '1 minute',
			sweep_claimed_by = $1
		FROM candidate
		WHERE o.id = candidate.id
		RETURNING o.*`,
		claimedBy,
		models.OrderStatusCreated,
		models.PaymentStatusPending, models.PaymentStatusRequiresPayment,
		int(olderThan.Minutes()), batchSize, int(claimTTL.Minutes()))
	if err != nil {
		return nil, fmt.Errorf("failed to claim stale orders: %w", err)
	}
	return orders, nil
}

// ReleaseSweepClaim clears the sweep claim, normally after processing.
func (s *Store) ReleaseSweepClaim(ctx context.Context, orderID string) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE orders SET sweep_claim_expires_at = NULL, sweep_claimed_by = NULL WHERE id = $1",
		orderID)
	return err
}
