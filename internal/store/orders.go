package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"order-reconciler/internal/domain"
	"order-reconciler/internal/models"
)

const pqUniqueViolation = "23505"

// CreateOrder inserts a new order. A duplicate idempotency key is resolved
// by re-reading the original row: same request hash replays it, a different
// hash is a conflict.
func (s *Store) CreateOrder(ctx context.Context, order *models.Order) (*models.Order, bool, error) {
	query := `
		INSERT INTO orders (id, user_id, total_amount_minor, total_amount, currency,
			payment_provider, payment_status, status, inventory_status,
			idempotency_key, idempotency_request_hash)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING created_at, updated_at`

	err := s.db.GetContext(ctx, order, query,
		order.ID, order.UserID, order.TotalAmountMinor, order.TotalAmount, order.Currency,
		order.PaymentProvider, order.PaymentStatus, order.Status, order.InventoryStatus,
		order.IdempotencyKey, order.IdempotencyRequestHash)
	if err == nil {
		return order, false, nil
	}

	var pqErr *pq.Error
	if !errors.As(err, &pqErr) || string(pqErr.Code) != pqUniqueViolation {
		return nil, false, fmt.Errorf("failed to create order: %w", err)
	}

	existing, lookupErr := s.GetOrderByIdempotencyKey(ctx, order.IdempotencyKey)
	if lookupErr != nil {
		return nil, false, lookupErr
	}
	if existing == nil {
		return nil, false, fmt.Errorf("failed to create order: %w", err)
	}
	if existing.IdempotencyRequestHash != order.IdempotencyRequestHash {
		return nil, false, domain.New(domain.CodeIdempotencyConflict,
			"idempotency key reused with a different payload")
	}
	return existing, true, nil
}

// GetOrderByID retrieves an order by ID
func (s *Store) GetOrderByID(ctx context.Context, id string) (*models.Order, error) {
	var order models.Order
	err := s.db.GetContext(ctx, &order, "SELECT * FROM orders WHERE id = $1", id)
	if err == sql.ErrNoRows {
		return nil, domain.Newf(domain.CodeOrderNotFound, "order not found: %s", id)
	}
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// GetOrderByIdempotencyKey retrieves an order by idempotency key
func (s *Store) GetOrderByIdempotencyKey(ctx context.Context, key string) (*models.Order, error) {
	var order models.Order
	err := s.db.GetContext(ctx, &order, "SELECT * FROM orders WHERE idempotency_key = $1", key)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// MarkOrderPaid moves a non-terminal order to PAID. Returns false when the
// order was already terminal, which callers treat as an idempotent no-op.
func (s *Store) MarkOrderPaid(ctx context.Context, orderID, paymentIntentID string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE orders
		SET status = $2, payment_status = $3, inventory_status = $4,
			payment_intent_id = $5, updated_at = now()
		WHERE id = $1 AND status NOT IN ($2, $6)`,
		orderID,
		models.OrderStatusPaid, models.PaymentStatusPaid, models.InventoryStatusReleased,
		paymentIntentID, models.OrderStatusInventoryFailed)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// MarkOrderRefunded flips a paid order to refunded payment status.
func (s *Store) MarkOrderRefunded(ctx context.Context, orderID string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE orders
		SET payment_status = $2, updated_at = now()
		WHERE id = $1 AND status = $3 AND payment_status = $4`,
		orderID, models.PaymentStatusRefunded, models.OrderStatusPaid, models.PaymentStatusPaid)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// InsertOrderItem creates a new order line
func (s *Store) InsertOrderItem(ctx context.Context, item *models.OrderItem) error {
	return s.db.GetContext(ctx, &item.ID, `
		INSERT INTO order_items (order_id, product_id, quantity, unit_price_minor)
		VALUES ($1, $2, $3, $4)
		RETURNING id`,
		item.OrderID, item.ProductID, item.Quantity, item.UnitPriceMinor)
}

// GetOrderItemsByOrderID retrieves all items for an order
func (s *Store) GetOrderItemsByOrderID(ctx context.Context, orderID string) ([]models.OrderItem, error) {
	var items []models.OrderItem
	err := s.db.SelectContext(ctx, &items,
		"SELECT * FROM order_items WHERE order_id = $1", orderID)
	return items, err
}
