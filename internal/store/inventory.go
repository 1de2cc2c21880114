package store

import (
	"context"
	"database/sql"
	"fmt"

	"order-reconciler/internal/domain"
	"order-reconciler/internal/models"
)

// ReserveLine is one requested checkout line.
type ReserveLine struct {
	ProductID int64
	Quantity  int
}

// ReserveStockTx decrements stock for every line inside one transaction and
// records a reserve move per line. The decrement is conditional on
// sufficient stock, so concurrent checkouts for the same product cannot
// oversell: the losing transaction sees zero rows affected and fails with
// InsufficientStockError.
func (s *Store) ReserveStockTx(ctx context.Context, orderID string, lines []ReserveLine) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, line := range lines {
		res, err := tx.ExecContext(ctx,
			"UPDATE products SET stock = stock - $1 WHERE id = $2 AND stock >= $1 AND stock >= 0",
			line.Quantity, line.ProductID)
		if err != nil {
			return fmt.Errorf("failed to reserve stock: %w", err)
		}

		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			var available int
			if err := tx.GetContext(ctx, &available,
				"SELECT stock FROM products WHERE id = $1", line.ProductID); err != nil {
				if err == sql.ErrNoRows {
					return &domain.InsufficientStockError{ProductID: line.ProductID, Requested: line.Quantity}
				}
				return err
			}
			return &domain.InsufficientStockError{
				ProductID: line.ProductID,
				Requested: line.Quantity,
				Available: available,
			}
		}

		if _, err := tx.ExecContext(ctx,
			"INSERT INTO inventory_moves (order_id, product_id, quantity, direction) VALUES ($1, $2, $3, $4)",
			orderID, line.ProductID, line.Quantity, models.MoveReserve); err != nil {
			return fmt.Errorf("failed to record reserve move: %w", err)
		}
	}

	if _, err := tx.ExecContext(ctx,
		"UPDATE orders SET inventory_status = $2, updated_at = now() WHERE id = $1",
		orderID, models.InventoryStatusReserved); err != nil {
		return err
	}

	return tx.Commit()
}

// RestockOrderTx returns reserved stock and moves the order to
// INVENTORY_FAILED in one transaction. The stock_restored check-and-set is
// the idempotency gate: only the invocation that flips it false->true
// touches product stock, so racing triggers cannot double-restock.
// Returns true when this call performed the restock.
func (s *Store) RestockOrderTx(ctx context.Context, orderID, failureCode, failureMessage string) (bool, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		UPDATE orders
		SET stock_restored = TRUE, restocked_at = now(),
			status = $2, payment_status = $3, inventory_status = $4,
			failure_code = $5, failure_message = $6, updated_at = now()
		WHERE id = $1 AND stock_restored = FALSE AND status <> $7`,
		orderID,
		models.OrderStatusInventoryFailed, models.PaymentStatusFailed,
		models.InventoryStatusReleased, failureCode, failureMessage,
		models.OrderStatusPaid)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if n == 0 {
		return false, nil
	}

	// Only reserved quantities that were actually recorded get returned;
	// an orphan order has no moves and therefore restores nothing.
	var moves []models.InventoryMove
	if err := tx.SelectContext(ctx, &moves,
		"SELECT * FROM inventory_moves WHERE order_id = $1 AND direction = $2",
		orderID, models.MoveReserve); err != nil {
		return false, err
	}

	for _, m := range moves {
		if _, err := tx.ExecContext(ctx,
			"UPDATE products SET stock = stock + $1 WHERE id = $2",
			m.Quantity, m.ProductID); err != nil {
			return false, fmt.Errorf("failed to restore stock: %w", err)
		}
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO inventory_moves (order_id, product_id, quantity, direction) VALUES ($1, $2, $3, $4)",
			orderID, m.ProductID, m.Quantity, models.MoveRelease); err != nil {
			return false, fmt.Errorf("failed to record release move: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return false, err
	}
	return true, nil
}

// CountInventoryMoves counts reserve moves for an order; zero on a reserved
// order marks it as an orphan.
func (s *Store) CountInventoryMoves(ctx context.Context, orderID string) (int, error) {
	var n int
	err := s.db.GetContext(ctx, &n,
		"SELECT COUNT(*) FROM inventory_moves WHERE order_id = $1 AND direction = $2",
		orderID, models.MoveReserve)
	return n, err
}
