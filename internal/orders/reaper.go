package orders

import (
	"context"
	"fmt"
	"time"

	"github.com/cartloom/cartloom-golang/internal/models"
	"github.com/cartloom/cartloom-golang/internal/payments"
)

// staleOrder is the slice of an order row the reaper needs.
type staleOrder struct {
	ID              int64
	PaymentIntentID string
}

// ReapStaleOrders settles orders stuck in processing longer than olderThan
// by re-querying the gateway: captured payments are marked paid, dead ones
// cancelled with their stock restored. An unreachable gateway defers the
// order to the next sweep — a slow processor never fails an order.
// Returns the number of orders settled.
func (s *Service) ReapStaleOrders(ctx context.Context, olderThan time.Duration) (int, error) {
	cutoff := time.Now().Add(-olderThan)

	rows, err := s.DB.QueryContext(ctx, `
		SELECT id, payment_intent_id FROM orders
		WHERE status = 'processing' AND updated_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("scan stale orders: %w", err)
	}
	defer rows.Close()

	var stale []staleOrder
	for rows.Next() {
		var o staleOrder
		if err := rows.Scan(&o.ID, &o.PaymentIntentID); err != nil {
			return 0, fmt.Errorf("scan stale order: %w", err)
		}
		stale = append(stale, o)
	}
	if err := rows.Err(); err != nil {
		return 0, fmt.Errorf("scan stale orders: %w", err)
	}

	settled := 0
	for _, o := range stale {
		intent, err := s.Gateway.RetrieveIntent(ctx, o.PaymentIntentID)
		if err != nil {
			s.Logger.Warn("reaper could not query gateway, deferring order",
				"order_id", o.ID, "error", err)
			continue
		}

		switch intent.Status {
		case payments.IntentStatusSucceeded:
			if err := s.settleOrder(ctx, o.ID, models.OrderStatusPaid); err != nil {
				s.Logger.Error("reaper failed to mark order paid", "order_id", o.ID, "error", err)
				continue
			}
			settled++
		case payments.IntentStatusCanceled, payments.IntentStatusFailed:
			if err := s.cancelOrder(ctx, o.ID); err != nil {
				s.Logger.Error("reaper failed to cancel order", "order_id", o.ID, "error", err)
				continue
			}
			settled++
		default:
			// Still in flight; leave it for the next sweep.
		}
	}
	return settled, nil
}

// settleOrder applies a status-guarded transition out of processing.
func (s *Service) settleOrder(ctx context.Context, orderID int64, target models.OrderStatus) error {
	res, err := s.DB.ExecContext(ctx, `
		UPDATE orders SET status = ?, updated_at = ?
		WHERE id = ? AND status = 'processing'`,
		target, time.Now(), orderID)
	if err != nil {
		return fmt.Errorf("settle order %d: %w", orderID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n > 0 {
		s.Logger.Info("stale order settled", "order_id", orderID, "status", target)
	}
	return nil
}

// cancelOrder marks a dead order cancelled and returns its reserved stock,
// both in one transaction.
func (s *Service) cancelOrder(ctx context.Context, orderID int64) error {
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin cancel transaction: %w", err)
	}
	defer tx.Rollback()

	now := time.Now()
	res, err := tx.ExecContext(ctx, `
		UPDATE orders SET status = 'cancelled', updated_at = ?
		WHERE id = ? AND status = 'processing'`, now, orderID)
	if err != nil {
		return fmt.Errorf("cancel order %d: %w", orderID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("cancel order %d: %w", orderID, err)
	}
	if n == 0 {
		// Another path settled it between the scan and now.
		return tx.Commit()
	}

	rows, err := tx.QueryContext(ctx,
		"SELECT product_id, quantity FROM order_items WHERE order_id = ?", orderID)
	if err != nil {
		return fmt.Errorf("load items for order %d: %w", orderID, err)
	}
	defer rows.Close()

	type restock struct {
		productID int64
		quantity  int
	}
	var restocks []restock
	for rows.Next() {
		var r restock
		if err := rows.Scan(&r.productID, &r.quantity); err != nil {
			return fmt.Errorf("scan item for order %d: %w", orderID, err)
		}
		restocks = append(restocks, r)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("load items for order %d: %w", orderID, err)
	}

	for _, r := range restocks {
		_, err := tx.ExecContext(ctx, `
			UPDATE products
			SET stock_quantity = stock_quantity + ?, version = version + 1, updated_at = ?
			WHERE id = ?`, r.quantity, now, r.productID)
		if err != nil {
			return fmt.Errorf("restore stock for product %d: %w", r.productID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit cancel transaction: %w", err)
	}
	s.Logger.Info("stale order cancelled, stock restored", "order_id", orderID, "items", len(restocks))
	return nil
}
