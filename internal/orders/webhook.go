package orders

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/cartloom/cartloom-golang/internal/models"
	"github.com/cartloom/cartloom-golang/internal/payments"
)

// HandleWebhookEvent applies one verified gateway event. The gateway
// delivers at least once; the webhook_events claim plus the status-guarded
// update make the order transition effective at most once.
//
// A nil return means the delivery is acknowledged (processed, replayed, or
// deliberately ignored). An error means the gateway should redeliver.
func (s *Service) HandleWebhookEvent(ctx context.Context, event *payments.Event) error {
	if event.Type != payments.EventPaymentIntentSucceeded {
		s.Logger.Info("ignoring webhook event", "event_id", event.ID, "type", event.Type)
		return nil
	}

	intent := event.Data.Object

	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin webhook transaction: %w", err)
	}
	defer tx.Rollback() // Safety net: a failure releases the event claim

	// --- Claim the Event ID ---
	// The no-op ON DUPLICATE arm reports zero affected rows on replay.
	res, err := tx.ExecContext(ctx, `
		INSERT INTO webhook_events (event_id, event_type, payment_intent_id, processed_at)
		VALUES (?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE event_id = event_id`,
		event.ID, event.Type, intent.ID, time.Now())
	if err != nil {
		return fmt.Errorf("claim webhook event: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("claim webhook event: %w", err)
	}
	if affected == 0 {
		s.Logger.Info("replayed webhook event", "event_id", event.ID, "payment_intent_id", intent.ID)
		return tx.Commit()
	}

	// --- Correlate to the Order ---
	order, err := s.findOrderByIntent(ctx, tx, intent.ID)
	if err != nil {
		return err
	}
	if order == nil {
		// The webhook outran the synchronous checkout path. Acknowledge;
		// the order-creation idempotency check converges the two.
		s.Logger.Info("webhook for unknown order", "event_id", event.ID, "payment_intent_id", intent.ID)
		return tx.Commit()
	}

	// metadata.orderId is a cross-check only; the intent id is the key.
	if metaOrderID, ok := intent.Metadata["orderId"]; ok && metaOrderID != strconv.FormatInt(order.ID, 10) {
		s.Logger.Warn("webhook metadata orderId disagrees with correlated order",
			"event_id", event.ID, "metadata_order_id", metaOrderID, "order_id", order.ID)
	}

	if order.Status.Terminal() {
		s.Logger.Info("webhook for settled order", "order_id", order.ID, "status", order.Status)
		return tx.Commit()
	}

	// --- Transition the Order ---
	target := models.OrderStatusPaid
	if intent.AmountCents != order.TotalCents {
		s.Logger.Warn("webhook amount disagrees with order total",
			"order_id", order.ID, "intent_amount", int64(intent.AmountCents), "order_total", int64(order.TotalCents))
		target = models.OrderStatusFailed
	}

	// Guarded write: a concurrent transition leaves zero rows, which is
	// fine — somebody settled the order first.
	result, err := tx.ExecContext(ctx, `
		UPDATE orders SET status = ?, updated_at = ?
		WHERE id = ? AND status IN ('pending','processing')`,
		target, time.Now(), order.ID)
	if err != nil {
		return fmt.Errorf("transition order %d: %w", order.ID, err)
	}
	if n, err := result.RowsAffected(); err == nil && n > 0 {
		s.Logger.Info("order settled by webhook", "order_id", order.ID, "status", target, "event_id", event.ID)
	}

	return tx.Commit()
}
