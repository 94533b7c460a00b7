// Package orders owns the checkout transaction: verifying a captured
// payment intent, reserving inventory, and writing the order with its line
// items as a single atomic unit. It also reconciles asynchronous webhook
// deliveries and sweeps stale in-flight orders.
package orders

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"

	"github.com/cartloom/cartloom-golang/internal/apperrors"
	"github.com/cartloom/cartloom-golang/internal/models"
	"github.com/cartloom/cartloom-golang/internal/money"
	"github.com/cartloom/cartloom-golang/internal/payments"
)

// MySQL error numbers the orchestrator reacts to.
const (
	mysqlErrDuplicateEntry  = 1062
	mysqlErrLockDeadlock    = 1213
	mysqlErrLockWaitTimeout = 1205
)

// querier is the subset of *sql.DB and *sql.Tx the read helpers need, so
// they run both inside and outside a transaction.
type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Service orchestrates order creation against the datastore and the
// payment gateway. All dependencies are injected; tests substitute fakes.
type Service struct {
	DB      *sql.DB
	Gateway payments.Gateway
	Logger  *slog.Logger

	// Currency every intent must be denominated in (ISO 4217, lowercase).
	Currency string

	// Bounded retry on transient datastore failures (deadlock, lock wait
	// timeout, dropped connection).
	MaxRetries int
	RetryDelay time.Duration
}

// NewService builds a Service with the default retry policy.
func NewService(db *sql.DB, gateway payments.Gateway, currency string) *Service {
	return &Service{
		DB:         db,
		Gateway:    gateway,
		Logger:     slog.Default(),
		Currency:   currency,
		MaxRetries: 3,
		RetryDelay: 100 * time.Millisecond,
	}
}

// CreateOrder runs the checkout flow for a verified payment. The returned
// bool is true when an order with the same payment intent id already
// existed and was returned unchanged (idempotent replay).
//
// Everything from the inventory check to the last line-item insert runs in
// one transaction: a failure at any point leaves zero rows for the attempt.
func (s *Service) CreateOrder(ctx context.Context, userID int64, in models.CreateOrderInput) (*models.Order, bool, error) {
	// 1. --- Validate Input (before any gateway call) ---
	if len(in.Items) == 0 {
		return nil, false, apperrors.New(apperrors.KindValidation, "No items in order")
	}
	if in.AddressID == nil && in.Address == nil {
		return nil, false, apperrors.New(apperrors.KindValidation, "Shipping address is required")
	}

	// 2. --- Idempotency Fast Path ---
	// Double-submits and the webhook/synchronous race converge here.
	existing, err := s.findOrderByIntent(ctx, s.DB, in.PaymentIntentID)
	if err != nil {
		return nil, false, apperrors.Wrap(apperrors.KindOrderCreationFailed, "Failed to create order", err)
	}
	if existing != nil {
		return existing, true, nil
	}

	// 3. --- Verify Payment with the Gateway ---
	// Amounts come from the gateway's record, never the request body.
	intent, err := s.Gateway.RetrieveIntent(ctx, in.PaymentIntentID)
	if err != nil {
		return nil, false, err
	}

	var target models.OrderStatus
	switch intent.Status {
	case payments.IntentStatusSucceeded:
		target = models.OrderStatusPaid
	case payments.IntentStatusProcessing:
		// Capture still in flight: the webhook or the reaper finishes it.
		target = models.OrderStatusProcessing
	default:
		return nil, false, apperrors.Newf(apperrors.KindPaymentVerification,
			"Payment not completed (status %s)", intent.Status)
	}

	total := expectedTotal(in.Items)
	if intent.AmountCents != total {
		return nil, false, apperrors.New(apperrors.KindPaymentVerification,
			"Payment amount does not match order total")
	}
	if s.Currency != "" && !strings.EqualFold(intent.Currency, s.Currency) {
		return nil, false, apperrors.New(apperrors.KindPaymentVerification,
			"Payment currency does not match")
	}

	// 4. --- Transactional Write with Bounded Retry ---
	var lastErr error
	for attempt := 0; attempt <= s.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := s.RetryDelay * time.Duration(1<<uint(attempt-1))
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return nil, false, apperrors.Wrap(apperrors.KindOrderCreationFailed,
					"Failed to create order", ctx.Err())
			}
			s.Logger.Warn("retrying order transaction",
				"payment_intent_id", in.PaymentIntentID, "attempt", attempt+1, "last_error", lastErr.Error())
		}

		order, replayed, err := s.createOrderTx(ctx, userID, in, total, intent.Currency, target)
		if err == nil {
			return order, replayed, nil
		}
		if !isTransient(err) {
			return nil, false, err
		}
		lastErr = err
	}

	return nil, false, apperrors.Wrap(apperrors.KindOrderCreationFailed, "Failed to create order", lastErr)
}

// createOrderTx is one attempt at the atomic write: address, inventory,
// order row, line items.
func (s *Service) createOrderTx(ctx context.Context, userID int64, in models.CreateOrderInput,
	total money.Cents, currency string, target models.OrderStatus) (*models.Order, bool, error) {

	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return nil, false, fmt.Errorf("begin order transaction: %w", err)
	}
	defer tx.Rollback() // Safety net

	now := time.Now()

	// --- Resolve Shipping Address ---
	addressID, err := s.resolveAddress(ctx, tx, userID, in, now)
	if err != nil {
		return nil, false, err
	}

	// --- Reserve Inventory ---
	if err := reserveStock(ctx, tx, in.Items, now); err != nil {
		return nil, false, err
	}

	// --- Insert the Order ---
	res, err := tx.ExecContext(ctx, `
		INSERT INTO orders (user_id, status, total_cents, currency, address_id, payment_intent_id, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		userID, target, total, currency, addressID, in.PaymentIntentID, now, now)
	if err != nil {
		if isDuplicateKey(err) {
			// Lost the race on the unique payment_intent_id: the other
			// request's order is the order. Return it unchanged.
			tx.Rollback()
			winner, ferr := s.findOrderByIntent(ctx, s.DB, in.PaymentIntentID)
			if ferr != nil || winner == nil {
				return nil, false, apperrors.Wrap(apperrors.KindOrderCreationFailed,
					"Failed to create order", err)
			}
			return winner, true, nil
		}
		return nil, false, fmt.Errorf("insert order: %w", err)
	}
	orderID, err := res.LastInsertId()
	if err != nil {
		return nil, false, fmt.Errorf("read order id: %w", err)
	}

	// --- Snapshot the Line Items ---
	// Unit prices freeze at purchase time; later catalog changes never
	// touch these rows.
	for _, item := range in.Items {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO order_items (order_id, product_id, quantity, unit_price_cents, created_at)
			VALUES (?, ?, ?, ?, ?)`,
			orderID, item.ProductID, item.Quantity, money.FromDecimal(item.Price), now)
		if err != nil {
			return nil, false, fmt.Errorf("insert order item: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, false, fmt.Errorf("commit order transaction: %w", err)
	}

	return &models.Order{
		ID:              orderID,
		UserID:          userID,
		Status:          target,
		TotalCents:      total,
		Currency:        currency,
		AddressID:       addressID,
		PaymentIntentID: in.PaymentIntentID,
		CreatedAt:       now,
		UpdatedAt:       now,
	}, false, nil
}

// resolveAddress returns an existing address id (verifying ownership) or
// persists an inline address within the same transaction.
func (s *Service) resolveAddress(ctx context.Context, tx *sql.Tx, userID int64,
	in models.CreateOrderInput, now time.Time) (int64, error) {

	if in.AddressID != nil {
		var id int64
		err := tx.QueryRowContext(ctx,
			"SELECT id FROM addresses WHERE id = ? AND user_id = ?",
			*in.AddressID, userID).Scan(&id)
		if err == sql.ErrNoRows {
			return 0, apperrors.New(apperrors.KindValidation, "Address not found")
		}
		if err != nil {
			return 0, fmt.Errorf("look up address: %w", err)
		}
		return id, nil
	}

	a := in.Address
	res, err := tx.ExecContext(ctx, `
		INSERT INTO addresses (user_id, recipient, line1, line2, city, state, postcode, country, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		userID, a.Recipient, a.Line1, a.Line2, a.City, a.State, a.Postcode, a.Country, now, now)
	if err != nil {
		return 0, fmt.Errorf("insert address: %w", err)
	}
	return res.LastInsertId()
}

// reserveStock locks the product rows in ascending id order, checks
// availability for every line, then decrements with a guarded write. Any
// shortfall fails the whole transaction: no partial fulfillment.
func reserveStock(ctx context.Context, tx *sql.Tx, items []models.OrderItemInput, now time.Time) error {
	merged := mergeItems(items)

	var insufficient []int64
	for _, item := range merged {
		var stock int
		var status string
		err := tx.QueryRowContext(ctx,
			"SELECT stock_quantity, status FROM products WHERE id = ? FOR UPDATE",
			item.ProductID).Scan(&stock, &status)
		if err == sql.ErrNoRows {
			return apperrors.Newf(apperrors.KindValidation, "Product %d not found", item.ProductID)
		}
		if err != nil {
			return fmt.Errorf("lock product %d: %w", item.ProductID, err)
		}
		if status != models.ProductStatusPublished {
			return apperrors.Newf(apperrors.KindValidation, "Product %d is not available", item.ProductID)
		}
		if stock < item.Quantity {
			insufficient = append(insufficient, item.ProductID)
		}
	}
	if len(insufficient) > 0 {
		return apperrors.Newf(apperrors.KindInsufficientInventory,
			"Insufficient stock for product(s) %v", insufficient)
	}

	for _, item := range merged {
		res, err := tx.ExecContext(ctx, `
			UPDATE products
			SET stock_quantity = stock_quantity - ?, version = version + 1, updated_at = ?
			WHERE id = ? AND stock_quantity >= ?`,
			item.Quantity, now, item.ProductID, item.Quantity)
		if err != nil {
			return fmt.Errorf("decrement stock for product %d: %w", item.ProductID, err)
		}
		// The stock_quantity guard makes the decrement a compare-and-swap:
		// zero rows means another transaction drained the stock first.
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("decrement stock for product %d: %w", item.ProductID, err)
		}
		if n == 0 {
			return apperrors.Newf(apperrors.KindInsufficientInventory,
				"Insufficient stock for product(s) [%d]", item.ProductID)
		}
	}
	return nil
}

// mergeItems collapses duplicate product lines and sorts by product id so
// concurrent checkouts acquire row locks in the same order (no deadlock by
// lock-order inversion).
func mergeItems(items []models.OrderItemInput) []models.OrderItemInput {
	byID := make(map[int64]models.OrderItemInput, len(items))
	for _, item := range items {
		if prev, ok := byID[item.ProductID]; ok {
			prev.Quantity += item.Quantity
			byID[item.ProductID] = prev
			continue
		}
		byID[item.ProductID] = item
	}

	merged := make([]models.OrderItemInput, 0, len(byID))
	for _, item := range byID {
		merged = append(merged, item)
	}
	sort.Slice(merged, func(i, j int) bool { return merged[i].ProductID < merged[j].ProductID })
	return merged
}

// expectedTotal computes the order total in exact cents from the submitted
// cart. This is what the captured intent amount must equal.
func expectedTotal(items []models.OrderItemInput) money.Cents {
	var total money.Cents
	for _, item := range items {
		total += money.Line(money.FromDecimal(item.Price), item.Quantity)
	}
	return total
}

// findOrderByIntent loads an order by its payment intent id, or nil when
// none exists.
func (s *Service) findOrderByIntent(ctx context.Context, q querier, intentID string) (*models.Order, error) {
	var o models.Order
	err := q.QueryRowContext(ctx, `
		SELECT id, user_id, status, total_cents, currency, address_id, payment_intent_id, created_at, updated_at
		FROM orders WHERE payment_intent_id = ?`, intentID).Scan(
		&o.ID, &o.UserID, &o.Status, &o.TotalCents, &o.Currency, &o.AddressID,
		&o.PaymentIntentID, &o.CreatedAt, &o.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("look up order by payment intent: %w", err)
	}
	return &o, nil
}

// isDuplicateKey reports a MySQL unique-constraint violation.
func isDuplicateKey(err error) bool {
	var me *mysql.MySQLError
	return errors.As(err, &me) && me.Number == mysqlErrDuplicateEntry
}

// isTransient reports datastore failures worth retrying: deadlocks, lock
// wait timeouts, and dropped connections.
func isTransient(err error) bool {
	var me *mysql.MySQLError
	if errors.As(err, &me) {
		return me.Number == mysqlErrLockDeadlock || me.Number == mysqlErrLockWaitTimeout
	}
	return errors.Is(err, driver.ErrBadConn) || errors.Is(err, mysql.ErrInvalidConn)
}
