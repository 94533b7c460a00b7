package models

import (
	"time"

	"github.com/cartloom/cartloom-golang/internal/money"
)

// OrderStatus is the lifecycle state of an order. Paid, failed and
// cancelled are terminal: nothing transitions an order out of them.
type OrderStatus string

const (
	OrderStatusPending    OrderStatus = "pending"
	OrderStatusProcessing OrderStatus = "processing"
	OrderStatusPaid       OrderStatus = "paid"
	OrderStatusFailed     OrderStatus = "failed"
	OrderStatusCancelled  OrderStatus = "cancelled"
)

// Terminal reports whether the status admits no further transitions.
func (s OrderStatus) Terminal() bool {
	return s == OrderStatusPaid || s == OrderStatusFailed || s == OrderStatusCancelled
}

// Order is the model for the 'orders' table. payment_intent_id carries a
// UNIQUE constraint: the datastore, not application code, is the final
// guarantee of one order per captured payment.
type Order struct {
	ID              int64       `json:"id" db:"id"`
	UserID          int64       `json:"userId" db:"user_id"`
	Status          OrderStatus `json:"status" db:"status"`
	TotalCents      money.Cents `json:"totalCents" db:"total_cents"`
	Currency        string      `json:"currency" db:"currency"`
	AddressID       int64       `json:"addressId" db:"address_id"`
	PaymentIntentID string      `json:"paymentIntentId" db:"payment_intent_id"`
	CreatedAt       time.Time   `json:"createdAt" db:"created_at"`
	UpdatedAt       time.Time   `json:"updatedAt" db:"updated_at"`
}

// OrderItem is the model for the 'order_items' table
type OrderItem struct {
	ID             int64       `json:"id" db:"id"`
	OrderID        int64       `json:"orderId" db:"order_id"`
	ProductID      int64       `json:"productId" db:"product_id"`
	Quantity       int         `json:"quantity" db:"quantity"`
	UnitPriceCents money.Cents `json:"unitPriceCents" db:"unit_price_cents"` // Price at the time of purchase
	CreatedAt      time.Time   `json:"createdAt" db:"created_at"`
}
