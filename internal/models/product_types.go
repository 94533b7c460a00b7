package models

import (
	"time"

	"github.com/cartloom/cartloom-golang/internal/money"
)

// Product statuses. Only published products are purchasable.
const (
	ProductStatusDraft     = "draft"
	ProductStatusPublished = "published"
)

// Product is the model for the 'products' table.
// Nullable columns use pointers for clean JSON serialization.
type Product struct {
	ID          int64   `json:"id" db:"id"`
	SellerID    int64   `json:"sellerId" db:"seller_id"`
	SKU         *string `json:"sku,omitempty" db:"sku"`
	Slug        string  `json:"slug" db:"slug"`
	Name        string  `json:"name" db:"name"`
	Description string  `json:"description" db:"description"`

	// --- Pricing & Stock ---
	PriceCents         money.Cents  `json:"priceCents" db:"price_cents"`
	DiscountPriceCents *money.Cents `json:"discountPriceCents,omitempty" db:"discount_price_cents"`
	StockQuantity      int          `json:"stock" db:"stock_quantity"`

	// Version increments on every stock write (compare-and-swap guard).
	Version int    `json:"-" db:"version"`
	Status  string `json:"status" db:"status"`

	CreatedAt time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt time.Time `json:"updatedAt" db:"updated_at"`
}

// EffectivePriceCents is the price a buyer actually pays: the discount
// price when one is set, the list price otherwise.
func (p *Product) EffectivePriceCents() money.Cents {
	if p.DiscountPriceCents != nil {
		return *p.DiscountPriceCents
	}
	return p.PriceCents
}
