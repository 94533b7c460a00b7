package models

import "github.com/shopspring/decimal"

// OrderItemInput is one cart line as the client submits it at checkout.
// Price arrives as a decimal and is verified in aggregate against the
// captured payment intent before anything is persisted.
type OrderItemInput struct {
	ProductID int64           `json:"id" binding:"required"`
	Price     decimal.Decimal `json:"price" binding:"required"`
	Quantity  int             `json:"quantity" binding:"required,gt=0"`
}

// AddressInput is an inline shipping address supplied at checkout when the
// buyer has no saved address to reference.
type AddressInput struct {
	Recipient string  `json:"recipient" binding:"required"`
	Line1     string  `json:"line1" binding:"required"`
	Line2     *string `json:"line2"`
	City      string  `json:"city" binding:"required"`
	State     string  `json:"state" binding:"required"`
	Postcode  string  `json:"postcode" binding:"required"`
	Country   string  `json:"country" binding:"required,len=2"`
}

// CreateOrderInput is the body of POST /v1/orders. Exactly one of AddressID
// and Address must be set.
type CreateOrderInput struct {
	Items           []OrderItemInput `json:"items" binding:"omitempty,dive"`
	AddressID       *int64           `json:"addressId"`
	Address         *AddressInput    `json:"address"`
	PaymentIntentID string           `json:"paymentIntentId" binding:"required"`
}

// IntentItemInput is one cart line for POST /v1/payments/create-intent.
// No price: the server prices items from the catalog, never the client.
type IntentItemInput struct {
	ProductID int64 `json:"id" binding:"required"`
	Quantity  int   `json:"quantity" binding:"required,gt=0"`
}

// CreateIntentInput is the body of POST /v1/payments/create-intent.
type CreateIntentInput struct {
	Items     []IntentItemInput `json:"items"`
	AddressID *int64            `json:"addressId"`
}

// CreateProductInput is the body of POST /v1/products. Prices arrive as
// decimals and are stored as cents.
type CreateProductInput struct {
	Name          string           `json:"name" binding:"required"`
	Description   string           `json:"description"`
	SKU           *string          `json:"sku"`
	Price         decimal.Decimal  `json:"price" binding:"required"`
	DiscountPrice *decimal.Decimal `json:"discountPrice"`
	StockQuantity int              `json:"stock" binding:"gte=0"`
}
