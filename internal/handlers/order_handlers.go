package handlers

import (
	"database/sql"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/cartloom/cartloom-golang/internal/apperrors"
	"github.com/cartloom/cartloom-golang/internal/models"
)

// CreateOrder is the handler for POST /v1/orders. The heavy lifting —
// payment re-verification, inventory reservation, the atomic write — lives
// in the orders service; this layer only binds input and shapes the
// response.
func (h *Handlers) CreateOrder(c *gin.Context) {
	// 1. --- Bind Input ---
	var input models.CreateOrderInput
	if err := c.ShouldBindJSON(&input); err != nil {
		h.renderError(c, apperrors.Wrap(apperrors.KindValidation, "Invalid request body", err))
		return
	}

	// 2. --- Run the Checkout ---
	order, replayed, err := h.Orders.CreateOrder(c.Request.Context(), userID(c), input)
	if err != nil {
		h.renderError(c, err)
		return
	}

	// 3. --- Respond ---
	// A replay returns the already-created order with 200 instead of 201.
	status := http.StatusCreated
	if replayed {
		status = http.StatusOK
	}
	c.JSON(status, gin.H{
		"success": true,
		"order":   orderJSON(order),
	})
}

// orderJSON shapes an order for responses: cents stay the stored integers,
// and a display decimal is added for the storefront.
func orderJSON(o *models.Order) gin.H {
	return gin.H{
		"id":              o.ID,
		"userId":          o.UserID,
		"status":          o.Status,
		"totalCents":      int64(o.TotalCents),
		"total":           o.TotalCents.Float(),
		"currency":        o.Currency,
		"addressId":       o.AddressID,
		"paymentIntentId": o.PaymentIntentID,
		"createdAt":       o.CreatedAt,
		"updatedAt":       o.UpdatedAt,
	}
}

// GetMyOrders is the handler for GET /v1/orders.
func (h *Handlers) GetMyOrders(c *gin.Context) {
	// 1. --- Query Orders (owner-scoped) ---
	rows, err := h.DB.QueryContext(c.Request.Context(), `
		SELECT id, user_id, status, total_cents, currency, address_id, payment_intent_id, created_at, updated_at
		FROM orders
		WHERE user_id = ?
		ORDER BY created_at DESC`, userID(c))
	if err != nil {
		h.renderError(c, err)
		return
	}
	defer rows.Close()

	// 2. --- Scan Rows ---
	orders := []gin.H{}
	for rows.Next() {
		var o models.Order
		if err := rows.Scan(&o.ID, &o.UserID, &o.Status, &o.TotalCents, &o.Currency,
			&o.AddressID, &o.PaymentIntentID, &o.CreatedAt, &o.UpdatedAt); err != nil {
			h.renderError(c, err)
			return
		}
		orders = append(orders, orderJSON(&o))
	}
	if err := rows.Err(); err != nil {
		h.renderError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"orders": orders})
}

// OrderItemDetail extends the base OrderItem with product info for the
// order-details view.
type OrderItemDetail struct {
	models.OrderItem
	ProductName string `json:"productName"`
}

// GetOrderDetails is the handler for GET /v1/orders/:id.
func (h *Handlers) GetOrderDetails(c *gin.Context) {
	// 1. --- Parse the Order ID ---
	orderID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		h.renderError(c, apperrors.New(apperrors.KindValidation, "Invalid order id"))
		return
	}

	// 2. --- Fetch Order & Verify Ownership ---
	var o models.Order
	err = h.DB.QueryRowContext(c.Request.Context(), `
		SELECT id, user_id, status, total_cents, currency, address_id, payment_intent_id, created_at, updated_at
		FROM orders
		WHERE id = ? AND user_id = ?`, orderID, userID(c)).Scan(
		&o.ID, &o.UserID, &o.Status, &o.TotalCents, &o.Currency,
		&o.AddressID, &o.PaymentIntentID, &o.CreatedAt, &o.UpdatedAt)
	if err == sql.ErrNoRows {
		h.renderError(c, apperrors.New(apperrors.KindNotFound, "Order not found"))
		return
	}
	if err != nil {
		h.renderError(c, err)
		return
	}

	// 3. --- Fetch Line Items with Product Names ---
	rows, err := h.DB.QueryContext(c.Request.Context(), `
		SELECT oi.id, oi.order_id, oi.product_id, oi.quantity, oi.unit_price_cents, oi.created_at, p.name
		FROM order_items oi
		JOIN products p ON oi.product_id = p.id
		WHERE oi.order_id = ?`, o.ID)
	if err != nil {
		h.renderError(c, err)
		return
	}
	defer rows.Close()

	items := []OrderItemDetail{}
	for rows.Next() {
		var item OrderItemDetail
		if err := rows.Scan(&item.ID, &item.OrderID, &item.ProductID, &item.Quantity,
			&item.UnitPriceCents, &item.CreatedAt, &item.ProductName); err != nil {
			h.renderError(c, err)
			return
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		h.renderError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"order": orderJSON(&o),
		"items": items,
	})
}
