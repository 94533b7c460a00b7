package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/cartloom/cartloom-golang/internal/apperrors"
	"github.com/cartloom/cartloom-golang/internal/models"
	"github.com/cartloom/cartloom-golang/internal/payments"
)

// CreatePaymentIntent is the handler for POST /v1/payments/create-intent.
// The amount the gateway captures is priced from the catalog; whatever
// numbers the client holds never reach the intent.
func (h *Handlers) CreatePaymentIntent(c *gin.Context) {
	// 1. --- Bind Input ---
	var input models.CreateIntentInput
	if err := c.ShouldBindJSON(&input); err != nil {
		h.renderError(c, apperrors.Wrap(apperrors.KindValidation, "Invalid request body", err))
		return
	}
	if len(input.Items) == 0 {
		h.renderError(c, apperrors.New(apperrors.KindValidation, "No items in order"))
		return
	}

	// 2. --- Price the Cart from the Catalog ---
	total, priced, err := h.Catalog.PriceItems(c.Request.Context(), input.Items)
	if err != nil {
		h.renderError(c, err)
		return
	}

	// 3. --- Create the Intent ---
	metadata := map[string]string{
		"userId": strconv.FormatInt(userID(c), 10),
	}
	intent, err := h.Gateway.CreateIntent(c.Request.Context(), total, h.Orders.Currency, metadata)
	if err != nil {
		h.renderError(c, err)
		return
	}

	// 4. --- Respond ---
	c.JSON(http.StatusOK, gin.H{
		"clientSecret":    intent.ClientSecret,
		"paymentIntentId": intent.ID,
		"amount":          int64(total),
		"currency":        h.Orders.Currency,
		"items":           priced,
	})
}

// HandleWebhook is the handler for POST /v1/payments/webhook. Signature
// verification runs against the raw request bytes; parsing first would
// invalidate the signature. A bad signature is never acknowledged with 200,
// so the gateway keeps redelivering until a healthy instance accepts it.
func (h *Handlers) HandleWebhook(c *gin.Context) {
	// 1. --- Read the Raw Body ---
	payload, err := c.GetRawData()
	if err != nil {
		h.renderError(c, apperrors.Wrap(apperrors.KindValidation, "Could not read request body", err))
		return
	}

	// 2. --- Verify and Parse ---
	event, err := payments.ConstructEvent(payload, c.GetHeader("Stripe-Signature"), h.WebhookSecret)
	if err != nil {
		h.renderError(c, err)
		return
	}

	// 3. --- Reconcile ---
	if err := h.Orders.HandleWebhookEvent(c.Request.Context(), event); err != nil {
		// Non-200 so the gateway retries the delivery.
		h.renderError(c, apperrors.Wrap(apperrors.KindInternal, "Webhook processing failed", err))
		return
	}

	c.JSON(http.StatusOK, gin.H{"received": true})
}
