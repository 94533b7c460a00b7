package handlers

import (
	"database/sql"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/cartloom/cartloom-golang/internal/apperrors"
	"github.com/cartloom/cartloom-golang/internal/catalog"
	"github.com/cartloom/cartloom-golang/internal/orders"
	"github.com/cartloom/cartloom-golang/internal/payments"
)

// Handlers holds all dependencies for the HTTP layer. Everything is
// injected at startup; there are no ambient globals.
type Handlers struct {
	DB      *sql.DB
	Orders  *orders.Service
	Catalog *catalog.Service
	Gateway payments.Gateway

	// WebhookSecret verifies gateway signatures on /payments/webhook.
	WebhookSecret string

	Logger *slog.Logger
}

// renderError maps a service error onto the wire: stable machine-checkable
// code plus a client-safe message. Internal detail stays in the logs.
func (h *Handlers) renderError(c *gin.Context, err error) {
	kind := apperrors.KindOf(err)
	status := apperrors.HTTPStatus(kind)
	if status >= http.StatusInternalServerError {
		h.Logger.Error("request failed", "path", c.FullPath(), "error", err)
	}
	c.JSON(status, gin.H{
		"error": apperrors.Message(err),
		"code":  string(kind),
	})
}

// userID reads the authenticated user injected by middleware.Auth.
func userID(c *gin.Context) int64 {
	raw, _ := c.Get("userID")
	id, _ := raw.(int64)
	return id
}
