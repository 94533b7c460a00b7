package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/cartloom/cartloom-golang/internal/apperrors"
	"github.com/cartloom/cartloom-golang/internal/models"
)

// CreateProduct is the handler for POST /v1/products (seller-authenticated).
func (h *Handlers) CreateProduct(c *gin.Context) {
	var input models.CreateProductInput
	if err := c.ShouldBindJSON(&input); err != nil {
		h.renderError(c, apperrors.Wrap(apperrors.KindValidation, "Invalid request body", err))
		return
	}

	product, err := h.Catalog.CreateProduct(c.Request.Context(), userID(c), input)
	if err != nil {
		h.renderError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"product": product})
}

// GetProduct is the handler for GET /v1/products/:id (public).
func (h *Handlers) GetProduct(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		h.renderError(c, apperrors.New(apperrors.KindValidation, "Invalid product id"))
		return
	}

	product, err := h.Catalog.GetProduct(c.Request.Context(), id)
	if err != nil {
		h.renderError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"product": product})
}
