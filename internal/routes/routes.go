package routes

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/cartloom/cartloom-golang/internal/handlers"
	"github.com/cartloom/cartloom-golang/internal/middleware"
)

// CORSMiddleware tells the browser the storefront origin may call us with
// the Authorization header.
func CORSMiddleware(origin string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, Authorization, accept, origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, DELETE, PATCH")

		// Preflight requests get an empty 204.
		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

// SetupRouter wires every route. checkoutLimit guards the payment-adjacent
// endpoints; pass nil to run without a rate limiter (no Redis configured).
func SetupRouter(h *handlers.Handlers, corsOrigin string, checkoutLimit gin.HandlerFunc) *gin.Engine {
	router := gin.Default()

	router.Use(CORSMiddleware(corsOrigin))

	v1 := router.Group("/v1")
	{
		// --- Public Routes ---
		v1.GET("/ping", func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{"message": "pong!"})
		})

		v1.GET("/products/:id", h.GetProduct)

		// The webhook authenticates by signature, not by session: the
		// gateway is the caller, so no auth middleware here.
		v1.POST("/payments/webhook", h.HandleWebhook)

		// --- Protected Routes (Login Required) ---
		auth := v1.Group("/")
		auth.Use(middleware.Auth())
		{
			auth.POST("/products", h.CreateProduct)

			auth.GET("/orders", h.GetMyOrders)
			auth.GET("/orders/:id", h.GetOrderDetails)

			// Checkout endpoints additionally sit behind the rate limiter.
			checkout := auth.Group("/")
			if checkoutLimit != nil {
				checkout.Use(checkoutLimit)
			}
			{
				checkout.POST("/payments/create-intent", h.CreatePaymentIntent)
				checkout.POST("/orders", h.CreateOrder)
			}
		}
	}

	return router
}
