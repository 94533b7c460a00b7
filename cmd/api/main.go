package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/cartloom/cartloom-golang/internal/catalog"
	"github.com/cartloom/cartloom-golang/internal/database"
	"github.com/cartloom/cartloom-golang/internal/handlers"
	"github.com/cartloom/cartloom-golang/internal/middleware"
	"github.com/cartloom/cartloom-golang/internal/orders"
	"github.com/cartloom/cartloom-golang/internal/payments"
	"github.com/cartloom/cartloom-golang/internal/routes"
)

func main() {
	// 0. --- Load Environment Variables (.env) ---
	if err := godotenv.Load(); err != nil {
		log.Println("WARNING: Could not find or load .env file. Relying on system environment variables.")
	}

	// 1. --- Database Connection ---
	db, err := database.Open()
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	// 2. --- Payment Gateway Client ---
	secretKey := os.Getenv("PAYMENT_SECRET_KEY")
	if secretKey == "" {
		log.Fatal("PAYMENT_SECRET_KEY environment variable is not set")
	}
	webhookSecret := os.Getenv("PAYMENT_WEBHOOK_SECRET")
	if webhookSecret == "" {
		log.Fatal("PAYMENT_WEBHOOK_SECRET environment variable is not set")
	}
	gatewayURL := envOr("PAYMENT_GATEWAY_URL", "https://api.stripe.com")
	gateway := payments.NewClient(gatewayURL, secretKey)

	// 3. --- Services ---
	currency := envOr("DEFAULT_CURRENCY", "usd")
	orderService := orders.NewService(db, gateway, currency)
	catalogService := catalog.NewService(db)

	app := &handlers.Handlers{
		DB:            db,
		Orders:        orderService,
		Catalog:       catalogService,
		Gateway:       gateway,
		WebhookSecret: webhookSecret,
		Logger:        slog.Default(),
	}

	// 4. --- Rate Limiter (optional: requires Redis) ---
	var checkoutLimit gin.HandlerFunc
	if redisURL := os.Getenv("REDIS_URL"); redisURL != "" {
		opt, err := redis.ParseURL(redisURL)
		if err != nil {
			log.Fatalf("Invalid REDIS_URL: %v", err)
		}
		rdb := redis.NewClient(opt)

		pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := rdb.Ping(pingCtx).Err(); err != nil {
			cancel()
			log.Fatalf("Failed to connect to Redis: %v", err)
		}
		cancel()
		defer rdb.Close()

		limit := envIntOr("RATE_LIMIT", 30)
		window := envDurationOr("RATE_WINDOW", time.Minute)
		checkoutLimit = middleware.RateLimit(rdb, limit, window)
	} else {
		log.Println("WARNING: REDIS_URL not set, checkout rate limiting is disabled.")
	}

	// 5. --- Background Worker ---
	// Sweeps orders stuck in processing and settles them against the
	// gateway's record. Runs until the process exits.
	staleAfter := envDurationOr("ORDER_STALE_AFTER", time.Hour)
	reapEvery := envDurationOr("ORDER_REAP_INTERVAL", 10*time.Minute)
	go func() {
		ticker := time.NewTicker(reapEvery)
		defer ticker.Stop()

		log.Println("Background worker started: monitoring stale orders...")

		for range ticker.C {
			ctx, cancel := context.WithTimeout(context.Background(), reapEvery)
			if n, err := orderService.ReapStaleOrders(ctx, staleAfter); err != nil {
				slog.Error("stale order sweep failed", "error", err)
			} else if n > 0 {
				slog.Info("stale order sweep settled orders", "count", n)
			}
			cancel()
		}
	}()

	// 6. --- Router & Server ---
	corsOrigin := envOr("CORS_ORIGIN", "http://localhost:5173")
	router := routes.SetupRouter(app, corsOrigin, checkoutLimit)

	port := envOr("PORT", "8080")
	log.Printf("Starting Cartloom API server on port %s...", port)
	if err := router.Run(":" + port); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envIntOr(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Fatalf("Invalid %s: %v", key, err)
	}
	return n
}

func envDurationOr(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		log.Fatalf("Invalid %s: %v", key, err)
	}
	return d
}
