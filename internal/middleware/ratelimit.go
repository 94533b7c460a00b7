package middleware

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"github.com/cartloom/cartloom-golang/internal/apperrors"
)

// RateLimit is a fixed-window counter per user (or client IP before auth)
// per route. Counters live in Redis so the limit holds across instances;
// process memory is never the source of truth. A Redis outage fails open
// with a logged warning rather than blocking checkouts.
func RateLimit(client *redis.Client, limit int, window time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		subject := c.ClientIP()
		if userID, ok := c.Get("userID"); ok {
			subject = fmt.Sprintf("u%d", userID)
		}
		key := fmt.Sprintf("ratelimit:%s:%s", c.FullPath(), subject)

		count, err := client.Incr(c.Request.Context(), key).Result()
		if err != nil {
			slog.Warn("rate limiter unavailable, allowing request", "error", err)
			c.Next()
			return
		}
		if count == 1 {
			// First hit in the window owns the expiry.
			if err := client.Expire(c.Request.Context(), key, window).Err(); err != nil {
				slog.Warn("rate limiter expire failed", "key", key, "error", err)
			}
		}

		if count > int64(limit) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error": "Too many requests, slow down",
				"code":  string(apperrors.KindRateLimited),
			})
			return
		}
		c.Next()
	}
}
