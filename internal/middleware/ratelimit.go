package middleware

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/aman-churiwal/ai-gateway/internal/httperror"
	"github.com/aman-churiwal/ai-gateway/internal/ratelimit"
)

// Throttle limits requests per client IP. It protects the service itself and
// is unrelated to the per-principal daily quota.
func Throttle(limiter ratelimit.Limiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := c.ClientIP()
		ctx := c.Request.Context()

		allowed, err := limiter.Allow(ctx, key)
		if err != nil {
			// fail open
			slog.Warn("throttle_check_failed", "client_ip", key, "err", err)
			c.Next()
			return
		}

		remaining, _ := limiter.Remaining(ctx, key)
		c.Header("X-RateLimit-Limit", strconv.Itoa(limiter.Limit()))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(remaining))

		if !allowed {
			resetTime, _ := limiter.Reset(ctx, key)
			retryAfter := int(time.Until(resetTime).Seconds() + 0.999)
			if retryAfter < 1 {
				retryAfter = 1
			}

			c.Header("Retry-After", strconv.Itoa(retryAfter))
			httperror.Write(c, http.StatusTooManyRequests, httperror.CodeThrottled, "too many requests")
			return
		}

		c.Next()
	}
}
