package ratelimit

import (
	"math"
	"time"

	"github.com/aman-churiwal/ai-gateway/internal/storage"
)

// NewLimiter builds the per-client throttle. The redis backend converts the
// steady rate into a per-minute fixed window so replicas share one count.
func NewLimiter(backend string, redis *storage.RedisClient, rps float64, burst int) Limiter {
	switch backend {
	case "redis":
		limit := int(math.Ceil(rps * 60))
		if limit < burst {
			limit = burst
		}
		return NewFixedWindow(redis, limit, time.Minute)
	default:
		return NewLocal(rps, burst)
	}
}
