package ratelimit

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/aman-churiwal/ai-gateway/internal/storage"
)

type FixedWindowLimiter struct {
	redis  *storage.RedisClient
	limit  int
	window time.Duration
	now    func() time.Time
}

func NewFixedWindow(redis *storage.RedisClient, limit int, window time.Duration) *FixedWindowLimiter {
	return &FixedWindowLimiter{
		redis:  redis,
		limit:  limit,
		window: window, // Window of time duration
		now:    time.Now,
	}
}

func (f *FixedWindowLimiter) windowKey(key string) string {
	currentWindow := f.now().Unix() / int64(f.window.Seconds())
	return fmt.Sprintf("throttle:fixed:%s:%d", key, currentWindow)
}

func (f *FixedWindowLimiter) Allow(ctx context.Context, key string) (bool, error) {
	redisKey := f.windowKey(key)

	count, err := f.redis.Client().Incr(ctx, redisKey).Result()
	if err != nil {
		return false, err
	}

	if count == 1 {
		f.redis.Client().Expire(ctx, redisKey, f.window)
	}

	return count <= int64(f.limit), nil
}

func (f *FixedWindowLimiter) Remaining(ctx context.Context, key string) (int, error) {
	val, ok, err := f.redis.Get(ctx, f.windowKey(key))
	if err != nil {
		return 0, err
	}
	if !ok {
		return f.limit, nil
	}

	count, _ := strconv.Atoi(string(val))
	remaining := f.limit - count

	if remaining < 0 {
		remaining = 0
	}

	return remaining, nil
}

func (f *FixedWindowLimiter) Limit() int {
	return f.limit
}

// Returns the time at which the window rolls over
func (f *FixedWindowLimiter) Reset(ctx context.Context, key string) (time.Time, error) {
	currentWindow := f.now().Unix() / int64(f.window.Seconds())
	nextWindow := (currentWindow + 1) * int64(f.window.Seconds())
	return time.Unix(nextWindow, 0), nil
}
