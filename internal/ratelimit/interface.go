package ratelimit

import (
	"context"
	"time"
)

type Limiter interface {
	Allow(ctx context.Context, key string) (bool, error)

	Remaining(ctx context.Context, key string) (int, error)

	Limit() int

	// Returns the earliest time another request from key would be admitted
	Reset(ctx context.Context, key string) (time.Time, error)
}
