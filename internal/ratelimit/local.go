package ratelimit

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	visitorIdleTTL = 10 * time.Minute
	sweepEvery     = time.Minute
)

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// LocalLimiter keeps one token bucket per key in process memory. Buckets idle
// for longer than visitorIdleTTL are dropped.
type LocalLimiter struct {
	mu        sync.Mutex
	visitors  map[string]*visitor
	rps       rate.Limit
	burst     int
	lastSweep time.Time
	now       func() time.Time
}

func NewLocal(rps float64, burst int) *LocalLimiter {
	if burst < 1 {
		burst = 1
	}
	return &LocalLimiter{
		visitors: make(map[string]*visitor),
		rps:      rate.Limit(rps),
		burst:    burst,
		now:      time.Now,
	}
}

func (l *LocalLimiter) get(key string, now time.Time) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	if now.Sub(l.lastSweep) >= sweepEvery {
		for k, v := range l.visitors {
			if now.Sub(v.lastSeen) > visitorIdleTTL {
				delete(l.visitors, k)
			}
		}
		l.lastSweep = now
	}

	v, ok := l.visitors[key]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(l.rps, l.burst)}
		l.visitors[key] = v
	}
	v.lastSeen = now
	return v.limiter
}

func (l *LocalLimiter) Allow(ctx context.Context, key string) (bool, error) {
	now := l.now()
	return l.get(key, now).AllowN(now, 1), nil
}

func (l *LocalLimiter) Remaining(ctx context.Context, key string) (int, error) {
	now := l.now()
	tokens := l.get(key, now).TokensAt(now)
	if tokens < 0 {
		return 0, nil
	}
	return int(tokens), nil
}

func (l *LocalLimiter) Limit() int {
	return l.burst
}

func (l *LocalLimiter) Reset(ctx context.Context, key string) (time.Time, error) {
	now := l.now()
	tokens := l.get(key, now).TokensAt(now)
	if tokens >= 1 || l.rps <= 0 {
		return now, nil
	}
	wait := time.Duration((1 - tokens) / float64(l.rps) * float64(time.Second))
	return now.Add(wait), nil
}
