// Package respcache stores answers to deterministic queries so repeated
// lookups skip the provider call.
package respcache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"time"

	"github.com/goccy/go-json"

	"github.com/aman-churiwal/ai-gateway/internal/metrics"
	"github.com/aman-churiwal/ai-gateway/internal/models"
)

// Store is the subset of the document store the cache needs.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	SetNX(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error)
}

// ComputeFunc produces the payload on a miss.
type ComputeFunc func(ctx context.Context) (json.RawMessage, error)

type Cache struct {
	store  Store
	prefix string
	ttl    time.Duration
	now    func() time.Time
	logger *slog.Logger
}

func New(store Store, prefix string, ttl time.Duration, logger *slog.Logger) *Cache {
	if logger == nil {
		logger = slog.Default()
	}
	return &Cache{store: store, prefix: prefix, ttl: ttl, now: time.Now, logger: logger}
}

func (c *Cache) key(namespace, normalizedKey string) string {
	sum := sha256.Sum256([]byte(normalizedKey))
	return fmt.Sprintf("%s:%s:%s", c.prefix, namespace, hex.EncodeToString(sum[:]))
}

// GetOrCompute returns the stored payload for normalizedKey, or runs compute
// and stores its result. The bool reports a cache hit. Callers must pass an
// already normalized key; see Normalize.
//
// Concurrent misses may both compute; the first write wins and later writes
// are dropped. Backend errors degrade to a miss rather than failing the call.
func (c *Cache) GetOrCompute(ctx context.Context, namespace, normalizedKey string, compute ComputeFunc) (json.RawMessage, bool, error) {
	key := c.key(namespace, normalizedKey)

	raw, found, err := c.store.Get(ctx, key)
	switch {
	case err != nil:
		metrics.CacheLookups.WithLabelValues("error").Inc()
		c.logger.Warn("cache_read_failed", "namespace", namespace, "err", err)
	case found:
		var entry models.CacheEntry
		if err := json.Unmarshal(raw, &entry); err == nil && entry.NormalizedKey == normalizedKey {
			metrics.CacheLookups.WithLabelValues("hit").Inc()
			return entry.Payload, true, nil
		}
		c.logger.Warn("cache_entry_unreadable", "namespace", namespace)
	default:
		metrics.CacheLookups.WithLabelValues("miss").Inc()
	}

	payload, err := compute(ctx)
	if err != nil {
		return nil, false, err
	}

	entry, err := json.Marshal(models.CacheEntry{
		NormalizedKey: normalizedKey,
		Payload:       payload,
		CreatedAt:     c.now().UTC(),
	})
	if err != nil {
		return payload, false, nil
	}

	if _, err := c.store.SetNX(ctx, key, entry, c.ttl); err != nil {
		c.logger.Warn("cache_write_failed", "namespace", namespace, "err", err)
	}
	return payload, false, nil
}
