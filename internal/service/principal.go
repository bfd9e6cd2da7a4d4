package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/aman-churiwal/ai-gateway/internal/models"
)

const principalCacheTTL = 5 * time.Minute

type PrincipalStore interface {
	FindByID(ctx context.Context, id string) (*models.Principal, error)
	Upsert(ctx context.Context, principal *models.Principal) error
	List(ctx context.Context, search string, limit, offset int) ([]models.Principal, int64, error)
}

type KVStore interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Del(ctx context.Context, keys ...string) error
}

func principalCacheKey(id string) string {
	return "principal:cache:" + id
}

// PrincipalService resolves a caller id to its tier. The account system owns
// the rows; an id it has never seen is treated as free tier.
type PrincipalService struct {
	repo   PrincipalStore
	cache  KVStore
	logger *slog.Logger
}

func NewPrincipalService(repo PrincipalStore, cache KVStore, logger *slog.Logger) *PrincipalService {
	if logger == nil {
		logger = slog.Default()
	}
	return &PrincipalService{repo: repo, cache: cache, logger: logger}
}

func (s *PrincipalService) Resolve(ctx context.Context, id string) (models.Principal, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return models.Principal{}, fmt.Errorf("%w: principal id is required", ErrInvalidInput)
	}

	// Check cache first
	cacheKey := principalCacheKey(id)
	if s.cache != nil {
		cached, ok, err := s.cache.Get(ctx, cacheKey)
		if err != nil {
			s.logger.Warn("principal_cache_read_failed", "principal", id, "err", err)
		} else if ok {
			var p models.Principal
			if err := json.Unmarshal(cached, &p); err == nil {
				return p, nil
			}
		}
	}

	// Cache miss - query database
	found, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return models.Principal{}, fmt.Errorf("lookup principal %s: %w", id, err)
	}

	p := models.Principal{ID: id, Tier: models.TierFree}
	if found != nil {
		p = *found
		if p.Tier != models.TierPremium {
			p.Tier = models.TierFree
		}
	}

	if s.cache != nil {
		if data, err := json.Marshal(p); err == nil {
			if err := s.cache.Set(ctx, cacheKey, data, principalCacheTTL); err != nil {
				s.logger.Warn("principal_cache_write_failed", "principal", id, "err", err)
			}
		}
	}

	return p, nil
}

// List pages through known principals for the admin panel.
func (s *PrincipalService) List(ctx context.Context, search string, limit, offset int) ([]models.Principal, int64, error) {
	principals, total, err := s.repo.List(ctx, strings.TrimSpace(search), limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list principals: %w", err)
	}
	return principals, total, nil
}

// SetTier records tier for id, creating the principal if needed, and drops
// the cached copy so the next request sees the new tier.
func (s *PrincipalService) SetTier(ctx context.Context, id string, tier models.Tier) (models.Principal, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return models.Principal{}, fmt.Errorf("%w: principal id is required", ErrInvalidInput)
	}
	switch tier {
	case models.TierFree, models.TierPremium:
	default:
		return models.Principal{}, fmt.Errorf("%w: unknown tier %q", ErrInvalidInput, tier)
	}

	p := models.Principal{ID: id, Tier: tier}
	if err := s.repo.Upsert(ctx, &p); err != nil {
		return models.Principal{}, fmt.Errorf("update principal %s: %w", id, err)
	}

	if s.cache != nil {
		if err := s.cache.Del(ctx, principalCacheKey(id)); err != nil {
			return models.Principal{}, fmt.Errorf("evict cached principal %s: %w", id, err)
		}
	}

	s.logger.Info("principal_tier_updated", "principal", id, "tier", string(tier))
	return p, nil
}
