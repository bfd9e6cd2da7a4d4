package service

import (
	"context"
	"time"

	"github.com/aman-churiwal/ai-gateway/internal/models"
	"github.com/aman-churiwal/ai-gateway/internal/repository"
)

type AnalyticsService struct {
	repository *repository.UsageLogRepository
}

func NewAnalyticsService(repo *repository.UsageLogRepository) *AnalyticsService {
	return &AnalyticsService{repository: repo}
}

// Holds usage summary data
type UsageSummary struct {
	TotalRequests  int64                   `json:"total_requests"`
	CacheHits      int64                   `json:"cache_hits"`
	CacheHitRatio  float64                 `json:"cache_hit_ratio"`
	AvgLatencyMs   float64                 `json:"avg_latency_ms"`
	ByOperation    []repository.GroupCount `json:"by_operation"`
	ByOutcome      []repository.GroupCount `json:"by_outcome"`
	ByProvider     []repository.GroupCount `json:"by_provider"`
	TopPrincipals  []repository.GroupCount `json:"top_principals"`
	QuotaDenials   int64                   `json:"quota_denials"`
	FailedRequests int64                   `json:"failed_requests"`
}

// Retrieves the usage summary for a time range
func (s *AnalyticsService) GetSummary(ctx context.Context, from, to time.Time) (*UsageSummary, error) {
	filter := repository.UsageLogFilter{From: from, To: to}
	summary := &UsageSummary{}

	total, err := s.repository.Count(ctx, filter)
	if err != nil {
		return nil, err
	}
	summary.TotalRequests = total

	if total == 0 {
		return summary, nil
	}

	hits, err := s.repository.CountCacheHits(ctx, filter)
	if err != nil {
		return nil, err
	}
	summary.CacheHits = hits
	summary.CacheHitRatio = float64(hits) / float64(total)

	avg, err := s.repository.GetAverageLatency(ctx, filter)
	if err != nil {
		return nil, err
	}
	summary.AvgLatencyMs = avg

	groups := []struct {
		column string
		limit  int
		into   *[]repository.GroupCount
	}{
		{"operation", 0, &summary.ByOperation},
		{"outcome", 0, &summary.ByOutcome},
		{"provider_id", 0, &summary.ByProvider},
		{"principal_id", 10, &summary.TopPrincipals},
	}
	for _, g := range groups {
		rows, err := s.repository.CountGroupedBy(ctx, g.column, filter, g.limit)
		if err != nil {
			return nil, err
		}
		*g.into = rows
	}

	for _, row := range summary.ByOutcome {
		switch models.Outcome(row.Key) {
		case models.OutcomeQuotaExceeded:
			summary.QuotaDenials = row.Count
		case models.OutcomeFailed:
			summary.FailedRequests = row.Count
		}
	}

	return summary, nil
}

// Retrieves usage logs with pagination and filtering, plus the unpaginated total
func (s *AnalyticsService) GetLogs(ctx context.Context, filter repository.UsageLogFilter, limit, offset int) ([]models.UsageLogEntry, int64, error) {
	logs, err := s.repository.Find(ctx, filter, limit, offset)
	if err != nil {
		return nil, 0, err
	}

	total, err := s.repository.Count(ctx, filter)
	if err != nil {
		return nil, 0, err
	}

	return logs, total, nil
}

// Deletes logs older than specified retention period
func (s *AnalyticsService) CleanupOldLogs(ctx context.Context, retentionDays int) (int64, error) {
	cutOffDate := time.Now().AddDate(0, 0, -retentionDays)
	return s.repository.DeleteOldLogs(ctx, cutOffDate)
}
