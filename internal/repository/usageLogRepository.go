package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/aman-churiwal/ai-gateway/internal/models"
	"github.com/aman-churiwal/ai-gateway/internal/storage"
	"gorm.io/gorm"
)

type UsageLogRepository struct {
	db *storage.Postgres
}

func NewUsageLogRepository(db *storage.Postgres) *UsageLogRepository {
	return &UsageLogRepository{db: db}
}

// Narrows log queries. Zero fields are ignored.
type UsageLogFilter struct {
	From        time.Time
	To          time.Time
	PrincipalID string
	Operation   models.Operation
	Outcome     models.Outcome
}

// One row of a GROUP BY count
type GroupCount struct {
	Key   string `gorm:"column:group_key" json:"key"`
	Count int64  `gorm:"column:total" json:"count"`
}

// Columns CountGroupedBy may group on
var groupableColumns = map[string]struct{}{
	"operation":    {},
	"outcome":      {},
	"provider_id":  {},
	"principal_id": {},
}

// Inserts multiple usage entries
func (r *UsageLogRepository) CreateBatch(ctx context.Context, entries []models.UsageLogEntry) error {
	if len(entries) == 0 {
		return nil
	}

	return r.db.DB.WithContext(ctx).CreateInBatches(&entries, 100).Error
}

func (r *UsageLogRepository) scoped(ctx context.Context, f UsageLogFilter) *gorm.DB {
	q := r.db.DB.WithContext(ctx).Model(&models.UsageLogEntry{})
	if !f.From.IsZero() {
		q = q.Where("timestamp >= ?", f.From.UTC())
	}
	if !f.To.IsZero() {
		q = q.Where("timestamp <= ?", f.To.UTC())
	}
	if f.PrincipalID != "" {
		q = q.Where("principal_id = ?", f.PrincipalID)
	}
	if f.Operation != "" {
		q = q.Where("operation = ?", f.Operation)
	}
	if f.Outcome != "" {
		q = q.Where("outcome = ?", f.Outcome)
	}
	return q
}

// Retrieves logs matching the filter, newest first
func (r *UsageLogRepository) Find(ctx context.Context, f UsageLogFilter, limit, offset int) ([]models.UsageLogEntry, error) {
	var logs []models.UsageLogEntry

	err := r.scoped(ctx, f).
		Order("timestamp DESC").
		Limit(limit).
		Offset(offset).
		Find(&logs).Error

	return logs, err
}

// Counts logs matching the filter
func (r *UsageLogRepository) Count(ctx context.Context, f UsageLogFilter) (int64, error) {
	var count int64
	err := r.scoped(ctx, f).Count(&count).Error
	return count, err
}

// Counts entries answered from the response cache
func (r *UsageLogRepository) CountCacheHits(ctx context.Context, f UsageLogFilter) (int64, error) {
	var count int64
	err := r.scoped(ctx, f).Where("from_cache = ?", true).Count(&count).Error
	return count, err
}

// Calculates average end-to-end latency
func (r *UsageLogRepository) GetAverageLatency(ctx context.Context, f UsageLogFilter) (float64, error) {
	var avg float64

	err := r.scoped(ctx, f).
		Select("COALESCE(AVG(latency_ms), 0)").
		Scan(&avg).Error

	return avg, err
}

// Counts entries grouped by one column, largest first
func (r *UsageLogRepository) CountGroupedBy(ctx context.Context, column string, f UsageLogFilter, limit int) ([]GroupCount, error) {
	if _, ok := groupableColumns[column]; !ok {
		return nil, fmt.Errorf("cannot group usage logs by %q", column)
	}

	var results []GroupCount
	q := r.scoped(ctx, f).
		Select(column + " AS group_key, COUNT(*) AS total").
		Where(column + " <> ''").
		Group(column).
		Order("total DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}

	err := q.Scan(&results).Error
	return results, err
}

// Deletes logs older than the specified time
func (r *UsageLogRepository) DeleteOldLogs(ctx context.Context, before time.Time) (int64, error) {
	result := r.db.DB.WithContext(ctx).
		Where("timestamp < ?", before.UTC()).
		Delete(&models.UsageLogEntry{})

	return result.RowsAffected, result.Error
}
