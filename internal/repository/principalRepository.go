package repository

import (
	"context"
	"errors"

	"github.com/aman-churiwal/ai-gateway/internal/models"
	"github.com/aman-churiwal/ai-gateway/internal/storage"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type PrincipalRepository struct {
	db *storage.Postgres
}

func NewPrincipalRepository(db *storage.Postgres) *PrincipalRepository {
	return &PrincipalRepository{db: db}
}

// Retrieves a principal by id; returns nil, nil when absent
func (r *PrincipalRepository) FindByID(ctx context.Context, id string) (*models.Principal, error) {
	var principal models.Principal
	err := r.db.DB.WithContext(ctx).
		Where("id = ?", id).
		First(&principal).Error

	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	return &principal, nil
}

// Creates the principal or overwrites the tier of an existing one
func (r *PrincipalRepository) Upsert(ctx context.Context, principal *models.Principal) error {
	return r.db.DB.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			DoUpdates: clause.AssignmentColumns([]string{"tier", "updated_at"}),
		}).
		Create(principal).Error
}

// Lists principals whose id contains search, newest first, with the total
// match count for pagination
func (r *PrincipalRepository) List(ctx context.Context, search string, limit, offset int) ([]models.Principal, int64, error) {
	query := r.db.DB.WithContext(ctx).Model(&models.Principal{})
	if search != "" {
		query = query.Where("id LIKE ?", "%"+search+"%")
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var principals []models.Principal
	err := query.
		Order("created_at DESC").
		Limit(limit).
		Offset(offset).
		Find(&principals).Error

	return principals, total, err
}
