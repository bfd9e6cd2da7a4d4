package repository

import (
	"context"
	"errors"

	"github.com/aman-churiwal/ai-gateway/internal/models"
	"github.com/aman-churiwal/ai-gateway/internal/storage"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type SecretRepository struct {
	db *storage.Postgres
}

func NewSecretRepository(db *storage.Postgres) *SecretRepository {
	return &SecretRepository{db: db}
}

// Retrieves the sealed secret record; returns nil, nil when absent
func (r *SecretRepository) FindByID(ctx context.Context, id string) (*models.SecretRecord, error) {
	var record models.SecretRecord
	err := r.db.DB.WithContext(ctx).
		Where("id = ?", id).
		First(&record).Error

	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	return &record, nil
}

// Get returns the sealed fields of a record, or nil when the record is absent.
func (r *SecretRepository) Get(ctx context.Context, recordID string) (map[string]string, error) {
	record, err := r.FindByID(ctx, recordID)
	if err != nil || record == nil {
		return nil, err
	}

	fields := make(map[string]string, len(record.Fields))
	for k := range record.Fields {
		fields[k] = record.Field(k)
	}
	return fields, nil
}

// Sets one sealed field, creating the record if needed
func (r *SecretRepository) PutField(ctx context.Context, recordID, providerID, sealed string) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		var record models.SecretRecord
		err := tx.WithContext(ctx).Where("id = ?", recordID).First(&record).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			record = models.SecretRecord{ID: recordID, Fields: datatypes.JSONMap{}}
		case err != nil:
			return err
		}
		if record.Fields == nil {
			record.Fields = datatypes.JSONMap{}
		}
		record.Fields[providerID] = sealed

		return tx.WithContext(ctx).
			Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "id"}},
				DoUpdates: clause.AssignmentColumns([]string{"fields", "updated_at"}),
			}).
			Create(&record).Error
	})
}
