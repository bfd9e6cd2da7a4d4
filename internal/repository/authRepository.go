package repository

import (
	"context"
	"errors"
	"time"

	"github.com/aman-churiwal/ai-gateway/internal/models"
	"github.com/aman-churiwal/ai-gateway/internal/storage"
	"gorm.io/gorm"
)

type AuthRepository struct {
	db *storage.Postgres
}

func NewAuthRepository(db *storage.Postgres) *AuthRepository {
	return &AuthRepository{db: db}
}

// Inserts a new admin user
func (r *AuthRepository) Create(ctx context.Context, user *models.User) error {
	return r.db.DB.WithContext(ctx).Create(user).Error
}

// Retrieves user by email
func (r *AuthRepository) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	var user models.User
	err := r.db.DB.WithContext(ctx).
		Where("email = ?", email).
		First(&user).Error

	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	return &user, nil
}

func (r *AuthRepository) UpdateLastLogin(ctx context.Context, user *models.User, at time.Time) error {
	return r.db.DB.WithContext(ctx).
		Model(user).
		Update("last_login_at", at).Error
}

func (r *AuthRepository) Count(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.DB.WithContext(ctx).Model(&models.User{}).Count(&count).Error
	return count, err
}
