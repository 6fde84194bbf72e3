package repository

import (
	"context"
	"errors"

	"pivot/internal/models"

	"gorm.io/gorm"
)

// TokenRepository stores API tokens.
type TokenRepository interface {
	// GetOrCreate returns the user's token, inserting one with newKey if absent.
	GetOrCreate(ctx context.Context, userID uint, newKey func() string) (*models.AuthToken, error)
	GetByKey(ctx context.Context, key string) (*models.AuthToken, error)
}

type tokenRepository struct {
	db *gorm.DB
}

// NewTokenRepository creates a new token repository
func NewTokenRepository(db *gorm.DB) TokenRepository {
	return &tokenRepository{db: db}
}

func (r *tokenRepository) GetOrCreate(ctx context.Context, userID uint, newKey func() string) (*models.AuthToken, error) {
	var token models.AuthToken
	err := r.db.WithContext(ctx).Where("user_id = ?", userID).Take(&token).Error
	if err == nil {
		return &token, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, models.NewInternalError(err)
	}

	token = models.AuthToken{Key: newKey(), UserID: userID}
	if err := r.db.WithContext(ctx).Omit("User").Create(&token).Error; err != nil {
		if isUniqueViolation(err) {
			// Lost a race with a concurrent login.
			var existing models.AuthToken
			if err := r.db.WithContext(ctx).Where("user_id = ?", userID).Take(&existing).Error; err != nil {
				return nil, models.NewInternalError(err)
			}
			return &existing, nil
		}
		return nil, models.NewInternalError(err)
	}
	return &token, nil
}

func (r *tokenRepository) GetByKey(ctx context.Context, key string) (*models.AuthToken, error) {
	var token models.AuthToken
	if err := r.db.WithContext(ctx).Preload("User").Where(&models.AuthToken{Key: key}).Take(&token).Error; err != nil {
		return nil, notFoundOr(err, "Token", key)
	}
	return &token, nil
}
