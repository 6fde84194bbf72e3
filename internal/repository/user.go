package repository

import (
	"context"

	"pivot/internal/models"

	"gorm.io/gorm"
)

const duplicateUsername = "A user with that username already exists"

// UserRepository loads and stores accounts. Usernames are matched exactly.
type UserRepository interface {
	GetByID(ctx context.Context, id uint) (*models.User, error)
	GetByUsername(ctx context.Context, username string) (*models.User, error)
	Create(ctx context.Context, user *models.User) error
	Update(ctx context.Context, user *models.User) error
}

type userRepository struct {
	db *gorm.DB
}

func NewUserRepository(db *gorm.DB) UserRepository {
	return &userRepository{db: db}
}

func (r *userRepository) GetByID(ctx context.Context, id uint) (*models.User, error) {
	user := new(models.User)
	if err := r.db.WithContext(ctx).First(user, id).Error; err != nil {
		return nil, notFoundOr(err, "User", id)
	}
	return user, nil
}

func (r *userRepository) GetByUsername(ctx context.Context, username string) (*models.User, error) {
	user := new(models.User)
	err := r.db.WithContext(ctx).Where("username = ?", username).Take(user).Error
	if err != nil {
		return nil, notFoundOr(err, "User", username)
	}
	return user, nil
}

func (r *userRepository) Create(ctx context.Context, user *models.User) error {
	err := r.db.WithContext(ctx).Create(user).Error
	switch {
	case err == nil:
		return nil
	case isUniqueViolation(err):
		return models.NewValidationError(duplicateUsername)
	default:
		return models.NewInternalError(err)
	}
}

// Update writes the profile, password and staff flag. The username and
// join date never change.
func (r *userRepository) Update(ctx context.Context, user *models.User) error {
	err := r.db.WithContext(ctx).Model(user).
		Select("Email", "Password", "FirstName", "LastName", "IsStaff").
		Updates(user).Error
	switch {
	case err == nil:
		return nil
	case isUniqueViolation(err):
		return models.NewValidationError("A user with that email already exists")
	default:
		return models.NewInternalError(err)
	}
}
