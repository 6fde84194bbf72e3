package repository

import (
	"context"
	"errors"
	"strings"

	"pivot/internal/models"

	"gorm.io/gorm"
)

// FollowRepository defines persistence operations for follow edges.
type FollowRepository interface {
	// Create inserts the edge and reports false if it already existed.
	Create(ctx context.Context, userID, authorID uint) (bool, error)
	Exists(ctx context.Context, userID, authorID uint) (bool, error)
	// Delete removes the edge and reports false if there was none.
	Delete(ctx context.Context, userID, authorID uint) (bool, error)
	AuthorIDs(ctx context.Context, userID uint) ([]uint, error)
	ListByUser(ctx context.Context, userID uint, search string) ([]models.Follow, error)
}

type followRepository struct {
	db *gorm.DB
}

// NewFollowRepository creates a new follow repository
func NewFollowRepository(db *gorm.DB) FollowRepository {
	return &followRepository{db: db}
}

func (r *followRepository) Create(ctx context.Context, userID, authorID uint) (bool, error) {
	follow := models.Follow{UserID: userID, AuthorID: authorID}
	if err := r.db.WithContext(ctx).Omit("User", "Author").Create(&follow).Error; err != nil {
		if isUniqueViolation(err) {
			return false, nil
		}
		return false, models.NewInternalError(err)
	}
	return true, nil
}

func (r *followRepository) Exists(ctx context.Context, userID, authorID uint) (bool, error) {
	var follow models.Follow
	err := r.db.WithContext(ctx).
		Select("id").
		Where("user_id = ? AND author_id = ?", userID, authorID).
		Take(&follow).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, nil
	}
	if err != nil {
		return false, models.NewInternalError(err)
	}
	return true, nil
}

func (r *followRepository) Delete(ctx context.Context, userID, authorID uint) (bool, error) {
	res := r.db.WithContext(ctx).
		Where("user_id = ? AND author_id = ?", userID, authorID).
		Delete(&models.Follow{})
	if res.Error != nil {
		return false, models.NewInternalError(res.Error)
	}
	return res.RowsAffected > 0, nil
}

func (r *followRepository) AuthorIDs(ctx context.Context, userID uint) ([]uint, error) {
	var ids []uint
	if err := r.db.WithContext(ctx).Model(&models.Follow{}).Where("user_id = ?", userID).Pluck("author_id", &ids).Error; err != nil {
		return nil, models.NewInternalError(err)
	}
	return ids, nil
}

// likeEscaper makes a search term match literally inside LIKE ... ESCAPE '\'.
var likeEscaper = strings.NewReplacer(`\`, `\\`, "%", `\%`, "_", `\_`)

// ListByUser returns userID's edges, optionally filtered by a case-insensitive
// substring of the followed author's username.
func (r *followRepository) ListByUser(ctx context.Context, userID uint, search string) ([]models.Follow, error) {
	q := r.db.WithContext(ctx).
		Preload("User").
		Preload("Author").
		Where("follows.user_id = ?", userID)
	if s := strings.TrimSpace(search); s != "" {
		q = q.Joins("JOIN users authors ON authors.id = follows.author_id").
			Where(`LOWER(authors.username) LIKE ? ESCAPE '\'`, "%"+likeEscaper.Replace(strings.ToLower(s))+"%")
	}

	var follows []models.Follow
	if err := q.Order("follows.id ASC").Find(&follows).Error; err != nil {
		return nil, models.NewInternalError(err)
	}
	return follows, nil
}
