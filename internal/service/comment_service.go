package service

import (
	"context"
	"strings"

	"pivot/internal/models"
	"pivot/internal/repository"
)

// CommentService manages comments under posts.
type CommentService struct {
	commentRepo repository.CommentRepository
	postRepo    repository.PostRepository
}

func NewCommentService(commentRepo repository.CommentRepository, postRepo repository.PostRepository) *CommentService {
	return &CommentService{
		commentRepo: commentRepo,
		postRepo:    postRepo,
	}
}

// AddComment attaches a comment by actor to the post. The creation time is
// assigned by the store.
func (s *CommentService) AddComment(ctx context.Context, actor *models.User, postID uint, text string) (*models.Comment, error) {
	if actor == nil {
		return nil, models.NewUnauthorizedError("Authentication credentials were not provided.")
	}
	if _, err := s.postRepo.GetByID(ctx, postID); err != nil {
		return nil, err
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, models.NewValidationError("Comment text is required")
	}

	comment := &models.Comment{
		Text:     text,
		AuthorID: actor.ID,
		PostID:   postID,
	}
	if err := s.commentRepo.Create(ctx, comment); err != nil {
		return nil, err
	}
	comment.Author = *actor
	return comment, nil
}

// ListComments returns the post's comments oldest first.
func (s *CommentService) ListComments(ctx context.Context, postID uint) ([]models.Comment, error) {
	if _, err := s.postRepo.GetByID(ctx, postID); err != nil {
		return nil, err
	}
	return s.commentRepo.ListByPost(ctx, postID)
}

// GetComment returns the comment only if it belongs to postID.
func (s *CommentService) GetComment(ctx context.Context, postID, commentID uint) (*models.Comment, error) {
	if _, err := s.postRepo.GetByID(ctx, postID); err != nil {
		return nil, err
	}
	comment, err := s.commentRepo.GetByID(ctx, commentID)
	if err != nil {
		return nil, err
	}
	if comment.PostID != postID {
		return nil, models.NewNotFoundError("Comment", commentID)
	}
	return comment, nil
}

func (s *CommentService) UpdateComment(ctx context.Context, actor *models.User, postID, commentID uint, text string) (*models.Comment, error) {
	comment, err := s.ownedComment(ctx, actor, postID, commentID, "Changing someone else's content is forbidden.")
	if err != nil {
		return nil, err
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, models.NewValidationError("Comment text is required")
	}
	comment.Text = text
	if err := s.commentRepo.Update(ctx, comment); err != nil {
		return nil, err
	}
	return comment, nil
}

func (s *CommentService) DeleteComment(ctx context.Context, actor *models.User, postID, commentID uint) error {
	if _, err := s.ownedComment(ctx, actor, postID, commentID, "Deleting someone else's content is forbidden."); err != nil {
		return err
	}
	return s.commentRepo.Delete(ctx, commentID)
}

func (s *CommentService) ownedComment(ctx context.Context, actor *models.User, postID, commentID uint, denied string) (*models.Comment, error) {
	if actor == nil {
		return nil, models.NewUnauthorizedError("Authentication credentials were not provided.")
	}
	comment, err := s.GetComment(ctx, postID, commentID)
	if err != nil {
		return nil, err
	}
	if comment.AuthorID != actor.ID {
		return nil, models.NewPermissionDeniedError(denied)
	}
	return comment, nil
}
