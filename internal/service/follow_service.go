package service

import (
	"context"

	"pivot/internal/models"
	"pivot/internal/observability"
	"pivot/internal/repository"

	"go.opentelemetry.io/otel/attribute"
)

// FollowService maintains the follower -> author graph.
type FollowService struct {
	followRepo repository.FollowRepository
	userRepo   repository.UserRepository
}

func NewFollowService(followRepo repository.FollowRepository, userRepo repository.UserRepository) *FollowService {
	return &FollowService{
		followRepo: followRepo,
		userRepo:   userRepo,
	}
}

// Follow makes actor follow the user named username. Following yourself or
// an author already followed is a no-op reported as created=false.
func (s *FollowService) Follow(ctx context.Context, actor *models.User, username string) (created bool, err error) {
	ctx, span := observability.StartSpan(ctx, "follow_service", "follow", attribute.String("author", username))
	defer func() {
		observability.EndSpan(span, err)
		observability.FollowOperations.WithLabelValues("follow", followOutcome(created, err)).Inc()
	}()

	if actor == nil {
		return false, models.NewUnauthorizedError("Authentication credentials were not provided.")
	}
	author, err := s.userRepo.GetByUsername(ctx, username)
	if err != nil {
		return false, err
	}
	if author.ID == actor.ID {
		return false, nil
	}
	return s.followRepo.Create(ctx, actor.ID, author.ID)
}

// Unfollow removes the edge. A missing author or edge is NOT_FOUND.
func (s *FollowService) Unfollow(ctx context.Context, actor *models.User, username string) (err error) {
	ctx, span := observability.StartSpan(ctx, "follow_service", "unfollow", attribute.String("author", username))
	defer func() {
		observability.EndSpan(span, err)
		observability.FollowOperations.WithLabelValues("unfollow", followOutcome(err == nil, err)).Inc()
	}()

	if actor == nil {
		return models.NewUnauthorizedError("Authentication credentials were not provided.")
	}
	author, err := s.userRepo.GetByUsername(ctx, username)
	if err != nil {
		return err
	}
	deleted, err := s.followRepo.Delete(ctx, actor.ID, author.ID)
	if err != nil {
		return err
	}
	if !deleted {
		return models.NewNotFoundError("Follow", username)
	}
	return nil
}

func (s *FollowService) IsFollowing(ctx context.Context, actor *models.User, authorID uint) (bool, error) {
	if actor == nil {
		return false, nil
	}
	return s.followRepo.Exists(ctx, actor.ID, authorID)
}

// ListFollowing returns the actor's edges, filtered by author username when
// search is not empty.
func (s *FollowService) ListFollowing(ctx context.Context, actor *models.User, search string) ([]models.Follow, error) {
	if actor == nil {
		return nil, models.NewUnauthorizedError("Authentication credentials were not provided.")
	}
	return s.followRepo.ListByUser(ctx, actor.ID, search)
}

func followOutcome(changed bool, err error) string {
	switch {
	case err != nil && models.IsNotFound(err):
		return "not_found"
	case err != nil:
		return "error"
	case changed:
		return "changed"
	default:
		return "noop"
	}
}
