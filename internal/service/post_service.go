package service

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"pivot/internal/media"
	"pivot/internal/middleware"
	"pivot/internal/models"
	"pivot/internal/observability"
	"pivot/internal/repository"

	"go.opentelemetry.io/otel/attribute"
)

// PostService creates, edits and deletes posts on behalf of an acting user.
// It never touches the page cache: readers of the cached index see writes
// only after the entry expires.
type PostService struct {
	postRepo      repository.PostRepository
	groupRepo     repository.GroupRepository
	media         media.Store
	maxImageBytes int64
}

type CreatePostInput struct {
	Text    string
	GroupID *uint
	Image   []byte
}

// EditPostInput replaces the editable fields of a post. A nil Image keeps
// the current image unless ClearImage is set.
type EditPostInput struct {
	Text       string
	GroupID    *uint
	Image      []byte
	ClearImage bool
}

// UpdatePostInput is a partial update: nil fields are left alone.
type UpdatePostInput struct {
	Text       *string
	GroupID    *uint
	ClearGroup bool
	Image      []byte
}

// NewPostService wires the post repositories. store may be nil, in which
// case image uploads are refused.
func NewPostService(
	postRepo repository.PostRepository,
	groupRepo repository.GroupRepository,
	store media.Store,
	maxImageMB int,
) *PostService {
	if maxImageMB <= 0 {
		maxImageMB = media.DefaultMaxUploadMB
	}
	return &PostService{
		postRepo:      postRepo,
		groupRepo:     groupRepo,
		media:         store,
		maxImageBytes: int64(maxImageMB) * 1024 * 1024,
	}
}

func (s *PostService) GetPost(ctx context.Context, id uint) (*models.Post, error) {
	return s.postRepo.GetByID(ctx, id)
}

// ListPosts returns posts newest first with the total count. A limit of
// zero or less returns every post from offset on.
func (s *PostService) ListPosts(ctx context.Context, limit, offset int) ([]models.Post, int64, error) {
	count, err := s.postRepo.Count(ctx, repository.PostFilter{})
	if err != nil {
		return nil, 0, err
	}
	if limit <= 0 {
		limit = int(count)
	}
	if count == 0 || limit == 0 || int64(offset) >= count {
		return []models.Post{}, count, nil
	}
	posts, err := s.postRepo.List(ctx, repository.PostFilter{}, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	return posts, count, nil
}

func (s *PostService) CreatePost(ctx context.Context, actor *models.User, in CreatePostInput) (_ *models.Post, err error) {
	ctx, span := observability.StartSpan(ctx, "post_service", "create")
	defer func() { observability.EndSpan(span, err); recordMutation("create", err) }()

	if actor == nil {
		return nil, models.NewUnauthorizedError("Authentication credentials were not provided.")
	}
	text, err := cleanPostText(in.Text)
	if err != nil {
		return nil, err
	}
	if err := s.checkGroup(ctx, in.GroupID); err != nil {
		return nil, err
	}

	post := &models.Post{
		Text:     text,
		AuthorID: actor.ID,
		GroupID:  in.GroupID,
	}
	if len(in.Image) > 0 {
		key, err := s.storeImage(ctx, in.Image)
		if err != nil {
			return nil, err
		}
		post.Image = key
	}

	if err := s.postRepo.Create(ctx, post); err != nil {
		s.removeImage(ctx, post.Image)
		return nil, err
	}
	return s.postRepo.GetByID(ctx, post.ID)
}

// EditPost applies a full edit from the page form. A non-author is refused
// without an error: the post is returned unchanged with applied=false so the
// caller can redirect to the detail view.
func (s *PostService) EditPost(ctx context.Context, actor *models.User, postID uint, in EditPostInput) (_ *models.Post, applied bool, err error) {
	ctx, span := observability.StartSpan(ctx, "post_service", "edit", attribute.Int("post.id", int(postID)))
	defer func() {
		observability.EndSpan(span, err)
		if applied || err != nil {
			recordMutation("edit", err)
		}
	}()

	post, err := s.postRepo.GetByID(ctx, postID)
	if err != nil {
		return nil, false, err
	}
	if actor == nil || actor.ID != post.AuthorID {
		observability.PostMutations.WithLabelValues("edit", "rejected").Inc()
		return post, false, nil
	}

	text, err := cleanPostText(in.Text)
	if err != nil {
		return nil, false, err
	}
	if err := s.checkGroup(ctx, in.GroupID); err != nil {
		return nil, false, err
	}

	post.Text = text
	post.GroupID = in.GroupID
	post.Group = nil
	if err := s.save(ctx, post, in.Image, in.ClearImage); err != nil {
		return nil, false, err
	}

	updated, err := s.postRepo.GetByID(ctx, postID)
	if err != nil {
		return nil, false, err
	}
	return updated, true, nil
}

// UpdatePost is the API update. Unlike EditPost a non-author gets
// PERMISSION_DENIED.
func (s *PostService) UpdatePost(ctx context.Context, actor *models.User, postID uint, in UpdatePostInput) (_ *models.Post, err error) {
	ctx, span := observability.StartSpan(ctx, "post_service", "update", attribute.Int("post.id", int(postID)))
	defer func() { observability.EndSpan(span, err); recordMutation("update", err) }()

	if actor == nil {
		return nil, models.NewUnauthorizedError("Authentication credentials were not provided.")
	}
	post, err := s.postRepo.GetByID(ctx, postID)
	if err != nil {
		return nil, err
	}
	if post.AuthorID != actor.ID {
		return nil, models.NewPermissionDeniedError("Changing someone else's content is forbidden.")
	}

	if in.Text != nil {
		text, err := cleanPostText(*in.Text)
		if err != nil {
			return nil, err
		}
		post.Text = text
	}
	switch {
	case in.ClearGroup:
		post.GroupID = nil
	case in.GroupID != nil:
		if err := s.checkGroup(ctx, in.GroupID); err != nil {
			return nil, err
		}
		post.GroupID = in.GroupID
	}
	post.Group = nil

	if err := s.save(ctx, post, in.Image, false); err != nil {
		return nil, err
	}
	return s.postRepo.GetByID(ctx, postID)
}

// DeletePost removes the post and its comments. The stored image is removed
// afterwards; a failure there is only logged.
func (s *PostService) DeletePost(ctx context.Context, actor *models.User, postID uint) (err error) {
	ctx, span := observability.StartSpan(ctx, "post_service", "delete", attribute.Int("post.id", int(postID)))
	defer func() { observability.EndSpan(span, err); recordMutation("delete", err) }()

	if actor == nil {
		return models.NewUnauthorizedError("Authentication credentials were not provided.")
	}
	post, err := s.postRepo.GetByID(ctx, postID)
	if err != nil {
		return err
	}
	if post.AuthorID != actor.ID {
		return models.NewPermissionDeniedError("Deleting someone else's content is forbidden.")
	}
	if err := s.postRepo.Delete(ctx, postID); err != nil {
		return err
	}
	s.removeImage(ctx, post.Image)
	return nil
}

// save writes post, swapping in a new image when one is given.
func (s *PostService) save(ctx context.Context, post *models.Post, image []byte, clearImage bool) error {
	oldImage := post.Image
	if len(image) > 0 {
		key, err := s.storeImage(ctx, image)
		if err != nil {
			return err
		}
		post.Image = key
	} else if clearImage {
		post.Image = ""
	}
	post.UpdatedAt = time.Now()

	if err := s.postRepo.Update(ctx, post); err != nil {
		if post.Image != oldImage {
			s.removeImage(ctx, post.Image)
		}
		return err
	}
	if post.Image != oldImage {
		s.removeImage(ctx, oldImage)
	}
	return nil
}

func (s *PostService) checkGroup(ctx context.Context, groupID *uint) error {
	if groupID == nil {
		return nil
	}
	if _, err := s.groupRepo.GetByID(ctx, *groupID); err != nil {
		if models.IsNotFound(err) {
			return models.NewValidationError("Select a valid group. That choice is not one of the available choices.")
		}
		return err
	}
	return nil
}

func (s *PostService) storeImage(ctx context.Context, data []byte) (string, error) {
	if s.media == nil {
		return "", models.NewValidationError("Image uploads are not enabled")
	}
	img, err := media.DetectImage(data, s.maxImageBytes)
	if err != nil {
		return "", err
	}
	key := media.NewPostImageKey(img.Ext)
	if err := s.media.Put(ctx, key, img.ContentType, img.Data); err != nil {
		return "", models.NewInternalError(err)
	}
	return key, nil
}

func (s *PostService) removeImage(ctx context.Context, key string) {
	if key == "" || s.media == nil {
		return
	}
	if err := s.media.Remove(ctx, key); err != nil {
		middleware.Logger.WarnContext(ctx, "failed to remove post image",
			slog.String("key", key), slog.String("error", err.Error()))
	}
}

func cleanPostText(text string) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", models.NewValidationError("Post text is required")
	}
	return text, nil
}

func recordMutation(op string, err error) {
	outcome := "ok"
	switch {
	case err == nil:
	case models.ErrorCode(err) == models.CodeInternal || models.ErrorCode(err) == "":
		outcome = "error"
	default:
		outcome = "rejected"
	}
	observability.PostMutations.WithLabelValues(op, outcome).Inc()
}
