package feed

import (
	"context"

	"pivot/internal/models"
	"pivot/internal/observability"
	"pivot/internal/repository"

	"go.opentelemetry.io/otel/attribute"
)

// Assembler builds the read side of the site: paginated feeds and post detail.
type Assembler struct {
	posts    repository.PostRepository
	groups   repository.GroupRepository
	users    repository.UserRepository
	follows  repository.FollowRepository
	comments repository.CommentRepository
	perPage  int
}

// NewAssembler creates an Assembler with perPage posts per page.
func NewAssembler(
	posts repository.PostRepository,
	groups repository.GroupRepository,
	users repository.UserRepository,
	follows repository.FollowRepository,
	comments repository.CommentRepository,
	perPage int,
) *Assembler {
	if perPage <= 0 {
		perPage = DefaultPerPage
	}
	return &Assembler{
		posts:    posts,
		groups:   groups,
		users:    users,
		follows:  follows,
		comments: comments,
		perPage:  perPage,
	}
}

// PostPage is one page of posts, newest first.
type PostPage = Page[models.Post]

// GroupFeed is a group and one page of its posts.
type GroupFeed struct {
	Group *models.Group
	Page  *PostPage
}

// ProfileFeed is an author, their post count, whether the viewer follows
// them, and one page of their posts.
type ProfileFeed struct {
	Author    *models.User
	PostCount int64
	Following bool
	Page      *PostPage
}

// PostDetail is a post with its comments, oldest first.
type PostDetail struct {
	Post            *models.Post
	Comments        []models.Comment
	AuthorPostCount int64
}

func (a *Assembler) page(ctx context.Context, filter repository.PostFilter, rawPage string) (*PostPage, error) {
	count, err := a.posts.Count(ctx, filter)
	if err != nil {
		return nil, err
	}
	w := Paginate(count, a.perPage, rawPage)
	if count == 0 {
		return &PostPage{Window: w, Items: []models.Post{}}, nil
	}
	items, err := a.posts.List(ctx, filter, w.Limit(), w.Offset())
	if err != nil {
		return nil, err
	}
	return &PostPage{Window: w, Items: items}, nil
}

// Index returns a page of every post.
func (a *Assembler) Index(ctx context.Context, rawPage string) (_ *PostPage, err error) {
	ctx, span := observability.StartSpan(ctx, "feed", "index")
	defer func() { observability.EndSpan(span, err) }()

	return a.page(ctx, repository.PostFilter{}, rawPage)
}

// Group returns a page of the posts in the group with slug.
func (a *Assembler) Group(ctx context.Context, slug, rawPage string) (_ *GroupFeed, err error) {
	ctx, span := observability.StartSpan(ctx, "feed", "group", attribute.String("group.slug", slug))
	defer func() { observability.EndSpan(span, err) }()

	group, err := a.groups.GetBySlug(ctx, slug)
	if err != nil {
		return nil, err
	}
	page, err := a.page(ctx, repository.PostFilter{GroupID: &group.ID}, rawPage)
	if err != nil {
		return nil, err
	}
	return &GroupFeed{Group: group, Page: page}, nil
}

// Profile returns a page of username's posts. viewer may be nil.
func (a *Assembler) Profile(ctx context.Context, username string, viewer *models.User, rawPage string) (_ *ProfileFeed, err error) {
	ctx, span := observability.StartSpan(ctx, "feed", "profile", attribute.String("author.username", username))
	defer func() { observability.EndSpan(span, err) }()

	author, err := a.users.GetByUsername(ctx, username)
	if err != nil {
		return nil, err
	}
	page, err := a.page(ctx, repository.PostFilter{AuthorID: &author.ID}, rawPage)
	if err != nil {
		return nil, err
	}

	following := false
	if viewer != nil && viewer.ID != author.ID {
		following, err = a.follows.Exists(ctx, viewer.ID, author.ID)
		if err != nil {
			return nil, err
		}
	}

	return &ProfileFeed{
		Author:    author,
		PostCount: page.Count,
		Following: following,
		Page:      page,
	}, nil
}

// Follow returns a page of posts by the authors viewer follows. Anonymous
// viewers and viewers who follow nobody get an empty page.
func (a *Assembler) Follow(ctx context.Context, viewer *models.User, rawPage string) (_ *PostPage, err error) {
	ctx, span := observability.StartSpan(ctx, "feed", "follow")
	defer func() { observability.EndSpan(span, err) }()

	if viewer == nil {
		return &PostPage{Window: Paginate(0, a.perPage, rawPage), Items: []models.Post{}}, nil
	}
	authorIDs, err := a.follows.AuthorIDs(ctx, viewer.ID)
	if err != nil {
		return nil, err
	}
	if len(authorIDs) == 0 {
		return &PostPage{Window: Paginate(0, a.perPage, rawPage), Items: []models.Post{}}, nil
	}
	return a.page(ctx, repository.PostFilter{AuthorIDs: authorIDs}, rawPage)
}

// PostDetail returns a post, its comments and its author's post count.
func (a *Assembler) PostDetail(ctx context.Context, id uint) (_ *PostDetail, err error) {
	ctx, span := observability.StartSpan(ctx, "feed", "post_detail", attribute.Int64("post.id", int64(id)))
	defer func() { observability.EndSpan(span, err) }()

	post, err := a.posts.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	comments, err := a.comments.ListByPost(ctx, id)
	if err != nil {
		return nil, err
	}
	count, err := a.posts.Count(ctx, repository.PostFilter{AuthorID: &post.AuthorID})
	if err != nil {
		return nil, err
	}
	return &PostDetail{Post: post, Comments: comments, AuthorPostCount: count}, nil
}
