package server

import (
	"errors"
	"fmt"
	"io"
	"net/url"
	"strconv"
	"strings"

	"pivot/internal/cache"
	"pivot/internal/middleware"
	"pivot/internal/models"
	"pivot/internal/service"

	"github.com/gofiber/fiber/v2"
	"github.com/valyala/fasthttp"
)

const indexCachePage = "index"

// postForm is what the create and edit forms echo back on error.
type postForm struct {
	Text    string
	GroupID uint
}

// IndexPage renders the newest posts. The rendered content is cached per
// page number and viewer kind for the configured TTL, and writes do not
// invalidate it.
func (s *Server) IndexPage(c *fiber.Ctx) error {
	ctx := c.UserContext()
	rawPage := c.Query("page")
	authenticated := currentUser(c) != nil

	content, hit, err := cache.Aside(ctx, s.pageCache, indexCachePage,
		cache.IndexPageKey(rawPage, authenticated), s.config.IndexCacheTTL(),
		func() ([]byte, error) {
			page, err := s.feed.Index(ctx, rawPage)
			if err != nil {
				return nil, err
			}
			return s.renderContent("posts/index", fiber.Map{
				"Page":          page,
				"Authenticated": authenticated,
			})
		})
	if err != nil {
		return err
	}
	if hit {
		c.Set(middleware.PageCacheHeader, "HIT")
	} else {
		c.Set(middleware.PageCacheHeader, "MISS")
	}
	return s.writePage(c, fiber.StatusOK, "Latest updates on the site", content)
}

// GroupPage renders the posts of one group.
func (s *Server) GroupPage(c *fiber.Ctx) error {
	gf, err := s.feed.Group(c.UserContext(), c.Params("slug"), c.Query("page"))
	if err != nil {
		return err
	}
	return s.render(c, fiber.StatusOK, "posts/group_list", gf.Group.Title, fiber.Map{
		"Group": gf.Group,
		"Page":  gf.Page,
	})
}

// ProfilePage renders an author's posts and the follow toggle.
func (s *Server) ProfilePage(c *fiber.Ctx) error {
	viewer := currentUser(c)
	pf, err := s.feed.Profile(c.UserContext(), c.Params("username"), viewer, c.Query("page"))
	if err != nil {
		return err
	}
	return s.render(c, fiber.StatusOK, "posts/profile", "Profile of "+pf.Author.FullName(), fiber.Map{
		"Author":    pf.Author,
		"PostCount": pf.PostCount,
		"Following": pf.Following,
		"CanFollow": viewer != nil && viewer.ID != pf.Author.ID,
		"Page":      pf.Page,
	})
}

// FollowIndexPage renders posts by the authors the viewer follows.
func (s *Server) FollowIndexPage(c *fiber.Ctx) error {
	page, err := s.feed.Follow(c.UserContext(), currentUser(c), c.Query("page"))
	if err != nil {
		return err
	}
	return s.render(c, fiber.StatusOK, "posts/follow", "Posts by authors you follow", fiber.Map{
		"Page": page,
	})
}

// PostDetailPage renders a post with its comments.
func (s *Server) PostDetailPage(c *fiber.Ctx) error {
	id, err := pageID(c, "id")
	if err != nil {
		return err
	}
	detail, err := s.feed.PostDetail(c.UserContext(), id)
	if err != nil {
		return err
	}
	viewer := currentUser(c)
	return s.render(c, fiber.StatusOK, "posts/post_detail", "Post "+models.Truncate(detail.Post.Text, 30), fiber.Map{
		"Post":            detail.Post,
		"Comments":        detail.Comments,
		"AuthorPostCount": detail.AuthorPostCount,
		"IsAuthor":        viewer != nil && viewer.ID == detail.Post.AuthorID,
	})
}

// PostCreatePage shows an empty post form.
func (s *Server) PostCreatePage(c *fiber.Ctx) error {
	return s.renderPostForm(c, 0, postForm{}, nil)
}

// PostCreateSubmit creates a post and sends the author to their profile.
func (s *Server) PostCreateSubmit(c *fiber.Ctx) error {
	viewer := currentUser(c)
	form, groupID, image, err := readPostForm(c)
	if err == nil {
		_, err = s.postService.CreatePost(c.UserContext(), viewer, service.CreatePostInput{
			Text:    form.Text,
			GroupID: groupID,
			Image:   image,
		})
	}
	if err != nil {
		errs, err := formErrors(err)
		if err != nil {
			return err
		}
		return s.renderPostForm(c, 0, form, errs)
	}
	return c.Redirect(profilePath(viewer.Username), fiber.StatusFound)
}

// PostEditPage shows the edit form to the author. Anyone else is sent back
// to the post.
func (s *Server) PostEditPage(c *fiber.Ctx) error {
	id, err := pageID(c, "id")
	if err != nil {
		return err
	}
	post, err := s.postService.GetPost(c.UserContext(), id)
	if err != nil {
		return err
	}
	if post.AuthorID != currentUser(c).ID {
		return c.Redirect(postPath(id), fiber.StatusFound)
	}
	form := postForm{Text: post.Text}
	if post.GroupID != nil {
		form.GroupID = *post.GroupID
	}
	return s.renderPostForm(c, id, form, nil)
}

// PostEditSubmit applies an edit. A non-author is quietly redirected to the
// post and nothing changes.
func (s *Server) PostEditSubmit(c *fiber.Ctx) error {
	id, err := pageID(c, "id")
	if err != nil {
		return err
	}
	post, err := s.postService.GetPost(c.UserContext(), id)
	if err != nil {
		return err
	}
	viewer := currentUser(c)
	if post.AuthorID != viewer.ID {
		return c.Redirect(postPath(id), fiber.StatusFound)
	}

	form, groupID, image, err := readPostForm(c)
	if err == nil {
		_, _, err = s.postService.EditPost(c.UserContext(), viewer, id, service.EditPostInput{
			Text:       form.Text,
			GroupID:    groupID,
			Image:      image,
			ClearImage: c.FormValue("image-clear") == "on",
		})
	}
	if err != nil {
		errs, err := formErrors(err)
		if err != nil {
			return err
		}
		return s.renderPostForm(c, id, form, errs)
	}
	return c.Redirect(postPath(id), fiber.StatusFound)
}

// AddCommentSubmit adds a comment and returns to the post. An empty comment
// is dropped silently.
func (s *Server) AddCommentSubmit(c *fiber.Ctx) error {
	id, err := pageID(c, "id")
	if err != nil {
		return err
	}
	_, err = s.commentService.AddComment(c.UserContext(), currentUser(c), id, c.FormValue("text"))
	if err != nil && models.ErrorCode(err) != models.CodeValidation {
		return err
	}
	return c.Redirect(postPath(id), fiber.StatusFound)
}

// ProfileFollow follows the author and returns to their profile.
func (s *Server) ProfileFollow(c *fiber.Ctx) error {
	username := c.Params("username")
	if _, err := s.followService.Follow(c.UserContext(), currentUser(c), username); err != nil {
		return err
	}
	return c.Redirect(profilePath(username), fiber.StatusFound)
}

// ProfileUnfollow removes the follow edge, answering 404 when there is none.
func (s *Server) ProfileUnfollow(c *fiber.Ctx) error {
	username := c.Params("username")
	if err := s.followService.Unfollow(c.UserContext(), currentUser(c), username); err != nil {
		return err
	}
	return c.Redirect(profilePath(username), fiber.StatusFound)
}

func (s *Server) renderPostForm(c *fiber.Ctx, postID uint, form postForm, errs []string) error {
	groups, err := s.groupService.ListGroups(c.UserContext())
	if err != nil {
		return err
	}
	action, title := "/create/", "New post"
	if postID != 0 {
		action, title = fmt.Sprintf("/posts/%d/edit/", postID), "Edit post"
	}
	return s.render(c, fiber.StatusOK, "posts/create_post", title, fiber.Map{
		"IsEdit": postID != 0,
		"Action": action,
		"Errors": errs,
		"Form":   form,
		"Groups": groups,
	})
}

// readPostForm reads the text, group and image fields of a multipart post
// form.
func readPostForm(c *fiber.Ctx) (postForm, *uint, []byte, error) {
	form := postForm{Text: c.FormValue("text")}

	var groupID *uint
	if raw := strings.TrimSpace(c.FormValue("group")); raw != "" {
		id, err := strconv.ParseUint(raw, 10, 64)
		if err != nil || id == 0 {
			return form, nil, nil, models.NewValidationError("Select a valid group")
		}
		form.GroupID = uint(id)
		groupID = &form.GroupID
	}

	image, err := readUpload(c, "image")
	if err != nil {
		return form, nil, nil, err
	}
	return form, groupID, image, nil
}

// readUpload returns the bytes of an uploaded file, or nil when the form is
// not multipart or the field is absent or empty. A multipart body that
// cannot be parsed is a form error.
func readUpload(c *fiber.Ctx, field string) ([]byte, error) {
	fh, err := c.FormFile(field)
	switch {
	case errors.Is(err, fasthttp.ErrMissingFile), errors.Is(err, fasthttp.ErrNoMultipartForm):
		return nil, nil
	case err != nil:
		return nil, models.NewValidationError("The submitted file could not be read")
	case fh == nil || fh.Size == 0:
		return nil, nil
	}
	f, err := fh.Open()
	if err != nil {
		return nil, models.NewInternalError(err)
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return nil, models.NewValidationError("The submitted file could not be read")
	}
	return data, nil
}

func postPath(id uint) string {
	return fmt.Sprintf("/posts/%d/", id)
}

func profilePath(username string) string {
	return "/profile/" + url.PathEscape(username) + "/"
}
