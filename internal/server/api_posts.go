package server

import (
	"encoding/json"

	"pivot/internal/models"
	"pivot/internal/service"

	"github.com/gofiber/fiber/v2"
)

type postRequest struct {
	Text  *string         `json:"text"`
	Group json.RawMessage `json:"group"`
	Image string          `json:"image"`
}

// ListPosts handles GET /api/v1/posts/
func (s *Server) ListPosts(c *fiber.Ctx) error {
	ctx := c.UserContext()
	page, paginated := listWindow(c, s.config.PostsPerPage)

	posts, count, err := s.postService.ListPosts(ctx, page.Limit, page.Offset)
	if err != nil {
		return models.RespondWithAppError(c, err)
	}

	results := toPostResponses(c, posts)
	if !paginated {
		return c.JSON(results)
	}
	next, previous := pageLinks(c, page, count)
	return c.JSON(paginatedResponse{
		Count:    count,
		Next:     next,
		Previous: previous,
		Results:  results,
	})
}

// CreatePost handles POST /api/v1/posts/
func (s *Server) CreatePost(c *fiber.Ctx) error {
	ctx := c.UserContext()

	var req postRequest
	if err := c.BodyParser(&req); err != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("Invalid request body"))
	}
	groupID, _, err := decodeGroupField(req.Group)
	if err != nil {
		return models.RespondWithAppError(c, err)
	}
	image, err := decodeImageField(req.Image)
	if err != nil {
		return models.RespondWithAppError(c, err)
	}

	in := service.CreatePostInput{GroupID: groupID, Image: image}
	if req.Text != nil {
		in.Text = *req.Text
	}
	post, err := s.postService.CreatePost(ctx, currentUser(c), in)
	if err != nil {
		return models.RespondWithAppError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(toPostResponse(c, post))
}

// GetPost handles GET /api/v1/posts/:id/
func (s *Server) GetPost(c *fiber.Ctx) error {
	id, err := apiID(c, "id")
	if err != nil {
		return err
	}

	post, err := s.postService.GetPost(c.UserContext(), id)
	if err != nil {
		return models.RespondWithAppError(c, err)
	}
	return c.JSON(toPostResponse(c, post))
}

// UpdatePost handles PUT and PATCH /api/v1/posts/:id/. PUT requires text.
func (s *Server) UpdatePost(c *fiber.Ctx) error {
	ctx := c.UserContext()
	id, err := apiID(c, "id")
	if err != nil {
		return err
	}

	var req postRequest
	if err := c.BodyParser(&req); err != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("Invalid request body"))
	}
	if c.Method() == fiber.MethodPut && req.Text == nil {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("text: This field is required"))
	}
	groupID, groupSet, err := decodeGroupField(req.Group)
	if err != nil {
		return models.RespondWithAppError(c, err)
	}
	image, err := decodeImageField(req.Image)
	if err != nil {
		return models.RespondWithAppError(c, err)
	}

	post, err := s.postService.UpdatePost(ctx, currentUser(c), id, service.UpdatePostInput{
		Text:       req.Text,
		GroupID:    groupID,
		ClearGroup: groupSet && groupID == nil,
		Image:      image,
	})
	if err != nil {
		return models.RespondWithAppError(c, err)
	}
	return c.JSON(toPostResponse(c, post))
}

// DeletePost handles DELETE /api/v1/posts/:id/
func (s *Server) DeletePost(c *fiber.Ctx) error {
	id, err := apiID(c, "id")
	if err != nil {
		return err
	}

	if err := s.postService.DeletePost(c.UserContext(), currentUser(c), id); err != nil {
		return models.RespondWithAppError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}
