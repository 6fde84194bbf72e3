package server

import (
	"pivot/internal/models"

	"github.com/gofiber/fiber/v2"
)

type commentRequest struct {
	Text string `json:"text" form:"text"`
}

// ListComments handles GET /api/v1/posts/:post_id/comments/
func (s *Server) ListComments(c *fiber.Ctx) error {
	postID, err := apiID(c, "post_id")
	if err != nil {
		return err
	}

	comments, err := s.commentService.ListComments(c.UserContext(), postID)
	if err != nil {
		return models.RespondWithAppError(c, err)
	}
	return c.JSON(toCommentResponses(comments))
}

// CreateComment handles POST /api/v1/posts/:post_id/comments/
func (s *Server) CreateComment(c *fiber.Ctx) error {
	postID, err := apiID(c, "post_id")
	if err != nil {
		return err
	}

	var req commentRequest
	if err := c.BodyParser(&req); err != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("Invalid request body"))
	}

	comment, err := s.commentService.AddComment(c.UserContext(), currentUser(c), postID, req.Text)
	if err != nil {
		return models.RespondWithAppError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(toCommentResponse(comment))
}

// GetComment handles GET /api/v1/posts/:post_id/comments/:id/
func (s *Server) GetComment(c *fiber.Ctx) error {
	postID, err := apiID(c, "post_id")
	if err != nil {
		return err
	}
	id, err := apiID(c, "id")
	if err != nil {
		return err
	}

	comment, err := s.commentService.GetComment(c.UserContext(), postID, id)
	if err != nil {
		return models.RespondWithAppError(c, err)
	}
	return c.JSON(toCommentResponse(comment))
}

// UpdateComment handles PUT and PATCH /api/v1/posts/:post_id/comments/:id/
func (s *Server) UpdateComment(c *fiber.Ctx) error {
	postID, err := apiID(c, "post_id")
	if err != nil {
		return err
	}
	id, err := apiID(c, "id")
	if err != nil {
		return err
	}

	var req commentRequest
	if err := c.BodyParser(&req); err != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("Invalid request body"))
	}

	comment, err := s.commentService.UpdateComment(c.UserContext(), currentUser(c), postID, id, req.Text)
	if err != nil {
		return models.RespondWithAppError(c, err)
	}
	return c.JSON(toCommentResponse(comment))
}

// DeleteComment handles DELETE /api/v1/posts/:post_id/comments/:id/
func (s *Server) DeleteComment(c *fiber.Ctx) error {
	postID, err := apiID(c, "post_id")
	if err != nil {
		return err
	}
	id, err := apiID(c, "id")
	if err != nil {
		return err
	}

	if err := s.commentService.DeleteComment(c.UserContext(), currentUser(c), postID, id); err != nil {
		return models.RespondWithAppError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}
