package server

import (
	"strings"

	"pivot/internal/models"

	"github.com/gofiber/fiber/v2"
)

// ListFollows handles GET /api/v1/follow/?search=
func (s *Server) ListFollows(c *fiber.Ctx) error {
	follows, err := s.followService.ListFollowing(c.UserContext(), currentUser(c), c.Query("search"))
	if err != nil {
		return models.RespondWithAppError(c, err)
	}

	out := make([]followResponse, 0, len(follows))
	for _, f := range follows {
		out = append(out, followResponse{User: f.User.Username, Following: f.Author.Username})
	}
	return c.JSON(out)
}

// CreateFollow handles POST /api/v1/follow/. Following yourself, an author
// already followed or an unknown user is a 400.
func (s *Server) CreateFollow(c *fiber.Ctx) error {
	actor := currentUser(c)

	var req struct {
		Following string `json:"following" form:"following"`
	}
	if err := c.BodyParser(&req); err != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("Invalid request body"))
	}
	username := strings.TrimSpace(req.Following)
	if username == "" {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("following: This field is required"))
	}
	if username == actor.Username {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("You cannot follow yourself"))
	}

	created, err := s.followService.Follow(c.UserContext(), actor, username)
	if err != nil {
		if models.IsNotFound(err) {
			return models.RespondWithError(c, fiber.StatusBadRequest,
				models.NewValidationError("following: No user named "+username))
		}
		return models.RespondWithAppError(c, err)
	}
	if !created {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("You are already following "+username))
	}

	return c.Status(fiber.StatusCreated).JSON(followResponse{User: actor.Username, Following: username})
}

// DeleteFollow handles DELETE /api/v1/follow/:username/
func (s *Server) DeleteFollow(c *fiber.Ctx) error {
	if err := s.followService.Unfollow(c.UserContext(), currentUser(c), c.Params("username")); err != nil {
		return models.RespondWithAppError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}
