package server

import (
	"pivot/internal/models"

	"github.com/gofiber/fiber/v2"
)

// ListGroups handles GET /api/v1/groups/
func (s *Server) ListGroups(c *fiber.Ctx) error {
	groups, err := s.groupService.ListGroups(c.UserContext())
	if err != nil {
		return models.RespondWithAppError(c, err)
	}
	return c.JSON(groups)
}

// GetGroup handles GET /api/v1/groups/:id/
func (s *Server) GetGroup(c *fiber.Ctx) error {
	id, err := apiID(c, "id")
	if err != nil {
		return err
	}

	group, err := s.groupService.GetGroup(c.UserContext(), id)
	if err != nil {
		return models.RespondWithAppError(c, err)
	}
	return c.JSON(group)
}
