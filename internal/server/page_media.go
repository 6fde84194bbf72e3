package server

import (
	"pivot/internal/media"
	"pivot/internal/models"

	"github.com/gofiber/fiber/v2"
)

// MediaRedirect sends the browser to the object store URL of a post image.
func (s *Server) MediaRedirect(c *fiber.Ctx) error {
	key := c.Params("*")
	if s.media == nil || !media.IsPostImageKey(key) {
		return models.NewNotFoundError("Media", key)
	}
	target, err := s.media.URL(c.UserContext(), key)
	if err != nil {
		return err
	}
	return c.Redirect(target, fiber.StatusFound)
}
