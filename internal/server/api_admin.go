package server

import (
	"log/slog"

	"pivot/internal/middleware"
	"pivot/internal/models"

	"github.com/gofiber/fiber/v2"
)

// FlushPageCache handles POST /api/v1/admin/cache/flush
func (s *Server) FlushPageCache(c *fiber.Ctx) error {
	if err := s.pageCache.Flush(c.UserContext()); err != nil {
		return models.RespondWithAppError(c, models.NewInternalError(err))
	}
	middleware.Logger.InfoContext(c.UserContext(), "page cache flushed",
		slog.String("by", currentUser(c).Username))
	return c.JSON(fiber.Map{"flushed": true})
}
