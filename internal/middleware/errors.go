package middleware

import "github.com/gofiber/fiber/v2"

// RenderErrors passes a downstream error to the app's ErrorHandler right
// away, so the middleware above it (access log, metrics, tracing) observes
// the status that is actually sent. Register it after those and before the
// routes.
func RenderErrors() fiber.Handler {
	return func(c *fiber.Ctx) error {
		err := c.Next()
		if err == nil {
			return nil
		}
		return c.App().ErrorHandler(c, err)
	}
}
