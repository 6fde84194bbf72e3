package server

import (
	"strconv"
	"strings"

	"pivot/internal/models"

	"github.com/gofiber/fiber/v2"
)

const maxListLimit = 100

// limitOffset is the window of a listing requested with ?limit=&offset=.
type limitOffset struct {
	Limit  int
	Offset int
}

// listWindow reads ?limit= and ?offset=. ok is false when both are absent;
// the caller then returns the whole list as a plain array.
func listWindow(c *fiber.Ctx, defaultLimit int) (w limitOffset, ok bool) {
	if c.Query("limit") == "" && c.Query("offset") == "" {
		return w, false
	}
	w.Limit = c.QueryInt("limit", defaultLimit)
	switch {
	case w.Limit <= 0:
		w.Limit = defaultLimit
	case w.Limit > maxListLimit:
		w.Limit = maxListLimit
	}
	w.Offset = max(c.QueryInt("offset", 0), 0)
	return w, true
}

func positiveParam(c *fiber.Ctx, param string) (uint, bool) {
	n, err := strconv.ParseUint(c.Params(param), 10, 0)
	return uint(n), err == nil && n > 0
}

// apiID reads a numeric route parameter for the REST API. Anything but a
// positive integer is a validation error naming the parameter.
func apiID(c *fiber.Ctx, param string) (uint, error) {
	if id, ok := positiveParam(c, param); ok {
		return id, nil
	}
	return 0, models.NewValidationError("Invalid " + paramLabel(param))
}

// pageID reads a numeric route parameter for an HTML page, where a
// malformed id is a page that does not exist.
func pageID(c *fiber.Ctx, param string) (uint, error) {
	if id, ok := positiveParam(c, param); ok {
		return id, nil
	}
	return 0, models.NewNotFoundError("Page", c.Params(param))
}

// paramLabel turns "id" into "ID" and "post_id" into "post ID".
func paramLabel(param string) string {
	if param == "id" {
		return "ID"
	}
	if prefix, ok := strings.CutSuffix(param, "_id"); ok {
		return strings.ReplaceAll(prefix, "_", " ") + " ID"
	}
	return param
}

func isAPIPath(c *fiber.Ctx) bool {
	return strings.HasPrefix(c.Path(), "/api/")
}

// currentUser returns the user resolved for this request, or nil for guests.
func currentUser(c *fiber.Ctx) *models.User {
	user, _ := c.Locals("user").(*models.User)
	return user
}
