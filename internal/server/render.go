package server

import (
	"bytes"
	"errors"
	"html/template"

	"pivot/internal/models"

	"github.com/gofiber/fiber/v2"
)

const layoutTemplate = "layouts/base"

// renderContent executes a page template without the layout. The result is
// what the index cache stores, so it must not depend on who is viewing
// beyond what the template binding carries.
func (s *Server) renderContent(name string, data fiber.Map) ([]byte, error) {
	var buf bytes.Buffer
	if err := s.views.Render(&buf, name, data); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// writePage wraps rendered content in the site layout.
func (s *Server) writePage(c *fiber.Ctx, status int, title string, content []byte) error {
	var buf bytes.Buffer
	err := s.views.Render(&buf, layoutTemplate, fiber.Map{
		"Title":   title,
		"User":    currentUser(c),
		"Content": template.HTML(content),
	})
	if err != nil {
		return err
	}
	c.Status(status)
	c.Type("html", "utf-8")
	return c.Send(buf.Bytes())
}

// render executes a page template for the current viewer and sends it
// inside the layout.
func (s *Server) render(c *fiber.Ctx, status int, name, title string, data fiber.Map) error {
	if data == nil {
		data = fiber.Map{}
	}
	data["User"] = currentUser(c)
	content, err := s.renderContent(name, data)
	if err != nil {
		return err
	}
	return s.writePage(c, status, title, content)
}

// NotFoundPage renders the 404 page, or the JSON error for API paths.
func (s *Server) NotFoundPage(c *fiber.Ctx) error {
	if isAPIPath(c) {
		return models.RespondWithError(c, fiber.StatusNotFound, models.NewNotFoundError("Endpoint", c.Path()))
	}
	return s.render(c, fiber.StatusNotFound, "core/404", "Page not found", fiber.Map{
		"Path": c.Path(),
	})
}

// formErrors turns a validation failure into the list shown above a form.
// Other errors are returned for the error handler.
func formErrors(err error) ([]string, error) {
	if models.ErrorCode(err) != models.CodeValidation {
		return nil, err
	}
	var appErr *models.AppError
	if errors.As(err, &appErr) {
		return []string{appErr.Message}, nil
	}
	return []string{err.Error()}, nil
}
