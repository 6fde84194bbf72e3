package server

import (
	"strings"

	"pivot/internal/models"
	"pivot/internal/service"

	"github.com/gofiber/fiber/v2"
)

const loginFailed = "Please enter a correct username and password. Note that both fields may be case-sensitive."

type signupForm struct {
	FirstName string
	LastName  string
	Username  string
	Email     string
}

// LoginPage shows the login form. Signed-in users go straight to next.
func (s *Server) LoginPage(c *fiber.Ctx) error {
	next := c.Query("next")
	if currentUser(c) != nil {
		return c.Redirect(safeNext(next), fiber.StatusFound)
	}
	return s.render(c, fiber.StatusOK, "users/login", "Log in", fiber.Map{
		"Next": next,
	})
}

// LoginSubmit checks credentials, starts a session and follows next.
func (s *Server) LoginSubmit(c *fiber.Ctx) error {
	username := strings.TrimSpace(c.FormValue("username"))
	next := c.FormValue("next")

	user, err := s.authService.Authenticate(c.UserContext(), username, c.FormValue("password"))
	if err != nil {
		switch models.ErrorCode(err) {
		case models.CodeUnauthorized, models.CodeValidation:
			return s.render(c, fiber.StatusOK, "users/login", "Log in", fiber.Map{
				"Errors":   []string{loginFailed},
				"Next":     next,
				"Username": username,
			})
		}
		return err
	}
	if err := s.startSession(c, user); err != nil {
		return err
	}
	return c.Redirect(safeNext(next), fiber.StatusFound)
}

// SignupPage shows the registration form.
func (s *Server) SignupPage(c *fiber.Ctx) error {
	return s.render(c, fiber.StatusOK, "users/signup", "Sign up", fiber.Map{
		"Form": signupForm{},
	})
}

// SignupSubmit registers a user, signs them in and goes to the index.
func (s *Server) SignupSubmit(c *fiber.Ctx) error {
	form := signupForm{
		FirstName: c.FormValue("first_name"),
		LastName:  c.FormValue("last_name"),
		Username:  c.FormValue("username"),
		Email:     c.FormValue("email"),
	}
	user, err := s.authService.Register(c.UserContext(), service.RegisterInput{
		Username:  form.Username,
		Password:  c.FormValue("password"),
		Email:     form.Email,
		FirstName: form.FirstName,
		LastName:  form.LastName,
	})
	if err != nil {
		errs, err := formErrors(err)
		if err != nil {
			return err
		}
		return s.render(c, fiber.StatusOK, "users/signup", "Sign up", fiber.Map{
			"Errors": errs,
			"Form":   form,
		})
	}
	if err := s.startSession(c, user); err != nil {
		return err
	}
	return c.Redirect("/", fiber.StatusFound)
}

// Logout ends the session.
func (s *Server) Logout(c *fiber.Ctx) error {
	endSession(c)
	return c.Redirect("/", fiber.StatusFound)
}
