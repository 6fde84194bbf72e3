package server

import (
	"pivot/internal/models"
	"pivot/internal/service"

	"github.com/gofiber/fiber/v2"
)

type credentialsRequest struct {
	Username string `json:"username" form:"username"`
	Password string `json:"password" form:"password"`
}

// ObtainAPIToken handles POST /api/v1/api-token-auth/. Bad credentials are a
// 400, matching the other credential forms.
func (s *Server) ObtainAPIToken(c *fiber.Ctx) error {
	var req credentialsRequest
	if err := c.BodyParser(&req); err != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("Invalid request body"))
	}

	token, err := s.authService.ObtainAPIToken(c.UserContext(), req.Username, req.Password)
	if err != nil {
		if models.ErrorCode(err) == models.CodeUnauthorized {
			return models.RespondWithError(c, fiber.StatusBadRequest, err)
		}
		return models.RespondWithAppError(c, err)
	}
	return c.JSON(fiber.Map{"token": token.Key})
}

// RegisterUser handles POST /api/v1/auth/users/
func (s *Server) RegisterUser(c *fiber.Ctx) error {
	var req struct {
		Username  string `json:"username"`
		Password  string `json:"password"`
		Email     string `json:"email"`
		FirstName string `json:"first_name"`
		LastName  string `json:"last_name"`
	}
	if err := c.BodyParser(&req); err != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("Invalid request body"))
	}

	user, err := s.authService.Register(c.UserContext(), service.RegisterInput{
		Username:  req.Username,
		Password:  req.Password,
		Email:     req.Email,
		FirstName: req.FirstName,
		LastName:  req.LastName,
	})
	if err != nil {
		return models.RespondWithAppError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(user)
}

// GetMe handles GET /api/v1/auth/users/me/
func (s *Server) GetMe(c *fiber.Ctx) error {
	return c.JSON(currentUser(c))
}

// CreateJWT handles POST /api/v1/auth/jwt/create/
func (s *Server) CreateJWT(c *fiber.Ctx) error {
	var req credentialsRequest
	if err := c.BodyParser(&req); err != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("Invalid request body"))
	}

	pair, err := s.authService.CreateJWT(c.UserContext(), req.Username, req.Password)
	if err != nil {
		return models.RespondWithAppError(c, err)
	}
	return c.JSON(pair)
}

// RefreshJWT handles POST /api/v1/auth/jwt/refresh/
func (s *Server) RefreshJWT(c *fiber.Ctx) error {
	var req struct {
		Refresh string `json:"refresh"`
	}
	if err := c.BodyParser(&req); err != nil || req.Refresh == "" {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("refresh: This field is required"))
	}

	access, err := s.authService.RefreshJWT(c.UserContext(), req.Refresh)
	if err != nil {
		return models.RespondWithAppError(c, err)
	}
	return c.JSON(fiber.Map{"access": access})
}

// VerifyJWT handles POST /api/v1/auth/jwt/verify/
func (s *Server) VerifyJWT(c *fiber.Ctx) error {
	var req struct {
		Token string `json:"token"`
	}
	if err := c.BodyParser(&req); err != nil || req.Token == "" {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("token: This field is required"))
	}

	if err := s.authService.VerifyJWT(req.Token); err != nil {
		return models.RespondWithAppError(c, err)
	}
	return c.JSON(fiber.Map{})
}
