package server

import (
	"net/url"
	"strings"
	"time"

	"pivot/internal/middleware"
	"pivot/internal/models"

	"github.com/gofiber/fiber/v2"
)

const sessionCookie = "pivot_session"

// ResolveUser identifies the caller. API requests authenticate with an
// "Authorization: Bearer <jwt>" or "Authorization: Token <key>" header and
// get a 401 when the header is present but invalid. Pages fall back to the
// session cookie, and a stale cookie is dropped rather than rejected.
func (s *Server) ResolveUser() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if header := c.Get(fiber.HeaderAuthorization); header != "" {
			user, err := s.userFromHeader(c, header)
			if err != nil {
				if isAPIPath(c) {
					return models.RespondWithAppError(c, err)
				}
				if models.ErrorCode(err) != models.CodeUnauthorized {
					return err
				}
			}
			if user != nil {
				setCurrentUser(c, user)
			}
			return c.Next()
		}

		if isAPIPath(c) {
			return c.Next()
		}
		if raw := c.Cookies(sessionCookie); raw != "" {
			user, err := s.authService.UserForAccessToken(c.UserContext(), raw)
			switch {
			case err == nil:
				setCurrentUser(c, user)
			case models.ErrorCode(err) == models.CodeUnauthorized:
				endSession(c)
			default:
				return err
			}
		}
		return c.Next()
	}
}

// userFromHeader resolves the Authorization header. Unknown schemes are
// ignored so the request proceeds anonymously.
func (s *Server) userFromHeader(c *fiber.Ctx, header string) (*models.User, error) {
	parts := strings.Fields(header)
	if len(parts) == 0 {
		return nil, nil
	}
	scheme := strings.ToLower(parts[0])
	if scheme != "bearer" && scheme != "token" {
		return nil, nil
	}
	if len(parts) != 2 {
		return nil, models.NewUnauthorizedError("Invalid token header.")
	}
	if scheme == "bearer" {
		return s.authService.UserForAccessToken(c.UserContext(), parts[1])
	}
	return s.authService.UserForAPIToken(c.UserContext(), parts[1])
}

func setCurrentUser(c *fiber.Ctx, user *models.User) {
	c.Locals("user", user)
	middleware.SetUserID(c, user.ID)
}

// APIAuthRequired rejects anonymous API requests with 401.
func (s *Server) APIAuthRequired() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if currentUser(c) == nil {
			return models.RespondWithError(c, fiber.StatusUnauthorized,
				models.NewUnauthorizedError("Authentication credentials were not provided."))
		}
		return c.Next()
	}
}

// StaffRequired rejects authenticated non-staff users with 403. It must run
// after APIAuthRequired.
func (s *Server) StaffRequired() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if user := currentUser(c); user == nil || !user.IsStaff {
			return models.RespondWithError(c, fiber.StatusForbidden,
				models.NewPermissionDeniedError("You do not have permission to perform this action."))
		}
		return c.Next()
	}
}

// LoginRequired redirects guests to the login page, remembering where they
// were going.
func (s *Server) LoginRequired() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if currentUser(c) == nil {
			return redirectToLogin(c)
		}
		return c.Next()
	}
}

func redirectToLogin(c *fiber.Ctx) error {
	next := strings.ReplaceAll(url.QueryEscape(c.OriginalURL()), "%2F", "/")
	return c.Redirect("/auth/login/?next="+next, fiber.StatusFound)
}

// safeNext returns next when it is a local path, otherwise "/".
func safeNext(next string) string {
	if next == "" || !strings.HasPrefix(next, "/") || strings.HasPrefix(next, "//") || strings.Contains(next, `\`) {
		return "/"
	}
	u, err := url.Parse(next)
	if err != nil || u.Host != "" || u.Scheme != "" {
		return "/"
	}
	return next
}

func (s *Server) startSession(c *fiber.Ctx, user *models.User) error {
	token, err := s.authService.IssueSession(user)
	if err != nil {
		return err
	}
	c.Cookie(&fiber.Cookie{
		Name:     sessionCookie,
		Value:    token,
		Path:     "/",
		Expires:  time.Now().Add(s.config.AccessTokenTTL()),
		HTTPOnly: true,
		Secure:   s.config.IsProduction(),
		SameSite: fiber.CookieSameSiteLaxMode,
	})
	return nil
}

func endSession(c *fiber.Ctx) {
	c.Cookie(&fiber.Cookie{
		Name:     sessionCookie,
		Value:    "",
		Path:     "/",
		Expires:  time.Unix(0, 0),
		MaxAge:   -1,
		HTTPOnly: true,
		SameSite: fiber.CookieSameSiteLaxMode,
	})
}
