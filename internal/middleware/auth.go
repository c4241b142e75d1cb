package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/docqa/backend/internal/auth"
	"github.com/docqa/backend/internal/storage/models"
)

// Locals keys set by the auth middleware.
const (
	LocalUsername = "username"
	LocalRole     = "role"
)

type TokenVerifier interface {
	Verify(token string) (*auth.Claims, error)
}

// Auth validates the bearer token and stores the caller's identity in
// the request locals. Websocket clients may pass the token as a query
// parameter instead of a header.
func Auth(verifier TokenVerifier) fiber.Handler {
	return func(c *fiber.Ctx) error {
		token := bearerToken(c)
		if token == "" {
			token = c.Query("token")
		}
		if token == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "missing authentication token",
			})
		}

		claims, err := verifier.Verify(token)
		if err != nil {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "invalid or expired token",
			})
		}

		c.Locals(LocalUsername, claims.Username)
		c.Locals(LocalRole, claims.Role)
		return c.Next()
	}
}

// AdminOnly allows only admin callers past. It must run after Auth.
func AdminOnly() fiber.Handler {
	return func(c *fiber.Ctx) error {
		role, _ := c.Locals(LocalRole).(string)
		if role != models.RoleAdmin {
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
				"error": "admin role required",
			})
		}
		return c.Next()
	}
}

func bearerToken(c *fiber.Ctx) string {
	header := c.Get(fiber.HeaderAuthorization)
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

// Username returns the authenticated caller set by Auth.
func Username(c *fiber.Ctx) string {
	u, _ := c.Locals(LocalUsername).(string)
	return u
}
