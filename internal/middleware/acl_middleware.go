package middleware

import (
	"github.com/gofiber/fiber/v2"
	"golang.org/x/crypto/bcrypt"

	"hostctl_backend/pkg/utils/jwt"
)

const AdminTokenHeader = "X-Admin-Token"

// AdminToken accepts requests whose X-Admin-Token (or bearer token) matches
// the configured bcrypt hash. With no hash configured every request is
// rejected.
func AdminToken(hash string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		token := c.Get(AdminTokenHeader)
		if token == "" {
			token = bearerToken(c)
		}
		if hash == "" || token == "" || bcrypt.CompareHashAndPassword([]byte(hash), []byte(token)) != nil {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Invalid admin token",
			})
		}
		return c.Next()
	}
}

// RequireAdmin only lets through users whose JWT carries the admin flag.
// It must run after AuthMiddleware.
func RequireAdmin() fiber.Handler {
	return func(c *fiber.Ctx) error {
		claims, ok := c.Locals("user").(*jwt.Claims)
		if !ok || !claims.IsAdmin {
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
				"error": "Admin access required",
			})
		}
		return c.Next()
	}
}
