// middleware/auth.go
package middleware

import (
	"log"
	"os"
	"strings"

	"github.com/gofiber/fiber/v2"
)

// AdminAuthMiddleware validates the Bearer token for the admin surface. The
// core trusts this single boolean gate; there is no user model behind it.
func AdminAuthMiddleware() fiber.Handler {
	expectedToken := os.Getenv("ADMIN_API_TOKEN")
	if expectedToken == "" {
		log.Fatal("❌ ADMIN_API_TOKEN is not set — admin routes cannot be protected")
	}

	return func(c *fiber.Ctx) error {
		authHeader := c.Get("Authorization")
		if authHeader == "" {
			log.Printf("🚫 [ADMIN_AUTH] Missing Authorization header for %s", c.Path())
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "admin authentication token missing",
			})
		}

		// Parse "Bearer <token>"
		token := strings.TrimPrefix(authHeader, "Bearer ")
		if token == authHeader {
			// no "Bearer " prefix — try the raw value
			token = authHeader
		}

		if token != expectedToken {
			log.Printf("❌ [ADMIN_AUTH] Invalid token for %s", c.Path())
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "invalid admin authentication token",
			})
		}

		return c.Next()
	}
}
