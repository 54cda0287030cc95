// middleware/source.go
package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v2"
)

// SourceContextMiddleware extracts the ballot-origin token a voter arrived
// with (?src= query or X-Vote-Source header) and attaches it to the request
// context. Handlers fall back to "direct" when nothing is set; validity is
// enforced at submission time, never here.
func SourceContextMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		source := strings.TrimSpace(c.Query("src"))
		if source == "" {
			source = strings.TrimSpace(c.Get("X-Vote-Source"))
		}
		if source == "" {
			source = "direct"
		}

		c.Locals("vote_source", source)
		return c.Next()
	}
}
