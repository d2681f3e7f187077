package middleware

import (
	"crypto/subtle"

	"github.com/gofiber/fiber/v2"
)

// APIKeyHeader is the header clients put the upload key in.
const APIKeyHeader = "X-API-Key"

// APIKey rejects requests whose X-API-Key does not equal key with 401.
// An empty key disables the check.
func APIKey(key string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if key == "" {
			return c.Next()
		}
		provided := c.Get(APIKeyHeader)
		if provided == "" || subtle.ConstantTimeCompare([]byte(provided), []byte(key)) != 1 {
			return fiber.NewError(fiber.StatusUnauthorized, "invalid or missing API key")
		}
		return c.Next()
	}
}
