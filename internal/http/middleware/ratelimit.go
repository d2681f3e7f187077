package middleware

import (
	"math"
	"strconv"

	"github.com/gofiber/fiber/v2"

	"htmlurl/internal/metrics"
	"htmlurl/internal/ratelimit"
)

// RateLimit admits the request against the route's budgets, keyed by client IP.
// On rejection it sets Retry-After (whole seconds, rounded up) and fails with 429.
// A nil limiter admits everything.
func RateLimit(l *ratelimit.Limiter, route ratelimit.Route, m *metrics.Metrics) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if l == nil {
			return c.Next()
		}
		d := l.Check(c.IP(), route)
		if d.Allowed {
			return c.Next()
		}

		m.RateLimited(string(route))
		secs := int(math.Ceil(d.RetryAfter.Seconds()))
		if secs < 1 {
			secs = 1
		}
		c.Set(fiber.HeaderRetryAfter, strconv.Itoa(secs))
		return fiber.NewError(fiber.StatusTooManyRequests, "too many requests")
	}
}
