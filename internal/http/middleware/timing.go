package middleware

import (
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
)

// ResponseTimeHeader carries the handler latency in milliseconds.
const ResponseTimeHeader = "X-Response-Time"

// Timing measures from admission to the end of the handler chain and sets
// X-Response-Time, e.g. "3.42ms".
func Timing() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()
		c.Set(ResponseTimeHeader, fmt.Sprintf("%.2fms", float64(time.Since(start).Microseconds())/1000))
		return err
	}
}
