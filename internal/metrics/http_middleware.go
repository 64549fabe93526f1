package metrics

import (
	"time"

	"github.com/gofiber/fiber/v2"
)

// Middleware records count and latency per matched route.
func Middleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()

		code := c.Response().StatusCode()
		if err != nil {
			if fe, ok := err.(*fiber.Error); ok {
				code = fe.Code
			} else {
				code = fiber.StatusInternalServerError
			}
		}

		ObserveHTTPRequest(c.Method(), c.Route().Path, code, time.Since(start))
		return err
	}
}
