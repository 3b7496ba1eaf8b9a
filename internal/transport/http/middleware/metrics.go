package middleware

import (
	"time"

	"github.com/fastplat/auth/internal/metrics"
	"github.com/gofiber/fiber/v2"
)

// NewMetricsMiddleware labels requests by route pattern, not by raw path, so
// activation codes and user ids do not become label values.
func NewMetricsMiddleware(m *metrics.Metrics) fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()

		status := c.Response().StatusCode()
		if err != nil {
			if fe, ok := err.(*fiber.Error); ok {
				status = fe.Code
			}
		}

		m.HTTPRequest(c.Method(), c.Route().Path, status, time.Since(start))

		return err
	}
}
