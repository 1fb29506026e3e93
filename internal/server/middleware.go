package server

import (
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"
)

// requestLogger logs one line per request. Health and metrics scrapes are
// logged at debug level.
func (s *Server) requestLogger() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()
		if err != nil {
			// Let the error handler set the final status before logging.
			if herr := c.App().ErrorHandler(c, err); herr != nil {
				_ = c.SendStatus(fiber.StatusInternalServerError)
			}
		}

		status := c.Response().StatusCode()
		level := slog.LevelInfo
		switch {
		case status >= fiber.StatusInternalServerError:
			level = slog.LevelError
		case c.Path() == "/metrics" || c.Path() == "/api/v1/health":
			level = slog.LevelDebug
		}
		s.log.Log(c.Context(), level, "http request",
			"method", c.Method(),
			"path", c.Path(),
			"status", status,
			"duration", time.Since(start),
			"ip", c.IP(),
		)
		return nil
	}
}
