// Package validation screens chat requests before they reach the pipeline.
// Analytics questions legitimately talk about tables and aggregates, so there
// is deliberately no SQL-keyword blocklist here; the synthesizer's table
// allowlist is the guard on that side.
package validation

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/quality-agent/backend/pkg/logger"
)

var xssPattern = regexp.MustCompile(`(?i)(<script|<iframe|javascript:|onerror=|onload=|onclick=)`)

type Config struct {
	MaxMessageRunes int
}

func Middleware(cfg Config) fiber.Handler {
	if cfg.MaxMessageRunes == 0 {
		cfg.MaxMessageRunes = 2000
	}

	return func(c *fiber.Ctx) error {
		if c.Method() != fiber.MethodPost {
			return c.Next()
		}

		contentType := c.Get("Content-Type")
		if contentType != "" && !strings.Contains(contentType, "application/json") {
			return c.Status(fiber.StatusUnsupportedMediaType).JSON(fiber.Map{
				"error": "Unsupported content type",
			})
		}

		if !strings.HasSuffix(c.Path(), "/chat") {
			return c.Next()
		}

		var req map[string]interface{}
		if err := c.BodyParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "Invalid JSON format",
			})
		}

		message, ok := req["message"].(string)
		if !ok || strings.TrimSpace(message) == "" {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "message is required and must be a string",
			})
		}

		if utf8.RuneCountInString(message) > cfg.MaxMessageRunes {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "message exceeds maximum length",
			})
		}

		if xssPattern.MatchString(message) {
			logger.Warn("Rejected message with markup payload",
				zap.String("ip", c.IP()),
			)
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "Invalid message content",
			})
		}

		return c.Next()
	}
}
