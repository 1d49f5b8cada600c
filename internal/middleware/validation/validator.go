// Package validation rejects malformed or hostile request bodies before
// they reach a handler.
package validation

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

var injectionMarkers = []string{
	"<script", "<iframe", "javascript:", "onerror=", "onload=", "onclick=",
	"union select", "drop table", "; --", "\x00",
}

type Config struct {
	MaxQueryLength int
	Logger         *zap.Logger
}

func Middleware(cfg Config) fiber.Handler {
	if cfg.MaxQueryLength == 0 {
		cfg.MaxQueryLength = 5000
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
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

		path := c.Path()
		if strings.HasPrefix(path, "/api/v1/query") {
			var req map[string]interface{}
			if err := c.BodyParser(&req); err != nil {
				return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
					"error": "Invalid JSON format",
				})
			}

			query, ok := req["query"].(string)
			if !ok || strings.TrimSpace(query) == "" {
				return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
					"error": "Query is required and must be a string",
				})
			}

			if len(query) > cfg.MaxQueryLength {
				return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
					"error": "Query exceeds maximum length",
				})
			}

			if containsInjection(query) {
				cfg.Logger.Warn("Rejected suspicious query content",
					zap.String("ip", c.IP()),
					zap.String("path", path),
				)
				return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
					"error": "Invalid query content",
				})
			}
		}

		if strings.HasPrefix(path, "/api/v1/documents") {
			var req map[string]interface{}
			if err := c.BodyParser(&req); err != nil {
				return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
					"error": "Invalid JSON format",
				})
			}

			docPath, ok := req["path"].(string)
			if !ok || docPath == "" {
				return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
					"error": "path is required and must be a string",
				})
			}
			if strings.Contains(docPath, "..") {
				return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
					"error": "Invalid document path",
				})
			}
		}

		return c.Next()
	}
}

func containsInjection(input string) bool {
	lowered := strings.ToLower(input)
	for _, marker := range injectionMarkers {
		if strings.Contains(lowered, marker) {
			return true
		}
	}
	return false
}
