package handlers

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/kovaldeep/backend/internal/ingestion"
	"github.com/kovaldeep/backend/pkg/logger"
)

type DocumentHandler struct {
	processor *ingestion.Processor
	docsDir   string
}

func NewDocumentHandler(processor *ingestion.Processor, docsDir string) *DocumentHandler {
	return &DocumentHandler{
		processor: processor,
		docsDir:   docsDir,
	}
}

// IngestDocument runs the ingestion pipeline for one file already present
// under the configured docs directory. Paths are resolved relative to that
// directory and must not escape it.
func (h *DocumentHandler) IngestDocument(c *fiber.Ctx) error {
	var req struct {
		Path string `json:"path"`
	}

	if err := c.BodyParser(&req); err != nil {
		logger.Error("Failed to parse request body", zap.Error(err))
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	if req.Path == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "path is required",
		})
	}

	full, err := h.resolvePath(req.Path)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	item, err := h.processor.ProcessDocument(c.Context(), full)
	if err != nil {
		logger.Error("Failed to process document", zap.String("path", full), zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to process document",
		})
	}

	return c.JSON(fiber.Map{
		"message": "Document processed successfully",
		"id":      item.ID,
		"title":   item.Title,
		"chunks":  len(item.ChunkIDs),
	})
}

func (h *DocumentHandler) resolvePath(path string) (string, error) {
	full := filepath.Join(h.docsDir, filepath.Clean("/"+path))
	rel, err := filepath.Rel(h.docsDir, full)
	if err != nil || strings.HasPrefix(rel, "..") {
		return "", fiber.NewError(fiber.StatusBadRequest, "path escapes docs directory")
	}
	if _, err := os.Stat(full); err != nil {
		return "", fiber.NewError(fiber.StatusBadRequest, "document not found")
	}
	return full, nil
}
