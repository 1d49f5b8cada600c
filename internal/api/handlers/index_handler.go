package handlers

import (
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/kovaldeep/backend/internal/retrieval"
	"github.com/kovaldeep/backend/internal/vector/pinecone"
	"github.com/kovaldeep/backend/pkg/logger"
)

type IndexHandler struct {
	service  *retrieval.Service
	vectorDB *pinecone.Client
}

func NewIndexHandler(service *retrieval.Service, vectorDB *pinecone.Client) *IndexHandler {
	return &IndexHandler{
		service:  service,
		vectorDB: vectorDB,
	}
}

func (h *IndexHandler) GetStats(c *fiber.Ctx) error {
	stats, err := h.vectorDB.DescribeIndexStats(c.Context())
	if err != nil {
		logger.Error("Failed to fetch index stats", zap.Error(err))
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{
			"error": "Failed to fetch index stats",
		})
	}

	return c.JSON(stats)
}

// GetCatalog lists the knowledge catalog items without their chunk ids,
// which are an ingestion detail no API consumer needs.
func (h *IndexHandler) GetCatalog(c *fiber.Ctx) error {
	idx := h.service.Catalog()

	type catalogEntry struct {
		ID        string   `json:"id"`
		Title     string   `json:"title"`
		Category  string   `json:"category"`
		Author    string   `json:"author,omitempty"`
		Canonical bool     `json:"canonical"`
		Synonyms  []string `json:"synonyms,omitempty"`
		Priority  int      `json:"priority"`
	}

	entries := make([]catalogEntry, 0, len(idx.Items))
	for _, item := range idx.Items {
		entries = append(entries, catalogEntry{
			ID:        item.ID,
			Title:     item.Title,
			Category:  item.Category,
			Author:    item.Author,
			Canonical: item.Canonical,
			Synonyms:  item.Synonyms,
			Priority:  item.Priority,
		})
	}

	return c.JSON(fiber.Map{
		"items":      entries,
		"categories": idx.Categories,
		"defaults":   idx.Defaults,
	})
}
