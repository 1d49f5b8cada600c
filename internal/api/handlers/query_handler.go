package handlers

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kovaldeep/backend/internal/retrieval"
	"github.com/kovaldeep/backend/internal/storage/models"
	"github.com/kovaldeep/backend/internal/storage/sqlite"
	"github.com/kovaldeep/backend/pkg/logger"
)

type QueryHandler struct {
	service *retrieval.Service
	db      *sqlite.Client
}

func NewQueryHandler(service *retrieval.Service, db *sqlite.Client) *QueryHandler {
	return &QueryHandler{
		service: service,
		db:      db,
	}
}

type queryRequest struct {
	Query           string  `json:"query"`
	UserID          string  `json:"user_id"`
	TopK            int     `json:"top_k"`
	Threshold       float64 `json:"threshold"`
	Confidence      float64 `json:"confidence"`
	Namespace       string  `json:"namespace"`
	IncludeMetadata bool    `json:"include_metadata"`
}

func (h *QueryHandler) HandleQuery(c *fiber.Ctx) error {
	var req queryRequest
	if err := c.BodyParser(&req); err != nil {
		logger.Error("Failed to parse request body", zap.Error(err))
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	if req.Query == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Query is required",
		})
	}

	start := time.Now()

	result, err := h.service.Query(c.Context(), req.Query, retrieval.Options{
		TopK:            req.TopK,
		Threshold:       req.Threshold,
		Confidence:      req.Confidence,
		Namespace:       req.Namespace,
		IncludeMetadata: req.IncludeMetadata,
	})
	if err != nil {
		logger.Error("Failed to process query", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to process query",
		})
	}

	latency := time.Since(start).Milliseconds()
	queryID := uuid.New().String()

	h.recordQuery(queryID, req.UserID, req.Query, result, latency)

	return c.JSON(fiber.Map{
		"id":           queryID,
		"query":        req.Query,
		"chunks":       result.Chunks,
		"scores":       result.Scores,
		"metadata":     result.Metadata,
		"verbatim":     result.Verbatim,
		"bot_must_say": result.BotMustSay,
		"latency_ms":   latency,
	})
}

func (h *QueryHandler) HandleMultiQuery(c *fiber.Ctx) error {
	var req struct {
		Query      string   `json:"query"`
		Namespaces []string `json:"namespaces"`
		Threshold  float64  `json:"threshold"`
	}

	if err := c.BodyParser(&req); err != nil {
		logger.Error("Failed to parse request body", zap.Error(err))
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	if req.Query == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Query is required",
		})
	}
	if len(req.Namespaces) == 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "At least one namespace is required",
		})
	}

	results, err := h.service.QueryNamespaces(c.Context(), req.Query, req.Namespaces, retrieval.Options{
		Threshold: req.Threshold,
	})
	if err != nil {
		logger.Error("Failed to process multi-namespace query", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to process query",
		})
	}

	return c.JSON(fiber.Map{
		"query":   req.Query,
		"results": results,
	})
}

func (h *QueryHandler) GetQueryHistory(c *fiber.Ctx) error {
	userID := c.Query("user_id")
	if userID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "user_id is required",
		})
	}

	limit := c.QueryInt("limit", 20)
	if limit <= 0 || limit > 100 {
		limit = 20
	}

	history, err := h.db.GetQueryHistory(userID, limit)
	if err != nil {
		logger.Error("Failed to fetch query history", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to fetch query history",
		})
	}

	return c.JSON(fiber.Map{
		"history": history,
	})
}

func (h *QueryHandler) HandleFeedback(c *fiber.Ctx) error {
	var req struct {
		QueryID       string `json:"query_id"`
		Helpful       bool   `json:"helpful"`
		IssueCategory string `json:"issue_category"`
		Comment       string `json:"comment"`
	}

	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	if req.QueryID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "query_id is required",
		})
	}

	feedback := &models.Feedback{
		QueryID:       req.QueryID,
		Helpful:       req.Helpful,
		IssueCategory: req.IssueCategory,
		Comment:       req.Comment,
	}
	if err := h.db.StoreFeedback(feedback); err != nil {
		logger.Error("Failed to store feedback", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to store feedback",
		})
	}

	return c.JSON(fiber.Map{
		"message": "Feedback recorded",
	})
}

// recordQuery writes the history row best effort; a bookkeeping failure
// never fails the query itself.
func (h *QueryHandler) recordQuery(queryID, userID, query string, result *retrieval.Result, latencyMS int64) {
	record := &models.QueryRecord{
		ID:         queryID,
		UserID:     userID,
		QueryText:  query,
		ChunkCount: len(result.Chunks),
		Verbatim:   result.Verbatim,
		LatencyMS:  int(latencyMS),
		CreatedAt:  time.Now(),
	}
	if len(result.Scores) > 0 {
		record.TopScore = result.Scores[0]
	}
	if result.IndexMatch != nil {
		record.MatchedItem = result.IndexMatch.Item.ID
	}

	if err := h.db.InsertQueryRecord(record); err != nil {
		logger.Warn("Failed to record query history", zap.Error(err))
	}
}
