package handlers

import (
	"context"
	"time"

	"github.com/gofiber/websocket/v2"
	"go.uber.org/zap"

	"github.com/kovaldeep/backend/internal/retrieval"
	"github.com/kovaldeep/backend/pkg/logger"
)

// WebSocketHandler streams retrieval results chunk by chunk so an
// interactive client can render evidence as it arrives instead of waiting
// for the full response.
type WebSocketHandler struct {
	service *retrieval.Service
}

func NewWebSocketHandler(service *retrieval.Service) *WebSocketHandler {
	return &WebSocketHandler{
		service: service,
	}
}

func (h *WebSocketHandler) HandleConnection(c *websocket.Conn) {
	logger.Info("WebSocket connection established")

	defer func() {
		c.Close()
		logger.Info("WebSocket connection closed")
	}()

	for {
		var msg struct {
			Type      string `json:"type"`
			Query     string `json:"query"`
			Namespace string `json:"namespace"`
			TopK      int    `json:"top_k"`
		}

		if err := c.ReadJSON(&msg); err != nil {
			logger.Debug("WebSocket read ended", zap.Error(err))
			break
		}

		if msg.Type != "query" || msg.Query == "" {
			h.sendError(c, "Expected a query message with non-empty query")
			continue
		}

		if err := h.streamResult(c, msg.Query, msg.Namespace, msg.TopK); err != nil {
			logger.Error("Failed to stream retrieval result", zap.Error(err))
			h.sendError(c, "Failed to process query")
		}
	}
}

func (h *WebSocketHandler) streamResult(c *websocket.Conn, query, namespace string, topK int) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := h.send(c, map[string]interface{}{
		"type":  "status",
		"state": "retrieving",
	}); err != nil {
		return err
	}

	result, err := h.service.Query(ctx, query, retrieval.Options{
		TopK:      topK,
		Namespace: namespace,
	})
	if err != nil {
		return err
	}

	for i, chunk := range result.Chunks {
		err := h.send(c, map[string]interface{}{
			"type":  "chunk",
			"index": i,
			"text":  chunk,
			"score": result.Scores[i],
		})
		if err != nil {
			return err
		}
	}

	return h.send(c, map[string]interface{}{
		"type":         "complete",
		"chunks":       len(result.Chunks),
		"verbatim":     result.Verbatim,
		"bot_must_say": result.BotMustSay,
	})
}

func (h *WebSocketHandler) send(c *websocket.Conn, msg map[string]interface{}) error {
	return c.WriteJSON(msg)
}

func (h *WebSocketHandler) sendError(c *websocket.Conn, errorMsg string) {
	c.WriteJSON(map[string]interface{}{
		"type":  "error",
		"error": errorMsg,
	})
}
