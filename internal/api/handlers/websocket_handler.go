package handlers

import (
	"context"
	"errors"

	"github.com/gofiber/websocket/v2"
	"go.uber.org/zap"

	"github.com/quality-agent/backend/internal/pipeline"
	"github.com/quality-agent/backend/internal/session"
	"github.com/quality-agent/backend/pkg/logger"
)

type WebSocketHandler struct {
	engine *pipeline.Engine
}

func NewWebSocketHandler(engine *pipeline.Engine) *WebSocketHandler {
	return &WebSocketHandler{
		engine: engine,
	}
}

// HandleConnection runs the chat loop for one websocket client. Each inbound
// message is a full turn; the response carries the same contract as the REST
// endpoint.
func (h *WebSocketHandler) HandleConnection(c *websocket.Conn) {
	logger.Info("WebSocket connection established")

	defer func() {
		c.Close()
		logger.Info("WebSocket connection closed")
	}()

	for {
		var msg struct {
			Type      string `json:"type"`
			SessionID string `json:"session_id"`
			Message   string `json:"message"`
		}

		if err := c.ReadJSON(&msg); err != nil {
			logger.Debug("WebSocket read ended", zap.Error(err))
			break
		}

		if msg.Type != "chat" {
			continue
		}
		if msg.SessionID == "" || msg.Message == "" {
			h.sendError(c, "session_id와 message는 필수입니다.")
			continue
		}

		resp, err := h.engine.ProcessTurn(context.Background(), msg.SessionID, msg.Message)
		if err != nil {
			if errors.Is(err, session.ErrNotFound) {
				h.sendError(c, "세션을 찾을 수 없습니다.")
				continue
			}
			logger.Error("WebSocket turn failed", zap.Error(err))
			h.sendError(c, "메시지 처리에 실패했습니다.")
			continue
		}

		if err := c.WriteJSON(map[string]interface{}{
			"type":     "turn",
			"message":  resp.Message,
			"response": resp,
		}); err != nil {
			logger.Error("Failed to write WebSocket response", zap.Error(err))
			break
		}
	}
}

func (h *WebSocketHandler) sendError(c *websocket.Conn, errorMsg string) {
	msg := map[string]interface{}{
		"type":  "error",
		"error": errorMsg,
	}

	c.WriteJSON(msg)
}
