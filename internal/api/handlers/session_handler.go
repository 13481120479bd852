package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/quality-agent/backend/internal/session"
)

type SessionHandler struct {
	sessions *session.Store
}

func NewSessionHandler(sessions *session.Store) *SessionHandler {
	return &SessionHandler{
		sessions: sessions,
	}
}

func (h *SessionHandler) CreateSession(c *fiber.Ctx) error {
	sess := h.sessions.Create()

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"session_id": sess.ID,
		"created_at": sess.CreatedAt,
	})
}

func (h *SessionHandler) ListSessions(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"sessions": h.sessions.List(),
	})
}

func (h *SessionHandler) GetSession(c *fiber.Ctx) error {
	sess, err := h.sessions.Get(c.Params("id"))
	if err != nil {
		return sessionError(c, err)
	}

	history, err := h.sessions.History(sess.ID)
	if err != nil {
		return sessionError(c, err)
	}

	return c.JSON(fiber.Map{
		"session_id":    sess.ID,
		"current_state": sess.State,
		"created_at":    sess.CreatedAt,
		"chat_history":  history,
	})
}

func (h *SessionHandler) ResetSession(c *fiber.Ctx) error {
	if err := h.sessions.Reset(c.Params("id")); err != nil {
		return sessionError(c, err)
	}

	return c.JSON(fiber.Map{
		"message": "대화가 초기화되었습니다.",
	})
}

func (h *SessionHandler) DeleteSession(c *fiber.Ctx) error {
	if err := h.sessions.Delete(c.Params("id")); err != nil {
		return sessionError(c, err)
	}

	return c.JSON(fiber.Map{
		"message": "대화가 삭제되었습니다.",
	})
}

func sessionError(c *fiber.Ctx, err error) error {
	if errors.Is(err, session.ErrNotFound) {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Session not found",
		})
	}
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
		"error": "Session operation failed",
	})
}
