package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"chatforge/internal/ai"
	"chatforge/internal/app"
	"chatforge/internal/transport/http/response"
)

type ChatHandler struct {
	chatService *app.ChatService
}

type ChatRequest struct {
	Input string `json:"input" binding:"required"`
}

func NewChatHandler(chatService *app.ChatService) *ChatHandler {
	return &ChatHandler{chatService: chatService}
}

// SendMessage serves one chat turn. With ?stream=1 the reply is newline
// delimited JSON events (sources, then tokens); otherwise the materialized
// answer is returned in one envelope.
func (h *ChatHandler) SendMessage(c *gin.Context) {
	var req ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid request payload")
		return
	}

	in := app.TurnInput{
		ConfigID:  c.Param("config_id"),
		SessionID: c.Param("session_id"),
		Input:     req.Input,
		Identity:  identityFromContext(c),
	}

	if c.Query("stream") == "1" {
		h.stream(c, in)
		return
	}

	answer, sources, err := h.chatService.Answer(c.Request.Context(), in)
	if err != nil {
		mapChatError(c, err)
		return
	}

	response.OK(c, gin.H{
		"response": answer,
		"sources":  sources,
	})
}

func (h *ChatHandler) stream(c *gin.Context, in app.TurnInput) {
	flusher, ok := c.Writer.(http.Flusher)
	if !ok {
		response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "stream not supported")
		return
	}

	started := false
	emit := func(event app.StreamEvent) error {
		if !started {
			started = true
			c.Header("Content-Type", "application/x-ndjson")
			c.Header("Cache-Control", "no-cache")
			c.Header("X-Accel-Buffering", "no")
			c.Status(http.StatusOK)
		}
		line, err := json.Marshal(event)
		if err != nil {
			return err
		}
		if _, err := c.Writer.Write(append(line, '\n')); err != nil {
			return err
		}
		flusher.Flush()
		return nil
	}

	if err := h.chatService.StreamTurn(c.Request.Context(), in, emit); err != nil && !started {
		mapChatError(c, err)
	}
}

func (h *ChatHandler) GetHistory(c *gin.Context) {
	turns, err := h.chatService.History(c.Request.Context(), c.Param("session_id"))
	if err != nil {
		mapChatError(c, err)
		return
	}
	response.OK(c, gin.H{"history": turns})
}

func (h *ChatHandler) ListSessions(c *gin.Context) {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid token payload")
		return
	}

	sessions, err := h.chatService.ListSessions(c.Request.Context(), userID, c.Param("config_id"))
	if err != nil {
		mapChatError(c, err)
		return
	}
	response.OK(c, gin.H{"sessions": sessions})
}

func mapChatError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, app.ErrInvalidInput):
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, err.Error())
	case errors.Is(err, app.ErrUnauthorized):
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "authentication required")
	case errors.Is(err, app.ErrForbidden):
		response.Error(c, http.StatusForbidden, response.CodeForbidden, "this chatbot is private")
	case errors.Is(err, app.ErrConfigNotFound):
		response.Error(c, http.StatusNotFound, response.CodeConfigNotFound, "config not found")
	case errors.Is(err, ai.ErrMissingCredential):
		response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, err.Error())
	default:
		response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "chat failed")
	}
}
