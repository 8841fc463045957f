package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"messaging-service/internal/models"
	"messaging-service/internal/services"
)

// MessageService is the message lifecycle surface used by the HTTP layer.
type MessageService interface {
	Send(ctx context.Context, senderID string, cmd services.SendMessageCommand) (models.Message, error)
	History(ctx context.Context, userID, chatID string) ([]models.Message, error)
	LastMessagePerChat(ctx context.Context, userID string, chatIDs []string) ([]models.Message, error)
	Edit(ctx context.Context, actorID, messageID, text string) (models.Message, error)
	MarkSeen(ctx context.Context, actorID string, ids []string) ([]models.Message, error)
	MarkDelivered(ctx context.Context, actorID string, ids []string) ([]models.Message, error)
	Delete(ctx context.Context, actorID string, ids []string) ([]models.Message, error)
}

type idsRequest struct {
	IDs []string `json:"ids" binding:"required"`
}

// MessageHandler manages message endpoints.
type MessageHandler struct {
	messages MessageService
	logger   *slog.Logger
}

// NewMessageHandler builds a MessageHandler.
func NewMessageHandler(messages MessageService, logger *slog.Logger) *MessageHandler {
	return &MessageHandler{messages: messages, logger: logger}
}

// SendMessage posts a message into a chat.
func (h *MessageHandler) SendMessage(c *gin.Context) {
	var cmd services.SendMessageCommand
	if err := c.ShouldBindJSON(&cmd); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	msg, err := h.messages.Send(c.Request.Context(), userIDFromContext(c), cmd)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, msg)
}

// GetChatMessages returns the chat history visible to the user.
func (h *MessageHandler) GetChatMessages(c *gin.Context) {
	msgs, err := h.messages.History(c.Request.Context(), userIDFromContext(c), c.Param("chat_id"))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"messages": msgs})
}

// LastMessages returns the newest visible message of each requested chat.
func (h *MessageHandler) LastMessages(c *gin.Context) {
	var req struct {
		ChatIDs []string `json:"chat_ids" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	msgs, err := h.messages.LastMessagePerChat(c.Request.Context(), userIDFromContext(c), req.ChatIDs)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	if msgs == nil {
		msgs = []models.Message{}
	}
	c.JSON(http.StatusOK, gin.H{"messages": msgs})
}

// EditMessage replaces the text of the user's message.
func (h *MessageHandler) EditMessage(c *gin.Context) {
	var req struct {
		Text string `json:"text" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	msg, err := h.messages.Edit(c.Request.Context(), userIDFromContext(c), c.Param("message_id"), req.Text)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, msg)
}

// MarkSeen flags messages as read.
func (h *MessageHandler) MarkSeen(c *gin.Context) {
	h.advance(c, h.messages.MarkSeen)
}

// MarkDelivered flags messages as delivered.
func (h *MessageHandler) MarkDelivered(c *gin.Context) {
	h.advance(c, h.messages.MarkDelivered)
}

func (h *MessageHandler) advance(c *gin.Context, apply func(context.Context, string, []string) ([]models.Message, error)) {
	var req idsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	changed, err := apply(c.Request.Context(), userIDFromContext(c), req.IDs)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"updated": len(changed)})
}

// DeleteMessages deletes the user's messages for everyone.
func (h *MessageHandler) DeleteMessages(c *gin.Context) {
	var req idsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	deleted, err := h.messages.Delete(c.Request.Context(), userIDFromContext(c), req.IDs)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"messages": deleted})
}
