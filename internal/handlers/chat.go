package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"messaging-service/internal/models"
	"messaging-service/internal/services"
)

// ChatService is the chat lifecycle surface used by the HTTP layer.
type ChatService interface {
	CreateIndividual(ctx context.Context, creatorID string, cmd services.CreateChatCommand) (models.Chat, error)
	GetOrCreateIndividual(ctx context.Context, creatorID string, cmd services.CreateChatCommand) (models.Chat, error)
	CreateGroup(ctx context.Context, creatorID string, cmd services.CreateGroupCommand) (models.Chat, error)
	UpdateGroup(ctx context.Context, actorID, chatID string, cmd services.UpdateGroupCommand) (models.Chat, error)
	RemoveParticipants(ctx context.Context, actorID, chatID string, ids []string) (models.Chat, error)
	HideForUser(ctx context.Context, userID, chatID string) error
	ListChats(ctx context.Context, userID, search string) ([]models.Chat, error)
}

// ChatHandler manages chat endpoints.
type ChatHandler struct {
	chats  ChatService
	logger *slog.Logger
}

// NewChatHandler builds a ChatHandler.
func NewChatHandler(chats ChatService, logger *slog.Logger) *ChatHandler {
	return &ChatHandler{chats: chats, logger: logger}
}

// ListChats returns the chats visible to the authenticated user.
func (h *ChatHandler) ListChats(c *gin.Context) {
	chats, err := h.chats.ListChats(c.Request.Context(), userIDFromContext(c), c.Query("search"))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	if chats == nil {
		chats = []models.Chat{}
	}
	c.JSON(http.StatusOK, gin.H{"chats": chats})
}

// CreateChat opens a two-party chat.
func (h *ChatHandler) CreateChat(c *gin.Context) {
	var cmd services.CreateChatCommand
	if err := c.ShouldBindJSON(&cmd); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	chat, err := h.chats.CreateIndividual(c.Request.Context(), userIDFromContext(c), cmd)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, chat)
}

// GetOrCreateChat returns the existing two-party chat or creates it.
func (h *ChatHandler) GetOrCreateChat(c *gin.Context) {
	var cmd services.CreateChatCommand
	if err := c.ShouldBindJSON(&cmd); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	chat, err := h.chats.GetOrCreateIndividual(c.Request.Context(), userIDFromContext(c), cmd)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, chat)
}

// CreateGroup opens a group chat.
func (h *ChatHandler) CreateGroup(c *gin.Context) {
	var cmd services.CreateGroupCommand
	if err := c.ShouldBindJSON(&cmd); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	chat, err := h.chats.CreateGroup(c.Request.Context(), userIDFromContext(c), cmd)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, chat)
}

// UpdateGroup renames a group or adds participants.
func (h *ChatHandler) UpdateGroup(c *gin.Context) {
	var cmd services.UpdateGroupCommand
	if err := c.ShouldBindJSON(&cmd); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	chat, err := h.chats.UpdateGroup(c.Request.Context(), userIDFromContext(c), c.Param("chat_id"), cmd)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, chat)
}

// RemoveParticipants drops participants from a group.
func (h *ChatHandler) RemoveParticipants(c *gin.Context) {
	var req struct {
		ParticipantIDs []string `json:"participant_ids" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	chat, err := h.chats.RemoveParticipants(c.Request.Context(), userIDFromContext(c), c.Param("chat_id"), req.ParticipantIDs)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, chat)
}

// HideChat hides a chat for the authenticated user only.
func (h *ChatHandler) HideChat(c *gin.Context) {
	if err := h.chats.HideForUser(c.Request.Context(), userIDFromContext(c), c.Param("chat_id")); err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.Status(http.StatusNoContent)
}
