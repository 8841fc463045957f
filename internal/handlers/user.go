package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
)

// UserService is the account surface used by the HTTP layer.
type UserService interface {
	Delete(ctx context.Context, userID string) error
}

// UserHandler manages account endpoints.
type UserHandler struct {
	users  UserService
	logger *slog.Logger
}

func NewUserHandler(users UserService, logger *slog.Logger) *UserHandler {
	return &UserHandler{users: users, logger: logger}
}

// DeleteMe removes the authenticated user's account.
func (h *UserHandler) DeleteMe(c *gin.Context) {
	if err := h.users.Delete(c.Request.Context(), userIDFromContext(c)); err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.Status(http.StatusNoContent)
}
