package services

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"messaging-service/internal/apperrors"
	"messaging-service/internal/fanout"
	"messaging-service/internal/models"
	"messaging-service/internal/repositories"
	"messaging-service/internal/telemetry"
)

// Notifier hands events to the fan-out layer.
type Notifier interface {
	Deliver(ctx context.Context, recipients fanout.Recipients, event models.Event)
}

type noopAuditor struct{}

func (noopAuditor) Emit(context.Context, telemetry.AuditEvent) {}

func auditorOrNoop(a telemetry.Auditor) telemetry.Auditor {
	if a == nil {
		return noopAuditor{}
	}
	return a
}

func newSystemMessage(chatID, authorID, text string) models.Message {
	return models.Message{
		ID:         uuid.NewString(),
		ChatID:     chatID,
		AuthorID:   authorID,
		Content:    text,
		Type:       models.MessageTypeSystem,
		Status:     models.StatusSent,
		SeenStatus: models.SeenSent,
	}
}

// loadChat fetches a chat that is still active. Retired chats are reported
// as not found.
func loadChat(ctx context.Context, chats repositories.ChatRepository, chatID string) (models.Chat, error) {
	chat, err := chats.GetChat(ctx, chatID)
	if errors.Is(err, repositories.ErrChatNotFound) {
		return models.Chat{}, apperrors.NotFound("chat %s", chatID)
	}
	if err != nil {
		return models.Chat{}, apperrors.Infra("get chat", err)
	}
	if !chat.Active {
		return models.Chat{}, apperrors.NotFound("chat %s", chatID)
	}
	return chat, nil
}

// historyCutoff reports how much of a chat's history userID may see: nothing
// while hidden, only messages after the last reactivation once reopened.
func historyCutoff(ctx context.Context, hides repositories.HideRepository, userID, chatID string) (after *time.Time, hidden bool, err error) {
	hide, err := hides.GetHide(ctx, userID, chatID)
	if errors.Is(err, repositories.ErrHideNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, apperrors.Infra("get hide", err)
	}
	if hide.Active {
		return nil, true, nil
	}
	return hide.ReactivatedAt, false, nil
}
