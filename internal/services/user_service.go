package services

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/samber/lo"

	"messaging-service/internal/apperrors"
	"messaging-service/internal/fanout"
	"messaging-service/internal/models"
	"messaging-service/internal/observability"
	"messaging-service/internal/repositories"
	"messaging-service/internal/telemetry"
)

// UserService keeps the local account table in step with the identity
// provider. An account exists once its owner has authenticated.
type UserService struct {
	store    repositories.Store
	chats    *ChatService
	notifier Notifier
	audit    telemetry.Auditor
	logger   *slog.Logger
}

func NewUserService(store repositories.Store, chats *ChatService, notifier Notifier, audit telemetry.Auditor, logger *slog.Logger) *UserService {
	return &UserService{
		store:    store,
		chats:    chats,
		notifier: notifier,
		audit:    auditorOrNoop(audit),
		logger:   logger,
	}
}

// Ensure registers userID on first sight and refreshes its display name and
// email when the token carries them.
func (s *UserService) Ensure(ctx context.Context, userID, name, email string) error {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return apperrors.InvalidArgument("user id must not be empty")
	}
	if _, err := s.store.Users.UpsertUser(ctx, models.User{
		ID:    userID,
		Name:  strings.TrimSpace(name),
		Email: strings.TrimSpace(email),
	}); err != nil {
		return apperrors.Infra("upsert user", err)
	}
	return nil
}

// Delete removes the account. The user drops out of every participant list;
// chats they created count them as hidden, so a chat nobody else still sees
// is retired. Remaining members get the updated chat.
func (s *UserService) Delete(ctx context.Context, userID string) error {
	if _, err := s.store.Users.GetUser(ctx, userID); err != nil {
		if errors.Is(err, repositories.ErrUserNotFound) {
			return apperrors.NotFound("user %s", userID)
		}
		return apperrors.Infra("get user", err)
	}

	chats, err := s.store.Chats.ListChatsForUser(ctx, userID, true)
	if err != nil {
		return apperrors.Infra("list chats", err)
	}
	for _, chat := range lo.Filter(chats, func(c models.Chat, _ int) bool { return c.CreatorID == userID }) {
		if _, err := s.store.Hides.UpsertHide(ctx, userID, chat.ID); err != nil {
			return apperrors.Infra("upsert hide", err)
		}
	}

	if err := s.store.Users.DeleteUser(ctx, userID); err != nil {
		if errors.Is(err, repositories.ErrUserNotFound) {
			return apperrors.NotFound("user %s", userID)
		}
		return apperrors.Infra("delete user", err)
	}

	for _, before := range chats {
		after, err := s.store.Chats.GetChat(ctx, before.ID)
		if err != nil {
			return apperrors.Infra("get chat", err)
		}
		retired, err := s.chats.retireIfAbandoned(ctx, after)
		if err != nil {
			return err
		}
		if retired {
			after.Active = false
		}
		notify := fanout.NewRecipients(before.Members()...).Without(userID)
		s.notifier.Deliver(ctx, notify, models.NewChatEvent(after))
	}

	observability.IncTransition("user_deleted")
	s.logger.Info("user deleted", "user_id", userID, "chats", len(chats))
	s.audit.Emit(ctx, telemetry.AuditEvent{
		Type:     telemetry.AuditUserDeleted,
		ActorID:  userID,
		Subjects: lo.Map(chats, func(c models.Chat, _ int) string { return c.ID }),
	})
	return nil
}
