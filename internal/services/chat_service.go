package services

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/samber/lo"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"messaging-service/internal/apperrors"
	"messaging-service/internal/fanout"
	"messaging-service/internal/models"
	"messaging-service/internal/observability"
	"messaging-service/internal/repositories"
	"messaging-service/internal/telemetry"
)

// ChatService owns chat visibility: creation, per-user hides, reopening,
// participant removal and retirement. It holds no state of its own.
type ChatService struct {
	store    repositories.Store
	notifier Notifier
	audit    telemetry.Auditor
	logger   *slog.Logger
	tracer   trace.Tracer
}

// NewChatService wires the chat lifecycle engine. audit may be nil.
func NewChatService(store repositories.Store, notifier Notifier, audit telemetry.Auditor, logger *slog.Logger) *ChatService {
	return &ChatService{
		store:    store,
		notifier: notifier,
		audit:    auditorOrNoop(audit),
		logger:   logger,
		tracer:   otel.Tracer("messaging-service/chats"),
	}
}

// CreateIndividual opens a two-party chat between creatorID and the target.
// When a concurrent request already created the active chat for the pair,
// that chat is returned instead.
func (s *ChatService) CreateIndividual(ctx context.Context, creatorID string, cmd CreateChatCommand) (models.Chat, error) {
	ctx, span := s.tracer.Start(ctx, "chat.create_individual")
	defer span.End()

	if err := validateCommand(cmd); err != nil {
		return models.Chat{}, err
	}
	if cmd.ParticipantID == creatorID {
		return models.Chat{}, apperrors.Conflict("cannot open a chat with yourself")
	}
	if _, err := s.store.Users.GetUser(ctx, cmd.ParticipantID); err != nil {
		if errors.Is(err, repositories.ErrUserNotFound) {
			return models.Chat{}, apperrors.NotFound("user %s", cmd.ParticipantID)
		}
		return models.Chat{}, apperrors.Infra("get user", err)
	}

	chat, err := s.store.Chats.CreateChat(ctx, models.Chat{
		ID:             uuid.NewString(),
		Name:           cmd.Name,
		CreatorID:      creatorID,
		Type:           models.ChatTypeIndividual,
		Active:         true,
		ParticipantIDs: []string{cmd.ParticipantID},
	})
	if errors.Is(err, repositories.ErrDuplicateChat) {
		existing, findErr := s.store.Chats.FindIndividualChat(ctx, creatorID, cmd.ParticipantID)
		if findErr != nil {
			return models.Chat{}, apperrors.Infra("find individual chat", findErr)
		}
		return existing, nil
	}
	if err != nil {
		return models.Chat{}, apperrors.Infra("create chat", err)
	}

	s.announceCreated(ctx, creatorID, chat)
	return chat, nil
}

// GetOrCreateIndividual returns the active chat for the unordered pair,
// reopening it for creatorID if they had hidden it, or creates one.
func (s *ChatService) GetOrCreateIndividual(ctx context.Context, creatorID string, cmd CreateChatCommand) (models.Chat, error) {
	if err := validateCommand(cmd); err != nil {
		return models.Chat{}, err
	}
	if cmd.ParticipantID == creatorID {
		return models.Chat{}, apperrors.Conflict("cannot open a chat with yourself")
	}

	chat, err := s.store.Chats.FindIndividualChat(ctx, creatorID, cmd.ParticipantID)
	switch {
	case err == nil:
		if _, err := s.ReopenIfHidden(ctx, chat, creatorID); err != nil {
			return models.Chat{}, err
		}
		return chat, nil
	case errors.Is(err, repositories.ErrChatNotFound):
		return s.CreateIndividual(ctx, creatorID, cmd)
	default:
		return models.Chat{}, apperrors.Infra("find individual chat", err)
	}
}

// CreateGroup opens a group chat owned by creatorID.
func (s *ChatService) CreateGroup(ctx context.Context, creatorID string, cmd CreateGroupCommand) (models.Chat, error) {
	ctx, span := s.tracer.Start(ctx, "chat.create_group")
	defer span.End()

	if err := validateCommand(cmd); err != nil {
		return models.Chat{}, err
	}
	ids := cleanIDs(cmd.ParticipantIDs)
	if len(ids) == 0 {
		return models.Chat{}, apperrors.InvalidArgument("participant_ids must not be empty")
	}
	if lo.Contains(ids, creatorID) {
		return models.Chat{}, apperrors.InvalidArgument("creator cannot be listed as a participant")
	}
	if err := s.requireUsers(ctx, ids); err != nil {
		return models.Chat{}, err
	}

	chat, err := s.store.Chats.CreateChat(ctx, models.Chat{
		ID:             uuid.NewString(),
		Name:           cmd.Name,
		CreatorID:      creatorID,
		Type:           models.ChatTypeGroup,
		Active:         true,
		ParticipantIDs: ids,
	})
	if err != nil {
		return models.Chat{}, apperrors.Infra("create chat", err)
	}

	s.announceCreated(ctx, creatorID, chat)
	return chat, nil
}

func (s *ChatService) announceCreated(ctx context.Context, creatorID string, chat models.Chat) {
	observability.IncTransition("chat_created")
	s.logger.Info("chat created", "chat_id", chat.ID, "type", chat.Type, "creator_id", creatorID)
	s.audit.Emit(ctx, telemetry.AuditEvent{
		Type:     telemetry.AuditChatCreated,
		ActorID:  creatorID,
		ChatID:   chat.ID,
		Subjects: chat.ParticipantIDs,
	})
	s.notifier.Deliver(ctx, fanout.NewRecipients(chat.Members()...), models.NewChatEvent(chat))
}

// ReopenIfHidden clears userID's active hide on an INDIVIDUAL chat. Only the
// caller that wins the store transition records the join notice, which is
// authored by the rejoining user and sent to every member.
func (s *ChatService) ReopenIfHidden(ctx context.Context, chat models.Chat, userID string) (bool, error) {
	if chat.Type != models.ChatTypeIndividual {
		return false, nil
	}
	_, reopened, err := s.store.Hides.Reactivate(ctx, userID, chat.ID)
	if err != nil {
		return false, apperrors.Infra("reactivate hide", err)
	}
	if !reopened {
		return false, nil
	}

	msg, err := s.store.Messages.CreateMessage(ctx, newSystemMessage(chat.ID, userID, models.SystemTextJoined))
	if err != nil {
		return false, apperrors.Infra("create system message", err)
	}

	observability.IncTransition("chat_reopened")
	s.logger.Info("chat reopened", "chat_id", chat.ID, "user_id", userID)
	s.audit.Emit(ctx, telemetry.AuditEvent{Type: telemetry.AuditChatReopened, ActorID: userID, ChatID: chat.ID})
	s.notifier.Deliver(ctx, fanout.NewRecipients(chat.Members()...), models.NewSystemMessageEvent(msg))
	return true, nil
}

// HideForUser hides the chat for userID, records a leave notice and retires
// the chat once no member has it visible. Hiding an already hidden chat is a
// no-op.
func (s *ChatService) HideForUser(ctx context.Context, userID, chatID string) error {
	ctx, span := s.tracer.Start(ctx, "chat.hide", trace.WithAttributes(attribute.String("chat.id", chatID)))
	defer span.End()

	chat, err := loadChat(ctx, s.store.Chats, chatID)
	if err != nil {
		return err
	}
	if !chat.IsMember(userID) {
		return apperrors.NotFound("chat %s", chatID)
	}

	existing, err := s.store.Hides.GetHide(ctx, userID, chatID)
	switch {
	case err == nil && existing.Active:
		return nil
	case err != nil && !errors.Is(err, repositories.ErrHideNotFound):
		return apperrors.Infra("get hide", err)
	}

	notify := fanout.NewRecipients(chat.Members()...)
	if _, err := s.store.Hides.UpsertHide(ctx, userID, chatID); err != nil {
		return apperrors.Infra("upsert hide", err)
	}
	msg, err := s.store.Messages.CreateMessage(ctx, newSystemMessage(chatID, userID, models.SystemTextLeft))
	if err != nil {
		return apperrors.Infra("create system message", err)
	}
	if _, err := s.retireIfAbandoned(ctx, chat); err != nil {
		return err
	}

	observability.IncTransition("chat_hidden")
	s.audit.Emit(ctx, telemetry.AuditEvent{Type: telemetry.AuditChatHidden, ActorID: userID, ChatID: chatID})
	s.notifier.Deliver(ctx, notify, models.NewSystemMessageEvent(msg))
	return nil
}

// RemoveParticipants disconnects ids from a group. The creator may remove
// anyone; other members may only remove themselves.
func (s *ChatService) RemoveParticipants(ctx context.Context, actorID, chatID string, ids []string) (models.Chat, error) {
	ctx, span := s.tracer.Start(ctx, "chat.remove_participants", trace.WithAttributes(attribute.String("chat.id", chatID)))
	defer span.End()

	ids = cleanIDs(ids)
	if len(ids) == 0 {
		return models.Chat{}, apperrors.InvalidArgument("ids must not be empty")
	}
	chat, err := loadChat(ctx, s.store.Chats, chatID)
	if err != nil {
		return models.Chat{}, err
	}
	if chat.Type != models.ChatTypeGroup {
		return models.Chat{}, apperrors.Conflict("participants can only be removed from groups")
	}
	leaving := len(ids) == 1 && ids[0] == actorID
	if actorID != chat.CreatorID && !leaving {
		return models.Chat{}, apperrors.Forbidden("only the group creator can remove other participants")
	}
	if unknown := lo.Reject(ids, func(id string, _ int) bool { return chat.HasParticipant(id) }); len(unknown) > 0 {
		return models.Chat{}, apperrors.InvalidArgument("not participants: %s", strings.Join(unknown, ","))
	}

	notify := fanout.NewRecipients(chat.Members()...)
	updated, err := s.store.Chats.RemoveParticipants(ctx, chatID, ids)
	if err != nil {
		return models.Chat{}, apperrors.Infra("remove participants", err)
	}

	notices := make([]models.Message, 0, len(ids))
	for _, id := range ids {
		msg, err := s.store.Messages.CreateMessage(ctx, newSystemMessage(chatID, id, models.SystemTextLeft))
		if err != nil {
			return models.Chat{}, apperrors.Infra("create system message", err)
		}
		notices = append(notices, msg)
	}
	retired, err := s.retireIfAbandoned(ctx, updated)
	if err != nil {
		return models.Chat{}, err
	}
	if retired {
		updated.Active = false
	}

	observability.IncTransition("participants_removed")
	s.audit.Emit(ctx, telemetry.AuditEvent{
		Type:     telemetry.AuditParticipantsRemoved,
		ActorID:  actorID,
		ChatID:   chatID,
		Subjects: ids,
	})
	for _, msg := range notices {
		s.notifier.Deliver(ctx, notify, models.NewSystemMessageEvent(msg))
	}
	s.notifier.Deliver(ctx, notify, models.NewChatEvent(updated))
	return updated, nil
}

// UpdateGroup renames a group and adds participants. Ids already in the chat
// (including the creator) are ignored.
func (s *ChatService) UpdateGroup(ctx context.Context, actorID, chatID string, cmd UpdateGroupCommand) (models.Chat, error) {
	if err := validateCommand(cmd); err != nil {
		return models.Chat{}, err
	}
	name := strings.TrimSpace(cmd.Name)
	if name == "" && len(cleanIDs(cmd.ParticipantIDs)) == 0 {
		return models.Chat{}, apperrors.InvalidArgument("nothing to update")
	}

	chat, err := loadChat(ctx, s.store.Chats, chatID)
	if err != nil {
		return models.Chat{}, err
	}
	if chat.Type != models.ChatTypeGroup {
		return models.Chat{}, apperrors.Conflict("chat %s is not a group", chatID)
	}
	if !chat.IsMember(actorID) {
		return models.Chat{}, apperrors.Forbidden("not a member of chat %s", chatID)
	}

	add := lo.Reject(cleanIDs(cmd.ParticipantIDs), func(id string, _ int) bool { return chat.IsMember(id) })
	if err := s.requireUsers(ctx, add); err != nil {
		return models.Chat{}, err
	}

	updated, err := s.store.Chats.UpdateChat(ctx, chatID, name, add)
	if errors.Is(err, repositories.ErrChatNotFound) {
		return models.Chat{}, apperrors.NotFound("chat %s", chatID)
	}
	if err != nil {
		return models.Chat{}, apperrors.Infra("update chat", err)
	}

	s.audit.Emit(ctx, telemetry.AuditEvent{Type: telemetry.AuditGroupUpdated, ActorID: actorID, ChatID: chatID, Subjects: add})
	s.notifier.Deliver(ctx, fanout.NewRecipients(updated.Members()...), models.NewChatEvent(updated))
	return updated, nil
}

// ListChats returns the active chats userID has not hidden, optionally
// filtered by a case-insensitive name substring.
func (s *ChatService) ListChats(ctx context.Context, userID, search string) ([]models.Chat, error) {
	chats, err := s.store.Chats.ListChatsForUser(ctx, userID, true)
	if err != nil {
		return nil, apperrors.Infra("list chats", err)
	}
	hides, err := s.store.Hides.ListActiveHidesForUser(ctx, userID)
	if err != nil {
		return nil, apperrors.Infra("list hides", err)
	}
	hidden := lo.SliceToMap(hides, func(h models.ChatHide) (string, struct{}) {
		return h.ChatID, struct{}{}
	})
	needle := strings.ToLower(strings.TrimSpace(search))

	visible := lo.Filter(chats, func(c models.Chat, _ int) bool {
		if _, ok := hidden[c.ID]; ok {
			return false
		}
		return needle == "" || strings.Contains(strings.ToLower(c.Name), needle)
	})
	return visible, nil
}

// retireIfAbandoned retires the chat when every current member has an
// active hide. The store transition is conditional, so concurrent callers
// retire it once.
func (s *ChatService) retireIfAbandoned(ctx context.Context, chat models.Chat) (bool, error) {
	hides, err := s.store.Hides.ListActiveHides(ctx, chat.ID)
	if err != nil {
		return false, apperrors.Infra("list hides", err)
	}
	hidden := lo.Map(hides, func(h models.ChatHide, _ int) string { return h.UserID })
	if !lo.Every(hidden, chat.Members()) {
		return false, nil
	}

	retired, err := s.store.Chats.Retire(ctx, chat.ID)
	if err != nil {
		return false, apperrors.Infra("retire chat", err)
	}
	if retired {
		observability.IncTransition("chat_retired")
		s.logger.Info("chat retired", "chat_id", chat.ID)
		s.audit.Emit(ctx, telemetry.AuditEvent{Type: telemetry.AuditChatRetired, ChatID: chat.ID})
	}
	return retired, nil
}

func (s *ChatService) requireUsers(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	found, err := s.store.Users.ExistingUserIDs(ctx, ids)
	if err != nil {
		return apperrors.Infra("lookup users", err)
	}
	if missing := lo.Without(ids, found...); len(missing) > 0 {
		return apperrors.NotFound("users %s", strings.Join(missing, ","))
	}
	return nil
}
