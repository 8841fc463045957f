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
	"golang.org/x/sync/errgroup"

	"messaging-service/internal/apperrors"
	"messaging-service/internal/fanout"
	"messaging-service/internal/models"
	"messaging-service/internal/observability"
	"messaging-service/internal/repositories"
	"messaging-service/internal/telemetry"
)

// Reopener clears a user's hide before traffic flows into a chat.
type Reopener interface {
	ReopenIfHidden(ctx context.Context, chat models.Chat, userID string) (bool, error)
}

// MessageService owns message state transitions and recipient computation.
type MessageService struct {
	store       repositories.Store
	chats       Reopener
	notifier    Notifier
	audit       telemetry.Auditor
	logger      *slog.Logger
	tracer      trace.Tracer
	concurrency int
}

// NewMessageService wires the message lifecycle engine. concurrency bounds
// the per-chat lookups of LastMessagePerChat.
func NewMessageService(store repositories.Store, chats Reopener, notifier Notifier, audit telemetry.Auditor, logger *slog.Logger, concurrency int) *MessageService {
	if concurrency <= 0 {
		concurrency = 1
	}
	return &MessageService{
		store:       store,
		chats:       chats,
		notifier:    notifier,
		audit:       auditorOrNoop(audit),
		logger:      logger,
		tracer:      otel.Tracer("messaging-service/messages"),
		concurrency: concurrency,
	}
}

// Send persists a TEXT message and pushes it to the recipients plus the
// sender. Members who hid an INDIVIDUAL chat get it reopened first.
func (s *MessageService) Send(ctx context.Context, senderID string, cmd SendMessageCommand) (models.Message, error) {
	ctx, span := s.tracer.Start(ctx, "message.send", trace.WithAttributes(attribute.String("chat.id", cmd.ChatID)))
	defer span.End()

	if err := validateCommand(cmd); err != nil {
		return models.Message{}, err
	}
	if strings.TrimSpace(cmd.Text) == "" {
		return models.Message{}, apperrors.InvalidArgument("text must not be blank")
	}

	chat, err := loadChat(ctx, s.store.Chats, cmd.ChatID)
	if err != nil {
		return models.Message{}, err
	}
	if !chat.IsMember(senderID) {
		return models.Message{}, apperrors.Forbidden("not a member of chat %s", chat.ID)
	}
	recipients := cleanIDs(cmd.Recipients)
	if strangers := lo.Reject(recipients, func(id string, _ int) bool { return chat.IsMember(id) }); len(strangers) > 0 {
		return models.Message{}, apperrors.InvalidArgument("recipients not in chat: %s", strings.Join(strangers, ","))
	}

	if chat.Type == models.ChatTypeIndividual {
		for _, member := range chat.Members() {
			if _, err := s.chats.ReopenIfHidden(ctx, chat, member); err != nil {
				return models.Message{}, err
			}
		}
	}

	msg, err := s.store.Messages.CreateMessage(ctx, models.Message{
		ID:         uuid.NewString(),
		ChatID:     chat.ID,
		AuthorID:   senderID,
		Content:    cmd.Text,
		Type:       models.MessageTypeText,
		Status:     models.StatusSent,
		SeenStatus: models.SeenSent,
	})
	if err != nil {
		return models.Message{}, apperrors.Infra("create message", err)
	}

	to := fanout.NewRecipients(recipients...)
	if to.Len() == 0 {
		to = to.Add(chat.Members()...)
	}
	to = to.Add(senderID)

	observability.IncTransition("message_sent")
	s.notifier.Deliver(ctx, to, models.NewMessageEvent(msg))
	return msg, nil
}

// History returns the messages userID may see, oldest first.
func (s *MessageService) History(ctx context.Context, userID, chatID string) ([]models.Message, error) {
	chat, err := loadChat(ctx, s.store.Chats, chatID)
	if err != nil {
		return nil, err
	}
	if !chat.IsMember(userID) {
		return nil, apperrors.Forbidden("not a member of chat %s", chatID)
	}

	after, hidden, err := historyCutoff(ctx, s.store.Hides, userID, chatID)
	if err != nil {
		return nil, err
	}
	if hidden {
		return []models.Message{}, nil
	}

	msgs, err := s.store.Messages.ListMessages(ctx, chatID, after)
	if err != nil {
		return nil, apperrors.Infra("list messages", err)
	}
	if msgs == nil {
		msgs = []models.Message{}
	}
	return msgs, nil
}

// LastMessagePerChat returns the newest visible message of each chat, in
// input order. Unknown, retired, foreign or empty chats are omitted.
func (s *MessageService) LastMessagePerChat(ctx context.Context, userID string, chatIDs []string) ([]models.Message, error) {
	ctx, span := s.tracer.Start(ctx, "message.last_per_chat", trace.WithAttributes(attribute.Int("chats", len(chatIDs))))
	defer span.End()

	ids := cleanIDs(chatIDs)
	results := make([]*models.Message, len(ids))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for i, chatID := range ids {
		g.Go(func() error {
			msg, ok, err := s.lastVisible(gctx, userID, chatID)
			if err != nil {
				return err
			}
			if ok {
				results[i] = &msg
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return lo.FilterMap(results, func(m *models.Message, _ int) (models.Message, bool) {
		if m == nil {
			return models.Message{}, false
		}
		return *m, true
	}), nil
}

func (s *MessageService) lastVisible(ctx context.Context, userID, chatID string) (models.Message, bool, error) {
	chat, err := loadChat(ctx, s.store.Chats, chatID)
	if errors.Is(err, apperrors.ErrNotFound) {
		return models.Message{}, false, nil
	}
	if err != nil {
		return models.Message{}, false, err
	}
	if !chat.IsMember(userID) {
		return models.Message{}, false, nil
	}

	after, hidden, err := historyCutoff(ctx, s.store.Hides, userID, chatID)
	if err != nil || hidden {
		return models.Message{}, false, err
	}

	msg, err := s.store.Messages.LastMessage(ctx, chatID, after)
	if errors.Is(err, repositories.ErrMessageNotFound) {
		return models.Message{}, false, nil
	}
	if err != nil {
		return models.Message{}, false, apperrors.Infra("last message", err)
	}
	return msg, true, nil
}

// Edit replaces the text of a message authored by actorID. Deleted and
// SYSTEM messages cannot be edited. The author is not notified.
func (s *MessageService) Edit(ctx context.Context, actorID, messageID, text string) (models.Message, error) {
	if err := validateCommand(editMessageCommand{MessageID: messageID, Text: text}); err != nil {
		return models.Message{}, err
	}
	if strings.TrimSpace(text) == "" {
		return models.Message{}, apperrors.InvalidArgument("text must not be blank")
	}

	msg, err := s.getMessage(ctx, messageID)
	if err != nil {
		return models.Message{}, err
	}
	if msg.IsDeleted() {
		return models.Message{}, apperrors.Conflict("message %s is deleted", messageID)
	}
	if msg.Type == models.MessageTypeSystem {
		return models.Message{}, apperrors.Conflict("system messages cannot be edited")
	}
	if msg.AuthorID != actorID {
		return models.Message{}, apperrors.Forbidden("only the author can edit message %s", messageID)
	}

	chat, err := s.chatOf(ctx, msg.ChatID)
	if err != nil {
		return models.Message{}, err
	}

	updated, err := s.store.Messages.UpdateContent(ctx, messageID, text)
	switch {
	case errors.Is(err, repositories.ErrMessageDeleted):
		return models.Message{}, apperrors.Conflict("message %s is deleted", messageID)
	case errors.Is(err, repositories.ErrMessageNotFound):
		return models.Message{}, apperrors.NotFound("message %s", messageID)
	case err != nil:
		return models.Message{}, apperrors.Infra("update message", err)
	}

	observability.IncTransition("message_edited")
	s.notifier.Deliver(ctx, fanout.NewRecipients(chat.Members()...).Without(actorID), models.NewMessageEvent(updated))
	return updated, nil
}

// MarkSeen moves the resolvable ids in chats actorID belongs to to SEEN.
// Unknown or foreign ids are skipped; the call fails only when none resolve.
func (s *MessageService) MarkSeen(ctx context.Context, actorID string, ids []string) ([]models.Message, error) {
	return s.advance(ctx, actorID, ids, models.SeenSeen)
}

// MarkDelivered moves the resolvable ids from SENT to DELIVERED.
func (s *MessageService) MarkDelivered(ctx context.Context, actorID string, ids []string) ([]models.Message, error) {
	return s.advance(ctx, actorID, ids, models.SeenDelivered)
}

func (s *MessageService) advance(ctx context.Context, actorID string, ids []string, status models.SeenStatus) ([]models.Message, error) {
	ids = cleanIDs(ids)
	if len(ids) == 0 {
		return nil, apperrors.InvalidArgument("ids must not be empty")
	}
	resolved, err := s.store.Messages.GetMessagesByIDs(ctx, ids)
	if err != nil {
		return nil, apperrors.Infra("get messages", err)
	}
	chats, err := s.chatsOf(ctx, resolved)
	if err != nil {
		return nil, err
	}
	resolved = lo.Filter(resolved, func(m models.Message, _ int) bool {
		return chats[m.ChatID].IsMember(actorID)
	})
	if len(resolved) == 0 {
		return nil, apperrors.NotFound("no message matches the given ids")
	}

	changed, err := s.store.Messages.AdvanceSeenStatus(ctx, lo.Map(resolved, func(m models.Message, _ int) string { return m.ID }), status)
	if err != nil {
		return nil, apperrors.Infra("update seen status", err)
	}

	observability.IncTransition("message_" + strings.ToLower(string(status)))
	for _, msg := range changed {
		chat := chats[msg.ChatID]
		s.notifier.Deliver(ctx, fanout.NewRecipients(chat.Members()...), models.SeenPatchEvent{
			ID:         msg.ID,
			ChatID:     msg.ChatID,
			SeenStatus: msg.SeenStatus,
		})
	}
	return changed, nil
}

// Delete moves the actor's messages to the terminal DELETE state and pushes
// the placeholder record to every member of each chat. Messages already
// deleted are skipped; a batch with nothing left to delete is a Conflict.
func (s *MessageService) Delete(ctx context.Context, actorID string, ids []string) ([]models.Message, error) {
	ctx, span := s.tracer.Start(ctx, "message.delete")
	defer span.End()

	ids = cleanIDs(ids)
	if len(ids) == 0 {
		return nil, apperrors.InvalidArgument("ids must not be empty")
	}
	resolved, err := s.store.Messages.GetMessagesByIDs(ctx, ids)
	if err != nil {
		return nil, apperrors.Infra("get messages", err)
	}
	if len(resolved) == 0 {
		return nil, apperrors.NotFound("no message matches the given ids")
	}
	for _, msg := range resolved {
		if msg.Type == models.MessageTypeSystem {
			return nil, apperrors.Forbidden("system message %s cannot be deleted", msg.ID)
		}
		if msg.AuthorID != actorID {
			return nil, apperrors.Forbidden("only the author can delete message %s", msg.ID)
		}
	}
	pending := lo.Reject(resolved, func(m models.Message, _ int) bool { return m.IsDeleted() })
	if len(pending) == 0 {
		return nil, apperrors.Conflict("messages are already deleted")
	}
	chats, err := s.chatsOf(ctx, pending)
	if err != nil {
		return nil, err
	}

	pendingIDs := lo.Map(pending, func(m models.Message, _ int) string { return m.ID })
	deleted, err := s.store.Messages.MarkDeleted(ctx, pendingIDs, models.DeletedPlaceholder)
	if err != nil {
		return nil, apperrors.Infra("delete messages", err)
	}
	if len(deleted) == 0 {
		return nil, apperrors.Conflict("messages are already deleted")
	}

	for chatID, group := range lo.GroupBy(deleted, func(m models.Message) string { return m.ChatID }) {
		observability.IncTransition("message_deleted")
		s.audit.Emit(ctx, telemetry.AuditEvent{
			Type:     telemetry.AuditMessagesDeleted,
			ActorID:  actorID,
			ChatID:   chatID,
			Subjects: lo.Map(group, func(m models.Message, _ int) string { return m.ID }),
		})
	}
	for _, msg := range deleted {
		s.notifier.Deliver(ctx, fanout.NewRecipients(chats[msg.ChatID].Members()...), models.NewMessageEvent(msg))
	}
	return deleted, nil
}

func (s *MessageService) getMessage(ctx context.Context, messageID string) (models.Message, error) {
	msg, err := s.store.Messages.GetMessage(ctx, messageID)
	if errors.Is(err, repositories.ErrMessageNotFound) {
		return models.Message{}, apperrors.NotFound("message %s", messageID)
	}
	if err != nil {
		return models.Message{}, apperrors.Infra("get message", err)
	}
	return msg, nil
}

// chatOf loads a message's chat regardless of its active flag.
func (s *MessageService) chatOf(ctx context.Context, chatID string) (models.Chat, error) {
	chat, err := s.store.Chats.GetChat(ctx, chatID)
	if errors.Is(err, repositories.ErrChatNotFound) {
		return models.Chat{}, apperrors.NotFound("chat %s", chatID)
	}
	if err != nil {
		return models.Chat{}, apperrors.Infra("get chat", err)
	}
	return chat, nil
}

func (s *MessageService) chatsOf(ctx context.Context, msgs []models.Message) (map[string]models.Chat, error) {
	chats := make(map[string]models.Chat)
	for _, chatID := range lo.Uniq(lo.Map(msgs, func(m models.Message, _ int) string { return m.ChatID })) {
		chat, err := s.chatOf(ctx, chatID)
		if err != nil {
			return nil, err
		}
		chats[chatID] = chat
	}
	return chats, nil
}
