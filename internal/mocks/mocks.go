package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"messaging-service/internal/models"
	"messaging-service/internal/services"
	"messaging-service/internal/telemetry"
)

type ChatServiceMock struct {
	mock.Mock
}

func chatResult(args mock.Arguments) (models.Chat, error) {
	var chat models.Chat
	if val := args.Get(0); val != nil {
		chat = val.(models.Chat)
	}
	return chat, args.Error(1)
}

func messagesResult(args mock.Arguments) ([]models.Message, error) {
	var list []models.Message
	if val := args.Get(0); val != nil {
		list = val.([]models.Message)
	}
	return list, args.Error(1)
}

func (m *ChatServiceMock) CreateIndividual(ctx context.Context, creatorID string, cmd services.CreateChatCommand) (models.Chat, error) {
	return chatResult(m.Called(ctx, creatorID, cmd))
}

func (m *ChatServiceMock) GetOrCreateIndividual(ctx context.Context, creatorID string, cmd services.CreateChatCommand) (models.Chat, error) {
	return chatResult(m.Called(ctx, creatorID, cmd))
}

func (m *ChatServiceMock) CreateGroup(ctx context.Context, creatorID string, cmd services.CreateGroupCommand) (models.Chat, error) {
	return chatResult(m.Called(ctx, creatorID, cmd))
}

func (m *ChatServiceMock) UpdateGroup(ctx context.Context, actorID, chatID string, cmd services.UpdateGroupCommand) (models.Chat, error) {
	return chatResult(m.Called(ctx, actorID, chatID, cmd))
}

func (m *ChatServiceMock) RemoveParticipants(ctx context.Context, actorID, chatID string, ids []string) (models.Chat, error) {
	return chatResult(m.Called(ctx, actorID, chatID, ids))
}

func (m *ChatServiceMock) HideForUser(ctx context.Context, userID, chatID string) error {
	args := m.Called(ctx, userID, chatID)
	return args.Error(0)
}

func (m *ChatServiceMock) ListChats(ctx context.Context, userID, search string) ([]models.Chat, error) {
	args := m.Called(ctx, userID, search)
	var list []models.Chat
	if val := args.Get(0); val != nil {
		list = val.([]models.Chat)
	}
	return list, args.Error(1)
}

type MessageServiceMock struct {
	mock.Mock
}

func (m *MessageServiceMock) Send(ctx context.Context, senderID string, cmd services.SendMessageCommand) (models.Message, error) {
	args := m.Called(ctx, senderID, cmd)
	var msg models.Message
	if val := args.Get(0); val != nil {
		msg = val.(models.Message)
	}
	return msg, args.Error(1)
}

func (m *MessageServiceMock) History(ctx context.Context, userID, chatID string) ([]models.Message, error) {
	return messagesResult(m.Called(ctx, userID, chatID))
}

func (m *MessageServiceMock) LastMessagePerChat(ctx context.Context, userID string, chatIDs []string) ([]models.Message, error) {
	return messagesResult(m.Called(ctx, userID, chatIDs))
}

func (m *MessageServiceMock) Edit(ctx context.Context, actorID, messageID, text string) (models.Message, error) {
	args := m.Called(ctx, actorID, messageID, text)
	var msg models.Message
	if val := args.Get(0); val != nil {
		msg = val.(models.Message)
	}
	return msg, args.Error(1)
}

func (m *MessageServiceMock) MarkSeen(ctx context.Context, actorID string, ids []string) ([]models.Message, error) {
	return messagesResult(m.Called(ctx, actorID, ids))
}

func (m *MessageServiceMock) MarkDelivered(ctx context.Context, actorID string, ids []string) ([]models.Message, error) {
	return messagesResult(m.Called(ctx, actorID, ids))
}

func (m *MessageServiceMock) Delete(ctx context.Context, actorID string, ids []string) ([]models.Message, error) {
	return messagesResult(m.Called(ctx, actorID, ids))
}

type UserServiceMock struct {
	mock.Mock
}

func (m *UserServiceMock) Ensure(ctx context.Context, userID, name, email string) error {
	args := m.Called(ctx, userID, name, email)
	return args.Error(0)
}

func (m *UserServiceMock) Delete(ctx context.Context, userID string) error {
	args := m.Called(ctx, userID)
	return args.Error(0)
}

// PublisherMock records audit envelopes handed to the broker.
type PublisherMock struct {
	mock.Mock
}

func (m *PublisherMock) Publish(ctx context.Context, routingKey string, event any) error {
	args := m.Called(ctx, routingKey, event)
	return args.Error(0)
}

func (m *PublisherMock) Close() error {
	args := m.Called()
	return args.Error(0)
}

type AuditorMock struct {
	mock.Mock
}

func (m *AuditorMock) Emit(ctx context.Context, event telemetry.AuditEvent) {
	m.Called(ctx, event)
}
