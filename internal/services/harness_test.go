package services

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"testing"

	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"

	"messaging-service/internal/fanout"
	"messaging-service/internal/models"
	"messaging-service/internal/repositories"
)

type pushed struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// recordingPusher treats every user as connected and keeps their frames.
type recordingPusher struct {
	mu     sync.Mutex
	frames map[string][]pushed
}

func (p *recordingPusher) PushFrame(userID string, frame []byte) int {
	var f pushed
	if err := json.Unmarshal(frame, &f); err != nil {
		return 0
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.frames[userID] = append(p.frames[userID], f)
	return 1
}

func (p *recordingPusher) events(userID, event string) []pushed {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []pushed
	for _, f := range p.frames[userID] {
		if f.Event == event {
			out = append(out, f)
		}
	}
	return out
}

func (p *recordingPusher) reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.frames = map[string][]pushed{}
}

type harness struct {
	store    *repositories.MemoryStore
	pusher   *recordingPusher
	chats    *ChatService
	messages *MessageService
	users    *UserService
}

func newHarness(t *testing.T, users ...string) *harness {
	t.Helper()
	logger := logs.GetLoggerFromLevel(slog.LevelDebug)
	store := repositories.NewMemoryStore()
	for _, id := range users {
		_, err := store.CreateUser(context.Background(), models.User{ID: id, Name: id, Email: id + "@example.com"})
		require.NoError(t, err)
	}
	pusher := &recordingPusher{frames: map[string][]pushed{}}
	dispatcher := fanout.NewDispatcher(pusher, nil, logger)
	chats := NewChatService(store.Store(), dispatcher, nil, logger)
	messages := NewMessageService(store.Store(), chats, dispatcher, nil, logger, 4)
	userService := NewUserService(store.Store(), chats, dispatcher, nil, logger)
	return &harness{store: store, pusher: pusher, chats: chats, messages: messages, users: userService}
}

func (h *harness) individual(t *testing.T, a, b string) models.Chat {
	t.Helper()
	chat, err := h.chats.CreateIndividual(context.Background(), a, CreateChatCommand{Name: b, ParticipantID: b})
	require.NoError(t, err)
	return chat
}

func (h *harness) group(t *testing.T, creator string, participants ...string) models.Chat {
	t.Helper()
	chat, err := h.chats.CreateGroup(context.Background(), creator, CreateGroupCommand{Name: "group", ParticipantIDs: participants})
	require.NoError(t, err)
	return chat
}

func (h *harness) send(t *testing.T, sender, chatID, text string, recipients ...string) models.Message {
	t.Helper()
	msg, err := h.messages.Send(context.Background(), sender, SendMessageCommand{ChatID: chatID, Text: text, Recipients: recipients})
	require.NoError(t, err)
	return msg
}

func decode[T any](t *testing.T, raw json.RawMessage) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(raw, &v))
	return v
}
