package repositories

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/samber/lo"

	"messaging-service/internal/models"
)

type hideKey struct {
	userID string
	chatID string
}

// MemoryStore keeps every table in process memory. It backs STORE_DRIVER=memory
// and the engine tests, and applies the same uniqueness and conditional-update
// rules as the postgres schema.
type MemoryStore struct {
	mu       sync.RWMutex
	last     time.Time
	users    map[string]models.User
	chats    map[string]models.Chat
	pairs    map[string]string
	hides    map[hideKey]models.ChatHide
	messages map[string]models.Message
}

// NewMemoryStore builds an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:    make(map[string]models.User),
		chats:    make(map[string]models.Chat),
		pairs:    make(map[string]string),
		hides:    make(map[hideKey]models.ChatHide),
		messages: make(map[string]models.Message),
	}
}

// Store exposes the memory tables through the repository interfaces.
func (s *MemoryStore) Store() Store {
	return Store{Users: s, Chats: s, Hides: s, Messages: s}
}

// now returns a strictly increasing timestamp. Caller holds mu.
func (s *MemoryStore) now() time.Time {
	t := time.Now().UTC()
	if !t.After(s.last) {
		t = s.last.Add(time.Microsecond)
	}
	s.last = t
	return t
}

func (s *MemoryStore) CreateUser(_ context.Context, user models.User) (models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	user.CreatedAt = s.now()
	s.users[user.ID] = user
	return user, nil
}

func (s *MemoryStore) UpsertUser(_ context.Context, user models.User) (models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.users[user.ID]
	if !ok {
		user.Online = false
		user.CreatedAt = s.now()
		s.users[user.ID] = user
		return user, nil
	}
	if user.Name != "" {
		existing.Name = user.Name
	}
	if user.Email != "" {
		existing.Email = user.Email
	}
	s.users[user.ID] = existing
	return existing, nil
}

func (s *MemoryStore) GetUser(_ context.Context, userID string) (models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	user, ok := s.users[userID]
	if !ok {
		return models.User{}, ErrUserNotFound
	}
	return user, nil
}

func (s *MemoryStore) ExistingUserIDs(_ context.Context, ids []string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	found := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := s.users[id]; ok {
			found = append(found, id)
		}
	}
	return found, nil
}

func (s *MemoryStore) SetOnline(_ context.Context, userID string, online bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	user, ok := s.users[userID]
	if !ok {
		return nil
	}
	user.Online = online
	s.users[userID] = user
	return nil
}

func (s *MemoryStore) DeleteUser(_ context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[userID]; !ok {
		return ErrUserNotFound
	}
	delete(s.users, userID)
	for id, chat := range s.chats {
		if chat.HasParticipant(userID) {
			chat.ParticipantIDs = lo.Without(chat.ParticipantIDs, userID)
			s.chats[id] = chat
		}
	}
	return nil
}

func (s *MemoryStore) CreateChat(_ context.Context, chat models.Chat) (models.Chat, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if chat.Type == models.ChatTypeIndividual && len(chat.ParticipantIDs) == 1 && chat.Active {
		key := models.PairKey(chat.CreatorID, chat.ParticipantIDs[0])
		if existing, ok := s.pairs[key]; ok && s.chats[existing].Active {
			return models.Chat{}, ErrDuplicateChat
		}
		s.pairs[key] = chat.ID
	}
	chat.ParticipantIDs = sortedCopy(chat.ParticipantIDs)
	chat.CreatedAt = s.now()
	chat.UpdatedAt = chat.CreatedAt
	s.chats[chat.ID] = chat
	return copyChat(chat), nil
}

func (s *MemoryStore) GetChat(_ context.Context, chatID string) (models.Chat, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	chat, ok := s.chats[chatID]
	if !ok {
		return models.Chat{}, ErrChatNotFound
	}
	return copyChat(chat), nil
}

func (s *MemoryStore) FindIndividualChat(_ context.Context, userID, otherID string) (models.Chat, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.pairs[models.PairKey(userID, otherID)]
	if !ok {
		return models.Chat{}, ErrChatNotFound
	}
	chat := s.chats[id]
	if !chat.Active {
		return models.Chat{}, ErrChatNotFound
	}
	return copyChat(chat), nil
}

func (s *MemoryStore) ListChatsForUser(_ context.Context, userID string, activeOnly bool) ([]models.Chat, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.Chat
	for _, chat := range s.chats {
		if activeOnly && !chat.Active {
			continue
		}
		if chat.IsMember(userID) {
			out = append(out, copyChat(chat))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })
	return out, nil
}

func (s *MemoryStore) UpdateChat(_ context.Context, chatID, name string, addIDs []string) (models.Chat, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	chat, ok := s.chats[chatID]
	if !ok {
		return models.Chat{}, ErrChatNotFound
	}
	if name != "" {
		chat.Name = name
	}
	for _, id := range addIDs {
		if !chat.HasParticipant(id) {
			chat.ParticipantIDs = append(chat.ParticipantIDs, id)
		}
	}
	chat.ParticipantIDs = sortedCopy(chat.ParticipantIDs)
	chat.UpdatedAt = s.now()
	s.chats[chatID] = chat
	return copyChat(chat), nil
}

func (s *MemoryStore) RemoveParticipants(_ context.Context, chatID string, ids []string) (models.Chat, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	chat, ok := s.chats[chatID]
	if !ok {
		return models.Chat{}, ErrChatNotFound
	}
	chat.ParticipantIDs = lo.Without(chat.ParticipantIDs, ids...)
	chat.UpdatedAt = s.now()
	s.chats[chatID] = chat
	return copyChat(chat), nil
}

func (s *MemoryStore) Retire(_ context.Context, chatID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	chat, ok := s.chats[chatID]
	if !ok || !chat.Active {
		return false, nil
	}
	chat.Active = false
	chat.UpdatedAt = s.now()
	s.chats[chatID] = chat
	return true, nil
}

func (s *MemoryStore) GetHide(_ context.Context, userID, chatID string) (models.ChatHide, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	hide, ok := s.hides[hideKey{userID, chatID}]
	if !ok {
		return models.ChatHide{}, ErrHideNotFound
	}
	return hide, nil
}

func (s *MemoryStore) UpsertHide(_ context.Context, userID, chatID string) (models.ChatHide, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := hideKey{userID, chatID}
	hide, ok := s.hides[key]
	if !ok {
		hide = models.ChatHide{UserID: userID, ChatID: chatID}
	}
	hide.Active = true
	hide.HiddenAt = s.now()
	hide.UpdatedAt = hide.HiddenAt
	s.hides[key] = hide
	return hide, nil
}

func (s *MemoryStore) Reactivate(_ context.Context, userID, chatID string) (models.ChatHide, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := hideKey{userID, chatID}
	hide, ok := s.hides[key]
	if !ok || !hide.Active {
		return models.ChatHide{}, false, nil
	}
	at := s.now()
	hide.Active = false
	hide.ReactivatedAt = &at
	hide.UpdatedAt = at
	s.hides[key] = hide
	return hide, true, nil
}

func (s *MemoryStore) ListActiveHides(_ context.Context, chatID string) ([]models.ChatHide, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.ChatHide
	for key, hide := range s.hides {
		if key.chatID == chatID && hide.Active {
			out = append(out, hide)
		}
	}
	return out, nil
}

func (s *MemoryStore) ListActiveHidesForUser(_ context.Context, userID string) ([]models.ChatHide, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.ChatHide
	for key, hide := range s.hides {
		if key.userID == userID && hide.Active {
			out = append(out, hide)
		}
	}
	return out, nil
}

func (s *MemoryStore) CreateMessage(_ context.Context, msg models.Message) (models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	msg.CreatedAt = s.now()
	msg.UpdatedAt = msg.CreatedAt
	s.messages[msg.ID] = msg
	return msg, nil
}

func (s *MemoryStore) GetMessage(_ context.Context, messageID string) (models.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	msg, ok := s.messages[messageID]
	if !ok {
		return models.Message{}, ErrMessageNotFound
	}
	return msg, nil
}

func (s *MemoryStore) GetMessagesByIDs(_ context.Context, ids []string) ([]models.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.Message
	seen := map[string]struct{}{}
	for _, id := range ids {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		if msg, ok := s.messages[id]; ok {
			out = append(out, msg)
		}
	}
	sortMessages(out)
	return out, nil
}

func (s *MemoryStore) ListMessages(_ context.Context, chatID string, after *time.Time) ([]models.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.filterMessages(chatID, after), nil
}

func (s *MemoryStore) LastMessage(_ context.Context, chatID string, after *time.Time) (models.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	msgs := s.filterMessages(chatID, after)
	if len(msgs) == 0 {
		return models.Message{}, ErrMessageNotFound
	}
	return msgs[len(msgs)-1], nil
}

func (s *MemoryStore) UpdateContent(_ context.Context, messageID, content string) (models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	msg, ok := s.messages[messageID]
	if !ok {
		return models.Message{}, ErrMessageNotFound
	}
	if msg.IsDeleted() {
		return models.Message{}, ErrMessageDeleted
	}
	msg.Content = content
	msg.Status = models.StatusEdited
	msg.UpdatedAt = s.now()
	s.messages[messageID] = msg
	return msg, nil
}

func (s *MemoryStore) MarkDeleted(_ context.Context, ids []string, placeholder string) ([]models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Message
	for _, id := range lo.Uniq(ids) {
		msg, ok := s.messages[id]
		if !ok || msg.IsDeleted() {
			continue
		}
		msg.Status = models.StatusDeleted
		msg.Content = placeholder
		msg.UpdatedAt = s.now()
		s.messages[id] = msg
		out = append(out, msg)
	}
	sortMessages(out)
	return out, nil
}

func (s *MemoryStore) AdvanceSeenStatus(_ context.Context, ids []string, status models.SeenStatus) ([]models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Message
	for _, id := range lo.Uniq(ids) {
		msg, ok := s.messages[id]
		if !ok || msg.SeenStatus.Rank() >= status.Rank() {
			continue
		}
		msg.SeenStatus = status
		msg.UpdatedAt = s.now()
		s.messages[id] = msg
		out = append(out, msg)
	}
	sortMessages(out)
	return out, nil
}

// filterMessages returns a chat's messages ascending. Caller holds mu.
func (s *MemoryStore) filterMessages(chatID string, after *time.Time) []models.Message {
	var out []models.Message
	for _, msg := range s.messages {
		if msg.ChatID != chatID {
			continue
		}
		if after != nil && !msg.CreatedAt.After(*after) {
			continue
		}
		out = append(out, msg)
	}
	sortMessages(out)
	return out
}

func sortMessages(msgs []models.Message) {
	sort.Slice(msgs, func(i, j int) bool {
		if msgs[i].CreatedAt.Equal(msgs[j].CreatedAt) {
			return strings.Compare(msgs[i].ID, msgs[j].ID) < 0
		}
		return msgs[i].CreatedAt.Before(msgs[j].CreatedAt)
	})
}

func copyChat(chat models.Chat) models.Chat {
	chat.ParticipantIDs = sortedCopy(chat.ParticipantIDs)
	return chat
}

func sortedCopy(ids []string) []string {
	out := append([]string{}, ids...)
	sort.Strings(out)
	return out
}
