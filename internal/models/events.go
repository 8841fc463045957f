package models

import "time"

// Event names as seen by websocket clients.
const (
	EventChat    = "chat"
	EventMessage = "message"
	EventSeen    = "seen"
	EventSystem  = "system"
)

// Event is the closed set of payloads pushed to live connections.
type Event interface {
	EventName() string
}

// ChatEvent announces a created or updated chat.
type ChatEvent struct {
	ID             string    `json:"id"`
	CreatorID      string    `json:"creator_id"`
	Name           string    `json:"name"`
	Type           ChatType  `json:"type"`
	ParticipantIDs []string  `json:"participant_ids"`
	Timestamp      time.Time `json:"timestamp"`
}

func (ChatEvent) EventName() string { return EventChat }

// NewChatEvent builds the push payload for a chat.
func NewChatEvent(chat Chat) ChatEvent {
	participants := chat.ParticipantIDs
	if participants == nil {
		participants = []string{}
	}
	ts := chat.UpdatedAt
	if ts.IsZero() {
		ts = chat.CreatedAt
	}
	return ChatEvent{
		ID:             chat.ID,
		CreatorID:      chat.CreatorID,
		Name:           chat.Name,
		Type:           chat.Type,
		ParticipantIDs: participants,
		Timestamp:      ts,
	}
}

// MessageEvent carries a full message record (create, edit, delete).
type MessageEvent struct {
	ID         string        `json:"id"`
	ChatID     string        `json:"chat_id"`
	AuthorID   string        `json:"author_id"`
	Content    string        `json:"content"`
	Type       MessageType   `json:"type"`
	Status     MessageStatus `json:"status"`
	SeenStatus SeenStatus    `json:"seen_status"`
	Timestamp  time.Time     `json:"timestamp"`
}

func (MessageEvent) EventName() string { return EventMessage }

// NewMessageEvent builds the push payload for a message.
func NewMessageEvent(msg Message) MessageEvent {
	return MessageEvent{
		ID:         msg.ID,
		ChatID:     msg.ChatID,
		AuthorID:   msg.AuthorID,
		Content:    msg.Content,
		Type:       msg.Type,
		Status:     msg.Status,
		SeenStatus: msg.SeenStatus,
		Timestamp:  msg.CreatedAt,
	}
}

// SeenPatchEvent is the status-only update sent for read receipts.
type SeenPatchEvent struct {
	ID         string     `json:"id"`
	ChatID     string     `json:"chat_id"`
	SeenStatus SeenStatus `json:"seen_status"`
}

func (SeenPatchEvent) EventName() string { return EventSeen }

// SystemMessageEvent carries a synthesized join/leave notice.
type SystemMessageEvent struct {
	MessageEvent
}

func (SystemMessageEvent) EventName() string { return EventSystem }

// NewSystemMessageEvent wraps a SYSTEM message for push.
func NewSystemMessageEvent(msg Message) SystemMessageEvent {
	return SystemMessageEvent{MessageEvent: NewMessageEvent(msg)}
}
