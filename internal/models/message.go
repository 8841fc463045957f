package models

import "time"

// MessageType separates client-authored text from synthesized lifecycle notices.
type MessageType string

const (
	MessageTypeText   MessageType = "TEXT"
	MessageTypeSystem MessageType = "SYSTEM"
)

// MessageStatus tracks edits and deletion. DELETE is terminal.
type MessageStatus string

const (
	StatusSent    MessageStatus = "SENT"
	StatusEdited  MessageStatus = "EDITED"
	StatusDeleted MessageStatus = "DELETE"
)

// SeenStatus is the read-receipt progression. It never regresses.
type SeenStatus string

const (
	SeenSent      SeenStatus = "SENT"
	SeenDelivered SeenStatus = "DELIVERED"
	SeenSeen      SeenStatus = "SEEN"
)

// Rank orders seen statuses so updates can be kept monotonic.
func (s SeenStatus) Rank() int {
	switch s {
	case SeenDelivered:
		return 1
	case SeenSeen:
		return 2
	default:
		return 0
	}
}

const (
	DeletedPlaceholder = "Mensagem excluída"
	SystemTextJoined   = "entrou no chat"
	SystemTextLeft     = "saiu do chat"
)

// Message represents a chat message.
type Message struct {
	ID         string        `db:"id" json:"id"`
	ChatID     string        `db:"chat_id" json:"chat_id"`
	AuthorID   string        `db:"author_id" json:"author_id"`
	Content    string        `db:"content" json:"content"`
	Type       MessageType   `db:"type" json:"type"`
	Status     MessageStatus `db:"status" json:"status"`
	SeenStatus SeenStatus    `db:"seen_status" json:"seen_status"`
	CreatedAt  time.Time     `db:"created_at" json:"created_at"`
	UpdatedAt  time.Time     `db:"updated_at" json:"updated_at"`
}

// IsDeleted reports whether the message reached the terminal state.
func (m Message) IsDeleted() bool {
	return m.Status == StatusDeleted
}
