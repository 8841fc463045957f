package models

import (
	"sort"
	"time"
)

// ChatType distinguishes two-party chats from groups.
type ChatType string

const (
	ChatTypeIndividual ChatType = "INDIVIDUAL"
	ChatTypeGroup      ChatType = "GROUP"
)

// Chat is a conversation container. The creator is not stored in
// ParticipantIDs; Members returns the full member set.
type Chat struct {
	ID             string    `db:"id" json:"id"`
	Name           string    `db:"name" json:"name"`
	CreatorID      string    `db:"creator_id" json:"creator_id"`
	Type           ChatType  `db:"type" json:"type"`
	Active         bool      `db:"active" json:"active"`
	ParticipantIDs []string  `db:"-" json:"participant_ids"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time `db:"updated_at" json:"updated_at"`
}

// Members returns participants plus the creator, deduplicated and sorted.
func (c Chat) Members() []string {
	set := map[string]struct{}{c.CreatorID: {}}
	for _, id := range c.ParticipantIDs {
		set[id] = struct{}{}
	}
	out := make([]string, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// IsMember reports whether userID is the creator or a participant.
func (c Chat) IsMember(userID string) bool {
	if c.CreatorID == userID {
		return true
	}
	for _, id := range c.ParticipantIDs {
		if id == userID {
			return true
		}
	}
	return false
}

// HasParticipant reports whether userID is in the participant list.
func (c Chat) HasParticipant(userID string) bool {
	for _, id := range c.ParticipantIDs {
		if id == userID {
			return true
		}
	}
	return false
}

// PairKey is the order-independent key of a two-party chat.
func PairKey(a, b string) string {
	if a > b {
		a, b = b, a
	}
	return a + ":" + b
}

// ChatHide is a per-user soft delete of a chat.
type ChatHide struct {
	UserID        string     `db:"user_id" json:"user_id"`
	ChatID        string     `db:"chat_id" json:"chat_id"`
	Active        bool       `db:"active" json:"active"`
	HiddenAt      time.Time  `db:"hidden_at" json:"hidden_at"`
	ReactivatedAt *time.Time `db:"reactivated_at" json:"reactivated_at,omitempty"`
	UpdatedAt     time.Time  `db:"updated_at" json:"updated_at"`
}
