package repositories

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"messaging-service/internal/models"
)

var (
	ErrMessageNotFound = errors.New("message not found")
	ErrMessageDeleted  = errors.New("message deleted")
)

// MessageRepository defines interactions for chat messages.
type MessageRepository interface {
	CreateMessage(ctx context.Context, msg models.Message) (models.Message, error)
	GetMessage(ctx context.Context, messageID string) (models.Message, error)
	GetMessagesByIDs(ctx context.Context, ids []string) ([]models.Message, error)
	ListMessages(ctx context.Context, chatID string, after *time.Time) ([]models.Message, error)
	LastMessage(ctx context.Context, chatID string, after *time.Time) (models.Message, error)
	UpdateContent(ctx context.Context, messageID, content string) (models.Message, error)
	MarkDeleted(ctx context.Context, ids []string, placeholder string) ([]models.Message, error)
	AdvanceSeenStatus(ctx context.Context, ids []string, status models.SeenStatus) ([]models.Message, error)
}

// MessageRepo is a sqlx-backed repository.
type MessageRepo struct {
	db *sqlx.DB
}

// NewMessageRepo constructs MessageRepo.
func NewMessageRepo(db *sqlx.DB) *MessageRepo {
	return &MessageRepo{db: db}
}

const messageColumns = `id, chat_id, author_id, content, type, status, seen_status, created_at, updated_at`

// CreateMessage stores a message.
func (r *MessageRepo) CreateMessage(ctx context.Context, msg models.Message) (models.Message, error) {
	err := r.db.QueryRowxContext(ctx, `INSERT INTO messages (id, chat_id, author_id, content, type, status, seen_status)
        VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING created_at, updated_at`,
		msg.ID, msg.ChatID, msg.AuthorID, msg.Content, msg.Type, msg.Status, msg.SeenStatus).
		Scan(&msg.CreatedAt, &msg.UpdatedAt)
	return msg, err
}

// GetMessage retrieves a single message.
func (r *MessageRepo) GetMessage(ctx context.Context, messageID string) (models.Message, error) {
	var msg models.Message
	err := r.db.GetContext(ctx, &msg, `SELECT `+messageColumns+` FROM messages WHERE id=$1`, messageID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Message{}, ErrMessageNotFound
	}
	return msg, err
}

// GetMessagesByIDs returns the messages that exist among ids. Unknown ids are skipped.
func (r *MessageRepo) GetMessagesByIDs(ctx context.Context, ids []string) ([]models.Message, error) {
	var msgs []models.Message
	err := r.db.SelectContext(ctx, &msgs, `SELECT `+messageColumns+` FROM messages
        WHERE id = ANY($1) ORDER BY created_at ASC`, pq.Array(ids))
	return msgs, err
}

// ListMessages returns chat messages ordered by creation, optionally strictly after a timestamp.
func (r *MessageRepo) ListMessages(ctx context.Context, chatID string, after *time.Time) ([]models.Message, error) {
	var msgs []models.Message
	err := r.db.SelectContext(ctx, &msgs, `SELECT `+messageColumns+` FROM messages
        WHERE chat_id=$1 AND ($2::timestamptz IS NULL OR created_at > $2)
        ORDER BY created_at ASC, id ASC`, chatID, after)
	return msgs, err
}

// LastMessage returns the newest message of a chat under the same filter as ListMessages.
func (r *MessageRepo) LastMessage(ctx context.Context, chatID string, after *time.Time) (models.Message, error) {
	var msg models.Message
	err := r.db.GetContext(ctx, &msg, `SELECT `+messageColumns+` FROM messages
        WHERE chat_id=$1 AND ($2::timestamptz IS NULL OR created_at > $2)
        ORDER BY created_at DESC, id DESC LIMIT 1`, chatID, after)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Message{}, ErrMessageNotFound
	}
	return msg, err
}

// UpdateContent edits a message unless it has been deleted.
func (r *MessageRepo) UpdateContent(ctx context.Context, messageID, content string) (models.Message, error) {
	var msg models.Message
	err := r.db.GetContext(ctx, &msg, `UPDATE messages SET content=$2, status='EDITED', updated_at=clock_timestamp()
        WHERE id=$1 AND status <> 'DELETE'
        RETURNING `+messageColumns, messageID, content)
	if errors.Is(err, sql.ErrNoRows) {
		if _, getErr := r.GetMessage(ctx, messageID); getErr != nil {
			return models.Message{}, getErr
		}
		return models.Message{}, ErrMessageDeleted
	}
	return msg, err
}

// MarkDeleted moves messages to the terminal state and replaces their text.
// Rows already deleted are left untouched and not returned.
func (r *MessageRepo) MarkDeleted(ctx context.Context, ids []string, placeholder string) ([]models.Message, error) {
	var msgs []models.Message
	err := r.db.SelectContext(ctx, &msgs, `UPDATE messages SET status='DELETE', content=$2, updated_at=clock_timestamp()
        WHERE id = ANY($1) AND status <> 'DELETE'
        RETURNING `+messageColumns, pq.Array(ids), placeholder)
	return msgs, err
}

// AdvanceSeenStatus raises seen_status to status for messages currently below it.
func (r *MessageRepo) AdvanceSeenStatus(ctx context.Context, ids []string, status models.SeenStatus) ([]models.Message, error) {
	lower := make([]string, 0, 2)
	for _, s := range []models.SeenStatus{models.SeenSent, models.SeenDelivered} {
		if s.Rank() < status.Rank() {
			lower = append(lower, string(s))
		}
	}
	if len(lower) == 0 {
		return nil, nil
	}

	var msgs []models.Message
	err := r.db.SelectContext(ctx, &msgs, `UPDATE messages SET seen_status=$2, updated_at=clock_timestamp()
        WHERE id = ANY($1) AND seen_status = ANY($3)
        RETURNING `+messageColumns, pq.Array(ids), status, pq.Array(lower))
	return msgs, err
}
