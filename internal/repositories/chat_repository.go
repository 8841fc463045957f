package repositories

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"messaging-service/internal/models"
)

var (
	ErrChatNotFound  = errors.New("chat not found")
	ErrDuplicateChat = errors.New("active individual chat already exists for pair")
)

// ChatRepository abstracts chat persistence.
type ChatRepository interface {
	CreateChat(ctx context.Context, chat models.Chat) (models.Chat, error)
	GetChat(ctx context.Context, chatID string) (models.Chat, error)
	FindIndividualChat(ctx context.Context, userID, otherID string) (models.Chat, error)
	ListChatsForUser(ctx context.Context, userID string, activeOnly bool) ([]models.Chat, error)
	UpdateChat(ctx context.Context, chatID, name string, addIDs []string) (models.Chat, error)
	RemoveParticipants(ctx context.Context, chatID string, ids []string) (models.Chat, error)
	Retire(ctx context.Context, chatID string) (bool, error)
}

// ChatRepo is a sqlx implementation of ChatRepository.
type ChatRepo struct {
	db *sqlx.DB
}

// NewChatRepo constructs a ChatRepo.
func NewChatRepo(db *sqlx.DB) *ChatRepo {
	return &ChatRepo{db: db}
}

const chatColumns = `id, name, creator_id, type, active, created_at, updated_at`

// CreateChat inserts a chat and its participants atomically.
func (r *ChatRepo) CreateChat(ctx context.Context, chat models.Chat) (models.Chat, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return models.Chat{}, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var pairKey sql.NullString
	if chat.Type == models.ChatTypeIndividual && len(chat.ParticipantIDs) == 1 {
		pairKey = sql.NullString{String: models.PairKey(chat.CreatorID, chat.ParticipantIDs[0]), Valid: true}
	}

	err = tx.QueryRowxContext(ctx, `INSERT INTO chats (id, name, creator_id, type, active, pair_key)
        VALUES ($1, $2, $3, $4, $5, $6) RETURNING created_at, updated_at`,
		chat.ID, chat.Name, chat.CreatorID, chat.Type, chat.Active, pairKey).
		Scan(&chat.CreatedAt, &chat.UpdatedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return models.Chat{}, ErrDuplicateChat
		}
		return models.Chat{}, err
	}

	for _, id := range chat.ParticipantIDs {
		if _, err = tx.ExecContext(ctx, `INSERT INTO chat_participants (chat_id, user_id) VALUES ($1, $2)
            ON CONFLICT DO NOTHING`, chat.ID, id); err != nil {
			return models.Chat{}, err
		}
	}

	if err = tx.Commit(); err != nil {
		return models.Chat{}, err
	}
	return chat, nil
}

// GetChat fetches a chat by id with its participants, active or not.
func (r *ChatRepo) GetChat(ctx context.Context, chatID string) (models.Chat, error) {
	var chat models.Chat
	err := r.db.GetContext(ctx, &chat, `SELECT `+chatColumns+` FROM chats WHERE id=$1`, chatID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Chat{}, ErrChatNotFound
	}
	if err != nil {
		return models.Chat{}, err
	}
	if err := r.loadParticipants(ctx, &chat); err != nil {
		return models.Chat{}, err
	}
	return chat, nil
}

// FindIndividualChat returns the active two-party chat for the unordered pair.
func (r *ChatRepo) FindIndividualChat(ctx context.Context, userID, otherID string) (models.Chat, error) {
	var chat models.Chat
	err := r.db.GetContext(ctx, &chat, `SELECT `+chatColumns+` FROM chats
        WHERE type='INDIVIDUAL' AND active AND pair_key=$1`, models.PairKey(userID, otherID))
	if errors.Is(err, sql.ErrNoRows) {
		return models.Chat{}, ErrChatNotFound
	}
	if err != nil {
		return models.Chat{}, err
	}
	if err := r.loadParticipants(ctx, &chat); err != nil {
		return models.Chat{}, err
	}
	return chat, nil
}

// ListChatsForUser returns chats where the user is creator or participant.
func (r *ChatRepo) ListChatsForUser(ctx context.Context, userID string, activeOnly bool) ([]models.Chat, error) {
	query := `SELECT DISTINCT c.id, c.name, c.creator_id, c.type, c.active, c.created_at, c.updated_at
        FROM chats c
        LEFT JOIN chat_participants p ON p.chat_id = c.id AND p.user_id = $1
        WHERE (c.creator_id = $1 OR p.user_id IS NOT NULL) AND ($2 = FALSE OR c.active)
        ORDER BY c.updated_at DESC`
	var chats []models.Chat
	if err := r.db.SelectContext(ctx, &chats, query, userID, activeOnly); err != nil {
		return nil, err
	}
	if len(chats) == 0 {
		return chats, nil
	}

	ids := make([]string, 0, len(chats))
	for _, c := range chats {
		ids = append(ids, c.ID)
	}
	rows, err := r.db.QueryxContext(ctx, `SELECT chat_id, user_id FROM chat_participants
        WHERE chat_id = ANY($1) ORDER BY user_id`, pq.Array(ids))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	byChat := map[string][]string{}
	for rows.Next() {
		var chatID, participantID string
		if err := rows.Scan(&chatID, &participantID); err != nil {
			return nil, err
		}
		byChat[chatID] = append(byChat[chatID], participantID)
	}
	for i := range chats {
		chats[i].ParticipantIDs = byChat[chats[i].ID]
	}
	return chats, rows.Err()
}

// UpdateChat renames the chat (when name is non-empty) and adds participants.
func (r *ChatRepo) UpdateChat(ctx context.Context, chatID, name string, addIDs []string) (models.Chat, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return models.Chat{}, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	res, err := tx.ExecContext(ctx, `UPDATE chats SET name = COALESCE(NULLIF($2, ''), name), updated_at = clock_timestamp()
        WHERE id=$1`, chatID, name)
	if err != nil {
		return models.Chat{}, err
	}
	count, err := res.RowsAffected()
	if err != nil {
		return models.Chat{}, err
	}
	if count == 0 {
		err = ErrChatNotFound
		return models.Chat{}, err
	}

	for _, id := range addIDs {
		if _, err = tx.ExecContext(ctx, `INSERT INTO chat_participants (chat_id, user_id) VALUES ($1, $2)
            ON CONFLICT DO NOTHING`, chatID, id); err != nil {
			return models.Chat{}, err
		}
	}

	if err = tx.Commit(); err != nil {
		return models.Chat{}, err
	}
	return r.GetChat(ctx, chatID)
}

// RemoveParticipants disconnects ids from the chat.
func (r *ChatRepo) RemoveParticipants(ctx context.Context, chatID string, ids []string) (models.Chat, error) {
	res, err := r.db.ExecContext(ctx, `UPDATE chats SET updated_at = clock_timestamp() WHERE id=$1`, chatID)
	if err != nil {
		return models.Chat{}, err
	}
	count, err := res.RowsAffected()
	if err != nil {
		return models.Chat{}, err
	}
	if count == 0 {
		return models.Chat{}, ErrChatNotFound
	}
	if _, err := r.db.ExecContext(ctx, `DELETE FROM chat_participants WHERE chat_id=$1 AND user_id = ANY($2)`,
		chatID, pq.Array(ids)); err != nil {
		return models.Chat{}, err
	}
	return r.GetChat(ctx, chatID)
}

// Retire flips an active chat to inactive. It reports false when the chat
// was already retired.
func (r *ChatRepo) Retire(ctx context.Context, chatID string) (bool, error) {
	res, err := r.db.ExecContext(ctx, `UPDATE chats SET active = FALSE, updated_at = clock_timestamp()
        WHERE id=$1 AND active`, chatID)
	if err != nil {
		return false, err
	}
	count, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *ChatRepo) loadParticipants(ctx context.Context, chat *models.Chat) error {
	var ids []string
	if err := r.db.SelectContext(ctx, &ids, `SELECT user_id FROM chat_participants WHERE chat_id=$1 ORDER BY user_id`, chat.ID); err != nil {
		return err
	}
	chat.ParticipantIDs = ids
	return nil
}
