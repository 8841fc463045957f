package repositories

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"

	"messaging-service/internal/models"
)

var ErrHideNotFound = errors.New("chat hide not found")

// HideRepository persists per-user chat hides. Rows are never deleted.
type HideRepository interface {
	GetHide(ctx context.Context, userID, chatID string) (models.ChatHide, error)
	UpsertHide(ctx context.Context, userID, chatID string) (models.ChatHide, error)
	Reactivate(ctx context.Context, userID, chatID string) (models.ChatHide, bool, error)
	ListActiveHides(ctx context.Context, chatID string) ([]models.ChatHide, error)
	ListActiveHidesForUser(ctx context.Context, userID string) ([]models.ChatHide, error)
}

// HideRepo is a sqlx implementation of HideRepository.
type HideRepo struct {
	db *sqlx.DB
}

// NewHideRepo constructs a HideRepo.
func NewHideRepo(db *sqlx.DB) *HideRepo {
	return &HideRepo{db: db}
}

const hideColumns = `user_id, chat_id, active, hidden_at, reactivated_at, updated_at`

// GetHide fetches the hide row for the pair.
func (r *HideRepo) GetHide(ctx context.Context, userID, chatID string) (models.ChatHide, error) {
	var hide models.ChatHide
	err := r.db.GetContext(ctx, &hide, `SELECT `+hideColumns+` FROM chat_hides WHERE user_id=$1 AND chat_id=$2`, userID, chatID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.ChatHide{}, ErrHideNotFound
	}
	return hide, err
}

// UpsertHide marks the chat hidden for the user.
func (r *HideRepo) UpsertHide(ctx context.Context, userID, chatID string) (models.ChatHide, error) {
	var hide models.ChatHide
	err := r.db.GetContext(ctx, &hide, `INSERT INTO chat_hides (user_id, chat_id, active, hidden_at, updated_at)
        VALUES ($1, $2, TRUE, clock_timestamp(), clock_timestamp())
        ON CONFLICT (user_id, chat_id) DO UPDATE SET active = TRUE, hidden_at = EXCLUDED.hidden_at, updated_at = EXCLUDED.updated_at
        RETURNING `+hideColumns, userID, chatID)
	return hide, err
}

// Reactivate flips an active hide to inactive and stamps the reactivation
// time. Only one concurrent caller observes true.
func (r *HideRepo) Reactivate(ctx context.Context, userID, chatID string) (models.ChatHide, bool, error) {
	var hide models.ChatHide
	err := r.db.GetContext(ctx, &hide, `UPDATE chat_hides SET active = FALSE, reactivated_at = clock_timestamp(), updated_at = clock_timestamp()
        WHERE user_id=$1 AND chat_id=$2 AND active
        RETURNING `+hideColumns, userID, chatID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.ChatHide{}, false, nil
	}
	if err != nil {
		return models.ChatHide{}, false, err
	}
	return hide, true, nil
}

// ListActiveHides returns active hides for a chat.
func (r *HideRepo) ListActiveHides(ctx context.Context, chatID string) ([]models.ChatHide, error) {
	var hides []models.ChatHide
	err := r.db.SelectContext(ctx, &hides, `SELECT `+hideColumns+` FROM chat_hides WHERE chat_id=$1 AND active`, chatID)
	return hides, err
}

// ListActiveHidesForUser returns the chats a user currently hides.
func (r *HideRepo) ListActiveHidesForUser(ctx context.Context, userID string) ([]models.ChatHide, error) {
	var hides []models.ChatHide
	err := r.db.SelectContext(ctx, &hides, `SELECT `+hideColumns+` FROM chat_hides WHERE user_id=$1 AND active`, userID)
	return hides, err
}
