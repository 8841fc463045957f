package repositories

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"messaging-service/internal/models"
)

var ErrUserNotFound = errors.New("user not found")

const userColumns = `id, name, COALESCE(email, '') AS email, online, created_at`

// UserRepository reads accounts and maintains the online flag.
type UserRepository interface {
	CreateUser(ctx context.Context, user models.User) (models.User, error)
	UpsertUser(ctx context.Context, user models.User) (models.User, error)
	GetUser(ctx context.Context, userID string) (models.User, error)
	ExistingUserIDs(ctx context.Context, ids []string) ([]string, error)
	SetOnline(ctx context.Context, userID string, online bool) error
	DeleteUser(ctx context.Context, userID string) error
}

// UserRepo is a sqlx implementation of UserRepository.
type UserRepo struct {
	db *sqlx.DB
}

// NewUserRepo constructs a UserRepo.
func NewUserRepo(db *sqlx.DB) *UserRepo {
	return &UserRepo{db: db}
}

// CreateUser inserts an account row.
func (r *UserRepo) CreateUser(ctx context.Context, user models.User) (models.User, error) {
	err := r.db.QueryRowxContext(ctx, `INSERT INTO users (id, name, email) VALUES ($1, $2, NULLIF($3, '')) RETURNING online, created_at`,
		user.ID, user.Name, user.Email).Scan(&user.Online, &user.CreatedAt)
	return user, err
}

// UpsertUser creates the account on first sight and refreshes the profile
// fields that are non-empty in user.
func (r *UserRepo) UpsertUser(ctx context.Context, user models.User) (models.User, error) {
	var out models.User
	err := r.db.GetContext(ctx, &out, `INSERT INTO users (id, name, email) VALUES ($1, $2, NULLIF($3, ''))
        ON CONFLICT (id) DO UPDATE SET
            name = COALESCE(NULLIF(EXCLUDED.name, ''), users.name),
            email = COALESCE(EXCLUDED.email, users.email)
        RETURNING `+userColumns, user.ID, user.Name, user.Email)
	return out, err
}

// GetUser fetches a user by id.
func (r *UserRepo) GetUser(ctx context.Context, userID string) (models.User, error) {
	var user models.User
	err := r.db.GetContext(ctx, &user, `SELECT `+userColumns+` FROM users WHERE id=$1`, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.User{}, ErrUserNotFound
	}
	return user, err
}

// ExistingUserIDs returns the subset of ids that have an account.
func (r *UserRepo) ExistingUserIDs(ctx context.Context, ids []string) ([]string, error) {
	var found []string
	err := r.db.SelectContext(ctx, &found, `SELECT id FROM users WHERE id = ANY($1)`, pq.Array(ids))
	return found, err
}

// SetOnline flips the presence flag persisted for the user.
func (r *UserRepo) SetOnline(ctx context.Context, userID string, online bool) error {
	_, err := r.db.ExecContext(ctx, `UPDATE users SET online=$2 WHERE id=$1`, userID, online)
	return err
}

// DeleteUser removes the account; participant rows cascade.
func (r *UserRepo) DeleteUser(ctx context.Context, userID string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM users WHERE id=$1`, userID)
	if err != nil {
		return err
	}
	count, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if count == 0 {
		return ErrUserNotFound
	}
	return nil
}
