package repositories

import "github.com/jmoiron/sqlx"

// Store bundles the repositories the lifecycle engines read and write.
type Store struct {
	Users    UserRepository
	Chats    ChatRepository
	Hides    HideRepository
	Messages MessageRepository
}

// NewPostgresStore wires the sqlx repositories over one connection pool.
func NewPostgresStore(db *sqlx.DB) Store {
	return Store{
		Users:    NewUserRepo(db),
		Chats:    NewChatRepo(db),
		Hides:    NewHideRepo(db),
		Messages: NewMessageRepo(db),
	}
}
