package models

import "time"

// User is the subset of account data the messaging core reads.
type User struct {
	ID        string    `db:"id" json:"id"`
	Name      string    `db:"name" json:"name"`
	Email     string    `db:"email" json:"email"`
	Online    bool      `db:"online" json:"online"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}
