package model

import "time"

// Chat is a conversation owned by a user.
type Chat struct {
	ID        string    `db:"id" json:"id"`
	UserID    string    `db:"user_id" json:"user_id"`
	Title     string    `db:"title" json:"title"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// Message is a single chat message. Role is "user" or "assistant".
type Message struct {
	ID        string    `db:"id" json:"id"`
	ChatID    string    `db:"chat_id" json:"chat_id"`
	Role      string    `db:"role" json:"role"`
	Content   string    `db:"content" json:"content"`
	ModelID   string    `db:"model_id" json:"model_id,omitempty"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}
