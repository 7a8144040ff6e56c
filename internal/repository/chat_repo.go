package repository

import (
	"context"
	"errors"
	"fmt"

	"chatapi/internal/model"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrChatNotFound is returned when a chat id does not exist.
var ErrChatNotFound = errors.New("chat_not_found")

type ChatRepository interface {
	CreateChat(ctx context.Context, userID, title string) (*model.Chat, error)
	GetChat(ctx context.Context, chatID string) (*model.Chat, error)
	ListChats(ctx context.Context, userID string, limit, offset int) ([]model.Chat, error)
	CreateMessage(ctx context.Context, chatID, role, content, modelID string) (*model.Message, error)
	ListMessages(ctx context.Context, chatID string, limit int) ([]model.Message, error)
}

type chatRepo struct {
	pool *pgxpool.Pool
}

func NewChatRepo(pool *pgxpool.Pool) ChatRepository {
	return &chatRepo{pool: pool}
}

func (r *chatRepo) CreateChat(ctx context.Context, userID, title string) (*model.Chat, error) {
	const q = `
		INSERT INTO chats (user_id, title)
		VALUES ($1, $2)
		RETURNING id, user_id, title, created_at, updated_at
	`
	var c model.Chat
	err := r.pool.QueryRow(ctx, q, userID, title).Scan(&c.ID, &c.UserID, &c.Title, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("creating chat for user %s: %w", userID, err)
	}
	return &c, nil
}

func (r *chatRepo) GetChat(ctx context.Context, chatID string) (*model.Chat, error) {
	const q = `SELECT id, user_id, title, created_at, updated_at FROM chats WHERE id = $1`
	var c model.Chat
	err := r.pool.QueryRow(ctx, q, chatID).Scan(&c.ID, &c.UserID, &c.Title, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrChatNotFound
		}
		return nil, fmt.Errorf("fetching chat %s: %w", chatID, err)
	}
	return &c, nil
}

func (r *chatRepo) ListChats(ctx context.Context, userID string, limit, offset int) ([]model.Chat, error) {
	const q = `
		SELECT id, user_id, title, created_at, updated_at
		FROM chats
		WHERE user_id = $1
		ORDER BY updated_at DESC
		LIMIT $2 OFFSET $3
	`
	rows, err := r.pool.Query(ctx, q, userID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("listing chats for user %s: %w", userID, err)
	}
	defer rows.Close()

	var chats []model.Chat
	for rows.Next() {
		var c model.Chat
		if err := rows.Scan(&c.ID, &c.UserID, &c.Title, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scanning chat for user %s: %w", userID, err)
		}
		chats = append(chats, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading chats for user %s: %w", userID, err)
	}
	return chats, nil
}

func (r *chatRepo) CreateMessage(ctx context.Context, chatID, role, content, modelID string) (*model.Message, error) {
	const q = `
		INSERT INTO chat_messages (chat_id, role, content, model_id)
		VALUES ($1, $2, $3, $4)
		RETURNING id, chat_id, role, content, model_id, created_at
	`
	var m model.Message
	err := r.pool.QueryRow(ctx, q, chatID, role, content, modelID).Scan(&m.ID, &m.ChatID, &m.Role, &m.Content, &m.ModelID, &m.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("creating message in chat %s: %w", chatID, err)
	}
	return &m, nil
}

func (r *chatRepo) ListMessages(ctx context.Context, chatID string, limit int) ([]model.Message, error) {
	const q = `
		SELECT id, chat_id, role, content, model_id, created_at
		FROM chat_messages
		WHERE chat_id = $1
		ORDER BY created_at ASC
		LIMIT $2
	`
	rows, err := r.pool.Query(ctx, q, chatID, limit)
	if err != nil {
		return nil, fmt.Errorf("listing messages for chat %s: %w", chatID, err)
	}
	defer rows.Close()

	var msgs []model.Message
	for rows.Next() {
		var m model.Message
		if err := rows.Scan(&m.ID, &m.ChatID, &m.Role, &m.Content, &m.ModelID, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning message for chat %s: %w", chatID, err)
		}
		msgs = append(msgs, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading messages for chat %s: %w", chatID, err)
	}
	return msgs, nil
}
