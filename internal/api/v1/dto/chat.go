package dto

import "time"

// ChatCreateRequest creates a new conversation.
type ChatCreateRequest struct {
	Title *string `json:"title"`
}

// ChatResponse is the wire form of a chat.
type ChatResponse struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// MessageResponse is the wire form of a chat message.
type MessageResponse struct {
	ID        string    `json:"id"`
	ChatID    string    `json:"chat_id"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	ModelID   string    `json:"model_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// ChatMessage is one message in a completion request.
type ChatMessage struct {
	Role    string `json:"role" validate:"required,oneof=system user assistant"`
	Content string `json:"content" validate:"required"`
}

// CompletionRequest invokes a model. ChatID is optional; when set, the
// exchange is persisted to that chat.
type CompletionRequest struct {
	ChatID   string        `json:"chat_id"`
	Model    string        `json:"model" validate:"required"`
	System   string        `json:"system"`
	Messages []ChatMessage `json:"messages" validate:"required,min=1,dive"`
}

// CompletionUsage mirrors the provider's token accounting.
type CompletionUsage struct {
	PromptTokens     int64 `json:"prompt_tokens"`
	CompletionTokens int64 `json:"completion_tokens"`
	TotalTokens      int64 `json:"total_tokens"`
}

// CompletionResponse is the client-facing completion result.
type CompletionResponse struct {
	ID           string           `json:"id"`
	ChatID       string           `json:"chat_id,omitempty"`
	Model        string           `json:"model"`
	Content      string           `json:"content"`
	FinishReason string           `json:"finish_reason"`
	Usage        *CompletionUsage `json:"usage,omitempty"`
}
