package service

import (
	"context"
	"errors"
	"fmt"

	"chatapi/internal/model"
	"chatapi/internal/repository"

	"github.com/rs/zerolog"
)

var (
	ErrChatNotFound = errors.New("chat not found")
	ErrUnauthorized = errors.New("unauthorized access")
	ErrEmptyReply   = errors.New("provider returned no choices")
)

// CompletionResult is the outcome of one model invocation, including the
// provider's authoritative usage envelope for post-response recording.
type CompletionResult struct {
	ID           string
	ChatID       string
	Model        string
	Content      string
	FinishReason string
	Usage        *ProviderUsage
}

type ChatService interface {
	CreateChat(ctx context.Context, userID, title string) (*model.Chat, error)
	ListChats(ctx context.Context, userID string, limit, offset int) ([]model.Chat, error)
	ListMessages(ctx context.Context, chatID, userID string, limit int) ([]model.Message, error)
	// Complete invokes the model provider. When chatID is non-empty the
	// exchange is persisted to that chat after ownership is verified.
	Complete(ctx context.Context, userID, chatID, modelID string, messages []ProviderMessage) (*CompletionResult, error)
}

type chatService struct {
	chatRepo repository.ChatRepository
	provider ProviderClient
	logger   zerolog.Logger
}

func NewChatService(chatRepo repository.ChatRepository, provider ProviderClient, logger zerolog.Logger) ChatService {
	return &chatService{
		chatRepo: chatRepo,
		provider: provider,
		logger:   logger.With().Str("service", "ChatService").Logger(),
	}
}

func (s *chatService) CreateChat(ctx context.Context, userID, title string) (*model.Chat, error) {
	if title == "" {
		title = "New Chat"
	}
	chat, err := s.chatRepo.CreateChat(ctx, userID, title)
	if err != nil {
		s.logger.Error().Err(err).Str("user_id", userID).Msg("Failed to create chat")
		return nil, fmt.Errorf("creating chat: %w", err)
	}
	return chat, nil
}

func (s *chatService) ListChats(ctx context.Context, userID string, limit, offset int) ([]model.Chat, error) {
	chats, err := s.chatRepo.ListChats(ctx, userID, limit, offset)
	if err != nil {
		s.logger.Error().Err(err).Str("user_id", userID).Msg("Failed to list chats")
		return nil, fmt.Errorf("listing chats: %w", err)
	}
	return chats, nil
}

func (s *chatService) ListMessages(ctx context.Context, chatID, userID string, limit int) ([]model.Message, error) {
	if _, err := s.ownedChat(ctx, chatID, userID); err != nil {
		return nil, err
	}
	messages, err := s.chatRepo.ListMessages(ctx, chatID, limit)
	if err != nil {
		s.logger.Error().Err(err).Str("chat_id", chatID).Msg("Failed to list messages")
		return nil, fmt.Errorf("listing messages: %w", err)
	}
	return messages, nil
}

func (s *chatService) Complete(ctx context.Context, userID, chatID, modelID string, messages []ProviderMessage) (*CompletionResult, error) {
	if chatID != "" {
		if _, err := s.ownedChat(ctx, chatID, userID); err != nil {
			return nil, err
		}
	}

	resp, err := s.provider.CreateCompletion(ctx, &ProviderRequest{Model: modelID, Messages: messages})
	if err != nil {
		s.logger.Error().Err(err).Str("model", modelID).Str("user_id", userID).Msg("Provider call failed")
		return nil, fmt.Errorf("completing chat: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, ErrEmptyReply
	}
	choice := resp.Choices[0]

	if chatID != "" {
		// Persist the exchange. A storage failure here must not discard the
		// completion the user already paid tokens for.
		if last := lastUserMessage(messages); last != "" {
			if _, err := s.chatRepo.CreateMessage(ctx, chatID, "user", last, modelID); err != nil {
				s.logger.Error().Err(err).Str("chat_id", chatID).Msg("Failed to store user message")
			}
		}
		if _, err := s.chatRepo.CreateMessage(ctx, chatID, "assistant", choice.Message.Content, resp.Model); err != nil {
			s.logger.Error().Err(err).Str("chat_id", chatID).Msg("Failed to store assistant message")
		}
	}

	return &CompletionResult{
		ID:           resp.ID,
		ChatID:       chatID,
		Model:        resp.Model,
		Content:      choice.Message.Content,
		FinishReason: choice.FinishReason,
		Usage:        resp.Usage,
	}, nil
}

func (s *chatService) ownedChat(ctx context.Context, chatID, userID string) (*model.Chat, error) {
	chat, err := s.chatRepo.GetChat(ctx, chatID)
	if err != nil {
		if errors.Is(err, repository.ErrChatNotFound) {
			return nil, ErrChatNotFound
		}
		return nil, fmt.Errorf("fetching chat: %w", err)
	}
	if chat.UserID != userID {
		return nil, ErrUnauthorized
	}
	return chat, nil
}

func lastUserMessage(messages []ProviderMessage) string {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == "user" {
			return messages[i].Content
		}
	}
	return ""
}
