package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// ProviderMessage is one message in the provider's chat format.
type ProviderMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ProviderRequest is the upstream chat completion request body.
type ProviderRequest struct {
	Model    string            `json:"model"`
	Messages []ProviderMessage `json:"messages"`
}

// ProviderUsage carries the authoritative token counts from the provider's
// response envelope. Absent for non-completion responses.
type ProviderUsage struct {
	PromptTokens     int64 `json:"prompt_tokens"`
	CompletionTokens int64 `json:"completion_tokens"`
	TotalTokens      int64 `json:"total_tokens"`
}

// ProviderChoice is one returned completion.
type ProviderChoice struct {
	Message      ProviderMessage `json:"message"`
	FinishReason string          `json:"finish_reason"`
}

// ProviderResponse is the provider's JSON response envelope. Only the fields
// this service reads are modeled.
type ProviderResponse struct {
	ID      string           `json:"id"`
	Model   string           `json:"model"`
	Choices []ProviderChoice `json:"choices"`
	Usage   *ProviderUsage   `json:"usage,omitempty"`
}

// ProviderClient calls the upstream OpenAI-compatible model provider.
type ProviderClient interface {
	CreateCompletion(ctx context.Context, req *ProviderRequest) (*ProviderResponse, error)
}

type providerClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	logger     zerolog.Logger
}

// NewProviderClient creates a client for the provider at baseURL.
func NewProviderClient(baseURL, apiKey string, timeout time.Duration, logger zerolog.Logger) ProviderClient {
	return &providerClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger.With().Str("service", "ProviderClient").Logger(),
	}
}

func (c *providerClient) CreateCompletion(ctx context.Context, preq *ProviderRequest) (*ProviderResponse, error) {
	body, err := json.Marshal(preq)
	if err != nil {
		return nil, fmt.Errorf("encoding provider request: %w", err)
	}

	endpoint := c.baseURL + "/v1/chat/completions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("building provider request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("calling provider: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("provider returned status %d: %s", resp.StatusCode, string(raw))
	}

	var out ProviderResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decoding provider response: %w", err)
	}
	c.logger.Debug().Str("model", preq.Model).Str("duration", time.Since(start).String()).Msg("Provider completion succeeded")
	return &out, nil
}
