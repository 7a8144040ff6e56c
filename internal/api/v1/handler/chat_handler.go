package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"chatapi/internal/api/v1/dto"
	"chatapi/internal/middleware"
	"chatapi/internal/model"
	"chatapi/internal/quota"
	"chatapi/internal/recorder"
	"chatapi/internal/service"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
)

type ChatHandler struct {
	chatService service.ChatService
	recorder    *recorder.Recorder
	classifier  *quota.Classifier
	validate    *validator.Validate
	logger      zerolog.Logger
}

func NewChatHandler(chatService service.ChatService, rec *recorder.Recorder, classifier *quota.Classifier, validate *validator.Validate, logger zerolog.Logger) *ChatHandler {
	return &ChatHandler{
		chatService: chatService,
		recorder:    rec,
		classifier:  classifier,
		validate:    validate,
		logger:      logger,
	}
}

// RegisterRoutes registers the chat endpoints. Only the completion endpoint
// goes through the admission gate; plain CRUD never touches quota state.
func (h *ChatHandler) RegisterRoutes(mux *http.ServeMux, authMw, quotaMw func(http.Handler) http.Handler) {
	mux.Handle("POST /chats", authMw(http.HandlerFunc(h.createChat)))
	mux.Handle("GET /chats", authMw(http.HandlerFunc(h.listChats)))
	mux.Handle("GET /chats/{id}/messages", authMw(http.HandlerFunc(h.listMessages)))
	mux.Handle("POST /chat/completions", authMw(quotaMw(http.HandlerFunc(h.createCompletion))))
}

// createChat godoc
// @Summary Create a new chat
// @Description Creates a new chat conversation. The title is optional and defaults to "New Chat".
// @Tags chats
// @Accept json
// @Produce json
// @Param chat body dto.ChatCreateRequest false "Chat creation request"
// @Success 201 {object} dto.ChatResponse
// @Failure 400 {string} string "Invalid JSON payload"
// @Failure 401 {object} dto.ErrorResponse
// @Router /chats [post]
func (h *ChatHandler) createChat(w http.ResponseWriter, r *http.Request) {
	userID, ok := r.Context().Value(middleware.UserContextKey).(string)
	if !ok || userID == "" {
		http.Error(w, "Unauthorized: User ID not found in context", http.StatusUnauthorized)
		return
	}

	var req dto.ChatCreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid JSON payload: "+err.Error(), http.StatusBadRequest)
		return
	}

	title := ""
	if req.Title != nil {
		title = *req.Title
	}

	chat, err := h.chatService.CreateChat(r.Context(), userID, title)
	if err != nil {
		http.Error(w, "Failed to create chat", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	if err := json.NewEncoder(w).Encode(chatResponse(chat)); err != nil {
		h.logger.Error().Err(err).Msg("Failed to encode response")
	}
}

// listChats godoc
// @Summary List the caller's chats
// @Tags chats
// @Produce json
// @Param limit query int false "Maximum number of chats to return" default(50)
// @Param offset query int false "Number of chats to skip" default(0)
// @Success 200 {array} dto.ChatResponse
// @Failure 401 {object} dto.ErrorResponse
// @Router /chats [get]
func (h *ChatHandler) listChats(w http.ResponseWriter, r *http.Request) {
	userID, ok := r.Context().Value(middleware.UserContextKey).(string)
	if !ok || userID == "" {
		http.Error(w, "Unauthorized: User ID not found in context", http.StatusUnauthorized)
		return
	}

	limit := 50
	offset := 0
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if parsed, err := strconv.Atoi(limitStr); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	if offsetStr := r.URL.Query().Get("offset"); offsetStr != "" {
		if parsed, err := strconv.Atoi(offsetStr); err == nil && parsed >= 0 {
			offset = parsed
		}
	}

	chats, err := h.chatService.ListChats(r.Context(), userID, limit, offset)
	if err != nil {
		http.Error(w, "Failed to list chats", http.StatusInternalServerError)
		return
	}

	resp := make([]dto.ChatResponse, len(chats))
	for i := range chats {
		resp[i] = chatResponse(&chats[i])
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		h.logger.Error().Err(err).Msg("Failed to encode response")
	}
}

// listMessages godoc
// @Summary List messages in a chat
// @Tags chats
// @Produce json
// @Param id path string true "Chat ID"
// @Param limit query int false "Maximum number of messages to return" default(100)
// @Success 200 {array} dto.MessageResponse
// @Failure 401 {object} dto.ErrorResponse
// @Failure 404 {string} string "Chat not found"
// @Router /chats/{id}/messages [get]
func (h *ChatHandler) listMessages(w http.ResponseWriter, r *http.Request) {
	userID, ok := r.Context().Value(middleware.UserContextKey).(string)
	if !ok || userID == "" {
		http.Error(w, "Unauthorized: User ID not found in context", http.StatusUnauthorized)
		return
	}
	chatID := r.PathValue("id")

	limit := 100
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if parsed, err := strconv.Atoi(limitStr); err == nil && parsed > 0 {
			limit = parsed
		}
	}

	messages, err := h.chatService.ListMessages(r.Context(), chatID, userID, limit)
	if err != nil {
		if errors.Is(err, service.ErrChatNotFound) || errors.Is(err, service.ErrUnauthorized) {
			http.Error(w, "Chat not found", http.StatusNotFound)
			return
		}
		http.Error(w, "Failed to list messages", http.StatusInternalServerError)
		return
	}

	resp := make([]dto.MessageResponse, len(messages))
	for i, m := range messages {
		resp[i] = dto.MessageResponse{
			ID:        m.ID,
			ChatID:    m.ChatID,
			Role:      m.Role,
			Content:   m.Content,
			ModelID:   m.ModelID,
			CreatedAt: m.CreatedAt,
		}
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		h.logger.Error().Err(err).Msg("Failed to encode response")
	}
}

// createCompletion godoc
// @Summary Invoke a model
// @Description Runs a chat completion against the upstream provider. Admission is decided by the quota gate before this handler runs; actual token usage is recorded asynchronously after the response is sent.
// @Tags chats
// @Accept json
// @Produce json
// @Param completion body dto.CompletionRequest true "Completion request"
// @Success 200 {object} dto.CompletionResponse
// @Failure 400 {object} dto.ErrorResponse
// @Failure 401 {object} dto.ErrorResponse
// @Failure 404 {string} string "Chat not found"
// @Failure 429 {object} dto.ErrorResponse
// @Router /chat/completions [post]
func (h *ChatHandler) createCompletion(w http.ResponseWriter, r *http.Request) {
	userID, ok := r.Context().Value(middleware.UserContextKey).(string)
	if !ok || userID == "" {
		http.Error(w, "Unauthorized: User ID not found in context", http.StatusUnauthorized)
		return
	}

	var req dto.CompletionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid JSON payload: "+err.Error(), http.StatusBadRequest)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		http.Error(w, "Invalid completion request: "+err.Error(), http.StatusBadRequest)
		return
	}

	messages := make([]service.ProviderMessage, 0, len(req.Messages)+1)
	if req.System != "" {
		messages = append(messages, service.ProviderMessage{Role: "system", Content: req.System})
	}
	for _, m := range req.Messages {
		messages = append(messages, service.ProviderMessage{Role: m.Role, Content: m.Content})
	}

	result, err := h.chatService.Complete(r.Context(), userID, req.ChatID, req.Model, messages)
	if err != nil {
		if errors.Is(err, service.ErrChatNotFound) || errors.Is(err, service.ErrUnauthorized) {
			http.Error(w, "Chat not found", http.StatusNotFound)
			return
		}
		h.logger.Error().Err(err).Str("model", req.Model).Msg("Completion failed")
		http.Error(w, "Failed to complete chat", http.StatusBadGateway)
		return
	}

	resp := dto.CompletionResponse{
		ID:           result.ID,
		ChatID:       result.ChatID,
		Model:        result.Model,
		Content:      result.Content,
		FinishReason: result.FinishReason,
	}
	if result.Usage != nil {
		resp.Usage = &dto.CompletionUsage{
			PromptTokens:     result.Usage.PromptTokens,
			CompletionTokens: result.Usage.CompletionTokens,
			TotalTokens:      result.Usage.TotalTokens,
		}
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		h.logger.Error().Err(err).Msg("Failed to encode response")
	}

	// The response is on the wire; record the authoritative usage without
	// touching the client path.
	h.recordUsage(r, userID, &req, result)
}

// recordUsage hands the provider's token accounting to the async recorder.
// Responses without a usage envelope are skipped silently.
func (h *ChatHandler) recordUsage(r *http.Request, userID string, req *dto.CompletionRequest, result *service.CompletionResult) {
	if result.Usage == nil {
		return
	}

	modelID := result.Model
	if modelID == "" {
		modelID = req.Model
	}
	tier := h.classifier.Classify(modelID)
	if decision := middleware.AdmissionFromContext(r.Context()); decision != nil {
		tier = decision.Tier
	}

	var conversationID *string
	if result.ChatID != "" {
		id := result.ChatID
		conversationID = &id
	}

	h.recorder.Enqueue(model.UsageEvent{
		UserID:           userID,
		ModelID:          req.Model,
		ModelName:        modelID,
		ModelTier:        tier,
		PromptTokens:     result.Usage.PromptTokens,
		CompletionTokens: result.Usage.CompletionTokens,
		TotalTokens:      result.Usage.TotalTokens,
		CostEstimate:     service.EstimateCost(modelID, result.Usage.PromptTokens, result.Usage.CompletionTokens),
		ConversationID:   conversationID,
	})
}

func chatResponse(c *model.Chat) dto.ChatResponse {
	return dto.ChatResponse{
		ID:        c.ID,
		UserID:    c.UserID,
		Title:     c.Title,
		CreatedAt: c.CreatedAt,
		UpdatedAt: c.UpdatedAt,
	}
}
