package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"chatapi/internal/api/v1/dto"
	"chatapi/internal/middleware"
	"chatapi/internal/quota"
	"chatapi/internal/service"

	"github.com/rs/zerolog"
)

// UsageHandler exposes usage reporting for the authenticated user.
type UsageHandler struct {
	quotaSvc  service.QuotaService
	exportSvc service.ExportService // nil when object storage is not configured
	logger    zerolog.Logger
}

func NewUsageHandler(quotaSvc service.QuotaService, exportSvc service.ExportService, logger zerolog.Logger) *UsageHandler {
	return &UsageHandler{quotaSvc: quotaSvc, exportSvc: exportSvc, logger: logger}
}

func (h *UsageHandler) RegisterRoutes(mux *http.ServeMux, authMw func(http.Handler) http.Handler) {
	mux.Handle("GET /usage", authMw(http.HandlerFunc(h.getUsage)))
	mux.Handle("POST /usage/export", authMw(http.HandlerFunc(h.exportUsage)))
}

// getUsage godoc
// @Summary Today's token usage against plan limits
// @Description Returns the caller's per-tier token consumption for the current UTC day together with each tier's daily ceiling (-1 = unlimited).
// @Tags usage
// @Produce json
// @Success 200 {object} dto.UsageSummaryResponse
// @Failure 401 {object} dto.ErrorResponse
// @Failure 404 {string} string "User not found"
// @Router /usage [get]
func (h *UsageHandler) getUsage(w http.ResponseWriter, r *http.Request) {
	userID, ok := r.Context().Value(middleware.UserContextKey).(string)
	if !ok || userID == "" {
		http.Error(w, "Unauthorized: User ID not found in context", http.StatusUnauthorized)
		return
	}

	usage, planID, ceilings, err := h.quotaSvc.UsageSummary(r.Context(), userID)
	if err != nil {
		if errors.Is(err, service.ErrUserNotFound) {
			http.Error(w, "User not found", http.StatusNotFound)
			return
		}
		h.logger.Error().Err(err).Str("user_id", userID).Msg("Failed to summarize usage")
		http.Error(w, "Failed to fetch usage", http.StatusInternalServerError)
		return
	}

	resp := dto.UsageSummaryResponse{
		Date:  usage.Date.Format("2006-01-02"),
		Plan:  planID,
		Tiers: make(map[string]dto.TierUsage, len(ceilings)),
	}
	for tier, ceiling := range ceilings {
		totals := usage.Tiers[tier]
		remaining := ceiling
		if ceiling != quota.Unlimited {
			remaining = ceiling - totals.Tokens
			if remaining < 0 {
				remaining = 0
			}
		}
		resp.Tiers[string(tier)] = dto.TierUsage{
			Tokens:     totals.Tokens,
			Requests:   totals.Requests,
			Cost:       totals.Cost,
			DailyLimit: ceiling,
			Remaining:  remaining,
		}
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		h.logger.Error().Err(err).Msg("Failed to encode response")
	}
}

// exportUsage godoc
// @Summary Export a daily usage report to object storage
// @Tags usage
// @Produce json
// @Param date query string false "UTC day to export (2006-01-02), defaults to today"
// @Success 200 {object} dto.UsageExportResponse
// @Failure 400 {string} string "Invalid date"
// @Failure 401 {object} dto.ErrorResponse
// @Failure 503 {string} string "Export not configured"
// @Router /usage/export [post]
func (h *UsageHandler) exportUsage(w http.ResponseWriter, r *http.Request) {
	userID, ok := r.Context().Value(middleware.UserContextKey).(string)
	if !ok || userID == "" {
		http.Error(w, "Unauthorized: User ID not found in context", http.StatusUnauthorized)
		return
	}
	if h.exportSvc == nil {
		http.Error(w, "Usage export is not configured", http.StatusServiceUnavailable)
		return
	}

	day := time.Now().UTC()
	if dateStr := r.URL.Query().Get("date"); dateStr != "" {
		parsed, err := time.Parse("2006-01-02", dateStr)
		if err != nil {
			http.Error(w, "Invalid date, expected YYYY-MM-DD", http.StatusBadRequest)
			return
		}
		day = parsed
	}

	key, err := h.exportSvc.ExportDaily(r.Context(), userID, day)
	if err != nil {
		h.logger.Error().Err(err).Str("user_id", userID).Msg("Failed to export usage report")
		http.Error(w, "Failed to export usage report", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(dto.UsageExportResponse{Key: key}); err != nil {
		h.logger.Error().Err(err).Msg("Failed to encode response")
	}
}
