package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"chatapi/internal/api/v1/dto"
	"chatapi/internal/model"
	"chatapi/internal/service"

	"github.com/rs/zerolog"
)

const AdmissionContextKey = contextKey("admission")

// Caps how much of the body the gate will buffer for cost estimation.
const maxProbeBody = 1 << 20

// completionProbe is the minimal view of a completion request the gate needs:
// the target model and the text sized by the estimator.
type completionProbe struct {
	Model    string `json:"model"`
	System   string `json:"system"`
	Messages []struct {
		Content string `json:"content"`
	} `json:"messages"`
}

// QuotaMiddleware is the admission gate in front of model-invoking
// endpoints. It estimates the request's token cost, consults the quota
// evaluator and either rejects with a structured 429 or attaches the
// decision to the request context.
//
// Enforcement is a best-effort safety net: if the evaluator itself fails
// (ledger unreachable, bad plan data) the gate fails OPEN, logging loudly
// and letting the request through, so quota infrastructure problems never
// take the product down.
func QuotaMiddleware(evaluator service.QuotaService, estimator *service.TokenEstimator, upgradeURL string, logger zerolog.Logger) func(http.Handler) http.Handler {
	log := logger.With().Str("component", "AdmissionGate").Logger()
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID, ok := r.Context().Value(UserContextKey).(string)
			if !ok || userID == "" {
				dto.ErrorResponse{
					Error:   "unauthenticated",
					Code:    dto.CodeNoToken,
					Message: "User identity missing from request context",
				}.Write(w, http.StatusUnauthorized)
				return
			}

			// The handler needs the body too, so buffer and restore it.
			body, err := io.ReadAll(io.LimitReader(r.Body, maxProbeBody))
			if err != nil {
				http.Error(w, "failed to read request body", http.StatusBadRequest)
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(body))

			var probe completionProbe
			_ = json.Unmarshal(body, &probe)
			if probe.Model == "" {
				probe.Model = r.URL.Query().Get("model")
			}
			if probe.Model == "" {
				dto.ErrorResponse{
					Error:   "bad_request",
					Code:    dto.CodeNoModelID,
					Message: "Request is missing a model identifier",
				}.Write(w, http.StatusBadRequest)
				return
			}

			contents := make([]string, len(probe.Messages))
			for i, m := range probe.Messages {
				contents[i] = m.Content
			}
			estimated := estimator.Estimate(contents, probe.System)

			decision, err := evaluator.Evaluate(r.Context(), userID, probe.Model, estimated)
			if err != nil {
				log.Error().Err(err).
					Str("user_id", userID).
					Str("model_id", probe.Model).
					Msg("Quota evaluation failed, failing open")
				next.ServeHTTP(w, r)
				return
			}

			if !decision.Allowed {
				log.Info().
					Str("user_id", userID).
					Str("model_id", probe.Model).
					Str("tier", string(decision.Tier)).
					Int64("current_usage", decision.CurrentUsage).
					Int64("daily_limit", decision.DailyLimit).
					Msg("Request denied by quota")
				dto.ErrorResponse{
					Error:   "quota_exceeded",
					Code:    dto.CodeUsageLimitReached,
					Details: decision,
					Message: fmt.Sprintf(
						"Daily token limit reached for the %s tier (%d/%d tokens used). Upgrade your plan to continue.",
						decision.Tier, decision.CurrentUsage, decision.DailyLimit),
					UpgradeURL: upgradeURL,
				}.Write(w, http.StatusTooManyRequests)
				return
			}

			ctx := context.WithValue(r.Context(), AdmissionContextKey, decision)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// AdmissionFromContext returns the gate's decision, or nil when the request
// bypassed the gate or the gate failed open.
func AdmissionFromContext(ctx context.Context) *model.AdmissionDecision {
	decision, _ := ctx.Value(AdmissionContextKey).(*model.AdmissionDecision)
	return decision
}
