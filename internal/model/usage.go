package model

import (
	"time"

	"chatapi/internal/quota"
)

// UsageEvent is one completed, admitted model invocation. Events are
// append-only: they are inserted exactly once by the recorder and never
// mutated or deleted afterwards.
type UsageEvent struct {
	ID               int64      `db:"id" json:"id"`
	UserID           string     `db:"user_id" json:"user_id"`
	ModelID          string     `db:"model_id" json:"model_id"`
	ModelName        string     `db:"model_name" json:"model_name"`
	ModelTier        quota.Tier `db:"model_tier" json:"model_tier"`
	PromptTokens     int64      `db:"prompt_tokens" json:"prompt_tokens"`
	CompletionTokens int64      `db:"completion_tokens" json:"completion_tokens"`
	TotalTokens      int64      `db:"total_tokens" json:"total_tokens"`
	CostEstimate     float64    `db:"cost_estimate" json:"cost_estimate"`
	ConversationID   *string    `db:"conversation_id" json:"conversation_id,omitempty"`
	RecordedAt       time.Time  `db:"recorded_at" json:"recorded_at"`
}

// TierTotals aggregates one tier's consumption for a day.
type TierTotals struct {
	Tokens   int64   `json:"tokens"`
	Requests int64   `json:"requests"`
	Cost     float64 `json:"cost"`
}

// DailyTierUsage is a read-side projection of one user's UsageEvents for one
// UTC calendar day, grouped by tier. It has no lifecycle of its own.
type DailyTierUsage struct {
	Date  time.Time                 `json:"date"`
	Tiers map[quota.Tier]TierTotals `json:"tiers"`
}

// TokensFor returns the day's token total for a tier, zero if absent.
func (d *DailyTierUsage) TokensFor(tier quota.Tier) int64 {
	if d == nil || d.Tiers == nil {
		return 0
	}
	return d.Tiers[tier].Tokens
}

// UTCDayBounds returns the half-open interval [start, end) of the UTC
// calendar day containing t. Quotas reset at UTC midnight.
func UTCDayBounds(t time.Time) (start, end time.Time) {
	u := t.UTC()
	start = time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
	end = start.Add(24 * time.Hour)
	return
}

// Admission decision reason codes.
const (
	ReasonUnlimited    = "unlimited"
	ReasonWithinLimits = "within_limits"
	ReasonExceedsLimit = "exceeds_daily_limit"
)

// AdmissionDecision is the transient outcome of a quota evaluation. It is
// built per request, attached to the request context when allowed, and never
// persisted.
type AdmissionDecision struct {
	Allowed         bool       `json:"allowed"`
	Reason          string     `json:"reason"`
	Tier            quota.Tier `json:"tier"`
	Plan            string     `json:"plan"`
	CurrentUsage    int64      `json:"current_usage"`
	DailyLimit      int64      `json:"daily_limit"`
	RemainingTokens int64      `json:"remaining_tokens"`
	RequiredTokens  int64      `json:"required_tokens"`
}
