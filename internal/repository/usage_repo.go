package repository

import (
	"context"
	"fmt"
	"time"

	"chatapi/internal/model"
	"chatapi/internal/quota"

	"github.com/jackc/pgx/v5/pgxpool"
)

// UsageRepository is the append-only usage ledger. Events are single-row
// inserts, so a write is either fully visible to later aggregations or not
// visible at all; no cross-row transactions are needed.
type UsageRepository interface {
	// InsertEvent durably persists one usage event and fills in the
	// generated id and recorded_at timestamp.
	InsertEvent(ctx context.Context, ev *model.UsageEvent) error
	// AggregateDaily sums all committed events for the user on the UTC
	// calendar day containing day, grouped by tier.
	AggregateDaily(ctx context.Context, userID string, day time.Time) (*model.DailyTierUsage, error)
}

type usageRepo struct {
	pool *pgxpool.Pool
}

// NewUsageRepo creates a new UsageRepository.
func NewUsageRepo(pool *pgxpool.Pool) UsageRepository {
	return &usageRepo{pool: pool}
}

func (r *usageRepo) InsertEvent(ctx context.Context, ev *model.UsageEvent) error {
	const q = `
		INSERT INTO usage_events
			(user_id, model_id, model_name, model_tier, prompt_tokens, completion_tokens, total_tokens, cost_estimate, conversation_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id, recorded_at
	`
	err := r.pool.QueryRow(ctx, q,
		ev.UserID,
		ev.ModelID,
		ev.ModelName,
		string(ev.ModelTier),
		ev.PromptTokens,
		ev.CompletionTokens,
		ev.TotalTokens,
		ev.CostEstimate,
		ev.ConversationID,
	).Scan(&ev.ID, &ev.RecordedAt)
	if err != nil {
		return fmt.Errorf("inserting usage event for user %s: %w", ev.UserID, err)
	}
	return nil
}

// AggregateDaily runs as a single statement, so concurrently committing
// writes are either fully included or fully excluded from the sums.
func (r *usageRepo) AggregateDaily(ctx context.Context, userID string, day time.Time) (*model.DailyTierUsage, error) {
	start, end := model.UTCDayBounds(day)
	const q = `
		SELECT model_tier,
		       COALESCE(SUM(total_tokens), 0)  AS tokens,
		       COUNT(*)                        AS requests,
		       COALESCE(SUM(cost_estimate), 0) AS cost
		FROM usage_events
		WHERE user_id = $1
		  AND recorded_at >= $2
		  AND recorded_at < $3
		GROUP BY model_tier
	`
	rows, err := r.pool.Query(ctx, q, userID, start, end)
	if err != nil {
		return nil, fmt.Errorf("aggregating daily usage for user %s: %w", userID, err)
	}
	defer rows.Close()

	usage := &model.DailyTierUsage{
		Date:  start,
		Tiers: make(map[quota.Tier]model.TierTotals),
	}
	for rows.Next() {
		var tier string
		var totals model.TierTotals
		if err := rows.Scan(&tier, &totals.Tokens, &totals.Requests, &totals.Cost); err != nil {
			return nil, fmt.Errorf("scanning daily usage for user %s: %w", userID, err)
		}
		usage.Tiers[quota.Tier(tier)] = totals
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading daily usage for user %s: %w", userID, err)
	}
	return usage, nil
}
