package repository

import (
	"context"
	"errors"
	"fmt"

	"chatapi/internal/model"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// SubscriptionRepository reads the subscription facts maintained by the
// billing system. This service never writes them.
type SubscriptionRepository interface {
	// GetActiveSubscription returns the user's current subscription, or
	// (nil, nil) when there is none.
	GetActiveSubscription(ctx context.Context, userID string) (*model.UserSubscription, error)
}

type subscriptionRepo struct {
	pool *pgxpool.Pool
}

// NewSubscriptionRepo creates a new SubscriptionRepository.
func NewSubscriptionRepo(pool *pgxpool.Pool) SubscriptionRepository {
	return &subscriptionRepo{pool: pool}
}

// GetActiveSubscription returns the current active subscription for a user.
func (r *subscriptionRepo) GetActiveSubscription(ctx context.Context, userID string) (*model.UserSubscription, error) {
	const q = `
        SELECT user_id, plan_id, starts_at, ends_at, status, created_at, updated_at
        FROM user_subscriptions
        WHERE user_id = $1
          AND status IN ('active', 'cancelled') -- Paid users keep access until the period ends
          AND ends_at > NOW()
    `
	var us model.UserSubscription
	err := r.pool.QueryRow(ctx, q, userID).Scan(
		&us.UserID,
		&us.PlanID,
		&us.StartsAt,
		&us.EndsAt,
		&us.Status,
		&us.CreatedAt,
		&us.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("fetch active subscription for user %s: %w", userID, err)
	}
	return &us, nil
}
