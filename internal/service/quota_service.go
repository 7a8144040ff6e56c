package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"chatapi/internal/model"
	"chatapi/internal/quota"
	"chatapi/internal/repository"

	"github.com/rs/zerolog"
)

// ErrUserNotFound indicates the authenticated subject has no user record.
// This is a data-integrity problem, not a quota outcome.
var ErrUserNotFound = errors.New("user not found")

// QuotaService decides whether a user may spend a model tier's daily budget.
// Evaluate is a pure read over ledger state at call time; it performs no
// writes, so two concurrent requests can both be admitted on the same stale
// usage. That soft-limit behavior is intended: real usage is only known after
// the model responds.
type QuotaService interface {
	// Evaluate returns the admission decision for a prospective request
	// costing estimatedTokens.
	Evaluate(ctx context.Context, userID, modelID string, estimatedTokens int64) (*model.AdmissionDecision, error)
	// UsageSummary returns today's per-tier usage together with the user's
	// plan id and that plan's tier ceilings, for usage reporting.
	UsageSummary(ctx context.Context, userID string) (*model.DailyTierUsage, string, map[quota.Tier]int64, error)
}

type quotaService struct {
	userRepo   repository.UserRepository
	subRepo    repository.SubscriptionRepository
	usageRepo  repository.UsageRepository
	classifier *quota.Classifier
	limits     *quota.Limits
	now        func() time.Time
	logger     zerolog.Logger
}

// NewQuotaService creates a QuotaService with a scoped logger. now is
// injectable for tests; pass nil for time.Now.
func NewQuotaService(
	userRepo repository.UserRepository,
	subRepo repository.SubscriptionRepository,
	usageRepo repository.UsageRepository,
	classifier *quota.Classifier,
	limits *quota.Limits,
	now func() time.Time,
	logger zerolog.Logger,
) QuotaService {
	if now == nil {
		now = time.Now
	}
	return &quotaService{
		userRepo:   userRepo,
		subRepo:    subRepo,
		usageRepo:  usageRepo,
		classifier: classifier,
		limits:     limits,
		now:        now,
		logger:     logger.With().Str("service", "QuotaService").Logger(),
	}
}

func (s *quotaService) Evaluate(ctx context.Context, userID, modelID string, estimatedTokens int64) (*model.AdmissionDecision, error) {
	planID, err := s.planForUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	tier := s.classifier.Classify(modelID)

	ceiling, err := s.limits.LimitFor(planID, tier)
	if err != nil {
		return nil, fmt.Errorf("resolving limit for plan %s tier %s: %w", planID, tier, err)
	}

	// Unlimited tiers skip the ledger read entirely.
	if ceiling == quota.Unlimited {
		return &model.AdmissionDecision{
			Allowed:         true,
			Reason:          model.ReasonUnlimited,
			Tier:            tier,
			Plan:            planID,
			DailyLimit:      quota.Unlimited,
			RemainingTokens: quota.Unlimited,
			RequiredTokens:  estimatedTokens,
		}, nil
	}

	usage, err := s.usageRepo.AggregateDaily(ctx, userID, s.now())
	if err != nil {
		return nil, fmt.Errorf("evaluating quota for user %s: %w", userID, err)
	}
	current := usage.TokensFor(tier)

	remaining := ceiling - current
	if remaining < 0 {
		remaining = 0
	}

	decision := &model.AdmissionDecision{
		Tier:            tier,
		Plan:            planID,
		CurrentUsage:    current,
		DailyLimit:      ceiling,
		RemainingTokens: remaining,
		RequiredTokens:  estimatedTokens,
	}
	// Inclusive boundary: a request that lands exactly on the ceiling is
	// admitted.
	if current+estimatedTokens <= ceiling {
		decision.Allowed = true
		decision.Reason = model.ReasonWithinLimits
	} else {
		decision.Allowed = false
		decision.Reason = model.ReasonExceedsLimit
	}
	return decision, nil
}

func (s *quotaService) UsageSummary(ctx context.Context, userID string) (*model.DailyTierUsage, string, map[quota.Tier]int64, error) {
	planID, err := s.planForUser(ctx, userID)
	if err != nil {
		return nil, "", nil, err
	}
	ceilings, err := s.limits.CeilingsFor(planID)
	if err != nil {
		return nil, "", nil, fmt.Errorf("resolving ceilings for plan %s: %w", planID, err)
	}
	usage, err := s.usageRepo.AggregateDaily(ctx, userID, s.now())
	if err != nil {
		return nil, "", nil, fmt.Errorf("summarizing usage for user %s: %w", userID, err)
	}
	return usage, planID, ceilings, nil
}

// planForUser resolves the user's plan id. A missing subscription row is
// normal (new users) and maps to the lowest paid plan; a missing user record
// is not.
func (s *quotaService) planForUser(ctx context.Context, userID string) (string, error) {
	user, err := s.userRepo.GetUserByID(ctx, userID)
	if err != nil {
		return "", fmt.Errorf("resolving plan for user %s: %w", userID, err)
	}
	if user == nil {
		return "", ErrUserNotFound
	}
	sub, err := s.subRepo.GetActiveSubscription(ctx, userID)
	if err != nil {
		return "", fmt.Errorf("resolving subscription for user %s: %w", userID, err)
	}
	if sub == nil {
		return quota.DefaultPlanID, nil
	}
	return sub.PlanID, nil
}
