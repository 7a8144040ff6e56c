package quota

import "errors"

// ErrUnknownPlan is returned when a plan id is not present in the limit
// table. An unrecognized plan means bad data upstream, so the lookup fails
// instead of guessing a ceiling.
var ErrUnknownPlan = errors.New("unknown_plan")

// Unlimited is the ceiling sentinel meaning no daily cap.
const Unlimited int64 = -1

// Limits is the static plan → tier → daily token ceiling table.
type Limits struct {
	plans map[string]map[Tier]int64
}

// NewLimits deep-copies the given table.
func NewLimits(plans map[string]map[Tier]int64) *Limits {
	cp := make(map[string]map[Tier]int64, len(plans))
	for plan, tiers := range plans {
		t := make(map[Tier]int64, len(tiers))
		for tier, ceiling := range tiers {
			t[tier] = ceiling
		}
		cp[plan] = t
	}
	return &Limits{plans: cp}
}

// NewDefaultLimits returns the production plan table.
func NewDefaultLimits() *Limits {
	return NewLimits(defaultPlanLimits)
}

// LimitFor returns the daily token ceiling for a (plan, tier) pair.
// A tier missing from a known plan is treated as Unlimited, never as zero.
func (l *Limits) LimitFor(planID string, tier Tier) (int64, error) {
	tiers, ok := l.plans[planID]
	if !ok {
		return 0, ErrUnknownPlan
	}
	ceiling, ok := tiers[tier]
	if !ok {
		return Unlimited, nil
	}
	return ceiling, nil
}

// CeilingsFor returns a copy of every tier ceiling for a plan, for usage
// reporting endpoints.
func (l *Limits) CeilingsFor(planID string) (map[Tier]int64, error) {
	tiers, ok := l.plans[planID]
	if !ok {
		return nil, ErrUnknownPlan
	}
	cp := make(map[Tier]int64, len(tiers))
	for tier, ceiling := range tiers {
		cp[tier] = ceiling
	}
	return cp, nil
}

// DefaultPlanID is assumed for users without an active subscription row.
// It is the lowest paid plan.
const DefaultPlanID = "explore"

var defaultPlanLimits = map[string]map[Tier]int64{
	"free": {
		TierUltraPremium: 10000,
		TierPremium:      20000,
		TierStandard:     100000,
		TierFree:         Unlimited,
	},
	"explore": {
		TierUltraPremium: 25000,
		TierPremium:      50000,
		TierStandard:     Unlimited,
		TierFree:         Unlimited,
	},
	"power": {
		TierUltraPremium: 100000,
		TierPremium:      Unlimited,
		TierStandard:     Unlimited,
		TierFree:         Unlimited,
	},
	"max": {
		TierUltraPremium: Unlimited,
		TierPremium:      Unlimited,
		TierStandard:     Unlimited,
		TierFree:         Unlimited,
	},
}
