// Package quota holds the model tier classification and plan limit tables
// used by the admission pipeline. Both are immutable after construction so
// tests can inject their own tables.
package quota

import "strings"

// Tier is the cost classification bucket for a model.
type Tier string

const (
	TierUltraPremium Tier = "ultra_premium"
	TierPremium      Tier = "premium"
	TierStandard     Tier = "standard"
	TierFree         Tier = "free"
)

// PatternRule maps a case-insensitive substring to a tier. Rules are
// evaluated in slice order, so higher-cost patterns must come first.
type PatternRule struct {
	Substring string
	Tier      Tier
}

// Classifier resolves a model identifier to a tier: exact table first, then
// ordered pattern rules, then TierStandard. Classification is total; unknown
// models land on the most permissive paid tier instead of erroring so the
// gate keeps working when providers ship new models.
type Classifier struct {
	exact    map[string]Tier
	patterns []PatternRule
}

// NewClassifier copies the given tables so callers cannot mutate them later.
// Exact keys are matched case-insensitively.
func NewClassifier(exact map[string]Tier, patterns []PatternRule) *Classifier {
	e := make(map[string]Tier, len(exact))
	for k, v := range exact {
		e[strings.ToLower(k)] = v
	}
	p := make([]PatternRule, len(patterns))
	copy(p, patterns)
	return &Classifier{exact: e, patterns: p}
}

// NewDefaultClassifier returns a classifier loaded with the production model
// tables.
func NewDefaultClassifier() *Classifier {
	return NewClassifier(defaultExactTiers, defaultPatternRules)
}

// Classify returns the tier for a model identifier. Never fails.
func (c *Classifier) Classify(modelID string) Tier {
	id := strings.ToLower(strings.TrimSpace(modelID))
	if tier, ok := c.exact[id]; ok {
		return tier
	}
	for _, rule := range c.patterns {
		if strings.Contains(id, strings.ToLower(rule.Substring)) {
			return rule.Tier
		}
	}
	return TierStandard
}

var defaultExactTiers = map[string]Tier{
	// Ultra premium: frontier reasoning models
	"o3-pro":          TierUltraPremium,
	"claude-opus-4":   TierUltraPremium,
	"gpt-4.5-preview": TierUltraPremium,

	// Premium: flagship chat models
	"gpt-4o":          TierPremium,
	"gpt-4-turbo":     TierPremium,
	"o3":              TierPremium,
	"claude-sonnet-4": TierPremium,
	"gemini-2.5-pro":  TierPremium,

	// Standard
	"gpt-4.1":           TierStandard,
	"claude-3-5-sonnet": TierStandard,
	"deepseek-chat":     TierStandard,

	// Free: small/fast models
	"gpt-4o-mini":      TierFree,
	"gemini-2.0-flash": TierFree,
	"llama-3.1-8b":     TierFree,
}

// Ordered highest cost first so an id like "gemini-2.5-flash-opus" resolves
// to the most expensive matching bucket.
var defaultPatternRules = []PatternRule{
	{Substring: "opus", Tier: TierUltraPremium},
	{Substring: "ultra", Tier: TierUltraPremium},
	{Substring: "o1-pro", Tier: TierUltraPremium},

	{Substring: "sonnet", Tier: TierPremium},
	{Substring: "gpt-4", Tier: TierPremium},
	{Substring: "gemini-2.5", Tier: TierPremium},
	{Substring: "grok", Tier: TierPremium},

	{Substring: "mini", Tier: TierFree},
	{Substring: "nano", Tier: TierFree},
	{Substring: "flash", Tier: TierFree},
	{Substring: "lite", Tier: TierFree},
}
