package service

import "strings"

// modelPricing holds per-model token pricing in dollars per million tokens.
type modelPricing struct {
	inputPerMillion  float64
	outputPerMillion float64
}

// Approximate published rates; only used to fill UsageEvent.CostEstimate for
// reporting, never for billing.
var defaultPricing = map[string]modelPricing{
	"o3-pro":            {inputPerMillion: 20.0, outputPerMillion: 80.0},
	"claude-opus-4":     {inputPerMillion: 15.0, outputPerMillion: 75.0},
	"gpt-4.5-preview":   {inputPerMillion: 75.0, outputPerMillion: 150.0},
	"gpt-4o":            {inputPerMillion: 2.5, outputPerMillion: 10.0},
	"o3":                {inputPerMillion: 2.0, outputPerMillion: 8.0},
	"claude-sonnet-4":   {inputPerMillion: 3.0, outputPerMillion: 15.0},
	"gemini-2.5-pro":    {inputPerMillion: 1.25, outputPerMillion: 10.0},
	"gpt-4.1":           {inputPerMillion: 2.0, outputPerMillion: 8.0},
	"claude-3-5-sonnet": {inputPerMillion: 3.0, outputPerMillion: 15.0},
	"gpt-4o-mini":       {inputPerMillion: 0.15, outputPerMillion: 0.6},
	"gemini-2.0-flash":  {inputPerMillion: 0.10, outputPerMillion: 0.40},
}

// fallbackPricing covers models absent from the table.
var fallbackPricing = modelPricing{inputPerMillion: 2.0, outputPerMillion: 8.0}

// EstimateCost returns the approximate dollar cost of one invocation.
func EstimateCost(modelID string, promptTokens, completionTokens int64) float64 {
	p, ok := defaultPricing[strings.ToLower(modelID)]
	if !ok {
		p = fallbackPricing
	}
	return float64(promptTokens)/1e6*p.inputPerMillion + float64(completionTokens)/1e6*p.outputPerMillion
}
