package service

// TokenEstimator guesses the token cost of a prospective completion request
// before the provider is called. The guess is deliberately conservative:
// character count of all message content plus system instructions divided by
// four, plus a fixed allowance for the completion. It is used only for
// pre-admission and is never persisted as real usage.
type TokenEstimator struct {
	completionAllowance int64
}

func NewTokenEstimator(completionAllowance int64) *TokenEstimator {
	return &TokenEstimator{completionAllowance: completionAllowance}
}

// Estimate returns the estimated token cost for the given message contents
// and system instructions. Deterministic for identical inputs.
func (e *TokenEstimator) Estimate(contents []string, system string) int64 {
	chars := int64(len(system))
	for _, c := range contents {
		chars += int64(len(c))
	}
	return chars/4 + e.completionAllowance
}
