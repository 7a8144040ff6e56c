package model

import (
	"testing"
	"time"

	"chatapi/internal/quota"
)

func TestUTCDayBounds(t *testing.T) {
	loc := time.FixedZone("UTC+9", 9*3600)
	// 2026-03-15 07:30 UTC+9 is 2026-03-14 22:30 UTC; the quota day is the
	// UTC calendar day, not the caller's local one.
	start, end := UTCDayBounds(time.Date(2026, 3, 15, 7, 30, 0, 0, loc))
	wantStart := time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC)
	if !start.Equal(wantStart) {
		t.Errorf("start = %v, want %v", start, wantStart)
	}
	if !end.Equal(wantStart.Add(24 * time.Hour)) {
		t.Errorf("end = %v, want %v", end, wantStart.Add(24*time.Hour))
	}
}

func TestUTCDayBoundsMidnightBelongsToNewDay(t *testing.T) {
	midnight := time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC)
	start, _ := UTCDayBounds(midnight)
	if !start.Equal(midnight) {
		t.Errorf("midnight must open its own day: start = %v", start)
	}
	start, end := UTCDayBounds(midnight.Add(-time.Nanosecond))
	if !end.Equal(midnight) {
		t.Errorf("the instant before midnight must close the previous day: end = %v", end)
	}
	if start.Equal(midnight) {
		t.Error("the instant before midnight landed in the wrong day")
	}
}

func TestTokensForNilSafety(t *testing.T) {
	var d *DailyTierUsage
	if got := d.TokensFor(quota.TierPremium); got != 0 {
		t.Errorf("nil usage TokensFor = %d, want 0", got)
	}
	empty := &DailyTierUsage{}
	if got := empty.TokensFor(quota.TierPremium); got != 0 {
		t.Errorf("empty usage TokensFor = %d, want 0", got)
	}
	withData := &DailyTierUsage{Tiers: map[quota.Tier]TierTotals{quota.TierFree: {Tokens: 42}}}
	if got := withData.TokensFor(quota.TierFree); got != 42 {
		t.Errorf("TokensFor = %d, want 42", got)
	}
	if got := withData.TokensFor(quota.TierPremium); got != 0 {
		t.Errorf("absent tier TokensFor = %d, want 0", got)
	}
}
