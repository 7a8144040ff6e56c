package dto

// TierUsage reports one tier's consumption against its ceiling. A limit of
// -1 means unlimited.
type TierUsage struct {
	Tokens     int64   `json:"tokens"`
	Requests   int64   `json:"requests"`
	Cost       float64 `json:"cost"`
	DailyLimit int64   `json:"daily_limit"`
	Remaining  int64   `json:"remaining"`
}

// UsageSummaryResponse is today's usage for the authenticated user.
type UsageSummaryResponse struct {
	Date  string               `json:"date"`
	Plan  string               `json:"plan"`
	Tiers map[string]TierUsage `json:"tiers"`
}

// UsageExportResponse returns the object key of an exported report.
type UsageExportResponse struct {
	Key string `json:"key"`
}
