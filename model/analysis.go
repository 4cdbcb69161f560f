package model

import "time"

// Analysis is a derived monthly breakdown. It is never authoritative: it can
// always be rebuilt from the item set (or refetched from the remote
// aggregation endpoint) and is cached under its own key with a daily refresh
// cadence independent of the generic cache max-age rules.
type Analysis struct {
	Month           string             `json:"month"`
	TotalSpent      float64            `json:"total_spent"`
	Categories      map[string]float64 `json:"categories"`
	Recommendations []string           `json:"recommendations,omitempty"`
	GeneratedAt     time.Time          `json:"generated_at"`
}

// IsZero reports whether the snapshot carries no data at all.
func (a Analysis) IsZero() bool {
	return a.Month == "" && a.TotalSpent == 0 && len(a.Categories) == 0 &&
		len(a.Recommendations) == 0 && a.GeneratedAt.IsZero()
}

// AnalysisFromItems computes a local fallback snapshot from raw records when
// the remote aggregation is unreachable.
func AnalysisFromItems(month string, items []Item, now time.Time) Analysis {
	a := Analysis{
		Month:       month,
		Categories:  make(map[string]float64),
		GeneratedAt: now,
	}
	for _, item := range items {
		a.TotalSpent += item.Amount
		if item.Category != "" {
			a.Categories[item.Category] += item.Amount
		}
	}
	return a
}
