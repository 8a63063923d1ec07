package dto

import "github.com/CeoatNorthstar/qhub-auth/internal/domain"

// QuotaDecisionResponse reports a consume attempt.
type QuotaDecisionResponse struct {
	Allowed  bool                `json:"allowed"`
	Resource domain.ResourceType `json:"resource"`
	Current  int64               `json:"current"`
	Limit    int64               `json:"limit"`
}

// QuotaReleaseResponse reports the counter after a release.
type QuotaReleaseResponse struct {
	Resource domain.ResourceType `json:"resource"`
	Current  int64               `json:"current"`
}

// UsageEntry is one resource in a usage report.
type UsageEntry struct {
	Resource  domain.ResourceType  `json:"resource"`
	Style     domain.CountingStyle `json:"style"`
	WindowKey int64                `json:"window_key"`
	Current   int64                `json:"current"`
	Limit     int64                `json:"limit"`
	Remaining int64                `json:"remaining"`
}

// UsageResponse lists the caller's counters.
type UsageResponse struct {
	Tier  domain.Tier  `json:"tier"`
	Usage []UsageEntry `json:"usage"`
}

// LimitsResponse lists the limits that apply to a tier.
type LimitsResponse struct {
	Tier   domain.Tier                   `json:"tier"`
	Limits map[domain.ResourceType]int64 `json:"limits"`
}

// NewUsageResponse maps usage snapshots.
func NewUsageResponse(tier domain.Tier, snapshots []domain.UsageSnapshot) UsageResponse {
	out := UsageResponse{Tier: tier, Usage: make([]UsageEntry, 0, len(snapshots))}
	for _, s := range snapshots {
		remaining := s.Limit - s.Current
		if remaining < 0 {
			remaining = 0
		}
		out.Usage = append(out.Usage, UsageEntry{
			Resource:  s.Resource,
			Style:     s.Style,
			WindowKey: s.WindowKey,
			Current:   s.Current,
			Limit:     s.Limit,
			Remaining: remaining,
		})
	}
	return out
}
