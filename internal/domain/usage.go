package domain

import "time"

// ResourceType names a metered action.
type ResourceType string

const (
	ResourceAIMessages  ResourceType = "ai_messages"
	ResourceComputeJobs ResourceType = "compute_jobs"
)

// CountingStyle describes how a resource's counter behaves.
type CountingStyle string

const (
	// CountingDaily counts actions per calendar day (UTC).
	CountingDaily CountingStyle = "daily"
	// CountingConcurrent counts in-flight items and is decremented on release.
	CountingConcurrent CountingStyle = "concurrent"
)

// ActiveWindow is the window key used for concurrency counters.
const ActiveWindow int64 = 0

const windowSeconds = int64(24 * time.Hour / time.Second)

// DailyWindow returns floor(unix / 86400) for t.
func DailyWindow(t time.Time) int64 {
	sec := t.Unix()
	if sec < 0 {
		return (sec - windowSeconds + 1) / windowSeconds
	}
	return sec / windowSeconds
}

// CounterKey identifies one usage counter.
type CounterKey struct {
	PrincipalID string
	Resource    ResourceType
	WindowKey   int64
}

// QuotaDecision is the outcome of a consume attempt. Current is the count
// after the attempt; a denied attempt never changes it.
type QuotaDecision struct {
	Allowed  bool
	Resource ResourceType
	Current  int64
	Limit    int64
}

// UsageSnapshot reports a counter for display.
type UsageSnapshot struct {
	Resource  ResourceType
	Style     CountingStyle
	WindowKey int64
	Current   int64
	Limit     int64
}
