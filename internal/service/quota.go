package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/CeoatNorthstar/qhub-auth/internal/domain"
	"github.com/CeoatNorthstar/qhub-auth/internal/events"
	"github.com/CeoatNorthstar/qhub-auth/internal/repository"
)

// LimitTable maps each tier to its per-resource limits.
type LimitTable map[domain.Tier]map[domain.ResourceType]int64

// DefaultLimits returns the built-in tier limits.
func DefaultLimits() LimitTable {
	return LimitTable{
		domain.TierFree: {
			domain.ResourceAIMessages:  10,
			domain.ResourceComputeJobs: 3,
		},
		domain.TierPro: {
			domain.ResourceAIMessages:  100,
			domain.ResourceComputeJobs: 10,
		},
		domain.TierEnterprise: {
			domain.ResourceAIMessages:  1000,
			domain.ResourceComputeJobs: 50,
		},
	}
}

var resourceStyles = map[domain.ResourceType]domain.CountingStyle{
	domain.ResourceAIMessages:  domain.CountingDaily,
	domain.ResourceComputeJobs: domain.CountingConcurrent,
}

// Resources lists the metered resources in display order.
func Resources() []domain.ResourceType {
	return []domain.ResourceType{domain.ResourceAIMessages, domain.ResourceComputeJobs}
}

// StyleOf returns how resource is counted.
func StyleOf(resource domain.ResourceType) (domain.CountingStyle, error) {
	style, ok := resourceStyles[resource]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownResource, resource)
	}
	return style, nil
}

// QuotaEnforcer limits metered actions per principal. All counting goes
// through the usage repository's atomic increment.
type QuotaEnforcer struct {
	usage      repository.UsageRepository
	limits     LimitTable
	dispatcher events.Dispatcher
	logger     *zap.Logger
	clock      func() time.Time
}

// NewQuotaEnforcer builds an enforcer. A nil limits table uses DefaultLimits.
func NewQuotaEnforcer(usage repository.UsageRepository, limits LimitTable, dispatcher events.Dispatcher, logger *zap.Logger, clock func() time.Time) *QuotaEnforcer {
	if limits == nil {
		limits = DefaultLimits()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if clock == nil {
		clock = time.Now
	}
	return &QuotaEnforcer{usage: usage, limits: limits, dispatcher: dispatcher, logger: logger, clock: clock}
}

// LimitFor returns the limit of resource for tier. Unknown tiers get zero.
func (q *QuotaEnforcer) LimitFor(tier domain.Tier, resource domain.ResourceType) (int64, error) {
	if _, err := StyleOf(resource); err != nil {
		return 0, err
	}
	return q.limits[tier][resource], nil
}

// WindowKey returns the daily window containing t.
func (q *QuotaEnforcer) WindowKey(t time.Time) int64 {
	return domain.DailyWindow(t)
}

// TryConsume attempts to take one unit of resource in windowKey. A denied
// attempt leaves the counter unchanged and reports where it stands.
func (q *QuotaEnforcer) TryConsume(ctx context.Context, p *domain.Principal, resource domain.ResourceType, windowKey int64) (domain.QuotaDecision, error) {
	limit, err := q.LimitFor(p.Tier, resource)
	if err != nil {
		return domain.QuotaDecision{}, err
	}

	key := domain.CounterKey{PrincipalID: p.ID, Resource: resource, WindowKey: windowKey}
	current, allowed, err := q.usage.Increment(ctx, key, limit)
	if err != nil {
		return domain.QuotaDecision{}, fmt.Errorf("increment usage: %w", err)
	}

	decision := domain.QuotaDecision{Allowed: allowed, Resource: resource, Current: current, Limit: limit}
	if !allowed {
		q.logger.Info("quota denied",
			zap.String("principal_id", p.ID),
			zap.String("resource", string(resource)),
			zap.Int64("current", current),
			zap.Int64("limit", limit),
		)
		publishEvent(ctx, q.dispatcher, q.logger, q.clock, events.EventQuotaDenied, p.ID, events.QuotaDeniedPayload{
			Resource: resource,
			Current:  current,
			Limit:    limit,
		})
	}
	return decision, nil
}

// Consume is TryConsume with the window derived from the resource's counting
// style and the current time.
func (q *QuotaEnforcer) Consume(ctx context.Context, p *domain.Principal, resource domain.ResourceType) (domain.QuotaDecision, error) {
	window, err := q.windowFor(resource)
	if err != nil {
		return domain.QuotaDecision{}, err
	}
	return q.TryConsume(ctx, p, resource, window)
}

// Release returns one unit of a concurrency resource. The counter never goes
// below zero.
func (q *QuotaEnforcer) Release(ctx context.Context, principalID string, resource domain.ResourceType) (int64, error) {
	style, err := StyleOf(resource)
	if err != nil {
		return 0, err
	}
	if style != domain.CountingConcurrent {
		return 0, fmt.Errorf("%w: %q", ErrNotReleasable, resource)
	}

	key := domain.CounterKey{PrincipalID: principalID, Resource: resource, WindowKey: domain.ActiveWindow}
	current, err := q.usage.Decrement(ctx, key)
	if err != nil {
		return 0, fmt.Errorf("decrement usage: %w", err)
	}
	return current, nil
}

// Usage reports the current window of every resource for p.
func (q *QuotaEnforcer) Usage(ctx context.Context, p *domain.Principal) ([]domain.UsageSnapshot, error) {
	out := make([]domain.UsageSnapshot, 0, len(resourceStyles))
	for _, resource := range Resources() {
		window, err := q.windowFor(resource)
		if err != nil {
			return nil, err
		}
		current, err := q.usage.Get(ctx, domain.CounterKey{PrincipalID: p.ID, Resource: resource, WindowKey: window})
		if err != nil {
			return nil, fmt.Errorf("read usage: %w", err)
		}
		out = append(out, domain.UsageSnapshot{
			Resource:  resource,
			Style:     resourceStyles[resource],
			WindowKey: window,
			Current:   current,
			Limit:     q.limits[p.Tier][resource],
		})
	}
	return out, nil
}

// Limits returns the limits of every resource for tier.
func (q *QuotaEnforcer) Limits(tier domain.Tier) map[domain.ResourceType]int64 {
	out := make(map[domain.ResourceType]int64, len(resourceStyles))
	for _, resource := range Resources() {
		out[resource] = q.limits[tier][resource]
	}
	return out
}

func (q *QuotaEnforcer) windowFor(resource domain.ResourceType) (int64, error) {
	style, err := StyleOf(resource)
	if err != nil {
		return 0, err
	}
	if style == domain.CountingConcurrent {
		return domain.ActiveWindow, nil
	}
	return q.WindowKey(q.clock()), nil
}
