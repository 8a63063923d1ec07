package memory

import (
	"context"
	"sync"

	"github.com/CeoatNorthstar/qhub-auth/internal/domain"
)

// UsageRepository keeps counters in a map guarded by a mutex.
type UsageRepository struct {
	mu     sync.Mutex
	counts map[domain.CounterKey]int64
}

// NewUsageRepository returns an empty counter set.
func NewUsageRepository() *UsageRepository {
	return &UsageRepository{counts: make(map[domain.CounterKey]int64)}
}

func (r *UsageRepository) Increment(ctx context.Context, key domain.CounterKey, limit int64) (int64, bool, error) {
	if err := ctx.Err(); err != nil {
		return 0, false, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	current := r.counts[key]
	if current >= limit {
		return current, false, nil
	}
	current++
	r.counts[key] = current
	return current, true, nil
}

func (r *UsageRepository) Decrement(ctx context.Context, key domain.CounterKey) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	current := r.counts[key]
	if current <= 0 {
		return 0, nil
	}
	current--
	r.counts[key] = current
	return current, nil
}

func (r *UsageRepository) Get(_ context.Context, key domain.CounterKey) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.counts[key], nil
}
