package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"github.com/CeoatNorthstar/qhub-auth/internal/domain"
)

// UsageRepository owns usage counters. Increment is atomic: it either raises
// the counter by one while it is below limit, or leaves it untouched.
type UsageRepository interface {
	Increment(ctx context.Context, key domain.CounterKey, limit int64) (count int64, allowed bool, err error)
	// Decrement lowers the counter by one, never below zero.
	Decrement(ctx context.Context, key domain.CounterKey) (int64, error)
	Get(ctx context.Context, key domain.CounterKey) (int64, error)
}

type usageRepository struct {
	db DBTX
}

// NewUsageRepository returns a Postgres-backed implementation.
func NewUsageRepository(db DBTX) UsageRepository {
	return &usageRepository{db: db}
}

func (r *usageRepository) Increment(ctx context.Context, key domain.CounterKey, limit int64) (int64, bool, error) {
	if limit <= 0 {
		current, err := r.Get(ctx, key)
		return current, false, err
	}

	// The WHERE on the conflict branch makes the check and the write one
	// statement; a row at the limit is left untouched and nothing is returned.
	const query = `
        INSERT INTO usage_counters (principal_id, resource_type, window_key, count)
        VALUES ($1, $2, $3, 1)
        ON CONFLICT (principal_id, resource_type, window_key)
        DO UPDATE SET count = usage_counters.count + 1, updated_at = NOW()
        WHERE usage_counters.count < $4
        RETURNING count`

	var count int64
	err := r.db.QueryRow(ctx, query, key.PrincipalID, string(key.Resource), key.WindowKey, limit).Scan(&count)
	if err == nil {
		return count, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return 0, false, err
	}
	current, err := r.Get(ctx, key)
	if err != nil {
		return 0, false, err
	}
	return current, false, nil
}

func (r *usageRepository) Decrement(ctx context.Context, key domain.CounterKey) (int64, error) {
	const query = `
        UPDATE usage_counters SET count = count - 1, updated_at = NOW()
        WHERE principal_id=$1 AND resource_type=$2 AND window_key=$3 AND count > 0
        RETURNING count`

	var count int64
	err := r.db.QueryRow(ctx, query, key.PrincipalID, string(key.Resource), key.WindowKey).Scan(&count)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return count, nil
}

func (r *usageRepository) Get(ctx context.Context, key domain.CounterKey) (int64, error) {
	const query = `
        SELECT count FROM usage_counters
        WHERE principal_id=$1 AND resource_type=$2 AND window_key=$3`

	var count int64
	err := r.db.QueryRow(ctx, query, key.PrincipalID, string(key.Resource), key.WindowKey).Scan(&count)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return count, nil
}
