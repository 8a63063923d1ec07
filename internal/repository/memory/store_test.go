package memory

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CeoatNorthstar/qhub-auth/internal/domain"
	"github.com/CeoatNorthstar/qhub-auth/internal/repository"
)

func newPrincipal(id, email string) *domain.Principal {
	return &domain.Principal{ID: id, Email: email, PasswordHash: "h", Tier: domain.TierFree, Active: true}
}

func TestInTx_CommitsOnSuccess(t *testing.T) {
	s := NewStore()
	ctx := context.Background()

	err := s.InTx(ctx, func(tx repository.Store) error {
		if err := tx.Principals().Create(ctx, newPrincipal("p1", "a@example.com")); err != nil {
			return err
		}
		return tx.Sessions().Create(ctx, &domain.Session{ID: "s1", PrincipalID: "p1", TokenHash: "h1", ExpiresAt: time.Now().Add(time.Hour)})
	})
	require.NoError(t, err)

	_, err = s.Principals().GetByID(ctx, "p1")
	require.NoError(t, err)
	live, err := s.Sessions().FindLive(ctx, "h1", time.Now())
	require.NoError(t, err)
	assert.Equal(t, "s1", live.ID)
}

func TestInTx_RollsBackOnError(t *testing.T) {
	s := NewStore()
	ctx := context.Background()

	err := s.InTx(ctx, func(tx repository.Store) error {
		require.NoError(t, tx.Principals().Create(ctx, newPrincipal("p1", "a@example.com")))
		return errors.New("boom")
	})
	require.Error(t, err)

	_, err = s.Principals().GetByID(ctx, "p1")
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestPrincipals_Duplicates(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	name := "Alice"
	p := newPrincipal("p1", "a@example.com")
	p.Username = &name
	require.NoError(t, s.Principals().Create(ctx, p))

	assert.ErrorIs(t, s.Principals().Create(ctx, newPrincipal("p2", "a@example.com")), repository.ErrDuplicateEmail)

	lower := "alice"
	p3 := newPrincipal("p3", "b@example.com")
	p3.Username = &lower
	assert.ErrorIs(t, s.Principals().Create(ctx, p3), repository.ErrDuplicateUsername)
}

func TestSessions_FindLiveChecksExpiryAndActivity(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	now := time.Now()
	require.NoError(t, s.Principals().Create(ctx, newPrincipal("p1", "a@example.com")))
	require.NoError(t, s.Sessions().Create(ctx, &domain.Session{ID: "s1", PrincipalID: "p1", TokenHash: "live", ExpiresAt: now.Add(time.Hour)}))
	require.NoError(t, s.Sessions().Create(ctx, &domain.Session{ID: "s2", PrincipalID: "p1", TokenHash: "old", ExpiresAt: now}))

	_, err := s.Sessions().FindLive(ctx, "old", now)
	assert.ErrorIs(t, err, repository.ErrNotFound)

	require.NoError(t, s.Principals().SetActive(ctx, "p1", false))
	_, err = s.Sessions().FindLive(ctx, "live", now)
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestSessions_DeleteOwned(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	require.NoError(t, s.Principals().Create(ctx, newPrincipal("p1", "a@example.com")))
	require.NoError(t, s.Sessions().Create(ctx, &domain.Session{ID: "s1", PrincipalID: "p1", TokenHash: "h", ExpiresAt: time.Now().Add(time.Hour)}))

	ok, err := s.Sessions().DeleteOwned(ctx, "s1", "intruder")
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = s.Sessions().DeleteOwned(ctx, "s1", "p1")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestUsageRepository_ConcurrentIncrementNeverExceedsLimit(t *testing.T) {
	repo := NewUsageRepository()
	key := domain.CounterKey{PrincipalID: "p1", Resource: domain.ResourceAIMessages, WindowKey: 1}
	const limit, callers = 10, 50

	var allowed atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, ok, err := repo.Increment(context.Background(), key, limit)
			if err == nil && ok {
				allowed.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(limit), allowed.Load())
	got, err := repo.Get(context.Background(), key)
	require.NoError(t, err)
	assert.Equal(t, int64(limit), got)
}

func TestUsageRepository_DecrementFloorsAtZero(t *testing.T) {
	repo := NewUsageRepository()
	key := domain.CounterKey{PrincipalID: "p1", Resource: domain.ResourceComputeJobs}

	n, err := repo.Decrement(context.Background(), key)
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)
}

func TestPrincipals_CreateKeepsCallerTimestamps(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	at := time.Date(2025, 3, 14, 9, 0, 0, 0, time.UTC)
	p := newPrincipal("p1", "a@example.com")
	p.CreatedAt = at
	p.UpdatedAt = at
	require.NoError(t, s.Principals().Create(ctx, p))

	got, err := s.Principals().GetByID(ctx, "p1")
	require.NoError(t, err)
	assert.True(t, got.CreatedAt.Equal(at))
	assert.True(t, got.UpdatedAt.Equal(at))

	bare := newPrincipal("p2", "b@example.com")
	require.NoError(t, s.Principals().Create(ctx, bare))
	got, err = s.Principals().GetByID(ctx, "p2")
	require.NoError(t, err)
	assert.False(t, got.CreatedAt.IsZero())
}
