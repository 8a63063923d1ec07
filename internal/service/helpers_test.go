package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"github.com/CeoatNorthstar/qhub-auth/internal/auth"
	"github.com/CeoatNorthstar/qhub-auth/internal/events"
	"github.com/CeoatNorthstar/qhub-auth/internal/repository/memory"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2025, 3, 14, 9, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type recordedEvents struct {
	mu     sync.Mutex
	events []events.Event
}

func (r *recordedEvents) handle(_ context.Context, e events.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

func (r *recordedEvents) types() []events.EventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]events.EventType, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.Type)
	}
	return out
}

type testEnv struct {
	clock       *testClock
	store       *memory.Store
	usage       *memory.UsageRepository
	tokens      *auth.TokenManager
	credentials *CredentialStore
	sessions    *SessionRegistry
	quota       *QuotaEnforcer
	auth        *AuthService
	events      *recordedEvents
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	logger := zaptest.NewLogger(t)
	clock := newTestClock()
	dispatcher := events.NewInMemoryDispatcher()
	recorded := &recordedEvents{}
	events.SubscribeAll(dispatcher, recorded.handle)

	store := memory.NewStore()
	usage := memory.NewUsageRepository()
	tokens := auth.NewTokenManager("test-secret", time.Hour, clock.Now)
	credentials := NewCredentialStore(store, auth.NewHasher(auth.MinBcryptCost), logger, clock.Now)
	sessions := NewSessionRegistry(store, dispatcher, logger, clock.Now)

	return &testEnv{
		clock:       clock,
		store:       store,
		usage:       usage,
		tokens:      tokens,
		credentials: credentials,
		sessions:    sessions,
		quota:       NewQuotaEnforcer(usage, nil, dispatcher, logger, clock.Now),
		auth: NewAuthService(AuthDependencies{
			Store:       store,
			Credentials: credentials,
			Sessions:    sessions,
			Tokens:      tokens,
			Dispatcher:  dispatcher,
			Logger:      logger,
			Clock:       clock.Now,
		}),
		events: recorded,
	}
}

func strPtr(s string) *string { return &s }
