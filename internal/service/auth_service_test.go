package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CeoatNorthstar/qhub-auth/internal/auth"
	"github.com/CeoatNorthstar/qhub-auth/internal/domain"
	"github.com/CeoatNorthstar/qhub-auth/internal/events"
)

var laptop = domain.Device{UserAgent: "laptop", IP: "10.0.0.1"}

func TestAuthService_RegisterIssuesLiveToken(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	res, err := env.auth.Register(ctx, RegisterInput{Email: "Alice@Example.com", Password: "Pass1234!"}, laptop)
	require.NoError(t, err)
	assert.Equal(t, "alice@example.com", res.Principal.Email)

	claims, err := env.tokens.Verify(res.Token)
	require.NoError(t, err)
	assert.Equal(t, res.Principal.ID, claims.PrincipalID())
	assert.True(t, claims.ExpiresAt.Time.Equal(res.ExpiresAt))

	session, err := env.sessions.Confirm(ctx, auth.HashToken(res.Token))
	require.NoError(t, err)
	assert.True(t, session.ExpiresAt.Equal(res.ExpiresAt))
	assert.Equal(t, []events.EventType{events.EventPrincipalRegistered}, env.events.types())
}

func TestAuthService_DuplicateRegistrationLeavesNoSession(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	first, err := env.auth.Register(ctx, RegisterInput{Email: "alice@example.com", Password: "Pass1234!"}, laptop)
	require.NoError(t, err)

	_, err = env.auth.Register(ctx, RegisterInput{Email: "alice@example.com", Password: "Other1234!"}, laptop)
	assert.ErrorIs(t, err, ErrDuplicateEmail)

	sessions, err := env.auth.ListSessions(ctx, first.Principal.ID)
	require.NoError(t, err)
	assert.Len(t, sessions, 1)
}

func TestAuthService_LoginPasswordIsCaseSensitive(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	_, err := env.auth.Register(ctx, RegisterInput{Email: "alice@example.com", Password: "Pass1234!"}, laptop)
	require.NoError(t, err)

	res, err := env.auth.Login(ctx, "alice@example.com", "Pass1234!", laptop)
	require.NoError(t, err)
	require.NotNil(t, res.Principal.LastLoginAt)
	assert.True(t, res.Principal.LastLoginAt.Equal(env.clock.Now()))

	stored, err := env.credentials.Get(ctx, res.Principal.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.LastLoginAt)

	_, err = env.auth.Login(ctx, "alice@example.com", "pass1234!", laptop)
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestAuthService_LogoutAllAcrossDevices(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	reg, err := env.auth.Register(ctx, RegisterInput{Email: "alice@example.com", Password: "Pass1234!"}, laptop)
	require.NoError(t, err)
	require.NoError(t, env.auth.Logout(ctx, reg.Token))

	a, err := env.auth.Login(ctx, "alice@example.com", "Pass1234!", domain.Device{UserAgent: "device-a"})
	require.NoError(t, err)
	b, err := env.auth.Login(ctx, "alice@example.com", "Pass1234!", domain.Device{UserAgent: "device-b"})
	require.NoError(t, err)

	n, err := env.auth.LogoutAll(ctx, a.Principal.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	for _, tok := range []string{a.Token, b.Token} {
		_, err := env.tokens.Verify(tok)
		require.NoError(t, err, "token itself is still well-formed")
		_, err = env.sessions.Confirm(ctx, auth.HashToken(tok))
		assert.ErrorIs(t, err, ErrSessionNotLive)
	}
}

func TestAuthService_LogoutIsIdempotent(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	res, err := env.auth.Register(ctx, RegisterInput{Email: "alice@example.com", Password: "Pass1234!"}, laptop)
	require.NoError(t, err)

	require.NoError(t, env.auth.Logout(ctx, res.Token))
	require.NoError(t, env.auth.Logout(ctx, res.Token))
	require.NoError(t, env.auth.Logout(ctx, "not-a-token"))

	_, err = env.sessions.Confirm(ctx, auth.HashToken(res.Token))
	assert.ErrorIs(t, err, ErrSessionNotLive)
}

func TestAuthService_TokenExpiresWithSession(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	res, err := env.auth.Register(ctx, RegisterInput{Email: "alice@example.com", Password: "Pass1234!"}, laptop)
	require.NoError(t, err)

	env.clock.Advance(time.Hour)
	_, err = env.tokens.Verify(res.Token)
	assert.ErrorIs(t, err, auth.ErrTokenExpired)
	_, err = env.sessions.Confirm(ctx, auth.HashToken(res.Token))
	assert.ErrorIs(t, err, ErrSessionNotLive)
}

func TestAuthService_RevokeSessionOwnership(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	alice, err := env.auth.Register(ctx, RegisterInput{Email: "alice@example.com", Password: "Pass1234!"}, laptop)
	require.NoError(t, err)
	bob, err := env.auth.Register(ctx, RegisterInput{Email: "bob@example.com", Password: "Pass1234!"}, laptop)
	require.NoError(t, err)

	assert.ErrorIs(t, env.auth.RevokeSession(ctx, bob.Principal.ID, alice.Session.ID), ErrSessionNotFound)
	require.NoError(t, env.auth.RevokeSession(ctx, alice.Principal.ID, alice.Session.ID))
}

func TestAuthService_DeactivateKillsSessions(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	res, err := env.auth.Register(ctx, RegisterInput{Email: "alice@example.com", Password: "Pass1234!"}, laptop)
	require.NoError(t, err)

	n, err := env.auth.Deactivate(ctx, res.Principal.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	_, err = env.sessions.Confirm(ctx, auth.HashToken(res.Token))
	assert.ErrorIs(t, err, ErrSessionNotLive)
	_, err = env.auth.Login(ctx, "alice@example.com", "Pass1234!", laptop)
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = env.auth.Deactivate(ctx, "missing")
	assert.ErrorIs(t, err, ErrPrincipalNotFound)
}

func TestAuthService_ChangeTierRaisesQuota(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	res, err := env.auth.Register(ctx, RegisterInput{Email: "alice@example.com", Password: "Pass1234!"}, laptop)
	require.NoError(t, err)

	require.NoError(t, env.auth.ChangeTier(ctx, res.Principal.ID, domain.TierEnterprise))
	p, err := env.credentials.Get(ctx, res.Principal.ID)
	require.NoError(t, err)

	d, err := env.quota.Consume(ctx, p, domain.ResourceAIMessages)
	require.NoError(t, err)
	assert.Equal(t, int64(1000), d.Limit)
	assert.Contains(t, env.events.types(), events.EventTierChanged)
}
