package service

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CeoatNorthstar/qhub-auth/internal/domain"
)

func TestCredentialStore_CreateNormalizesEmail(t *testing.T) {
	env := newTestEnv(t)

	p, err := env.credentials.Create(context.Background(), "  Alice@Example.COM ", "Pass1234!", strPtr("alice"))
	require.NoError(t, err)
	assert.Equal(t, "alice@example.com", p.Email)
	assert.Equal(t, domain.TierFree, p.Tier)
	assert.True(t, p.Active)
	assert.NotEqual(t, "Pass1234!", p.PasswordHash)
	require.NotNil(t, p.Username)
	assert.Equal(t, "alice", *p.Username)

	stored, err := env.credentials.Get(context.Background(), p.ID)
	require.NoError(t, err)
	assert.True(t, stored.CreatedAt.Equal(env.clock.Now()))
	assert.True(t, stored.UpdatedAt.Equal(env.clock.Now()))
}

func TestCredentialStore_Duplicates(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	_, err := env.credentials.Create(ctx, "alice@example.com", "Pass1234!", strPtr("alice"))
	require.NoError(t, err)

	_, err = env.credentials.Create(ctx, "ALICE@example.com", "Other1234!", nil)
	assert.ErrorIs(t, err, ErrDuplicateEmail)

	_, err = env.credentials.Create(ctx, "bob@example.com", "Other1234!", strPtr("Alice"))
	assert.ErrorIs(t, err, ErrDuplicateUsername)
}

func TestCredentialStore_CreateValidation(t *testing.T) {
	env := newTestEnv(t)
	tests := []struct {
		name     string
		email    string
		password string
		username *string
		want     error
	}{
		{"empty email", "", "Pass1234!", nil, ErrInvalidEmail},
		{"no at sign", "alice.example.com", "Pass1234!", nil, ErrInvalidEmail},
		{"display name form", "Alice <alice@example.com>", "Pass1234!", nil, ErrInvalidEmail},
		{"short password", "alice@example.com", "short", nil, ErrWeakPassword},
		{"long password", "alice@example.com", strings.Repeat("x", 73), nil, ErrWeakPassword},
		{"bad username", "alice@example.com", "Pass1234!", strPtr("a b"), ErrInvalidUsername},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := env.credentials.Create(context.Background(), tc.email, tc.password, tc.username)
			assert.ErrorIs(t, err, tc.want)
		})
	}
}

func TestCredentialStore_BlankUsernameIsAbsent(t *testing.T) {
	env := newTestEnv(t)
	p, err := env.credentials.Create(context.Background(), "alice@example.com", "Pass1234!", strPtr("   "))
	require.NoError(t, err)
	assert.Nil(t, p.Username)
}

func TestCredentialStore_VerifyIsCaseSensitiveOnPassword(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	created, err := env.credentials.Create(ctx, "alice@example.com", "Pass1234!", nil)
	require.NoError(t, err)

	p, err := env.credentials.Verify(ctx, "Alice@Example.com", "Pass1234!")
	require.NoError(t, err)
	assert.Equal(t, created.ID, p.ID)

	_, err = env.credentials.Verify(ctx, "alice@example.com", "pass1234!")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestCredentialStore_VerifyHidesReason(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	p, err := env.credentials.Create(ctx, "alice@example.com", "Pass1234!", nil)
	require.NoError(t, err)

	_, err = env.credentials.Verify(ctx, "nobody@example.com", "Pass1234!")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	require.NoError(t, env.credentials.Deactivate(ctx, p.ID))
	_, err = env.credentials.Verify(ctx, "alice@example.com", "Pass1234!")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestCredentialStore_ChangeTierAndGet(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	p, err := env.credentials.Create(ctx, "alice@example.com", "Pass1234!", nil)
	require.NoError(t, err)

	assert.ErrorIs(t, env.credentials.ChangeTier(ctx, p.ID, domain.Tier("platinum")), ErrInvalidTier)
	require.NoError(t, env.credentials.ChangeTier(ctx, p.ID, domain.TierPro))

	got, err := env.credentials.Get(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TierPro, got.Tier)

	_, err = env.credentials.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrPrincipalNotFound)
	assert.ErrorIs(t, env.credentials.Deactivate(ctx, "missing"), ErrPrincipalNotFound)
}
