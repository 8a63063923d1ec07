package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("POSTGRES_DSN", "")
	t.Setenv("QUOTA_BACKEND", "")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "qhub-auth", cfg.App.Name)
	assert.Equal(t, "0.0.0.0:8080", cfg.App.Addr())
	assert.Equal(t, 30*time.Second, cfg.App.RequestTimeout())
	assert.Equal(t, 24*time.Hour, cfg.Auth.TokenTTL)
	assert.Equal(t, 12, cfg.Auth.BcryptCost)
	assert.True(t, cfg.Auth.UsesDevSecret())
	assert.Equal(t, "memory", cfg.QuotaBackend())
	assert.Equal(t, 15*time.Minute, cfg.Worker.SessionSweepInterval)
	assert.Equal(t, "auth.events", cfg.Events.Queue)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("AUTH_JWT_SECRET", "s3cret")
	t.Setenv("AUTH_TOKEN_TTL", "2h")
	t.Setenv("POSTGRES_DSN", "postgres://localhost/qhub")
	t.Setenv("QUOTA_BACKEND", "")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "s3cret", cfg.Auth.JWTSecret)
	assert.False(t, cfg.Auth.UsesDevSecret())
	assert.Equal(t, 2*time.Hour, cfg.Auth.TokenTTL)
	assert.Equal(t, "postgres", cfg.QuotaBackend())
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		return &Config{
			Auth:  AuthConfig{JWTSecret: "x", TokenTTL: time.Hour, BcryptCost: 10},
			Redis: RedisConfig{Addr: "localhost:6379"},
		}
	}

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{name: "ok", mutate: func(c *Config) {}},
		{name: "empty secret", mutate: func(c *Config) { c.Auth.JWTSecret = " " }, wantErr: true},
		{name: "low cost", mutate: func(c *Config) { c.Auth.BcryptCost = 4 }, wantErr: true},
		{name: "zero ttl", mutate: func(c *Config) { c.Auth.TokenTTL = 0 }, wantErr: true},
		{name: "unknown backend", mutate: func(c *Config) { c.Quota.Backend = "mongo" }, wantErr: true},
		{name: "postgres without dsn", mutate: func(c *Config) { c.Quota.Backend = "postgres" }, wantErr: true},
		{name: "redis backend", mutate: func(c *Config) { c.Quota.Backend = "Redis" }},
		{name: "redis without addr", mutate: func(c *Config) {
			c.Quota.Backend = "redis"
			c.Redis.Addr = ""
		}, wantErr: true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			c := base()
			tc.mutate(c)
			err := c.Validate()
			if tc.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
