package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDoesNotInjectWeakAuthDefaults(t *testing.T) {
	t.Setenv("AUTH_SECRET", "")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Empty(t, cfg.AuthSecret)
}

func TestLoadReadsEnvironment(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("APP_ENV", "Production")
	t.Setenv("DATABASE_URL", "postgres://mafa:mafa@db:5432/mafa")
	t.Setenv("REDIS_ADDR", "redis:6379")
	t.Setenv("REDIS_DB", "2")
	t.Setenv("AUTH_SECRET", "  0123456789abcdef0123456789abcdef  ")
	t.Setenv("ACCESS_TOKEN_TTL_MINUTES", "30")
	t.Setenv("REORDER_CACHE_TTL_SECONDS", "15")
	t.Setenv("WORKER_POOL_SIZE", "8")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, ":9090", cfg.Address())
	assert.True(t, cfg.IsProduction())
	assert.Equal(t, "postgres://mafa:mafa@db:5432/mafa", cfg.DatabaseURL)
	assert.Equal(t, "redis:6379", cfg.RedisAddr)
	assert.Equal(t, 2, cfg.RedisDB)
	assert.Equal(t, "0123456789abcdef0123456789abcdef", cfg.AuthSecret)
	assert.Equal(t, 30*time.Minute, cfg.AccessTokenTTL())
	assert.Equal(t, 15*time.Second, cfg.ReorderCacheTTL())
	assert.Equal(t, 8, cfg.WorkerPoolSize)
}

func TestLoadFallsBackOnNonPositiveDurations(t *testing.T) {
	t.Setenv("ACCESS_TOKEN_TTL_MINUTES", "0")
	t.Setenv("REORDER_CACHE_TTL_SECONDS", "-5")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 8*time.Hour, cfg.AccessTokenTTL())
	assert.Equal(t, time.Minute, cfg.ReorderCacheTTL())
	assert.False(t, cfg.IsProduction())
}
