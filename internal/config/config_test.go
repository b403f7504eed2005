package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("ENVIRONMENT", "development")
	t.Setenv("PERMISSION_CACHE", "")
	t.Setenv("DATABASE_TYPE", "")

	cfg := Load()

	assert.Equal(t, "backoffice", cfg.AppName)
	assert.Equal(t, "postgres", cfg.DBType)
	assert.Equal(t, PermissionCacheMemory, cfg.PermissionCache.Backend)
	assert.Equal(t, 5*time.Minute, cfg.PermissionCache.MaxAge)
	assert.Equal(t, "@every 1m", cfg.SubscriptionSweepSchedule)
	assert.False(t, cfg.AuthCookieSecure)
}

func TestLoadProductionForcesSecureCookie(t *testing.T) {
	t.Setenv("ENVIRONMENT", "production")
	t.Setenv("AUTH_COOKIE_SECURE", "false")
	t.Setenv("PERMISSION_CACHE", "REDIS")
	t.Setenv("PERMISSION_CACHE_MAX_AGE_SECONDS", "60")

	cfg := Load()

	assert.True(t, cfg.AuthCookieSecure)
	assert.True(t, cfg.IsProduction())
	assert.Equal(t, PermissionCacheRedis, cfg.PermissionCache.Backend)
	assert.Equal(t, time.Minute, cfg.PermissionCache.MaxAge)
}

func TestPlatformConfigFromFile(t *testing.T) {
	dir := t.TempDir()
	body := []byte("platform:\n  defaultTrialPeriodDays: 14\n  enforceHierarchyCeiling: true\n")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "platform.yml"), body, 0o600))
	t.Setenv("BACKOFFICE_CONFIG_DIR", dir)

	holder, err := NewPlatformConfigHolder(zap.NewNop())
	require.NoError(t, err)

	cfg := holder.Get()
	assert.Equal(t, 14, cfg.DefaultTrialPeriodDays)
	assert.InDelta(t, 0.025, cfg.DefaultTransactionFeeRate, 1e-9)
	assert.True(t, cfg.EnforceHierarchyCeiling)
}

func TestPlatformConfigRejectsInvalidFile(t *testing.T) {
	dir := t.TempDir()
	body := []byte("platform:\n  defaultTrialPeriodDays: 0\n")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "platform.yml"), body, 0o600))
	t.Setenv("BACKOFFICE_CONFIG_DIR", dir)

	_, err := NewPlatformConfigHolder(zap.NewNop())
	assert.Error(t, err)
}

func TestValidatePlatformConfig(t *testing.T) {
	assert.NoError(t, ValidatePlatformConfig(DefaultPlatformConfig()))
	assert.Error(t, ValidatePlatformConfig(PlatformConfig{DefaultTrialPeriodDays: 30, DefaultTransactionFeeRate: 1.5}))
}

func TestLoadLoginRateLimit(t *testing.T) {
	t.Setenv("LOGIN_RATE_LIMIT_BACKEND", "Redis")
	t.Setenv("LOGIN_RATE_LIMIT_PER_MINUTE", "30")
	t.Setenv("LOGIN_RATE_LIMIT_BURST", "")

	cfg := Load()

	assert.True(t, cfg.LoginRateLimit.Enabled)
	assert.Equal(t, PermissionCacheRedis, cfg.LoginRateLimit.Backend)
	assert.Equal(t, 30, cfg.LoginRateLimit.PerMinute)
	assert.Equal(t, 5, cfg.LoginRateLimit.Burst)
}
