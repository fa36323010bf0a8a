package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, Default(), cfg)
	assert.True(t, cfg.IsDevelopment())
	assert.True(t, cfg.Redis.Disabled)
	assert.Equal(t, 5, cfg.Tracking.FreeScanLimit)
}

func TestLoad_Environment(t *testing.T) {
	t.Setenv("GLOWSCAN_TRACKING_FREE_SCAN_LIMIT", "7")
	t.Setenv("GLOWSCAN_TRACKING_STORE_TIMEOUT", "3s")
	t.Setenv("GLOWSCAN_TRACKING_TIMEZONE", "Asia/Almaty")
	t.Setenv("GLOWSCAN_VISION_BASE_URL", "https://vision.example.com")
	t.Setenv("GLOWSCAN_OBSERVABILITY_LOG_FORMAT", "console")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 7, cfg.Tracking.FreeScanLimit)
	assert.Equal(t, 3*time.Second, cfg.Tracking.StoreTimeout)
	assert.Equal(t, "Asia/Almaty", cfg.Tracking.Timezone)
	assert.Equal(t, "https://vision.example.com", cfg.Vision.BaseURL)
	assert.Equal(t, "console", cfg.Observability.LogFormat)
	assert.Equal(t, 60*time.Second, cfg.Vision.Timeout)
}

func TestLoad_FileThenEnvironment(t *testing.T) {
	path := filepath.Join(t.TempDir(), "glowscan.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
app:
  environment: staging
redis:
  disabled: false
  host: cache.internal
tracking:
  use_redis_lock: true
  free_scan_limit: 3
`), 0o600))

	t.Setenv(FileEnvVar, path)
	t.Setenv("GLOWSCAN_TRACKING_FREE_SCAN_LIMIT", "9")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, EnvStaging, cfg.App.Environment)
	assert.False(t, cfg.Redis.Disabled)
	assert.Equal(t, "cache.internal", cfg.Redis.Host)
	assert.Equal(t, 6379, cfg.Redis.Port)
	assert.True(t, cfg.Tracking.UseRedisLock)
	assert.Equal(t, 9, cfg.Tracking.FreeScanLimit)
}

func TestLoad_MissingFile(t *testing.T) {
	t.Setenv(FileEnvVar, filepath.Join(t.TempDir(), "absent.yaml"))

	_, err := Load()
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"zero free limit", func(c *Config) { c.Tracking.FreeScanLimit = 0 }, "tracking.free_scan_limit"},
		{"negative timeout", func(c *Config) { c.Tracking.StoreTimeout = -time.Second }, "tracking.store_timeout"},
		{"unknown zone", func(c *Config) { c.Tracking.Timezone = "Mars/Olympus" }, "tracking.timezone"},
		{"lock without redis", func(c *Config) { c.Tracking.UseRedisLock = true }, "use_redis_lock"},
		{"production without db", func(c *Config) { c.App.Environment = EnvProduction }, "database.url"},
		{"log format", func(c *Config) { c.Observability.LogFormat = "xml" }, "log_format"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)

			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), "configuration errors:")
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestValidate_CollectsAllErrors(t *testing.T) {
	cfg := Default()
	cfg.Tracking.FreeScanLimit = -1
	cfg.Observability.LogFormat = ""

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "free_scan_limit")
	assert.Contains(t, err.Error(), "log_format")
}

func TestEnvKey(t *testing.T) {
	assert.Equal(t, "tracking.store_timeout", envKey("GLOWSCAN_TRACKING_STORE_TIMEOUT"))
	assert.Equal(t, "redis.host", envKey("GLOWSCAN_REDIS_HOST"))
	assert.Equal(t, "", envKey("GLOWSCAN_CONFIG"))
}
