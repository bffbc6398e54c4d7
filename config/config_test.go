package config_test

import (
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/leave-engine/config"
	"github.com/warp/leave-engine/overtime"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := config.Load()
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.App.Port)
	assert.Equal(t, []string{"*"}, cfg.App.CORSOrigins)
	assert.Equal(t, overtime.BaseAdvisory, cfg.Settlement.BasePolicy)
	assert.Equal(t, overtime.ReauthorizeExplicit, cfg.Settlement.Reauthorize)
	assert.Equal(t, time.Hour, cfg.Settlement.ResyncInterval)
	assert.False(t, cfg.S3.Enabled())
	assert.Equal(t, slog.LevelInfo, cfg.SlogLevel())
}

func TestLoad_FromEnvironment(t *testing.T) {
	// GIVEN: Settings in the environment
	t.Setenv("APP_PORT", "9090")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("CORS_ORIGINS", "http://a.test, http://b.test,")
	t.Setenv("BASE_POLICY", "enforced")
	t.Setenv("REAUTHORIZE_POLICY", "on_change")
	t.Setenv("RESYNC_INTERVAL", "15m")
	t.Setenv("S3_ENDPOINT", "localhost:9000")
	t.Setenv("S3_ACCESS_KEY_ID", "key")
	t.Setenv("S3_SECRET_ACCESS_KEY", "secret")

	// WHEN: Configuration is loaded
	cfg, err := config.Load()

	// THEN: Every value is picked up
	require.NoError(t, err)
	assert.Equal(t, 9090, cfg.App.Port)
	assert.Equal(t, slog.LevelDebug, cfg.SlogLevel())
	assert.Equal(t, []string{"http://a.test", "http://b.test"}, cfg.App.CORSOrigins)
	assert.Equal(t, overtime.BaseEnforced, cfg.Settlement.BasePolicy)
	assert.Equal(t, overtime.ReauthorizeOnChange, cfg.Settlement.Reauthorize)
	assert.Equal(t, 15*time.Minute, cfg.Settlement.ResyncInterval)
	assert.True(t, cfg.S3.Enabled())
	assert.Equal(t, "leave-attachments", cfg.S3.Bucket)
}

func TestLoad_RejectsInvalidValues(t *testing.T) {
	cases := map[string][2]string{
		"port not a number": {"APP_PORT", "http"},
		"port out of range": {"APP_PORT", "70000"},
		"unknown policy":    {"BASE_POLICY", "strict"},
		"unknown reauth":    {"REAUTHORIZE_POLICY", "always"},
		"bad interval":      {"RESYNC_INTERVAL", "hourly"},
		"negative interval": {"RESYNC_INTERVAL", "-1m"},
		"bad ssl flag":      {"S3_USE_SSL", "maybe"},
		"s3 without keys":   {"S3_ENDPOINT", "localhost:9000"},
	}
	for name, kv := range cases {
		t.Run(name, func(t *testing.T) {
			t.Setenv(kv[0], kv[1])
			_, err := config.Load()
			assert.Error(t, err)
		})
	}
}

func TestSlogLevel_UnknownIsInfo(t *testing.T) {
	cfg := &config.Config{App: config.AppConfig{LogLevel: "chatty"}}
	assert.Equal(t, slog.LevelInfo, cfg.SlogLevel())
}
