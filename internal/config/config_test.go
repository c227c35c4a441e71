package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("LEVERSIM_DATA_DIR", t.TempDir())

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, 24, cfg.CacheTTLHours)
	assert.Equal(t, "0 30 6 * * *", cfg.RefreshSchedule)
	assert.False(t, cfg.DevMode)
	assert.NotEmpty(t, cfg.DataDir)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("LEVERSIM_DATA_DIR", t.TempDir())
	t.Setenv("LEVERSIM_PORT", "9091")
	t.Setenv("DEV_MODE", "true")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("RETURNS_CACHE_TTL_HOURS", "6")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 9091, cfg.Port)
	assert.True(t, cfg.DevMode)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, 6, cfg.CacheTTLHours)
}

func TestValidate(t *testing.T) {
	cfg := &Config{Port: 8080, CacheTTLHours: 24}
	assert.NoError(t, cfg.Validate())

	cfg.Port = 0
	assert.Error(t, cfg.Validate())

	cfg.Port = 8080
	cfg.CacheTTLHours = 0
	assert.Error(t, cfg.Validate())
}
