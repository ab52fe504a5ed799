package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadSystemConfigDefaults(t *testing.T) {
	t.Setenv("STORAGE_PATH", "")
	t.Setenv("REGISTRY_PATH", "")
	t.Setenv("HTTP_ADDR", "")
	t.Setenv("CLEANUP_DELAY_SECONDS", "")
	t.Setenv("OPENAI_API_KEY", "")

	cfg, err := LoadSystemConfig()
	require.NoError(t, err)
	assert.Equal(t, "./data", cfg.StoragePath)
	assert.Equal(t, "./registry", cfg.RegistryPath)
	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, 300, cfg.CleanupDelaySecs)
	assert.False(t, cfg.LLMProviders["openai"])
}

func TestLoadSystemConfigHonorsEnv(t *testing.T) {
	t.Setenv("STORAGE_PATH", "/var/lib/meridian")
	t.Setenv("ANTHROPIC_API_KEY", "sk-test")
	t.Setenv("CLEANUP_DELAY_SECONDS", "120")

	cfg, err := LoadSystemConfig()
	require.NoError(t, err)
	assert.Equal(t, "/var/lib/meridian", cfg.StoragePath)
	assert.Equal(t, 120, cfg.CleanupDelaySecs)
	assert.True(t, cfg.LLMProviders["anthropic"])
}

func TestLoadSystemConfigRejectsBadDelay(t *testing.T) {
	t.Setenv("CLEANUP_DELAY_SECONDS", "not-a-number")
	_, err := LoadSystemConfig()
	assert.Error(t, err)
}
