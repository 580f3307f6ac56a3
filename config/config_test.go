package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultsWithoutConfigFile(t *testing.T) {
	t.Chdir(t.TempDir())

	v, err := LoadConfig()
	require.NoError(t, err)
	cfg, err := ParseConfig(v)
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0:8000", cfg.Server.Addr())
	assert.Equal(t, "1.0.0", cfg.Server.AppVersion)
	assert.Equal(t, "builtin", cfg.Pipeline.Backend)
	assert.True(t, cfg.Pipeline.Preload)
	assert.Equal(t, int64(1), cfg.Pipeline.MaxConcurrency)
	assert.Equal(t, 60, cfg.Pipeline.Replicate.MaxPolls)
	assert.Equal(t, 2*time.Second, cfg.Pipeline.Replicate.PollInterval)
	assert.False(t, cfg.Archive.Enabled)
	assert.Empty(t, cfg.Events.Brokers)
}

func TestConfigFileAndEnvOverride(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	require.NoError(t, os.Mkdir(filepath.Join(dir, "config"), 0755))
	yaml := []byte("server:\n  port: \"9000\"\npipeline:\n  backend: remote\n  max_concurrency: 4\n")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config", "config.yaml"), yaml, 0644))

	t.Setenv("INPAINT_SERVER_PORT", "9100")

	v, err := LoadConfig()
	require.NoError(t, err)
	cfg, err := ParseConfig(v)
	require.NoError(t, err)

	assert.Equal(t, "9100", cfg.Server.Port)
	assert.Equal(t, "remote", cfg.Pipeline.Backend)
	assert.Equal(t, int64(4), cfg.Pipeline.MaxConcurrency)
}

func TestAPIKeysFallBackToProviderEnv(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("GEMINI_API_KEY", "gemini-key")
	t.Setenv("REPLICATE_API_TOKEN", "r8-token")
	t.Setenv("HF_TOKEN", "hf-token")

	v, err := LoadConfig()
	require.NoError(t, err)
	cfg, err := ParseConfig(v)
	require.NoError(t, err)

	assert.Equal(t, "gemini-key", cfg.Pipeline.Gemini.APIKey)
	assert.Equal(t, "r8-token", cfg.Pipeline.Replicate.APIToken)
	assert.Equal(t, "hf-token", cfg.Pipeline.HuggingFace.APIToken)
}
