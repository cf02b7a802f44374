package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultIsMockAndSelfContained(t *testing.T) {
	cfg := Default()

	assert.True(t, cfg.Pipeline.MockGeneration)
	assert.Equal(t, 30, cfg.Pipeline.TargetDurationSec)
	assert.Equal(t, 24, cfg.Pipeline.FPS)
	assert.Equal(t, "qwen-vl-plus", cfg.Describe.Model)
	assert.Equal(t, "deepseek-chat", cfg.Planner.Model)
	assert.Equal(t, "assets", cfg.Paths.Assets)
}

func TestLoadToleratesMissingFile(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	assert.True(t, cfg.Pipeline.MockGeneration)
}

func TestLoadOverlaysYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
pipeline:
  mock_generation: false
  fps: 30
planner:
  temperature: 0.9
paths:
  output: renders
`), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.False(t, cfg.Pipeline.MockGeneration)
	assert.Equal(t, 30, cfg.Pipeline.FPS)
	assert.Equal(t, 0.9, cfg.Planner.Temperature)
	assert.Equal(t, "renders", cfg.Paths.Output)
	// untouched sections keep their defaults
	assert.Equal(t, "deepseek-chat", cfg.Planner.Model)
}

func TestLoadRejectsMalformedYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("pipeline: ["), 0644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestEnvOverridesWinOverFile(t *testing.T) {
	t.Setenv("PETGEN_ASSETS_DIR", "/var/petgen/assets")
	t.Setenv("PETGEN_MOCK", "false")

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "/var/petgen/assets", cfg.Paths.Assets)
	assert.False(t, cfg.Pipeline.MockGeneration)
}

func TestParseBool(t *testing.T) {
	for _, v := range []string{"1", "true", "YES", " on "} {
		assert.True(t, parseBool(v), v)
	}
	for _, v := range []string{"0", "false", "off", "nonsense", ""} {
		assert.False(t, parseBool(v), v)
	}
}
