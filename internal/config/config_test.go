package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, 0.70, cfg.Governance.SemanticThreshold)
	assert.Equal(t, 400, cfg.Governance.MaxUpdates)
	assert.Equal(t, 200, cfg.Governance.MaxCandidates)
	assert.Equal(t, "sanitized", cfg.Governance.TranscriptMode)
	assert.Equal(t, "http://localhost:11434", cfg.Classifier.Endpoint)
	assert.Equal(t, 1000, cfg.Classifier.CacheSize)
	assert.Equal(t, 500, cfg.Oracle.CacheSize)
	assert.Equal(t, 0.72, cfg.Recall.MinSimilarity)
	assert.Equal(t, 5, cfg.Recall.MinResults)
}

func TestLoadMissingFileYieldsDefaults(t *testing.T) {
	cfg, err := Load(t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig().Governance, cfg.Governance)
}

func TestLoadOverridesDefaults(t *testing.T) {
	workspace := t.TempDir()
	dir := filepath.Join(workspace, "memory", "config")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	yaml := `
governance:
  semantic_threshold: 0.80
  max_updates: 50
classifier:
  model: other:7b
logging:
  debug_mode: true
  level: debug
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "governance.yaml"), []byte(yaml), 0o644))

	cfg, err := Load(workspace)
	require.NoError(t, err)
	assert.Equal(t, 0.80, cfg.Governance.SemanticThreshold)
	assert.Equal(t, 50, cfg.Governance.MaxUpdates)
	// Untouched keys keep their defaults.
	assert.Equal(t, 45, cfg.Governance.EpisodicRetentionDays)
	assert.Equal(t, "other:7b", cfg.Classifier.Model)
	assert.True(t, cfg.Logging.DebugMode)
}

func TestLoadMalformedFileFails(t *testing.T) {
	workspace := t.TempDir()
	dir := filepath.Join(workspace, "memory", "config")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "governance.yaml"), []byte("governance: ["), 0o644))

	_, err := Load(workspace)
	require.Error(t, err)
}
