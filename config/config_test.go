package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadValueCategoryBias(t *testing.T) {
	path := writeConfig(t, `
strategies:
  value:
    enabled: true
    min_edge: 0.05
    category_bias:
      politics: 0.02
      sports: -0.01
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	bias := cfg.Strategies.Value.CategoryBias
	require.NotNil(t, bias)
	assert.Equal(t, 0.02, bias["politics"])
	assert.Equal(t, -0.01, bias["sports"])
}

func TestLoadDefaults(t *testing.T) {
	path := writeConfig(t, "trading:\n  initial_capital: 500\n")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 500.0, cfg.Trading.InitialCapital)
	assert.Equal(t, "paper", cfg.Trading.Mode)
	assert.Equal(t, 60, cfg.Trading.ScanIntervalSec)
	assert.Equal(t, "edgebot.db", cfg.Storage.DSN)
	assert.Nil(t, cfg.Strategies.Value.CategoryBias, "no bias unless configured")
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
}
