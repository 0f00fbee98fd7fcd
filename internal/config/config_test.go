package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	cfg := Default()
	assert.Equal(t, "protocol_*", cfg.Pattern)
	assert.Equal(t, "Deferred", cfg.Wrapper.Symbol)
	assert.Equal(t, "protocols.deferred", cfg.Wrapper.Module)
	assert.GreaterOrEqual(t, cfg.Workers, 2)
	assert.LessOrEqual(t, cfg.Workers, 20)
	assert.Contains(t, cfg.FixExempt, "test_*")
	assert.Contains(t, cfg.IgnoreDirs, "__pycache__")
}

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yml"))
	require.NoError(t, err)
	assert.Equal(t, Default().Pattern, cfg.Pattern)
}

func TestLoadYAMLOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".awaitlint.yml")
	data := []byte(`pattern: "iface_*"
workers: 3
wrapper:
  symbol: Awaitable
  module: typing
lexicon:
  - read
  - stream
fix_exempt:
  - legacy/*
`)
	require.NoError(t, os.WriteFile(path, data, 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "iface_*", cfg.Pattern)
	assert.Equal(t, 3, cfg.Workers)
	assert.Equal(t, "Awaitable", cfg.Wrapper.Symbol)
	assert.Equal(t, "typing", cfg.Wrapper.Module)
	assert.Equal(t, []string{"read", "stream"}, cfg.Lexicon)
	assert.Equal(t, []string{"legacy/*"}, cfg.FixExempt)
}

func TestLoadPartialYAMLKeepsDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "cfg.yml")
	require.NoError(t, os.WriteFile(path, []byte("workers: 5\n"), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 5, cfg.Workers)
	assert.Equal(t, "protocol_*", cfg.Pattern)
	assert.Equal(t, "Deferred", cfg.Wrapper.Symbol)
}

func TestLoadUnparseableIsFatal(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.yml")
	require.NoError(t, os.WriteFile(path, []byte(":\n\t- not yaml"), 0o644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestEnvOverridesWorkers(t *testing.T) {
	t.Setenv("AWAITLINT_WORKERS", "7")
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 7, cfg.Workers)
}
