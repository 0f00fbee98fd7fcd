// Package config holds the run configuration: file pattern, wrapper
// symbol, lexicon overrides, exemption globs, and worker count. Values come
// from defaults, an optional YAML file, then flags.
package config

import (
	"fmt"
	"os"
	"runtime"
	"strconv"

	"gopkg.in/yaml.v3"
)

// WrapperConfig names the deferred-value wrapper and its canonical module.
type WrapperConfig struct {
	Symbol string `yaml:"symbol"`
	Module string `yaml:"module"`
}

// Config is the full tool configuration.
type Config struct {
	// Pattern is the filename glob selecting declaration files.
	Pattern string `yaml:"pattern"`
	// Workers bounds the file-processing pool.
	Workers int `yaml:"workers"`

	Wrapper WrapperConfig `yaml:"wrapper"`

	// Lexicon overrides the I/O verb set for the sync-naming rule. Empty
	// means the built-in lexicon.
	Lexicon []string `yaml:"lexicon"`

	// FixExempt lists path globs scanned for reporting but never rewritten
	// in apply mode. Test paths are exempt by default.
	FixExempt []string `yaml:"fix_exempt"`

	// IgnoreDirs lists directory names skipped during traversal.
	IgnoreDirs []string `yaml:"ignore_dirs"`
}

// Default returns the stock configuration.
func Default() Config {
	workers := runtime.NumCPU()
	if workers > 20 {
		workers = 20
	}
	if workers < 2 {
		workers = 2
	}
	return Config{
		Pattern: "protocol_*",
		Workers: workers,
		Wrapper: WrapperConfig{
			Symbol: "Deferred",
			Module: "protocols.deferred",
		},
		FixExempt: []string{
			"test_*",
			"*_test*",
			"tests/*",
			"*/tests/*",
			"conftest*",
		},
		IgnoreDirs: []string{
			".git",
			".venv",
			"__pycache__",
			"node_modules",
			"vendor",
			"dist",
			"build",
			".tox",
			".mypy_cache",
			".cache",
		},
	}
}

// Load reads a YAML config file over the defaults. A missing path returns
// the defaults unchanged; a present but unparseable file is a fatal
// configuration problem.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		cfg.applyEnvOverrides()
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return cfg, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	if cfg.Pattern == "" {
		cfg.Pattern = "protocol_*"
	}
	if cfg.Workers <= 0 {
		cfg.Workers = Default().Workers
	}
	if cfg.Wrapper.Symbol == "" {
		cfg.Wrapper.Symbol = "Deferred"
	}
	if cfg.Wrapper.Module == "" {
		cfg.Wrapper.Module = "protocols.deferred"
	}
	cfg.applyEnvOverrides()
	return cfg, nil
}

// applyEnvOverrides lets CI tune the pool without touching the config file.
func (c *Config) applyEnvOverrides() {
	if env := os.Getenv("AWAITLINT_WORKERS"); env != "" {
		if v, err := strconv.Atoi(env); err == nil && v > 0 {
			c.Workers = v
		}
	}
}
