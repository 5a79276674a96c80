// Package config holds the governance configuration. Defaults are built in;
// a workspace may override them in memory/config/governance.yaml, and CLI
// flags override both.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config holds all clawmem configuration.
type Config struct {
	// Cadence job knobs
	Governance GovernanceConfig `yaml:"governance"`

	// Contradiction classifier endpoint
	Classifier ClassifierConfig `yaml:"classifier"`

	// External similarity oracle
	Oracle OracleConfig `yaml:"oracle"`

	// Recall and confidence gate
	Recall RecallConfig `yaml:"recall"`

	// File logging (mirrored by internal/logging)
	Logging LoggingConfig `yaml:"logging"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Governance: DefaultGovernanceConfig(),
		Classifier: DefaultClassifierConfig(),
		Oracle:     DefaultOracleConfig(),
		Recall:     DefaultRecallConfig(),
		Logging: LoggingConfig{
			DebugMode: false,
			Level:     "info",
		},
	}
}

// ConfigPath returns the workspace config file location.
func ConfigPath(workspace string) string {
	return filepath.Join(workspace, "memory", "config", "governance.yaml")
}

// Load reads the workspace config, applying it over the defaults. A missing
// file yields the defaults; a malformed file is a config error.
func Load(workspace string) (*Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(ConfigPath(workspace))
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", ConfigPath(workspace), err)
	}
	return cfg, nil
}

// LoggingConfig controls the categorized file logger.
type LoggingConfig struct {
	DebugMode  bool            `yaml:"debug_mode"`
	Categories map[string]bool `yaml:"categories"`
	Level      string          `yaml:"level"`
}
