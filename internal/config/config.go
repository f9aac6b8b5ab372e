// Package config loads offgrid configuration: defaults, overridden by an
// optional YAML file, overridden by OFFGRID_* environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// FileName is the config file inside the vault directory.
const FileName = "config.yaml"

// Config is the resolved runtime configuration.
type Config struct {
	// VaultDir holds the embedded store, the activity log, and the config
	// file itself.
	VaultDir string `yaml:"vault_dir" env:"OFFGRID_VAULT_DIR"`

	// VaultFile is the file-backend path; empty until the user picks one.
	VaultFile string `yaml:"vault_file" env:"OFFGRID_VAULT_FILE"`

	// LogLevel is a zerolog level name (debug, info, warn, error).
	LogLevel string `yaml:"log_level" env:"OFFGRID_LOG_LEVEL"`
}

// Default returns the built-in configuration.
func Default() (*Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("config: cannot resolve home directory: %w", err)
	}
	return &Config{
		VaultDir: filepath.Join(home, ".offgrid"),
		LogLevel: "warn",
	}, nil
}

// Load resolves the configuration in three layers: defaults, the YAML file
// under the vault directory (when present), and environment variables. A
// missing file is not an error; a malformed one is.
func Load() (*Config, error) {
	cfg, err := Default()
	if err != nil {
		return nil, err
	}

	// The env var must win even for locating the file itself.
	dir := cfg.VaultDir
	if envDir := os.Getenv("OFFGRID_VAULT_DIR"); envDir != "" {
		dir = envDir
	}

	if err := cfg.mergeFile(filepath.Join(dir, FileName)); err != nil {
		return nil, err
	}

	// Empty environment values count as unset rather than overriding the
	// file with blanks.
	vars := make(map[string]string)
	for _, kv := range os.Environ() {
		if k, v, ok := strings.Cut(kv, "="); ok && v != "" {
			vars[k] = v
		}
	}
	if err := env.ParseWithOptions(cfg, env.Options{Environment: vars}); err != nil {
		return nil, fmt.Errorf("config: failed to parse environment: %w", err)
	}
	return cfg, nil
}

func (c *Config) mergeFile(path string) error {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("config: failed to read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("config: failed to parse %s: %w", path, err)
	}
	return nil
}

// Save writes the configuration to the config file in the vault directory.
func (c *Config) Save() error {
	if err := os.MkdirAll(c.VaultDir, 0700); err != nil {
		return fmt.Errorf("config: failed to create vault directory: %w", err)
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("config: failed to marshal: %w", err)
	}
	path := filepath.Join(c.VaultDir, FileName)
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("config: failed to write %s: %w", path, err)
	}
	return nil
}
