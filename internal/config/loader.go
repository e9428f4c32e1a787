package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// checkConfigFilePermissions returns an error if a config file has any
// group or world permission bit set.
func checkConfigFilePermissions(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return nil // file access errors are handled by the caller
	}
	mode := info.Mode().Perm()
	if mode&0077 != 0 {
		return fmt.Errorf("config file %s has overly permissive mode %04o; expected 0600 — fix with: chmod 600 %s", path, mode, path)
	}
	return nil
}

// Load reads and validates a discovery config file.
func Load(path string) (*Config, error) {
	if err := checkConfigFilePermissions(path); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if cfg.Version == 0 {
		cfg.Version = 1
	}
	if cfg.Version > CurrentConfigVersion {
		return nil, fmt.Errorf("%w: version %d is newer than supported version %d; please upgrade ddisc", ErrConfigVersionTooNew, cfg.Version, CurrentConfigVersion)
	}

	applyDefaults(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks a config for the minimum shape a discovery instance
// needs to run (spec.md §1: a domain suffix and at least one tracker
// for client mode; server mode additionally needs Listen.Enabled).
func Validate(cfg *Config) error {
	if cfg.Domain == "" {
		return fmt.Errorf("domain is required")
	}
	if len(cfg.Trackers) == 0 && !cfg.Listen.Enabled {
		return fmt.Errorf("trackers must contain at least one tracker, or listen.enabled must be true")
	}
	if cfg.Retries < 0 {
		return fmt.Errorf("retries must be non-negative")
	}
	if cfg.Store.Limit < 0 {
		return fmt.Errorf("store.limit must be non-negative")
	}
	if cfg.Subs.Limit < 0 {
		return fmt.Errorf("subscriptions.limit must be non-negative")
	}
	return nil
}

// FindConfigFile searches for a ddisc config file in standard
// locations. Search order: explicitPath (if given), ./ddisc.yaml,
// ~/.config/ddisc/config.yaml, /etc/ddisc/config.yaml.
func FindConfigFile(explicitPath string) (string, error) {
	if explicitPath != "" {
		if _, err := os.Stat(explicitPath); err != nil {
			return "", fmt.Errorf("%w: %s", ErrConfigNotFound, explicitPath)
		}
		return explicitPath, nil
	}

	searchPaths := []string{"ddisc.yaml"}
	if home, err := os.UserHomeDir(); err == nil {
		searchPaths = append(searchPaths, filepath.Join(home, ".config", "ddisc", "config.yaml"))
	}
	searchPaths = append(searchPaths, filepath.Join("/etc", "ddisc", "config.yaml"))

	for _, path := range searchPaths {
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}

	return "", fmt.Errorf("%w; searched:\n  %s\n\nCreate one, or use --config <path>", ErrConfigNotFound, strings.Join(searchPaths, "\n  "))
}

// DefaultConfigDir returns the default ddisc config directory
// (~/.config/ddisc).
func DefaultConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	return filepath.Join(home, ".config", "ddisc"), nil
}
