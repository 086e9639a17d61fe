// Package config loads plugrid host configuration from TOML files and
// environment variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

// Env variable names recognized by Load.
const (
	// EnvSearchPaths overrides search_paths; entries are list-separated
	// (colon on Unix).
	EnvSearchPaths = "PLUGRID_PLUGIN_PATHS"

	// EnvDisabled overrides disabled; entries are comma-separated.
	EnvDisabled = "PLUGRID_DISABLED"
)

// Config is the plugrid host configuration.
type Config struct {
	// SearchPaths are the directories scanned for plugin modules,
	// checked in order; the first path carrying a module name wins.
	SearchPaths []string `toml:"search_paths"`

	// Disabled lists plugin ids registered but skipped at load time.
	// A disabled plugin keeps its position in the dependency graph.
	Disabled []string `toml:"disabled"`
}

// Default returns the default configuration.
func Default() Config {
	return Config{
		SearchPaths: DefaultSearchPaths(),
	}
}

// DefaultSearchPaths returns the default plugin search paths.
func DefaultSearchPaths() []string {
	paths := make([]string, 0, 2)

	// User plugins: ~/.config/plugrid/plugins/
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "plugrid", "plugins"))
	}

	// Project plugins: .plugrid/plugins/
	if cwd, err := os.Getwd(); err == nil {
		paths = append(paths, filepath.Join(cwd, ".plugrid", "plugins"))
	}

	return paths
}

// Load reads configuration from a TOML file and applies environment
// overrides. A missing file is not an error; defaults apply. An empty path
// skips the file entirely.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case os.IsNotExist(err):
			// Missing config file falls back to defaults.
		case err != nil:
			return cfg, fmt.Errorf("reading config file %s: %w", path, err)
		default:
			if err := toml.Unmarshal(data, &cfg); err != nil {
				return cfg, fmt.Errorf("parsing config file %s: %w", path, err)
			}
		}
	}

	applyEnv(&cfg)
	return cfg, nil
}

// applyEnv overrides config fields from the environment.
// Empty values are treated as valid, clearing the field.
func applyEnv(cfg *Config) {
	if val, ok := os.LookupEnv(EnvSearchPaths); ok {
		cfg.SearchPaths = splitNonEmpty(val, string(os.PathListSeparator))
	}
	if val, ok := os.LookupEnv(EnvDisabled); ok {
		cfg.Disabled = splitNonEmpty(val, ",")
	}
}

func splitNonEmpty(s, sep string) []string {
	var out []string
	for _, part := range strings.Split(s, sep) {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}

// IsDisabled reports whether a plugin id appears in the disabled list.
func (c Config) IsDisabled(id string) bool {
	for _, d := range c.Disabled {
		if d == id {
			return true
		}
	}
	return false
}
