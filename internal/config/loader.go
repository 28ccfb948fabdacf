package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Load reads and merges configuration from global and project paths.
// Order of precedence (highest to lowest): project config, global config, defaults.
// Missing files are not errors; malformed JSON returns an error.
func Load(globalPath, projectPath string) (*GentheticConfig, error) {
	cfg := DefaultConfig()

	if globalPath != "" {
		if err := mergeConfigFile(cfg, globalPath); err != nil {
			return nil, fmt.Errorf("loading global config: %w", err)
		}
	}

	if projectPath != "" {
		if err := mergeConfigFile(cfg, projectPath); err != nil {
			return nil, fmt.Errorf("loading project config: %w", err)
		}
	}

	return cfg, nil
}

// LoadDefault loads configuration from conventional paths.
// Global: ~/.genthetic/config.json
// Project: .genthetic/config.json (relative to cwd)
func LoadDefault() (*GentheticConfig, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("getting home directory: %w", err)
	}

	globalPath := filepath.Join(homeDir, ".genthetic", "config.json")
	projectPath := filepath.Join(".genthetic", "config.json")

	return Load(globalPath, projectPath)
}

// mergeConfigFile reads a JSON config file and merges its set fields into
// the base config. Zero-valued fields in the file leave the base untouched.
// Missing files are silently skipped.
func mergeConfigFile(base *GentheticConfig, path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}

	var loaded GentheticConfig
	if err := json.Unmarshal(data, &loaded); err != nil {
		return fmt.Errorf("parsing %s: %w", path, err)
	}

	mergeGenerator(&base.Generator, loaded.Generator)
	mergeService(&base.Service, loaded.Service)
	if loaded.Output.Path != "" {
		base.Output.Path = loaded.Output.Path
	}
	if loaded.History.Path != "" {
		base.History.Path = loaded.History.Path
	}
	if loaded.Metrics.Addr != "" {
		base.Metrics.Addr = loaded.Metrics.Addr
	}

	return nil
}

func mergeGenerator(base *GeneratorConfig, loaded GeneratorConfig) {
	if loaded.Concurrency > 0 {
		base.Concurrency = loaded.Concurrency
	}
	if loaded.MaxRetries > 0 {
		base.MaxRetries = loaded.MaxRetries
	}
	if loaded.BaseDelayMS > 0 {
		base.BaseDelayMS = loaded.BaseDelayMS
	}
}

func mergeService(base *ServiceConfig, loaded ServiceConfig) {
	if loaded.Endpoint != "" {
		base.Endpoint = loaded.Endpoint
	}
	if loaded.Model != "" {
		base.Model = loaded.Model
	}
	if loaded.APIKeyEnv != "" {
		base.APIKeyEnv = loaded.APIKeyEnv
	}
	if loaded.TimeoutSeconds > 0 {
		base.TimeoutSeconds = loaded.TimeoutSeconds
	}
}
