package config

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"dario.cat/mergo"
	"gopkg.in/yaml.v3"
)

// ConfigFileName is the single YAML file read from the config directory.
const ConfigFileName = "specforge.yaml"

// Initialize loads, validates, and returns ready-to-use configuration.
// This is the primary entry point for configuration loading.
//
// Steps performed:
//  1. Read specforge.yaml from configDir (a missing file is not an error —
//     the built-in defaults apply)
//  2. Expand environment variables
//  3. Parse YAML into structs
//  4. Merge built-in defaults under the user-defined values
//  5. Validate all configuration
//  6. Return Config ready for use
func Initialize(ctx context.Context, configDir string) (*Config, error) {
	log := slog.With("config_dir", configDir)
	log.Info("Initializing configuration")

	cfg, err := load(ctx, configDir)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidationFailed, err)
	}

	log.Info("Configuration initialized successfully",
		"primary_model", cfg.Agents.PrimaryModel,
		"max_concurrent_agents", cfg.Orchestrator.MaxConcurrentAgents,
		"database", cfg.Database.DSN != "")
	return cfg, nil
}

func load(_ context.Context, configDir string) (*Config, error) {
	cfg := &Config{configDir: configDir}

	path := filepath.Join(configDir, ConfigFileName)
	data, err := os.ReadFile(path)
	switch {
	case os.IsNotExist(err):
		// Run entirely on defaults.
	case err != nil:
		return nil, NewLoadError(ConfigFileName, err)
	default:
		// Expand environment variables using {{.VAR}} template syntax.
		// ExpandEnv passes the original data through on template errors so
		// the YAML parser produces the clearer message.
		data = ExpandEnv(data)
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, NewLoadError(ConfigFileName, fmt.Errorf("%w: %v", ErrInvalidYAML, err))
		}
	}

	// Fill anything the file left unset from the built-in defaults.
	if err := mergo.Merge(cfg, DefaultConfig()); err != nil {
		return nil, fmt.Errorf("failed to merge defaults: %w", err)
	}
	return cfg, nil
}
