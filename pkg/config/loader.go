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

// llmProvidersFile is the llm-providers.yaml file structure.
type llmProvidersFile struct {
	LLMProviders map[string]LLMProviderConfig `yaml:"llm_providers"`
}

// Initialize loads, merges, and validates configuration from configDir.
// This is the primary entry point.
//
// Steps performed:
//  1. Load seeker.yaml and llm-providers.yaml
//  2. Expand {{.VAR}} environment references
//  3. Merge user values over built-in defaults
//  4. Validate everything, producing ConfigError values
func Initialize(ctx context.Context, configDir string) (*Config, error) {
	log := slog.With("config_dir", configDir)
	log.Info("initializing configuration")

	cfg, err := load(ctx, configDir)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	log.Info("configuration initialized",
		"llm_providers", len(cfg.Providers),
		"default_provider", cfg.LLM.DefaultProvider,
		"data_dir", cfg.Storage.DataDir)
	return cfg, nil
}

func load(_ context.Context, configDir string) (*Config, error) {
	loader := &configLoader{configDir: configDir}

	var user FileConfig
	if err := loader.loadYAML("seeker.yaml", &user); err != nil {
		return nil, NewLoadError("seeker.yaml", err)
	}

	// User values override built-in defaults field by field.
	merged := DefaultFileConfig()
	if err := mergo.Merge(merged, &user, mergo.WithOverride); err != nil {
		return nil, fmt.Errorf("failed to merge configuration: %w", err)
	}

	var providers llmProvidersFile
	providers.LLMProviders = make(map[string]LLMProviderConfig)
	if err := loader.loadYAML("llm-providers.yaml", &providers); err != nil {
		return nil, NewLoadError("llm-providers.yaml", err)
	}

	return &Config{
		configDir: configDir,
		Server:    merged.Server,
		Storage:   merged.Storage,
		LLM:       merged.LLM,
		Tools:     merged.Tools,
		Research:  merged.Research,
		Ingest:    merged.Ingest,
		Providers: providers.LLMProviders,
	}, nil
}

type configLoader struct {
	configDir string
}

func (l *configLoader) loadYAML(filename string, target any) error {
	path := filepath.Join(l.configDir, filename)

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: %s", ErrConfigNotFound, path)
		}
		return err
	}

	// ExpandEnv passes original bytes through on template errors so the
	// YAML parser reports the clearer message.
	data = ExpandEnv(data)

	if err := yaml.Unmarshal(data, target); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidYAML, err)
	}
	return nil
}
