// Package config loads and validates the corpusd configuration.
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	yamlv3 "gopkg.in/yaml.v3"

	"corpusd/internal/content"
)

// Load reads configuration from the given YAML file, then overlays
// environment variable overrides (CORPUSD_*). Nested keys use underscores
// doubled as separators: CORPUSD_SYNC__ACCOUNT -> sync.account.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	cfg := DefaultConfig()

	if _, err := os.Stat(path); err == nil {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("reading config %s: %w", path, err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("accessing config %s: %w", path, err)
	}

	if err := k.Load(env.Provider("CORPUSD_", ".", func(s string) string {
		s = strings.ToLower(strings.TrimPrefix(s, "CORPUSD_"))
		return strings.ReplaceAll(s, "__", ".")
	}), nil); err != nil {
		return nil, fmt.Errorf("loading env overrides: %w", err)
	}

	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshalling config: %w", err)
	}

	return cfg, nil
}

// Save writes the configuration to the given YAML file path.
func (c *Config) Save(path string) error {
	data, err := yamlv3.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshalling config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}
	return nil
}

var validProviders = map[EmbeddingProvider]bool{
	ProviderOpenAI: true,
	ProviderOllama: true,
}

// Validate checks that the configuration contains usable values.
func (c *Config) Validate() error {
	if c.Embedding.Provider == "" {
		return fmt.Errorf("embedding.provider is required")
	}
	if !validProviders[c.Embedding.Provider] {
		return fmt.Errorf("invalid embedding.provider %q: must be one of openai, ollama", c.Embedding.Provider)
	}
	if c.Embedding.Model == "" {
		return fmt.Errorf("embedding.model is required")
	}

	if len(c.Sync.Roots) == 0 {
		return fmt.Errorf("sync.roots must list at least one directory")
	}
	for _, t := range c.Sync.Types {
		if !content.Valid(t) {
			return fmt.Errorf("invalid sync type %q", t)
		}
	}
	if c.Sync.MaxBatchBytes <= 0 {
		return fmt.Errorf("sync.max_batch_bytes must be positive")
	}
	if c.Sync.MaxBatchItems <= 0 {
		return fmt.Errorf("sync.max_batch_items must be positive")
	}

	if c.Jobs.Lease <= 0 {
		return fmt.Errorf("jobs.lease must be positive")
	}
	if c.Jobs.SnapshotInterval <= 0 || c.Jobs.SweepInterval <= 0 {
		return fmt.Errorf("job intervals must be positive")
	}

	return nil
}

// EnabledTypes returns the configured sync types as content types; empty
// means all types are enabled.
func (c *Config) EnabledTypes() []content.Type {
	types := make([]content.Type, 0, len(c.Sync.Types))
	for _, t := range c.Sync.Types {
		types = append(types, content.Type(t))
	}
	return types
}

// APIKeyEnvVar names the environment variable holding the embedding
// provider's API key.
func APIKeyEnvVar(provider EmbeddingProvider) string {
	if provider == ProviderOpenAI {
		return "OPENAI_API_KEY"
	}
	return ""
}
