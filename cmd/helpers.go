package cmd

import (
	"fmt"
	"os"

	"corpusd/internal/config"
	"corpusd/internal/embeddings"
)

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// createEmbedder builds the configured embedding backend, bounded by the
// configured per-call timeout.
func createEmbedder(cfg *config.Config) (embeddings.Embedder, error) {
	var e embeddings.Embedder
	switch cfg.Embedding.Provider {
	case config.ProviderOpenAI:
		apiKey := os.Getenv(config.APIKeyEnvVar(config.ProviderOpenAI))
		if apiKey == "" {
			return nil, fmt.Errorf("OPENAI_API_KEY is not set")
		}
		e = embeddings.NewOpenAIEmbedder(apiKey, cfg.Embedding.Model)
	case config.ProviderOllama:
		e = embeddings.NewOllamaEmbedder(cfg.Embedding.Model, cfg.Embedding.OllamaURL)
	default:
		return nil, fmt.Errorf("unknown embedding provider %q", cfg.Embedding.Provider)
	}
	return embeddings.WithTimeout(e, cfg.Embedding.Timeout), nil
}
