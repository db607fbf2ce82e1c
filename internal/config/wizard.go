package config

import (
	"fmt"
	"strings"

	"github.com/manifoldco/promptui"
)

// RunWizard runs an interactive configuration wizard and returns the
// resulting Config. The caller decides where to save it.
func RunWizard() (*Config, error) {
	fmt.Println("Welcome to corpusd! Let's configure your corpus.")
	fmt.Println()

	cfg := DefaultConfig()

	rootPrompt := promptui.Prompt{
		Label:   "Document directory to sync",
		Default: ".",
		Validate: func(s string) error {
			if strings.TrimSpace(s) == "" {
				return fmt.Errorf("directory is required")
			}
			return nil
		},
	}
	root, err := rootPrompt.Run()
	if err != nil {
		return nil, fmt.Errorf("root selection: %w", err)
	}
	cfg.Sync.Roots = []string{strings.TrimSpace(root)}

	serverPrompt := promptui.Prompt{
		Label:   "Server URL",
		Default: cfg.Sync.ServerURL,
	}
	serverURL, err := serverPrompt.Run()
	if err != nil {
		return nil, fmt.Errorf("server selection: %w", err)
	}
	cfg.Sync.ServerURL = strings.TrimSpace(serverURL)

	accountPrompt := promptui.Prompt{
		Label:   "Account identifier",
		Default: cfg.Sync.Account,
	}
	account, err := accountPrompt.Run()
	if err != nil {
		return nil, fmt.Errorf("account selection: %w", err)
	}
	cfg.Sync.Account = strings.TrimSpace(account)

	providerPrompt := promptui.Select{
		Label: "Embedding provider (server side)",
		Items: []string{"openai", "ollama"},
	}
	_, providerStr, err := providerPrompt.Run()
	if err != nil {
		return nil, fmt.Errorf("provider selection: %w", err)
	}
	cfg.Embedding.Provider = EmbeddingProvider(providerStr)
	if cfg.Embedding.Provider == ProviderOllama {
		cfg.Embedding.Model = "nomic-embed-text"
	}

	if envVar := APIKeyEnvVar(cfg.Embedding.Provider); envVar != "" {
		fmt.Printf("\nThe server reads the embedding API key from $%s.\n", envVar)
	}

	return cfg, nil
}
