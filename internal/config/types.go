package config

import "time"

// EmbeddingProvider identifies an embedding backend.
type EmbeddingProvider string

const (
	ProviderOpenAI EmbeddingProvider = "openai"
	ProviderOllama EmbeddingProvider = "ollama"
)

// Config is the top-level corpusd configuration, corresponding to
// .corpusd.yml.
type Config struct {
	Server    ServerConfig    `yaml:"server" koanf:"server"`
	Sync      SyncConfig      `yaml:"sync" koanf:"sync"`
	Embedding EmbeddingConfig `yaml:"embedding" koanf:"embedding"`
	Rerank    RerankConfig    `yaml:"rerank" koanf:"rerank"`
	Jobs      JobsConfig      `yaml:"jobs" koanf:"jobs"`
}

// ServerConfig holds the server process settings.
type ServerConfig struct {
	Addr     string `yaml:"addr" koanf:"addr"`
	DataDir  string `yaml:"data_dir" koanf:"data_dir"`
	AllowAll bool   `yaml:"allow_all_origins" koanf:"allow_all_origins"`
	// MaxConcurrency bounds parallel file processing within one batch.
	MaxConcurrency int `yaml:"max_concurrency" koanf:"max_concurrency"`
}

// SyncConfig holds the client-side sync settings.
type SyncConfig struct {
	ServerURL     string        `yaml:"server_url" koanf:"server_url"`
	Account       string        `yaml:"account" koanf:"account"`
	Roots         []string      `yaml:"roots" koanf:"roots"`
	Include       []string      `yaml:"include" koanf:"include"`
	Exclude       []string      `yaml:"exclude" koanf:"exclude"`
	Types         []string      `yaml:"types" koanf:"types"`
	StateDir      string        `yaml:"state_dir" koanf:"state_dir"`
	MaxBatchBytes int64         `yaml:"max_batch_bytes" koanf:"max_batch_bytes"`
	MaxBatchItems int           `yaml:"max_batch_items" koanf:"max_batch_items"`
	Interval      time.Duration `yaml:"interval" koanf:"interval"`
	Timeout       time.Duration `yaml:"timeout" koanf:"timeout"`
}

// EmbeddingConfig selects and tunes the embedding backend.
type EmbeddingConfig struct {
	Provider  EmbeddingProvider `yaml:"provider" koanf:"provider"`
	Model     string            `yaml:"model" koanf:"model"`
	OllamaURL string            `yaml:"ollama_url" koanf:"ollama_url"`
	Timeout   time.Duration     `yaml:"timeout" koanf:"timeout"`
}

// RerankConfig points at an optional cross-encoder endpoint. An empty URL
// disables reranking.
type RerankConfig struct {
	URL     string        `yaml:"url" koanf:"url"`
	Model   string        `yaml:"model" koanf:"model"`
	Timeout time.Duration `yaml:"timeout" koanf:"timeout"`
}

// JobsConfig tunes the recurring maintenance jobs.
type JobsConfig struct {
	Lease            time.Duration `yaml:"lease" koanf:"lease"`
	SnapshotInterval time.Duration `yaml:"snapshot_interval" koanf:"snapshot_interval"`
	SweepInterval    time.Duration `yaml:"sweep_interval" koanf:"sweep_interval"`
}
