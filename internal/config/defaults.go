package config

import "time"

// DefaultExcludes are glob patterns excluded from scanning by default.
var DefaultExcludes = []string{
	".git/**",
	".corpusd/**",
	"**/*.tmp",
	"**/~*",
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:           ":8428",
			DataDir:        ".corpusd-server",
			MaxConcurrency: 4,
		},
		Sync: SyncConfig{
			ServerURL:     "http://localhost:8428",
			Account:       "default",
			Roots:         []string{"."},
			Exclude:       DefaultExcludes,
			StateDir:      ".corpusd",
			MaxBatchBytes: 10 << 20,
			MaxBatchItems: 50,
			Interval:      10 * time.Minute,
			Timeout:       60 * time.Second,
		},
		Embedding: EmbeddingConfig{
			Provider: ProviderOpenAI,
			Model:    "text-embedding-3-small",
			Timeout:  30 * time.Second,
		},
		Rerank: RerankConfig{
			Timeout: 30 * time.Second,
		},
		Jobs: JobsConfig{
			Lease:            90 * time.Second,
			SnapshotInterval: 5 * time.Minute,
			SweepInterval:    time.Hour,
		},
	}
}
