package config

import (
	"slices"

	"github.com/poiesic/kbingest/ai"
	"github.com/poiesic/kbingest/chunking"
	"github.com/poiesic/kbingest/ingestion"
	"github.com/poiesic/kbingest/vector"
	"github.com/poiesic/kbingest/vector/pgvector"
)

// DefaultDataDir is where the badger database lives when no path is set.
const DefaultDataDir = "kbingest-data"

// Default returns a Config with every default applied.
func Default() *Config {
	cfg := &Config{}
	ApplyDefaults(cfg)
	return cfg
}

// ApplyDefaults sets default values for any zero values in cfg.
func ApplyDefaults(cfg *Config) {
	if cfg.Storage.Backend == "" {
		cfg.Storage.Backend = StorageBadger
	}
	if cfg.Storage.Path == "" && cfg.Storage.Backend == StorageBadger {
		cfg.Storage.Path = DefaultDataDir
	}

	if cfg.Vector.Backend == "" {
		cfg.Vector.Backend = VectorBadger
	}
	if cfg.Vector.DSN == "" {
		cfg.Vector.DSN = cfg.Storage.DSN
	}
	if cfg.Vector.Table == "" {
		cfg.Vector.Table = pgvector.DefaultTable
	}
	if cfg.Vector.MaxAttempts == 0 {
		cfg.Vector.MaxAttempts = vector.DefaultMaxAttempts
	}
	if cfg.Vector.BaseDelay == 0 {
		cfg.Vector.BaseDelay = vector.DefaultBaseDelay
	}
	if cfg.Vector.MaxRecordChars == 0 {
		cfg.Vector.MaxRecordChars = vector.DefaultMaxRecordChars
	}
	if cfg.Vector.MaxMetadataKeys == 0 {
		cfg.Vector.MaxMetadataKeys = vector.DefaultMaxMetadataKeys
	}
	if cfg.Vector.BatchSize == 0 {
		cfg.Vector.BatchSize = pgvector.DefaultBatchSize
	}
	if cfg.Vector.Parallelism == 0 {
		cfg.Vector.Parallelism = pgvector.DefaultParallelism
	}

	aiDefaults := ai.DefaultConfig()
	if cfg.AI.Provider == "" {
		cfg.AI.Provider = ProviderOpenAI
	}
	if cfg.AI.Host == "" {
		cfg.AI.Host = aiDefaults.EmbeddingHost
	}
	if cfg.AI.Model == "" {
		cfg.AI.Model = aiDefaults.EmbeddingModel
	}
	if cfg.AI.APIToken == "" {
		cfg.AI.APIToken = aiDefaults.APIToken
	}
	if cfg.AI.Dimensions == 0 {
		cfg.AI.Dimensions = aiDefaults.Dimensions
	}

	if cfg.Ingestion.Concurrency == 0 {
		cfg.Ingestion.Concurrency = ingestion.DefaultConcurrency
	}
	if cfg.Ingestion.RaceBackoff == nil {
		cfg.Ingestion.RaceBackoff = slices.Clone(ingestion.DefaultRaceBackoff)
	}
	if len(cfg.Ingestion.Ladder) == 0 {
		for _, t := range chunking.DefaultLadder {
			cfg.Ingestion.Ladder = append(cfg.Ingestion.Ladder, TierConfig{
				Name: t.Name, TargetSize: t.TargetSize, MinSize: t.MinSize, Overlap: t.Overlap,
			})
		}
	}
}
