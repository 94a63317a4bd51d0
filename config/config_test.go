package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/poiesic/kbingest/chunking"
	"github.com/poiesic/kbingest/ingestion"
	"github.com/poiesic/kbingest/vector"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "kbingest.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, StorageBadger, cfg.Storage.Backend)
	assert.Equal(t, DefaultDataDir, cfg.Storage.Path)
	assert.Equal(t, VectorBadger, cfg.Vector.Backend)
	assert.Equal(t, vector.DefaultMaxAttempts, cfg.Vector.MaxAttempts)
	assert.Equal(t, vector.DefaultBaseDelay, cfg.Vector.BaseDelay)
	assert.Equal(t, ProviderOpenAI, cfg.AI.Provider)
	assert.Equal(t, 768, cfg.AI.Dimensions)
	assert.Equal(t, ingestion.DefaultConcurrency, cfg.Ingestion.Concurrency)
	assert.Equal(t, ingestion.DefaultRaceBackoff, cfg.Ingestion.RaceBackoff)
	assert.Equal(t, chunking.DefaultLadder, cfg.Ladder())
}

func TestLoad_File(t *testing.T) {
	path := writeConfig(t, `
storage:
  backend: sqlite
  path: ./kb.db
vector:
  backend: badger
  path: vectors
  max_attempts: 5
  base_delay: 250ms
ai:
  provider: mock
  dimensions: 64
ingestion:
  concurrency: 4
  race_backoff: [5ms, 20ms]
  ladder:
    - {name: big, target_size: 2000, min_size: 1000, overlap: 100}
    - {name: small, target_size: 500, min_size: 250, overlap: 25}
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	dir := filepath.Dir(path)
	assert.Equal(t, StorageSQLite, cfg.Storage.Backend)
	assert.Equal(t, filepath.Join(dir, "kb.db"), cfg.Storage.Path)
	assert.Equal(t, filepath.Join(dir, "vectors"), cfg.Vector.Path)
	assert.Equal(t, 5, cfg.Vector.MaxAttempts)
	assert.Equal(t, 250*time.Millisecond, cfg.Vector.BaseDelay)
	assert.Equal(t, ProviderMock, cfg.AI.Provider)
	assert.Equal(t, 64, cfg.AI.Dimensions)
	assert.Equal(t, 4, cfg.Ingestion.Concurrency)
	assert.Equal(t, []time.Duration{5 * time.Millisecond, 20 * time.Millisecond}, cfg.Ingestion.RaceBackoff)
	assert.Equal(t, chunking.Ladder{
		{Name: "big", TargetSize: 2000, MinSize: 1000, Overlap: 100},
		{Name: "small", TargetSize: 500, MinSize: 250, Overlap: 25},
	}, cfg.Ladder())
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := writeConfig(t, `
storage:
  backend: badger
  path: /var/lib/kb
ai:
  model: from-file
`)
	t.Setenv(EnvStorageBackend, StoragePostgres)
	t.Setenv(EnvDatabaseURL, "postgres://kb@localhost/kb")
	t.Setenv(EnvVectorBackend, VectorPGVector)
	t.Setenv(EnvEmbeddingModel, "text-embedding-3-small")
	t.Setenv(EnvDimensions, "1536")
	t.Setenv(EnvConcurrency, "8")
	t.Setenv(EnvVectorBaseDelay, "2s")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, StoragePostgres, cfg.Storage.Backend)
	assert.Equal(t, "postgres://kb@localhost/kb", cfg.Storage.DSN)
	assert.Equal(t, "postgres://kb@localhost/kb", cfg.Vector.DSN, "vector dsn falls back to storage dsn")
	assert.Equal(t, VectorPGVector, cfg.Vector.Backend)
	assert.Equal(t, "text-embedding-3-small", cfg.AI.Model)
	assert.Equal(t, 1536, cfg.AI.Dimensions)
	assert.Equal(t, 8, cfg.Ingestion.Concurrency)
	assert.Equal(t, 2*time.Second, cfg.Vector.BaseDelay)
}

func TestLoad_BadEnv(t *testing.T) {
	t.Setenv(EnvConcurrency, "lots")
	_, err := Load("")
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestLoad_Errors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	_, err = Load(writeConfig(t, "storage: [not, a, map]"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"unknown storage", func(c *Config) { c.Storage.Backend = "mysql" }},
		{"sqlite without path", func(c *Config) { c.Storage.Backend = StorageSQLite; c.Storage.Path = "" }},
		{"postgres without dsn", func(c *Config) { c.Storage.Backend = StoragePostgres }},
		{"unknown vector", func(c *Config) { c.Vector.Backend = "chroma" }},
		{"badger vectors without path", func(c *Config) { c.Storage.Backend = StorageSQLite; c.Storage.Path = "kb.db" }},
		{"pgvector without dsn", func(c *Config) { c.Vector.Backend = VectorPGVector }},
		{"zero attempts", func(c *Config) { c.Vector.MaxAttempts = 0 }},
		{"negative rate limit", func(c *Config) { c.Vector.RateLimit = -1 }},
		{"unknown provider", func(c *Config) { c.AI.Provider = "cohere" }},
		{"openai without model", func(c *Config) { c.AI.Model = "" }},
		{"mock without dimensions", func(c *Config) { c.AI.Provider = ProviderMock; c.AI.Dimensions = 0 }},
		{"zero concurrency", func(c *Config) { c.Ingestion.Concurrency = 0 }},
		{"ascending ladder", func(c *Config) {
			c.Ingestion.Ladder = []TierConfig{
				{Name: "a", TargetSize: 500, MinSize: 250, Overlap: 10},
				{Name: "b", TargetSize: 900, MinSize: 450, Overlap: 10},
			}
		}},
	}

	require.NoError(t, Default().Validate())

	cfg := Default()
	cfg.Storage.Backend = "mysql"
	assert.ErrorContains(t, cfg.Validate(), "storage.backend=mysql failed on 'oneof'")

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			assert.ErrorIs(t, cfg.Validate(), ErrInvalidConfig)
		})
	}
}

func TestAIConfig(t *testing.T) {
	cfg := Default()
	cfg.AI.Host = "http://embed.internal:8080"
	cfg.AI.Model = "nomic-embed-text"

	ac := cfg.AIConfig()
	require.NoError(t, ac.Validate())
	assert.Equal(t, "http://embed.internal:8080/v1", ac.EmbeddingHost)
	assert.Equal(t, "nomic-embed-text", ac.EmbeddingModel)
	assert.Equal(t, 768, ac.Dimensions)
}
