package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Environment variables read by ApplyEnv.
const (
	EnvStorageBackend  = "KBINGEST_STORAGE_BACKEND"
	EnvStoragePath     = "KBINGEST_STORAGE_PATH"
	EnvDatabaseURL     = "KBINGEST_DATABASE_URL"
	EnvVectorBackend   = "KBINGEST_VECTOR_BACKEND"
	EnvVectorPath      = "KBINGEST_VECTOR_PATH"
	EnvVectorDSN       = "KBINGEST_VECTOR_DSN"
	EnvVectorAttempts  = "KBINGEST_VECTOR_MAX_ATTEMPTS"
	EnvVectorBaseDelay = "KBINGEST_VECTOR_BASE_DELAY"
	EnvAIProvider      = "KBINGEST_AI_PROVIDER"
	EnvEmbeddingHost   = "KBINGEST_EMBEDDING_HOST"
	EnvEmbeddingModel  = "KBINGEST_EMBEDDING_MODEL"
	EnvAPIToken        = "KBINGEST_API_TOKEN"
	EnvDimensions      = "KBINGEST_EMBEDDING_DIMENSIONS"
	EnvConcurrency     = "KBINGEST_CONCURRENCY"
)

// ApplyEnv overrides fields with the KBINGEST_* variables that are set.
func (c *Config) ApplyEnv() error {
	strs := []struct {
		key string
		dst *string
	}{
		{EnvStorageBackend, &c.Storage.Backend},
		{EnvStoragePath, &c.Storage.Path},
		{EnvDatabaseURL, &c.Storage.DSN},
		{EnvVectorBackend, &c.Vector.Backend},
		{EnvVectorPath, &c.Vector.Path},
		{EnvVectorDSN, &c.Vector.DSN},
		{EnvAIProvider, &c.AI.Provider},
		{EnvEmbeddingHost, &c.AI.Host},
		{EnvEmbeddingModel, &c.AI.Model},
		{EnvAPIToken, &c.AI.APIToken},
	}
	for _, s := range strs {
		if v, ok := os.LookupEnv(s.key); ok {
			*s.dst = v
		}
	}

	ints := []struct {
		key string
		dst *int
	}{
		{EnvVectorAttempts, &c.Vector.MaxAttempts},
		{EnvDimensions, &c.AI.Dimensions},
		{EnvConcurrency, &c.Ingestion.Concurrency},
	}
	for _, i := range ints {
		v, ok := os.LookupEnv(i.key)
		if !ok || v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%w: %s=%q is not an integer", ErrInvalidConfig, i.key, v)
		}
		*i.dst = n
	}

	if v, ok := os.LookupEnv(EnvVectorBaseDelay); ok && v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%w: %s=%q is not a duration", ErrInvalidConfig, EnvVectorBaseDelay, v)
		}
		c.Vector.BaseDelay = d
	}
	return nil
}
