// Package config loads kbingest settings from a YAML file and the environment.
//
// Values are resolved in order: built-in defaults, the YAML file, then
// KBINGEST_* environment variables. A .env file in the working directory is
// loaded into the environment first when present.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/poiesic/kbingest/ai"
	"github.com/poiesic/kbingest/chunking"
	"gopkg.in/yaml.v3"
)

// Storage backends.
const (
	StorageBadger   = "badger"
	StorageSQLite   = "sqlite"
	StoragePostgres = "postgres"
)

// Vector backends.
const (
	VectorBadger   = "badger"
	VectorPGVector = "pgvector"
)

// AI providers.
const (
	ProviderOpenAI = "openai"
	ProviderMock   = "mock"
)

// ErrInvalidConfig is wrapped by every Validate failure.
var ErrInvalidConfig = errors.New("invalid config")

// Config holds all configuration for the application.
type Config struct {
	Storage   StorageConfig   `yaml:"storage"`
	Vector    VectorConfig    `yaml:"vector"`
	AI        AIConfig        `yaml:"ai"`
	Ingestion IngestionConfig `yaml:"ingestion"`
}

// StorageConfig selects the document repository.
type StorageConfig struct {
	Backend string `yaml:"backend" validate:"oneof=badger sqlite postgres"`
	// Path is the badger directory or sqlite file.
	Path string `yaml:"path"`
	// DSN is the postgres connection string.
	DSN string `yaml:"dsn"`
}

// VectorConfig selects the vector index and the client's retry policy.
type VectorConfig struct {
	Backend string `yaml:"backend" validate:"oneof=badger pgvector"`
	// Path is the badger directory when the index does not share the
	// repository's badger database.
	Path string `yaml:"path"`
	// DSN defaults to the storage DSN.
	DSN             string        `yaml:"dsn"`
	Table           string        `yaml:"table"`
	MaxAttempts     int           `yaml:"max_attempts" validate:"gt=0"`
	BaseDelay       time.Duration `yaml:"base_delay" validate:"gte=0"`
	MaxRecordChars  int           `yaml:"max_record_chars" validate:"gt=0"`
	MaxMetadataKeys int           `yaml:"max_metadata_keys" validate:"gt=0"`
	BatchSize       int           `yaml:"batch_size" validate:"gt=0"`
	Parallelism     int           `yaml:"parallelism" validate:"gt=0"`
	// RateLimit caps index calls per second; zero disables the limiter.
	RateLimit float64 `yaml:"rate_limit" validate:"gte=0"`
	RateBurst int     `yaml:"rate_burst" validate:"gte=0"`
}

// AIConfig selects the embedding provider.
type AIConfig struct {
	Provider   string `yaml:"provider" validate:"oneof=openai mock"`
	Host       string `yaml:"host"`
	Model      string `yaml:"model"`
	APIToken   string `yaml:"api_token"`
	Dimensions int    `yaml:"dimensions" validate:"gt=0"`
}

// TierConfig is one chunking tier.
type TierConfig struct {
	Name       string `yaml:"name"`
	TargetSize int    `yaml:"target_size"`
	MinSize    int    `yaml:"min_size"`
	Overlap    int    `yaml:"overlap"`
}

// IngestionConfig tunes the pipeline.
type IngestionConfig struct {
	Concurrency int             `yaml:"concurrency" validate:"gt=0"`
	RaceBackoff []time.Duration `yaml:"race_backoff"`
	Ladder      []TierConfig    `yaml:"ladder"`
}

// Load builds a Config from the YAML file at path (skipped when path is
// empty) and the environment, fills unset fields with defaults, then
// validates it. Zero values count as unset.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	cfg := &Config{}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
		configDir := filepath.Dir(path)
		cfg.Storage.Path = expandPath(cfg.Storage.Path, configDir)
		cfg.Vector.Path = expandPath(cfg.Vector.Path, configDir)
	}

	if err := cfg.ApplyEnv(); err != nil {
		return nil, err
	}
	ApplyDefaults(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("yaml"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Validate checks that backends are known and their settings are present.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			e := verrs[0]
			_, field, _ := strings.Cut(e.Namespace(), ".")
			return fmt.Errorf("%w: %s=%v failed on '%s'", ErrInvalidConfig, field, e.Value(), e.Tag())
		}
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}

	switch c.Storage.Backend {
	case StorageBadger, StorageSQLite:
		if c.Storage.Path == "" {
			return fmt.Errorf("%w: storage.path is required for %s", ErrInvalidConfig, c.Storage.Backend)
		}
	case StoragePostgres:
		if c.Storage.DSN == "" {
			return fmt.Errorf("%w: storage.dsn is required for postgres", ErrInvalidConfig)
		}
	}

	switch c.Vector.Backend {
	case VectorBadger:
		if c.Vector.Path == "" && c.Storage.Backend != StorageBadger {
			return fmt.Errorf("%w: vector.path is required unless storage is badger", ErrInvalidConfig)
		}
	case VectorPGVector:
		if c.Vector.DSN == "" {
			return fmt.Errorf("%w: vector.dsn is required for pgvector", ErrInvalidConfig)
		}
	}

	if c.AI.Provider == ProviderOpenAI {
		if err := c.AIConfig().Validate(); err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
		}
	}

	if err := c.Ladder().Validate(); err != nil {
		return fmt.Errorf("%w: ingestion.ladder: %w", ErrInvalidConfig, err)
	}
	return nil
}

// AIConfig returns the embedding settings as an ai.Config.
func (c *Config) AIConfig() *ai.Config {
	return ai.NewConfig(
		ai.WithEmbeddingHost(c.AI.Host),
		ai.WithEmbeddingModel(c.AI.Model),
		ai.WithAPIToken(c.AI.APIToken),
		ai.WithDimensions(c.AI.Dimensions),
	)
}

// Ladder returns the configured chunking tiers.
func (c *Config) Ladder() chunking.Ladder {
	ladder := make(chunking.Ladder, len(c.Ingestion.Ladder))
	for i, t := range c.Ingestion.Ladder {
		ladder[i] = chunking.Tier{Name: t.Name, TargetSize: t.TargetSize, MinSize: t.MinSize, Overlap: t.Overlap}
	}
	return ladder
}

// expandPath resolves a relative path against configDir.
func expandPath(path, configDir string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(configDir, path)
}
