package config

import (
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

const envPrefix = "TUTORCORE"

// Search backends.
const (
	BackendPgvector = "pgvector"
	BackendMemory   = "memory"
)

type Config struct {
	Port      string `envconfig:"PORT" default:"8080"`
	Debug     bool   `envconfig:"DEBUG" default:"false"`
	LogFormat string `envconfig:"LOG_FORMAT" default:"json"`

	DatabaseURL string `envconfig:"DATABASE_URL" required:"true"`

	OpenAIAPIKey        string        `envconfig:"OPENAI_API_KEY"`
	EmbeddingModel      string        `envconfig:"EMBEDDING_MODEL" default:"text-embedding-3-small"`
	EmbeddingDimensions int           `envconfig:"EMBEDDING_DIMENSIONS" default:"1536"`
	EmbeddingTimeout    time.Duration `envconfig:"EMBEDDING_TIMEOUT" default:"30s"`
	EmbeddingRateLimit  float64       `envconfig:"EMBEDDING_RATE_LIMIT" default:"5"`
	EmbeddingBatchSize  int           `envconfig:"EMBEDDING_BATCH_SIZE" default:"64"`

	ChunkTargetSize int `envconfig:"CHUNK_TARGET_SIZE" default:"1000"`
	ChunkOverlap    int `envconfig:"CHUNK_OVERLAP" default:"100"`

	SearchBackend    string  `envconfig:"SEARCH_BACKEND" default:"pgvector"`
	SearchThreshold  float64 `envconfig:"SEARCH_THRESHOLD" default:"0.7"`
	SearchMaxResults int     `envconfig:"SEARCH_MAX_RESULTS" default:"10"`
	IVFLists         int     `envconfig:"IVF_LISTS" default:"100"`
	IVFProbes        int     `envconfig:"IVF_PROBES" default:"10"`

	RedisURL      string        `envconfig:"REDIS_URL"`
	QueryCacheTTL time.Duration `envconfig:"QUERY_CACHE_TTL" default:"15m"`

	S3Endpoint     string `envconfig:"S3_ENDPOINT"`
	S3AccessKey    string `envconfig:"S3_ACCESS_KEY_ID"`
	S3SecretKey    string `envconfig:"S3_SECRET_ACCESS_KEY"`
	S3Bucket       string `envconfig:"S3_BUCKET" default:"tutorcore-materials"`
	S3Region       string `envconfig:"S3_REGION" default:"us-east-1"`
	S3UsePathStyle bool   `envconfig:"S3_USE_PATH_STYLE" default:"true"`

	WorkerPollInterval time.Duration `envconfig:"WORKER_POLL_INTERVAL" default:"10s"`
	WorkerConcurrency  int           `envconfig:"WORKER_CONCURRENCY" default:"4"`

	SentryDSN   string `envconfig:"SENTRY_DSN"`
	Environment string `envconfig:"ENVIRONMENT" default:"development"`
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process(envPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("failed to process config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate rejects settings the engine cannot run with.
func (c *Config) Validate() error {
	switch c.SearchBackend {
	case BackendPgvector, BackendMemory:
	default:
		return fmt.Errorf("invalid SEARCH_BACKEND %q: want %s or %s", c.SearchBackend, BackendPgvector, BackendMemory)
	}
	if c.EmbeddingDimensions <= 0 {
		return fmt.Errorf("EMBEDDING_DIMENSIONS must be positive, got %d", c.EmbeddingDimensions)
	}
	if c.ChunkTargetSize <= 0 || c.ChunkOverlap < 0 || c.ChunkOverlap >= c.ChunkTargetSize {
		return fmt.Errorf("invalid chunking: target %d, overlap %d", c.ChunkTargetSize, c.ChunkOverlap)
	}
	if c.SearchMaxResults <= 0 {
		return fmt.Errorf("SEARCH_MAX_RESULTS must be positive, got %d", c.SearchMaxResults)
	}
	if c.IVFProbes > c.IVFLists {
		return fmt.Errorf("IVF_PROBES (%d) cannot exceed IVF_LISTS (%d)", c.IVFProbes, c.IVFLists)
	}
	return nil
}

func (c *Config) HasS3() bool {
	return c.S3Endpoint != "" && c.S3AccessKey != "" && c.S3SecretKey != ""
}

func (c *Config) HasOpenAI() bool {
	return c.OpenAIAPIKey != ""
}

func (c *Config) HasRedis() bool {
	return c.RedisURL != ""
}

func (c *Config) HasSentry() bool {
	return c.SentryDSN != ""
}
