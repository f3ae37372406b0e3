package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

const (
	BackendMemory   = "memory"
	BackendPostgres = "postgres"
	BackendMongo    = "mongo"

	EmbedderOpenAI  = "openai"
	EmbedderHashing = "hashing"

	ClassifierOpenAI = "openai"
	ClassifierCues   = "cues"
)

type Config struct {
	Debug   bool   `envconfig:"DEBUG" default:"false"`
	LogMode string `envconfig:"LOG_MODE" default:"dev"`

	VectorBackend string `envconfig:"VECTOR_BACKEND" default:"postgres"`
	DatabaseURL   string `envconfig:"DATABASE_URL"`

	MongoURI        string `envconfig:"MONGO_URI"`
	MongoDatabase   string `envconfig:"MONGO_DATABASE" default:"storyrag"`
	MongoCollection string `envconfig:"MONGO_COLLECTION" default:"storyembeddings"`
	MongoIndex      string `envconfig:"MONGO_INDEX" default:"vector_index"`

	Embedder            string        `envconfig:"EMBEDDER" default:"openai"`
	OpenAIAPIKey        string        `envconfig:"OPENAI_API_KEY"`
	OpenAIBaseURL       string        `envconfig:"OPENAI_BASE_URL"`
	EmbeddingModel      string        `envconfig:"EMBEDDING_MODEL" default:"text-embedding-3-small"`
	EmbeddingDimensions int           `envconfig:"EMBEDDING_DIMENSIONS" default:"1536"`
	EmbedInitTimeout    time.Duration `envconfig:"EMBED_INIT_TIMEOUT" default:"2m"`
	EmbedTimeout        time.Duration `envconfig:"EMBED_TIMEOUT" default:"30s"`

	RedisAddr         string        `envconfig:"REDIS_ADDR"`
	EmbeddingCacheTTL time.Duration `envconfig:"EMBEDDING_CACHE_TTL" default:"168h"`

	Classifier        string        `envconfig:"CLASSIFIER" default:"cues"`
	ClassifierAPIKey  string        `envconfig:"CLASSIFIER_API_KEY"`
	ClassifierBaseURL string        `envconfig:"CLASSIFIER_BASE_URL"`
	ClassifierModel   string        `envconfig:"CLASSIFIER_MODEL" default:"llama-3.3-70b-versatile"`
	ClassifierTimeout time.Duration `envconfig:"CLASSIFIER_TIMEOUT" default:"3s"`

	ChunkSize         int           `envconfig:"CHUNK_SIZE" default:"500"`
	TopK              int           `envconfig:"TOP_K" default:"5"`
	NumCandidates     int           `envconfig:"NUM_CANDIDATES" default:"150"`
	IngestConcurrency int           `envconfig:"INGEST_CONCURRENCY" default:"1"`
	WriteTimeout      time.Duration `envconfig:"WRITE_TIMEOUT" default:"10s"`
	SearchTimeout     time.Duration `envconfig:"SEARCH_TIMEOUT" default:"5s"`

	WorkerPollInterval time.Duration `envconfig:"WORKER_POLL_INTERVAL" default:"10s"`

	S3Endpoint  string `envconfig:"S3_ENDPOINT"`
	S3AccessKey string `envconfig:"S3_ACCESS_KEY_ID"`
	S3SecretKey string `envconfig:"S3_SECRET_ACCESS_KEY"`
	S3Bucket    string `envconfig:"S3_BUCKET" default:"storyrag-documents"`
	S3Region    string `envconfig:"S3_REGION" default:"us-east-1"`

	SentryDSN   string `envconfig:"SENTRY_DSN"`
	Environment string `envconfig:"ENVIRONMENT" default:"development"`
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("STORYRAG", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks that the selected backends have what they need.
func (c *Config) Validate() error {
	c.VectorBackend = strings.ToLower(strings.TrimSpace(c.VectorBackend))
	c.Embedder = strings.ToLower(strings.TrimSpace(c.Embedder))
	c.Classifier = strings.ToLower(strings.TrimSpace(c.Classifier))

	switch c.VectorBackend {
	case BackendMemory:
	case BackendPostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("STORYRAG_DATABASE_URL is required for the %s backend", c.VectorBackend)
		}
	case BackendMongo:
		if c.MongoURI == "" {
			return fmt.Errorf("STORYRAG_MONGO_URI is required for the %s backend", c.VectorBackend)
		}
	default:
		return fmt.Errorf("unknown vector backend %q", c.VectorBackend)
	}

	switch c.Embedder {
	case EmbedderOpenAI, EmbedderHashing:
	default:
		return fmt.Errorf("unknown embedder %q", c.Embedder)
	}
	if c.EmbeddingDimensions <= 0 {
		return fmt.Errorf("embedding dimensions must be positive, got %d", c.EmbeddingDimensions)
	}

	switch c.Classifier {
	case ClassifierOpenAI, ClassifierCues:
	default:
		return fmt.Errorf("unknown classifier %q", c.Classifier)
	}

	if c.ChunkSize <= 0 || c.TopK <= 0 {
		return fmt.Errorf("chunk size and top k must be positive")
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
	return c.RedisAddr != ""
}

// ClassifierKey falls back to the OpenAI key when no classifier key is set.
func (c *Config) ClassifierKey() string {
	if c.ClassifierAPIKey != "" {
		return c.ClassifierAPIKey
	}
	return c.OpenAIAPIKey
}
