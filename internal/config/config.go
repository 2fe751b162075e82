// Package config loads runtime settings from the environment, with an
// optional .env file for local development.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// EmbeddingConfig selects and tunes the embedding provider.
type EmbeddingConfig struct {
	Provider      string // "openai", "jina" or "local"
	APIKey        string
	Model         string
	CacheSize     int
	BatchSize     int
	MaxConcurrent int
}

// ChunkingConfig tunes the text splitter.
type ChunkingConfig struct {
	MaxSize int
	Overlap int
}

// CacheConfig tunes the query cache. RedisAddr empty means local-only.
type CacheConfig struct {
	Size          int
	TTL           time.Duration
	RedisAddr     string
	RedisPassword string
	RedisDB       int
}

// Config is the full runtime configuration.
type Config struct {
	DBPath       string
	LogLevel     string
	QueryTimeout time.Duration
	Embedding    EmbeddingConfig
	Chunking     ChunkingConfig
	Cache        CacheConfig
}

// Load reads configuration from the environment. A missing .env file is
// not an error.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		DBPath:       envString("RETRIEVAL_DB_PATH", "retrieval.db"),
		LogLevel:     envString("RETRIEVAL_LOG_LEVEL", "info"),
		QueryTimeout: envDuration("RETRIEVAL_QUERY_TIMEOUT", 10*time.Second),
		Embedding: EmbeddingConfig{
			Provider:      envString("RETRIEVAL_EMBEDDING_PROVIDER", "local"),
			APIKey:        os.Getenv("RETRIEVAL_EMBEDDING_API_KEY"),
			Model:         os.Getenv("RETRIEVAL_EMBEDDING_MODEL"),
			CacheSize:     envInt("RETRIEVAL_EMBEDDING_CACHE_SIZE", 10000),
			BatchSize:     envInt("RETRIEVAL_EMBEDDING_BATCH_SIZE", 32),
			MaxConcurrent: envInt("RETRIEVAL_EMBEDDING_MAX_CONCURRENT", 3),
		},
		Chunking: ChunkingConfig{
			MaxSize: envInt("RETRIEVAL_CHUNK_SIZE", 512),
			Overlap: envInt("RETRIEVAL_CHUNK_OVERLAP", 128),
		},
		Cache: CacheConfig{
			Size:          envInt("RETRIEVAL_CACHE_SIZE", 1024),
			TTL:           envDuration("RETRIEVAL_CACHE_TTL", 5*time.Minute),
			RedisAddr:     os.Getenv("RETRIEVAL_CACHE_REDIS_ADDR"),
			RedisPassword: os.Getenv("RETRIEVAL_CACHE_REDIS_PASSWORD"),
			RedisDB:       envInt("RETRIEVAL_CACHE_REDIS_DB", 0),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.Embedding.Provider {
	case "openai", "jina":
		if c.Embedding.APIKey == "" {
			return fmt.Errorf("provider %q requires RETRIEVAL_EMBEDDING_API_KEY", c.Embedding.Provider)
		}
	case "local", "":
	default:
		return fmt.Errorf("unknown embedding provider %q", c.Embedding.Provider)
	}
	if c.Chunking.Overlap >= c.Chunking.MaxSize {
		return fmt.Errorf("chunk overlap %d must be smaller than chunk size %d",
			c.Chunking.Overlap, c.Chunking.MaxSize)
	}
	return nil
}

func envString(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func envDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}
