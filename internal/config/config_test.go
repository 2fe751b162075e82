package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "retrieval.db", cfg.DBPath)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, 10*time.Second, cfg.QueryTimeout)
	assert.Equal(t, "local", cfg.Embedding.Provider)
	assert.Equal(t, 512, cfg.Chunking.MaxSize)
	assert.Equal(t, 128, cfg.Chunking.Overlap)
	assert.Equal(t, 5*time.Minute, cfg.Cache.TTL)
	assert.Empty(t, cfg.Cache.RedisAddr)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("RETRIEVAL_DB_PATH", "/tmp/kb.db")
	t.Setenv("RETRIEVAL_LOG_LEVEL", "debug")
	t.Setenv("RETRIEVAL_QUERY_TIMEOUT", "2s")
	t.Setenv("RETRIEVAL_EMBEDDING_PROVIDER", "openai")
	t.Setenv("RETRIEVAL_EMBEDDING_API_KEY", "sk-test")
	t.Setenv("RETRIEVAL_CHUNK_SIZE", "256")
	t.Setenv("RETRIEVAL_CHUNK_OVERLAP", "64")
	t.Setenv("RETRIEVAL_CACHE_REDIS_ADDR", "localhost:6379")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "/tmp/kb.db", cfg.DBPath)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, 2*time.Second, cfg.QueryTimeout)
	assert.Equal(t, "openai", cfg.Embedding.Provider)
	assert.Equal(t, 256, cfg.Chunking.MaxSize)
	assert.Equal(t, "localhost:6379", cfg.Cache.RedisAddr)
}

func TestLoadRejectsRemoteProviderWithoutKey(t *testing.T) {
	t.Setenv("RETRIEVAL_EMBEDDING_PROVIDER", "jina")
	t.Setenv("RETRIEVAL_EMBEDDING_API_KEY", "")

	_, err := Load()
	assert.Error(t, err)
}

func TestLoadRejectsOverlapNotBelowSize(t *testing.T) {
	t.Setenv("RETRIEVAL_CHUNK_SIZE", "100")
	t.Setenv("RETRIEVAL_CHUNK_OVERLAP", "100")

	_, err := Load()
	assert.Error(t, err)
}

func TestLoadIgnoresMalformedNumbers(t *testing.T) {
	t.Setenv("RETRIEVAL_CHUNK_SIZE", "not-a-number")
	t.Setenv("RETRIEVAL_QUERY_TIMEOUT", "soon")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 512, cfg.Chunking.MaxSize)
	assert.Equal(t, 10*time.Second, cfg.QueryTimeout)
}
