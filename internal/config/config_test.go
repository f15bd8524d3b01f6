package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	return &Config{
		Vector:    VectorConfig{Backend: "memory"},
		Embedding: EmbeddingConfig{Dimension: 1536},
		Chunking:  ChunkingConfig{MaxTokens: 512, OverlapTokens: 20, Concurrency: 4},
		Retrieval: RetrievalConfig{TopK: 5},
	}
}

func TestValidateOK(t *testing.T) {
	require.NoError(t, validConfig().Validate())
}

func TestValidateRejectsBadChunking(t *testing.T) {
	cfg := validConfig()
	cfg.Chunking.MaxTokens = 0
	assert.Error(t, cfg.Validate())

	cfg = validConfig()
	cfg.Chunking.OverlapTokens = -1
	assert.Error(t, cfg.Validate())

	// 重叠不得大于等于分块大小
	cfg = validConfig()
	cfg.Chunking.OverlapTokens = cfg.Chunking.MaxTokens
	assert.Error(t, cfg.Validate())
}

func TestValidateRejectsBadBackend(t *testing.T) {
	cfg := validConfig()
	cfg.Vector.Backend = "pinecone"
	assert.Error(t, cfg.Validate())
}

func TestValidateRejectsBadRetrieval(t *testing.T) {
	cfg := validConfig()
	cfg.Retrieval.TopK = 0
	assert.Error(t, cfg.Validate())
}

func TestExpandEnv(t *testing.T) {
	t.Setenv("SYNAPSE_TEST_HOST", "db.internal")

	out := expandEnv("host: ${SYNAPSE_TEST_HOST:localhost}")
	assert.Equal(t, "host: db.internal", out)

	out = expandEnv("host: ${SYNAPSE_TEST_MISSING:localhost}")
	assert.Equal(t, "host: localhost", out)

	// 无默认值且未定义时保留原样
	out = expandEnv("token: ${SYNAPSE_TEST_UNDEFINED}")
	assert.Equal(t, "token: ${SYNAPSE_TEST_UNDEFINED}", out)
}
