package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr())
	assert.True(t, cfg.Memory.Enabled)
	assert.Equal(t, 2*time.Second, cfg.Memory.Timeout)
	assert.Equal(t, "local", cfg.Embedding.Provider)
	assert.Equal(t, 768, cfg.Embedding.Dimension)
	assert.Equal(t, time.Hour, cfg.Embedding.CacheTTL)
	assert.Equal(t, "none", cfg.Vector.Backend)
	assert.Equal(t, 4, cfg.Vector.Workers)
	assert.Equal(t, time.Minute, cfg.RateLimit.Window)
	assert.Equal(t, 30*time.Second, cfg.Server.ShutdownTimeout)
	assert.Equal(t, 7*24*time.Hour, cfg.NATS.StreamMaxAge)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("SERVER_PORT", "9090")
	t.Setenv("MEMORY_ENABLED", "false")
	t.Setenv("EMBEDDING_PROVIDER", "openai")
	t.Setenv("EMBEDDING_DIMENSION", "1536")
	t.Setenv("EMBEDDING_CACHE_TTL", "30m")
	t.Setenv("VECTOR_BACKEND", "qdrant")
	t.Setenv("VECTOR_WORKERS", "8")
	t.Setenv("SERVER_CORS_ORIGINS", "https://a.example, https://b.example")
	t.Setenv("NATS_STREAM_MAX_AGE", "24h")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.False(t, cfg.Memory.Enabled)
	assert.Equal(t, "openai", cfg.Embedding.Provider)
	assert.Equal(t, 1536, cfg.Embedding.Dimension)
	assert.Equal(t, 30*time.Minute, cfg.Embedding.CacheTTL)
	assert.Equal(t, "qdrant", cfg.Vector.Backend)
	assert.Equal(t, 8, cfg.Vector.Workers)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.Server.CORSAllowedOrigins)
	assert.Equal(t, 24*time.Hour, cfg.NATS.StreamMaxAge)
}

func TestLoad_InvalidDuration(t *testing.T) {
	t.Setenv("VECTOR_TIMEOUT", "soon")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "vector.timeout")
}

func TestDBConfig_DSN(t *testing.T) {
	c := DBConfig{Host: "db", Port: 5432, User: "u", Password: "p", Name: "n", SSLMode: "disable"}
	assert.Equal(t, "postgres://u:p@db:5432/n?sslmode=disable", c.DSN())
}

func TestConfig_NeedsPostgres(t *testing.T) {
	cfg := &Config{Vector: VectorConfig{Backend: "qdrant"}}
	assert.False(t, cfg.NeedsPostgres())

	cfg.Audit.Enabled = true
	assert.True(t, cfg.NeedsPostgres())

	cfg = &Config{Vector: VectorConfig{Backend: "pgvector"}}
	assert.True(t, cfg.NeedsPostgres())
}
