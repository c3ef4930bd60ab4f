package config

import (
	"strings"
	"testing"
	"time"
)

func validConfig() *Config {
	return &Config{
		Server: ServerConfig{Host: "0.0.0.0", Port: 8080},
		DB: DBConfig{
			Host: "localhost", Port: 5432, User: "agentmemory",
			Password: "secret", Name: "agentmemory", SSLMode: "disable", MaxConns: 10,
		},
		Redis: RedisConfig{Host: "localhost", Port: 6379},
		Log:   LogConfig{Level: "info", Format: "json"},
		Memory: MemoryConfig{
			Enabled: true, Timeout: 2 * time.Second, SummaryLimit: 10,
		},
		Embedding: EmbeddingConfig{
			Provider: "local", Dimension: 768, CacheTTL: time.Hour, Timeout: 10 * time.Second, Rate: 5,
		},
		Vector: VectorConfig{
			Backend: "none", Workers: 4, QueueSize: 64, Timeout: 5 * time.Second,
			QdrantHost: "localhost", QdrantPort: 6334, Collection: "agent_memories",
		},
		RateLimit: RateLimitConfig{Requests: 120, Window: time.Minute},
	}
}

func TestValidate_ValidConfig(t *testing.T) {
	cfg := validConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}
}

func TestValidate_JWTSecretTooShort(t *testing.T) {
	cfg := validConfig()
	cfg.Auth.JWTSecret = "short"
	err := cfg.Validate()
	if err == nil || !strings.Contains(err.Error(), "AUTH_JWT_SECRET") {
		t.Fatalf("expected AUTH_JWT_SECRET error, got: %v", err)
	}
}

func TestValidate_EmptyJWTSecretDisablesAuth(t *testing.T) {
	cfg := validConfig()
	cfg.Auth.JWTSecret = ""
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}
}

func TestValidate_UnknownEmbeddingProvider(t *testing.T) {
	cfg := validConfig()
	cfg.Embedding.Provider = "word2vec"
	err := cfg.Validate()
	if err == nil || !strings.Contains(err.Error(), "EMBEDDING_PROVIDER") {
		t.Fatalf("expected EMBEDDING_PROVIDER error, got: %v", err)
	}
}

func TestValidate_RemoteProviderNeedsKey(t *testing.T) {
	cfg := validConfig()
	cfg.Embedding.Provider = "gemini"
	err := cfg.Validate()
	if err == nil || !strings.Contains(err.Error(), "EMBEDDING_API_KEY") {
		t.Fatalf("expected EMBEDDING_API_KEY error, got: %v", err)
	}
}

func TestValidate_PineconeNeedsKeyAndHost(t *testing.T) {
	cfg := validConfig()
	cfg.Vector.Backend = "pinecone"
	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "VECTOR_PINECONE_KEY") {
		t.Errorf("expected VECTOR_PINECONE_KEY in error: %v", err)
	}
	if !strings.Contains(err.Error(), "VECTOR_PINECONE_URL") {
		t.Errorf("expected VECTOR_PINECONE_URL in error: %v", err)
	}
}

func TestValidate_PGVectorNeedsPassword(t *testing.T) {
	cfg := validConfig()
	cfg.Vector.Backend = "pgvector"
	cfg.DB.Password = ""
	err := cfg.Validate()
	if err == nil || !strings.Contains(err.Error(), "DB_PASSWORD") {
		t.Fatalf("expected DB_PASSWORD error, got: %v", err)
	}
}

func TestValidate_InvalidPorts(t *testing.T) {
	cfg := validConfig()
	cfg.Server.Port = 0
	cfg.Redis.Port = 70000
	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected error for invalid ports")
	}
	if !strings.Contains(err.Error(), "SERVER_PORT") {
		t.Errorf("expected SERVER_PORT in error: %v", err)
	}
	if !strings.Contains(err.Error(), "REDIS_PORT") {
		t.Errorf("expected REDIS_PORT in error: %v", err)
	}
}

func TestValidate_MultipleErrors(t *testing.T) {
	cfg := validConfig()
	cfg.Log.Level = "verbose"
	cfg.Vector.Workers = 0
	cfg.Embedding.Dimension = 0
	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected errors")
	}
	msg := err.Error()
	for _, want := range []string{"LOG_LEVEL", "VECTOR_WORKERS", "EMBEDDING_DIMENSION"} {
		if !strings.Contains(msg, want) {
			t.Errorf("expected %s in error: %v", want, msg)
		}
	}
}

func TestValidate_AuditNeedsNATSAndPassword(t *testing.T) {
	cfg := validConfig()
	cfg.Audit.Enabled = true
	cfg.NATS.URL = ""
	cfg.DB.Password = ""
	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected error for audit without dependencies")
	}
	for _, want := range []string{"NATS_URL", "DB_PASSWORD"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("expected %s in error: %v", want, err)
		}
	}

	cfg.NATS.URL = "nats://localhost:4222"
	cfg.DB.Password = "secret"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected valid config, got: %v", err)
	}
}
