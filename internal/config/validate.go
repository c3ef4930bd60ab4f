package config

import (
	"errors"
	"fmt"
	"slices"
	"strings"
)

var (
	embeddingProviders = []string{"local", "gemini", "openai"}
	vectorBackends     = []string{"none", "pinecone", "pgvector", "qdrant", "chromem"}
	logLevels          = []string{"debug", "info", "warn", "error"}
)

// Validate checks Config for problems that would make the service misbehave.
// It collects all errors into a single joined error.
func (c *Config) Validate() error {
	var errs []string

	// Port ranges
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Sprintf("SERVER_PORT must be 1-65535, got %d", c.Server.Port))
	}
	if c.Redis.Port < 1 || c.Redis.Port > 65535 {
		errs = append(errs, fmt.Sprintf("REDIS_PORT must be 1-65535, got %d", c.Redis.Port))
	}

	if !slices.Contains(logLevels, c.Log.Level) {
		errs = append(errs, fmt.Sprintf("LOG_LEVEL must be one of %s, got %q", strings.Join(logLevels, ", "), c.Log.Level))
	}

	if c.Auth.JWTSecret != "" && len(c.Auth.JWTSecret) < 32 {
		errs = append(errs, "AUTH_JWT_SECRET must be at least 32 characters")
	}

	// Embedding
	if !slices.Contains(embeddingProviders, c.Embedding.Provider) {
		errs = append(errs, fmt.Sprintf("EMBEDDING_PROVIDER must be one of %s, got %q", strings.Join(embeddingProviders, ", "), c.Embedding.Provider))
	}
	if c.Embedding.Provider != "local" && c.Embedding.APIKey == "" {
		errs = append(errs, fmt.Sprintf("EMBEDDING_API_KEY is required for provider %q", c.Embedding.Provider))
	}
	if c.Embedding.Dimension < 1 {
		errs = append(errs, fmt.Sprintf("EMBEDDING_DIMENSION must be positive, got %d", c.Embedding.Dimension))
	}
	if c.Embedding.Rate <= 0 {
		errs = append(errs, "EMBEDDING_RATE must be positive")
	}

	// Vector index
	if !slices.Contains(vectorBackends, c.Vector.Backend) {
		errs = append(errs, fmt.Sprintf("VECTOR_BACKEND must be one of %s, got %q", strings.Join(vectorBackends, ", "), c.Vector.Backend))
	}
	if c.Vector.Workers < 1 {
		errs = append(errs, "VECTOR_WORKERS must be at least 1")
	}
	if c.Vector.QueueSize < 1 {
		errs = append(errs, "VECTOR_QUEUE must be at least 1")
	}
	switch c.Vector.Backend {
	case "pinecone":
		if c.Vector.PineconeKey == "" {
			errs = append(errs, "VECTOR_PINECONE_KEY is required for the pinecone backend")
		}
		if c.Vector.PineconeURL == "" && c.Vector.PineconeIdx == "" {
			errs = append(errs, "VECTOR_PINECONE_URL or VECTOR_PINECONE_INDEX is required for the pinecone backend")
		}
	case "qdrant":
		if c.Vector.QdrantPort < 1 || c.Vector.QdrantPort > 65535 {
			errs = append(errs, fmt.Sprintf("VECTOR_QDRANT_PORT must be 1-65535, got %d", c.Vector.QdrantPort))
		}
	}

	if c.Audit.Enabled && c.NATS.URL == "" {
		errs = append(errs, "NATS_URL is required when AUDIT_ENABLED is set")
	}
	if c.NeedsPostgres() {
		if c.DB.Password == "" {
			errs = append(errs, "DB_PASSWORD is required for the pgvector backend and the audit trail")
		}
		if c.DB.Port < 1 || c.DB.Port > 65535 {
			errs = append(errs, fmt.Sprintf("DB_PORT must be 1-65535, got %d", c.DB.Port))
		}
	}

	if c.Memory.Timeout <= 0 {
		errs = append(errs, "MEMORY_TIMEOUT must be positive")
	}
	if c.RateLimit.Requests < 0 {
		errs = append(errs, "RATELIMIT_REQUESTS must not be negative")
	}

	if len(errs) > 0 {
		return errors.New("config validation failed:\n  " + strings.Join(errs, "\n  "))
	}
	return nil
}
