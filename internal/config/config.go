package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/dotenv"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

type Config struct {
	Server    ServerConfig
	DB        DBConfig
	Redis     RedisConfig
	NATS      NATSConfig
	Auth      AuthConfig
	Log       LogConfig
	Memory    MemoryConfig
	Embedding EmbeddingConfig
	Vector    VectorConfig
	RateLimit RateLimitConfig
	Audit     AuditConfig
}

type ServerConfig struct {
	Host               string
	Port               int
	CORSAllowedOrigins []string
	ShutdownTimeout    time.Duration
}

type DBConfig struct {
	Host           string
	Port           int
	User           string
	Password       string
	Name           string
	SSLMode        string
	MaxConns       int32
	MigrationsPath string
}

func (c DBConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.Name, c.SSLMode)
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

func (c RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// NeedsPostgres reports whether any enabled component stores data in PostgreSQL.
func (c *Config) NeedsPostgres() bool {
	return c.Vector.Backend == "pgvector" || c.Audit.Enabled
}

// NATSConfig enables memory event publishing when URL is set.
type NATSConfig struct {
	URL string
	// StreamMaxAge bounds how long events stay in the stream.
	StreamMaxAge time.Duration
}

// AuthConfig enables bearer-token checks on the API when JWTSecret is set.
type AuthConfig struct {
	JWTSecret string
	Issuer    string
}

type LogConfig struct {
	Level  string
	Format string
}

type MemoryConfig struct {
	Enabled      bool
	Timeout      time.Duration
	SummaryLimit int
}

type EmbeddingConfig struct {
	Provider  string // local, gemini, openai
	Model     string
	APIKey    string
	BaseURL   string
	Dimension int
	CacheTTL  time.Duration
	Timeout   time.Duration
	Rate      float64
}

type VectorConfig struct {
	Backend     string // none, pinecone, pgvector, qdrant, chromem
	Workers     int
	QueueSize   int
	Timeout     time.Duration
	PineconeKey string
	PineconeURL string
	PineconeIdx string
	QdrantHost  string
	QdrantPort  int
	Collection  string
	ChromemPath string
}

// AuditConfig enables the memory event audit trail. It needs NATS and PostgreSQL.
type AuditConfig struct {
	Enabled bool
}

type RateLimitConfig struct {
	Requests int
	Window   time.Duration
}

func Load() (*Config, error) {
	k := koanf.New(".")

	// Load .env file if it exists (ignore error if missing)
	_ = k.Load(file.Provider(".env"), dotenv.Parser())

	// Load environment variables (override .env)
	err := k.Load(env.Provider("", ".", func(s string) string {
		return strings.ToLower(strings.ReplaceAll(s, "_", "."))
	}), nil)
	if err != nil {
		return nil, fmt.Errorf("loading env vars: %w", err)
	}

	return fromKoanf(k)
}

func fromKoanf(k *koanf.Koanf) (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Host: k.String("server.host"),
			Port: k.Int("server.port"),
		},
		DB: DBConfig{
			Host:           k.String("db.host"),
			Port:           k.Int("db.port"),
			User:           k.String("db.user"),
			Password:       k.String("db.password"),
			Name:           k.String("db.name"),
			SSLMode:        k.String("db.sslmode"),
			MaxConns:       int32(k.Int("db.max.conns")),
			MigrationsPath: k.String("db.migrations.path"),
		},
		Redis: RedisConfig{
			Host:     k.String("redis.host"),
			Port:     k.Int("redis.port"),
			Password: k.String("redis.password"),
			DB:       k.Int("redis.db"),
		},
		NATS: NATSConfig{
			URL: k.String("nats.url"),
		},
		Auth: AuthConfig{
			JWTSecret: k.String("auth.jwt.secret"),
			Issuer:    k.String("auth.jwt.issuer"),
		},
		Log: LogConfig{
			Level:  k.String("log.level"),
			Format: k.String("log.format"),
		},
		Memory: MemoryConfig{
			Enabled:      true,
			SummaryLimit: k.Int("memory.summary.limit"),
		},
		Embedding: EmbeddingConfig{
			Provider:  k.String("embedding.provider"),
			Model:     k.String("embedding.model"),
			APIKey:    k.String("embedding.api.key"),
			BaseURL:   k.String("embedding.base.url"),
			Dimension: k.Int("embedding.dimension"),
			Rate:      k.Float64("embedding.rate"),
		},
		Vector: VectorConfig{
			Backend:     k.String("vector.backend"),
			Workers:     k.Int("vector.workers"),
			QueueSize:   k.Int("vector.queue"),
			PineconeKey: k.String("vector.pinecone.key"),
			PineconeURL: k.String("vector.pinecone.url"),
			PineconeIdx: k.String("vector.pinecone.index"),
			QdrantHost:  k.String("vector.qdrant.host"),
			QdrantPort:  k.Int("vector.qdrant.port"),
			Collection:  k.String("vector.collection"),
			ChromemPath: k.String("vector.chromem.path"),
		},
		RateLimit: RateLimitConfig{
			Requests: k.Int("ratelimit.requests"),
		},
		Audit: AuditConfig{
			Enabled: k.Bool("audit.enabled"),
		},
	}

	if k.Exists("memory.enabled") {
		cfg.Memory.Enabled = k.Bool("memory.enabled")
	}
	if origins := k.String("server.cors.origins"); origins != "" {
		for _, o := range strings.Split(origins, ",") {
			if o = strings.TrimSpace(o); o != "" {
				cfg.Server.CORSAllowedOrigins = append(cfg.Server.CORSAllowedOrigins, o)
			}
		}
	}

	// Apply defaults
	if cfg.Server.Host == "" {
		cfg.Server.Host = "0.0.0.0"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.DB.Host == "" {
		cfg.DB.Host = "localhost"
	}
	if cfg.DB.Port == 0 {
		cfg.DB.Port = 5432
	}
	if cfg.DB.User == "" {
		cfg.DB.User = "agentmemory"
	}
	if cfg.DB.Name == "" {
		cfg.DB.Name = "agentmemory"
	}
	if cfg.DB.SSLMode == "" {
		cfg.DB.SSLMode = "disable"
	}
	if cfg.DB.MaxConns == 0 {
		cfg.DB.MaxConns = 10
	}
	if cfg.DB.MigrationsPath == "" {
		cfg.DB.MigrationsPath = "migrations"
	}
	if cfg.Redis.Host == "" {
		cfg.Redis.Host = "localhost"
	}
	if cfg.Redis.Port == 0 {
		cfg.Redis.Port = 6379
	}
	if cfg.Auth.Issuer == "" {
		cfg.Auth.Issuer = "agentmemory"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "json"
	}
	if cfg.Memory.SummaryLimit == 0 {
		cfg.Memory.SummaryLimit = 10
	}
	if cfg.Embedding.Provider == "" {
		cfg.Embedding.Provider = "local"
	}
	if cfg.Embedding.Dimension == 0 {
		cfg.Embedding.Dimension = 768
	}
	if cfg.Embedding.Rate == 0 {
		cfg.Embedding.Rate = 5
	}
	if cfg.Vector.Backend == "" {
		cfg.Vector.Backend = "none"
	}
	if cfg.Vector.Workers == 0 {
		cfg.Vector.Workers = 4
	}
	if cfg.Vector.QueueSize == 0 {
		cfg.Vector.QueueSize = 64
	}
	if cfg.Vector.QdrantHost == "" {
		cfg.Vector.QdrantHost = "localhost"
	}
	if cfg.Vector.QdrantPort == 0 {
		cfg.Vector.QdrantPort = 6334
	}
	if cfg.Vector.Collection == "" {
		cfg.Vector.Collection = "agent_memories"
	}
	if cfg.RateLimit.Requests == 0 {
		cfg.RateLimit.Requests = 120
	}

	// Parse durations
	durations := []struct {
		key    string
		def    string
		target *time.Duration
	}{
		{"server.shutdown.timeout", "30s", &cfg.Server.ShutdownTimeout},
		{"nats.stream.max.age", "168h", &cfg.NATS.StreamMaxAge},
		{"memory.timeout", "2s", &cfg.Memory.Timeout},
		{"embedding.cache.ttl", "1h", &cfg.Embedding.CacheTTL},
		{"embedding.timeout", "10s", &cfg.Embedding.Timeout},
		{"vector.timeout", "5s", &cfg.Vector.Timeout},
		{"ratelimit.window", "60s", &cfg.RateLimit.Window},
	}
	for _, d := range durations {
		raw := k.String(d.key)
		if raw == "" {
			raw = d.def
		}
		v, err := time.ParseDuration(raw)
		if err != nil {
			return nil, fmt.Errorf("parsing %s: %w", d.key, err)
		}
		*d.target = v
	}

	return cfg, nil
}
