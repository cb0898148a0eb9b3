package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/shahryar908/agenticrag/internal/resilience"
	"github.com/shahryar908/agenticrag/internal/tracing"
)

// DefaultPath is used when CONFIG_PATH is unset.
const DefaultPath = "config/rag.yaml"

// Config is the full service configuration.
type Config struct {
	Service     ServiceConfig     `mapstructure:"service"`
	API         APIConfig         `mapstructure:"api"`
	Admin       AdminConfig       `mapstructure:"admin"`
	Log         LogConfig         `mapstructure:"log"`
	LLM         LLMConfig         `mapstructure:"llm"`
	Embeddings  EmbeddingsConfig  `mapstructure:"embeddings"`
	VectorStore VectorStoreConfig `mapstructure:"vector_store"`
	Retrieval   RetrievalConfig   `mapstructure:"retrieval"`
	QualityGate QualityGateConfig `mapstructure:"quality_gate"`
	WebSearch   WebSearchConfig   `mapstructure:"web_search"`
	Ingestion   IngestionConfig   `mapstructure:"ingestion"`
	Resilience  resilience.Policy `mapstructure:"resilience"`
	Tracing     tracing.Config    `mapstructure:"tracing"`
	RunLog      RunLogConfig      `mapstructure:"run_log"`
	MCP         MCPConfig         `mapstructure:"mcp"`
}

type ServiceConfig struct {
	Name    string `mapstructure:"name"`
	Version string `mapstructure:"version"`
}

type APIConfig struct {
	Port          int           `mapstructure:"port"`
	ReadTimeout   time.Duration `mapstructure:"read_timeout"`
	WriteTimeout  time.Duration `mapstructure:"write_timeout"`
	MaxUploadSize int64         `mapstructure:"max_upload_size"`
}

type AdminConfig struct {
	Port int `mapstructure:"port"`
}

type LogConfig struct {
	Level       string `mapstructure:"level"`
	Development bool   `mapstructure:"development"`
}

// LLMConfig points at an OpenAI-compatible chat completions API (Groq by default).
type LLMConfig struct {
	Provider string        `mapstructure:"provider"`
	BaseURL  string        `mapstructure:"base_url"`
	APIKey   string        `mapstructure:"api_key"`
	Model    string        `mapstructure:"model"`
	Timeout  time.Duration `mapstructure:"timeout"`
	// RateLimitProvider selects the provider row in the rate limit table.
	RateLimitProvider string `mapstructure:"rate_limit_provider"`
	RateLimitsPath    string `mapstructure:"rate_limits_path"`
	// PricingPath is a per-model price table used for cost estimates.
	PricingPath string `mapstructure:"pricing_path"`
}

type EmbeddingsConfig struct {
	// Provider is "http" (sidecar serving /embeddings/) or "openai".
	Provider    string         `mapstructure:"provider"`
	BaseURL     string         `mapstructure:"base_url"`
	APIKey      string         `mapstructure:"api_key"`
	Model       string         `mapstructure:"model"`
	Dimensions  int            `mapstructure:"dimensions"`
	QueryPrefix string         `mapstructure:"query_prefix"`
	Timeout     time.Duration  `mapstructure:"timeout"`
	Cache       CacheConfig    `mapstructure:"cache"`
	Chunking    ChunkingConfig `mapstructure:"chunking"`
}

type CacheConfig struct {
	LRUSize  int           `mapstructure:"lru_size"`
	TTL      time.Duration `mapstructure:"ttl"`
	RedisURL string        `mapstructure:"redis_url"`
}

type ChunkingConfig struct {
	Enabled       bool   `mapstructure:"enabled"`
	MaxTokens     int    `mapstructure:"max_tokens"`
	OverlapTokens int    `mapstructure:"overlap_tokens"`
	TokenizerMode string `mapstructure:"tokenizer_mode"`
	Encoding      string `mapstructure:"encoding"`
}

type VectorStoreConfig struct {
	// Backend is one of memory, qdrant, pgvector, sqlite.
	Backend    string        `mapstructure:"backend"`
	Collection string        `mapstructure:"collection"`
	Qdrant     QdrantConfig  `mapstructure:"qdrant"`
	Postgres   PostgresStore `mapstructure:"postgres"`
	SQLite     SQLiteStore   `mapstructure:"sqlite"`
}

type QdrantConfig struct {
	URL     string        `mapstructure:"url"`
	APIKey  string        `mapstructure:"api_key"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type PostgresStore struct {
	DSN string `mapstructure:"dsn"`
}

type SQLiteStore struct {
	Path string `mapstructure:"path"`
}

type RetrievalConfig struct {
	TopK int `mapstructure:"top_k"`
}

type QualityGateConfig struct {
	Threshold             float64 `mapstructure:"threshold"`
	DropLowConfidenceDocs bool    `mapstructure:"drop_low_confidence_docs"`
}

type WebSearchConfig struct {
	// Provider is "stub" or "tavily".
	Provider   string        `mapstructure:"provider"`
	BaseURL    string        `mapstructure:"base_url"`
	APIKey     string        `mapstructure:"api_key"`
	MaxResults int           `mapstructure:"max_results"`
	Timeout    time.Duration `mapstructure:"timeout"`
}

type IngestionConfig struct {
	BatchSize int `mapstructure:"batch_size"`
}

type RunLogConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	DSN       string `mapstructure:"dsn"`
	Workers   int    `mapstructure:"workers"`
	QueueSize int    `mapstructure:"queue_size"`
}

type MCPConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("service.name", "agentic-rag")
	v.SetDefault("service.version", "1.0.0")

	v.SetDefault("api.port", 8000)
	v.SetDefault("api.read_timeout", "30s")
	v.SetDefault("api.write_timeout", "120s")
	v.SetDefault("api.max_upload_size", 32<<20)
	v.SetDefault("admin.port", 2112)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.development", false)

	v.SetDefault("llm.provider", "groq")
	v.SetDefault("llm.base_url", "https://api.groq.com/openai/v1")
	v.SetDefault("llm.api_key", "")
	v.SetDefault("llm.model", "llama-3.3-70b-versatile")
	v.SetDefault("llm.timeout", "60s")
	v.SetDefault("llm.rate_limit_provider", "groq")
	v.SetDefault("llm.rate_limits_path", "")
	v.SetDefault("llm.pricing_path", "")

	v.SetDefault("embeddings.provider", "http")
	v.SetDefault("embeddings.base_url", "http://localhost:8001")
	v.SetDefault("embeddings.api_key", "")
	v.SetDefault("embeddings.model", "BAAI/bge-base-en-v1.5")
	v.SetDefault("embeddings.dimensions", 768)
	v.SetDefault("embeddings.query_prefix", "Represent this sentence for searching relevant passages: ")
	v.SetDefault("embeddings.timeout", "10s")
	v.SetDefault("embeddings.cache.lru_size", 2048)
	v.SetDefault("embeddings.cache.ttl", "1h")
	v.SetDefault("embeddings.cache.redis_url", "")
	v.SetDefault("embeddings.chunking.enabled", false)
	v.SetDefault("embeddings.chunking.max_tokens", 400)
	v.SetDefault("embeddings.chunking.overlap_tokens", 50)
	v.SetDefault("embeddings.chunking.tokenizer_mode", "simple")
	v.SetDefault("embeddings.chunking.encoding", "cl100k_base")

	v.SetDefault("vector_store.backend", "memory")
	v.SetDefault("vector_store.collection", "agentic_knowledge")
	v.SetDefault("vector_store.qdrant.url", "http://localhost:6333")
	v.SetDefault("vector_store.qdrant.api_key", "")
	v.SetDefault("vector_store.qdrant.timeout", "10s")
	v.SetDefault("vector_store.postgres.dsn", "")
	v.SetDefault("vector_store.sqlite.path", "./data/knowledge.db")

	v.SetDefault("retrieval.top_k", 3)
	v.SetDefault("quality_gate.threshold", 0.3)
	v.SetDefault("quality_gate.drop_low_confidence_docs", false)

	v.SetDefault("web_search.provider", "stub")
	v.SetDefault("web_search.base_url", "https://api.tavily.com")
	v.SetDefault("web_search.api_key", "")
	v.SetDefault("web_search.max_results", 5)
	v.SetDefault("web_search.timeout", "15s")

	v.SetDefault("ingestion.batch_size", 100)

	d := resilience.DefaultPolicy()
	v.SetDefault("resilience.attempts", d.Attempts)
	v.SetDefault("resilience.base_delay", d.BaseDelay)
	v.SetDefault("resilience.max_delay", d.MaxDelay)
	v.SetDefault("resilience.attempt_timeout", d.AttemptTimeout)

	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.service_name", "agentic-rag")
	v.SetDefault("tracing.otlp_endpoint", "localhost:4317")

	v.SetDefault("run_log.enabled", false)
	v.SetDefault("run_log.dsn", "")
	v.SetDefault("run_log.workers", 4)
	v.SetDefault("run_log.queue_size", 1000)

	v.SetDefault("mcp.enabled", true)
	v.SetDefault("mcp.path", "/mcp")
}

// newViper builds a viper instance with defaults and env bindings. Any key can be
// overridden as RAG_<SECTION>_<KEY>; well-known provider variables are bound too.
func newViper() *viper.Viper {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix("RAG")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	_ = v.BindEnv("llm.api_key", "RAG_LLM_API_KEY", "GROQ_API_KEY")
	_ = v.BindEnv("embeddings.api_key", "RAG_EMBEDDINGS_API_KEY", "OPENAI_API_KEY")
	_ = v.BindEnv("web_search.api_key", "RAG_WEB_SEARCH_API_KEY", "TAVILY_API_KEY")
	_ = v.BindEnv("embeddings.cache.redis_url", "RAG_EMBEDDINGS_CACHE_REDIS_URL", "REDIS_URL")
	_ = v.BindEnv("run_log.dsn", "RAG_RUN_LOG_DSN", "DATABASE_URL")
	_ = v.BindEnv("api.port", "RAG_API_PORT", "API_PORT")
	_ = v.BindEnv("admin.port", "RAG_ADMIN_PORT", "METRICS_PORT")
	return v
}

// Path returns CONFIG_PATH or DefaultPath.
func Path() string {
	if p := os.Getenv("CONFIG_PATH"); p != "" {
		return p
	}
	return DefaultPath
}

// Load reads the file at path (if it exists) over built-in defaults and env overrides.
func Load(path string) (*Config, error) {
	v := newViper()
	if err := readFile(v, path); err != nil {
		return nil, err
	}
	return decode(v)
}

func readFile(v *viper.Viper, path string) error {
	if path == "" {
		return nil
	}
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) && path == DefaultPath {
			return nil
		}
		return fmt.Errorf("config file %s: %w", path, err)
	}
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("read config: %w", err)
	}
	return nil
}

func decode(v *viper.Viper) (*Config, error) {
	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// Validate checks values the service cannot run with.
func (c *Config) Validate() error {
	switch c.VectorStore.Backend {
	case "memory", "qdrant", "pgvector", "sqlite":
	default:
		return fmt.Errorf("vector_store.backend: unsupported backend %q", c.VectorStore.Backend)
	}
	switch c.Embeddings.Provider {
	case "http", "openai":
	default:
		return fmt.Errorf("embeddings.provider: unsupported provider %q", c.Embeddings.Provider)
	}
	switch c.WebSearch.Provider {
	case "stub", "tavily":
	default:
		return fmt.Errorf("web_search.provider: unsupported provider %q", c.WebSearch.Provider)
	}
	if c.VectorStore.Backend == "pgvector" && c.VectorStore.Postgres.DSN == "" {
		return fmt.Errorf("vector_store.postgres.dsn is required for the pgvector backend")
	}
	if c.QualityGate.Threshold < 0 || c.QualityGate.Threshold > 1 {
		return fmt.Errorf("quality_gate.threshold must be within [0,1], got %v", c.QualityGate.Threshold)
	}
	if c.Retrieval.TopK < 1 || c.Retrieval.TopK > 20 {
		return fmt.Errorf("retrieval.top_k must be within [1,20], got %d", c.Retrieval.TopK)
	}
	if c.Embeddings.Dimensions <= 0 {
		return fmt.Errorf("embeddings.dimensions must be positive")
	}
	if c.Ingestion.BatchSize <= 0 {
		return fmt.Errorf("ingestion.batch_size must be positive")
	}
	if c.API.Port <= 0 || c.Admin.Port <= 0 {
		return fmt.Errorf("api.port and admin.port must be positive")
	}
	return nil
}
