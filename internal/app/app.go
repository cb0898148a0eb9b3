// Package app builds the service graph from configuration. It is shared by the
// API server and the ragctl CLI.
package app

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/shahryar908/agenticrag/internal/activities"
	"github.com/shahryar908/agenticrag/internal/circuitbreaker"
	"github.com/shahryar908/agenticrag/internal/config"
	"github.com/shahryar908/agenticrag/internal/db"
	"github.com/shahryar908/agenticrag/internal/embeddings"
	"github.com/shahryar908/agenticrag/internal/health"
	"github.com/shahryar908/agenticrag/internal/knowledge"
	"github.com/shahryar908/agenticrag/internal/llm"
	"github.com/shahryar908/agenticrag/internal/pricing"
	"github.com/shahryar908/agenticrag/internal/ratecontrol"
	"github.com/shahryar908/agenticrag/internal/resilience"
	"github.com/shahryar908/agenticrag/internal/vectordb"
	"github.com/shahryar908/agenticrag/internal/websearch"
	"github.com/shahryar908/agenticrag/internal/workflows"
)

type breakerSource interface {
	Breaker() *circuitbreaker.Breaker
}

// Knowledge is the ingestion half of the service: a store, an embedder and the
// serialized Base over them. It needs no LLM credentials.
type Knowledge struct {
	Store    vectordb.Store
	Embedder *embeddings.Service
	Base     *knowledge.Base
	Retrier  *resilience.Retrier

	provider embeddings.Provider
	cache    *embeddings.RedisCache
	logger   *zap.Logger
}

// OpenKnowledge connects the configured vector store and embedding provider.
func OpenKnowledge(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Knowledge, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	retrier := resilience.NewRetrier(cfg.Resilience, logger)

	store, err := vectordb.New(ctx, cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("open vector store: %w", err)
	}

	ec := cfg.Embeddings
	var provider embeddings.Provider
	switch ec.Provider {
	case "openai":
		provider = embeddings.NewOpenAIProvider(ec.BaseURL, ec.APIKey, ec.Timeout, logger)
	default:
		provider = embeddings.NewHTTPProvider(ec.BaseURL, ec.Timeout, logger)
	}

	k := &Knowledge{Store: store, Retrier: retrier, provider: provider, logger: logger}

	// A nil *RedisCache must not reach NewService as a non-nil interface.
	var cache embeddings.EmbeddingCache
	if ec.Cache.RedisURL != "" {
		rc, err := embeddings.NewRedisCache(ctx, ec.Cache.RedisURL, logger)
		if err != nil {
			logger.Warn("Embedding cache unavailable, continuing with the in-process LRU only", zap.Error(err))
		} else {
			k.cache = rc
			cache = rc
		}
	}

	chunking := embeddings.ChunkingConfig{
		Enabled:       ec.Chunking.Enabled,
		MaxTokens:     ec.Chunking.MaxTokens,
		OverlapTokens: ec.Chunking.OverlapTokens,
		TokenizerMode: ec.Chunking.TokenizerMode,
		Encoding:      ec.Chunking.Encoding,
	}
	k.Embedder = embeddings.NewService(embeddings.Config{
		Model:      ec.Model,
		Dimensions: ec.Dimensions,
		CacheTTL:   ec.Cache.TTL,
		MaxLRU:     ec.Cache.LRUSize,
		Chunking:   chunking,
	}, provider, cache, retrier, logger)

	k.Base = knowledge.NewBase(store, k.Embedder, knowledge.Config{
		BatchSize:  cfg.Ingestion.BatchSize,
		Collection: cfg.VectorStore.Collection,
		Chunking:   chunking,
	}, logger)

	logger.Info("Knowledge base opened",
		zap.String("vector_store", store.Name()),
		zap.String("embedding_provider", provider.Name()),
		zap.String("embedding_model", k.Embedder.Model()),
		zap.Bool("redis_cache", k.cache != nil),
	)
	return k, nil
}

// RegisterHealth adds the knowledge-side checkers to m.
func (k *Knowledge) RegisterHealth(m *health.Manager) {
	_ = m.RegisterChecker(health.NewVectorStoreChecker(k.Store))
	if bs, ok := k.provider.(breakerSource); ok {
		_ = m.RegisterChecker(health.NewBreakerChecker("embeddings", bs.Breaker(), true))
	}
	if k.cache != nil {
		_ = m.RegisterChecker(health.NewRedisHealthChecker(k.cache.Wrapper()))
	}
}

// Close releases the store and the cache connection.
func (k *Knowledge) Close() error {
	if k.cache != nil {
		if err := k.cache.Close(); err != nil {
			k.logger.Warn("Failed to close embedding cache", zap.Error(err))
		}
	}
	return k.Store.Close()
}

// App is the complete question answering service.
type App struct {
	*Knowledge

	Config     *config.Config
	LLM        *llm.OpenAIClient
	Limits     *ratecontrol.Controller
	Prices     *pricing.Table
	Search     websearch.Provider
	Activities *activities.Activities
	Engine     *workflows.Engine
	RunLog     *db.Client
	Health     *health.Manager
	logger     *zap.Logger
}

// New builds every component named in cfg. Optional dependencies (the Redis
// cache and the run log) degrade to disabled when they cannot be reached.
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	k, err := OpenKnowledge(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	a := &App{Knowledge: k, Config: cfg, Health: health.NewManager(logger), logger: logger}

	a.Limits, err = ratecontrol.New(cfg.LLM.RateLimitsPath, logger)
	if err != nil {
		_ = k.Close()
		return nil, fmt.Errorf("load rate limits: %w", err)
	}

	a.LLM, err = llm.NewOpenAIClient(llm.Config{
		BaseURL:  cfg.LLM.BaseURL,
		APIKey:   cfg.LLM.APIKey,
		Model:    cfg.LLM.Model,
		Timeout:  cfg.LLM.Timeout,
		Provider: cfg.LLM.RateLimitProvider,
	}, a.Limits, k.Retrier, logger)
	if err != nil {
		_ = k.Close()
		return nil, err
	}

	a.Prices, err = pricing.Load(cfg.LLM.PricingPath)
	if err != nil {
		logger.Warn("Price table unavailable, estimating cost at the default rate", zap.Error(err))
		a.Prices, _ = pricing.Load("")
	}
	a.LLM.SetPricing(a.Prices)

	a.Search, err = newSearch(cfg.WebSearch, a.Limits, k.Retrier, logger)
	if err != nil {
		_ = k.Close()
		return nil, err
	}

	var observers []workflows.Observer
	if cfg.RunLog.Enabled {
		client, err := db.NewClient(db.Config{
			DSN:       cfg.RunLog.DSN,
			Workers:   cfg.RunLog.Workers,
			QueueSize: cfg.RunLog.QueueSize,
		}, logger)
		if err != nil {
			logger.Warn("Run log disabled: database unavailable", zap.Error(err))
		} else {
			a.RunLog = client
			observers = append(observers, client)
		}
	}

	a.Activities = activities.NewActivities(activities.Dependencies{
		LLM:         a.LLM,
		Store:       k.Store,
		Embedder:    k.Embedder,
		WebSearch:   a.Search,
		QueryPrefix: cfg.Embeddings.QueryPrefix,
		Gate: activities.GateConfig{
			Threshold:             cfg.QualityGate.Threshold,
			DropLowConfidenceDocs: cfg.QualityGate.DropLowConfidenceDocs,
		},
	}, logger)
	a.Engine = workflows.NewEngine(a.Activities, logger, observers...)
	a.Engine.SetDefaultTopK(cfg.Retrieval.TopK)

	k.RegisterHealth(a.Health)
	_ = a.Health.RegisterChecker(health.NewBreakerChecker("llm", a.LLM.Breaker(), true))
	if bs, ok := a.Search.(breakerSource); ok {
		_ = a.Health.RegisterChecker(health.NewBreakerChecker("web_search", bs.Breaker(), false))
	}
	if a.RunLog != nil {
		_ = a.Health.RegisterChecker(health.NewDatabaseHealthChecker(a.RunLog.Wrapper()))
	}

	logger.Info("Agentic RAG service built",
		zap.String("llm_model", a.LLM.Model()),
		zap.String("web_search", a.Search.Name()),
		zap.Float64("quality_gate_threshold", cfg.QualityGate.Threshold),
		zap.Int("top_k", cfg.Retrieval.TopK),
		zap.Bool("run_log", a.RunLog != nil),
	)
	return a, nil
}

func newSearch(cfg config.WebSearchConfig, limits *ratecontrol.Controller, retrier *resilience.Retrier, logger *zap.Logger) (websearch.Provider, error) {
	if cfg.Provider != "tavily" {
		return websearch.Stub{}, nil
	}
	return websearch.NewTavily(websearch.TavilyConfig{
		BaseURL:    cfg.BaseURL,
		APIKey:     cfg.APIKey,
		MaxResults: cfg.MaxResults,
		Timeout:    cfg.Timeout,
	}, limits, retrier, logger)
}

// ApplyConfig pushes the hot-reloadable settings of next into the running service.
func (a *App) ApplyConfig(prev, next *config.Config) error {
	a.Activities.SetGateConfig(activities.GateConfig{
		Threshold:             next.QualityGate.Threshold,
		DropLowConfidenceDocs: next.QualityGate.DropLowConfidenceDocs,
	})
	a.Engine.SetDefaultTopK(next.Retrieval.TopK)
	if prev != nil && prev.LLM.RateLimitsPath != next.LLM.RateLimitsPath {
		if err := a.Limits.Reload(next.LLM.RateLimitsPath); err != nil {
			return fmt.Errorf("reload rate limits: %w", err)
		}
	}
	if prev != nil && prev.LLM.PricingPath != next.LLM.PricingPath && next.LLM.PricingPath != "" {
		if err := a.Prices.Reload(next.LLM.PricingPath); err != nil {
			return fmt.Errorf("reload pricing: %w", err)
		}
	}
	return nil
}

// Close flushes the run log and releases connections.
func (a *App) Close() error {
	if a.RunLog != nil {
		if err := a.RunLog.Close(); err != nil {
			a.logger.Warn("Failed to close run log", zap.Error(err))
		}
	}
	return a.Knowledge.Close()
}

// NewLogger builds the process logger: production JSON unless development is set.
func NewLogger(cfg config.LogConfig) (*zap.Logger, error) {
	zc := zap.NewProductionConfig()
	if cfg.Development {
		zc = zap.NewDevelopmentConfig()
	}
	if cfg.Level != "" {
		level, err := zap.ParseAtomicLevel(cfg.Level)
		if err != nil {
			return nil, fmt.Errorf("log.level: %w", err)
		}
		zc.Level = level
	}
	return zc.Build()
}
