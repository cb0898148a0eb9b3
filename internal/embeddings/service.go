package embeddings

import (
	"context"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/shahryar908/agenticrag/internal/metrics"
	"github.com/shahryar908/agenticrag/internal/resilience"
)

const lruTTL = 30 * time.Minute

// Service provides normalized embeddings with two-level caching in front of a Provider.
type Service struct {
	cfg      Config
	provider Provider
	cache    EmbeddingCache
	lru      *LocalLRU
	retrier  *resilience.Retrier
	logger   *zap.Logger
}

// NewService wires a Service. cache may be nil; retrier nil uses the default policy.
func NewService(cfg Config, provider Provider, cache EmbeddingCache, retrier *resilience.Retrier, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Model == "" {
		cfg.Model = "BAAI/bge-base-en-v1.5"
	}
	if cfg.CacheTTL == 0 {
		cfg.CacheTTL = time.Hour
	}
	if cfg.MaxLRU == 0 {
		cfg.MaxLRU = 2048
	}
	if retrier == nil {
		retrier = resilience.NewRetrier(resilience.DefaultPolicy(), logger)
	}
	return &Service{
		cfg:      cfg,
		provider: provider,
		cache:    cache,
		lru:      NewLocalLRU(cfg.MaxLRU),
		retrier:  retrier,
		logger:   logger,
	}
}

func (s *Service) Model() string { return s.cfg.Model }

func (s *Service) Dimensions() int { return s.cfg.Dimensions }

// Config returns the effective configuration.
func (s *Service) Config() Config { return s.cfg }

// Embed returns the vector for a single text.
func (s *Service) Embed(ctx context.Context, text string) ([]float32, error) {
	if s == nil {
		return nil, fmt.Errorf("embedding service not initialized")
	}
	out, err := s.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return out[0], nil
}

// EmbedBatch embeds texts in one provider call, serving what it can from cache.
func (s *Service) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if s == nil {
		return nil, fmt.Errorf("embedding service not initialized")
	}
	if len(texts) == 0 {
		return [][]float32{}, nil
	}
	m := s.cfg.Model

	results := make([][]float32, len(texts))
	var (
		uncachedTexts   []string
		uncachedIndices []int
	)
	for i, text := range texts {
		key := MakeKey(m, text)
		if v, ok := s.lru.Get(ctx, key); ok {
			results[i] = v
			metrics.RecordEmbeddingMetrics(m, "lru_hit", 0)
			continue
		}
		if s.cache != nil {
			if v, ok := s.cache.Get(ctx, key); ok {
				results[i] = v
				s.lru.Set(ctx, key, v, lruTTL)
				metrics.RecordEmbeddingMetrics(m, "cache_hit", 0)
				continue
			}
		}
		uncachedTexts = append(uncachedTexts, text)
		uncachedIndices = append(uncachedIndices, i)
	}
	if len(uncachedTexts) == 0 {
		return results, nil
	}

	start := time.Now()
	vecs, err := resilience.Call(ctx, s.retrier, "embeddings.embed", func(ctx context.Context) ([][]float32, error) {
		return s.provider.Embed(ctx, uncachedTexts, m)
	})
	if err != nil {
		metrics.RecordEmbeddingMetrics(m, "error", time.Since(start).Seconds())
		return nil, fmt.Errorf("embed %d text(s) with %s: %w", len(uncachedTexts), s.provider.Name(), err)
	}
	if len(vecs) != len(uncachedTexts) {
		metrics.RecordEmbeddingMetrics(m, "error", time.Since(start).Seconds())
		return nil, fmt.Errorf("%s returned %d embeddings for %d texts", s.provider.Name(), len(vecs), len(uncachedTexts))
	}

	for i, v := range vecs {
		if s.cfg.Dimensions > 0 && len(v) != s.cfg.Dimensions {
			metrics.RecordEmbeddingMetrics(m, "error", time.Since(start).Seconds())
			return nil, fmt.Errorf("%w: got %d, want %d", ErrDimensionMismatch, len(v), s.cfg.Dimensions)
		}
		v = Normalize(v)
		results[uncachedIndices[i]] = v

		key := MakeKey(m, uncachedTexts[i])
		s.lru.Set(ctx, key, v, lruTTL)
		if s.cache != nil {
			s.cache.Set(ctx, key, v, s.cfg.CacheTTL)
		}
	}
	metrics.RecordEmbeddingMetrics(m, "ok", time.Since(start).Seconds())
	s.logger.Debug("Embedded texts",
		zap.Int("requested", len(texts)),
		zap.Int("computed", len(uncachedTexts)),
		zap.Duration("duration", time.Since(start)),
	)
	return results, nil
}

// Normalize scales v to unit L2 norm in place and returns it. Zero vectors are returned as-is.
func Normalize(v []float32) []float32 {
	var sum float64
	for _, f := range v {
		sum += float64(f) * float64(f)
	}
	if sum == 0 {
		return v
	}
	inv := 1 / math.Sqrt(sum)
	for i := range v {
		v[i] = float32(float64(v[i]) * inv)
	}
	return v
}
