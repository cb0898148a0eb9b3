package embeddings

import (
	"context"
	"errors"
	"time"
)

// ErrDimensionMismatch is returned when a provider answers with vectors of the wrong size.
var ErrDimensionMismatch = errors.New("embedding dimension mismatch")

// Embedder turns text into L2-normalized vectors.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Model() string
	Dimensions() int
}

// Provider is the raw backend behind a Service. Vectors it returns need not be normalized.
type Provider interface {
	Name() string
	Embed(ctx context.Context, texts []string, model string) ([][]float32, error)
}

// Config controls the embedding service behavior
type Config struct {
	// Model is the embedding model sent to the provider (e.g., BAAI/bge-base-en-v1.5)
	Model string
	// Dimensions is the expected vector size; 0 skips the check
	Dimensions int
	// CacheTTL sets TTL for embedding cache entries
	CacheTTL time.Duration
	// MaxLRU controls in-process LRU size
	MaxLRU int
	// Chunking configuration for long texts
	Chunking ChunkingConfig
}
