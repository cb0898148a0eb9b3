package vectordb

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/shahryar908/agenticrag/internal/config"
)

// New builds the Store selected by cfg.VectorStore.Backend.
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger) (Store, error) {
	vs := cfg.VectorStore
	switch vs.Backend {
	case "", "memory":
		return NewMemoryStore(), nil
	case "qdrant":
		return NewQdrantStore(ctx, QdrantConfig{
			URL:        vs.Qdrant.URL,
			APIKey:     vs.Qdrant.APIKey,
			Collection: vs.Collection,
			Dimensions: cfg.Embeddings.Dimensions,
			Timeout:    vs.Qdrant.Timeout,
		}, logger)
	case "pgvector":
		return NewPGVectorStore(ctx, PGVectorConfig{
			DSN:        vs.Postgres.DSN,
			Collection: vs.Collection,
			Dimensions: cfg.Embeddings.Dimensions,
		}, logger)
	case "sqlite":
		return NewSQLiteStore(vs.SQLite.Path, vs.Collection, logger)
	default:
		return nil, fmt.Errorf("unsupported vector store backend %q", vs.Backend)
	}
}
