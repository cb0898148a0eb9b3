package vectordb

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/pgvector/pgvector-go"
	"go.uber.org/zap"

	"github.com/shahryar908/agenticrag/internal/circuitbreaker"
	"github.com/shahryar908/agenticrag/internal/metrics"
)

var identRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// PGVectorStore keeps passages in a Postgres table with a pgvector column.
// Several collections can share the table.
type PGVectorStore struct {
	db         *circuitbreaker.SQLWrapper
	table      string
	collection string
	dims       int
	log        *zap.Logger
}

// PGVectorConfig configures PGVectorStore.
type PGVectorConfig struct {
	DSN        string
	Table      string
	Collection string
	Dimensions int
}

// NewPGVectorStore connects and creates the extension and table when missing.
func NewPGVectorStore(ctx context.Context, cfg PGVectorConfig, logger *zap.Logger) (*PGVectorStore, error) {
	db, err := sqlx.Open("postgres", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)

	s, err := newPGVectorStore(db, cfg, logger)
	if err != nil {
		db.Close()
		return nil, err
	}
	if err := s.db.PingContext(ctx); err != nil {
		s.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if err := s.EnsureSchema(ctx); err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

func newPGVectorStore(db *sqlx.DB, cfg PGVectorConfig, logger *zap.Logger) (*PGVectorStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Table == "" {
		cfg.Table = "rag_documents"
	}
	if !identRe.MatchString(cfg.Table) {
		return nil, fmt.Errorf("invalid table name %q", cfg.Table)
	}
	if cfg.Dimensions <= 0 {
		return nil, fmt.Errorf("pgvector: dimensions must be positive, got %d", cfg.Dimensions)
	}
	return &PGVectorStore{
		db:         circuitbreaker.NewSQLWrapper(db, circuitbreaker.DependencyVectorDB, "vectordb-pgvector", logger),
		table:      cfg.Table,
		collection: cfg.Collection,
		dims:       cfg.Dimensions,
		log:        logger,
	}, nil
}

func (s *PGVectorStore) Name() string { return "pgvector" }

// Wrapper exposes the breaker-wrapped handle for health checks.
func (s *PGVectorStore) Wrapper() *circuitbreaker.SQLWrapper { return s.db }

// EnsureSchema creates the vector extension, table and HNSW cosine index.
func (s *PGVectorStore) EnsureSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			collection TEXT NOT NULL,
			id TEXT NOT NULL,
			content TEXT NOT NULL,
			metadata JSONB,
			embedding vector(%d) NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			PRIMARY KEY (collection, id)
		)`, s.table, s.dims),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s_embedding_idx ON %s USING hnsw (embedding vector_cosine_ops)`, s.table, s.table),
	}
	for _, q := range stmts {
		if _, err := s.db.ExecContext(ctx, q); err != nil {
			return fmt.Errorf("pgvector schema: %w", err)
		}
	}
	return nil
}

func (s *PGVectorStore) Upsert(ctx context.Context, records []Record) error {
	if len(records) == 0 {
		return nil
	}
	for _, r := range records {
		if err := r.Validate(); err != nil {
			return err
		}
		if len(r.Vector) != s.dims {
			return DimensionMismatchError{Collection: s.collection, ExpectedDimension: s.dims, ReceivedDimension: len(r.Vector),
				SuggestedAction: "Check embedding model configuration"}
		}
	}

	q := fmt.Sprintf(`INSERT INTO %s (collection, id, content, metadata, embedding)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (collection, id) DO UPDATE
		SET content = EXCLUDED.content, metadata = EXCLUDED.metadata, embedding = EXCLUDED.embedding`, s.table)

	return s.db.WithTx(ctx, func(tx *sqlx.Tx) error {
		for _, r := range records {
			md, err := marshalMetadata(r.Metadata)
			if err != nil {
				return err
			}
			if _, err := tx.ExecContext(ctx, q, s.collection, r.ID, r.Text, md, pgvector.NewVector(r.Vector)); err != nil {
				return fmt.Errorf("upsert %s: %w", r.ID, err)
			}
		}
		return nil
	})
}

type pgMatch struct {
	ID       string  `db:"id"`
	Content  string  `db:"content"`
	Metadata []byte  `db:"metadata"`
	Distance float64 `db:"distance"`
}

func (s *PGVectorStore) Query(ctx context.Context, vector []float32, k int) ([]Match, error) {
	start := time.Now()
	q := fmt.Sprintf(`SELECT id, content, metadata, embedding <=> $1 AS distance
		FROM %s WHERE collection = $2 ORDER BY distance ASC LIMIT $3`, s.table)

	var rows []pgMatch
	if err := s.db.SelectContext(ctx, &rows, q, pgvector.NewVector(vector), s.collection, k); err != nil {
		metrics.RecordVectorSearchMetrics(s.Name(), "error", time.Since(start).Seconds())
		return nil, fmt.Errorf("pgvector query: %w", err)
	}
	metrics.RecordVectorSearchMetrics(s.Name(), "ok", time.Since(start).Seconds())

	out := make([]Match, 0, len(rows))
	for _, r := range rows {
		m := Match{ID: r.ID, Text: r.Content, Distance: r.Distance}
		if len(r.Metadata) > 0 {
			if err := json.Unmarshal(r.Metadata, &m.Metadata); err != nil {
				s.log.Warn("Dropping unreadable metadata", zap.String("id", r.ID), zap.Error(err))
			}
		}
		out = append(out, m)
	}
	return out, nil
}

func (s *PGVectorStore) Count(ctx context.Context) (int, error) {
	var n int
	q := fmt.Sprintf(`SELECT COUNT(*) FROM %s WHERE collection = $1`, s.table)
	if err := s.db.GetContext(ctx, &n, q, s.collection); err != nil {
		return 0, fmt.Errorf("pgvector count: %w", err)
	}
	return n, nil
}

func (s *PGVectorStore) Clear(ctx context.Context) error {
	q := fmt.Sprintf(`DELETE FROM %s WHERE collection = $1`, s.table)
	if _, err := s.db.ExecContext(ctx, q, s.collection); err != nil {
		return fmt.Errorf("pgvector clear: %w", err)
	}
	return nil
}

func (s *PGVectorStore) Close() error { return s.db.Close() }

func marshalMetadata(m map[string]interface{}) ([]byte, error) {
	if m == nil {
		return nil, nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("marshal metadata: %w", err)
	}
	return b, nil
}
