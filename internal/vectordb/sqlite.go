package vectordb

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/shahryar908/agenticrag/internal/metrics"
)

// SQLiteStore persists passages in a local SQLite file and scans them for queries.
type SQLiteStore struct {
	db         *sqlx.DB
	collection string
	log        *zap.Logger
}

// NewSQLiteStore opens (and creates) the database at path.
func NewSQLiteStore(path, collection string, logger *zap.Logger) (*SQLiteStore, error) {
	if path == "" {
		return nil, fmt.Errorf("sqlite: database path cannot be empty")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("sqlite: create dir: %w", err)
		}
	}

	dsn := fmt.Sprintf("file:%s?_journal_mode=WAL&_foreign_keys=on&_busy_timeout=5000", path)
	db, err := sqlx.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open: %w", err)
	}
	db.SetMaxOpenConns(1)

	s := &SQLiteStore{db: db, collection: collection, log: logger}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) initSchema() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS documents (
			collection TEXT NOT NULL,
			id TEXT NOT NULL,
			content TEXT NOT NULL,
			embedding BLOB NOT NULL,
			metadata TEXT,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			PRIMARY KEY (collection, id)
		)`)
	if err != nil {
		return fmt.Errorf("sqlite: create documents table: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Name() string { return "sqlite" }

func (s *SQLiteStore) Upsert(ctx context.Context, records []Record) error {
	if len(records) == 0 {
		return nil
	}
	for _, r := range records {
		if err := r.Validate(); err != nil {
			return err
		}
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: begin: %w", err)
	}
	defer tx.Rollback()

	for _, r := range records {
		md, err := marshalMetadata(r.Metadata)
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, `
			INSERT OR REPLACE INTO documents (collection, id, content, embedding, metadata)
			VALUES (?, ?, ?, ?, ?)`,
			s.collection, r.ID, r.Text, serializeEmbedding(r.Vector), md)
		if err != nil {
			return fmt.Errorf("sqlite: insert %s: %w", r.ID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite: commit: %w", err)
	}
	return nil
}

type sqliteRow struct {
	ID        string  `db:"id"`
	Content   string  `db:"content"`
	Embedding []byte  `db:"embedding"`
	Metadata  *string `db:"metadata"`
}

// Query scans every row of the collection and ranks by cosine distance.
func (s *SQLiteStore) Query(ctx context.Context, vector []float32, k int) ([]Match, error) {
	start := time.Now()
	rows, err := s.db.QueryxContext(ctx,
		`SELECT id, content, embedding, metadata FROM documents WHERE collection = ?`, s.collection)
	if err != nil {
		metrics.RecordVectorSearchMetrics(s.Name(), "error", time.Since(start).Seconds())
		return nil, fmt.Errorf("sqlite: query: %w", err)
	}
	defer rows.Close()

	var matches []Match
	for rows.Next() {
		var r sqliteRow
		if err := rows.StructScan(&r); err != nil {
			return nil, fmt.Errorf("sqlite: scan: %w", err)
		}
		emb, err := deserializeEmbedding(r.Embedding)
		if err != nil {
			s.log.Warn("Skipping row with corrupt embedding", zap.String("id", r.ID), zap.Error(err))
			continue
		}
		m := Match{ID: r.ID, Text: r.Content, Distance: CosineDistance(vector, emb)}
		if r.Metadata != nil && *r.Metadata != "" {
			_ = json.Unmarshal([]byte(*r.Metadata), &m.Metadata)
		}
		matches = append(matches, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterate: %w", err)
	}

	sortMatches(matches)
	if k > 0 && len(matches) > k {
		matches = matches[:k]
	}
	metrics.RecordVectorSearchMetrics(s.Name(), "ok", time.Since(start).Seconds())
	return matches, nil
}

func (s *SQLiteStore) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM documents WHERE collection = ?`, s.collection); err != nil {
		return 0, fmt.Errorf("sqlite: count: %w", err)
	}
	return n, nil
}

func (s *SQLiteStore) Clear(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM documents WHERE collection = ?`, s.collection); err != nil {
		return fmt.Errorf("sqlite: clear: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Close() error { return s.db.Close() }

func serializeEmbedding(v []float32) []byte {
	b := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(b[i*4:], math.Float32bits(f))
	}
	return b
}

func deserializeEmbedding(b []byte) ([]float32, error) {
	if len(b)%4 != 0 {
		return nil, fmt.Errorf("embedding blob length %d is not a multiple of 4", len(b))
	}
	out := make([]float32, len(b)/4)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return out, nil
}
