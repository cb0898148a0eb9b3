// Package knowledge owns writes to the vector store. Every ingestion path goes
// through Base so document IDs stay unique across concurrent callers.
package knowledge

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/shahryar908/agenticrag/internal/embeddings"
	"github.com/shahryar908/agenticrag/internal/ingestion"
	"github.com/shahryar908/agenticrag/internal/metrics"
	"github.com/shahryar908/agenticrag/internal/vectordb"
)

// DefaultBatchSize bounds how many records are embedded and upserted per call.
const DefaultBatchSize = 100

// Config tunes a Base.
type Config struct {
	BatchSize  int
	Collection string
	Chunking   embeddings.ChunkingConfig
}

// AddResult summarizes one ingestion call.
type AddResult struct {
	DocumentsAdded int      `json:"documents_added"`
	ChunksStored   int      `json:"chunks_stored"`
	IDs            []string `json:"ids"`
	TotalDocuments int      `json:"total_documents"`
}

// Stats describes the knowledge base and the models serving it.
type Stats struct {
	TotalDocuments int    `json:"total_documents"`
	EmbeddingModel string `json:"embedding_model"`
	Collection     string `json:"collection_name"`
	VectorStore    string `json:"vector_store"`
}

// Base serializes ID allocation and upserts over a Store.
type Base struct {
	mu       sync.Mutex
	store    vectordb.Store
	embedder embeddings.Embedder
	chunker  *embeddings.Chunker
	cfg      Config
	next     int
	seeded   bool
	logger   *zap.Logger
}

// NewBase wires a Base. Chunking is applied only when cfg.Chunking.Enabled.
func NewBase(store vectordb.Store, embedder embeddings.Embedder, cfg Config, logger *zap.Logger) *Base {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.Collection == "" {
		cfg.Collection = "agentic_rag_docs"
	}
	b := &Base{store: store, embedder: embedder, cfg: cfg, logger: logger}
	if cfg.Chunking.Enabled {
		b.chunker = embeddings.NewChunker(cfg.Chunking, logger)
	}
	return b
}

// Add stores a single document.
func (b *Base) Add(ctx context.Context, doc ingestion.Document, source string) (AddResult, error) {
	return b.AddBatch(ctx, []ingestion.Document{doc}, source)
}

// AddBatch validates every document first, then embeds and upserts in batches.
// IDs are allocated as doc_<n> and never reused until Clear. The counter only
// advances once a batch is stored, so a failed upsert leaves no gap. On error
// the returned result still describes the batches that were stored before it.
func (b *Base) AddBatch(ctx context.Context, docs []ingestion.Document, source string) (AddResult, error) {
	if len(docs) == 0 {
		return AddResult{}, ingestion.ErrEmptyDocument
	}
	for i, d := range docs {
		if err := d.Validate(); err != nil {
			return AddResult{}, fmt.Errorf("document %d: %w", i, err)
		}
	}
	if source == "" {
		source = "api"
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.seed(ctx); err != nil {
		return AddResult{}, err
	}

	records, owners := b.expand(docs)
	var res AddResult
	for start := 0; start < len(records); start += b.cfg.BatchSize {
		end := start + b.cfg.BatchSize
		if end > len(records) {
			end = len(records)
		}
		if err := b.storeBatch(ctx, records[start:end]); err != nil {
			b.partial(source, res, err)
			return res, err
		}
		for _, r := range records[start:end] {
			res.IDs = append(res.IDs, r.ID)
		}
		res.ChunksStored = end
		res.DocumentsAdded = completedDocs(owners, end)
	}
	metrics.DocumentsIngested.WithLabelValues(source).Add(float64(res.DocumentsAdded))

	total, err := b.store.Count(ctx)
	if err != nil {
		return res, fmt.Errorf("count documents: %w", err)
	}
	res.TotalDocuments = total
	metrics.KnowledgeBaseDocuments.Set(float64(total))

	b.logger.Info("Documents ingested",
		zap.String("source", source),
		zap.Int("documents", res.DocumentsAdded),
		zap.Int("records", res.ChunksStored),
		zap.Int("total", total),
	)
	return res, nil
}

// storeBatch embeds and upserts one batch. Caller holds mu.
func (b *Base) storeBatch(ctx context.Context, batch []vectordb.Record) error {
	texts := make([]string, len(batch))
	for i, r := range batch {
		texts[i] = r.Text
	}
	vectors, err := b.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return fmt.Errorf("embed batch: %w", err)
	}
	if len(vectors) != len(batch) {
		return fmt.Errorf("embed batch: got %d vectors for %d texts", len(vectors), len(batch))
	}
	for i := range batch {
		batch[i].ID = fmt.Sprintf("doc_%d", b.next+i)
		batch[i].Vector = vectors[i]
	}
	if err := b.store.Upsert(ctx, batch); err != nil {
		return fmt.Errorf("upsert into %s: %w", b.store.Name(), err)
	}
	b.next += len(batch)
	return nil
}

func (b *Base) partial(source string, res AddResult, err error) {
	if res.ChunksStored == 0 {
		return
	}
	metrics.DocumentsIngested.WithLabelValues(source).Add(float64(res.DocumentsAdded))
	b.logger.Warn("Ingestion stopped after a partial write",
		zap.String("source", source),
		zap.Int("documents", res.DocumentsAdded),
		zap.Int("records", res.ChunksStored),
		zap.Error(err),
	)
}

// completedDocs counts the documents whose records all fall before stored.
func completedDocs(owners []int, stored int) int {
	if stored == 0 {
		return 0
	}
	last := owners[stored-1]
	if stored == len(owners) || owners[stored] != last {
		return last + 1
	}
	return last
}

// expand turns documents into records, splitting long texts when chunking is on.
// owners[i] is the index of the document records[i] came from.
func (b *Base) expand(docs []ingestion.Document) (records []vectordb.Record, owners []int) {
	records = make([]vectordb.Record, 0, len(docs))
	owners = make([]int, 0, len(docs))
	for di, d := range docs {
		var chunks []embeddings.Chunk
		if b.chunker != nil {
			chunks = b.chunker.ChunkText(d.Text)
		}
		if len(chunks) == 0 {
			records = append(records, vectordb.Record{Text: d.Text, Metadata: copyMetadata(d.Metadata)})
			owners = append(owners, di)
			continue
		}
		for _, c := range chunks {
			md := copyMetadata(d.Metadata)
			md["parent_id"] = c.ParentID
			md["chunk_index"] = c.Index
			md["chunk_total"] = c.TotalCount
			records = append(records, vectordb.Record{Text: c.Text, Metadata: md})
			owners = append(owners, di)
		}
	}
	return records, owners
}

// seed aligns the ID counter with what the store already holds. Caller holds mu.
func (b *Base) seed(ctx context.Context) error {
	if b.seeded {
		return nil
	}
	n, err := b.store.Count(ctx)
	if err != nil {
		return fmt.Errorf("count documents: %w", err)
	}
	b.next = n
	b.seeded = true
	return nil
}

// Count returns the number of stored records.
func (b *Base) Count(ctx context.Context) (int, error) {
	return b.store.Count(ctx)
}

// Stats reports the store size and serving configuration.
func (b *Base) Stats(ctx context.Context) (Stats, error) {
	n, err := b.store.Count(ctx)
	if err != nil {
		return Stats{}, fmt.Errorf("count documents: %w", err)
	}
	metrics.KnowledgeBaseDocuments.Set(float64(n))
	return Stats{
		TotalDocuments: n,
		EmbeddingModel: b.embedder.Model(),
		Collection:     b.cfg.Collection,
		VectorStore:    b.store.Name(),
	}, nil
}

// Clear removes every document and restarts ID allocation at doc_0.
func (b *Base) Clear(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.store.Clear(ctx); err != nil {
		return fmt.Errorf("clear %s: %w", b.store.Name(), err)
	}
	b.next = 0
	b.seeded = true
	metrics.KnowledgeBaseDocuments.Set(0)
	b.logger.Info("Knowledge base cleared", zap.String("store", b.store.Name()))
	return nil
}

func copyMetadata(m map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(m)+3)
	for k, v := range m {
		out[k] = v
	}
	return out
}
