package knowledge

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"math"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/shahryar908/agenticrag/internal/activities"
	"github.com/shahryar908/agenticrag/internal/embeddings"
	"github.com/shahryar908/agenticrag/internal/ingestion"
	"github.com/shahryar908/agenticrag/internal/vectordb"
)

// bagEmbedder hashes words into a small normalized vector.
type bagEmbedder struct {
	mu      sync.Mutex
	batches []int
}

func (e *bagEmbedder) vector(text string) []float32 {
	v := make([]float32, 16)
	for _, w := range strings.Fields(strings.ToLower(text)) {
		h := fnv.New32a()
		_, _ = h.Write([]byte(strings.Trim(w, ".,?!")))
		v[h.Sum32()%16]++
	}
	var n float64
	for _, x := range v {
		n += float64(x * x)
	}
	if n == 0 {
		v[0] = 1
		return v
	}
	for i := range v {
		v[i] = float32(float64(v[i]) / math.Sqrt(n))
	}
	return v
}

func (e *bagEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	return e.vector(text), nil
}

func (e *bagEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	e.mu.Lock()
	e.batches = append(e.batches, len(texts))
	e.mu.Unlock()
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = e.vector(t)
	}
	return out, nil
}

func (e *bagEmbedder) Model() string   { return "bag" }
func (e *bagEmbedder) Dimensions() int { return 16 }

func docs(n int) []ingestion.Document {
	out := make([]ingestion.Document, n)
	for i := range out {
		out[i] = ingestion.Document{Text: fmt.Sprintf("passage number %d about topic %d", i, i%4)}
	}
	return out
}

func TestAddAllocatesSequentialIDs(t *testing.T) {
	ctx := context.Background()
	b := NewBase(vectordb.NewMemoryStore(), &bagEmbedder{}, Config{}, zaptest.NewLogger(t))

	res, err := b.Add(ctx, ingestion.Document{Text: "LangGraph builds agents", Metadata: map[string]interface{}{"topic": "LangGraph"}}, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"doc_0"}, res.IDs)
	assert.Equal(t, 1, res.DocumentsAdded)
	assert.Equal(t, 1, res.TotalDocuments)

	res, err = b.AddBatch(ctx, docs(3), "seed")
	require.NoError(t, err)
	assert.Equal(t, []string{"doc_1", "doc_2", "doc_3"}, res.IDs)
	assert.Equal(t, 4, res.TotalDocuments)
}

func TestAddRejectsBlankDocuments(t *testing.T) {
	ctx := context.Background()
	store := vectordb.NewMemoryStore()
	b := NewBase(store, &bagEmbedder{}, Config{}, zaptest.NewLogger(t))

	_, err := b.AddBatch(ctx, []ingestion.Document{{Text: "ok"}, {Text: " \n"}}, "api")
	assert.ErrorIs(t, err, ingestion.ErrEmptyDocument)
	_, err = b.AddBatch(ctx, nil, "api")
	assert.ErrorIs(t, err, ingestion.ErrEmptyDocument)

	n, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, n, "nothing is written when any document is invalid")
}

func TestAddBatchesInHundreds(t *testing.T) {
	emb := &bagEmbedder{}
	b := NewBase(vectordb.NewMemoryStore(), emb, Config{}, zaptest.NewLogger(t))
	res, err := b.AddBatch(context.Background(), docs(250), "api")
	require.NoError(t, err)
	assert.Equal(t, []int{100, 100, 50}, emb.batches)
	assert.Equal(t, 250, res.TotalDocuments)
	assert.Equal(t, "doc_249", res.IDs[249])
}

func TestSeedsCounterFromExistingStore(t *testing.T) {
	ctx := context.Background()
	store := vectordb.NewMemoryStore()
	require.NoError(t, store.Upsert(ctx, []vectordb.Record{
		{ID: "doc_0", Text: "a", Vector: []float32{1, 0}},
		{ID: "doc_1", Text: "b", Vector: []float32{0, 1}},
	}))
	b := NewBase(store, &bagEmbedder{}, Config{}, zaptest.NewLogger(t))
	res, err := b.Add(ctx, ingestion.Document{Text: "c"}, "api")
	require.NoError(t, err)
	assert.Equal(t, []string{"doc_2"}, res.IDs)
}

// flakyStore fails the upserts whose 1-based call number is listed in failOn.
type flakyStore struct {
	vectordb.Store
	calls  int
	failOn map[int]bool
}

var errUpsertRefused = errors.New("upsert refused")

func (s *flakyStore) Upsert(ctx context.Context, records []vectordb.Record) error {
	s.calls++
	if s.failOn[s.calls] {
		return errUpsertRefused
	}
	return s.Store.Upsert(ctx, records)
}

func TestFailedUpsertDoesNotSkipIDs(t *testing.T) {
	ctx := context.Background()
	store := &flakyStore{Store: vectordb.NewMemoryStore(), failOn: map[int]bool{2: true}}
	b := NewBase(store, &bagEmbedder{}, Config{}, zaptest.NewLogger(t))

	res, err := b.Add(ctx, ingestion.Document{Text: "alpha"}, "api")
	require.NoError(t, err)
	assert.Equal(t, []string{"doc_0"}, res.IDs)

	_, err = b.Add(ctx, ingestion.Document{Text: "bravo"}, "api")
	require.ErrorIs(t, err, errUpsertRefused)

	res, err = b.Add(ctx, ingestion.Document{Text: "charlie"}, "api")
	require.NoError(t, err)
	assert.Equal(t, []string{"doc_1"}, res.IDs)

	// A restart seeds from Count and must not overwrite charlie.
	restarted := NewBase(store, &bagEmbedder{}, Config{}, zaptest.NewLogger(t))
	res, err = restarted.Add(ctx, ingestion.Document{Text: "delta"}, "api")
	require.NoError(t, err)
	assert.Equal(t, []string{"doc_2"}, res.IDs)
	assert.Equal(t, 3, res.TotalDocuments)

	matches, err := store.Query(ctx, (&bagEmbedder{}).vector("charlie"), 3)
	require.NoError(t, err)
	texts := make([]string, 0, len(matches))
	for _, m := range matches {
		texts = append(texts, m.Text)
	}
	assert.ElementsMatch(t, []string{"alpha", "charlie", "delta"}, texts)
}

func TestPartialBatchReportsStoredDocuments(t *testing.T) {
	tests := []struct {
		name     string
		failOn   int
		wantIDs  []string
		wantDocs int
	}{
		{"first batch fails", 1, nil, 0},
		{"second batch fails", 2, []string{"doc_0", "doc_1"}, 2},
		{"last batch fails", 3, []string{"doc_0", "doc_1", "doc_2", "doc_3"}, 4},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			store := &flakyStore{Store: vectordb.NewMemoryStore(), failOn: map[int]bool{tt.failOn: true}}
			b := NewBase(store, &bagEmbedder{}, Config{BatchSize: 2}, zaptest.NewLogger(t))

			res, err := b.AddBatch(ctx, docs(5), "api")
			require.ErrorIs(t, err, errUpsertRefused)
			assert.Equal(t, tt.wantIDs, res.IDs)
			assert.Equal(t, tt.wantDocs, res.DocumentsAdded)
			assert.Equal(t, len(tt.wantIDs), res.ChunksStored)

			res, err = b.Add(ctx, ingestion.Document{Text: "retry"}, "api")
			require.NoError(t, err)
			assert.Equal(t, []string{fmt.Sprintf("doc_%d", len(tt.wantIDs))}, res.IDs)
		})
	}
}

func TestCompletedDocs(t *testing.T) {
	owners := []int{0, 0, 0, 1, 2, 2}
	tests := []struct {
		stored int
		want   int
	}{
		{0, 0}, {1, 0}, {3, 1}, {4, 2}, {5, 2}, {6, 3},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, completedDocs(owners, tt.stored), "stored=%d", tt.stored)
	}
}

func TestConcurrentAddsNeverCollide(t *testing.T) {
	ctx := context.Background()
	store := vectordb.NewMemoryStore()
	b := NewBase(store, &bagEmbedder{}, Config{}, zaptest.NewLogger(t))

	var wg sync.WaitGroup
	ids := make(chan string, 40)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, err := b.AddBatch(ctx, docs(2), "api")
			if assert.NoError(t, err) {
				for _, id := range res.IDs {
					ids <- id
				}
			}
		}(i)
	}
	wg.Wait()
	close(ids)

	seen := map[string]bool{}
	for id := range ids {
		assert.False(t, seen[id], "duplicate id %s", id)
		seen[id] = true
	}
	assert.Len(t, seen, 40)
	n, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 40, n)
}

func TestClearResetsIDs(t *testing.T) {
	ctx := context.Background()
	b := NewBase(vectordb.NewMemoryStore(), &bagEmbedder{}, Config{Collection: "test_docs"}, zaptest.NewLogger(t))
	_, err := b.AddBatch(ctx, docs(3), "api")
	require.NoError(t, err)

	require.NoError(t, b.Clear(ctx))
	st, err := b.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, Stats{TotalDocuments: 0, EmbeddingModel: "bag", Collection: "test_docs", VectorStore: "memory"}, st)

	res, err := b.Add(ctx, ingestion.Document{Text: "fresh"}, "api")
	require.NoError(t, err)
	assert.Equal(t, []string{"doc_0"}, res.IDs)
}

func TestChunkingSplitsLongDocuments(t *testing.T) {
	ctx := context.Background()
	store := vectordb.NewMemoryStore()
	cfg := Config{Chunking: embeddings.ChunkingConfig{Enabled: true, MaxTokens: 10, OverlapTokens: 2, TokenizerMode: "simple"}}
	b := NewBase(store, &bagEmbedder{}, cfg, zaptest.NewLogger(t))

	long := strings.TrimSpace(strings.Repeat("agentic retrieval decides when to search ", 5))
	res, err := b.AddBatch(ctx, []ingestion.Document{{Text: long, Metadata: map[string]interface{}{"topic": "rag"}}, {Text: "short one"}}, "api")
	require.NoError(t, err)
	assert.Equal(t, 2, res.DocumentsAdded)
	require.Greater(t, res.ChunksStored, 2)

	matches, err := store.Query(ctx, (&bagEmbedder{}).vector("agentic retrieval"), res.ChunksStored)
	require.NoError(t, err)
	parents := map[interface{}]int{}
	for _, m := range matches {
		if m.Metadata["parent_id"] == nil {
			continue
		}
		assert.Equal(t, "rag", m.Metadata["topic"])
		assert.Equal(t, res.ChunksStored-1, m.Metadata["chunk_total"])
		parents[m.Metadata["parent_id"]]++
	}
	assert.Len(t, parents, 1)
}

func TestIngestThenRetrieveBoundedAndOrdered(t *testing.T) {
	ctx := context.Background()
	for _, n := range []int{1, 2, 3, 7} {
		store := vectordb.NewMemoryStore()
		emb := &bagEmbedder{}
		b := NewBase(store, emb, Config{}, zaptest.NewLogger(t))
		_, err := b.AddBatch(ctx, docs(n), "api")
		require.NoError(t, err)

		acts := activities.NewActivities(activities.Dependencies{Store: store, Embedder: emb}, zaptest.NewLogger(t))
		got, conf, err := acts.Retrieve(ctx, "passage about topic 1", 3)
		require.NoError(t, err)
		assert.LessOrEqual(t, len(got), min(n, 3))
		assert.NotEmpty(t, got)
		for i := 1; i < len(got); i++ {
			assert.GreaterOrEqual(t, got[i-1].Similarity, got[i].Similarity)
		}
		assert.GreaterOrEqual(t, conf, 0.0)
		assert.LessOrEqual(t, conf, 1.0)
	}
}
