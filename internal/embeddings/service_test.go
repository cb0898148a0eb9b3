package embeddings

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/shahryar908/agenticrag/internal/resilience"
)

type fakeProvider struct {
	calls atomic.Int32
	dim   int
	err   error
}

func (f *fakeProvider) Name() string { return "fake" }

func (f *fakeProvider) Embed(_ context.Context, texts []string, _ string) ([][]float32, error) {
	f.calls.Add(1)
	if f.err != nil {
		return nil, f.err
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v := make([]float32, f.dim)
		v[0] = float32(len(t))
		v[1] = 3
		out[i] = v
	}
	return out, nil
}

func fastRetrier(t *testing.T) *resilience.Retrier {
	return resilience.NewRetrier(resilience.Policy{Attempts: 2, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond, AttemptTimeout: time.Second}, zaptest.NewLogger(t))
}

func norm(v []float32) float64 {
	var s float64
	for _, f := range v {
		s += float64(f) * float64(f)
	}
	return math.Sqrt(s)
}

func TestUninitializedService(t *testing.T) {
	var s *Service
	_, err := s.Embed(context.Background(), "hello")
	require.Error(t, err)
}

func TestEmbedNormalizesAndCaches(t *testing.T) {
	p := &fakeProvider{dim: 4}
	s := NewService(Config{Model: "m", Dimensions: 4}, p, nil, fastRetrier(t), zaptest.NewLogger(t))

	v, err := s.Embed(context.Background(), "four")
	require.NoError(t, err)
	assert.InDelta(t, 1.0, norm(v), 1e-6)
	assert.InDelta(t, 0.8, v[0], 1e-6)

	_, err = s.Embed(context.Background(), "four")
	require.NoError(t, err)
	assert.Equal(t, int32(1), p.calls.Load(), "second lookup should hit the LRU")
}

func TestEmbedBatchOnlyComputesMisses(t *testing.T) {
	p := &fakeProvider{dim: 4}
	s := NewService(Config{Model: "m"}, p, nil, fastRetrier(t), zaptest.NewLogger(t))
	ctx := context.Background()

	_, err := s.Embed(ctx, "a")
	require.NoError(t, err)

	out, err := s.EmbedBatch(ctx, []string{"a", "bb", "ccc"})
	require.NoError(t, err)
	require.Len(t, out, 3)
	for _, v := range out {
		assert.InDelta(t, 1.0, norm(v), 1e-6)
	}
	assert.Equal(t, int32(2), p.calls.Load())
}

func TestEmbedDimensionMismatch(t *testing.T) {
	s := NewService(Config{Model: "m", Dimensions: 768}, &fakeProvider{dim: 4}, nil, fastRetrier(t), zaptest.NewLogger(t))
	_, err := s.Embed(context.Background(), "x")
	assert.True(t, errors.Is(err, ErrDimensionMismatch))
}

func TestEmbedProviderOutageIsUnavailable(t *testing.T) {
	p := &fakeProvider{dim: 4, err: &resilience.StatusError{Service: "embeddings", Code: http.StatusBadGateway}}
	s := NewService(Config{Model: "m"}, p, nil, fastRetrier(t), zaptest.NewLogger(t))
	_, err := s.Embed(context.Background(), "x")
	require.Error(t, err)
	assert.True(t, errors.Is(err, resilience.ErrServiceUnavailable))
	assert.Equal(t, int32(2), p.calls.Load())
}

func TestNormalizeZeroVector(t *testing.T) {
	v := Normalize([]float32{0, 0, 0})
	assert.Equal(t, []float32{0, 0, 0}, v)
}

func TestRedisCacheRoundTrip(t *testing.T) {
	mr := miniredis.RunT(t)
	cache, err := NewRedisCache(context.Background(), "redis://"+mr.Addr(), zaptest.NewLogger(t))
	require.NoError(t, err)
	defer cache.Close()

	ctx := context.Background()
	_, ok := cache.Get(ctx, "emb:missing")
	assert.False(t, ok)

	cache.Set(ctx, "emb:k", []float32{0.25, -1.5, 3}, time.Minute)
	got, ok := cache.Get(ctx, "emb:k")
	require.True(t, ok)
	assert.Equal(t, []float32{0.25, -1.5, 3}, got)

	// A second service sharing the cache does not call its provider.
	p := &fakeProvider{dim: 4}
	first := NewService(Config{Model: "m"}, p, cache, fastRetrier(t), zaptest.NewLogger(t))
	_, err = first.Embed(ctx, "shared")
	require.NoError(t, err)

	p2 := &fakeProvider{dim: 4}
	second := NewService(Config{Model: "m"}, p2, cache, fastRetrier(t), zaptest.NewLogger(t))
	_, err = second.Embed(ctx, "shared")
	require.NoError(t, err)
	assert.Equal(t, int32(0), p2.calls.Load())
}

func TestLocalLRUEvictsOldest(t *testing.T) {
	l := NewLocalLRU(2)
	ctx := context.Background()
	l.Set(ctx, "a", []float32{1}, time.Minute)
	l.Set(ctx, "b", []float32{2}, time.Minute)
	l.Get(ctx, "a")
	l.Set(ctx, "c", []float32{3}, time.Minute)

	_, ok := l.Get(ctx, "b")
	assert.False(t, ok)
	_, ok = l.Get(ctx, "a")
	assert.True(t, ok)
	assert.Equal(t, 2, l.Len())

	l.Set(ctx, "d", []float32{4}, -time.Second)
	_, ok = l.Get(ctx, "d")
	assert.False(t, ok, "expired entries are dropped")
}

func TestHTTPProvider(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/embeddings/", r.URL.Path)
		var req embedRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "bge", req.Model)
		resp := embedResponse{Dimensions: 2, ModelUsed: req.Model}
		for range req.Texts {
			resp.Embeddings = append(resp.Embeddings, []float64{0.5, 0.5})
		}
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	p := NewHTTPProvider(srv.URL+"/", time.Second, zaptest.NewLogger(t))
	out, err := p.Embed(context.Background(), []string{"x", "y"}, "bge")
	require.NoError(t, err)
	assert.Equal(t, [][]float32{{0.5, 0.5}, {0.5, 0.5}}, out)
}

func TestHTTPProviderStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "slow down", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	p := NewHTTPProvider(srv.URL, time.Second, zaptest.NewLogger(t))
	_, err := p.Embed(context.Background(), []string{"x"}, "bge")
	var se *resilience.StatusError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, http.StatusTooManyRequests, se.Code)
	assert.True(t, resilience.IsRetryable(err))
}

func TestOpenAIProviderOrdersByIndex(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.HasSuffix(r.URL.Path, "/embeddings"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"object":"list","model":"text-embedding-3-small",
			"data":[{"object":"embedding","index":1,"embedding":[0,1]},{"object":"embedding","index":0,"embedding":[1,0]}],
			"usage":{"prompt_tokens":2,"total_tokens":2}}`))
	}))
	defer srv.Close()

	p := NewOpenAIProvider(srv.URL, "sk-test", time.Second, zaptest.NewLogger(t))
	out, err := p.Embed(context.Background(), []string{"a", "b"}, "text-embedding-3-small")
	require.NoError(t, err)
	assert.Equal(t, [][]float32{{1, 0}, {0, 1}}, out)
}

func TestChunkerSimple(t *testing.T) {
	c := NewChunker(ChunkingConfig{MaxTokens: 4, OverlapTokens: 1, TokenizerMode: "simple"}, zaptest.NewLogger(t))
	assert.Nil(t, c.ChunkText("one two three"))

	chunks := c.ChunkText("a b c d e f g h i j")
	require.Len(t, chunks, 3)
	assert.Equal(t, "a b c d", chunks[0].Text)
	assert.Equal(t, "d e f g", chunks[1].Text)
	assert.Equal(t, "g h i j", chunks[2].Text)
	for i, ch := range chunks {
		assert.Equal(t, i, ch.Index)
		assert.Equal(t, 3, ch.TotalCount)
		assert.Equal(t, chunks[0].ParentID, ch.ParentID)
	}
	assert.Equal(t, 10, c.CountTokens("a b c d e f g h i j"))
}

func TestEstimateTokens(t *testing.T) {
	assert.Equal(t, 13, EstimateTokens("one two three four five six seven eight nine ten"))
}
