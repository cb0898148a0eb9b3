package vectordb

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/shahryar908/agenticrag/internal/circuitbreaker"
	"github.com/shahryar908/agenticrag/internal/metrics"
	"github.com/shahryar908/agenticrag/internal/resilience"
	"github.com/shahryar908/agenticrag/internal/tracing"
)

// QdrantConfig controls the Qdrant client.
type QdrantConfig struct {
	URL        string
	APIKey     string
	Collection string
	Dimensions int
	Timeout    time.Duration
}

// QdrantStore is a minimal Qdrant HTTP client implementing Store.
type QdrantStore struct {
	cfg   QdrantConfig
	base  string
	httpw *circuitbreaker.HTTPWrapper
	log   *zap.Logger
}

// NewQdrantStore creates the client and makes sure the collection exists with the
// expected vector size.
func NewQdrantStore(ctx context.Context, cfg QdrantConfig, logger *zap.Logger) (*QdrantStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.Collection == "" {
		cfg.Collection = "agentic_knowledge"
	}
	s := &QdrantStore{
		cfg:   cfg,
		base:  strings.TrimRight(cfg.URL, "/"),
		httpw: circuitbreaker.NewHTTPWrapper(nil, circuitbreaker.DependencyVectorDB, "vectordb", cfg.Timeout, logger),
		log:   logger,
	}
	if err := s.EnsureCollection(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *QdrantStore) Name() string { return "qdrant" }

// Breaker exposes the store breaker for health checks.
func (s *QdrantStore) Breaker() *circuitbreaker.Breaker { return s.httpw.Breaker() }

type qdrantPoint struct {
	ID      interface{}            `json:"id"`
	Score   float64                `json:"score"`
	Payload map[string]interface{} `json:"payload"`
}

type qdrantQueryResponse struct {
	Result struct {
		Points []qdrantPoint `json:"points"`
	} `json:"result"`
	Status interface{} `json:"status"`
}

type qdrantSearchResponse struct {
	Result []qdrantPoint `json:"result"`
	Status interface{}   `json:"status"`
}

type upsertPoint struct {
	ID      string                 `json:"id"`
	Vector  []float32              `json:"vector"`
	Payload map[string]interface{} `json:"payload"`
}

func (s *QdrantStore) collectionURL(suffix string) string {
	return fmt.Sprintf("%s/collections/%s%s", s.base, s.cfg.Collection, suffix)
}

// do sends a JSON request and returns the response. Non-2xx answers become StatusError
// unless the caller lists them in allow.
func (s *QdrantStore) do(ctx context.Context, method, url string, body interface{}, allow ...int) (*http.Response, error) {
	ctx, span := tracing.StartHTTPSpan(ctx, method, url)
	defer span.End()

	var rdr io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		rdr = bytes.NewReader(buf)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, rdr)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if s.cfg.APIKey != "" {
		req.Header.Set("api-key", s.cfg.APIKey)
	}
	tracing.InjectTraceparent(ctx, req)

	resp, err := s.httpw.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode/100 == 2 {
		return resp, nil
	}
	for _, code := range allow {
		if resp.StatusCode == code {
			return resp, nil
		}
	}
	defer resp.Body.Close()
	msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	return nil, &resilience.StatusError{Service: "qdrant", Code: resp.StatusCode, Body: string(msg)}
}

// CollectionInfo holds basic information about a Qdrant collection
type CollectionInfo struct {
	Name        string
	VectorSize  int
	PointsCount int64
}

// collectionInfo returns nil without error when the collection does not exist.
func (s *QdrantStore) collectionInfo(ctx context.Context) (*CollectionInfo, error) {
	resp, err := s.do(ctx, http.MethodGet, s.collectionURL(""), nil, http.StatusNotFound)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return nil, nil
	}

	var result struct {
		Result struct {
			PointsCount int64 `json:"points_count"`
			Config      struct {
				Params struct {
					Vectors struct {
						Size     int    `json:"size"`
						Distance string `json:"distance"`
					} `json:"vectors"`
				} `json:"params"`
			} `json:"config"`
		} `json:"result"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, err
	}
	return &CollectionInfo{
		Name:        s.cfg.Collection,
		VectorSize:  result.Result.Config.Params.Vectors.Size,
		PointsCount: result.Result.PointsCount,
	}, nil
}

// EnsureCollection creates the cosine collection if missing and validates its dimension otherwise.
func (s *QdrantStore) EnsureCollection(ctx context.Context) error {
	info, err := s.collectionInfo(ctx)
	if err != nil {
		return fmt.Errorf("qdrant collection info: %w", err)
	}
	if info != nil {
		if s.cfg.Dimensions > 0 && info.VectorSize != s.cfg.Dimensions {
			return DimensionMismatchError{
				Collection:        s.cfg.Collection,
				ExpectedDimension: s.cfg.Dimensions,
				ReceivedDimension: info.VectorSize,
				SuggestedAction:   "Check embedding model configuration or recreate collection with correct dimensions",
			}
		}
		s.log.Info("Collection dimension validated",
			zap.String("collection", s.cfg.Collection),
			zap.Int("dimension", info.VectorSize))
		return nil
	}

	body := map[string]interface{}{
		"vectors": map[string]interface{}{"size": s.cfg.Dimensions, "distance": "Cosine"},
	}
	resp, err := s.do(ctx, http.MethodPut, s.collectionURL(""), body)
	if err != nil {
		return fmt.Errorf("qdrant create collection: %w", err)
	}
	resp.Body.Close()
	s.log.Info("Created collection", zap.String("collection", s.cfg.Collection), zap.Int("dimension", s.cfg.Dimensions))
	return nil
}

// pointID maps a document ID onto the UUID space Qdrant accepts.
func (s *QdrantStore) pointID(docID string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(s.cfg.Collection+"/"+docID)).String()
}

func (s *QdrantStore) Upsert(ctx context.Context, records []Record) error {
	if len(records) == 0 {
		return nil
	}
	points := make([]upsertPoint, 0, len(records))
	for _, r := range records {
		if err := r.Validate(); err != nil {
			return err
		}
		points = append(points, upsertPoint{
			ID:     s.pointID(r.ID),
			Vector: r.Vector,
			Payload: map[string]interface{}{
				"doc_id":   r.ID,
				"text":     r.Text,
				"metadata": r.Metadata,
			},
		})
	}
	resp, err := s.do(ctx, http.MethodPut, s.collectionURL("/points?wait=true"), map[string]interface{}{"points": points})
	if err != nil {
		return fmt.Errorf("qdrant upsert: %w", err)
	}
	resp.Body.Close()
	return nil
}

// Query prefers /points/query and falls back to the legacy /points/search.
func (s *QdrantStore) Query(ctx context.Context, vector []float32, k int) ([]Match, error) {
	start := time.Now()
	points, err := s.query(ctx, vector, k)
	if err != nil {
		metrics.RecordVectorSearchMetrics(s.Name(), "error", time.Since(start).Seconds())
		return nil, err
	}
	metrics.RecordVectorSearchMetrics(s.Name(), "ok", time.Since(start).Seconds())

	out := make([]Match, 0, len(points))
	for _, p := range points {
		m := Match{Distance: 1 - p.Score}
		if id, ok := p.Payload["doc_id"].(string); ok {
			m.ID = id
		} else {
			m.ID = fmt.Sprintf("%v", p.ID)
		}
		if t, ok := p.Payload["text"].(string); ok {
			m.Text = t
		}
		if md, ok := p.Payload["metadata"].(map[string]interface{}); ok {
			m.Metadata = md
		}
		out = append(out, m)
	}
	sortMatches(out)
	if k > 0 && len(out) > k {
		out = out[:k]
	}
	return out, nil
}

func (s *QdrantStore) query(ctx context.Context, vector []float32, k int) ([]qdrantPoint, error) {
	body := map[string]interface{}{"query": vector, "limit": k, "with_payload": true}
	resp, err := s.do(ctx, http.MethodPost, s.collectionURL("/points/query"), body, http.StatusNotFound, http.StatusBadRequest)
	if err != nil {
		return nil, fmt.Errorf("qdrant query: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusOK {
		var qr qdrantQueryResponse
		if err := json.NewDecoder(resp.Body).Decode(&qr); err != nil {
			return nil, err
		}
		return qr.Result.Points, nil
	}

	legacy := map[string]interface{}{"vector": vector, "limit": k, "with_payload": true}
	resp2, err := s.do(ctx, http.MethodPost, s.collectionURL("/points/search"), legacy)
	if err != nil {
		return nil, fmt.Errorf("qdrant query/search failed: %w", err)
	}
	defer resp2.Body.Close()
	var sr qdrantSearchResponse
	if err := json.NewDecoder(resp2.Body).Decode(&sr); err != nil {
		return nil, err
	}
	return sr.Result, nil
}

func (s *QdrantStore) Count(ctx context.Context) (int, error) {
	resp, err := s.do(ctx, http.MethodPost, s.collectionURL("/points/count"), map[string]interface{}{"exact": true}, http.StatusNotFound)
	if err != nil {
		return 0, fmt.Errorf("qdrant count: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return 0, nil
	}
	var r struct {
		Result struct {
			Count int `json:"count"`
		} `json:"result"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&r); err != nil {
		return 0, err
	}
	return r.Result.Count, nil
}

// Clear drops and recreates the collection.
func (s *QdrantStore) Clear(ctx context.Context) error {
	resp, err := s.do(ctx, http.MethodDelete, s.collectionURL(""), nil, http.StatusNotFound)
	if err != nil {
		return fmt.Errorf("qdrant delete collection: %w", err)
	}
	resp.Body.Close()
	return s.EnsureCollection(ctx)
}

func (s *QdrantStore) Close() error { return nil }
