package vectordb

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/shahryar908/agenticrag/internal/metrics"
)

// MemoryStore is an in-process brute-force index. It is safe for concurrent use.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]Record
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]Record)}
}

func (s *MemoryStore) Name() string { return "memory" }

func (s *MemoryStore) Upsert(_ context.Context, records []Record) error {
	for _, r := range records {
		if err := r.Validate(); err != nil {
			return err
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range records {
		v := make([]float32, len(r.Vector))
		copy(v, r.Vector)
		r.Vector = v
		r.Metadata = cloneMetadata(r.Metadata)
		s.records[r.ID] = r
	}
	return nil
}

func (s *MemoryStore) Query(_ context.Context, vector []float32, k int) ([]Match, error) {
	start := time.Now()
	s.mu.RLock()
	matches := make([]Match, 0, len(s.records))
	for _, r := range s.records {
		matches = append(matches, Match{
			ID:       r.ID,
			Text:     r.Text,
			Distance: CosineDistance(vector, r.Vector),
			Metadata: cloneMetadata(r.Metadata),
		})
	}
	s.mu.RUnlock()

	sortMatches(matches)
	if k > 0 && len(matches) > k {
		matches = matches[:k]
	}
	metrics.RecordVectorSearchMetrics(s.Name(), "ok", time.Since(start).Seconds())
	return matches, nil
}

func (s *MemoryStore) Count(context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records), nil
}

func (s *MemoryStore) Clear(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = make(map[string]Record)
	return nil
}

func (s *MemoryStore) Close() error { return nil }

// sortMatches orders by ascending distance, ties broken by ID for stable output.
func sortMatches(m []Match) {
	sort.Slice(m, func(i, j int) bool {
		if m[i].Distance != m[j].Distance {
			return m[i].Distance < m[j].Distance
		}
		return m[i].ID < m[j].ID
	})
}
