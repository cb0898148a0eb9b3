package activities

import (
	"context"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/shahryar908/agenticrag/internal/workflows"
)

// Retrieve embeds the prefixed query and returns the k nearest passages.
// Confidence is clamp01(1 - mean distance). An empty store is not an error.
func (a *Activities) Retrieve(ctx context.Context, query string, k int) ([]workflows.RetrievedDoc, float64, error) {
	if k <= 0 {
		k = workflows.DefaultTopK
	}

	n, err := a.store.Count(ctx)
	if err != nil {
		return nil, 0, fmt.Errorf("count documents: %w", err)
	}
	if n == 0 {
		a.logger.Info("Knowledge base is empty, skipping retrieval")
		return nil, 0, nil
	}

	vec, err := a.embedder.Embed(ctx, a.queryPrefix+query)
	if err != nil {
		return nil, 0, fmt.Errorf("embed query: %w", err)
	}

	matches, err := a.store.Query(ctx, vec, k)
	if err != nil {
		return nil, 0, fmt.Errorf("query %s: %w", a.store.Name(), err)
	}
	if len(matches) == 0 {
		return nil, 0, nil
	}
	sort.SliceStable(matches, func(i, j int) bool { return matches[i].Distance < matches[j].Distance })
	if len(matches) > k {
		matches = matches[:k]
	}

	docs := make([]workflows.RetrievedDoc, len(matches))
	var sum float64
	for i, m := range matches {
		sum += m.Distance
		docs[i] = workflows.RetrievedDoc{
			ID:         m.ID,
			Text:       m.Text,
			Similarity: 1 - m.Distance,
			Metadata:   m.Metadata,
		}
	}
	confidence := workflows.Clamp01(1 - sum/float64(len(matches)))

	a.logger.Debug("Retrieved documents",
		zap.Int("count", len(docs)),
		zap.Float64("confidence", confidence),
		zap.String("store", a.store.Name()),
	)
	return docs, confidence, nil
}
