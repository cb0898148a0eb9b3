package activities

import (
	"context"
	"fmt"

	"github.com/shahryar908/agenticrag/internal/metrics"
	"github.com/shahryar908/agenticrag/internal/websearch"
	"github.com/shahryar908/agenticrag/internal/workflows"
)

// WebSearch delegates to the configured provider and renders its results as text.
func (a *Activities) WebSearch(ctx context.Context, query string) ([]string, float64, error) {
	results, err := a.search.Search(ctx, query)
	if err != nil {
		metrics.WebSearches.WithLabelValues(a.search.Name(), "error").Inc()
		return nil, 0, fmt.Errorf("web search (%s): %w", a.search.Name(), err)
	}
	metrics.WebSearches.WithLabelValues(a.search.Name(), "ok").Inc()
	return websearch.Texts(results), workflows.Clamp01(websearch.Confidence(results)), nil
}
