package activities

import (
	"context"
	"fmt"
	"strconv"

	"go.uber.org/zap"

	"github.com/shahryar908/agenticrag/internal/llm"
	"github.com/shahryar908/agenticrag/internal/metrics"
	"github.com/shahryar908/agenticrag/internal/workflows"
)

// Classify asks the model for one taxonomy label. Unrecognized labels fall back
// to general; only an LLM failure is returned as an error.
func (a *Activities) Classify(ctx context.Context, query string) (workflows.Classification, error) {
	raw, err := a.llm.Complete(ctx, llm.Request{
		User:        classifyPrompt(query),
		Temperature: classifyTemperature,
		MaxTokens:   classifyMaxTokens,
		Purpose:     "classify",
	})
	if err != nil {
		return workflows.Classification{}, fmt.Errorf("classify query: %w", err)
	}

	qt, ok := workflows.ParseQueryType(raw)
	metrics.QueriesClassified.WithLabelValues(qt.String(), strconv.FormatBool(ok)).Inc()

	note := fmt.Sprintf("Query classified as '%s'. %s", qt, routeNote(qt))
	if !ok {
		a.logger.Warn("Unrecognized query label, using general",
			zap.String("raw_label", raw),
		)
		note = fmt.Sprintf("Query classified as '%s' (model answered %q). %s", qt, raw, routeNote(qt))
	}

	return workflows.Classification{
		QueryType:  qt,
		RawLabel:   raw,
		Recognized: ok,
		Note:       note,
	}, nil
}
