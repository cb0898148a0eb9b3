package activities

import (
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/shahryar908/agenticrag/internal/embeddings"
	"github.com/shahryar908/agenticrag/internal/llm"
	"github.com/shahryar908/agenticrag/internal/vectordb"
	"github.com/shahryar908/agenticrag/internal/websearch"
	"github.com/shahryar908/agenticrag/internal/workflows"
)

// DefaultQueryPrefix is the BGE instruction prepended to retrieval queries.
const DefaultQueryPrefix = "Represent this sentence for searching relevant passages: "

// DefaultConfidenceThreshold is the retrieval confidence below which the gate falls back.
const DefaultConfidenceThreshold = 0.3

// GateConfig is the quality gate policy. It is swapped atomically on config reload.
type GateConfig struct {
	Threshold             float64
	DropLowConfidenceDocs bool
}

// Dependencies are the collaborators the activities call out to.
type Dependencies struct {
	LLM         llm.Client
	Store       vectordb.Store
	Embedder    embeddings.Embedder
	WebSearch   websearch.Provider
	QueryPrefix string
	Gate        GateConfig
}

// Activities implements every workflow node over real collaborators.
type Activities struct {
	llm         llm.Client
	store       vectordb.Store
	embedder    embeddings.Embedder
	search      websearch.Provider
	queryPrefix string
	gate        atomic.Pointer[GateConfig]
	logger      *zap.Logger
}

var _ workflows.Activities = (*Activities)(nil)

// NewActivities creates a new activities instance with dependencies
func NewActivities(deps Dependencies, logger *zap.Logger) *Activities {
	if logger == nil {
		logger = zap.NewNop()
	}
	if deps.WebSearch == nil {
		deps.WebSearch = websearch.Stub{}
	}
	prefix := deps.QueryPrefix
	if prefix == "" {
		prefix = DefaultQueryPrefix
	}
	a := &Activities{
		llm:         deps.LLM,
		store:       deps.Store,
		embedder:    deps.Embedder,
		search:      deps.WebSearch,
		queryPrefix: prefix,
		logger:      logger,
	}
	a.SetGateConfig(deps.Gate)
	return a
}

// SetGateConfig replaces the gate policy for subsequent runs.
func (a *Activities) SetGateConfig(g GateConfig) {
	if g.Threshold <= 0 {
		g.Threshold = DefaultConfidenceThreshold
	}
	a.gate.Store(&g)
	a.logger.Info("Quality gate configured",
		zap.Float64("threshold", g.Threshold),
		zap.Bool("drop_low_confidence_docs", g.DropLowConfidenceDocs),
	)
}

// GateConfig returns the active gate policy.
func (a *Activities) GateConfig() GateConfig {
	return *a.gate.Load()
}
