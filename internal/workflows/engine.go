package workflows

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/shahryar908/agenticrag/internal/metrics"
	"github.com/shahryar908/agenticrag/internal/tracing"
	"github.com/shahryar908/agenticrag/internal/util"
)

var (
	// ErrNodeRevisited means the transition table routed back to a node already run.
	ErrNodeRevisited = errors.New("workflow node revisited")
	// ErrEmptyAnswer is returned when generation produced no text.
	ErrEmptyAnswer = errors.New("language model returned an empty answer")
	// ErrEmptyQuery rejects blank input before any node runs.
	ErrEmptyQuery = errors.New("query must not be empty")
)

// DefaultTopK is the number of passages retrieved when a run does not ask for more.
const DefaultTopK = 3

// Classification is the classifier's verdict for one query.
type Classification struct {
	QueryType QueryType
	RawLabel  string
	// Recognized is false when RawLabel was not a known type and general was used.
	Recognized bool
	Note       string
}

// Activities are the node implementations the engine drives.
type Activities interface {
	Classify(ctx context.Context, query string) (Classification, error)
	Retrieve(ctx context.Context, query string, k int) ([]RetrievedDoc, float64, error)
	WebSearch(ctx context.Context, query string) ([]string, float64, error)
	QualityGate(state State) State
	Synthesize(ctx context.Context, state State) (string, error)
}

// RunOptions tune a single run.
type RunOptions struct {
	TopK int
}

// Result is a finished run.
type Result struct {
	State    State
	Path     []Node
	Timings  map[Node]time.Duration
	Duration time.Duration
}

// Observer is notified after every run, successful or not. res is nil on error.
type Observer interface {
	ObserveRun(ctx context.Context, query string, res *Result, runErr error)
}

// Engine executes the routing graph over a set of Activities.
type Engine struct {
	acts        Activities
	transitions Transitions
	observers   []Observer
	defaultTopK atomic.Int64
	logger      *zap.Logger
}

// NewEngine builds an Engine using DefaultTransitions.
func NewEngine(acts Activities, logger *zap.Logger, observers ...Observer) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	e := &Engine{
		acts:        acts,
		transitions: DefaultTransitions(),
		observers:   observers,
		logger:      logger,
	}
	e.defaultTopK.Store(DefaultTopK)
	return e
}

// SetDefaultTopK changes the passage count used when RunOptions.TopK is unset.
// Non-positive values are ignored.
func (e *Engine) SetDefaultTopK(k int) {
	if k > 0 {
		e.defaultTopK.Store(int64(k))
	}
}

// WithTransitions replaces the routing table. Intended for tests.
func (e *Engine) WithTransitions(t Transitions) *Engine {
	e.transitions = t
	return e
}

// Run answers query. Any node error aborts the run; no partial result is returned.
func (e *Engine) Run(ctx context.Context, query string, opts RunOptions) (*Result, error) {
	if strings.TrimSpace(query) == "" {
		return nil, ErrEmptyQuery
	}
	if opts.TopK <= 0 {
		opts.TopK = int(e.defaultTopK.Load())
	}

	metrics.WorkflowsStarted.Inc()
	start := time.Now()
	res, err := e.run(ctx, query, opts)

	dur := time.Since(start)
	queryType := "unknown"
	if res != nil {
		res.Duration = dur
		queryType = res.State.QueryType.String()
	}
	status := "ok"
	if err != nil {
		status = "error"
		e.logger.Warn("Workflow failed", zap.String("query", util.Preview(query, 200)), zap.Duration("duration", dur), zap.Error(err))
	} else {
		e.logger.Info("Workflow completed",
			zap.String("query", util.Preview(query, 200)),
			zap.String("query_type", queryType),
			zap.Strings("path", nodeNames(res.Path)),
			zap.Float64("confidence", res.State.Confidence),
			zap.Duration("duration", dur),
		)
	}
	metrics.RecordWorkflowMetrics(queryType, status, dur.Seconds())

	var observed *Result
	if err == nil {
		observed = res
	}
	for _, o := range e.observers {
		o.ObserveRun(ctx, query, observed, err)
	}
	if err != nil {
		return nil, err
	}
	return res, nil
}

func (e *Engine) run(ctx context.Context, query string, opts RunOptions) (*Result, error) {
	state := NewState(query)
	res := &Result{Timings: make(map[Node]time.Duration)}
	visited := make(map[Node]bool)

	for node := NodeAnalyze; node != NodeTerminal; {
		if visited[node] {
			return res, fmt.Errorf("%w: %s", ErrNodeRevisited, node)
		}
		visited[node] = true

		next, ok := e.transitions[node]
		if !ok {
			return res, fmt.Errorf("no transition defined for node %s", node)
		}

		nctx, span := tracing.StartNodeSpan(ctx, node.String(), state.QueryType.String())
		started := time.Now()
		out, err := e.step(nctx, node, state, opts)
		elapsed := time.Since(started)
		tracing.EndSpan(span, err)

		status := "ok"
		if err != nil {
			status = "error"
		}
		metrics.RecordNodeMetrics(node.String(), status, elapsed.Seconds())
		res.Path = append(res.Path, node)
		res.Timings[node] = elapsed
		if err != nil {
			return res, fmt.Errorf("%s: %w", node, err)
		}

		state = out
		res.State = state
		node = next(state)
	}
	return res, nil
}

func (e *Engine) step(ctx context.Context, node Node, s State, opts RunOptions) (State, error) {
	switch node {
	case NodeAnalyze:
		c, err := e.acts.Classify(ctx, s.Query)
		if err != nil {
			return s, err
		}
		s.QueryType = c.QueryType
		s.NeedsRetrieval = c.QueryType.NeedsRetrieval()
		s.NeedsWebSearch = c.QueryType.NeedsWebSearch()
		return s.WithNote(c.Note), nil

	case NodeRetrieve:
		docs, conf, err := e.acts.Retrieve(ctx, s.Query, opts.TopK)
		if err != nil {
			return s, err
		}
		s.RetrievedDocs = docs
		s.Confidence = Clamp01(conf)
		metrics.RetrievalConfidence.Observe(s.Confidence)
		if len(docs) == 0 {
			return s.WithNote("Knowledge base returned no documents."), nil
		}
		return s.WithNote(fmt.Sprintf("Retrieved %d document(s) with confidence %.2f.", len(docs), s.Confidence)), nil

	case NodeWebSearch:
		results, conf, err := e.acts.WebSearch(ctx, s.Query)
		if err != nil {
			return s, err
		}
		s.WebResults = results
		s.Confidence = Clamp01(conf)
		return s.WithNote(fmt.Sprintf("Web search returned %d result(s).", len(results))), nil

	case NodeQualityCheck:
		return e.acts.QualityGate(s), nil

	case NodeGenerate:
		answer, err := e.acts.Synthesize(ctx, s)
		if err != nil {
			return s, err
		}
		if strings.TrimSpace(answer) == "" {
			return s, ErrEmptyAnswer
		}
		s.Answer = answer
		return s.WithNote(fmt.Sprintf("Generated answer using the %s template.", s.QueryType.PromptTemplate())), nil

	default:
		return s, fmt.Errorf("unknown node %s", node)
	}
}

func nodeNames(path []Node) []string {
	out := make([]string, len(path))
	for i, n := range path {
		out[i] = n.String()
	}
	return out
}
