package workflows

// RetrievedDoc is one knowledge-base passage attached to a run.
type RetrievedDoc struct {
	ID         string                 `json:"id"`
	Text       string                 `json:"text"`
	Similarity float64                `json:"similarity"`
	Metadata   map[string]interface{} `json:"metadata,omitempty"`
}

// State is threaded through the workflow by value. Nodes return a new State
// reflecting only the fields they own.
type State struct {
	Query          string         `json:"query"`
	QueryType      QueryType      `json:"query_type"`
	NeedsRetrieval bool           `json:"needs_retrieval"`
	NeedsWebSearch bool           `json:"needs_web_search"`
	RetrievedDocs  []RetrievedDoc `json:"retrieved_docs"`
	WebResults     []string       `json:"web_results"`
	Confidence     float64        `json:"confidence"`
	ReasoningTrace []string       `json:"reasoning"`
	Answer         string         `json:"answer"`
	// IterationCount is reserved for a bounded retry loop; nothing advances it.
	IterationCount int `json:"iteration"`
}

// NewState returns the initial state for query.
func NewState(query string) State {
	return State{Query: query}
}

// WithNote returns a copy of s with note appended to the trace. The returned
// trace never shares a backing array with s.
func (s State) WithNote(note string) State {
	trace := make([]string, len(s.ReasoningTrace), len(s.ReasoningTrace)+1)
	copy(trace, s.ReasoningTrace)
	s.ReasoningTrace = append(trace, note)
	return s
}

// Clamp01 bounds v to [0,1].
func Clamp01(v float64) float64 {
	switch {
	case v < 0 || v != v:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
